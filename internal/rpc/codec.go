package rpc

import (
	"bytes"
	"encoding/json"
)

// DecodeResult is the outcome of decoding one frame: either a single
// Request, a batch of Requests, or a ready-to-send error Response for a
// frame that could not be turned into valid JSON-RPC at all.
type DecodeResult struct {
	Requests []Request
	IsBatch  bool
	Err      *Response // non-nil only when the whole frame failed to decode
}

// Decode parses one framed JSON value (as produced by FrameScanner) into a
// DecodeResult. It never returns an error from Go's perspective; malformed
// input is represented as Err, matching the codec's job of always producing
// something the Connection can respond with or discard.
func Decode(frame []byte) DecodeResult {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return DecodeResult{Err: errResponse(NewID(nil), CodeInvalidRequest, "empty request", nil)}
	}

	if trimmed[0] == '[' {
		return decodeBatch(trimmed)
	}
	req, errResp := decodeOne(trimmed)
	if errResp != nil {
		return DecodeResult{Err: errResp}
	}
	return DecodeResult{Requests: []Request{req}}
}

func decodeBatch(raw []byte) DecodeResult {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return DecodeResult{Err: errResponse(NewID(nil), CodeParseError, "parse error: "+err.Error(), nil)}
	}
	if len(rawItems) == 0 {
		return DecodeResult{Err: errResponse(NewID(nil), CodeInvalidRequest, "empty batch", nil)}
	}
	var reqs []Request
	var failed []Response
	for _, item := range rawItems {
		req, errResp := decodeOne(item)
		if errResp != nil {
			failed = append(failed, *errResp)
			continue
		}
		reqs = append(reqs, req)
	}
	return DecodeResult{Requests: reqs, IsBatch: true, Err: batchPartialErr(failed)}
}

// batchPartialErr is a sentinel carrying per-item decode failures that must
// still be included in the batch response alongside successfully-decoded
// requests; the dispatcher merges these with handler-produced responses.
// A nil Response.Err field distinguishes "no partial failures" from "some".
func batchPartialErr(failed []Response) *Response {
	if len(failed) == 0 {
		return nil
	}
	// Only the first failure is surfaced as DecodeResult.Err's sentinel;
	// callers needing all partial failures should use BatchDecodeErrors.
	return &failed[0]
}

// BatchDecodeErrors re-derives the full set of per-item decode failures for
// a batch frame, used by the dispatcher to build the complete batch
// response array. Re-parsing here is cheap relative to request dispatch
// and keeps Decode's primary return shape simple.
func BatchDecodeErrors(frame []byte) []Response {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(frame), &rawItems); err != nil {
		return nil
	}
	var out []Response
	for _, item := range rawItems {
		if _, errResp := decodeOne(item); errResp != nil {
			out = append(out, *errResp)
		}
	}
	return out
}

func decodeOne(raw json.RawMessage) (Request, *Response) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Request{}, errResponse(NewID(nil), CodeParseError, "parse error: "+err.Error(), nil)
	}
	if env.JSONRPC != "2.0" {
		return Request{}, errResponse(idOrNull(env.ID), CodeInvalidRequest, `missing or invalid "jsonrpc" version`, nil)
	}
	if env.Method == "" {
		return Request{}, errResponse(idOrNull(env.ID), CodeInvalidRequest, `missing "method"`, nil)
	}

	var id ID
	if env.ID != nil {
		raw := append(json.RawMessage(nil), *env.ID...)
		id = ID{raw: raw, valid: true}
	}

	// Deep-copy params out of the parse tree: env.Params already holds an
	// independently-allocated []byte from json.Unmarshal, but we clone it
	// again here so the returned Request never shares backing storage with
	// the original frame buffer, which the Connection reuses after Decode
	// returns.
	params := append(json.RawMessage(nil), env.Params...)

	return Request{Method: env.Method, Params: params, ID: id}, nil
}

func idOrNull(raw *json.RawMessage) ID {
	if raw == nil {
		return ID{}
	}
	return ID{raw: append(json.RawMessage(nil), *raw...), valid: true}
}

func errResponse(id ID, code int, msg string, data any) *Response {
	r := NewErrorResponse(id, &Error{Code: code, Message: msg, Data: data})
	return &r
}

// EncodeBatch serializes a slice of responses as a JSON array, the wire
// shape required for a reply to a batch request. Notifications never
// appear here: the dispatcher omits them before calling EncodeBatch.
func EncodeBatch(responses []Response) ([]byte, error) {
	return json.Marshal(responses)
}

// Encode serializes a single response followed by a newline, the framing
// the codec itself expects on read.
func Encode(r Response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
