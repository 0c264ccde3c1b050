// Package registry implements the Method Registry & Dispatcher (C5): the
// method-name → handler table, parameter translation from either
// positional (array) or named (object) params, and validation before any
// EngineOp is constructed.
//
// Grounded on the teacher's JSON-schema-subset request validator: params
// are decoded into the engine's typed parameter structs via
// encoding/json, and a decode failure is reported the same way the
// teacher's validator reports a type mismatch — naming the offending
// field and the type it expected.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/voxelcore/voxeld/internal/domain"
	"github.com/voxelcore/voxeld/internal/rpc"
)

// FieldError names the single parameter that failed decode or validation,
// so Decode can surface it in the InvalidParams error's data payload
// instead of just the method name.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }

func fieldErrorf(field, format string, args ...any) error {
	return &FieldError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Spec describes one recognized method: how to decode its params into an
// EngineOp, and the positional field order for array-style params.
type Spec struct {
	Name      string
	Kind      domain.OpKind
	Mutates   bool
	Positions []string // field names in positional-param order; nil if method takes no params
	Decode    func(obj map[string]any) (any, error)
}

// Registry is the closed set of recognized methods, built once at daemon
// startup. Method names are matched case-sensitively; a "goxel."-prefixed
// alias is accepted for every registered name.
type Registry struct {
	specs map[string]*Spec
}

func New() *Registry {
	r := &Registry{specs: make(map[string]*Spec)}
	for _, s := range builtinSpecs() {
		r.register(s)
	}
	return r
}

func (r *Registry) register(s *Spec) {
	r.specs[s.Name] = s
}

// Resolve looks up a method, accepting both its bare name and the
// "goxel."-prefixed compatibility alias.
func (r *Registry) Resolve(method string) (*Spec, bool) {
	if s, ok := r.specs[method]; ok {
		return s, true
	}
	if strings.HasPrefix(method, "goxel.") {
		if s, ok := r.specs[strings.TrimPrefix(method, "goxel.")]; ok {
			return s, true
		}
	}
	return nil, false
}

// Names returns every recognized method name, used by the list_methods
// handler.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	return out
}

// Translate converts raw JSON-RPC params (absent, an array, or an object)
// into the map[string]any shape a Spec.Decode function consumes. An array
// is zipped against Positions; an object is used as-is. Extra positional
// values beyond len(Positions) are rejected with InvalidParams; that error
// names the method and the allowed count, not a single parameter.
func (r *Registry) Translate(s *Spec, raw json.RawMessage) (map[string]any, *rpc.Error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var arr []any
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "params: " + err.Error()}
		}
		if len(arr) > len(s.Positions) {
			return nil, &rpc.Error{
				Code:    rpc.CodeInvalidParams,
				Message: fmt.Sprintf("%s: too many positional params, expected at most %d", s.Name, len(s.Positions)),
			}
		}
		obj := make(map[string]any, len(arr))
		for i, v := range arr {
			obj[s.Positions[i]] = v
		}
		return obj, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: "params must be an object or array: " + err.Error()}
	}
	return obj, nil
}

// Decode runs Translate followed by the method's typed Decode function,
// producing the final EngineOp-ready params value or a well-formed
// InvalidParams error naming the offending field.
func (r *Registry) Decode(s *Spec, raw json.RawMessage) (any, *rpc.Error) {
	obj, rerr := r.Translate(s, raw)
	if rerr != nil {
		return nil, rerr
	}
	params, err := s.Decode(obj)
	if err != nil {
		data := map[string]string{"method": s.Name}
		var ferr *FieldError
		if errors.As(err, &ferr) && ferr.Field != "" {
			data["field"] = ferr.Field
		}
		return nil, &rpc.Error{
			Code:    rpc.CodeInvalidParams,
			Message: fmt.Sprintf("%s: %v", s.Name, err),
			Data:    data,
		}
	}
	return params, nil
}

// decodeInto re-marshals obj and unmarshals it into a fresh *T, giving
// every Spec.Decode function strict field-tag-driven decoding without
// hand-rolling type assertions per parameter.
func decodeInto[T any](obj map[string]any) (T, error) {
	var zero T
	b, err := json.Marshal(obj)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		var terr *json.UnmarshalTypeError
		if errors.As(err, &terr) && terr.Field != "" {
			return zero, &FieldError{Field: terr.Field, Err: err}
		}
		return zero, err
	}
	return out, nil
}

func requireString(obj map[string]any, field string) (string, error) {
	v, ok := obj[field]
	if !ok {
		return "", fieldErrorf(field, "missing required parameter %q, expected string", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldErrorf(field, "parameter %q: expected string", field)
	}
	return s, nil
}
