package domain

import (
	"errors"
	"testing"
)

func TestErrorKindStringCoversAllKinds(t *testing.T) {
	kinds := []ErrorKind{
		ErrInternal, ErrInvalidParams, ErrProjectNotFound, ErrLayerNotFound,
		ErrVoxelNotFound, ErrInvalidCoordinates, ErrUnsupportedFormat,
		ErrOperationFailed, ErrResourceExhausted, ErrPermissionDenied,
		ErrIoError, ErrFormatError, ErrCancelled, ErrDeadlineExceeded, ErrScriptError,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		if s == "unknown" {
			t.Fatalf("expected a named string for kind %d", k)
		}
		if seen[s] {
			t.Fatalf("duplicate String() value %q across distinct ErrorKinds", s)
		}
		seen[s] = true
	}
}

func TestErrorKindStringUnknown(t *testing.T) {
	if ErrorKind(999).String() != "unknown" {
		t.Fatal("expected an out-of-range ErrorKind to stringify as unknown")
	}
}

func TestEngineErrorMessage(t *testing.T) {
	e := NewEngineError(ErrVoxelNotFound, "no voxel at (%d,%d,%d)", 1, 2, 3)
	if e.Kind != ErrVoxelNotFound {
		t.Fatalf("unexpected kind: %v", e.Kind)
	}
	want := "voxel_not_found: no voxel at (1,2,3)"
	if e.Error() != want {
		t.Fatalf("expected %q, got %q", want, e.Error())
	}
}

func TestNewEngineErrorDataCarriesPayload(t *testing.T) {
	e := NewEngineErrorData(ErrInvalidParams, map[string]string{"field": "x"}, "bad field")
	data, ok := e.Data.(map[string]string)
	if !ok || data["field"] != "x" {
		t.Fatalf("expected Data to carry the payload, got %v", e.Data)
	}
}

func TestAsEngineErrorPassesThroughExisting(t *testing.T) {
	original := NewEngineError(ErrIoError, "disk full")
	if AsEngineError(original) != original {
		t.Fatal("expected AsEngineError to return the same *EngineError unchanged")
	}
}

func TestAsEngineErrorWrapsPlainError(t *testing.T) {
	plain := errors.New("boom")
	wrapped := AsEngineError(plain)
	if wrapped.Kind != ErrInternal {
		t.Fatalf("expected ErrInternal for a wrapped plain error, got %v", wrapped.Kind)
	}
	if wrapped.Message != "boom" {
		t.Fatalf("expected message to be preserved, got %q", wrapped.Message)
	}
}

func TestAsEngineErrorNilIsNil(t *testing.T) {
	if AsEngineError(nil) != nil {
		t.Fatal("expected AsEngineError(nil) to return nil")
	}
}
