package libys_test

import (
	"errors"
	"testing"

	"github.com/caffeineduck/goys/libys"
)

func TestDecodeEnvelopeData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"mapping", `{"data": {"say": "Hello World"}}`, `{"say":"Hello World"}`},
		{"sorted_keys", `{"data": {"b": 1, "a": 2}}`, `{"a":2,"b":1}`},
		{"big_number", `{"data": {"n": 12345678901234567890}}`, `{"n":12345678901234567890}`},
		{"no_html_escape", `{"data": "<a&b>"}`, `"<a&b>"`},
		{"null", `{"data": null}`, `null`},
		{"list", `{"data": [1, "two", true]}`, `[1,"two",true]`},
		{"null_error", `{"data": {"a": 1}, "error": null}`, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := libys.DecodeEnvelope([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if env.Error != nil {
				t.Fatalf("unexpected error variant: %+v", env.Error)
			}
			got, err := env.Result()
			if err != nil {
				t.Fatalf("result failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeEnvelopeError(t *testing.T) {
	env, err := libys.DecodeEnvelope([]byte(`{"error": {"cause": "bad indent", "type": "parse", "trace": [{"at": 1}]}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Error == nil || env.Error.Cause != "bad indent" {
		t.Fatalf("expected error variant with cause, got %+v", env)
	}

	_, err = env.Result()
	var compileErr *libys.CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if compileErr.Type != "parse" || err.Error() != "bad indent" {
		t.Errorf("unexpected compile error: %+v", compileErr)
	}
}

func TestDecodeEnvelopeErrorWithoutCause(t *testing.T) {
	env, err := libys.DecodeEnvelope([]byte(`{"error": {}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	_, err = env.Result()
	if !errors.Is(err, libys.ErrCompilationFailed) || err.Error() != "compilation failed" {
		t.Errorf("expected generic compilation failure, got %v", err)
	}
}

func TestDecodeEnvelopeViolation(t *testing.T) {
	for _, raw := range []string{``, `null`, `{}`, `"data"`, `{"data": 1, "error": {}}`, `{"error": null}`} {
		if _, err := libys.DecodeEnvelope([]byte(raw)); !errors.Is(err, libys.ErrProtocolViolation) {
			t.Errorf("DecodeEnvelope(%q): expected ErrProtocolViolation, got %v", raw, err)
		}
	}
}
