package goys_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/caffeineduck/goys"
	"github.com/caffeineduck/goys/libys"
)

// newSession opens a session on the installed libys, skipping the test when
// the library is not available on this machine.
func newSession(t *testing.T) *libys.Session {
	t.Helper()
	session, err := goys.New()
	if errors.Is(err, libys.ErrLibraryNotFound) || errors.Is(err, libys.ErrLibraryLoad) {
		t.Skipf("libys not available: %v", err)
	}
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestBasicCompilation(t *testing.T) {
	session := newSession(t)

	out, err := session.Compile("\nsay: Hello World\n")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, out)
	}
	if doc["say"] != "Hello World" {
		t.Errorf("expected say = Hello World, got %v", doc["say"])
	}
}

func TestEmptyInput(t *testing.T) {
	session := newSession(t)

	var doc map[string]any
	if err := session.Load("", &doc); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc == nil || len(doc) != 0 {
		t.Errorf("expected empty mapping, got %v", doc)
	}
}

func TestInvalidYAML(t *testing.T) {
	session := newSession(t)

	_, err := session.Compile("\ninvalid:\n  - yaml:\n    syntax\n")
	if !errors.Is(err, libys.ErrCompilationFailed) {
		t.Fatalf("expected ErrCompilationFailed, got: %v", err)
	}

	var compileErr *libys.CompileError
	if errors.As(err, &compileErr) && compileErr.Cause == "" {
		t.Log("libys returned no cause")
	}
}

func TestDefaultContextShared(t *testing.T) {
	if goys.DefaultContext() != goys.DefaultContext() {
		t.Error("DefaultContext should return the same context")
	}
}
