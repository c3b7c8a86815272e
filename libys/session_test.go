package libys_test

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/goys/libys"
	"github.com/caffeineduck/goys/libys/libystest"
)

func newTestSession(t *testing.T, stub *libystest.Library) *libys.Session {
	t.Helper()

	ctx := libys.NewContext(stub.Loader())
	session, err := ctx.NewSession(libys.WithLibraryPath("/stub/libys.so"))
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session
}

func TestSessionBasic(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	defer session.Close()

	out, err := session.Compile("say: Hello World")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if out != `{"say":"Hello World"}` {
		t.Errorf("unexpected output: %s", out)
	}

	if got := stub.Inputs(); len(got) != 1 || got[0] != "say: Hello World" {
		t.Errorf("unexpected inputs: %q", got)
	}
}

func TestSessionLoad(t *testing.T) {
	session := newTestSession(t, libystest.New(nil))
	defer session.Close()

	var doc map[string]string
	if err := session.Load("\nsay: Hello World\n", &doc); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if doc["say"] != "Hello World" {
		t.Errorf("expected say=Hello World, got %v", doc)
	}
}

func TestSessionEmptyInput(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	defer session.Close()

	out, err := session.Compile("")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if out != "{}" {
		t.Errorf("expected {}, got %q", out)
	}
	if loads := stub.Stats().Loads; loads != 0 {
		t.Errorf("empty input crossed the boundary %d times", loads)
	}
}

func TestSessionCompileError(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	defer session.Close()

	_, err := session.Compile("invalid:\n  - yaml:\n    syntax\n")
	if !errors.Is(err, libys.ErrCompilationFailed) {
		t.Fatalf("expected ErrCompilationFailed, got: %v", err)
	}

	var compileErr *libys.CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if compileErr.Cause != `Parse error at line 1: "invalid:"` {
		t.Errorf("unexpected cause: %q", compileErr.Cause)
	}
	if err.Error() != compileErr.Cause {
		t.Errorf("error text %q should equal cause %q", err.Error(), compileErr.Cause)
	}
}

func TestSessionNULInput(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	defer session.Close()

	_, err := session.Compile("a: 1\x00b: 2")
	if !errors.Is(err, libys.ErrCompilationFailed) {
		t.Fatalf("expected ErrCompilationFailed, got: %v", err)
	}
	if !strings.Contains(err.Error(), "NUL byte at offset 4") {
		t.Errorf("unexpected error: %v", err)
	}
	if loads := stub.Stats().Loads; loads != 0 {
		t.Errorf("input with NUL reached the library %d times", loads)
	}

	// The session stays usable.
	if _, err := session.Compile("a: 1"); err != nil {
		t.Errorf("compile after rejected input failed: %v", err)
	}
}

func TestSessionNullResult(t *testing.T) {
	session := newTestSession(t, libystest.New(libystest.Null))
	defer session.Close()

	_, err := session.Compile("a: b")
	if !errors.Is(err, libys.ErrCompilationFailed) {
		t.Fatalf("expected ErrCompilationFailed, got: %v", err)
	}
	if err.Error() != "compilation failed" {
		t.Errorf("expected generic message, got: %v", err)
	}
}

func TestSessionProtocolViolation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not_json", "Segmentation fault"},
		{"no_tags", `{"result": 1}`},
		{"both_tags", `{"data": 1, "error": {"cause": "x"}}`},
		{"array", `[1, 2]`},
		{"error_not_object", `{"error": "boom"}`},
		{"invalid_utf8", "{\"data\": \"\xff\"}"},
		{"trailing", `{"data": 1} {"data": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newTestSession(t, libystest.New(libystest.Raw(tt.raw)))
			defer session.Close()

			_, err := session.Compile("a: b")
			if !errors.Is(err, libys.ErrProtocolViolation) {
				t.Errorf("expected ErrProtocolViolation, got: %v", err)
			}
		})
	}
}

func TestSessionCallFailure(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	defer session.Close()

	stub.CallErr = errors.New("call mechanism broke")
	_, err := session.Compile("a: b")
	stub.CallErr = nil

	if !errors.Is(err, libys.ErrCompilationFailed) {
		t.Fatalf("expected ErrCompilationFailed, got: %v", err)
	}
	if !strings.Contains(err.Error(), "call mechanism broke") {
		t.Errorf("expected wrapped cause, got: %v", err)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)

	if err := session.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	stats := stub.Stats()
	if stats.Creates != 1 || stats.TearDowns != 1 {
		t.Errorf("expected 1 create and 1 teardown, got %+v", stats)
	}
	if stub.Live() != 0 {
		t.Errorf("expected no live isolates, got %d", stub.Live())
	}
}

func TestSessionClosedError(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	session.Close()

	for _, input := range []string{"a: b", ""} {
		_, err := session.Compile(input)
		if !errors.Is(err, libys.ErrNotInitialized) {
			t.Errorf("Compile(%q) after close: expected ErrNotInitialized, got: %v", input, err)
		}
	}
	if loads := stub.Stats().Loads; loads != 0 {
		t.Errorf("closed session crossed the boundary %d times", loads)
	}
}

func TestSessionTeardownFailure(t *testing.T) {
	stub := libystest.New(nil)
	stub.TearDownCode = 3
	session := newTestSession(t, stub)

	err := session.Close()
	if !errors.Is(err, libys.ErrTeardownFailed) {
		t.Fatalf("expected ErrTeardownFailed, got: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second close should be a no-op, got: %v", err)
	}
	if tearDowns := stub.Stats().TearDowns; tearDowns != 1 {
		t.Errorf("expected 1 teardown, got %d", tearDowns)
	}
}

func TestSessionIsolateCreationFailed(t *testing.T) {
	stub := libystest.New(nil)
	stub.CreateCode = 7

	ctx := libys.NewContext(stub.Loader())
	_, err := ctx.NewSession(libys.WithLibraryPath("/stub/libys.so"))
	if !errors.Is(err, libys.ErrIsolateCreationFailed) {
		t.Fatalf("expected ErrIsolateCreationFailed, got: %v", err)
	}
	if !strings.Contains(err.Error(), "7") {
		t.Errorf("expected return code in error, got: %v", err)
	}
	if stub.Stats().TearDowns != 0 {
		t.Error("failed creation must not be torn down")
	}
}

func TestSessionConcurrentCompile(t *testing.T) {
	stub := libystest.New(nil)
	session := newTestSession(t, stub)
	defer session.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := session.Compile("k: v"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent compile failed: %v", err)
	}
	if loads := stub.Stats().Loads; loads != 20 {
		t.Errorf("expected 20 loads, got %d", loads)
	}
}

func TestSessionCloseWaitsForCompile(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	stub := libystest.New(func(input string) (string, bool) {
		close(started)
		<-release
		return libystest.DataEnvelope(1), true
	})
	session := newTestSession(t, stub)

	result := make(chan error, 1)
	go func() {
		_, err := session.Compile("slow: yes")
		result <- err
	}()
	<-started

	closed := make(chan struct{})
	go func() {
		session.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a compile was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-result; err != nil {
		t.Fatalf("in-flight compile failed: %v", err)
	}
	<-closed

	if stub.Live() != 0 {
		t.Errorf("expected isolate torn down, %d live", stub.Live())
	}
}

func TestSessionDroppedIsTornDown(t *testing.T) {
	stub := libystest.New(nil)
	func() {
		session := newTestSession(t, stub)
		if _, err := session.Compile("a: b"); err != nil {
			t.Fatalf("compile failed: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for stub.Live() != 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if stub.Live() != 0 {
		t.Error("dropped session was never torn down")
	}
}

func TestMultipleSessions(t *testing.T) {
	stub := libystest.New(nil)
	ctx := libys.NewContext(stub.Loader())

	session1, err := ctx.NewSession(libys.WithLibraryPath("/stub/libys.so"))
	if err != nil {
		t.Fatalf("failed to create session1: %v", err)
	}
	defer session1.Close()

	session2, err := ctx.NewSession(libys.WithLibraryPath("/stub/libys.so"))
	if err != nil {
		t.Fatalf("failed to create session2: %v", err)
	}
	defer session2.Close()

	if stub.Live() != 2 {
		t.Errorf("expected 2 live isolates, got %d", stub.Live())
	}

	session1.Close()
	if _, err := session2.Compile("still: alive"); err != nil {
		t.Errorf("session2 should survive session1 close: %v", err)
	}
}
