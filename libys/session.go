package libys

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Session owns one isolate. Native calls for the isolate all run on a
// dedicated goroutine locked to its OS thread, so a Session may be used from
// any goroutine. Close it when done; a session that is dropped without Close
// is torn down when the garbage collector reclaims it.
type Session struct {
	path    string
	worker  *worker
	cleanup runtime.Cleanup

	mu     sync.RWMutex
	closed bool
}

// NewSession loads the library if needed and creates an isolate for the new
// session.
func (c *Context) NewSession(opts ...SessionOption) (*Session, error) {
	var cfg sessionConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	lib, path, err := c.Library(cfg.libraryPath)
	if err != nil {
		return nil, err
	}

	w := &worker{
		lib:      lib,
		log:      c.logger.With(zap.String("library", path)),
		requests: make(chan request),
		done:     make(chan struct{}),
	}

	ready := make(chan error, 1)
	go w.run(ready)
	if err := <-ready; err != nil {
		return nil, err
	}

	s := &Session{path: path, worker: w}
	s.cleanup = runtime.AddCleanup(s, func(w *worker) { w.stop() }, w)
	return s, nil
}

// Path returns the library file this session is bound to.
func (s *Session) Path() string {
	return s.path
}

// Compile compiles YAMLScript input to JSON text.
func (s *Session) Compile(input string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("%w: no active isolate thread", ErrNotInitialized)
	}

	// libys treats an empty document as an empty mapping.
	if input == "" {
		return "{}", nil
	}
	// The library reads input up to the first NUL.
	if i := strings.IndexByte(input, 0); i >= 0 {
		return "", &CompileError{Cause: fmt.Sprintf("input contains a NUL byte at offset %d", i)}
	}

	reply := make(chan response, 1)
	s.worker.requests <- request{input: []byte(input), reply: reply}
	resp := <-reply
	return resp.output, resp.err
}

// Load compiles input and unmarshals the result into v.
func (s *Session) Load(input string, v any) error {
	out, err := s.Compile(input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// Close tears down the isolate. It waits for in-flight compiles and is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()

	return s.worker.stop()
}

type request struct {
	input []byte
	reply chan response
}

type response struct {
	output string
	err    error
}

// worker must not reference its Session, or the session's cleanup would
// never run.
type worker struct {
	lib      Library
	log      *zap.Logger
	requests chan request
	done     chan struct{}
	stopOnce sync.Once
	closeErr error
}

func (w *worker) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	iso, err := openIsolate(w.lib, w.log)
	if err != nil {
		ready <- err
		return
	}
	ready <- nil

	for req := range w.requests {
		out, err := iso.compile(req.input)
		req.reply <- response{output: out, err: err}
	}

	w.closeErr = iso.close()
}

func (w *worker) stop() error {
	w.stopOnce.Do(func() {
		close(w.requests)
	})
	<-w.done
	return w.closeErr
}
