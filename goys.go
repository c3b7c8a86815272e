package goys

import (
	"sync"

	"github.com/caffeineduck/goys/backend/native"
	"github.com/caffeineduck/goys/libys"
)

var (
	defaultContext     *libys.Context
	defaultContextOnce sync.Once
)

// DefaultContext returns the process-wide context. It loads libraries with
// the native backend and is never closed.
func DefaultContext() *libys.Context {
	defaultContextOnce.Do(func() {
		defaultContext = libys.NewContext(native.Open)
	})
	return defaultContext
}

// New creates a session on the default context.
func New(opts ...libys.SessionOption) (*libys.Session, error) {
	return DefaultContext().NewSession(opts...)
}

// Compile compiles input in a short-lived session. Use New when compiling
// more than once.
func Compile(input string, opts ...libys.SessionOption) (string, error) {
	s, err := New(opts...)
	if err != nil {
		return "", err
	}
	defer s.Close()
	return s.Compile(input)
}

// Load compiles input in a short-lived session and unmarshals the result
// into v.
func Load(input string, v any, opts ...libys.SessionOption) error {
	s, err := New(opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Load(input, v)
}
