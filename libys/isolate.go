package libys

import (
	"fmt"

	"go.uber.org/zap"
)

// isolate owns one native execution context. It is only touched by the
// session worker goroutine that opened it.
type isolate struct {
	lib    Library
	handle IsolateHandle
	log    *zap.Logger
}

func openIsolate(lib Library, log *zap.Logger) (*isolate, error) {
	handle, code, err := lib.CreateIsolate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIsolateCreationFailed, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("%w: graal_create_isolate returned %d", ErrIsolateCreationFailed, code)
	}
	if handle.IsZero() {
		return nil, fmt.Errorf("%w: no isolate thread returned", ErrIsolateCreationFailed)
	}

	log.Debug("isolate created", zap.Uintptr("thread", handle.Thread))
	return &isolate{lib: lib, handle: handle, log: log}, nil
}

// close tears the isolate down once; later calls do nothing.
func (i *isolate) close() error {
	if i.handle.IsZero() {
		return nil
	}
	thread := i.handle.Thread
	i.handle = IsolateHandle{}

	code, err := i.lib.TearDownIsolate(thread)
	if err != nil {
		i.log.Warn("isolate teardown failed", zap.Uintptr("thread", thread), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrTeardownFailed, err)
	}
	if code != 0 {
		i.log.Warn("isolate teardown failed", zap.Uintptr("thread", thread), zap.Int32("code", code))
		return fmt.Errorf("%w: graal_tear_down_isolate returned %d", ErrTeardownFailed, code)
	}

	i.log.Debug("isolate torn down", zap.Uintptr("thread", thread))
	return nil
}

func (i *isolate) compile(input []byte) (string, error) {
	if i.handle.IsZero() {
		return "", fmt.Errorf("%w: no active isolate thread", ErrNotInitialized)
	}

	raw, err := i.lib.LoadYSToJSON(i.handle.Thread, input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompilationFailed, err)
	}
	if raw == nil {
		return "", &CompileError{}
	}

	env, err := DecodeEnvelope(raw)
	if err != nil {
		return "", err
	}
	return env.Result()
}
