package libys

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLibraryNotFound       = errors.New("library not found")
	ErrLibraryLoad           = errors.New("library load failed")
	ErrIsolateCreationFailed = errors.New("isolate creation failed")
	ErrTeardownFailed        = errors.New("isolate teardown failed")
	ErrNotInitialized        = errors.New("not initialized")
	ErrCompilationFailed     = errors.New("compilation failed")
	ErrProtocolViolation     = errors.New("protocol violation")
)

// NotFoundError reports that no candidate location held the library file.
type NotFoundError struct {
	Name     string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found (searched %s); specify the path manually",
		e.Name, strings.Join(e.Searched, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrLibraryNotFound
}

// CompileError is returned when libys rejects the input. Cause holds the
// text the library reported, empty when it returned nothing at all.
type CompileError struct {
	Cause string
	Type  string
}

func (e *CompileError) Error() string {
	if e.Cause == "" {
		return ErrCompilationFailed.Error()
	}
	return e.Cause
}

func (e *CompileError) Is(target error) bool {
	return target == ErrCompilationFailed
}
