package libys

// IsolateHandle identifies one execution context inside a loaded library.
// The zero value means "no isolate" and is what a closed session holds.
type IsolateHandle struct {
	Isolate uintptr
	Thread  uintptr
}

// IsZero reports whether h is the closed sentinel.
func (h IsolateHandle) IsZero() bool {
	return h.Thread == 0
}

// Library is the symbol table of a loaded libys build.
// Implement this interface to bind a new backend (see backend/native and
// backend/wasm).
//
// A returned error means the call mechanism itself failed; the int32 codes and
// nil results are the library's own answers. Implementations must be safe for
// use by several sessions at once, but a given thread handle is only ever
// passed in from the one goroutine that created it.
type Library interface {
	// CreateIsolate calls graal_create_isolate with null parameters.
	// A non-zero code means no isolate was created.
	CreateIsolate() (IsolateHandle, int32, error)

	// TearDownIsolate calls graal_tear_down_isolate.
	TearDownIsolate(thread uintptr) (int32, error)

	// LoadYSToJSON passes input as a NUL-terminated string to load_ys_to_json.
	// The result is copied out of library-owned memory before returning;
	// a nil slice means the library returned NULL.
	LoadYSToJSON(thread uintptr, input []byte) ([]byte, error)
}

// Loader opens the library at path.
type Loader func(path string) (Library, error)
