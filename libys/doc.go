// Package libys binds the prebuilt YAMLScript compiler library (libys) and
// manages the isolates it runs in.
//
// # Overview
//
// libys is a native image: before it can compile anything, the caller has to
// create an isolate, and every isolate has to be torn down again. A [Context]
// finds and loads the library once; each [Session] owns one isolate.
//
// # Basic Usage
//
//	ctx := libys.NewContext(native.Open)
//
//	session, err := ctx.NewSession()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	out, err := session.Compile("say: Hello World")
//	fmt.Println(out) // {"say":"Hello World"}
//
// # Locating the library
//
// Without [WithLibraryPath], the library file libys.<so|dylib>.<Version> is
// searched for in DYLD_LIBRARY_PATH (macOS only), LD_LIBRARY_PATH,
// /usr/local/lib and ~/.local/lib, in that order. See [Resolver].
//
// # Errors
//
// Failures are reported with the sentinels [ErrLibraryNotFound],
// [ErrIsolateCreationFailed], [ErrNotInitialized], [ErrCompilationFailed] and
// [ErrProtocolViolation]; test them with errors.Is. A [*CompileError]
// carries the cause libys reported.
//
// # Backends
//
// To bind a new kind of library, implement the [Library] interface.
// See [github.com/caffeineduck/goys/backend/native] for the shared-object
// loader and [github.com/caffeineduck/goys/backend/wasm] for WebAssembly builds.
package libys
