// Package goys compiles YAMLScript to JSON by calling the prebuilt libys
// shared library.
//
// # Overview
//
// libys is a GraalVM native image. Every [libys.Session] owns one isolate
// inside it, created when the session is opened and torn down exactly once
// by Close. The library itself is located and loaded once per process.
//
// # Basic Usage
//
//	// One-off compile
//	out, err := goys.Compile("say: Hello World")
//	fmt.Println(out) // {"say":"Hello World"}
//
//	// Session reused for many documents
//	session, err := goys.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	var doc map[string]any
//	err = session.Load(input, &doc)
//
// # Locating libys
//
// Without an explicit path the library file libys.so.<version>
// (libys.dylib.<version> on macOS) is searched for in DYLD_LIBRARY_PATH
// (macOS only), LD_LIBRARY_PATH, /usr/local/lib and ~/.local/lib:
//
//	session, err := goys.New(libys.WithLibraryPath("/opt/ys/libys.so.0.1.96"))
//
// See the [libys] package for the session API and error types, and
// the backend/wasm package for running a WebAssembly build of libys without cgo.
package goys
