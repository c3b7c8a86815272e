//go:build !cgo || !(linux || darwin)

// Package native loads the libys shared library with dlopen. This build has
// no cgo, so Open always fails; use the wasm backend instead.
package native

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/goys/libys"
)

// Supported reports whether this build can load native libraries.
const Supported = false

// ErrUnsupported is returned by Open when the binary was built without cgo.
var ErrUnsupported = errors.New("native libys backend requires cgo on linux or darwin")

// Open always fails in this build.
func Open(path string) (libys.Library, error) {
	return nil, fmt.Errorf("%w: cannot load %s", ErrUnsupported, path)
}
