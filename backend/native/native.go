//go:build cgo && (linux || darwin)

// Package native loads the libys shared library with dlopen and calls its
// GraalVM entry points through cgo.
package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef int (*ys_create_fn)(void*, void**, void**);
typedef int (*ys_tear_down_fn)(void*);
typedef char* (*ys_load_fn)(void*, char*);

static void* ys_dlopen(const char* path) {
	return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static const char* ys_dlerror(void) {
	return dlerror();
}

// Clear dlerror, call dlsym, and report the error (if any) alongside the symbol.
static void* ys_dlsym(void* h, const char* name, const char** err) {
	dlerror();
	void* p = dlsym(h, name);
	*err = dlerror();
	return p;
}

// Handles cross into Go as integers so no Go pointer is kept by C.
static int ys_create_isolate(void* fn, uintptr_t* isolate, uintptr_t* thread) {
	void* iso = NULL;
	void* thr = NULL;
	int rc = ((ys_create_fn)fn)(NULL, &iso, &thr);
	*isolate = (uintptr_t)iso;
	*thread = (uintptr_t)thr;
	return rc;
}

static int ys_tear_down_isolate(void* fn, uintptr_t thread) {
	return ((ys_tear_down_fn)fn)((void*)thread);
}

static char* ys_load_ys_to_json(void* fn, uintptr_t thread, char* input) {
	return ((ys_load_fn)fn)((void*)thread, input);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/caffeineduck/goys/libys"
)

// Supported reports whether this build can load native libraries.
const Supported = true

// Library is a dlopen'ed libys. It implements libys.Library. The handle is
// never closed; the process owns it until exit.
type Library struct {
	path     string
	handle   unsafe.Pointer
	create   unsafe.Pointer
	tearDown unsafe.Pointer
	load     unsafe.Pointer
}

func dlerr() string {
	if e := C.ys_dlerror(); e != nil {
		return C.GoString(e)
	}
	return "unknown error"
}

// Open loads the shared library at path and binds the libys symbols.
// It has the libys.Loader signature.
func Open(path string) (libys.Library, error) {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))

	h := C.ys_dlopen(cs)
	if h == nil {
		return nil, fmt.Errorf("dlopen(%q) failed: %s", path, dlerr())
	}

	lib := &Library{path: path, handle: h}
	for _, sym := range []struct {
		name string
		dst  *unsafe.Pointer
	}{
		{"graal_create_isolate", &lib.create},
		{"graal_tear_down_isolate", &lib.tearDown},
		{"load_ys_to_json", &lib.load},
	} {
		p, err := dlsym(h, sym.name)
		if err != nil {
			C.dlclose(h)
			return nil, err
		}
		*sym.dst = p
	}
	return lib, nil
}

func dlsym(h unsafe.Pointer, name string) (unsafe.Pointer, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))

	var cerr *C.char
	p := C.ys_dlsym(h, cs, &cerr)
	if cerr != nil {
		return nil, fmt.Errorf("dlsym(%q) failed: %s", name, C.GoString(cerr))
	}
	if p == nil {
		return nil, fmt.Errorf("dlsym(%q) failed: symbol is NULL", name)
	}
	return p, nil
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// CreateIsolate calls graal_create_isolate with NULL parameters. The new
// isolate thread is attached to the calling OS thread.
func (l *Library) CreateIsolate() (libys.IsolateHandle, int32, error) {
	var iso, thr C.uintptr_t
	rc := C.ys_create_isolate(l.create, &iso, &thr)
	if rc != 0 {
		return libys.IsolateHandle{}, int32(rc), nil
	}
	return libys.IsolateHandle{Isolate: uintptr(iso), Thread: uintptr(thr)}, 0, nil
}

// TearDownIsolate calls graal_tear_down_isolate.
func (l *Library) TearDownIsolate(thread uintptr) (int32, error) {
	if thread == 0 {
		return 0, fmt.Errorf("null isolate thread")
	}
	return int32(C.ys_tear_down_isolate(l.tearDown, C.uintptr_t(thread))), nil
}

// LoadYSToJSON calls load_ys_to_json. The result lives in the isolate's
// heap, so it is copied before returning.
func (l *Library) LoadYSToJSON(thread uintptr, input []byte) ([]byte, error) {
	if thread == 0 {
		return nil, fmt.Errorf("null isolate thread")
	}

	cs := C.CString(string(input))
	defer C.free(unsafe.Pointer(cs))

	out := C.ys_load_ys_to_json(l.load, C.uintptr_t(thread), cs)
	if out == nil {
		return nil, nil
	}
	return []byte(C.GoString(out)), nil
}
