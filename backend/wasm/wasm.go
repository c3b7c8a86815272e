// Package wasm loads a WebAssembly build of libys with wazero.
//
// The module must export its linear memory as "memory", an allocator pair
// malloc(i32) i32 / free(i32), and the three libys entry points with wasm32
// pointers:
//
//	graal_create_isolate(params, isolate_out, thread_out i32) i32
//	graal_tear_down_isolate(thread i32) i32
//	load_ys_to_json(thread, input i32) i32
//
// Every isolate runs in its own module instance, so isolates never share
// linear memory.
package wasm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/caffeineduck/goys/libys"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	exportMemory   = "memory"
	exportMalloc   = "malloc"
	exportFree     = "free"
	exportCreate   = "graal_create_isolate"
	exportTearDown = "graal_tear_down_isolate"
	exportLoad     = "load_ys_to_json"
)

var requiredFunctions = []string{exportMalloc, exportFree, exportCreate, exportTearDown, exportLoad}

// Library is a compiled libys module. It implements libys.Library.
type Library struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache

	mu        sync.Mutex
	next      uintptr
	instances map[uintptr]*instance
	closed    bool
}

type instance struct {
	mod      api.Module
	thread   uint32
	malloc   api.Function
	free     api.Function
	create   api.Function
	tearDown api.Function
	load     api.Function
}

// Open reads and compiles the module at path with default options.
// It has the libys.Loader signature.
func Open(path string) (libys.Library, error) {
	return Loader()(path)
}

// Loader returns a libys.Loader that compiles modules with opts.
func Loader(opts ...Option) libys.Loader {
	return func(path string) (libys.Library, error) {
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}
		lib, err := New(context.Background(), code, opts...)
		if err != nil {
			return nil, err
		}
		return lib, nil
	}
}

// New compiles code and checks that it exports the libys ABI.
func New(ctx context.Context, code []byte, opts ...Option) (*Library, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig()
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	l := &Library{
		runtime:   rt,
		cache:     cache,
		instances: make(map[uintptr]*instance),
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		l.Close()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("compile module: %w", err)
	}
	l.compiled = compiled

	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		l.Close()
		return nil, fmt.Errorf("module does not export %q", exportMemory)
	}
	exported := compiled.ExportedFunctions()
	for _, name := range requiredFunctions {
		if _, ok := exported[name]; !ok {
			l.Close()
			return nil, fmt.Errorf("module does not export %q", name)
		}
	}

	return l, nil
}

// CreateIsolate instantiates the module and calls graal_create_isolate in
// the new instance.
func (l *Library) CreateIsolate() (libys.IsolateHandle, int32, error) {
	ctx := context.Background()

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return libys.IsolateHandle{}, 0, fmt.Errorf("library closed")
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize")

	mod, err := l.runtime.InstantiateModule(ctx, l.compiled, moduleConfig)
	if err != nil {
		return libys.IsolateHandle{}, 0, fmt.Errorf("instantiate module: %w", err)
	}

	inst := &instance{
		mod:      mod,
		malloc:   mod.ExportedFunction(exportMalloc),
		free:     mod.ExportedFunction(exportFree),
		create:   mod.ExportedFunction(exportCreate),
		tearDown: mod.ExportedFunction(exportTearDown),
		load:     mod.ExportedFunction(exportLoad),
	}

	isolatePtr, threadPtr, code, err := inst.createIsolate(ctx)
	if err != nil || code != 0 {
		mod.Close(ctx)
		return libys.IsolateHandle{}, code, err
	}
	inst.thread = threadPtr

	l.mu.Lock()
	l.next++
	key := l.next
	l.instances[key] = inst
	l.mu.Unlock()

	return libys.IsolateHandle{Isolate: uintptr(isolatePtr), Thread: key}, 0, nil
}

// TearDownIsolate calls graal_tear_down_isolate and discards the instance.
func (l *Library) TearDownIsolate(thread uintptr) (int32, error) {
	ctx := context.Background()

	l.mu.Lock()
	inst, ok := l.instances[thread]
	delete(l.instances, thread)
	l.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown isolate thread %d", thread)
	}
	defer inst.mod.Close(ctx)

	results, err := inst.tearDown.Call(ctx, uint64(inst.thread))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", exportTearDown, err)
	}
	return int32(uint32(results[0])), nil
}

// LoadYSToJSON copies input into the instance's memory, calls
// load_ys_to_json and copies the NUL-terminated result back out.
func (l *Library) LoadYSToJSON(thread uintptr, input []byte) ([]byte, error) {
	ctx := context.Background()

	l.mu.Lock()
	inst, ok := l.instances[thread]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown isolate thread %d", thread)
	}

	buf := make([]byte, len(input)+1)
	copy(buf, input)

	ptr, err := inst.alloc(ctx, uint32(len(buf)))
	if err != nil {
		return nil, err
	}
	defer inst.release(ctx, ptr)

	if !inst.mod.Memory().Write(ptr, buf) {
		return nil, fmt.Errorf("write input: %d bytes at %#x out of range", len(buf), ptr)
	}

	results, err := inst.load.Call(ctx, uint64(inst.thread), uint64(ptr))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", exportLoad, err)
	}

	out := uint32(results[0])
	if out == 0 {
		return nil, nil
	}
	return inst.readCString(out)
}

// Instances returns the number of live isolates.
func (l *Library) Instances() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.instances)
}

// Close releases the runtime and every instance still open.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.instances = make(map[uintptr]*instance)

	ctx := context.Background()

	var errs []error
	if err := l.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if l.cache != nil {
		if err := l.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (i *instance) createIsolate(ctx context.Context) (isolatePtr, threadPtr uint32, code int32, err error) {
	out, err := i.alloc(ctx, 8)
	if err != nil {
		return 0, 0, 0, err
	}
	defer i.release(ctx, out)

	results, err := i.create.Call(ctx, 0, uint64(out), uint64(out+4))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", exportCreate, err)
	}
	if code = int32(uint32(results[0])); code != 0 {
		return 0, 0, code, nil
	}

	mem := i.mod.Memory()
	isolatePtr, ok1 := mem.ReadUint32Le(out)
	threadPtr, ok2 := mem.ReadUint32Le(out + 4)
	if !ok1 || !ok2 {
		return 0, 0, 0, fmt.Errorf("read isolate handles at %#x out of range", out)
	}
	if threadPtr == 0 {
		return 0, 0, 0, fmt.Errorf("%s returned a null thread", exportCreate)
	}
	return isolatePtr, threadPtr, 0, nil
}

func (i *instance) alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := i.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", exportMalloc, err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("%s(%d): out of memory", exportMalloc, size)
	}
	return ptr, nil
}

func (i *instance) release(ctx context.Context, ptr uint32) {
	i.free.Call(ctx, uint64(ptr))
}

// readCString copies the NUL-terminated string at ptr out of guest memory.
func (i *instance) readCString(ptr uint32) ([]byte, error) {
	mem := i.mod.Memory()
	size := mem.Size()
	if ptr >= size {
		return nil, fmt.Errorf("result pointer %#x out of range", ptr)
	}
	view, ok := mem.Read(ptr, size-ptr)
	if !ok {
		return nil, fmt.Errorf("read result at %#x out of range", ptr)
	}
	end := bytes.IndexByte(view, 0)
	if end < 0 {
		return nil, fmt.Errorf("result at %#x is not NUL-terminated", ptr)
	}
	return bytes.Clone(view[:end]), nil
}
