package wasm

// Option configures how a module is compiled and run.
type Option func(*config)

type config struct {
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = wazero default
}

func defaultConfig() config {
	return config{}
}

// WithCacheDir enables wazero's persistent compilation cache in dir.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithMemoryLimit caps the linear memory of every isolate instance.
// Each page is 64KB.
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)
