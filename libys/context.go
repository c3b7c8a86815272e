package libys

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Context holds the state shared by every session: the resolved default
// library path and the libraries loaded so far. Each path is resolved and
// loaded at most once, then reused read-only.
//
// Programs normally share one Context (see the goys package); tests create
// their own, pointing at a stub Library.
type Context struct {
	loader   Loader
	resolver Resolver
	logger   *zap.Logger

	mu       sync.Mutex
	resolved string
	libs     map[string]Library
	closed   bool
}

// NewContext creates a Context that opens libraries with loader.
func NewContext(loader Loader, opts ...ContextOption) *Context {
	cfg := defaultContextConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.logger
	if log == nil {
		log = Logger()
	}

	return &Context{
		loader:   loader,
		resolver: cfg.resolver,
		logger:   log,
		libs:     make(map[string]Library),
	}
}

// Library returns the library at explicit, or at the resolved default path
// when explicit is empty, loading it on first use.
func (c *Context) Library(explicit string) (Library, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, "", fmt.Errorf("%w: context closed", ErrNotInitialized)
	}

	path := explicit
	if path == "" {
		if c.resolved == "" {
			resolved, err := c.resolver.Resolve("")
			if err != nil {
				return nil, "", err
			}
			c.logger.Debug("resolved libys", zap.String("path", resolved))
			c.resolved = resolved
		}
		path = c.resolved
	}

	if lib, ok := c.libs[path]; ok {
		return lib, path, nil
	}

	if c.loader == nil {
		return nil, "", fmt.Errorf("%w: no loader configured", ErrNotInitialized)
	}
	lib, err := c.loader(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrLibraryLoad, path, err)
	}
	c.logger.Debug("loaded libys", zap.String("path", path))

	c.libs[path] = lib
	return lib, path, nil
}

// ResolvedPath returns the default library path once it has been resolved.
func (c *Context) ResolvedPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Close releases loaded libraries that hold Go-side resources. Sessions
// must be closed first. The process-wide context is never closed.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for path, lib := range c.libs {
		if closer, ok := lib.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", path, err))
			}
		}
		delete(c.libs, path)
	}
	return errors.Join(errs...)
}
