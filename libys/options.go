package libys

import "go.uber.org/zap"

// ContextOption configures a Context at creation time.
type ContextOption func(*contextConfig)

type contextConfig struct {
	resolver Resolver
	logger   *zap.Logger
}

func defaultContextConfig() contextConfig {
	return contextConfig{
		resolver: DefaultResolver(),
	}
}

// WithResolver replaces the default library search.
func WithResolver(r Resolver) ContextOption {
	return func(c *contextConfig) {
		c.resolver = r
	}
}

// WithLogger sets the logger for the context and every session it creates.
// Without it the package logger (see SetLogger) is used.
func WithLogger(l *zap.Logger) ContextOption {
	return func(c *contextConfig) {
		c.logger = l
	}
}

// SessionOption configures a single Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	libraryPath string
}

// WithLibraryPath makes the session use the library at path instead of the
// resolved default. The path is not checked until the library is loaded.
func WithLibraryPath(path string) SessionOption {
	return func(c *sessionConfig) {
		c.libraryPath = path
	}
}
