package libys

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Version is the libys release this binding is built against. It selects the
// versioned file name the resolver looks for.
const Version = "0.1.96"

// DefaultSystemDir is searched after the dynamic-library path variables.
const DefaultSystemDir = "/usr/local/lib"

// Resolver locates the versioned libys shared library on disk.
type Resolver struct {
	Name      string // base name, "ys" for libys
	Version   string
	GOOS      string
	SystemDir string
	Getenv    func(string) string
	HomeDir   func() (string, error)
}

// DefaultResolver returns a Resolver for the running platform.
func DefaultResolver() Resolver {
	return Resolver{
		Name:      "ys",
		Version:   Version,
		GOOS:      runtime.GOOS,
		SystemDir: DefaultSystemDir,
		Getenv:    os.Getenv,
		HomeDir:   os.UserHomeDir,
	}
}

// Extension returns the shared-library extension for the resolver's platform.
func (r Resolver) Extension() string {
	if r.GOOS == "darwin" {
		return "dylib"
	}
	return "so"
}

// FileName returns the expected library file name, e.g. libys.so.0.1.96.
func (r Resolver) FileName() string {
	return "lib" + r.Name + "." + r.Extension() + "." + r.Version
}

// UserDir returns the per-user library directory, ~/.local/lib.
func (r Resolver) UserDir() string {
	home := r.getenv("HOME")
	if home == "" && r.HomeDir != nil {
		if dir, err := r.HomeDir(); err == nil {
			home = dir
		}
	}
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "lib")
}

// Candidates returns every path the resolver would try, in search order.
func (r Resolver) Candidates() []string {
	name := r.FileName()

	var dirs []string
	if r.GOOS == "darwin" {
		dirs = append(dirs, splitPathList(r.getenv("DYLD_LIBRARY_PATH"))...)
	}
	dirs = append(dirs, splitPathList(r.getenv("LD_LIBRARY_PATH"))...)
	if r.SystemDir != "" {
		dirs = append(dirs, r.SystemDir)
	}
	if dir := r.UserDir(); dir != "" {
		dirs = append(dirs, dir)
	}

	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}

// Resolve returns explicit unchanged when it is set. Otherwise it returns the
// first candidate that exists, or a *NotFoundError.
func (r Resolver) Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	candidates := r.Candidates()
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if abs, err := filepath.Abs(path); err == nil {
				return abs, nil
			}
			return path, nil
		}
	}
	return "", &NotFoundError{Name: r.FileName(), Searched: candidates}
}

func (r Resolver) getenv(key string) string {
	if r.Getenv == nil {
		return os.Getenv(key)
	}
	return r.Getenv(key)
}

func splitPathList(value string) []string {
	if value == "" {
		return nil
	}
	var dirs []string
	for _, dir := range strings.Split(value, ":") {
		if dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
