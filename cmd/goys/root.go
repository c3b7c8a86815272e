package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/goys/backend/native"
	"github.com/caffeineduck/goys/backend/wasm"
	"github.com/caffeineduck/goys/libys"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "goys [file]",
	Short: "Compile YAMLScript to JSON with libys",
	Long: `goys - Compile YAMLScript to JSON using the libys shared library.

Compile files, inline strings, or stdin. libys is found in LD_LIBRARY_PATH,
/usr/local/lib or ~/.local/lib unless --lib is given. A WebAssembly build
of libys can be used instead with --backend wasm.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runCompile, // Default to compile command behavior
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error. Commands
// return errors instead of exiting so their isolates are torn down first.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("lib", "", "Path to libys (default: search the library path)")
	rootCmd.PersistentFlags().String("backend", "", "Backend: native, wasm (default: wasm for .wasm files, else native)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable wasm compilation cache")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log library and isolate lifecycle to stderr")

	addCompileFlags(rootCmd)
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func getBackend(backend, lib string) (string, error) {
	if backend == "" {
		if strings.EqualFold(filepath.Ext(lib), ".wasm") {
			return "wasm", nil
		}
		return "native", nil
	}

	switch backend {
	case "native", "wasm":
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q: use native or wasm", backend)
	}
}

func getLoader(backend string, noCache bool) (libys.Loader, error) {
	switch backend {
	case "wasm":
		var opts []wasm.Option
		if !noCache {
			if dir, err := os.UserCacheDir(); err == nil {
				opts = append(opts, wasm.WithCacheDir(filepath.Join(dir, "goys", "wasm")))
			}
		}
		return wasm.Loader(opts...), nil
	default:
		if !native.Supported {
			return nil, fmt.Errorf("native backend unavailable in this build: use --backend wasm")
		}
		return native.Open, nil
	}
}

// newContext builds a context from the persistent flags. The returned
// session options point sessions at --lib when it is set.
func newContext(cmd *cobra.Command, log *zap.Logger) (*libys.Context, []libys.SessionOption, error) {
	flags := cmd.Root().PersistentFlags()
	lib, _ := flags.GetString("lib")
	backendFlag, _ := flags.GetString("backend")
	noCache, _ := flags.GetBool("no-cache")

	backend, err := getBackend(backendFlag, lib)
	if err != nil {
		return nil, nil, err
	}
	if backend == "wasm" && lib == "" {
		return nil, nil, fmt.Errorf("wasm backend requires --lib")
	}

	loader, err := getLoader(backend, noCache)
	if err != nil {
		return nil, nil, err
	}

	log.Debug("using backend", zap.String("backend", backend), zap.String("lib", lib))

	var sessionOpts []libys.SessionOption
	if lib != "" {
		sessionOpts = append(sessionOpts, libys.WithLibraryPath(lib))
	}
	return libys.NewContext(loader, libys.WithLogger(log)), sessionOpts, nil
}
