// Command download fetches a libys build into the per-user library
// directory (~/.local/lib) under the file name goys searches for.
//
//	go run ./internal/tools/download <url> [output]
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/caffeineduck/goys/libys"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: download <url> [output]")
		os.Exit(1)
	}

	url := os.Args[1]
	output := defaultOutput(libys.DefaultResolver())
	if len(os.Args) == 3 {
		output = os.Args[2]
	}

	if _, err := os.Stat(output); err == nil {
		fmt.Fprintf(os.Stderr, "%s already exists\n", output)
		return
	}

	if err := download(url, output); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "saved %s\n", output)
}

func defaultOutput(r libys.Resolver) string {
	return filepath.Join(r.UserDir(), r.FileName())
}

// download writes to a temporary file first so an interrupted transfer
// never leaves a truncated library where goys would find it.
func download(url, output string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o755); err != nil {
		return err
	}
	return os.Rename(tmp, output)
}
