package main

import (
	"fmt"

	"github.com/caffeineduck/goys/libys"
	"github.com/spf13/cobra"
)

var libCmd = &cobra.Command{
	Use:   "lib",
	Short: "Show where libys is searched for",
	Long: `Print the expected libys file name, every directory searched for it
in order, and the path that would be loaded.

Search order:
  DYLD_LIBRARY_PATH (macOS only)
  LD_LIBRARY_PATH
  /usr/local/lib
  ~/.local/lib`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runLib,
}

func init() {
	rootCmd.AddCommand(libCmd)
}

func runLib(cmd *cobra.Command, args []string) error {
	lib, _ := cmd.Root().PersistentFlags().GetString("lib")
	out := cmd.OutOrStdout()

	r := libys.DefaultResolver()
	fmt.Fprintf(out, "version:  %s\n", r.Version)
	fmt.Fprintf(out, "file:     %s\n", r.FileName())
	fmt.Fprintln(out, "search:")
	for _, c := range r.Candidates() {
		fmt.Fprintf(out, "  %s\n", c)
	}

	path, err := r.Resolve(lib)
	if err != nil {
		fmt.Fprintln(out, "resolved: not found")
		return err
	}
	fmt.Fprintf(out, "resolved: %s\n", path)
	return nil
}
