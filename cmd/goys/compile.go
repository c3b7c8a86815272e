package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/caffeineduck/goys/libys"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compileCmd = &cobra.Command{
	Use:   "compile [file]",
	Short: "Compile YAMLScript to JSON",
	Long: `Compile YAMLScript to JSON (or YAML) and print the result.

Input can be provided via:
  - File argument: goys compile app.ys
  - Inline flag: goys compile -e 'say: Hello World'
  - Stdin: echo 'say: Hello World' | goys compile

With --watch the file is compiled again every time it changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	addCompileFlags(compileCmd)
	rootCmd.AddCommand(compileCmd)
}

func addCompileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("eval", "e", "", "YAMLScript to compile")
	cmd.Flags().StringP("output", "o", "json", "Output format: json, yaml")
	cmd.Flags().Bool("watch", false, "Recompile the file whenever it changes")
}

func runCompile(cmd *cobra.Command, args []string) error {
	eval, _ := cmd.Flags().GetString("eval")
	format, _ := cmd.Flags().GetString("output")
	watch, _ := cmd.Flags().GetBool("watch")

	if err := checkFormat(format); err != nil {
		return err
	}
	if watch && len(args) == 0 {
		return fmt.Errorf("--watch requires a file argument")
	}

	var source string
	switch {
	case eval != "":
		source = eval
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		source = string(data)
	default:
		// Check if stdin has data (not a terminal)
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			// No piped input, show help
			return cmd.Help()
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		source = string(data)
	}

	log := newLogger(cmd)
	defer log.Sync()

	lctx, sessionOpts, err := newContext(cmd, log)
	if err != nil {
		return err
	}
	defer lctx.Close()

	out := cmd.OutOrStdout()
	if !watch {
		return compileOnce(out, lctx, sessionOpts, source, format)
	}

	session, err := lctx.NewSession(sessionOpts...)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := args[0]
	if err := compileTo(out, session, source, format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	err = watchFile(ctx, path, log, func() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		if err := compileTo(out, session, string(data), format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	})
	if err != nil {
		log.Error("watch stopped", zap.Error(err))
		return err
	}
	return nil
}

// compileOnce compiles source in a session of its own. The isolate is torn
// down before returning, whether or not the compile failed.
func compileOnce(w io.Writer, lctx *libys.Context, opts []libys.SessionOption, source, format string) error {
	session, err := lctx.NewSession(opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	return compileTo(w, session, source, format)
}

func compileTo(w io.Writer, session *libys.Session, source, format string) error {
	result, err := session.Compile(source)
	if err != nil {
		return err
	}
	text, err := formatOutput(result, format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}
