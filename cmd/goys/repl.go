package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive YAMLScript compiler",
	Long: `Start an interactive REPL that compiles each document you enter.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

All documents are compiled in one libys isolate.
Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringP("output", "o", "json", "Output format: json, yaml")
	replCmd.Flags().String("history", "", "History file path (default: ~/.goys_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	historyFile, _ := cmd.Flags().GetString("history")

	if err := checkFormat(format); err != nil {
		return err
	}
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".goys_history")
	}

	log := newLogger(cmd)
	defer log.Sync()

	lctx, sessionOpts, err := newContext(cmd, log)
	if err != nil {
		return err
	}
	defer lctx.Close()

	session, err := lctx.NewSession(sessionOpts...)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "ys> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "goys REPL using %s (type 'exit' to quit, Ctrl+D to exit)\n", session.Path())

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt("ys> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt("ys> ")
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed == "exit" || trimmed == "quit" {
			break
		}

		if err := compileTo(os.Stdout, session, line, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return nil
}
