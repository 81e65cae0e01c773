// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var (
		sessionID string
		plain     bool
	)
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent once or in an interactive session",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := flags.openApp(sessionID)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if err := a.builder.Setup(ctx); err != nil {
				return err
			}

			renderer, err := newMarkdownRenderer(plain || !isTTY())
			if err != nil {
				a.logger.Warn("markdown rendering disabled", "error", err)
			}
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				return runOnce(ctx, a, strings.Join(args, " "), out, renderer)
			}
			if !isTTY() {
				return runLines(ctx, a, cmd.InOrStdin(), out, renderer)
			}
			return runREPL(ctx, a, out, renderer)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume a session by ID")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print answers without markdown styling")
	return cmd
}

func runOnce(ctx context.Context, a *app, input string, out io.Writer, r *markdownRenderer) error {
	answer, err := a.agent.Run(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, r.Render(answer))
	return nil
}

// replCommand handles a slash command. It reports whether the line was a
// command and whether the session should end.
func replCommand(ctx context.Context, a *app, line string, out io.Writer) (handled, quit bool) {
	switch line {
	case "/quit", "/exit", "/q":
		return true, true
	case "/prompt":
		p, err := a.builder.SystemPrompt(ctx)
		if err != nil {
			PrintError(out, err)
			return true, false
		}
		fmt.Fprintln(out, p)
		return true, false
	case "/capabilities":
		printCapabilities(out, a.builder.Capabilities())
		return true, false
	case "/session":
		if id := a.agent.SessionID(); id != "" {
			fmt.Fprintln(out, id)
		} else {
			fmt.Fprintln(out, gray("sessions are disabled"))
		}
		return true, false
	}
	if strings.HasPrefix(line, "/") {
		fmt.Fprintf(out, "%s unknown command %s (try /prompt, /capabilities, /session or /quit)\n", red("!"), line)
		return true, false
	}
	return false, false
}

// handleLine answers one line of input. Agent errors are printed and the
// session continues.
func handleLine(ctx context.Context, a *app, line string, out io.Writer, r *markdownRenderer) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if handled, quit := replCommand(ctx, a, line, out); handled {
		return quit
	}
	answer, err := a.agent.Run(ctx, line)
	if err != nil {
		PrintError(out, err)
		return false
	}
	fmt.Fprintf(out, "\n%s\n\n", r.Render(answer))
	return false
}

// runLines answers newline separated input until EOF, for piped use.
func runLines(ctx context.Context, a *app, in io.Reader, out io.Writer, r *markdownRenderer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if handleLine(ctx, a, line, out, r) {
			return nil
		}
	}
	return nil
}

func runREPL(ctx context.Context, a *app, out io.Writer, r *markdownRenderer) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".adept_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("> "),
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "/quit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	if id := a.agent.SessionID(); id != "" {
		fmt.Fprintf(out, "%s %s\n", gray("Session:"), id)
	}
	fmt.Fprintln(out, gray("Type /quit to exit, /prompt to show the system prompt."))

	for {
		line, err := rl.Readline()
		if stderrors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if handleLine(ctx, a, line, out, r) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(out, green("Goodbye!"))
	return nil
}
