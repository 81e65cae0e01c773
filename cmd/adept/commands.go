package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Finndersen/adept-ai/pkg/builder"
	"github.com/Finndersen/adept-ai/pkg/capability"
	compat "github.com/Finndersen/adept-ai/pkg/compat/openai"
	"github.com/Finndersen/adept-ai/pkg/mcp"
	"github.com/Finndersen/adept-ai/pkg/tokens"
)

func newPromptCommand(flags *globalFlags) *cobra.Command {
	var showTokens bool
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the rendered system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := flags.openApp("")
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if err := a.builder.Setup(ctx); err != nil {
				return err
			}

			p, err := a.builder.SystemPrompt(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, p)
			if showTokens {
				fmt.Fprintf(out, "\n%s %d\n", gray("Tokens:"), tokens.Count(p))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTokens, "tokens", false, "Also print the prompt's token count")
	return cmd
}

func newToolsCommand(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the current tools as OpenAI tool definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var chat bool
			switch format {
			case "responses":
			case "chat":
				chat = true
			default:
				return NewInvalidArgumentError("--format", fmt.Sprintf("unknown format %q", format))
			}

			ctx := cmd.Context()
			a, err := flags.openApp("")
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if err := a.builder.Setup(ctx); err != nil {
				return err
			}

			tools, err := a.builder.Tools(ctx)
			if err != nil {
				return err
			}
			wrapped := compat.New(tools)
			var v any = wrapped.ResponsesTools()
			if chat {
				v = wrapped.ChatTools()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().StringVar(&format, "format", "responses", "Definition format: responses or chat")
	return cmd
}

func newCapabilitiesCommand(flags *globalFlags) *cobra.Command {
	var withTools bool
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List capabilities and whether they are enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := flags.openApp("")
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			out := cmd.OutOrStdout()
			printCapabilities(out, a.builder.Capabilities())
			if !withTools {
				return nil
			}
			all, err := a.builder.AllTools(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printGatedTools(out, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withTools, "tools", false, "Also list every tool, including those of disabled capabilities")
	return cmd
}

func printCapabilities(out io.Writer, caps []capability.Capability) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tDESCRIPTION")
	for _, c := range caps {
		status := gray("disabled")
		if c.Enabled() {
			status = green("enabled")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name(), status, c.Description())
	}
	_ = tw.Flush()
}

func printGatedTools(out io.Writer, tools []builder.GatedTool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tAVAILABLE\tDESCRIPTION")
	for _, t := range tools {
		available := "no"
		if t.Enabled() {
			available = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Tool.Name, available, t.Tool.Description)
	}
	_ = tw.Flush()
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the enabled capability tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := flags.openApp("")
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if err := a.builder.Setup(ctx); err != nil {
				return err
			}

			srv := mcp.NewServer("adept", version, a.builder, a.logger)
			a.logger.InfoContext(ctx, "serving MCP over stdio")
			return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
		},
	}
}
