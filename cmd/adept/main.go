package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Finndersen/adept-ai/pkg/config"
)

var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	ConfigPath string
	Profile    string
	Sets       []string
	LogLevel   string
}

// configArgs turns the flags into the argument form config.LoadWithCLI reads.
func (g globalFlags) configArgs() []string {
	var args []string
	if g.ConfigPath != "" {
		args = append(args, "--config", g.ConfigPath)
	}
	if g.Profile != "" {
		args = append(args, "--profile", g.Profile)
	}
	for _, s := range g.Sets {
		args = append(args, "--set", s)
	}
	return args
}

func (g globalFlags) load() (*config.Config, error) {
	cfg, err := config.LoadWithCLI(g.configArgs())
	if err != nil {
		return nil, NewConfigError(err, g.ConfigPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError(err, g.ConfigPath)
	}
	return cfg, nil
}

// openApp loads configuration and wires the app for a command.
func (g globalFlags) openApp(sessionID string) (*app, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, sessionID, loggerFor(cfg, g.LogLevel))
}

func newRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "adept",
		Short: "Compose LLM agents from capabilities",
		Long: fmt.Sprintf(`%s

adept builds an agent from a role and a list of capabilities: the file
system, project AGENTS.md instructions, Agent Skills and MCP servers.
Disabled capabilities are listed in the system prompt and the model can
enable them on demand.

%s
  adept run                          # Interactive session
  adept run "summarise README.md"    # Single prompt
  adept prompt --tokens              # Show the system prompt and its size
  adept serve                        # Expose enabled tools over MCP stdio`,
			bold("adept "+version), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&flags.Profile, "profile", "", "Config profile overlay (config.<profile>.yaml)")
	pf.StringArrayVar(&flags.Sets, "set", nil, "Override a config key (key=value), repeatable")
	pf.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newRunCommand(&flags),
		newPromptCommand(&flags),
		newToolsCommand(&flags),
		newCapabilitiesCommand(&flags),
		newServeCommand(&flags),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		PrintError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
