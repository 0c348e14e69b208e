// Aide is a tool-augmented conversational agent. It answers Slack
// messages, HTTP requests and MQTT triggers by letting a language
// model call mail, calendar, contacts, docs, web and MCP capabilities.
//
// Usage:
//
//	aide serve                  Start the Slack, HTTP and MQTT ingress
//	aide ask <question>         Run a single turn and print the answer
//	aide history <identity>     Print stored conversation history
//	aide prune                  Apply the retention window now
//	aide init [dir]             Write an example config
//	aide version                Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nugget/aide/internal/config"
)

// main only builds the OS environment and hands off to run so the
// command tree can be driven from tests.
func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := newRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "aide",
		Short:         "aide - a tool-augmented conversational agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("unknown output format: %q (expected text or json)", opts.output)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default: auto-discover)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newHistoryCmd(opts),
		newPruneCmd(opts),
		newInitCmd(),
		newVersionCmd(opts),
	)
	return root
}

// loadConfig locates and parses the configuration. An explicit path
// must exist; otherwise the default search path is used.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// setup loads the config and builds the configured logger.
func setup(opts *globalOptions, w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(w, cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("config loaded", "path", path)
	return cfg, logger, nil
}
