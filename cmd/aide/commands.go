package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/config"
	"github.com/nugget/aide/internal/memory"
)

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd.OutOrStdout(), opts.output)
		},
	}
}

func runVersion(w io.Writer, output string) error {
	info := buildinfo.Info()
	if output == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		fmt.Fprintf(w, "  %-12s %s\n", k+":", info[k])
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAskCmd(opts *globalOptions) *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run a single turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if identity == "" {
				identity = cfg.Owner.Email
			}
			if identity == "" {
				identity = "cli"
			}
			resp, err := a.orch.Run(ctx, &agent.Request{
				Identity: identity,
				Channel:  "cli",
				Text:     strings.Join(args, " "),
				Source:   "cli",
			})
			if err != nil && !(errors.Is(err, agent.ErrIterationLimit) && resp != nil) {
				return fmt.Errorf("ask: %w", err)
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "conversation identity (default: owner email)")
	return cmd
}

// openStore opens the persistent conversation store for the offline
// commands. There is nothing to read when history lives in memory.
func openStore(cfg *config.Config) (*memory.SQLiteStore, error) {
	if cfg.Store.Path == "" {
		return nil, errors.New("store.path is not set; conversation history is only kept in memory while serving")
	}
	return memory.OpenSQLite(cfg.Store.Path)
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [identity]",
		Short: "Print stored conversation history",
		Long:  "Print the newest messages for an identity, or list identities with stored history when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return runHistory(cmd, store, args, limit, opts.output, cfg.Location())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of messages to show")
	return cmd
}

func runHistory(cmd *cobra.Command, store memory.ConversationStore, args []string, limit int, output string, loc *time.Location) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		ids, err := store.Identities(ctx)
		if err != nil {
			return err
		}
		if output == "json" {
			return writeJSON(w, ids)
		}
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		return nil
	}

	msgs, err := store.Recent(ctx, args[0], limit)
	if err != nil {
		return err
	}
	if output == "json" {
		return writeJSON(w, msgs)
	}
	if len(msgs) == 0 {
		fmt.Fprintf(w, "no history for %s\n", args[0])
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.In(loc).Format(time.DateTime), strings.ToUpper(m.Role), m.Content)
		if len(m.Invocations) > 0 {
			names := make([]string, len(m.Invocations))
			for i, inv := range m.Invocations {
				names[i] = inv.Name
			}
			fmt.Fprintf(w, "    tools: %s\n", strings.Join(names, ", "))
		}
	}
	return nil
}

func newPruneCmd(opts *globalOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversation history older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if days > 0 {
				cfg.Store.RetentionDays = days
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := memory.NewPruner(store, cfg.Store.Retention(), cfg.Store.PruneSchedule, logger)
			if err != nil {
				return err
			}
			n, err := p.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d messages older than %d days\n", n, cfg.Store.RetentionDays)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override store.retention_days")
	return cmd
}
