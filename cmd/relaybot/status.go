package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"relaybot/internal/audit"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/provider"
)

func statusCmd() *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe Slack and the answer service, show recent outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), startupProbeTimeout)
			defer cancel()

			out := cmd.OutOrStdout()
			healthy := probeDependencies(ctx, out, cfg)
			if cfg.Audit.Enabled {
				store, err := audit.Open(cfg.Audit.DBPath, logger)
				if err != nil {
					return fmt.Errorf("audit store: %w", err)
				}
				defer store.Close()
				if err := printAudit(ctx, out, store, recent); err != nil {
					return fmt.Errorf("read audit log: %w", err)
				}
			}
			if !healthy {
				return fmt.Errorf("one or more dependencies are not ready")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "number of recent audit entries to show")
	return cmd
}

func probeDependencies(ctx context.Context, out io.Writer, cfg *config.Config) bool {
	healthy := true

	switch {
	case cfg.Slack.BotToken == "":
		fmt.Fprintln(out, "slack:    not configured")
		healthy = false
	default:
		slack := channel.NewSlack(channel.SlackConfig{BotToken: cfg.Slack.BotToken, APIURL: cfg.Slack.APIURL, Logger: logger})
		if uid, err := slack.Identify(ctx); err != nil {
			fmt.Fprintf(out, "slack:    unreachable (%v)\n", err)
			healthy = false
		} else {
			fmt.Fprintf(out, "slack:    ok, bot user %s\n", uid)
		}
	}

	switch {
	case cfg.Backend.URL == "":
		fmt.Fprintln(out, "backend:  not configured")
		healthy = false
	default:
		backend := provider.NewBackend(provider.BackendConfig{
			URL:             cfg.Backend.URL,
			APIKey:          cfg.Backend.APIKey,
			Timeout:         cfg.Backend.Timeout(),
			FallbackMessage: cfg.Backend.FallbackMessage,
			Logger:          logger,
		})
		if err := probeBackend(ctx, backend, startupProbeTimeout); err != nil {
			fmt.Fprintf(out, "backend:  unreachable (%v)\n", err)
			healthy = false
		} else {
			fmt.Fprintf(out, "backend:  ok, %s\n", cfg.Backend.URL)
		}
	}
	return healthy
}

// printAudit writes the last day's outcome counts and the newest entries.
func printAudit(ctx context.Context, out io.Writer, store *audit.Store, limit int) error {
	counts, err := store.Summary(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)

	fmt.Fprintln(out, "\nlast 24h:")
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "  no events")
	}
	for _, o := range outcomes {
		fmt.Fprintf(out, "  %-10s %d\n", o, counts[o])
	}

	records, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nrecent:")
	for _, r := range records {
		line := fmt.Sprintf("  %s  %-10s %-12s %s %6dms", r.CreatedAt.Format(time.DateTime), r.Outcome, r.EventID, r.ChannelID, r.LatencyMs)
		if r.Reason != "" {
			line += "  " + r.Reason
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
