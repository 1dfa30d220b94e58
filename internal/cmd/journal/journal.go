// Package journal parses journal command flags and prints a campaign's
// recent realtime events.
package journal

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	entrypoint "github.com/kindfund/campaignsync/internal/platform/cmd"
	"github.com/kindfund/campaignsync/internal/platform/config"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/storage/sqlite"
)

const maxPayloadColumn = 80

// Config holds journal command configuration.
type Config struct {
	JournalPath string `env:"CAMPAIGNSYNC_JOURNAL_PATH"  envDefault:"campaignsync.db"`
	CampaignID  string `env:"CAMPAIGNSYNC_CAMPAIGN_ID"`
	Limit       int    `env:"CAMPAIGNSYNC_JOURNAL_LIMIT" envDefault:"50"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.JournalPath, "journal-path", cfg.JournalPath, "SQLite event journal path")
	fs.StringVar(&cfg.CampaignID, "campaign-id", cfg.CampaignID, "campaign whose events are listed")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "maximum number of events to print")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	if err := config.RequireValues(map[string]string{
		"journal-path": cfg.JournalPath,
		"campaign-id":  cfg.CampaignID,
	}); err != nil {
		return Config{}, err
	}
	if cfg.Limit <= 0 {
		return Config{}, fmt.Errorf("limit must be positive, got %d", cfg.Limit)
	}
	return cfg, nil
}

// Run prints the newest journal entries of the configured campaign to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	store, err := sqlite.Open(ctx, cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.Recent(ctx, cfg.CampaignID, cfg.Limit)
	if err != nil {
		return err
	}
	counts, err := store.CountByStatus(ctx, cfg.CampaignID)
	if err != nil {
		return err
	}
	return Print(out, cfg.CampaignID, entries, counts)
}

// Print writes entries as an aligned table followed by per-status totals.
func Print(out io.Writer, campaignID string, entries []storage.Entry, counts map[storage.Status]int64) error {
	fmt.Fprintf(out, "campaign %s: %d applied, %d ignored, %d rejected\n",
		campaignID,
		counts[storage.StatusApplied],
		counts[storage.StatusIgnored],
		counts[storage.StatusRejected],
	)
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "no events journaled")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tRECEIVED\tEVENT\tSTATUS\tOUTCOME\tREASON\tPAYLOAD")
	for _, entry := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Seq,
			entry.ReceivedAt.UTC().Format(time.RFC3339),
			entry.Event,
			entry.Status,
			dash(entry.Outcome),
			dash(entry.Reason),
			truncate(string(entry.Payload), maxPayloadColumn),
		)
	}
	return w.Flush()
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
