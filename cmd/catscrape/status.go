package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/config"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
	"github.com/maloquacious/catscrape/internal/store/mongostore"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the tracking store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := baseConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg, cfg.Data(), mongostore.DefaultCollection, nil, logger.Nop)
			if err != nil {
				return err
			}
			defer s.Close()
			t, err := s.Load(ctx)
			if err != nil {
				return fmt.Errorf("load %s: %w", s.Location(), err)
			}
			printSummary(os.Stdout, s.Location(), t.Summary())
			return nil
		},
	}
}

func printSummary(w io.Writer, location string, sum catalogue.Summary) {
	fmt.Fprintf(w, "Tracking store: %s\n\n", location)
	fmt.Fprintf(w, "%-12s %10s %12s %10s\n", "STORE", "CATALOGUES", "DOWNLOADED", "PAGES")
	for _, s := range sum.Stores {
		fmt.Fprintf(w, "%-12s %10s %12s %10s\n", s.Store,
			humanize.Comma(int64(s.Total)), humanize.Comma(int64(s.Downloaded)), humanize.Comma(int64(s.Pages)))
	}
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 47))
	fmt.Fprintf(w, "%-12s %10s %12s %10s\n", "total",
		humanize.Comma(int64(sum.Total)), humanize.Comma(int64(sum.Downloaded)), humanize.Comma(int64(sum.Pages)))
	if pending := sum.Total - sum.Downloaded; pending > 0 {
		fmt.Fprintf(w, "\n%s catalogues pending\n", humanize.Comma(int64(pending)))
	}
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the catalogue folder and every tracking file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := baseConfig()
			if err != nil {
				return err
			}
			return runBackup(cmd.Context(), cfg, backup.New(logger.NewStdLogger()))
		},
	}
}

// runBackup copies the output folder, the file-backed tracking files and,
// with mongo storage, the tracking collection.
func runBackup(ctx context.Context, cfg config.Config, b *backup.Manager) error {
	if _, err := b.Folder(cfg.CanonicalOutput()); err != nil {
		return err
	}
	for _, p := range store.TrackingFiles(cfg.Data()) {
		if _, err := b.File(p); err != nil {
			return err
		}
	}
	if cfg.Storage != store.KindMongo {
		return nil
	}
	s, err := openStore(ctx, cfg, cfg.Data(), mongostore.DefaultCollection, b, b.Log)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Backup(ctx)
}
