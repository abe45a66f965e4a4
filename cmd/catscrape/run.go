package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/config"
	"github.com/maloquacious/catscrape/internal/downloader"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/runner"
	"github.com/spf13/cobra"
)

type runFlags struct {
	automated bool
	mode      string
	stores    string
	years     string
	yes       bool
}

func newRunCmd() *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch catalogue metadata and download new catalogues",
		Long: `Fetch the archive listing for the selected stores and years, merge it
into the tracking store and download the selected catalogues.

With --automated every store is checked in update mode without prompts.
With --stores the selection comes from flags. Otherwise it is prompted for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rf)
		},
	}
	cmd.Flags().BoolVar(&rf.automated, "automated", false, "scheduled run: all stores, update mode, no prompts")
	cmd.Flags().BoolVar(&rf.automated, "update-only", false, "alias for --automated")
	cmd.Flags().StringVar(&rf.mode, "mode", "update", "update, refresh or custom")
	cmd.Flags().StringVar(&rf.stores, "stores", "", "comma separated store slugs, or all")
	cmd.Flags().StringVar(&rf.years, "years", "all", "comma separated years or ranges, or all")
	cmd.Flags().BoolVar(&rf.yes, "yes", false, "do not ask before downloading")
	return cmd
}

// selectRun builds the run configuration from flags or prompts. Nothing is
// read or written before it returns.
func selectRun(cmd *cobra.Command, rf runFlags, p *config.Prompter, now time.Time) (config.Config, error) {
	base, err := baseConfig()
	if err != nil {
		return config.Config{}, err
	}
	base.Started = now

	var cfg config.Config
	switch {
	case rf.automated:
		cfg = config.Automated(now)
		cfg.Root, cfg.OutputDir, cfg.DataDir = base.Root, base.OutputDir, base.DataDir
		cfg.MongoURI, cfg.MongoDB = base.MongoURI, base.MongoDB
		cfg.APIBase, cfg.CDNBase, cfg.RatePerSec = base.APIBase, base.CDNBase, base.RatePerSec
		cfg.Verbose = base.Verbose
		if cmd.Flags().Changed("storage") {
			cfg.Storage = base.Storage
		}
	case rf.stores != "":
		cfg = base
		if cfg.Stores, err = config.ParseStores(rf.stores); err != nil {
			return config.Config{}, err
		}
		if cfg.Years, err = config.ParseYears(rf.years, now.Year()); err != nil {
			return config.Config{}, err
		}
		if cfg.Mode, err = config.ParseMode(rf.mode); err != nil {
			return config.Config{}, err
		}
		cfg.AssumeYes = rf.yes
	default:
		if cfg, err = p.Prompt(base, now); err != nil {
			return config.Config{}, err
		}
		cfg.AssumeYes = rf.yes
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, rf runFlags) error {
	started := time.Now()
	prompter := config.NewPrompter(os.Stdin, os.Stdout)

	cfg, err := selectRun(cmd, rf, prompter, started)
	if errors.Is(err, config.ErrCancelled) {
		fmt.Println("[CANCELLED] No changes made")
		return nil
	} else if err != nil {
		return err
	}
	cfg.RunID = uuid.NewString()

	log, closeLog, err := openRunLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info("catscrape %s starting", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backups := backup.New(log)
	canonical, target, err := openRunStores(ctx, cfg, backups, log)
	if err != nil {
		log.Error("open tracking store: %v", err)
		return err
	}
	defer func() {
		if target != canonical {
			target.Close()
		}
		canonical.Close()
	}()

	r := &runner.Runner{
		Config:    cfg,
		Canonical: canonical,
		Target:    target,
		Downloader: downloader.New(downloader.Options{
			APIBase:           cfg.APIBase,
			CDNBase:           cfg.CDNBase,
			OutputRoot:        cfg.Output(),
			RunID:             cfg.RunID,
			RequestsPerSecond: cfg.RatePerSec,
			Log:               log,
		}),
		Backups: backups,
		Log:     log,
		Console: os.Stdout,
		Confirm: func(n int) (bool, error) {
			return prompter.Confirm(fmt.Sprintf("\n[CONFIRM] Download %d catalogues?", n))
		},
		Location: time.Local,
	}

	res, err := r.Run(ctx)
	switch {
	case errors.Is(err, config.ErrCancelled):
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Printf("\n[INTERRUPTED] Progress saved to %s (%d catalogues attempted)\n", target.Location(), res.Attempted)
		log.Warn("Run interrupted after %d catalogues; progress saved", res.Attempted)
		return fmt.Errorf("interrupted: %w", err)
	case err != nil:
		log.Error("Run failed: %v", err)
		return err
	}
	log.Info("Run finished in %s", time.Since(started).Round(time.Second))
	return nil
}

// openRunLog opens this run's log file, echoed to stderr with --verbose.
func openRunLog(cfg config.Config) (logger.Logger, func(), error) {
	level := logger.LevelInfo
	if cfg.Verbose {
		level = logger.LevelDebug
	}
	fileLog, f, err := logger.NewFile(cfg.LogDir(), cfg.Started, level)
	if err != nil {
		return nil, nil, err
	}
	log := fileLog
	if cfg.Verbose {
		log = logger.New(io.MultiWriter(f, os.Stderr), level)
	}
	fmt.Printf("[INFO] Log file: %s\n", f.Name())
	return log.With("run=" + cfg.RunID[:8]), func() { f.Close() }, nil
}
