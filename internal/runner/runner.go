// Package runner drives one scraping run: backups, metadata fetch and
// merge, the mode filter, the per-catalogue download loop and the saves
// that make the run resumable.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/config"
	"github.com/maloquacious/catscrape/internal/downloader"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
)

const rule = "======================================================================"

// Downloader is the network side of a run.
type Downloader interface {
	FetchCatalogues(ctx context.Context, store string, years []int) []catalogue.Raw
	DownloadCatalogue(ctx context.Context, r catalogue.Record) (downloader.Result, error)
}

// Runner owns the tracking table for the length of one run.
type Runner struct {
	Config config.Config

	// Canonical is the shared tracking store. In custom mode it is only read.
	Canonical store.Store
	// Target receives every save. It is Canonical except in custom mode.
	Target store.Store

	Downloader Downloader
	Backups    *backup.Manager
	Log        logger.Logger
	// Console receives milestone messages.
	Console io.Writer
	// Confirm is asked before downloading; nil proceeds.
	Confirm  func(n int) (bool, error)
	Location *time.Location
}

// Result summarizes a finished run.
type Result struct {
	catalogue.Summary
	Attempted int
	Failed    []string
	UpToDate  bool
}

func (r *Runner) printf(format string, args ...any) {
	if r.Console != nil {
		fmt.Fprintf(r.Console, format, args...)
	}
}

func (r *Runner) banner(title string) {
	r.printf("\n%s\n%s\n%s\n", rule, title, rule)
	r.Log.Info("%s", title)
}

// Run executes one run in the configured mode.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	cfg := r.Config
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if r.Target == nil {
		r.Target = r.Canonical
	}
	r.Log.Info("Configuration: %s", cfg)

	existing, err := r.prepare(ctx)
	if err != nil {
		return Result{}, err
	}

	r.banner("FETCHING CATALOGUE METADATA FROM API")
	var raws []catalogue.Raw
	for _, s := range cfg.Stores {
		raws = append(raws, r.Downloader.FetchCatalogues(ctx, s, cfg.Years)...)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.Log.Info("Processing %d catalogues from API", len(raws))
	fresh, skipped := catalogue.NormalizeAll(raws, r.Location)
	for _, s := range skipped {
		r.Log.Warn("Skipping %s catalogue %q: unusable slug %q", s.Store, s.Title, s.Slug)
	}
	r.Log.Info("Processed %d catalogues", len(fresh))

	table := catalogue.Merge(fresh, existing)
	todo := r.selectRows(table, fresh)

	if len(todo) == 0 {
		r.printf("\n[INFO] All catalogues are up to date\n")
		r.Log.Info("All catalogues are up to date")
		return Result{Summary: table.Summary(), UpToDate: true}, nil
	}

	if r.Confirm != nil && !cfg.AssumeYes {
		ok, err := r.Confirm(len(todo))
		if err != nil {
			return Result{}, err
		}
		if !ok {
			r.printf("\n[CANCELLED] Download cancelled\n")
			r.Log.Info("Download cancelled by user")
			return Result{}, config.ErrCancelled
		}
	} else if cfg.Automated {
		r.printf("\n[INFO] Automated run - proceeding to download %d catalogues without prompt\n", len(todo))
		r.Log.Info("Automated run - proceeding to download %d catalogues without prompt", len(todo))
	}

	res := r.download(ctx, table, todo)

	// an interrupted run still records what it finished
	if err := r.Target.Save(context.WithoutCancel(ctx), table, true); err != nil {
		return res, fmt.Errorf("final save: %w", err)
	}
	res.Summary = table.Summary()
	r.report(res)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// prepare takes refresh backups and returns the table to merge into.
func (r *Runner) prepare(ctx context.Context) (catalogue.Table, error) {
	cfg := r.Config
	switch cfg.Mode {
	case config.ModeRefresh:
		r.banner("BACKUP PROCESS - REFRESH MODE")
		if _, err := r.Backups.Folder(cfg.Output()); err != nil {
			r.Log.Warn("Output folder backup failed, continuing: %v", err)
		}
		if err := r.Canonical.Backup(ctx); err != nil {
			return nil, fmt.Errorf("refresh backup of %s: %w", r.Canonical.Location(), err)
		}
		// the other file formats may hold state from earlier runs too
		for _, p := range store.TrackingFiles(cfg.Data()) {
			if filepath.Clean(p) == filepath.Clean(r.Canonical.Location()) {
				continue
			}
			if _, err := r.Backups.File(p); err != nil {
				return nil, fmt.Errorf("refresh backup of %s: %w", p, err)
			}
		}
		r.printf("\n[INFO] Refresh mode - starting with clean slate\n")
		r.Log.Info("Refresh mode - starting with clean slate")
		return catalogue.Table{}, nil
	case config.ModeCustom:
		r.printf("\n[INFO] Custom mode - output folder: %s\n", cfg.Output())
		r.Log.Info("Custom mode - output folder: %s", cfg.Output())
	}
	existing, err := r.Canonical.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.Canonical.Location(), err)
	}
	return existing, nil
}

// selectRows picks the download list from the merged table. Only rows
// returned by this run's fetch qualify; older rows from other stores or
// years stay in the table but are not downloaded.
func (r *Runner) selectRows(merged, fresh catalogue.Table) catalogue.Table {
	fetched := make(map[string]bool, len(fresh))
	for _, rec := range fresh {
		fetched[rec.Slug] = true
	}
	var t catalogue.Table
	for _, rec := range merged {
		if fetched[rec.Slug] {
			t = append(t, rec)
		}
	}

	switch r.Config.Mode {
	case config.ModeUpdate:
		todo := t.Pending()
		r.printf("\n[INFO] Found %d new catalogues to download\n", len(todo))
		r.Log.Info("Found %d new catalogues to download", len(todo))
		return todo
	case config.ModeRefresh:
		r.printf("\n[INFO] Will refresh all %d catalogues\n", len(t))
		r.Log.Info("Will refresh all %d catalogues", len(t))
	default:
		r.printf("\n[INFO] Custom mode - %d catalogues available\n", len(t))
		r.Log.Info("Custom mode - %d catalogues available", len(t))
	}
	return t
}

// download walks todo in order, updating table in place and saving it after
// every catalogue. One catalogue's failure never stops the loop.
func (r *Runner) download(ctx context.Context, table, todo catalogue.Table) Result {
	r.banner("DOWNLOADING CATALOGUES")
	res := Result{}
	total := len(todo)
	step := max(1, total/20)

	for i, rec := range todo {
		if ctx.Err() != nil {
			r.Log.Warn("Run interrupted - %d catalogues not attempted", total-i)
			break
		}
		idx := i + 1
		r.Log.Info("[%d/%d] %s - %s", idx, total, rec.Store, rec.Title)
		if idx%step == 0 || idx == total {
			r.printf("Progress: %.0f%% (%d/%d catalogues)\n", float64(idx)/float64(total)*100, idx, total)
		}
		res.Attempted++

		out, err := r.downloadOne(ctx, rec)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				r.Log.Warn("Download of %s interrupted", rec.Slug)
			} else {
				r.Log.Error("Critical error for %s: %v", rec.Slug, err)
			}
			res.Failed = append(res.Failed, rec.Slug)
			continue
		}
		if out.PagesDownloaded == 0 {
			r.Log.Warn("No pages saved for %s - left for the next run", rec.Slug)
			res.Failed = append(res.Failed, rec.Slug)
			continue
		}
		table.MarkDownloaded(rec.Slug, out.ScrapedAt.Format(time.RFC3339), out.PagesDownloaded)

		if err := r.Target.Save(context.WithoutCancel(ctx), table, false); err != nil {
			r.Log.Error("Saving tracking state after %s: %v", rec.Slug, err)
		}
	}
	return res
}

// downloadOne turns a panic inside one catalogue into that catalogue's error.
func (r *Runner) downloadOne(ctx context.Context, rec catalogue.Record) (out downloader.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Downloader.DownloadCatalogue(ctx, rec)
}

func (r *Runner) report(res Result) {
	cfg := r.Config
	r.banner("DOWNLOAD COMPLETE")
	r.printf("\nSummary:\n")
	r.printf("  Total catalogues: %s\n", humanize.Comma(int64(res.Total)))
	r.printf("  Downloaded: %s\n", humanize.Comma(int64(res.Downloaded)))
	r.printf("  Total pages: %s\n", humanize.Comma(int64(res.Pages)))
	if len(res.Failed) > 0 {
		r.printf("  Not completed this run: %d\n", len(res.Failed))
	}
	r.printf("\nFiles saved to:\n")
	r.printf("  Catalogues: %s\n", absPath(cfg.Output()))
	r.printf("  Tracking data: %s\n", r.Target.Location())

	r.Log.Info("DOWNLOAD COMPLETE - Total: %d, Downloaded: %d, Pages: %s",
		res.Total, res.Downloaded, humanize.Comma(int64(res.Pages)))
	r.Log.Info("Files saved to: Catalogues=%s, Tracking=%s", absPath(cfg.Output()), r.Target.Location())
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}
