// Package jsonstore keeps the tracking table as an indented JSON array of
// objects using the tracking column names as keys.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
)

// Store is a JSON tracking file.
type Store struct {
	path    string
	backups *backup.Manager
	log     logger.Logger
}

// New returns a Store for path.
func New(path string, backups *backup.Manager, log logger.Logger) *Store {
	if log == nil {
		log = logger.Default
	}
	return &Store{path: path, backups: backups, log: log}
}

func (s *Store) Location() string { return s.path }

func (s *Store) Close() error { return nil }

// row tolerates files written by older tools: counts may be quoted or
// fractional and nulls stand for empty values.
type row struct {
	Store               string               `json:"store"`
	Title               string               `json:"title"`
	Slug                string               `json:"slug"`
	Year                catalogue.FlexString `json:"year"`
	State               string               `json:"state"`
	CatalogueOnSaleDate string               `json:"catalogue_on_sale_date"`
	ScrapedDate         string               `json:"scraped_date"`
	PageCount           catalogue.FlexString `json:"page_count"`
	PagesDownloaded     catalogue.FlexString `json:"pages_downloaded"`
	Downloaded          bool                 `json:"downloaded"`
	ID                  catalogue.FlexString `json:"id"`
}

func (s *Store) Load(ctx context.Context) (catalogue.Table, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("No existing JSON found - starting fresh")
		return catalogue.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	s.log.Info("Loading records from %s", s.path)

	var rows []row
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	t := make(catalogue.Table, 0, len(rows))
	for _, r := range rows {
		t = append(t, catalogue.Record{
			Store:               r.Store,
			Title:               r.Title,
			Slug:                r.Slug,
			Year:                string(r.Year),
			State:               r.State,
			CatalogueOnSaleDate: r.CatalogueOnSaleDate,
			ScrapedDate:         r.ScrapedDate,
			PageCount:           catalogue.ParseCount(string(r.PageCount)),
			PagesDownloaded:     catalogue.ParseCount(string(r.PagesDownloaded)),
			Downloaded:          r.Downloaded,
			ID:                  string(r.ID),
		})
	}
	return t, nil
}

func (s *Store) Save(ctx context.Context, t catalogue.Table, withBackup bool) error {
	if withBackup {
		if err := s.Backup(ctx); err != nil {
			return fmt.Errorf("backup before save: %w", err)
		}
	}
	if t == nil {
		t = catalogue.Table{}
	}
	err := store.WriteFileAtomic(s.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(t)
	})
	if err != nil {
		return err
	}
	s.log.Info("Saved %d records to %s", len(t), s.path)
	return nil
}

func (s *Store) Backup(ctx context.Context) error {
	_, err := s.backups.File(s.path)
	return err
}
