// Package csvstore keeps the tracking table in a flat CSV file with a
// header row. Integer and boolean columns are typed back by column name
// on load.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
)

// Store is a CSV tracking file.
type Store struct {
	path    string
	backups *backup.Manager
	log     logger.Logger
}

// New returns a Store for path. Nothing is touched until Load or Save.
func New(path string, backups *backup.Manager, log logger.Logger) *Store {
	if log == nil {
		log = logger.Default
	}
	return &Store{path: path, backups: backups, log: log}
}

func (s *Store) Location() string { return s.path }

func (s *Store) Close() error { return nil }

func (s *Store) Load(ctx context.Context) (catalogue.Table, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("No existing CSV found - starting fresh")
		return catalogue.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	s.log.Info("Loading records from %s", s.path)
	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return t, nil
}

func (s *Store) Save(ctx context.Context, t catalogue.Table, withBackup bool) error {
	if withBackup {
		if err := s.Backup(ctx); err != nil {
			return fmt.Errorf("backup before save: %w", err)
		}
	}
	if err := store.WriteFileAtomic(s.path, func(w io.Writer) error { return Encode(w, t) }); err != nil {
		return err
	}
	s.log.Info("Saved %d records to %s", len(t), s.path)
	return nil
}

func (s *Store) Backup(ctx context.Context) error {
	_, err := s.backups.File(s.path)
	return err
}

// Encode writes t with a header row in catalogue.Columns order.
func Encode(w io.Writer, t catalogue.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(catalogue.Columns); err != nil {
		return err
	}
	for _, r := range t {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a table written by Encode. Columns are matched by header
// name, unknown columns are ignored and short rows are padded.
func Decode(r io.Reader) (catalogue.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return catalogue.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := col["slug"]; !ok {
		return nil, fmt.Errorf("header has no slug column")
	}

	t := catalogue.Table{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		t = append(t, catalogue.Record{
			Store:               get("store"),
			Title:               get("title"),
			Slug:                get("slug"),
			Year:                get("year"),
			State:               get("state"),
			CatalogueOnSaleDate: get("catalogue_on_sale_date"),
			ScrapedDate:         get("scraped_date"),
			PageCount:           catalogue.ParseCount(get("page_count")),
			PagesDownloaded:     catalogue.ParseCount(get("pages_downloaded")),
			Downloaded:          parseBool(get("downloaded")),
			ID:                  get("id"),
		})
	}
	return t, nil
}

func row(r catalogue.Record) []string {
	return []string{
		r.Store,
		r.Title,
		r.Slug,
		r.Year,
		r.State,
		r.CatalogueOnSaleDate,
		r.ScrapedDate,
		strconv.Itoa(r.PageCount),
		strconv.Itoa(r.PagesDownloaded),
		strconv.FormatBool(r.Downloaded),
		r.ID,
	}
}

// parseBool accepts true/false in any case and 1/0; anything else is false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "1.0", "yes":
		return true
	}
	return false
}
