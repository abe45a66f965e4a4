package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements store.Store using modernc.org/sqlite.
type SQLiteStore struct {
	dbPath         string
	db             *sql.DB
	expectedSchema string
	backups        *backup.Manager
	log            logger.Logger
}

// New creates a new SQLiteStore. Call Open before use.
func New(dbPath string, expectedSchema string, backups *backup.Manager, log logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.Default
	}
	return &SQLiteStore{
		dbPath:         dbPath,
		expectedSchema: expectedSchema,
		backups:        backups,
		log:            log,
	}
}

// OpenStore opens dbPath if it exists. A missing database is not created
// here: Load returns an empty table until the first Save creates it, so
// read-only callers never leave a file behind.
func OpenStore(dbPath string, backups *backup.Manager, log logger.Logger) (*SQLiteStore, error) {
	s := New(dbPath, SchemaVersion, backups, log)
	exists, err := store.CheckExists(dbPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.log.Info("No existing tracking database at %s - starting fresh", dbPath)
		return s, nil
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s, nil
}

// ready opens the database and creates the schema if it is uninitialized.
func (s *SQLiteStore) ready() error {
	if s.db != nil {
		return nil
	}
	if err := s.Open(); err != nil {
		return err
	}
	state, err := s.CheckState()
	if err != nil {
		s.Close()
		return err
	}
	switch state {
	case store.StateReady:
	case store.StateUninitialized:
		if err := s.InitSchema(s.expectedSchema); err != nil {
			s.Close()
			return err
		}
	default:
		s.Close()
		return fmt.Errorf("%s: schema %s", s.dbPath, state)
	}
	return nil
}

// Open opens the SQLite database with safe defaults.
func (s *SQLiteStore) Open() error {
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// one connection, so the pragmas below hold for every statement
	db.SetMaxOpenConns(1)

	// rollback journal keeps the whole database in one file, which is what backups copy
	pragmas := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *SQLiteStore) Location() string { return s.dbPath }

// InitSchema creates the schema and records its version.
func (s *SQLiteStore) InitSchema(version string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(initialSchema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s', 'now'))`, version)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState() (store.StoreState, error) {
	if s.db == nil {
		return store.StateMissing, fmt.Errorf("database not opened")
	}

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&count)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	if count == 0 {
		return store.StateUninitialized, nil
	}

	version, err := s.GetSchemaVersion()
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to get schema version: %w", err)
	}

	if version != s.expectedSchema {
		return store.StateVersionMismatch, nil
	}

	return store.StateReady, nil
}

// GetSchemaVersion returns the current schema version from the database.
func (s *SQLiteStore) GetSchemaVersion() (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var version string
	err := s.db.QueryRow(`SELECT version FROM schema_migrations ORDER BY applied_at DESC LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}

	return version, nil
}

// Load returns every tracked catalogue in saved order.
func (s *SQLiteStore) Load(ctx context.Context) (catalogue.Table, error) {
	if s.db == nil {
		exists, err := store.CheckExists(s.dbPath)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.log.Info("No existing tracking database at %s - starting fresh", s.dbPath)
			return catalogue.Table{}, nil
		}
		if err := s.ready(); err != nil {
			return nil, err
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT store, title, slug, year, state, catalogue_on_sale_date, scraped_date,
		       page_count, pages_downloaded, downloaded, id
		FROM catalogues ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalogues: %w", err)
	}
	defer rows.Close()

	t := catalogue.Table{}
	for rows.Next() {
		var r catalogue.Record
		if err := rows.Scan(&r.Store, &r.Title, &r.Slug, &r.Year, &r.State, &r.CatalogueOnSaleDate,
			&r.ScrapedDate, &r.PageCount, &r.PagesDownloaded, &r.Downloaded, &r.ID); err != nil {
			return nil, fmt.Errorf("failed to scan catalogue: %w", err)
		}
		t = append(t, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalogues: %w", err)
	}
	s.log.Info("Loaded %d records from %s", len(t), s.dbPath)
	return t, nil
}

// Save replaces the catalogues table with t in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, t catalogue.Table, withBackup bool) error {
	if withBackup {
		if err := s.Backup(ctx); err != nil {
			return fmt.Errorf("backup before save: %w", err)
		}
	}
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalogues`); err != nil {
		return fmt.Errorf("failed to clear catalogues: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalogues (slug, position, store, title, year, state, catalogue_on_sale_date,
		                        scraped_date, page_count, pages_downloaded, downloaded, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range t {
		if _, err := stmt.ExecContext(ctx, r.Slug, i, r.Store, r.Title, r.Year, r.State, r.CatalogueOnSaleDate,
			r.ScrapedDate, r.PageCount, r.PagesDownloaded, r.Downloaded, r.ID); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Saved %d records to %s", len(t), s.dbPath)
	return nil
}

// Backup copies the database file.
func (s *SQLiteStore) Backup(ctx context.Context) error {
	_, err := s.backups.File(s.dbPath)
	return err
}
