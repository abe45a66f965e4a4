package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maloquacious/catscrape/internal/catalogue"
)

// StoreState represents the initialization state of a database-backed store.
type StoreState int

const (
	StateMissing         StoreState = iota // File doesn't exist
	StateUninitialized                     // File exists but no schema
	StateVersionMismatch                   // Schema exists but wrong version
	StateReady                             // Initialized and correct version
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateVersionMismatch:
		return "version mismatch"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("StoreState(%d)", int(s))
}

// Store persists the catalogue tracking table.
// A store is owned by one run; implementations need not be safe for concurrent writers.
type Store interface {
	// Load returns the saved table. A store with nothing saved yet returns
	// an empty table and no error.
	Load(ctx context.Context) (catalogue.Table, error)

	// Save replaces the saved table with t. With backup set, the current
	// saved state is snapshotted first and a failed snapshot aborts the save.
	Save(ctx context.Context, t catalogue.Table, backup bool) error

	// Backup snapshots the current saved state, if any.
	Backup(ctx context.Context) error

	// Location describes where the table lives, for logs.
	Location() string

	// Close releases any connection held by the store.
	Close() error
}

// Kind selects a storage strategy.
type Kind string

const (
	KindCSV    Kind = "csv"
	KindJSON   Kind = "json"
	KindSQLite Kind = "sqlite"
	KindMongo  Kind = "mongo"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{KindCSV, KindJSON, KindSQLite, KindMongo}

var ErrUnknownKind = errors.New("unknown storage type")

// ParseKind accepts a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
