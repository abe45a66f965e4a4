package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/config"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
	"github.com/maloquacious/catscrape/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 12, 9, 14, 3, 7, 0, time.UTC)

func resetFlags(t *testing.T, root string) {
	t.Helper()
	rootDir, dataDir, outputDir = root, store.DefaultDataDir, "catalogues"
	storage, mongoURI, mongoDB = string(store.KindCSV), "", ""
	apiBase, cdnBase, rate, verbose = "http://api.test", "http://cdn.test", 0, false
}

func TestSelectRunAutomated(t *testing.T) {
	resetFlags(t, "/srv")
	storage = "json"

	cfg, err := selectRun(newRunCmd(), runFlags{automated: true}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, config.ModeUpdate, cfg.Mode)
	assert.Len(t, cfg.Stores, 4)
	assert.Equal(t, 2026, cfg.Years[len(cfg.Years)-1])
	assert.Equal(t, store.KindCSV, cfg.Storage, "automated runs keep CSV unless --storage is given")
	assert.Equal(t, "/srv", cfg.Root)
	assert.Equal(t, "http://cdn.test", cfg.CDNBase)
	assert.True(t, cfg.AssumeYes)
}

func TestSelectRunFromFlags(t *testing.T) {
	resetFlags(t, "/srv")
	storage = "sqlite"

	cfg, err := selectRun(newRunCmd(), runFlags{stores: "aldi", years: "2023-2024", mode: "custom"}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"aldi"}, cfg.Stores)
	assert.Equal(t, []int{2023, 2024}, cfg.Years)
	assert.Equal(t, config.ModeCustom, cfg.Mode)
	assert.Equal(t, store.KindSQLite, cfg.Storage)
	assert.False(t, cfg.AssumeYes)
	assert.Equal(t, filepath.Join("/srv", "customDL_20251209"), cfg.Output())

	_, err = selectRun(newRunCmd(), runFlags{stores: "aldi", years: "all", mode: "wipe"}, nil, now)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	storage = "parquet"
	_, err = selectRun(newRunCmd(), runFlags{stores: "aldi", years: "all"}, nil, now)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSelectRunPrompts(t *testing.T) {
	resetFlags(t, "/srv")
	p := config.NewPrompter(strings.NewReader("coles\n2024\n3\n2\n"), &bytes.Buffer{})

	cfg, err := selectRun(newRunCmd(), runFlags{yes: true}, p, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"coles"}, cfg.Stores)
	assert.Equal(t, config.ModeCustom, cfg.Mode)
	assert.Equal(t, store.KindJSON, cfg.Storage)
	assert.True(t, cfg.AssumeYes)
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	sum := catalogue.Table{
		{Store: "coles", Slug: "a", Downloaded: true, PagesDownloaded: 1200},
		{Store: "aldi", Slug: "b"},
	}.Summary()
	printSummary(&out, "x.csv", sum)

	s := out.String()
	assert.Contains(t, s, "Tracking store: x.csv")
	assert.Contains(t, s, "1,200")
	assert.Contains(t, s, "1 catalogues pending")
	assert.Less(t, strings.Index(s, "aldi"), strings.Index(s, "coles"))
}

func TestOpenRunStoresCustomIsSeparate(t *testing.T) {
	resetFlags(t, t.TempDir())
	cfg, err := baseConfig()
	require.NoError(t, err)
	cfg.Mode, cfg.Started = config.ModeCustom, now
	ctx := context.Background()

	canonical, target, err := openRunStores(ctx, cfg, nil, logger.Nop)
	require.NoError(t, err)
	assert.Equal(t, store.FilePath(cfg.Data(), store.KindCSV), canonical.Location())
	assert.Equal(t, store.FilePath(filepath.Join(cfg.Output(), cfg.DataDir), store.KindCSV), target.Location())

	cfg.Mode = config.ModeUpdate
	canonical, target, err = openRunStores(ctx, cfg, nil, logger.Nop)
	require.NoError(t, err)
	assert.Same(t, canonical, target)

	cfg.Storage = store.KindMongo
	_, _, err = openRunStores(ctx, cfg, nil, logger.Nop)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunBackup(t *testing.T) {
	root := t.TempDir()
	resetFlags(t, root)
	cfg, err := baseConfig()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.CanonicalOutput(), "aldi"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CanonicalOutput(), "aldi", "page_001.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(cfg.Data(), 0o755))
	require.NoError(t, os.WriteFile(store.FilePath(cfg.Data(), store.KindCSV), []byte("slug\n"), 0o644))

	b := &backup.Manager{Now: func() time.Time { return now }, Log: logger.Nop}
	require.NoError(t, runBackup(context.Background(), cfg, b))

	assert.FileExists(t, filepath.Join(cfg.CanonicalOutput()+"_backup_20251209_140307", "aldi", "page_001.jpg"))
	assert.FileExists(t, store.FilePath(cfg.Data(), store.KindCSV)+".backup_20251209_140307")
	assert.NoFileExists(t, store.FilePath(cfg.Data(), store.KindJSON)+".backup_20251209_140307")
}

func TestServerInfoSchemaVersion(t *testing.T) {
	assert.Equal(t, sqlite.SchemaVersion, serverInfo(store.KindSQLite, "x.db").SchemaVersion)
	for _, k := range []store.Kind{store.KindCSV, store.KindJSON, store.KindMongo} {
		info := serverInfo(k, "somewhere")
		assert.Empty(t, info.SchemaVersion, k)
		assert.Equal(t, string(k), info.Storage)
	}
}

func TestReadOnlySQLiteOpenCreatesNothing(t *testing.T) {
	resetFlags(t, t.TempDir())
	storage = string(store.KindSQLite)
	cfg, err := baseConfig()
	require.NoError(t, err)
	cfg.Mode, cfg.Started = config.ModeCustom, now
	ctx := context.Background()

	canonical, target, err := openRunStores(ctx, cfg, nil, logger.Nop)
	require.NoError(t, err)
	defer canonical.Close()
	defer target.Close()

	got, err := canonical.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoFileExists(t, store.FilePath(cfg.Data(), store.KindSQLite))

	require.NoError(t, target.Save(ctx, catalogue.Table{{Store: "aldi", Slug: "a"}}, false))
	assert.FileExists(t, store.FilePath(cfg.RunData(), store.KindSQLite))
	assert.NoFileExists(t, store.FilePath(cfg.Data(), store.KindSQLite))
}
