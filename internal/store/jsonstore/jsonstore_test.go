package jsonstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue_tracking.json")
	storetest.RoundTrip(t, New(path, backup.New(logger.Nop), logger.Nop))
}

func TestLoadLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue_tracking.json")
	body := `[
  {"store": "iga", "title": "IGA 2024", "slug": "iga-1", "year": 2024, "state": "NSW",
   "catalogue_on_sale_date": "2024-05-01", "scraped_date": null,
   "page_count": 16.0, "pages_downloaded": "4", "downloaded": false, "id": 123}
]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	got, err := New(path, backup.New(logger.Nop), logger.Nop).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, catalogue.Record{
		Store:               "iga",
		Title:               "IGA 2024",
		Slug:                "iga-1",
		Year:                "2024",
		State:               "NSW",
		CatalogueOnSaleDate: "2024-05-01",
		PageCount:           16,
		PagesDownloaded:     4,
		ID:                  "123",
	}, got[0])
}

func TestSaveEmptyWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue_tracking.json")
	require.NoError(t, New(path, backup.New(logger.Nop), logger.Nop).Save(context.Background(), nil, false))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(b))
}
