// Package storetest holds the checks every store.Store strategy must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample is a table exercising every column type.
func Sample() catalogue.Table {
	return catalogue.Table{
		{
			Store:               "woolworths",
			Title:               "Woolworths Catalogue 12 - 18 November 2025 - SA",
			Slug:                "weekly-woolworths-catalogue-november-12-18-2025-sa",
			Year:                "2025",
			State:               "SA",
			CatalogueOnSaleDate: "2025-11-12",
			ScrapedDate:         "2025-11-13T09:15:02+10:30",
			PageCount:           24,
			PagesDownloaded:     24,
			Downloaded:          true,
			ID:                  "9911",
		},
		{
			Store:               "aldi",
			Title:               `Special Buys, "Wednesday" edition`,
			Slug:                "aldi-special-buys",
			Year:                catalogue.UnknownYear,
			State:               catalogue.MultiState,
			CatalogueOnSaleDate: "Unknown",
			PageCount:           0,
			ID:                  "",
		},
		{
			Store:           "coles",
			Title:           "Coles\nTwo line title",
			Slug:            "coles-weekly-2024",
			Year:            "2024",
			State:           "VIC",
			PageCount:       40,
			PagesDownloaded: 3,
			Downloaded:      true,
			ScrapedDate:     "2024-03-01T00:00:00Z",
			ID:              "c-1",
		},
	}
}

// RoundTrip checks load-on-empty, save then load, in-place replacement, and
// that a smaller table replaces a larger one rather than merging into it.
func RoundTrip(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := Sample()
	require.NoError(t, s.Save(ctx, want, false))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want[1].Downloaded = true
	want[1].PagesDownloaded = 7
	want[1].ScrapedDate = "2025-12-01T08:00:00Z"
	require.NoError(t, s.Save(ctx, want, true))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	shorter := catalogue.Table{want[2], want[0]}
	require.NoError(t, s.Save(ctx, shorter, false))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, shorter, got)
}
