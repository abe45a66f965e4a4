package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cdn serves pages 1..pages of every catalogue; status overrides a page's reply.
type cdn struct {
	pages    int
	status   map[int]int
	requests atomic.Int32
}

func (c *cdn) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.requests.Add(1)
	var page int
	name := filepath.Base(r.URL.Path)
	if _, err := fmt.Sscanf(name, "%d.jpg", &page); err != nil {
		http.NotFound(w, r)
		return
	}
	if code, ok := c.status[page]; ok {
		w.WriteHeader(code)
		return
	}
	if page > c.pages {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write([]byte("jpeg-" + name))
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New(Options{
		APIBase:    srv.URL + "/api",
		CDNBase:    srv.URL + "/cdn",
		OutputRoot: t.TempDir(),
		RunID:      "run-1",
		Log:        logger.Nop,
	})
	c.Now = func() time.Time { return time.Date(2025, 12, 9, 10, 0, 0, 0, time.UTC) }
	return c
}

func record(pageCount int) catalogue.Record {
	return catalogue.Record{Store: "aldi", Year: "2024", Slug: "aldi-catalogue-march-5-2024", Title: "Aldi 2024", PageCount: pageCount}
}

func TestFetchCatalogues(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		switch r.URL.Query().Get("year") {
		case "2022":
			w.Write([]byte(`{not json`))
		case "2023":
			w.WriteHeader(http.StatusInternalServerError)
		case "2024":
			w.Write([]byte(`[{"title":"Aldi 2024","slug":"a1","page_count":2,"id":1},{"title":"Aldi 2024 b","slug":"a2","page_count":"5"}]`))
		case "2025":
			w.Write([]byte(`{"error":"no archive"}`))
		}
	}))
	defer srv.Close()
	c := newClient(t, srv)

	got := c.FetchCatalogues(context.Background(), "aldi", []int{2022, 2023, 2024, 2025})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "aldi", got[0].Store)
	assert.Equal(t, "aldi", got[1].Store)
	assert.Equal(t, "a2", got[1].Slug)
	assert.Len(t, queries, 4)
	assert.Equal(t, "get=archive&store=aldi&year=2024&v1", queries[2])
}

func TestDownloadStopsAtExpectedCount(t *testing.T) {
	h := &cdn{pages: 10}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	res, err := c.DownloadCatalogue(context.Background(), record(2))
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesDownloaded)
	assert.Empty(t, res.FailedPages)
	assert.EqualValues(t, 2, h.requests.Load())

	b, err := os.ReadFile(filepath.Join(res.Folder, "page_002.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-2.jpg", string(b))
	assert.Equal(t, filepath.Join(c.OutputRoot, "aldi", "2024", "aldi-catalogue-march-5-2024"), res.Folder)
}

func TestDownloadStopsAt404(t *testing.T) {
	h := &cdn{pages: 2}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	res, err := c.DownloadCatalogue(context.Background(), record(5))
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesDownloaded)
	assert.Empty(t, res.FailedPages)
	assert.EqualValues(t, 3, h.requests.Load())
	assert.NoFileExists(t, filepath.Join(res.Folder, "page_003.jpg"))
}

func TestDownloadUnknownCountEndsOn404(t *testing.T) {
	h := &cdn{pages: 4}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	res, err := c.DownloadCatalogue(context.Background(), record(0))
	require.NoError(t, err)
	assert.Equal(t, 4, res.PagesDownloaded)
	assert.EqualValues(t, 5, h.requests.Load())
}

func TestDownloadFailureThreshold(t *testing.T) {
	h := &cdn{pages: 10, status: map[int]int{1: 500, 2: 502, 3: 403, 4: 500}}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	res, err := c.DownloadCatalogue(context.Background(), record(0))
	require.NoError(t, err)

	assert.Equal(t, 0, res.PagesDownloaded)
	assert.Equal(t, []int{1, 2, 3}, res.FailedPages)
	assert.EqualValues(t, 3, h.requests.Load(), "no request after the third failure")
}

func TestDownloadTimeoutsCountAsFailures(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	c := newClient(t, srv)
	c.Images.Timeout = 50 * time.Millisecond

	res, err := c.DownloadCatalogue(context.Background(), record(10))
	require.NoError(t, err)

	assert.Equal(t, 0, res.PagesDownloaded)
	assert.Equal(t, []int{1, 2, 3}, res.FailedPages)
	assert.EqualValues(t, 3, requests.Load())
}

func TestDownloadRejectsUnsafePaths(t *testing.T) {
	h := &cdn{pages: 1}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	for _, r := range []catalogue.Record{
		{Store: "aldi", Year: "2024", Slug: "../../../escaped"},
		{Store: "..", Year: "2024", Slug: "ok"},
		{Store: "aldi", Year: "2024/../..", Slug: "ok"},
	} {
		_, err := c.DownloadCatalogue(context.Background(), r)
		assert.ErrorIs(t, err, ErrUnsafePath)
	}
	assert.Zero(t, h.requests.Load())
	entries, err := os.ReadDir(c.OutputRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadFailuresResetOnSuccess(t *testing.T) {
	h := &cdn{pages: 5, status: map[int]int{1: 500, 2: 500, 4: 500, 5: 500}}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	res, err := c.DownloadCatalogue(context.Background(), record(5))
	require.NoError(t, err)

	assert.Equal(t, 1, res.PagesDownloaded)
	assert.Equal(t, []int{1, 2, 4, 5}, res.FailedPages)
	// 6 is past the catalogue and ends it with a 404
	assert.EqualValues(t, 6, h.requests.Load())
}

func TestDownloadIdempotentResume(t *testing.T) {
	h := &cdn{pages: 3}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)
	rec := record(3)

	first, err := c.DownloadCatalogue(context.Background(), rec)
	require.NoError(t, err)
	require.EqualValues(t, 3, h.requests.Load())

	second, err := c.DownloadCatalogue(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, first.PagesDownloaded, second.PagesDownloaded)
	assert.EqualValues(t, 3, h.requests.Load(), "pages on disk are never fetched again")
}

func TestDownloadResumesPartialFolder(t *testing.T) {
	h := &cdn{pages: 3}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)
	rec := record(3)

	folder := c.Folder(rec)
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "page_001.jpg"), []byte("old"), 0o644))

	res, err := c.DownloadCatalogue(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesDownloaded)
	assert.EqualValues(t, 2, h.requests.Load())

	b, _ := os.ReadFile(filepath.Join(folder, "page_001.jpg"))
	assert.Equal(t, "old", string(b))
}

func TestSidecar(t *testing.T) {
	h := &cdn{pages: 1, status: map[int]int{2: 500, 3: 500, 4: 500}}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	res, err := c.DownloadCatalogue(context.Background(), record(0))
	require.NoError(t, err)

	sc, err := ReadSidecar(res.Folder)
	require.NoError(t, err)
	assert.True(t, sc.Downloaded)
	assert.Equal(t, 1, sc.PagesDownloaded)
	assert.Equal(t, []int{2, 3, 4}, sc.FailedPages)
	assert.Equal(t, "2025-12-09T10:00:00Z", sc.ScrapedDate)
	assert.Equal(t, "aldi-catalogue-march-5-2024", sc.Slug)
	assert.Equal(t, "run-1", sc.RunID)

	raw, err := os.ReadFile(filepath.Join(res.Folder, MetadataFile))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"failed_pages": [`))
}

func TestDownloadCancelled(t *testing.T) {
	h := &cdn{pages: 5}
	srv := httptest.NewServer(h)
	defer srv.Close()
	c := newClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.DownloadCatalogue(ctx, record(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.PagesDownloaded)
	assert.EqualValues(t, 0, h.requests.Load())
	assert.FileExists(t, filepath.Join(res.Folder, MetadataFile))
}

func TestRateLimiterOption(t *testing.T) {
	c := New(Options{RequestsPerSecond: 2})
	require.NotNil(t, c.Limiter)
	assert.Nil(t, New(Options{}).Limiter)
	assert.Equal(t, DefaultAPIBase, New(Options{}).APIBase)
}
