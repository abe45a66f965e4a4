package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStore struct {
	table catalogue.Table
	err   error
}

func (f fixedStore) Load(context.Context) (catalogue.Table, error) { return f.table, f.err }
func (f fixedStore) Save(context.Context, catalogue.Table, bool) error {
	return errors.New("read only")
}
func (f fixedStore) Backup(context.Context) error { return nil }
func (f fixedStore) Location() string             { return "fixed" }
func (f fixedStore) Close() error                 { return nil }

func sample() catalogue.Table {
	return catalogue.Table{
		{Store: "aldi", Slug: "aldi-a", Title: "A", Downloaded: true, PagesDownloaded: 10},
		{Store: "aldi", Slug: "aldi-b", Title: "B"},
		{Store: "coles", Slug: "coles-a", Title: "C", Downloaded: true, PagesDownloaded: 5},
	}
}

func serve(t *testing.T, s fixedStore, method, target, accept string) *httptest.ResponseRecorder {
	t.Helper()
	h := New(s, Info{Version: "0.1.0", Storage: "csv", Location: "fixed"}, nil)
	h.now = func() time.Time { return time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC) }
	req := httptest.NewRequest(method, target, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestLiveAndReady(t *testing.T) {
	rec := serve(t, fixedStore{table: sample()}, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = serve(t, fixedStore{table: sample()}, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, fixedStore{err: errors.New("locked")}, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSummary(t *testing.T) {
	rec := serve(t, fixedStore{table: sample()}, http.MethodGet, "/api/summary", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got struct {
		Version    string `json:"version"`
		Time       string `json:"time"`
		Total      int    `json:"total"`
		Downloaded int    `json:"downloaded"`
		Pages      int    `json:"pages"`
		Stores     []catalogue.StoreSummary
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0.1.0", got.Version)
	assert.Equal(t, "2025-12-09T00:00:00Z", got.Time)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Downloaded)
	assert.Equal(t, 15, got.Pages)
	require.Len(t, got.Stores, 2)
	assert.Equal(t, "aldi", got.Stores[0].Store)
}

func TestListFilters(t *testing.T) {
	tests := []struct {
		target string
		want   []string
	}{
		{"/api/catalogues", []string{"aldi-a", "aldi-b", "coles-a"}},
		{"/api/catalogues?store=coles", []string{"coles-a"}},
		{"/api/catalogues?store=ALDI&pending=true", []string{"aldi-b"}},
		{"/api/catalogues?store=iga", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(t, fixedStore{table: sample()}, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var got catalogue.Table
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			slugs := []string{}
			for _, r := range got {
				slugs = append(slugs, r.Slug)
			}
			assert.Equal(t, tt.want, slugs)
		})
	}

	rec := serve(t, fixedStore{table: sample()}, http.MethodGet, "/api/catalogues?pending=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBySlug(t *testing.T) {
	rec := serve(t, fixedStore{table: sample()}, http.MethodGet, "/api/catalogues/coles-a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got catalogue.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 5, got.PagesDownloaded)

	rec = serve(t, fixedStore{table: sample()}, http.MethodGet, "/api/catalogues/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestErrorsAndNegotiation(t *testing.T) {
	rec := serve(t, fixedStore{err: errors.New("corrupt")}, http.MethodGet, "/api/summary", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "store_unavailable")

	rec = serve(t, fixedStore{table: sample()}, http.MethodGet, "/api/summary", "text/html")
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)

	rec = serve(t, fixedStore{table: sample()}, http.MethodPost, "/api/catalogues", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
