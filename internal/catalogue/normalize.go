package catalogue

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maloquacious/catscrape/internal/dateparse"
)

// FlexString accepts a JSON string or number. The archive API is not
// consistent about quoting page_count, start_date and id.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// booleans and objects are not useful here; treat as absent
		*f = ""
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// Raw is one archive API record. Store is set by the fetcher.
type Raw struct {
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	PageCount FlexString `json:"page_count"`
	StartDate FlexString `json:"start_date"`
	ID        FlexString `json:"id"`
	Store     string     `json:"store_slug,omitempty"`
}

var (
	yearRe  = regexp.MustCompile(`20\d{2}`)
	stateRe = regexp.MustCompile(`(?i)\b(NSW|VIC|QLD|SA|WA|TAS|NT|ACT)\b`)
)

// Normalize builds a never-downloaded Record from raw. Missing fields get
// their sentinels; it never fails.
func Normalize(raw Raw, loc *time.Location) Record {
	store := strings.TrimSpace(raw.Store)
	if store == "" {
		store = UnknownStore
	}

	year := yearRe.FindString(raw.Title)
	if year == "" {
		year = UnknownYear
	}

	state := MultiState
	if m := stateRe.FindString(raw.Title); m != "" {
		state = strings.ToUpper(m)
	}

	return Record{
		Store:               store,
		Title:               raw.Title,
		Slug:                strings.TrimSpace(raw.Slug),
		Year:                year,
		State:               state,
		CatalogueOnSaleDate: dateparse.SaleDate(raw.Slug, string(raw.StartDate), loc),
		PageCount:           ParseCount(string(raw.PageCount)),
		ID:                  string(raw.ID),
	}
}

// NormalizeAll normalizes raws in order. Rows whose slug is empty or not
// usable as a single folder name are returned in skipped; a repeated slug
// keeps its first occurrence.
func NormalizeAll(raws []Raw, loc *time.Location) (t Table, skipped []Raw) {
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		r := Normalize(raw, loc)
		if !SafeSlug(r.Slug) {
			skipped = append(skipped, raw)
			continue
		}
		if seen[r.Slug] {
			continue
		}
		seen[r.Slug] = true
		t = append(t, r)
	}
	return t, skipped
}

// SafeSlug reports whether slug names exactly one folder below the output
// root: non-empty, no separators, no dot segments.
func SafeSlug(slug string) bool {
	if slug == "" || slug == "." || slug == ".." {
		return false
	}
	if strings.ContainsAny(slug, `/\`) || strings.Contains(slug, "..") {
		return false
	}
	return filepath.IsLocal(slug)
}

// ParseCount reads a non-negative count, accepting "12" and "12.0"; anything else is 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int(f)
	}
	if n < 0 {
		return 0
	}
	return n
}
