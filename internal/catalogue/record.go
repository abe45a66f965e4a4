// Package catalogue holds the tracking record for one catalogue edition and
// the rules for building records from archive API data and merging them
// with what earlier runs recorded.
package catalogue

import (
	"sort"
)

const (
	UnknownYear  = "Unknown"
	UnknownStore = "unknown"
	MultiState   = "Multi-State"
)

// Record is one catalogue edition. Slug is the only identity across runs.
type Record struct {
	Store               string `json:"store" bson:"store"`
	Title               string `json:"title" bson:"title"`
	Slug                string `json:"slug" bson:"_id"`
	Year                string `json:"year" bson:"year"`
	State               string `json:"state" bson:"state"`
	CatalogueOnSaleDate string `json:"catalogue_on_sale_date" bson:"catalogue_on_sale_date"`
	ScrapedDate         string `json:"scraped_date" bson:"scraped_date"`
	PageCount           int    `json:"page_count" bson:"page_count"`
	PagesDownloaded     int    `json:"pages_downloaded" bson:"pages_downloaded"`
	Downloaded          bool   `json:"downloaded" bson:"downloaded"`
	ID                  string `json:"id" bson:"id"`
}

// Columns is the tracking file column order.
var Columns = []string{
	"store",
	"title",
	"slug",
	"year",
	"state",
	"catalogue_on_sale_date",
	"scraped_date",
	"page_count",
	"pages_downloaded",
	"downloaded",
	"id",
}

// Table is the ordered set of tracked records.
type Table []Record

// Index returns the position of slug in t, or -1.
func (t Table) Index(slug string) int {
	for i := range t {
		if t[i].Slug == slug {
			return i
		}
	}
	return -1
}

// Pending returns the rows not yet downloaded, in table order.
func (t Table) Pending() Table {
	var out Table
	for _, r := range t {
		if !r.Downloaded {
			out = append(out, r)
		}
	}
	return out
}

// Filter returns rows whose store is in stores; an empty list keeps everything.
func (t Table) Filter(stores ...string) Table {
	if len(stores) == 0 {
		return t
	}
	keep := make(map[string]bool, len(stores))
	for _, s := range stores {
		keep[s] = true
	}
	var out Table
	for _, r := range t {
		if keep[r.Store] {
			out = append(out, r)
		}
	}
	return out
}

// StoreSummary counts one store's catalogues.
type StoreSummary struct {
	Store      string `json:"store"`
	Total      int    `json:"total"`
	Downloaded int    `json:"downloaded"`
	Pages      int    `json:"pages"`
}

// Summary is the end-of-run report.
type Summary struct {
	Total      int            `json:"total"`
	Downloaded int            `json:"downloaded"`
	Pages      int            `json:"pages"`
	Stores     []StoreSummary `json:"stores"`
}

// Summary counts rows, downloaded rows and the pages of downloaded rows.
func (t Table) Summary() Summary {
	var s Summary
	byStore := make(map[string]*StoreSummary)
	for _, r := range t {
		ss, ok := byStore[r.Store]
		if !ok {
			ss = &StoreSummary{Store: r.Store}
			byStore[r.Store] = ss
		}
		s.Total++
		ss.Total++
		if r.Downloaded {
			s.Downloaded++
			s.Pages += r.PagesDownloaded
			ss.Downloaded++
			ss.Pages += r.PagesDownloaded
		}
	}
	for _, ss := range byStore {
		s.Stores = append(s.Stores, *ss)
	}
	sort.Slice(s.Stores, func(i, j int) bool { return s.Stores[i].Store < s.Stores[j].Store })
	return s
}
