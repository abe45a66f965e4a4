// Package downloader talks to the catalogue archive API and the image CDN.
//
// Requests are strictly sequential. Ordinary HTTP and network failures are
// logged and reported as data; only filesystem errors are returned.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIBase = "https://www.catalogueau.com/api/web/catalogue/v1.php"
	DefaultCDNBase = "https://caau.syd1.cdn.digitaloceanspaces.com/wp-content/uploads/catalogue"

	APITimeout   = 15 * time.Second
	ImageTimeout = 30 * time.Second

	// MaxConsecutiveFailures abandons a catalogue's remaining pages.
	MaxConsecutiveFailures = 3

	MetadataFile = "metadata.json"
)

// ErrUnsafePath rejects a store, year or slug that would leave OutputRoot.
var ErrUnsafePath = errors.New("unsafe catalogue path")

// Client fetches catalogue metadata and page images.
type Client struct {
	APIBase    string
	CDNBase    string
	OutputRoot string
	RunID      string

	API     *http.Client
	Images  *http.Client
	Limiter *rate.Limiter
	Log     logger.Logger
	Now     func() time.Time
}

// Options configures New. Zero values take the defaults.
type Options struct {
	APIBase    string
	CDNBase    string
	OutputRoot string
	RunID      string
	// RequestsPerSecond paces every request; 0 disables pacing.
	RequestsPerSecond float64
	Log               logger.Logger
}

// New returns a Client with the package timeouts.
func New(opts Options) *Client {
	c := &Client{
		APIBase:    opts.APIBase,
		CDNBase:    opts.CDNBase,
		OutputRoot: opts.OutputRoot,
		RunID:      opts.RunID,
		API:        &http.Client{Timeout: APITimeout},
		Images:     &http.Client{Timeout: ImageTimeout},
		Log:        opts.Log,
		Now:        time.Now,
	}
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.CDNBase == "" {
		c.CDNBase = DefaultCDNBase
	}
	if c.Log == nil {
		c.Log = logger.Default
	}
	if opts.RequestsPerSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return ctx.Err()
	}
	return c.Limiter.Wait(ctx)
}

// ArchiveURL is the archive API request for one store and year.
func (c *Client) ArchiveURL(store string, year int) string {
	q := url.Values{}
	q.Set("get", "archive")
	q.Set("store", store)
	q.Set("year", strconv.Itoa(year))
	// the API wants a bare v1 flag after the other parameters
	return c.APIBase + "?" + q.Encode() + "&v1"
}

// FetchCatalogues returns every archive record for store across years,
// tagged with store. A year that fails contributes nothing.
func (c *Client) FetchCatalogues(ctx context.Context, store string, years []int) []catalogue.Raw {
	c.Log.Info("Fetching %s catalogues...", store)
	var all []catalogue.Raw
	for _, year := range years {
		if ctx.Err() != nil {
			c.Log.Warn("API %d: cancelled", year)
			break
		}
		raws, err := c.fetchYear(ctx, store, year)
		if err != nil {
			c.Log.Error("API %s %d: %v", store, year, err)
			continue
		}
		if len(raws) == 0 {
			c.Log.Info("API %d: No catalogues found", year)
			continue
		}
		for i := range raws {
			raws[i].Store = store
		}
		all = append(all, raws...)
		c.Log.Info("API %d: %d catalogues", year, len(raws))
	}
	c.Log.Info("API Total: %d catalogues", len(all))
	return all
}

func (c *Client) fetchYear(ctx context.Context, store string, year int) ([]catalogue.Raw, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ArchiveURL(store, year), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.API.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var raws []catalogue.Raw
	if err := json.Unmarshal(body, &raws); err != nil {
		// objects, strings and false all mean "nothing for this year"
		var probe any
		if json.Unmarshal(body, &probe) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	return raws, nil
}

// Result is the outcome of one catalogue download.
type Result struct {
	PagesDownloaded int
	FailedPages     []int
	Folder          string
	ScrapedAt       time.Time
}

// Folder is where a record's pages are stored.
func (c *Client) Folder(r catalogue.Record) string {
	return filepath.Join(c.OutputRoot, r.Store, r.Year, r.Slug)
}

// PageURL is the CDN address of one page.
func (c *Client) PageURL(r catalogue.Record, page int) string {
	return fmt.Sprintf("%s/%s/%s/%d.jpg", c.CDNBase, url.PathEscape(r.Store), url.PathEscape(r.Slug), page)
}

// PageFile is the local file name of one page.
func PageFile(page int) string {
	return fmt.Sprintf("page_%03d.jpg", page)
}

type pageOutcome int

const (
	pageSaved pageOutcome = iota
	pageMissing
	pageFailed
)

// DownloadCatalogue fetches pages 1..n of r until a 404, the expected page
// count, or MaxConsecutiveFailures failures in a row. Pages already on disk
// are counted without a request. A metadata sidecar is written on exit.
func (c *Client) DownloadCatalogue(ctx context.Context, r catalogue.Record) (Result, error) {
	for _, part := range []string{r.Store, r.Year, r.Slug} {
		if !catalogue.SafeSlug(part) {
			return Result{}, fmt.Errorf("%w: %q", ErrUnsafePath, part)
		}
	}
	folder := c.Folder(r)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", folder, err)
	}
	c.Log.Info("DOWNLOAD START: %s | Store: %s | Year: %s | Expected pages: %d | Folder: %s",
		r.Title, r.Store, r.Year, r.PageCount, folder)

	res := Result{Folder: folder, FailedPages: []int{}}
	consecutive := 0
	var loopErr error

	for page := 1; ; page++ {
		path := filepath.Join(folder, PageFile(page))
		if _, err := os.Stat(path); err == nil {
			c.Log.Debug("Page %d exists - skipping", page)
			res.PagesDownloaded++
			consecutive = 0
			if r.PageCount > 0 && res.PagesDownloaded >= r.PageCount {
				break
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}

		outcome, err := c.fetchPage(ctx, c.PageURL(r, page), path)
		if err != nil {
			// a page that could not be written to disk ends the catalogue
			loopErr = err
			break
		}
		switch outcome {
		case pageSaved:
			res.PagesDownloaded++
			consecutive = 0
			if res.PagesDownloaded%10 == 0 {
				c.Log.Info("Progress: %d/%d pages", res.PagesDownloaded, r.PageCount)
			}
		case pageMissing:
			c.Log.Info("Page %d not found (404) - end of catalogue", page)
		case pageFailed:
			res.FailedPages = append(res.FailedPages, page)
			consecutive++
		}
		if outcome == pageMissing {
			break
		}
		if consecutive >= MaxConsecutiveFailures {
			c.Log.Warn("Stopped after %d consecutive failures", consecutive)
			break
		}
		if r.PageCount > 0 && res.PagesDownloaded >= r.PageCount {
			break
		}
	}

	res.ScrapedAt = c.Now()
	if err := c.writeSidecar(folder, r, res); err != nil {
		return res, errors.Join(loopErr, err)
	}
	if len(res.FailedPages) > 0 {
		c.Log.Info("DOWNLOAD COMPLETE! Downloaded %d pages | Failed pages: %d", res.PagesDownloaded, len(res.FailedPages))
	} else {
		c.Log.Info("DOWNLOAD COMPLETE! Downloaded %d pages", res.PagesDownloaded)
	}
	return res, loopErr
}

// fetchPage returns an error only when the page could not be written locally.
func (c *Client) fetchPage(ctx context.Context, pageURL, path string) (pageOutcome, error) {
	page := filepath.Base(path)
	if err := c.wait(ctx); err != nil {
		c.Log.Error("%s - Error: %v", page, err)
		return pageFailed, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		c.Log.Error("%s - Error: %v", page, err)
		return pageFailed, nil
	}
	resp, err := c.Images.Do(req)
	if err != nil {
		c.Log.Error("%s - Error: %v", page, err)
		return pageFailed, nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return pageMissing, nil
	default:
		c.Log.Warn("%s - HTTP %d", page, resp.StatusCode)
		return pageFailed, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+page+".part-*")
	if err != nil {
		return pageFailed, fmt.Errorf("create temp for %s: %w", page, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		// a body cut off mid-transfer is a network failure, not a disk one
		c.Log.Error("%s - Error: %v", page, err)
		return pageFailed, nil
	}
	if err := tmp.Close(); err != nil {
		return pageFailed, fmt.Errorf("close %s: %w", page, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pageFailed, fmt.Errorf("save %s: %w", page, err)
	}
	return pageSaved, nil
}

// Sidecar is the metadata.json written into every catalogue folder.
type Sidecar struct {
	catalogue.Record
	FailedPages []int  `json:"failed_pages"`
	RunID       string `json:"run_id,omitempty"`
}

func (c *Client) writeSidecar(folder string, r catalogue.Record, res Result) error {
	sc := Sidecar{Record: r, FailedPages: res.FailedPages, RunID: c.RunID}
	sc.Downloaded = res.PagesDownloaded > 0 || r.Downloaded
	sc.ScrapedDate = res.ScrapedAt.Format(time.RFC3339)
	if res.PagesDownloaded > sc.PagesDownloaded {
		sc.PagesDownloaded = res.PagesDownloaded
	}

	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	path := filepath.Join(folder, MetadataFile)
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadSidecar loads a catalogue folder's metadata.json.
func ReadSidecar(folder string) (Sidecar, error) {
	var sc Sidecar
	b, err := os.ReadFile(filepath.Join(folder, MetadataFile))
	if err != nil {
		return sc, err
	}
	if err := json.Unmarshal(b, &sc); err != nil {
		return sc, fmt.Errorf("decode %s: %w", MetadataFile, err)
	}
	return sc, nil
}
