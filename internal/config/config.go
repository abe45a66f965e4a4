// Package config builds the immutable run configuration handed to the
// runner, from flags, from the fixed automated profile or from prompts.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maloquacious/catscrape/internal/store"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrCancelled means the user declined at a prompt.
	ErrCancelled = errors.New("cancelled")
)

// Mode is fixed for the whole run.
type Mode string

const (
	ModeUpdate  Mode = "update"
	ModeRefresh Mode = "refresh"
	ModeCustom  Mode = "custom"
)

// ParseMode accepts a mode name or its menu number.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "update", "1", "":
		return ModeUpdate, nil
	case "refresh", "2":
		return ModeRefresh, nil
	case "custom", "3":
		return ModeCustom, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// KnownStores maps store slugs to display names.
var KnownStores = map[string]string{
	"woolworths": "Woolworths",
	"coles":      "Coles",
	"aldi":       "Aldi",
	"iga":        "IGA",
}

// StoreSlugs returns the known store slugs in menu order.
func StoreSlugs() []string {
	return []string{"woolworths", "coles", "aldi", "iga"}
}

// FirstYear is the oldest archive year requested by "all".
const FirstYear = 2020

// MinYear and MaxYear bound any accepted year.
const (
	MinYear = 2000
	MaxYear = 2100
)

// ParseStores accepts "all" or a comma list of known store slugs.
func ParseStores(s string) ([]string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return StoreSlugs(), nil
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := KnownStores[part]; !ok {
			return nil, fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, part)
		}
		if !seen[part] {
			seen[part] = true
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid stores selected", ErrInvalidConfig)
	}
	return out, nil
}

// ParseYears accepts "all" (FirstYear..last), a comma list or ranges like 2021-2023.
func ParseYears(s string, last int) ([]int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return yearRange(FirstYear, last), nil
	}
	seen := map[int]bool{}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to := part, part
		if i := strings.Index(part, "-"); i > 0 {
			from, to = part[:i], part[i+1:]
		}
		a, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid year format %q", ErrInvalidConfig, part)
		}
		b, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil || b < a {
			return nil, fmt.Errorf("%w: invalid year format %q", ErrInvalidConfig, part)
		}
		if a < MinYear || b > MaxYear {
			return nil, fmt.Errorf("%w: year %q outside %d-%d", ErrInvalidConfig, part, MinYear, MaxYear)
		}
		for y := a; y <= b; y++ {
			if !seen[y] {
				seen[y] = true
				out = append(out, y)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no years selected", ErrInvalidConfig)
	}
	sort.Ints(out)
	return out, nil
}

func yearRange(from, to int) []int {
	var out []int
	for y := from; y <= to; y++ {
		out = append(out, y)
	}
	return out
}

// Config is one run's settings. It is built once and never mutated.
type Config struct {
	Stores  []string
	Years   []int
	Mode    Mode
	Storage store.Kind

	// Root holds the canonical output folder and the data dir.
	Root       string
	OutputDir  string
	DataDir    string
	MongoURI   string
	MongoDB    string
	APIBase    string
	CDNBase    string
	RatePerSec float64

	Automated bool
	// AssumeYes skips the download confirmation.
	AssumeYes bool
	Verbose   bool

	RunID   string
	Started time.Time
}

// Automated is the scheduled-run profile: every store, FirstYear through
// next year, update mode, CSV.
func Automated(now time.Time) Config {
	return Config{
		Stores:    StoreSlugs(),
		Years:     yearRange(FirstYear, now.Year()+1),
		Mode:      ModeUpdate,
		Storage:   store.KindCSV,
		Automated: true,
		AssumeYes: true,
		Started:   now,
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if len(c.Stores) == 0 {
		return fmt.Errorf("%w: no stores selected", ErrInvalidConfig)
	}
	for _, s := range c.Stores {
		if _, ok := KnownStores[s]; !ok {
			return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, s)
		}
	}
	if len(c.Years) == 0 {
		return fmt.Errorf("%w: no years selected", ErrInvalidConfig)
	}
	for _, y := range c.Years {
		if y < MinYear || y > MaxYear {
			return fmt.Errorf("%w: year %d out of range", ErrInvalidConfig, y)
		}
	}
	if _, err := ParseMode(string(c.Mode)); err != nil || c.Mode == "" {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if _, err := store.ParseKind(string(c.Storage)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Storage == store.KindMongo && c.MongoURI == "" {
		return fmt.Errorf("%w: mongo storage needs a URI", ErrInvalidConfig)
	}
	return nil
}

// CanonicalOutput is the shared catalogue folder.
func (c Config) CanonicalOutput() string {
	return filepath.Join(c.Root, c.OutputDir)
}

// Output is where this run writes images: the canonical folder, or a dated
// customDL_YYYYMMDD folder in custom mode.
func (c Config) Output() string {
	if c.Mode == ModeCustom {
		return filepath.Join(c.Root, "customDL_"+c.Started.Format("20060102"))
	}
	return c.CanonicalOutput()
}

// Data is the canonical tracking folder.
func (c Config) Data() string {
	return filepath.Join(c.Root, c.DataDir)
}

// RunData is where this run saves tracking state. Custom runs keep their
// own table inside their dated folder.
func (c Config) RunData() string {
	if c.Mode == ModeCustom {
		return filepath.Join(c.Output(), c.DataDir)
	}
	return c.Data()
}

// LogDir holds per-run log files.
func (c Config) LogDir() string {
	return filepath.Join(c.Data(), "logs")
}

func (c Config) String() string {
	return fmt.Sprintf("Stores=%v, Years=%v, Mode=%s, Storage=%s", c.Stores, c.Years, c.Mode, c.Storage)
}
