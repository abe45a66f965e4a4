package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/maloquacious/catscrape/internal/store"
)

const rule = "======================================================================"

// Prompter asks questions on out and reads answers from in.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter wraps in and out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer line. EOF with no
// answer is ErrCancelled.
func (p *Prompter) Ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", fmt.Errorf("%w: no input", ErrCancelled)
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question; only "yes" or "y" is yes.
func (p *Prompter) Confirm(question string) (bool, error) {
	answer, err := p.Ask(question + " (yes/no): ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "yes", "y":
		return true, nil
	}
	return false, nil
}

// Prompt runs the interactive selection of stores, years, mode and storage.
// base supplies the paths and endpoints; the answers fill in the rest.
// Nothing is touched on disk or network here.
func (p *Prompter) Prompt(base Config, now time.Time) (Config, error) {
	cfg := base
	cfg.Started = now

	fmt.Fprintf(p.out, "\n%s\nCATALOGUE SCRAPER - CONFIGURATION\n%s\n\n", rule, rule)
	fmt.Fprintln(p.out, "Available stores:")
	for _, slug := range StoreSlugs() {
		fmt.Fprintf(p.out, "  - %s (%s)\n", KnownStores[slug], slug)
	}

	fmt.Fprintln(p.out, "\n[INPUT] SELECT STORES:")
	fmt.Fprintln(p.out, "  Enter store slugs separated by commas (e.g., woolworths,coles,aldi)")
	fmt.Fprintln(p.out, "  Or type 'all' for all stores")
	answer, err := p.Ask("\n  Your selection: ")
	if err != nil {
		return Config{}, err
	}
	if cfg.Stores, err = ParseStores(answer); err != nil {
		fmt.Fprintln(p.out, "  [ERROR] No valid stores selected")
		return Config{}, err
	}
	names := make([]string, 0, len(cfg.Stores))
	for _, s := range cfg.Stores {
		names = append(names, KnownStores[s])
	}
	fmt.Fprintf(p.out, "  [SELECTED] %s\n", strings.Join(names, ", "))

	fmt.Fprintln(p.out, "\n[INPUT] SELECT YEARS:")
	fmt.Fprintln(p.out, "  Enter years separated by commas (e.g., 2023,2024,2025)")
	fmt.Fprintf(p.out, "  Or type 'all' for all years (%d-%d)\n", FirstYear, now.Year())
	if answer, err = p.Ask("\n  Your selection: "); err != nil {
		return Config{}, err
	}
	if cfg.Years, err = ParseYears(answer, now.Year()); err != nil {
		fmt.Fprintln(p.out, "  [ERROR] Invalid year format")
		return Config{}, err
	}
	fmt.Fprintf(p.out, "  [SELECTED] Years: %s\n", joinInts(cfg.Years))

	fmt.Fprintln(p.out, "\n[INPUT] SELECT MODE:")
	fmt.Fprintln(p.out, "  1. Update only (download new catalogues)")
	fmt.Fprintln(p.out, "  2. Refresh all (re-download everything with backup)")
	fmt.Fprintln(p.out, "  3. Custom selection (saves to separate folder)")
	if answer, err = p.Ask("\n  Your selection (1/2/3): "); err != nil {
		return Config{}, err
	}
	if cfg.Mode, err = ParseMode(answer); err != nil {
		return Config{}, err
	}
	switch cfg.Mode {
	case ModeRefresh:
		ok, err := p.Confirm("\n  [CONFIRM] This will backup and re-download all catalogues. Continue?")
		if err != nil {
			return Config{}, err
		}
		if !ok {
			fmt.Fprintln(p.out, "  [CANCELLED] Refresh operation cancelled")
			return Config{}, fmt.Errorf("%w: refresh not confirmed", ErrCancelled)
		}
	case ModeCustom:
		fmt.Fprintln(p.out, "  [INFO] Custom mode - will save to separate dated folder")
	}

	fmt.Fprintln(p.out, "\n[INPUT] SELECT STORAGE TYPE:")
	for i, k := range store.Kinds {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, strings.ToUpper(string(k)))
	}
	if answer, err = p.Ask("\n  Your selection (1-4): "); err != nil {
		return Config{}, err
	}
	cfg.Storage = storageChoice(answer, base.Storage)
	fmt.Fprintf(p.out, "  [SELECTED] Storage type: %s\n", strings.ToUpper(string(cfg.Storage)))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// storageChoice maps a menu number or name; anything else keeps def (CSV if unset).
func storageChoice(answer string, def store.Kind) store.Kind {
	if n := len(answer); n == 1 && answer[0] >= '1' && int(answer[0]-'1') < len(store.Kinds) {
		return store.Kinds[answer[0]-'1']
	}
	if k, err := store.ParseKind(answer); err == nil {
		return k
	}
	if def == "" {
		return store.KindCSV
	}
	return def
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
