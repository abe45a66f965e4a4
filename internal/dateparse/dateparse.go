// Package dateparse pulls catalogue sale dates out of retailer slugs.
//
// Slugs look like "weekly-woolworths-catalogue-november-12-18-2025-sa" or
// "weekly-woolworths-catalogue-november-25-december-2-2025-vic". Only the
// first day/month pair is used; it is the sale start.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unknown is stored when no sale date can be derived.
const Unknown = "Unknown"

type month struct {
	name string
	num  string
	re   *regexp.Regexp
}

// months is in calendar order; the first month whose pattern matches wins.
var months = func() []month {
	names := []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}
	// an optional end month and/or end day may sit between start day and year
	end := `(?:(?:` + strings.Join(names, "|") + `)-)?(?:\d{1,2}-)?`
	out := make([]month, 0, len(names))
	for i, name := range names {
		out = append(out, month{
			name: name,
			num:  fmt.Sprintf("%02d", i+1),
			re:   regexp.MustCompile(name + `-(\d{1,2})-` + end + `(\d{4})`),
		})
	}
	return out
}()

// ExtractDate returns the sale-start date in a slug as YYYY-MM-DD.
func ExtractDate(slug string) (string, bool) {
	if slug == "" {
		return "", false
	}
	s := strings.ToLower(slug)
	for _, m := range months {
		if !strings.Contains(s, m.name) {
			continue
		}
		match := m.re.FindStringSubmatch(s)
		if match == nil {
			continue
		}
		day := match[1]
		if len(day) == 1 {
			day = "0" + day
		}
		return match[2] + "-" + m.num + "-" + day, true
	}
	return "", false
}

// FromTimestamp formats an all-digit Unix seconds value as YYYY-MM-DD in loc.
func FromTimestamp(raw string, loc *time.Location) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", false
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(secs, 0).In(loc).Format("2006-01-02"), true
}

// SaleDate tries the slug, then the API start timestamp, then gives Unknown.
func SaleDate(slug, startDate string, loc *time.Location) string {
	if d, ok := ExtractDate(slug); ok {
		return d
	}
	if d, ok := FromTimestamp(startDate, loc); ok {
		return d
	}
	return Unknown
}
