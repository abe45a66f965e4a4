package catalogue

// Merge joins freshly normalized metadata with the table from earlier runs.
//
// Every fresh row keeps its metadata but inherits download status from the
// existing row with the same slug: downloaded is sticky, scraped_date is
// coalesced and pages_downloaded never goes down. Existing rows whose slug
// is absent from fresh are appended unmodified, in their existing order.
func Merge(fresh, existing Table) Table {
	if len(existing) == 0 {
		return fresh
	}

	bySlug := make(map[string]int, len(existing))
	for i, r := range existing {
		if _, dup := bySlug[r.Slug]; !dup {
			bySlug[r.Slug] = i
		}
	}

	out := make(Table, 0, len(fresh)+len(existing))
	inFresh := make(map[string]bool, len(fresh))
	for _, r := range fresh {
		inFresh[r.Slug] = true
		if i, ok := bySlug[r.Slug]; ok {
			r = mergeStatus(r, existing[i])
		}
		out = append(out, r)
	}
	for _, r := range existing {
		if inFresh[r.Slug] {
			continue
		}
		inFresh[r.Slug] = true
		out = append(out, r)
	}
	return out
}

// mergeStatus copies download status from old into r, old winning unless
// it holds the zero value.
func mergeStatus(r, old Record) Record {
	r.Downloaded = old.Downloaded || r.Downloaded
	if old.ScrapedDate != "" {
		r.ScrapedDate = old.ScrapedDate
	}
	if old.PagesDownloaded > r.PagesDownloaded {
		r.PagesDownloaded = old.PagesDownloaded
	}
	return r
}

// MarkDownloaded records a finished download for slug in place. Pages never
// decrease. It reports whether slug was found.
func (t Table) MarkDownloaded(slug, scrapedAt string, pages int) bool {
	i := t.Index(slug)
	if i < 0 {
		return false
	}
	t[i].Downloaded = true
	t[i].ScrapedDate = scrapedAt
	if pages > t[i].PagesDownloaded {
		t[i].PagesDownloaded = pages
	}
	return true
}
