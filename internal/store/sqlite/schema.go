package sqlite

// SchemaVersion is the tracking schema this package reads and writes.
const SchemaVersion = "1"

// initialSchema holds the version table and the tracking table. Rows keep
// their table order in position.
const initialSchema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS catalogues (
    slug TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    store TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    year TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    catalogue_on_sale_date TEXT NOT NULL DEFAULT '',
    scraped_date TEXT NOT NULL DEFAULT '',
    page_count INTEGER NOT NULL DEFAULT 0,
    pages_downloaded INTEGER NOT NULL DEFAULT 0,
    downloaded INTEGER NOT NULL DEFAULT 0,
    id TEXT NOT NULL DEFAULT ''
);
`
