package store

// Schema is applied on every Open. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS thumbnail_cache (
    cache_key  TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    stored_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS load_history (
    load_id      TEXT PRIMARY KEY,
    file_key     TEXT NOT NULL,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER,
    status       TEXT NOT NULL DEFAULT 'loading',
    screen_count INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_load_history_started ON load_history(started_at DESC);
`
