package db

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    domain TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    status_code INTEGER,
    mime_type TEXT,
    fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(url, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_domain ON snapshots(domain);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(domain, timestamp);
`

const createFetchStateTable = `
CREATE TABLE IF NOT EXISTS fetch_state (
    domain TEXT PRIMARY KEY,
    filters TEXT NOT NULL DEFAULT '',
    resume_key TEXT,
    total_fetched INTEGER NOT NULL DEFAULT 0,
    is_complete BOOLEAN NOT NULL DEFAULT 0,
    last_error TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const insertSnapshot = `
INSERT OR IGNORE INTO snapshots (url, domain, timestamp, status_code, mime_type)
VALUES (?, ?, ?, ?, ?)
`

const selectSnapshots = `
SELECT url, timestamp, status_code, mime_type FROM snapshots
WHERE domain = ?
ORDER BY timestamp ASC, id ASC
`

const selectSnapshotCount = `
SELECT COUNT(*) FROM snapshots WHERE domain = ?
`

const upsertFetchState = `
INSERT INTO fetch_state (domain, filters, resume_key, total_fetched, is_complete, last_error, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(domain) DO UPDATE SET
    filters = excluded.filters,
    resume_key = excluded.resume_key,
    total_fetched = excluded.total_fetched,
    is_complete = excluded.is_complete,
    last_error = excluded.last_error,
    updated_at = CURRENT_TIMESTAMP
`

const selectFetchState = `
SELECT domain, filters, resume_key, total_fetched, is_complete, last_error, updated_at
FROM fetch_state WHERE domain = ?
`

const deleteFetchState = `
DELETE FROM fetch_state WHERE domain = ?
`
