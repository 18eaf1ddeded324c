package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thesavant42/wayback-extractor/internal/models"
)

// InsertSnapshots inserts snapshot records for a domain.
// Uses INSERT OR IGNORE to skip duplicates (unique on url + timestamp).
// Returns the number of records actually inserted.
func (db *DB) InsertSnapshots(domain string, records []models.SnapshotRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertSnapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		var statusCode interface{}
		if r.StatusCode != nil {
			statusCode = *r.StatusCode
		}
		var mimeType interface{}
		if r.MimeType != nil {
			mimeType = *r.MimeType
		}

		result, err := stmt.Exec(r.URL, domain, r.Timestamp, statusCode, mimeType)
		if err != nil {
			// Skip errors for individual records (e.g., duplicates)
			continue
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// GetSnapshots retrieves all cached snapshots for a domain in capture order
func (db *DB) GetSnapshots(domain string) ([]models.SnapshotRecord, error) {
	rows, err := db.conn.Query(selectSnapshots, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var records []models.SnapshotRecord
	for rows.Next() {
		var r models.SnapshotRecord
		var statusCode sql.NullInt64
		var mimeType sql.NullString

		if err := rows.Scan(&r.URL, &r.Timestamp, &statusCode, &mimeType); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if statusCode.Valid {
			code := int(statusCode.Int64)
			r.StatusCode = &code
		}
		if mimeType.Valid {
			mt := mimeType.String
			r.MimeType = &mt
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// SnapshotCount returns the number of cached snapshots for a domain
func (db *DB) SnapshotCount(domain string) (int, error) {
	var count int
	err := db.conn.QueryRow(selectSnapshotCount, domain).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// FetchState represents the pagination state of a CDX fetch for a domain.
// Filters fingerprints the server-side query filters that produced the
// state; a state saved under different filters must not be resumed or
// treated as complete.
type FetchState struct {
	Domain       string
	Filters      string
	ResumeKey    string
	TotalFetched int
	IsComplete   bool
	LastError    string
	UpdatedAt    time.Time
}

// SaveFetchState saves or updates the fetch state for a domain
func (db *DB) SaveFetchState(domain, filters, resumeKey string, totalFetched int, isComplete bool, lastError string) error {
	_, err := db.conn.Exec(upsertFetchState, domain, filters, resumeKey, totalFetched, isComplete, lastError)
	if err != nil {
		return fmt.Errorf("failed to save fetch state: %w", err)
	}
	return nil
}

// GetFetchState retrieves the fetch state for a domain, nil if none exists
func (db *DB) GetFetchState(domain string) (*FetchState, error) {
	var state FetchState
	var resumeKey, lastError sql.NullString
	var updatedAt string

	err := db.conn.QueryRow(selectFetchState, domain).Scan(
		&state.Domain, &state.Filters, &resumeKey, &state.TotalFetched, &state.IsComplete, &lastError, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch state: %w", err)
	}

	state.ResumeKey = resumeKey.String
	state.LastError = lastError.String
	state.UpdatedAt, _ = parseTimestamp(updatedAt)

	return &state, nil
}

// DeleteFetchState removes the fetch state for a domain
func (db *DB) DeleteFetchState(domain string) error {
	_, err := db.conn.Exec(deleteFetchState, domain)
	if err != nil {
		return fmt.Errorf("failed to delete fetch state: %w", err)
	}
	return nil
}
