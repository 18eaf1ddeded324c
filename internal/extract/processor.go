// Package extract turns raw CDX rows into the final filtered, deduplicated
// record set and the aggregate counts for the summary report.
package extract

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thesavant42/wayback-extractor/internal/models"
)

const timestampLayout = "20060102150405"

// Options controls client-side processing. ServerFilteredDate and
// ServerFilteredStatus mark filters the CDX query already applied, so they
// are not re-applied here.
type Options struct {
	Filter               string // glob pattern(s), comma-separated alternatives
	FromYear             int
	ToYear               int
	Statuses             []int
	Dedup                bool
	Limit                int
	ServerFilteredDate   bool
	ServerFilteredStatus bool
	Logger               *log.Logger
}

// ParseRows maps raw CDX rows to SnapshotRecords. Rows with a missing URL,
// too few fields, or an unparseable timestamp are dropped and counted as
// parse failures, never fatal.
func ParseRows(rows [][]string, logger *log.Logger) ([]models.SnapshotRecord, int) {
	records := make([]models.SnapshotRecord, 0, len(rows))
	failures := 0

	for _, row := range rows {
		rec, ok := parseRow(row)
		if !ok {
			failures++
			if logger != nil {
				logger.Debug("Dropped malformed row", "row", strings.Join(row, ","))
			}
			continue
		}
		records = append(records, rec)
	}

	return records, failures
}

func parseRow(row []string) (models.SnapshotRecord, bool) {
	if len(row) < 2 || row[0] == "" {
		return models.SnapshotRecord{}, false
	}
	if _, err := time.Parse(timestampLayout, row[1]); err != nil {
		return models.SnapshotRecord{}, false
	}

	rec := models.SnapshotRecord{
		URL:       row[0],
		Timestamp: row[1],
	}

	// Status code may be empty or "-" in older archive data
	if len(row) > 2 && row[2] != "" && row[2] != "-" {
		if code, err := strconv.Atoi(row[2]); err == nil {
			rec.StatusCode = &code
		}
	}
	if len(row) > 3 && row[3] != "" && row[3] != "-" {
		mimeType := row[3]
		rec.MimeType = &mimeType
	}

	return rec, true
}

// Process applies client-side filters, deduplication, the record limit and
// aggregation, producing the final ExtractionResult. parseFailures is
// carried into the stats so the report shows dropped rows.
func Process(domain string, records []models.SnapshotRecord, parseFailures int, opts Options) *models.ExtractionResult {
	filtered := make([]models.SnapshotRecord, 0, len(records))
	for _, rec := range records {
		if !keep(rec, opts) {
			if opts.Logger != nil {
				opts.Logger.Debug("Filtered out record", "url", rec.URL, "timestamp", rec.Timestamp)
			}
			continue
		}
		filtered = append(filtered, rec)
	}

	total := len(filtered)
	deduped := Deduplicate(filtered)

	final := filtered
	if opts.Dedup {
		final = deduped
	}
	if opts.Limit > 0 && len(final) > opts.Limit {
		final = final[:opts.Limit]
	}

	stats := models.ExtractionStats{
		TotalFetched:  total,
		Unique:        len(deduped),
		Duplicates:    total - len(deduped),
		ParseFailures: parseFailures,
		ByType:        make(map[string]int),
		ByStatus:      make(map[string]int),
	}
	for _, rec := range final {
		stats.ByType[Categorize(rec.MimeType, rec.URL)]++
		if rec.StatusCode != nil {
			stats.ByStatus[strconv.Itoa(*rec.StatusCode)]++
		} else {
			stats.ByStatus["unknown"]++
		}
	}

	return &models.ExtractionResult{
		Domain:  domain,
		Records: final,
		Stats:   stats,
	}
}

func keep(rec models.SnapshotRecord, opts Options) bool {
	if opts.Filter != "" && !MatchesPattern(rec.URL, opts.Filter) {
		return false
	}
	if !opts.ServerFilteredStatus && len(opts.Statuses) > 0 {
		if rec.StatusCode == nil {
			return false
		}
		found := false
		for _, s := range opts.Statuses {
			if *rec.StatusCode == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !opts.ServerFilteredDate && (opts.FromYear > 0 || opts.ToYear > 0) {
		if len(rec.Timestamp) < 4 {
			return false
		}
		year, err := strconv.Atoi(rec.Timestamp[:4])
		if err != nil {
			return false
		}
		if opts.FromYear > 0 && year < opts.FromYear {
			return false
		}
		if opts.ToYear > 0 && year > opts.ToYear {
			return false
		}
	}
	return true
}

// MatchesPattern reports whether the URL's path matches any of the
// comma-separated glob patterns (e.g. "*.html,*.pdf"). Patterns without a
// slash match against the final path segment, query string excluded;
// patterns with a slash match against the whole path.
func MatchesPattern(rawURL, patterns string) bool {
	pathPart := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		// A URL with no path has nothing for a suffix pattern to match;
		// falling back to the raw URL would let *.com match the bare host
		if u.Path == "" {
			return false
		}
		pathPart = u.Path
	}
	base := path.Base(pathPart)

	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			if ok, err := path.Match(p, pathPart); err == nil && ok {
				return true
			}
			continue
		}
		if ok, err := path.Match(p, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Deduplicate collapses records sharing the same normalized URL, keeping the
// first-seen representative. The CDX API returns captures in ascending
// timestamp order, so first-seen is the oldest capture and the result is
// stable across re-runs. Idempotent: deduplicating an already-deduplicated
// set returns the same set.
func Deduplicate(records []models.SnapshotRecord) []models.SnapshotRecord {
	seen := make(map[string]bool, len(records))
	unique := make([]models.SnapshotRecord, 0, len(records))
	for _, rec := range records {
		key := NormalizeURL(rec.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, rec)
	}
	return unique
}

// NormalizeURL lowercases the scheme and host and strips default ports
// (:80 for http, :443 for https). Path and query are left as-is: URL paths
// are case-sensitive.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	return u.String()
}

// Categorize buckets a record into a coarse file type for the report,
// preferring the MIME type and falling back to the URL suffix.
func Categorize(mimeType *string, rawURL string) string {
	mime := ""
	if mimeType != nil {
		mime = strings.ToLower(*mimeType)
	}
	switch {
	case strings.Contains(mime, "html"):
		return "HTML"
	case strings.Contains(mime, "image"):
		return "Image"
	case strings.Contains(mime, "css"):
		return "CSS"
	case strings.Contains(mime, "javascript"), strings.Contains(mime, "json"):
		return "JavaScript"
	case strings.Contains(mime, "pdf"):
		return "PDF"
	case strings.Contains(mime, "video"):
		return "Video"
	}

	lower := strings.ToLower(rawURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case hasAnySuffix(lower, ".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"):
		return "Image"
	case strings.HasSuffix(lower, ".css"):
		return "CSS"
	case strings.HasSuffix(lower, ".js"):
		return "JavaScript"
	case strings.HasSuffix(lower, ".pdf"):
		return "PDF"
	}
	return "Other"
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
