package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thesavant42/wayback-extractor/internal/models"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://web.archive.org/cdx/search/cdx"
	cdxTimeout     = 180 * time.Second // 3 minutes for large domain queries
	cdxBatchSize   = 1000              // records per request; larger batches = fewer requests
)

// ErrRetriesExhausted is returned when a transient upstream failure persists
// past the retry ceiling. Rows gathered before the failure are still
// returned alongside it.
var ErrRetriesExhausted = errors.New("retry ceiling exhausted")

// statusError carries the upstream HTTP status so retry logic can
// distinguish rate limiting and server errors from hard failures.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("CDX API returned status %d: %s", e.code, e.body)
}

// Config controls fetch behavior. The zero value gets production defaults;
// tests override BaseURL, RetryBase and Limiter.
type Config struct {
	BaseURL    string
	MaxRetries int
	RetryBase  time.Duration // first backoff interval, doubled per retry
	Limiter    *rate.Limiter // nil disables the inter-request delay
	Logger     *log.Logger
}

// Client handles Wayback Machine CDX API requests
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryBase  time.Duration
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient creates a new Wayback Machine API client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cdxTimeout,
		},
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
	}
}

// NormalizeDomain strips a scheme, path and trailing dot from user input,
// leaving the bare hostname the CDX API expects.
// Examples:
//   - "https://blog.example.com/archive" -> "blog.example.com"
//   - "Example.COM/" -> "example.com"
func NormalizeDomain(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty domain")
	}

	if strings.Contains(input, "://") {
		parsed, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		input = parsed.Hostname()
	} else if i := strings.IndexByte(input, '/'); i >= 0 {
		input = input[:i]
	}

	input = strings.ToLower(strings.TrimSuffix(input, "."))
	if input == "" {
		return "", fmt.Errorf("empty domain")
	}

	// Reject inputs with no registrable domain (e.g. "localhost") before
	// any network call is made
	if _, err := publicsuffix.EffectiveTLDPlusOne(input); err != nil {
		return "", fmt.Errorf("not a registrable domain: %w", err)
	}

	return input, nil
}

// ExtractRootDomain extracts the root domain from a URL or hostname
// Uses publicsuffix to handle complex TLDs like .co.uk
// Examples:
//   - "https://playground.bfl.ai/" -> "bfl.ai"
//   - "test1.dev.pci.westcoast.acme.com" -> "acme.com"
func ExtractRootDomain(input string) (string, error) {
	host, err := NormalizeDomain(input)
	if err != nil {
		return "", err
	}
	return publicsuffix.EffectiveTLDPlusOne(host)
}

// Query describes a single CDX page request. Encoding it performs no network
// access, so a run can be restarted by re-encoding the same query with a
// fresh resume key.
type Query struct {
	Domain    string
	FromYear  int   // 0 = unbounded
	ToYear    int   // 0 = unbounded
	Statuses  []int // empty = no server-side status filter
	Collapse  bool  // collapse=urlkey, server-side dedup
	PageSize  int   // 0 = cdxBatchSize
	ResumeKey string
}

// FilterKey canonically identifies the server-side filters of a query.
// Cached fetch state is only reusable when the filters that produced it
// match; a completed fetch under --from 2021 is not a completed fetch of
// the whole domain.
func (q Query) FilterKey() string {
	codes := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		codes[i] = strconv.Itoa(s)
	}
	return fmt.Sprintf("from=%d;to=%d;status=%s;collapse=%t",
		q.FromYear, q.ToYear, strings.Join(codes, ","), q.Collapse)
}

// Encode constructs the raw query string for the CDX API.
// Returns the query string WITHOUT the leading '?'.
// The asterisk wildcard must NOT be URL-encoded for the CDX API.
func (q Query) Encode() string {
	domain := strings.ToLower(strings.TrimSpace(q.Domain))

	size := q.PageSize
	if size <= 0 {
		size = cdxBatchSize
	}

	// *.domain matches all subdomains (matchType=domain per CDX API docs).
	// IMPORTANT: The asterisk must remain literal (not encoded as %2A)
	query := fmt.Sprintf(
		"url=*.%s&output=json&fl=original,timestamp,statuscode,mimetype&limit=%d&showResumeKey=true",
		domain,
		size,
	)

	if q.Collapse {
		query += "&collapse=urlkey"
	}
	if q.FromYear > 0 {
		query += fmt.Sprintf("&from=%d", q.FromYear)
	}
	if q.ToYear > 0 {
		query += fmt.Sprintf("&to=%d", q.ToYear)
	}
	if len(q.Statuses) > 0 {
		codes := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			codes[i] = strconv.Itoa(s)
		}
		// CDX filters are regexes; alternation matches any code in the set
		query += "&filter=statuscode:(" + strings.Join(codes, "|") + ")"
	}
	if q.ResumeKey != "" {
		query += "&resumeKey=" + url.QueryEscape(q.ResumeKey)
	}

	return query
}

// FetchPage performs a single CDX request and returns the raw rows.
// Non-2xx responses surface as *statusError so FetchAll can decide
// retryability.
func (c *Client) FetchPage(q Query) (*models.CDXPage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	// Build raw URL string with literal asterisk - DO NOT use url.URL as it
	// encodes the asterisk
	rawURL := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers emulating a real browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://web.archive.org/")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	// Handle gzip-compressed responses. Use case-insensitive check and
	// handle variations like "gzip", "x-gzip", etc.
	var reader io.Reader = resp.Body
	contentEncoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	if strings.Contains(contentEncoding, "gzip") {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseCDXPage(body)
}

// parseCDXPage parses the CDX JSON response
// Format: [[header], [row1], [row2], ..., [], [resumeKey]]
// Each row: [original, timestamp, statuscode, mimetype]
// Resume key is a single-element array at the end (if more pages exist)
// Note: There may be an empty array [] before the resume key
func parseCDXPage(body []byte) (*models.CDXPage, error) {
	var rawRows [][]string
	if err := json.Unmarshal(body, &rawRows); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	page := &models.CDXPage{
		Rows:    make([][]string, 0),
		HasMore: false,
	}

	if len(rawRows) == 0 {
		return page, nil
	}

	// Check last element for resume key FIRST (single-element array)
	lastRow := rawRows[len(rawRows)-1]
	if len(lastRow) == 1 {
		page.ResumeKey = lastRow[0]
		page.HasMore = true
		rawRows = rawRows[:len(rawRows)-1]
	}

	// Skip header row (index 0) - it contains field names
	for i := 1; i < len(rawRows); i++ {
		row := rawRows[i]

		// Skip empty rows (API sometimes includes [] before resume key)
		if len(row) == 0 {
			continue
		}

		page.Rows = append(page.Rows, row)
	}

	return page, nil
}

// FetchResult contains the outcome of a paginated CDX fetch
type FetchResult struct {
	Rows       [][]string
	ResumeKey  string // Current resume key (empty if complete)
	IsComplete bool   // True if all pages fetched
	Err        error  // Non-nil if the fetch failed (rows may still be partial)
}

// FetchAll pages through the CDX API until exhaustion or until limit raw
// rows have been gathered. Transient failures (5xx, 429, timeout) are
// retried with bounded exponential backoff; past the ceiling the partial
// rows are returned together with ErrRetriesExhausted. The progress
// callback, if non-nil, is called with (total rows, page number) after each
// page.
func (c *Client) FetchAll(q Query, limit int, progress func(count, page int)) FetchResult {
	var rows [][]string
	resumeKey := q.ResumeKey
	page := 0
	retryCount := 0

	for {
		page++

		pageQuery := q
		pageQuery.ResumeKey = resumeKey
		if limit > 0 {
			if remaining := limit - len(rows); remaining < cdxBatchSize {
				pageQuery.PageSize = remaining
			}
		}

		resp, err := c.FetchPage(pageQuery)
		if err != nil {
			var se *statusError
			isRateLimit := errors.As(err, &se) && (se.code == http.StatusTooManyRequests || se.code >= 500)
			isTimeout := strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded")

			if isRateLimit || isTimeout {
				if retryCount < c.maxRetries {
					retryCount++
					backoff := c.retryBase << (retryCount - 1)
					if c.logger != nil {
						if isRateLimit {
							c.logger.Warn("Rate limited, waiting", "backoff", backoff, "retry", retryCount, "maxRetries", c.maxRetries)
						} else {
							c.logger.Warn("Request timeout, retrying", "backoff", backoff, "retry", retryCount, "maxRetries", c.maxRetries)
						}
					}
					time.Sleep(backoff)
					page-- // Retry same page
					continue
				}
				// Max retries exceeded: return what we have with the resume
				// key so the run can be resumed later
				if c.logger != nil {
					c.logger.Warn("Max retries exceeded, returning partial results", "retries", c.maxRetries, "rows", len(rows))
				}
				return FetchResult{
					Rows:       rows,
					ResumeKey:  resumeKey,
					IsComplete: false,
					Err:        fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.maxRetries, err),
				}
			}
			// Other errors (invalid URL, connection refused, malformed body)
			// are not retried
			return FetchResult{
				Rows:       rows,
				ResumeKey:  resumeKey,
				IsComplete: false,
				Err:        err,
			}
		}

		retryCount = 0
		rows = append(rows, resp.Rows...)

		if progress != nil {
			progress(len(rows), page)
		}
		if c.logger != nil {
			c.logger.Info("CDX page fetched", "page", page, "pageRows", len(resp.Rows), "totalRows", len(rows), "hasMore", resp.HasMore)
		}

		if limit > 0 && len(rows) >= limit {
			if len(rows) > limit {
				// The trailing rows of this page are discarded, so a resume
				// must refetch the page from its starting boundary rather
				// than skip past the discarded rows
				return FetchResult{
					Rows:       rows[:limit],
					ResumeKey:  resumeKey,
					IsComplete: false,
				}
			}
			return FetchResult{
				Rows:       rows,
				ResumeKey:  resp.ResumeKey,
				IsComplete: !resp.HasMore,
			}
		}

		if !resp.HasMore || resp.ResumeKey == "" {
			return FetchResult{
				Rows:       rows,
				IsComplete: true,
			}
		}

		resumeKey = resp.ResumeKey
	}
}
