package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

const cdxBody = `[["original","timestamp","statuscode","mimetype"],
["http://example.com/a.html","20200101000000","200","text/html"],
["http://example.com/b.pdf","20210615120000","200","application/pdf"]]`

const cdxBodyWithResume = `[["original","timestamp","statuscode","mimetype"],
["http://example.com/a.html","20200101000000","200","text/html"],
["http://example.com/b.pdf","20210615120000","200","application/pdf"],
[],
["com,example)/ 20210615120000"]]`

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		MaxRetries: maxRetries,
		RetryBase:  time.Millisecond,
	})
}

// TestQueryEncode verifies the query string is built correctly
func TestQueryEncode(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{
			name:  "plain domain",
			query: Query{Domain: "bfl.ai"},
			want:  []string{"url=*.bfl.ai", "output=json", "showResumeKey=true"},
		},
		{
			name:  "date bounds",
			query: Query{Domain: "example.com", FromYear: 2020, ToYear: 2023},
			want:  []string{"from=2020", "to=2023"},
		},
		{
			name:  "status filter",
			query: Query{Domain: "example.com", Statuses: []int{200, 301}},
			want:  []string{"filter=statuscode:(200|301)"},
		},
		{
			name:  "collapse",
			query: Query{Domain: "example.com", Collapse: true},
			want:  []string{"collapse=urlkey"},
		},
		{
			name:  "resume key escaped",
			query: Query{Domain: "example.com", ResumeKey: "com,example)/ 20200101"},
			want:  []string{"resumeKey=" + url.QueryEscape("com,example)/ 20200101")},
		},
		{
			name:  "domain cleaned",
			query: Query{Domain: "  Example.COM "},
			want:  []string{"url=*.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.query.Encode()

			// The asterisk must remain literal (not encoded as %2A)
			if strings.Contains(got, "%2A") || strings.Contains(got, "%2a") {
				t.Errorf("Encode() asterisk is encoded: %q", got)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Encode() = %q, want to contain %q", got, want)
				}
			}
		})
	}
}

func TestQueryEncodeOmitsUnsetFilters(t *testing.T) {
	got := Query{Domain: "example.com"}.Encode()
	if strings.Contains(got, "statuscode") {
		t.Errorf("Encode() = %q, unexpected status filter", got)
	}
	if strings.Contains(got, "collapse") {
		t.Errorf("Encode() = %q, unexpected collapse", got)
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cdxBodyWithResume)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	page, err := client.FetchPage(Query{Domain: "example.com"})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Rows) != 2 {
		t.Errorf("FetchPage() rows = %d, want 2", len(page.Rows))
	}
	if !page.HasMore {
		t.Error("FetchPage() HasMore = false, want true")
	}
	if page.ResumeKey != "com,example)/ 20210615120000" {
		t.Errorf("FetchPage() ResumeKey = %q", page.ResumeKey)
	}
	if page.Rows[0][0] != "http://example.com/a.html" {
		t.Errorf("FetchPage() first row URL = %q", page.Rows[0][0])
	}
}

func TestFetchPageNoResumeKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cdxBody)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	page, err := client.FetchPage(Query{Domain: "example.com"})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if page.HasMore {
		t.Error("FetchPage() HasMore = true, want false")
	}
	if len(page.Rows) != 2 {
		t.Errorf("FetchPage() rows = %d, want 2", len(page.Rows))
	}
}

func TestFetchPageMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	if _, err := client.FetchPage(Query{Domain: "example.com"}); err == nil {
		t.Fatal("FetchPage() expected error for malformed body")
	}
}

// TestFetchAllRetriesThenSucceeds simulates an upstream returning 503 twice
// before recovering
func TestFetchAllRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, cdxBody)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	result := client.FetchAll(Query{Domain: "example.com"}, 0, nil)

	if result.Err != nil {
		t.Fatalf("FetchAll() error = %v", result.Err)
	}
	if !result.IsComplete {
		t.Error("FetchAll() IsComplete = false, want true")
	}
	if len(result.Rows) != 2 {
		t.Errorf("FetchAll() rows = %d, want 2", len(result.Rows))
	}
	if calls != 3 {
		t.Errorf("upstream called %d times, want 3", calls)
	}
}

// TestFetchAllRetryCeiling verifies a persistent 503 exhausts the retry
// ceiling and surfaces ErrRetriesExhausted
func TestFetchAllRetryCeiling(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	result := client.FetchAll(Query{Domain: "example.com"}, 0, nil)

	if result.Err == nil {
		t.Fatal("FetchAll() expected error")
	}
	if !errors.Is(result.Err, ErrRetriesExhausted) {
		t.Errorf("FetchAll() error = %v, want ErrRetriesExhausted", result.Err)
	}
	if result.IsComplete {
		t.Error("FetchAll() IsComplete = true, want false")
	}
	// Initial attempt plus three retries
	if calls != 4 {
		t.Errorf("upstream called %d times, want 4", calls)
	}
}

// TestFetchAllPartialRowsOnExhaustion verifies rows gathered before the
// retry ceiling is hit are returned alongside ErrRetriesExhausted, with the
// resume key of the failed page so the run can be resumed
func TestFetchAllPartialRowsOnExhaustion(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, cdxBodyWithResume)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	result := client.FetchAll(Query{Domain: "example.com"}, 0, nil)

	if !errors.Is(result.Err, ErrRetriesExhausted) {
		t.Fatalf("FetchAll() error = %v, want ErrRetriesExhausted", result.Err)
	}
	if result.IsComplete {
		t.Error("FetchAll() IsComplete = true, want false")
	}
	if len(result.Rows) != 2 {
		t.Errorf("FetchAll() rows = %d, want the 2 rows from the good page", len(result.Rows))
	}
	if result.ResumeKey != "com,example)/ 20210615120000" {
		t.Errorf("FetchAll() ResumeKey = %q, want the failed page's key", result.ResumeKey)
	}
}

// TestFetchAllLimit verifies pagination stops once the limit is reached and
// excess rows are trimmed
func TestFetchAllLimit(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		fmt.Fprintf(w, `[["original","timestamp","statuscode","mimetype"],
["http://example.com/%d-a","20200101000000","200","text/html"],
["http://example.com/%d-b","20200101000000","200","text/html"],
["key-%d"]]`, page, page, page)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	result := client.FetchAll(Query{Domain: "example.com"}, 3, nil)

	if result.Err != nil {
		t.Fatalf("FetchAll() error = %v", result.Err)
	}
	if len(result.Rows) != 3 {
		t.Errorf("FetchAll() rows = %d, want 3", len(result.Rows))
	}
	if page != 2 {
		t.Errorf("upstream called %d times, want 2", page)
	}

	// The second page was truncated (its 2 rows exceed the limit by 1), so
	// the resume key must point at that page's starting boundary; resuming
	// past it would skip the discarded row
	if result.IsComplete {
		t.Error("FetchAll() IsComplete = true, want false after mid-page truncation")
	}
	if result.ResumeKey != "key-1" {
		t.Errorf("FetchAll() ResumeKey = %q, want key-1 (boundary of the truncated page)", result.ResumeKey)
	}
}

func TestFilterKey(t *testing.T) {
	a := Query{Domain: "example.com", FromYear: 2021}
	b := Query{Domain: "example.com"}
	c := Query{Domain: "other.org", FromYear: 2021}

	if a.FilterKey() == b.FilterKey() {
		t.Error("FilterKey() identical for filtered and unfiltered queries")
	}
	if a.FilterKey() != c.FilterKey() {
		t.Error("FilterKey() should not depend on the domain")
	}
	if got := (Query{Statuses: []int{200, 301}}).FilterKey(); !strings.Contains(got, "200,301") {
		t.Errorf("FilterKey() = %q, want status codes included", got)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"example.com", "example.com", false},
		{"https://blog.example.com/archive", "blog.example.com", false},
		{"Example.COM/", "example.com", false},
		{"example.com.", "example.com", false},
		{"", "", true},
		{"localhost", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeDomain(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeDomain(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractRootDomain(t *testing.T) {
	tests := []struct {
		input    string
		wantRoot string
		wantErr  bool
	}{
		{"bfl.ai", "bfl.ai", false},
		{"playground.bfl.ai", "bfl.ai", false},
		{"https://playground.bfl.ai/", "bfl.ai", false},
		{"https://www.example.com/path?query=1", "example.com", false},
		{"test.dev.pci.westcoast.acme.com", "acme.com", false},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExtractRootDomain(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractRootDomain(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.wantRoot {
				t.Errorf("ExtractRootDomain(%q) = %q, want %q", tt.input, got, tt.wantRoot)
			}
		})
	}
}
