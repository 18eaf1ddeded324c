package models

// SnapshotRecord represents one archived URL capture from the Wayback Machine
type SnapshotRecord struct {
	URL        string
	Timestamp  string  // 14-digit format: YYYYMMDDhhmmss
	StatusCode *int    // nullable - some records don't have status
	MimeType   *string // nullable - some records don't have mime type
}

// CDXPage represents one page of raw rows from a CDX API fetch
type CDXPage struct {
	Rows      [][]string
	ResumeKey string // For pagination
	HasMore   bool
}

// ExtractionStats holds the aggregate counts for the printed summary report
type ExtractionStats struct {
	TotalFetched  int
	Unique        int
	Duplicates    int
	ParseFailures int
	ByType        map[string]int
	ByStatus      map[string]int
}

// ExtractionResult is the final ordered record set plus its report stats
type ExtractionResult struct {
	Domain  string
	Records []SnapshotRecord
	Stats   ExtractionStats
}
