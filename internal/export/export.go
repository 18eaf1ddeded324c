// Package export serializes an extraction result to CSV, JSON, TXT or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/thesavant42/wayback-extractor/internal/models"
	"github.com/xuri/excelize/v2"
)

var header = []string{"url", "timestamp", "status_code", "mime_type"}

// WriteError reports a failure to write the output file, carrying the
// attempted path for the user-facing message.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DefaultFilename derives an output filename from the domain and format,
// e.g. "example.com" + "csv" -> "example_com_urls.csv".
func DefaultFilename(domain, format string) string {
	return strings.ReplaceAll(domain, ".", "_") + "_urls." + format
}

// Write serializes the result to the requested format. If path is empty, a
// name is derived from the domain. Returns the path written to.
func Write(result *models.ExtractionResult, format, path string) (string, error) {
	if path == "" {
		path = DefaultFilename(result.Domain, format)
	}

	var err error
	switch format {
	case "csv":
		err = writeCSV(result.Records, path)
	case "json":
		err = writeJSON(result.Records, path)
	case "txt":
		err = writeTXT(result.Records, path)
	case "xlsx":
		err = writeXLSX(result.Records, path)
	default:
		return "", fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(records []models.SnapshotRecord, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	for _, rec := range records {
		status := ""
		if rec.StatusCode != nil {
			status = strconv.Itoa(*rec.StatusCode)
		}
		mime := ""
		if rec.MimeType != nil {
			mime = *rec.MimeType
		}
		if err := w.Write([]string{rec.URL, rec.Timestamp, status, mime}); err != nil {
			return &WriteError{Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// snapshotJSON pins the wire field names; StatusCode and MimeType serialize
// as null when absent.
type snapshotJSON struct {
	URL        string  `json:"url"`
	Timestamp  string  `json:"timestamp"`
	StatusCode *int    `json:"status_code"`
	MimeType   *string `json:"mime_type"`
}

func writeJSON(records []models.SnapshotRecord, path string) error {
	out := make([]snapshotJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, snapshotJSON{
			URL:        rec.URL,
			Timestamp:  rec.Timestamp,
			StatusCode: rec.StatusCode,
			MimeType:   rec.MimeType,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func writeTXT(records []models.SnapshotRecord, path string) error {
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(rec.URL)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func writeXLSX(records []models.SnapshotRecord, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Snapshots"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	headerRow := []interface{}{"url", "timestamp", "status_code", "mime_type"}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return &WriteError{Path: path, Err: err}
		}
		row := []interface{}{rec.URL, rec.Timestamp, nil, nil}
		if rec.StatusCode != nil {
			row[2] = *rec.StatusCode
		}
		if rec.MimeType != nil {
			row[3] = *rec.MimeType
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return &WriteError{Path: path, Err: err}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
