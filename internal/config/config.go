// Package config parses and validates the command line into an immutable
// extraction request. Flags can also be supplied via environment variables
// (and an optional .env file loaded by main).
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

// DefaultLimit caps a run when --limit is not given; large domains can have
// millions of captures.
const DefaultLimit = 50000

type rawOptions struct {
	Format       string  `long:"format" choice:"csv" choice:"json" choice:"txt" choice:"xlsx" default:"csv" description:"Output format"`
	Output       string  `long:"output" short:"o" description:"Output filename (default: derived from domain)"`
	Filter       string  `long:"filter" description:"File-type glob pattern, comma-separated alternatives (e.g. *.html,*.pdf)"`
	FromYear     int     `long:"from" description:"Start year (e.g. 2020)"`
	ToYear       int     `long:"to" description:"End year (e.g. 2023)"`
	Status       string  `long:"status" description:"Comma-separated status codes to keep (e.g. 200,301)"`
	Limit        int     `long:"limit" description:"Maximum number of records (default: 50000)"`
	NoDuplicates bool    `long:"no-duplicates" description:"Collapse records sharing the same URL, keeping the first capture"`
	CacheDB      string  `long:"cache-db" env:"WAYBACK_CACHE_DB" description:"SQLite cache path; enables resume and offline re-export"`
	Rate         float64 `long:"rate" env:"WAYBACK_RATE" default:"1" description:"Maximum CDX requests per second (0 disables throttling)"`
	Retries      int     `long:"retries" env:"WAYBACK_RETRIES" default:"3" description:"Retry ceiling for transient CDX errors"`
	Verbose      bool    `long:"verbose" short:"v" description:"Verbose output (logs retries and dropped rows)"`
	Version      bool    `long:"version" description:"Print version and exit"`

	Args struct {
		Domain string `positional-arg-name:"DOMAIN" description:"Domain to extract archived URLs from"`
	} `positional-args:"yes"`
}

// Request holds the validated, immutable parameters of one extraction run.
// An empty Domain means no positional argument was given and the caller
// should enter interactive mode.
type Request struct {
	Domain   string
	Format   string
	Output   string
	Filter   string
	FromYear int
	ToYear   int
	Statuses []int
	Limit    int
	Dedup    bool
	CacheDB  string
	Rate     float64
	Retries  int
	Verbose  bool
	Version  bool
}

// Parse parses args (without the program name) into a Request.
// Returns (nil, nil) when help was requested and printed.
func Parse(args []string) (*Request, error) {
	var raw rawOptions

	parser := flags.NewParser(&raw, flags.Default)
	parser.Usage = "DOMAIN [OPTIONS]"

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	statuses, err := parseStatusCodes(raw.Status)
	if err != nil {
		return nil, err
	}

	limit := raw.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	req := &Request{
		Domain:   strings.TrimSpace(raw.Args.Domain),
		Format:   raw.Format,
		Output:   raw.Output,
		Filter:   raw.Filter,
		FromYear: raw.FromYear,
		ToYear:   raw.ToYear,
		Statuses: statuses,
		Limit:    limit,
		Dedup:    raw.NoDuplicates,
		CacheDB:  raw.CacheDB,
		Rate:     raw.Rate,
		Retries:  raw.Retries,
		Verbose:  raw.Verbose,
		Version:  raw.Version,
	}

	if req.Version {
		// Skip validation; main prints the version and exits
		return req, nil
	}

	if err := req.validate(); err != nil {
		return nil, err
	}

	return req, nil
}

func (r *Request) validate() error {
	if r.FromYear < 0 || r.ToYear < 0 {
		return fmt.Errorf("years must be positive")
	}
	if r.FromYear > 0 && r.ToYear > 0 && r.FromYear > r.ToYear {
		return fmt.Errorf("invalid date range: --from %d is after --to %d", r.FromYear, r.ToYear)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("--limit must be greater than zero")
	}
	if r.Rate < 0 {
		return fmt.Errorf("--rate must not be negative")
	}
	if r.Retries < 0 {
		return fmt.Errorf("--retries must not be negative")
	}
	return nil
}

// parseStatusCodes parses "200,301" into a sorted-as-given int set
func parseStatusCodes(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var codes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q", part)
		}
		if code < 100 || code > 599 {
			return nil, fmt.Errorf("status code %d out of range", code)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
