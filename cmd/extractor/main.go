// Command extractor queries the Wayback Machine CDX API for a domain and
// exports the archived URL snapshots to CSV, JSON, TXT or XLSX.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/thesavant42/wayback-extractor/internal/api"
	"github.com/thesavant42/wayback-extractor/internal/config"
	"github.com/thesavant42/wayback-extractor/internal/db"
	"github.com/thesavant42/wayback-extractor/internal/export"
	"github.com/thesavant42/wayback-extractor/internal/extract"
	"github.com/thesavant42/wayback-extractor/internal/models"
	"github.com/thesavant42/wayback-extractor/internal/ui"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitNetwork = 2
	exitWrite   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	req, err := config.Parse(os.Args[1:])
	if err != nil {
		ui.PrintError(err.Error())
		return exitUsage
	}
	if req == nil {
		// Help was requested and printed
		return exitOK
	}
	if req.Version {
		fmt.Printf("wayback-extractor %s\n", config.Version)
		return exitOK
	}

	// No positional domain: interactive mode
	interactive := req.Domain == ""
	if interactive {
		domain, err := ui.PromptForDomain()
		if err != nil {
			ui.PrintError(err.Error())
			return exitUsage
		}
		req.Domain = domain

		format, err := ui.PromptForFormat()
		if err != nil {
			ui.PrintError(err.Error())
			return exitUsage
		}
		req.Format = format
	}

	domain, err := api.NormalizeDomain(req.Domain)
	if err != nil {
		ui.PrintError(err.Error())
		return exitUsage
	}

	level := log.WarnLevel
	if req.Verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})

	var limiter *rate.Limiter
	if req.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(req.Rate), 1)
	}

	client := api.NewClient(api.Config{
		MaxRetries: req.Retries,
		Limiter:    limiter,
		Logger:     logger,
	})

	var cache *db.DB
	if req.CacheDB != "" {
		cache, err = db.New(req.CacheDB)
		if err != nil {
			ui.PrintError(err.Error())
			return exitUsage
		}
		defer cache.Close()
	}

	ui.PrintBanner(domain)

	records, parseFailures, fromCache, exit := gather(domain, req, client, cache, logger, interactive)
	if exit != exitOK && len(records) == 0 {
		return exit
	}

	if len(records) == 0 {
		ui.PrintError("No URLs found matching criteria")
		return exit
	}

	result := extract.Process(domain, records, parseFailures, extract.Options{
		Filter:   req.Filter,
		FromYear: req.FromYear,
		ToYear:   req.ToYear,
		Statuses: req.Statuses,
		Dedup:    req.Dedup,
		Limit:    req.Limit,
		// Cached rows may predate the current filters, so only a direct
		// fetch counts as server-filtered
		ServerFilteredDate:   !fromCache,
		ServerFilteredStatus: !fromCache,
		Logger:               logger,
	})

	ui.PrintReport(result)

	path, err := export.Write(result, req.Format, req.Output)
	if err != nil {
		ui.PrintError(err.Error())
		var writeErr *export.WriteError
		if errors.As(err, &writeErr) {
			return exitWrite
		}
		return exitUsage
	}

	ui.PrintSuccess(fmt.Sprintf("Saved %d records to %s", len(result.Records), path))
	return exit
}

// gather produces the raw record set, either from the local cache (when a
// previous run completed the domain) or from the CDX API, resuming a prior
// partial fetch when the cache holds a resume key. A network failure past
// the retry ceiling is reported but does not discard partial results; the
// non-zero exit code is carried through.
func gather(domain string, req *config.Request, client *api.Client, cache *db.DB, logger *log.Logger, interactive bool) (records []models.SnapshotRecord, parseFailures int, fromCache bool, exit int) {
	exit = exitOK

	query := api.Query{
		Domain:   domain,
		FromYear: req.FromYear,
		ToYear:   req.ToYear,
		Statuses: req.Statuses,
		Collapse: req.Dedup,
	}

	filterKey := query.FilterKey()

	if cache != nil {
		state, err := cache.GetFetchState(domain)
		if err != nil {
			logger.Warn("Failed to read fetch state", "err", err)
		}
		if state != nil && state.Filters != filterKey {
			// State produced under different filters covers a different
			// record set; neither its completion nor its resume key applies
			logger.Info("Cached fetch state used different filters, refetching", "domain", domain)
			state = nil
		}
		if state != nil {
			if state.IsComplete {
				cached, err := cache.GetSnapshots(domain)
				if err != nil {
					ui.PrintError(err.Error())
					return nil, 0, false, exitUsage
				}
				ui.PrintSuccess(fmt.Sprintf("Loaded %d cached records for %s", len(cached), domain))
				return cached, 0, true, exitOK
			}
			query.ResumeKey = state.ResumeKey
			logger.Info("Resuming previous fetch", "domain", domain, "alreadyFetched", state.TotalFetched)
		}
	}

	var result api.FetchResult
	fetch := func() {
		var progress func(count, page int)
		if !interactive {
			progress = ui.PrintProgress
		}
		result = client.FetchAll(query, req.Limit, progress)
	}

	if interactive {
		if err := ui.RunWithSpinner(fmt.Sprintf("Fetching snapshots for %s...", domain), fetch); err != nil {
			ui.PrintError(err.Error())
			return nil, 0, false, exitNetwork
		}
	} else {
		fetch()
		fmt.Println()
	}

	records, parseFailures = extract.ParseRows(result.Rows, logger)

	if cache != nil {
		if _, err := cache.InsertSnapshots(domain, records); err != nil {
			logger.Warn("Failed to cache records", "err", err)
		}
		lastError := ""
		if result.Err != nil {
			lastError = result.Err.Error()
		}
		if err := cache.SaveFetchState(domain, filterKey, result.ResumeKey, len(records), result.IsComplete, lastError); err != nil {
			logger.Warn("Failed to save fetch state", "err", err)
		}
		if result.IsComplete {
			// Merge with records from earlier partial runs
			if all, err := cache.GetSnapshots(domain); err == nil {
				return all, parseFailures, true, exitOK
			}
		}
	}

	if result.Err != nil {
		ui.PrintError(result.Err.Error())
		if len(records) > 0 {
			ui.PrintError(fmt.Sprintf("Continuing with %d records gathered before the failure", len(records)))
		}
		exit = exitNetwork
	}

	return records, parseFailures, false, exit
}
