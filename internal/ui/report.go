package ui

import (
	"fmt"
	"sort"

	"github.com/thesavant42/wayback-extractor/internal/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Color palette
	pink   = lipgloss.Color("205")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	yellow = lipgloss.Color("220")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(pink).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(cyan)

	statStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(yellow)
)

// PrintBanner prints a styled header before the fetch starts
func PrintBanner(domain string) {
	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("Extracting archived URLs from %s", domain)))
}

// PrintReport prints the extraction summary: totals, top file types and top
// status codes.
//
// This is a CLI report (non-interactive), so lipgloss is used ONLY for
// colors/styling; table structure is plain string formatting.
func PrintReport(result *models.ExtractionResult) {
	stats := result.Stats

	fmt.Println()
	fmt.Println(titleStyle.Render("Extraction Summary"))
	fmt.Printf("  Total fetched:  %s\n", statStyle.Render(fmt.Sprintf("%d", stats.TotalFetched)))
	fmt.Printf("  Unique URLs:    %s\n", statStyle.Render(fmt.Sprintf("%d", stats.Unique)))
	fmt.Printf("  Duplicates:     %s\n", statStyle.Render(fmt.Sprintf("%d", stats.Duplicates)))
	if stats.ParseFailures > 0 {
		fmt.Printf("  Dropped rows:   %s\n", warnStyle.Render(fmt.Sprintf("%d", stats.ParseFailures)))
	}

	printBreakdown("By File Type", stats.ByType, len(result.Records))
	printBreakdown("By Status Code", stats.ByStatus, len(result.Records))
	fmt.Println()
}

// printBreakdown prints the top 5 entries of a count map with percentages
func printBreakdown(title string, counts map[string]int, total int) {
	if len(counts) == 0 {
		return
	}

	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > 5 {
		entries = entries[:5]
	}

	fmt.Println()
	fmt.Println(subtitleStyle.Render("  " + title + ":"))
	for _, e := range entries {
		pct := 0.0
		if total > 0 {
			pct = float64(e.count) / float64(total) * 100
		}
		fmt.Printf("    %-12s %6d (%5.1f%%)\n", e.key, e.count, pct)
	}
}

// PrintProgress prints a fetch progress line, overwriting the previous one
func PrintProgress(fetched, page int) {
	fmt.Printf("\r%s", warnStyle.Render(fmt.Sprintf("Fetching snapshots... page %d (%d records)", page, fetched)))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	successStyle := lipgloss.NewStyle().
		Foreground(green).
		Bold(true)
	fmt.Println(successStyle.Render(message))
}

// PrintError prints an error message
func PrintError(message string) {
	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)
	fmt.Println(errorStyle.Render("Error: " + message))
}
