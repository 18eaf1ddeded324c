package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"

	"github.com/thesavant42/wayback-extractor/internal/api"
)

// PromptForDomain asks for the domain to extract when none was given on the
// command line.
func PromptForDomain() (string, error) {
	var domain string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter domain to extract URLs from").
				Description("e.g. example.com or https://blog.example.com").
				Placeholder("example.com").
				Value(&domain).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("domain cannot be empty")
					}
					if _, err := api.NormalizeDomain(s); err != nil {
						return fmt.Errorf("invalid domain: %v", err)
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}

	return strings.TrimSpace(domain), nil
}

// PromptForFormat asks for the output format
func PromptForFormat() (string, error) {
	var format string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Output format").
				Options(
					huh.NewOption("CSV (spreadsheet-friendly)", "csv"),
					huh.NewOption("JSON (developer-friendly)", "json"),
					huh.NewOption("TXT (simple URL list)", "txt"),
					huh.NewOption("XLSX (Excel workbook)", "xlsx"),
				).
				Value(&format),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}

	return format, nil
}

// RunWithSpinner executes an action while displaying a spinner
func RunWithSpinner(title string, action func()) error {
	return spinner.New().Title(title).Action(action).Run()
}
