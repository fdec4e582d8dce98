package chart

import (
	"context"
	"fmt"
	"io"
	"time"

	"converge/internal/resource"

	"github.com/charmbracelet/lipgloss"
)

type InstallOptions struct {
	ChartPath  string
	DryRun     bool
	Verbose    bool
	Controller resource.ReconciliationController
	Out        io.Writer
}

var (
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boldStyle = lipgloss.NewStyle().Bold(true)
)

// Install renders a chart and reconciles the host with it
func Install(ctx context.Context, opts InstallOptions) (*resource.ReconciliationResult, error) {
	var echo io.Writer
	if opts.Verbose {
		echo = opts.Out
	}
	registry, err := Parse(ParseOptions{
		ChartPath: opts.ChartPath,
		Out:       echo,
	})
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	fmt.Fprintf(opts.Out, "Applying chart: %s\n", registry.Chart.Name)
	return Apply(ctx, opts.Controller, registry.Catalog, opts.DryRun, opts.Out)
}

// Apply reconciles a catalog, prints the result and returns the aggregated run errors
func Apply(ctx context.Context, controller resource.ReconciliationController, catalog *resource.Catalog, dryRun bool, out io.Writer) (*resource.ReconciliationResult, error) {
	result, err := controller.Reconcile(ctx, catalog, dryRun)
	if err != nil {
		return nil, err
	}

	PrintResult(out, result)
	return result, result.Err()
}

// PrintResult displays the results of a run in a user-friendly format
func PrintResult(out io.Writer, result *resource.ReconciliationResult) {
	if result.DryRun {
		printDryRunResult(out, result)
	} else {
		printExecutionResult(out, result)
	}
}

func printDryRunResult(out io.Writer, result *resource.ReconciliationResult) {
	fmt.Fprintln(out, boldStyle.Render("🧪 Dry Run: Showing planned changes...\n"))

	sections := []struct {
		title   string
		marker  string
		actions []resource.ResourceAction
	}{
		{"Resources to be created:", "+", result.CreatedResources},
		{"Resources to be updated:", "~", result.UpdatedResources},
		{"Resources to be deleted:", "-", result.DeletedResources},
		{"Services to be refreshed:", "↻", result.RefreshedResources},
	}
	for _, section := range sections {
		if len(section.actions) == 0 {
			continue
		}
		fmt.Fprintln(out, boldStyle.Render(section.title))
		for _, action := range section.actions {
			fmt.Fprintf(out, "  %s %s %s", section.marker, action.Type, action.Name)
			if action.Action == resource.ActionUpdate && action.Message != "" {
				fmt.Fprintf(out, " (%s)", action.Message)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out)
	}

	printErrors(out, result, "Potential issues:")

	fmt.Fprintln(out, result.Summary)
	fmt.Fprintln(out, boldStyle.Render("Run without --dry-run to apply"))
}

func printExecutionResult(out io.Writer, result *resource.ReconciliationResult) {
	fmt.Fprintln(out, boldStyle.Render("🚀 Reconciliation Results\n"))

	successCount := 0
	sections := []struct {
		title   string
		actions []resource.ResourceAction
	}{
		{"Created:", result.CreatedResources},
		{"Updated:", result.UpdatedResources},
		{"Deleted:", result.DeletedResources},
		{"Refreshed:", result.RefreshedResources},
		{"Skipped:", result.SkippedResources},
	}
	for _, section := range sections {
		if len(section.actions) == 0 {
			continue
		}
		fmt.Fprintln(out, boldStyle.Render(section.title))
		for _, action := range section.actions {
			switch {
			case action.Action == resource.ActionSkip:
				fmt.Fprintf(out, "  %s %s %s - %s\n", warnStyle.Render("-"), action.Type, action.Name, action.Message)
			case action.Error == "":
				fmt.Fprintf(out, "  %s %s %s\n", doneStyle.Render("✓"), action.Type, action.Name)
				successCount++
			default:
				fmt.Fprintf(out, "  %s %s %s - %s\n", failStyle.Render("✗"), action.Type, action.Name, action.Error)
			}
		}
		fmt.Fprintln(out)
	}

	printErrors(out, result, "Errors:")

	errorCount := len(result.Errors)
	switch {
	case errorCount > 0:
		fmt.Fprintf(out, "%s\n", warnStyle.Bold(true).Render(fmt.Sprintf("⚠ Completed with issues: %d succeeded, %d errors in %v",
			successCount, errorCount, result.Duration.Round(time.Millisecond))))
	case successCount == 0:
		fmt.Fprintf(out, "%s\n", doneStyle.Bold(true).Render("✅ Already up to date"))
	default:
		fmt.Fprintf(out, "%s\n", doneStyle.Bold(true).Render(fmt.Sprintf("🎉 Complete: %d changes in %v",
			successCount, result.Duration.Round(time.Millisecond))))
	}

	fmt.Fprintln(out, result.Summary)
}

func printErrors(out io.Writer, result *resource.ReconciliationResult, title string) {
	if len(result.Errors) == 0 {
		return
	}

	fmt.Fprintln(out, failStyle.Bold(true).Render(title))
	for _, err := range result.Errors {
		if err.Recoverable {
			fmt.Fprintf(out, "  %s %s: %s\n", warnStyle.Render("⚠"), err.Resource, err.Message)
		} else {
			fmt.Fprintf(out, "  %s %s: %s\n", failStyle.Render("✗"), err.Resource, err.Message)
		}
	}
	fmt.Fprintln(out)
}
