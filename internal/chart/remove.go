package chart

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"converge/internal/resource"
)

type RemoveOptions struct {
	CatalogName string
	DryRun      bool
	Controller  resource.ReconciliationController
	Out         io.Writer
}

// Remove deletes every resource recorded for a catalog
func Remove(ctx context.Context, opts RemoveOptions) (*resource.ReconciliationResult, error) {
	result, err := opts.Controller.Remove(ctx, opts.CatalogName, opts.DryRun)
	if err != nil {
		return nil, err
	}

	PrintResult(opts.Out, result)
	return result, result.Err()
}

// Status prints the recorded state of a catalog
func Status(ctx context.Context, controller resource.ReconciliationController, catalogName string, out io.Writer) (*resource.ReconciliationStatus, error) {
	status, err := controller.GetStatus(ctx, catalogName)
	if err != nil {
		return nil, err
	}

	style := doneStyle
	switch status.Status {
	case resource.StatusDegraded, resource.StatusUnknown:
		style = warnStyle
	case resource.StatusFailed:
		style = failStyle
	}

	fmt.Fprintf(out, "%s %s\n", boldStyle.Render(status.CatalogName), style.Render(status.Status))
	if status.Status == resource.StatusUnknown {
		fmt.Fprintln(out, "  not installed")
		return status, nil
	}
	fmt.Fprintf(out, "  last reconciled: %s\n", status.LastReconciled.Format("2006-01-02 15:04:05 MST"))

	kinds := make([]string, 0, len(status.ResourceCounts))
	for kind := range status.ResourceCounts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	counts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		counts = append(counts, fmt.Sprintf("%s=%d", kind, status.ResourceCounts[kind]))
	}
	fmt.Fprintf(out, "  resources: %s\n", strings.Join(counts, " "))

	for _, msg := range status.Errors {
		fmt.Fprintf(out, "  %s %s\n", warnStyle.Render("⚠"), msg)
	}
	return status, nil
}
