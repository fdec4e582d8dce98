package chart

import (
	"context"
	"fmt"
	"io"

	"converge/internal/resource"
)

type UpgradeOptions struct {
	ChartPath  string
	DryRun     bool
	Verbose    bool
	Controller resource.ReconciliationController
	Out        io.Writer
}

// Upgrade computes the changes a chart brings and applies them when there are any
func Upgrade(ctx context.Context, opts UpgradeOptions) (*resource.ReconciliationResult, error) {
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

	plan, err := opts.Controller.Reconcile(ctx, registry.Catalog, true)
	if err != nil {
		return nil, fmt.Errorf("error computing changes: %w", err)
	}

	name := registry.Chart.Name
	if plan.Changes() == 0 {
		fmt.Fprintf(opts.Out, "🚫 no changes detected for %s, skipping.\n", name)
		return plan, nil
	}
	fmt.Fprintf(opts.Out, "🔄️ Changes detected for %s, upgrading...\n", name)

	if opts.Verbose || opts.DryRun {
		PrintResult(opts.Out, plan)
	}
	if opts.DryRun {
		return plan, nil
	}

	return Apply(ctx, opts.Controller, registry.Catalog, false, opts.Out)
}
