package chart

import (
	"fmt"
	"io"

	"converge/internal/resource"
)

type ParseOptions struct {
	ChartPath string
	// Out receives the rendered templates when set
	Out io.Writer
}

// Parse loads a chart and renders it into a catalog
func Parse(opts ParseOptions) (*ChartRegistry, error) {
	registry, err := NewChartRegistry(opts.ChartPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}

	if err := registry.ParseTemplates(opts.Out); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return registry, nil
}

// ParseToResources parses a chart and returns all resources
func ParseToResources(opts ParseOptions) ([]resource.Resource, error) {
	registry, err := Parse(opts)
	if err != nil {
		return nil, err
	}

	return registry.GetAllResources(), nil
}
