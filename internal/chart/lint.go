package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"converge/internal/resource"

	"github.com/goccy/go-yaml"
)

type LintOptions struct {
	ChartPath string
	Out       io.Writer
	Verbose   bool
}

// LintChart renders the chart templates, checks the resulting YAML and the
// manifests it declares, and returns the catalog that would be applied.
func LintChart(chartPath string) (*resource.Catalog, error) {
	registry, err := NewChartRegistry(chartPath)
	if err != nil {
		return nil, err
	}

	rendered, err := registry.RenderTemplates()
	if err != nil {
		return nil, err
	}

	parser := resource.NewManifestParser(registry.Chart.Name)
	for _, tpl := range rendered {
		decoder := yaml.NewDecoder(bytes.NewReader(tpl.Content))
		for {
			var doc interface{}
			if err := decoder.Decode(&doc); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("invalid YAML in template %s: %w", tpl.Path, err)
			}
		}

		if err := parser.ParseManifest(tpl.Content); err != nil {
			return nil, fmt.Errorf("invalid manifest in template %s: %w", tpl.Path, err)
		}
	}

	catalog := parser.GetCatalog()
	if err := catalog.ValidateDependencies(); err != nil {
		return nil, fmt.Errorf("dependency validation failed: %w", err)
	}

	return catalog, nil
}

// Lint lints a chart and prints the outcome
func Lint(opts LintOptions) error {
	catalog, err := LintChart(opts.ChartPath)
	if err != nil {
		fmt.Fprintf(opts.Out, "%s %v\n", failStyle.Render("✗"), err)
		return err
	}

	if opts.Verbose {
		if err := printDependencies(opts.Out, catalog); err != nil {
			return err
		}
	}
	fmt.Fprintf(opts.Out, "%s %s: %d resources, no issues found\n", doneStyle.Render("✓"), catalog.Name, catalog.Len())
	return nil
}

func printDependencies(out io.Writer, catalog *resource.Catalog) error {
	report, err := catalog.DependencyReport()
	if err != nil {
		return err
	}

	for _, ref := range catalog.References() {
		if chain := report.Chains[ref.String()]; len(chain) > 0 {
			fmt.Fprintf(out, "  %s %s <- %s\n", ref.Type, ref.Name, strings.Join(chain, ", "))
		} else {
			fmt.Fprintf(out, "  %s %s\n", ref.Type, ref.Name)
		}
	}
	fmt.Fprintf(out, "  roots: %s\n", joinRefs(report.Roots))
	fmt.Fprintf(out, "  leaves: %s\n", joinRefs(report.Leaves))
	return nil
}

func joinRefs(refs []resource.ResourceReference) string {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.String())
	}
	return strings.Join(names, ", ")
}
