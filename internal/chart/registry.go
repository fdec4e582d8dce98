package chart

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"converge/internal/labels"
	"converge/internal/resource"

	"github.com/Masterminds/sprig/v3"
	"github.com/goccy/go-yaml"
)

// ChartRegistry holds a chart and the catalog rendered from its templates
type ChartRegistry struct {
	ChartPath string
	Chart     ChartMetadata
	Values    map[string]interface{}
	Catalog   *resource.Catalog
}

// ChartMetadata represents the Chart.yaml metadata
type ChartMetadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
}

// RenderedTemplate is the output of one template file
type RenderedTemplate struct {
	Path    string
	Content []byte
}

// NewChartRegistry loads the metadata and values of a chart
func NewChartRegistry(chartPath string) (*ChartRegistry, error) {
	registry := &ChartRegistry{
		ChartPath: chartPath,
		Values:    map[string]interface{}{},
	}

	if err := registry.loadChartMetadata(); err != nil {
		return nil, err
	}

	if err := registry.loadValues(); err != nil {
		return nil, err
	}

	registry.Catalog = resource.NewCatalog(registry.Chart.Name)
	return registry, nil
}

// loadChartMetadata loads the Chart.yaml file
func (c *ChartRegistry) loadChartMetadata() error {
	chartYamlPath := filepath.Join(c.ChartPath, "Chart.yaml")
	chartBytes, err := os.ReadFile(chartYamlPath)
	if err != nil {
		return fmt.Errorf("failed to read Chart.yaml: %w", err)
	}

	if err := yaml.Unmarshal(chartBytes, &c.Chart); err != nil {
		return fmt.Errorf("failed to parse Chart.yaml: %w", err)
	}
	if c.Chart.Name == "" {
		return fmt.Errorf("chart name is required in Chart.yaml")
	}

	return nil
}

// loadValues loads the values.yaml file. A chart without values renders with an empty map.
func (c *ChartRegistry) loadValues() error {
	valuesPath := filepath.Join(c.ChartPath, "values.yaml")
	valuesBytes, err := os.ReadFile(valuesPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read values.yaml: %w", err)
	}

	if err := yaml.Unmarshal(valuesBytes, &c.Values); err != nil {
		return fmt.Errorf("failed to parse values.yaml: %w", err)
	}
	if c.Values == nil {
		c.Values = map[string]interface{}{}
	}

	return nil
}

// templateContext is the data templates are executed with
func (c *ChartRegistry) templateContext() map[string]interface{} {
	return map[string]interface{}{
		"Values": c.Values,
		"Release": map[string]interface{}{
			"Name": c.Chart.Name,
		},
		"Chart": map[string]interface{}{
			"Name":    c.Chart.Name,
			"Version": c.Chart.Version,
		},
	}
}

// RenderTemplates executes every template of the chart, in lexical order
func (c *ChartRegistry) RenderTemplates() ([]RenderedTemplate, error) {
	templatesDir := filepath.Join(c.ChartPath, "templates")
	data := c.templateContext()

	var rendered []RenderedTemplate
	err := filepath.WalkDir(templatesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" && ext != ".tpl" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", path, err)
		}

		tmpl, err := template.
			New(filepath.Base(path)).
			Option("missingkey=error").
			Funcs(sprig.TxtFuncMap()).
			Parse(string(content))
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", path, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("failed to execute template %s: %w", path, err)
		}

		rendered = append(rendered, RenderedTemplate{Path: path, Content: buf.Bytes()})
		return nil
	})

	return rendered, err
}

// ParseTemplates renders the chart and fills the catalog. Rendered output is
// echoed to out when it is not nil.
func (c *ChartRegistry) ParseTemplates(out io.Writer) error {
	rendered, err := c.RenderTemplates()
	if err != nil {
		return err
	}

	parser := resource.NewManifestParser(c.Chart.Name)
	for _, tpl := range rendered {
		if out != nil {
			fmt.Fprintf(out, "# Source: %s\n", tpl.Path)
			fmt.Fprintln(out, string(tpl.Content))
		}

		if err := parser.ParseManifest(tpl.Content); err != nil {
			return fmt.Errorf("failed to parse rendered template %s: %w", tpl.Path, err)
		}
	}

	c.Catalog = parser.GetCatalog()
	labels.Stamp(c.Catalog, c.Chart.Version)

	if err := c.Catalog.ValidateDependencies(); err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}

	return nil
}

// GetResourcesByType returns all resources of a specific type
func (c *ChartRegistry) GetResourcesByType(resourceType resource.ResourceType) []resource.Resource {
	return c.Catalog.GetResourcesByType(resourceType)
}

// GetAllResources returns all resources of the chart
func (c *ChartRegistry) GetAllResources() []resource.Resource {
	return c.Catalog.GetAllResources()
}

// GetCreationOrder returns resources in dependency order for creation
func (c *ChartRegistry) GetCreationOrder() ([][]resource.Resource, error) {
	return c.Catalog.GetCreationOrder()
}
