package resource

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ManifestParser handles parsing of YAML manifests into a catalog
type ManifestParser struct {
	catalog *Catalog
}

// NewManifestParser creates a new manifest parser filling a catalog with the given name
func NewManifestParser(catalogName string) *ManifestParser {
	return &ManifestParser{
		catalog: NewCatalog(catalogName),
	}
}

// ParseManifest parses a multi-document YAML manifest and adds its resources to the catalog
func (p *ManifestParser) ParseManifest(content []byte) error {
	for _, doc := range splitDocuments(content) {
		resource, err := p.parseDocument(doc)
		if err != nil {
			return err
		}

		if resource != nil {
			if err := p.catalog.AddResource(resource); err != nil {
				return fmt.Errorf("failed to add resource to catalog: %w", err)
			}
		}
	}

	return nil
}

// parseDocument parses a single YAML document into a resource
func (p *ManifestParser) parseDocument(content []byte) (Resource, error) {
	// First, parse the basic metadata to determine the resource type
	var base struct {
		metav1.TypeMeta   `json:",inline"`
		metav1.ObjectMeta `json:"metadata,omitempty"`
	}

	if err := yaml.Unmarshal(content, &base); err != nil {
		return nil, fmt.Errorf("failed to parse YAML metadata: %w", err)
	}

	// Skip empty documents or those without Kind
	if base.Kind == "" {
		return nil, nil
	}

	if base.APIVersion != APIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q for %s %s, expected %s", base.APIVersion, base.Kind, base.Name, APIVersion)
	}
	if base.Name == "" {
		return nil, fmt.Errorf("%s name cannot be empty", strings.ToLower(base.Kind))
	}

	// Parse based on the Kind. Constructors carry the defaults for omitted fields.
	var resource Resource
	switch base.Kind {
	case "File":
		resource = NewFileResource(base.Name)
	case "User":
		resource = NewUserResource(base.Name)
	case "Group":
		resource = NewGroupResource(base.Name)
	case "Service":
		resource = NewServiceResource(base.Name)
	case "Archive":
		resource = NewArchiveResource(base.Name)
	case "Package":
		resource = NewPackageResource(base.Name)
	default:
		return nil, fmt.Errorf("unsupported resource kind: %s", base.Kind)
	}

	if err := yaml.Unmarshal(content, resource); err != nil {
		return nil, fmt.Errorf("failed to parse %s %s: %w", base.Kind, base.Name, err)
	}

	if v, ok := resource.(interface{ Validate() []error }); ok {
		if errs := v.Validate(); len(errs) > 0 {
			var messages []string
			for _, err := range errs {
				messages = append(messages, err.Error())
			}
			return nil, fmt.Errorf("%s validation failed:\n%s", strings.ToLower(base.Kind), strings.Join(messages, "\n"))
		}
	}

	return resource, nil
}

// GetCatalog returns the populated catalog
func (p *ManifestParser) GetCatalog() *Catalog {
	return p.catalog
}

// splitDocuments splits on lines consisting of the "---" separator only, so
// "---" inside block scalars such as file content is preserved
func splitDocuments(content []byte) [][]byte {
	var documents [][]byte
	var current bytes.Buffer

	flush := func() {
		doc := bytes.TrimSpace(current.Bytes())
		if len(doc) > 0 {
			documents = append(documents, append([]byte(nil), doc...))
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimRight(line, " \t") == "---" {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return documents
}
