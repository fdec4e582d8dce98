package labels

import (
	"fmt"

	"converge/internal/resource"
)

// Standard labels used for resource tracking and management
const (
	// LabelCatalog identifies the catalog that declares the resource
	LabelCatalog = "converge.io/catalog"

	// LabelVersion identifies the version of the catalog source (chart or module)
	LabelVersion = "converge.io/version"

	// LabelManagedBy identifies the tool managing the resource
	LabelManagedBy = "converge.io/managed-by"

	// ManagedByValue is the value used for the managed-by label
	ManagedByValue = "converge-v1"
)

// GetStandardLabels returns the standard labels for a resource
func GetStandardLabels(catalog, version string) map[string]string {
	return map[string]string{
		LabelCatalog:   catalog,
		LabelVersion:   version,
		LabelManagedBy: ManagedByValue,
	}
}

// MergeLabels merges additional labels with standard labels
func MergeLabels(standardLabels, additionalLabels map[string]string) map[string]string {
	merged := make(map[string]string)

	// Copy standard labels first
	for k, v := range standardLabels {
		merged[k] = v
	}

	// Add additional labels (they can override standard labels if needed)
	for k, v := range additionalLabels {
		merged[k] = v
	}

	return merged
}

// Stamp adds the standard labels of a catalog to each of its resources,
// keeping labels the resources declare themselves
func Stamp(catalog *resource.Catalog, version string) {
	standard := GetStandardLabels(catalog.Name, version)
	for _, res := range catalog.GetAllResources() {
		res.SetLabels(MergeLabels(standard, res.GetLabels()))
	}
}

// GetCatalogLabelValue returns the label selector of a catalog
func GetCatalogLabelValue(name string) string {
	return fmt.Sprintf("%s=%s", LabelCatalog, name)
}
