package resource

import (
	"fmt"
)

// Catalog manages the desired resources of one apply run and their dependencies.
// Resources are keyed by kind/name and kept in insertion order.
type Catalog struct {
	Name      string
	Resources map[string]Resource
	order     []string
	resolver  *DefaultDependencyResolver
}

// NewCatalog creates a new empty catalog
func NewCatalog(name string) *Catalog {
	return &Catalog{
		Name:      name,
		Resources: make(map[string]Resource),
		resolver:  &DefaultDependencyResolver{},
	}
}

// AddResource adds a resource to the catalog
func (c *Catalog) AddResource(resource Resource) error {
	name := resource.GetName()
	if name == "" {
		return fmt.Errorf("resource name cannot be empty")
	}

	key := Key(resource)
	if _, exists := c.Resources[key]; exists {
		return fmt.Errorf("resource '%s' already exists", key)
	}

	c.Resources[key] = resource
	c.order = append(c.order, key)
	return nil
}

// MustAdd adds resources and panics on duplicates. Intended for catalogs built in code.
func (c *Catalog) MustAdd(resources ...Resource) {
	for _, r := range resources {
		if err := c.AddResource(r); err != nil {
			panic(err)
		}
	}
}

// GetResource retrieves a resource by reference
func (c *Catalog) GetResource(ref ResourceReference) (Resource, bool) {
	resource, exists := c.Resources[ref.String()]
	return resource, exists
}

// GetResourcesByType returns all resources of a specific type in insertion order
func (c *Catalog) GetResourcesByType(resourceType ResourceType) []Resource {
	var resources []Resource
	for _, key := range c.order {
		if c.Resources[key].GetType() == resourceType {
			resources = append(resources, c.Resources[key])
		}
	}
	return resources
}

// GetAllResources returns all resources in insertion order
func (c *Catalog) GetAllResources() []Resource {
	resources := make([]Resource, 0, len(c.order))
	for _, key := range c.order {
		resources = append(resources, c.Resources[key])
	}
	return resources
}

// Len returns the number of resources
func (c *Catalog) Len() int {
	return len(c.order)
}

// ValidateDependencies checks that all explicit references exist and that the graph has no cycles
func (c *Catalog) ValidateDependencies() error {
	for _, key := range c.order {
		resource := c.Resources[key]
		for _, dep := range resource.GetDependencies() {
			if _, exists := c.Resources[dep.String()]; !exists {
				return fmt.Errorf("resource '%s' depends on '%s' which does not exist", key, dep)
			}
		}
		for _, target := range resource.GetNotifications() {
			if _, exists := c.Resources[target.String()]; !exists {
				return fmt.Errorf("resource '%s' notifies '%s' which does not exist", key, target)
			}
		}
	}

	_, err := c.resolver.BuildDependencyGraph(c.GetAllResources())
	return err
}

// GetCreationOrder returns resources in dependency order for creation
func (c *Catalog) GetCreationOrder() ([][]Resource, error) {
	if err := c.ValidateDependencies(); err != nil {
		return nil, err
	}

	graph, err := c.resolver.BuildDependencyGraph(c.GetAllResources())
	if err != nil {
		return nil, err
	}
	return c.resolver.GetCreationOrder(graph)
}

// GetDeletionOrder returns resources in reverse dependency order for deletion
func (c *Catalog) GetDeletionOrder() ([][]Resource, error) {
	creationOrder, err := c.GetCreationOrder()
	if err != nil {
		return nil, err
	}

	deletionOrder := make([][]Resource, len(creationOrder))
	for i, level := range creationOrder {
		deletionOrder[len(creationOrder)-1-i] = level
	}

	return deletionOrder, nil
}

// DependencyReport describes the dependency graph of a catalog
type DependencyReport struct {
	Chains map[string][]string // transitive dependencies per resource key
	Roots  []ResourceReference // resources that depend on nothing
	Leaves []ResourceReference // resources nothing depends on
}

// DependencyReport resolves the dependency chain of every resource, plus roots and leaves
func (c *Catalog) DependencyReport() (*DependencyReport, error) {
	if err := c.ValidateDependencies(); err != nil {
		return nil, err
	}

	graph, err := c.resolver.BuildDependencyGraph(c.GetAllResources())
	if err != nil {
		return nil, err
	}

	report := &DependencyReport{Chains: make(map[string][]string, len(c.order))}
	for _, key := range c.order {
		chain, err := c.resolver.GetDependencyChain(graph, key)
		if err != nil {
			return nil, err
		}
		report.Chains[key] = chain[1:]
	}
	for _, res := range c.resolver.GetResourcesWithoutDependencies(graph) {
		report.Roots = append(report.Roots, Ref(res))
	}
	for _, res := range c.resolver.GetResourcesWithoutDependents(graph) {
		report.Leaves = append(report.Leaves, Ref(res))
	}
	return report, nil
}

// ResolveReference resolves a reference to the catalog resource, checking its kind
func (c *Catalog) ResolveReference(ref ResourceReference) (Resource, error) {
	resource, exists := c.GetResource(ref)
	if !exists {
		return nil, fmt.Errorf("referenced resource '%s' not found", ref)
	}
	return resource, nil
}

// References returns references to all resources in insertion order
func (c *Catalog) References() []ResourceReference {
	refs := make([]ResourceReference, 0, len(c.order))
	for _, key := range c.order {
		refs = append(refs, Ref(c.Resources[key]))
	}
	return refs
}
