package resource

import (
	"fmt"
	"path"
	"sort"
)

// DependencyResolver manages resource creation order and dependency tracking
type DependencyResolver interface {
	// BuildDependencyGraph analyzes resources and creates a dependency graph
	BuildDependencyGraph(resources []Resource) (*DependencyGraph, error)

	// GetCreationOrder returns resources in dependency order for creation
	GetCreationOrder(graph *DependencyGraph) ([][]Resource, error)

	// GetDeletionOrder returns resources in reverse dependency order for deletion
	GetDeletionOrder(graph *DependencyGraph) ([][]Resource, error)

	// GetDependencyChain returns a resource key followed by its transitive dependencies
	GetDependencyChain(graph *DependencyGraph, resourceKey string) ([]string, error)

	// GetResourcesWithoutDependencies returns the roots of the graph
	GetResourcesWithoutDependencies(graph *DependencyGraph) []Resource

	// GetResourcesWithoutDependents returns the leaves of the graph
	GetResourcesWithoutDependents(graph *DependencyGraph) []Resource
}

// DependencyGraph represents the dependency relationships between resources
type DependencyGraph struct {
	Nodes map[string]*ResourceNode `json:"nodes"`
	Edges map[string][]string      `json:"edges"`
}

// ResourceNode represents a node in the dependency graph
type ResourceNode struct {
	Resource     Resource `json:"resource"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

// DefaultDependencyResolver implements DependencyResolver
type DefaultDependencyResolver struct{}

// NewDependencyResolver creates a new dependency resolver
func NewDependencyResolver() DependencyResolver {
	return &DefaultDependencyResolver{}
}

// BuildDependencyGraph analyzes resources and creates a dependency graph.
// Edges come from explicit dependsOn, implicit relations between kinds and notify.
func (dr *DefaultDependencyResolver) BuildDependencyGraph(resources []Resource) (*DependencyGraph, error) {
	graph := &DependencyGraph{
		Nodes: make(map[string]*ResourceNode),
		Edges: make(map[string][]string),
	}

	resourceMap := make(map[string]Resource)
	for _, resource := range resources {
		resourceMap[Key(resource)] = resource
	}

	// First pass: create all nodes
	for _, resource := range resources {
		key := Key(resource)
		graph.Nodes[key] = &ResourceNode{
			Resource:     resource,
			Dependencies: make([]string, 0),
			Dependents:   make([]string, 0),
		}
		graph.Edges[key] = make([]string, 0)
	}

	// Second pass: build dependency relationships
	for _, resource := range resources {
		resourceKey := Key(resource)
		for _, depKey := range dr.extractDependencies(resource, resourceMap) {
			dr.addEdge(graph, resourceKey, depKey)
		}

		// A notified resource is applied after its notifier
		for _, target := range resource.GetNotifications() {
			if _, exists := resourceMap[target.String()]; exists {
				dr.addEdge(graph, target.String(), resourceKey)
			}
		}
	}

	if err := dr.validateGraph(graph); err != nil {
		return nil, err
	}

	return graph, nil
}

func (dr *DefaultDependencyResolver) addEdge(graph *DependencyGraph, from, to string) {
	if from == to {
		return
	}
	for _, existing := range graph.Edges[from] {
		if existing == to {
			return
		}
	}
	graph.Edges[from] = append(graph.Edges[from], to)
	graph.Nodes[from].Dependencies = append(graph.Nodes[from].Dependencies, to)
	if depNode, exists := graph.Nodes[to]; exists {
		depNode.Dependents = append(depNode.Dependents, from)
	}
}

// GetCreationOrder returns resources in dependency order for creation
func (dr *DefaultDependencyResolver) GetCreationOrder(graph *DependencyGraph) ([][]Resource, error) {
	return dr.topologicalSort(graph)
}

// GetDeletionOrder returns resources in reverse dependency order for deletion
func (dr *DefaultDependencyResolver) GetDeletionOrder(graph *DependencyGraph) ([][]Resource, error) {
	creationOrder, err := dr.topologicalSort(graph)
	if err != nil {
		return nil, err
	}

	deletionOrder := make([][]Resource, len(creationOrder))
	for i, level := range creationOrder {
		deletionOrder[len(creationOrder)-1-i] = level
	}

	return deletionOrder, nil
}

// extractDependencies extracts dependencies from a resource
func (dr *DefaultDependencyResolver) extractDependencies(resource Resource, resourceMap map[string]Resource) []string {
	dependencies := make([]string, 0)

	// Get explicit dependencies from the resource
	for _, dep := range resource.GetDependencies() {
		if _, exists := resourceMap[dep.String()]; exists {
			dependencies = append(dependencies, dep.String())
		}
	}

	// Add implicit dependencies based on resource type
	switch res := resource.(type) {
	case *FileResource:
		dependencies = append(dependencies, dr.extractFileDependencies(res, resourceMap)...)
	case *UserResource:
		dependencies = append(dependencies, dr.extractUserDependencies(res, resourceMap)...)
	case *ServiceResource:
		dependencies = append(dependencies, dr.existing(resourceMap, ResourceTypeFile, res.Spec.UnitFile)...)
	case *ArchiveResource:
		if res.Spec.Extract {
			dependencies = append(dependencies, dr.nearestDirectory(res.Spec.ExtractPath, resourceMap, true)...)
		}
		dependencies = append(dependencies, dr.nearestDirectory(res.GetName(), resourceMap, false)...)
	}

	return dependencies
}

// extractFileDependencies derives owner, group, parent directory and link target edges
func (dr *DefaultDependencyResolver) extractFileDependencies(file *FileResource, resourceMap map[string]Resource) []string {
	if file.IsAbsent() {
		return nil
	}

	dependencies := make([]string, 0)
	dependencies = append(dependencies, dr.existing(resourceMap, ResourceTypeUser, file.Spec.Owner)...)
	dependencies = append(dependencies, dr.existing(resourceMap, ResourceTypeGroup, file.Spec.Group)...)
	dependencies = append(dependencies, dr.nearestDirectory(file.GetName(), resourceMap, false)...)

	if file.Spec.Ensure == FileEnsureLink && path.IsAbs(file.Spec.Target) {
		dependencies = append(dependencies, dr.existing(resourceMap, ResourceTypeFile, file.Spec.Target)...)
	}

	return dependencies
}

// extractUserDependencies derives primary and supplementary group edges
func (dr *DefaultDependencyResolver) extractUserDependencies(user *UserResource, resourceMap map[string]Resource) []string {
	if user.IsAbsent() {
		return nil
	}

	dependencies := dr.existing(resourceMap, ResourceTypeGroup, user.Spec.Group)
	for _, group := range user.Spec.Groups {
		dependencies = append(dependencies, dr.existing(resourceMap, ResourceTypeGroup, group)...)
	}
	return dependencies
}

// nearestDirectory returns the closest managed directory containing p, or p itself when inclusive
func (dr *DefaultDependencyResolver) nearestDirectory(p string, resourceMap map[string]Resource, inclusive bool) []string {
	if p == "" {
		return nil
	}

	dir := path.Clean(p)
	if !inclusive {
		dir = path.Dir(dir)
	}
	for {
		key := ResourceReference{Type: ResourceTypeFile, Name: dir}.String()
		if res, exists := resourceMap[key]; exists {
			if f, ok := res.(*FileResource); ok && f.Spec.Ensure == FileEnsureDirectory {
				return []string{key}
			}
		}
		if dir == "/" || dir == "." {
			return nil
		}
		dir = path.Dir(dir)
	}
}

func (dr *DefaultDependencyResolver) existing(resourceMap map[string]Resource, resourceType ResourceType, name string) []string {
	if name == "" {
		return nil
	}
	key := ResourceReference{Type: resourceType, Name: name}.String()
	if _, exists := resourceMap[key]; exists {
		return []string{key}
	}
	return nil
}

// validateGraph validates the dependency graph for circular dependencies
func (dr *DefaultDependencyResolver) validateGraph(graph *DependencyGraph) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, nodeKey := range sortedKeys(graph.Nodes) {
		if !visited[nodeKey] {
			if dr.hasCycle(nodeKey, graph, visited, recStack) {
				return fmt.Errorf("circular dependency detected involving resource '%s'", nodeKey)
			}
		}
	}

	return nil
}

// hasCycle performs DFS to detect cycles in the dependency graph
func (dr *DefaultDependencyResolver) hasCycle(nodeKey string, graph *DependencyGraph, visited, recStack map[string]bool) bool {
	visited[nodeKey] = true
	recStack[nodeKey] = true

	for _, depKey := range graph.Edges[nodeKey] {
		if !visited[depKey] {
			if dr.hasCycle(depKey, graph, visited, recStack) {
				return true
			}
		} else if recStack[depKey] {
			return true
		}
	}

	recStack[nodeKey] = false
	return false
}

// topologicalSort performs topological sorting using Kahn's algorithm
func (dr *DefaultDependencyResolver) topologicalSort(graph *DependencyGraph) ([][]Resource, error) {
	// In-degree is the number of unresolved dependencies of each resource
	inDegree := make(map[string]int)
	for nodeKey := range graph.Nodes {
		inDegree[nodeKey] = len(graph.Edges[nodeKey])
	}

	var result [][]Resource
	queue := make([]string, 0)

	for nodeKey, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, nodeKey)
		}
	}

	for len(queue) > 0 {
		currentLevel := make([]Resource, 0)
		nextQueue := make([]string, 0)

		// Sort queue for consistent ordering
		sort.Strings(queue)

		for _, nodeKey := range queue {
			node := graph.Nodes[nodeKey]
			currentLevel = append(currentLevel, node.Resource)

			for _, dependentKey := range node.Dependents {
				inDegree[dependentKey]--
				if inDegree[dependentKey] == 0 {
					nextQueue = append(nextQueue, dependentKey)
				}
			}
		}

		result = append(result, currentLevel)
		queue = nextQueue
	}

	totalProcessed := 0
	for _, level := range result {
		totalProcessed += len(level)
	}
	if totalProcessed != len(graph.Nodes) {
		return nil, fmt.Errorf("circular dependency detected in resource graph")
	}

	return result, nil
}

// GetDependencyChain returns the full dependency chain for a resource
func (dr *DefaultDependencyResolver) GetDependencyChain(graph *DependencyGraph, resourceKey string) ([]string, error) {
	visited := make(map[string]bool)
	chain := make([]string, 0)

	if err := dr.buildDependencyChain(resourceKey, graph, visited, &chain); err != nil {
		return nil, err
	}

	return chain, nil
}

// buildDependencyChain recursively builds the dependency chain
func (dr *DefaultDependencyResolver) buildDependencyChain(resourceKey string, graph *DependencyGraph, visited map[string]bool, chain *[]string) error {
	if visited[resourceKey] {
		return nil
	}

	node, exists := graph.Nodes[resourceKey]
	if !exists {
		return fmt.Errorf("resource '%s' not found in dependency graph", resourceKey)
	}

	visited[resourceKey] = true
	*chain = append(*chain, resourceKey)

	for _, depKey := range node.Dependencies {
		if err := dr.buildDependencyChain(depKey, graph, visited, chain); err != nil {
			return err
		}
	}

	return nil
}

// GetResourcesWithoutDependencies returns resources that have no dependencies
func (dr *DefaultDependencyResolver) GetResourcesWithoutDependencies(graph *DependencyGraph) []Resource {
	resources := make([]Resource, 0)

	for _, key := range sortedKeys(graph.Nodes) {
		if node := graph.Nodes[key]; len(node.Dependencies) == 0 {
			resources = append(resources, node.Resource)
		}
	}

	return resources
}

// GetResourcesWithoutDependents returns resources that have no dependents (can be safely deleted)
func (dr *DefaultDependencyResolver) GetResourcesWithoutDependents(graph *DependencyGraph) []Resource {
	resources := make([]Resource, 0)

	for _, key := range sortedKeys(graph.Nodes) {
		if node := graph.Nodes[key]; len(node.Dependents) == 0 {
			resources = append(resources, node.Resource)
		}
	}

	return resources
}

func sortedKeys(nodes map[string]*ResourceNode) []string {
	keys := make([]string, 0, len(nodes))
	for key := range nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
