package resource

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// APIVersion is the apiVersion accepted in manifests
const APIVersion = "converge/v1"

// ResourceType represents the type of a resource
type ResourceType string

const (
	ResourceTypeFile    ResourceType = "file"
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeGroup   ResourceType = "group"
	ResourceTypeService ResourceType = "service"
	ResourceTypeArchive ResourceType = "archive"
	ResourceTypePackage ResourceType = "package"
)

// ResourceReference represents a reference to another resource
type ResourceReference struct {
	Type ResourceType `json:"type"`
	Name string       `json:"name"`
}

// String returns the kind/name key of the reference
func (r ResourceReference) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Name)
}

// Resource is the core interface that all managed resources must implement
type Resource interface {
	// GetType returns the resource type
	GetType() ResourceType

	// GetName returns the resource identifier
	GetName() string

	// GetLabels returns the resource labels
	GetLabels() map[string]string

	// SetLabels sets the labels for the resource
	SetLabels(labels map[string]string)

	// GetDependencies returns the resources this resource depends on
	GetDependencies() []ResourceReference

	// GetNotifications returns the resources to refresh when this resource changes
	GetNotifications() []ResourceReference

	// IsAbsent reports whether the resource should not exist
	IsAbsent() bool
}

// BaseResource provides common functionality for all resources
type BaseResource struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	DependsOn    []ResourceReference `json:"dependsOn,omitempty"`
	Notify       []ResourceReference `json:"notify,omitempty"`
	ResourceType ResourceType        `json:"-"`
}

// GetType implements Resource interface
func (b *BaseResource) GetType() ResourceType {
	return b.ResourceType
}

// GetName implements Resource interface
func (b *BaseResource) GetName() string {
	return b.ObjectMeta.Name
}

// GetLabels implements Resource interface
func (b *BaseResource) GetLabels() map[string]string {
	if b.ObjectMeta.Labels == nil {
		return make(map[string]string)
	}
	return b.ObjectMeta.Labels
}

// SetLabels implements Resource interface
func (b *BaseResource) SetLabels(labels map[string]string) {
	b.ObjectMeta.Labels = labels
}

// GetDependencies returns the explicitly declared dependencies.
// Implicit dependencies are derived by the dependency resolver.
func (b *BaseResource) GetDependencies() []ResourceReference {
	return b.DependsOn
}

// GetNotifications implements Resource interface
func (b *BaseResource) GetNotifications() []ResourceReference {
	return b.Notify
}

func newBase(resourceType ResourceType, kind, name string) BaseResource {
	return BaseResource{
		ResourceType: resourceType,
		TypeMeta: metav1.TypeMeta{
			APIVersion: APIVersion,
			Kind:       kind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
		},
	}
}

// Key returns the kind/name key of a resource
func Key(r Resource) string {
	return fmt.Sprintf("%s/%s", r.GetType(), r.GetName())
}

// Ref returns a reference to a resource
func Ref(r Resource) ResourceReference {
	return ResourceReference{Type: r.GetType(), Name: r.GetName()}
}

// ObservedState is a snapshot of actual host resources keyed by kind/name
type ObservedState map[string]Resource

// Get returns the observed resource for a reference
func (s ObservedState) Get(ref ResourceReference) (Resource, bool) {
	r, ok := s[ref.String()]
	return r, ok
}

// ByType returns the observed resources of one kind
func (s ObservedState) ByType(resourceType ResourceType) []Resource {
	var out []Resource
	for _, r := range s {
		if r.GetType() == resourceType {
			out = append(out, r)
		}
	}
	return out
}

// ResourceManager defines the interface for managing a specific resource type
type ResourceManager interface {
	// GetDesiredState extracts resources of this type from manifests
	GetDesiredState(manifests []Resource) ([]Resource, error)

	// GetActualState observes the named resources of this type on the host.
	// Resources that do not exist are omitted.
	GetActualState(ctx context.Context, names []string) ([]Resource, error)

	// CreateResource creates a new resource
	CreateResource(ctx context.Context, resource Resource) error

	// UpdateResource updates an existing resource
	UpdateResource(ctx context.Context, desired, actual Resource) error

	// DeleteResource deletes a resource
	DeleteResource(ctx context.Context, resource Resource) error

	// CompareResources compares desired vs actual resource and returns true if they match
	CompareResources(desired, actual Resource) (bool, error)

	// GetResourceType returns the type of resources this manager handles
	GetResourceType() ResourceType
}

// Refresher is implemented by managers whose resources react to notifications
type Refresher interface {
	Refresh(ctx context.Context, resource Resource) error

	// Restarts reports whether converging actual to desired starts the resource.
	// actual is nil for a create.
	Restarts(desired, actual Resource) bool
}

// Differ is implemented by managers that can explain why two resources differ
type Differ interface {
	DiffReasons(desired, actual Resource) []string
}
