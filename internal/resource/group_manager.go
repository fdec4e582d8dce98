package resource

import (
	"context"
	"errors"
	"fmt"

	"converge/internal/host"
)

// GroupManager implements ResourceManager for group resources
type GroupManager struct {
	client host.Client
}

// NewGroupManager creates a new GroupManager
func NewGroupManager(client host.Client) *GroupManager {
	return &GroupManager{
		client: client,
	}
}

// GetResourceType returns the resource type this manager handles
func (gm *GroupManager) GetResourceType() ResourceType {
	return ResourceTypeGroup
}

// GetDesiredState extracts group resources from manifests
func (gm *GroupManager) GetDesiredState(manifests []Resource) ([]Resource, error) {
	return filterByType(manifests, ResourceTypeGroup), nil
}

// GetActualState looks up the named groups
func (gm *GroupManager) GetActualState(ctx context.Context, names []string) ([]Resource, error) {
	var resources []Resource

	err := withHost(ctx, gm.client, func(client host.Client) error {
		for _, name := range names {
			info, err := client.LookupGroup(ctx, name)
			if errors.Is(err, host.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("unable to look up group %s: %w", name, err)
			}

			resource := NewGroupResource(info.Name)
			gid := info.GID
			resource.Spec.GID = &gid
			resources = append(resources, resource)
		}
		return nil
	})

	return resources, err
}

// CreateResource creates a new group
func (gm *GroupManager) CreateResource(ctx context.Context, resource Resource) error {
	group, ok := resource.(*GroupResource)
	if !ok {
		return fmt.Errorf("%w: expected GroupResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, gm.client, func(client host.Client) error {
		spec := host.GroupSpec{Name: group.GetName(), GID: group.Spec.GID, System: group.Spec.System}
		if err := client.CreateGroup(ctx, spec); err != nil {
			return fmt.Errorf("unable to create group: %w", err)
		}
		return nil
	})
}

// UpdateResource modifies an existing group
func (gm *GroupManager) UpdateResource(ctx context.Context, desired, actual Resource) error {
	group, ok := desired.(*GroupResource)
	if !ok {
		return fmt.Errorf("%w: expected GroupResource for desired, got %T", ErrUnexpectedType, desired)
	}

	return withHost(ctx, gm.client, func(client host.Client) error {
		spec := host.GroupSpec{Name: group.GetName(), GID: group.Spec.GID}
		if err := client.ModifyGroup(ctx, spec); err != nil {
			return fmt.Errorf("unable to modify group: %w", err)
		}
		return nil
	})
}

// DeleteResource deletes a group
func (gm *GroupManager) DeleteResource(ctx context.Context, resource Resource) error {
	return withHost(ctx, gm.client, func(client host.Client) error {
		err := client.DeleteGroup(ctx, resource.GetName())
		if errors.Is(err, host.ErrNotFound) {
			return nil
		}
		return err
	})
}

// CompareResources compares desired vs actual group
func (gm *GroupManager) CompareResources(desired, actual Resource) (bool, error) {
	desiredGroup, ok := desired.(*GroupResource)
	if !ok {
		return false, fmt.Errorf("%w: expected GroupResource for desired, got %T", ErrUnexpectedType, desired)
	}
	actualGroup, ok := actual.(*GroupResource)
	if !ok {
		return false, fmt.Errorf("%w: expected GroupResource for actual, got %T", ErrUnexpectedType, actual)
	}

	if desiredGroup.Spec.GID == nil {
		return true, nil
	}
	return actualGroup.Spec.GID != nil && *desiredGroup.Spec.GID == *actualGroup.Spec.GID, nil
}

// DiffReasons lists the attributes that differ
func (gm *GroupManager) DiffReasons(desired, actual Resource) []string {
	if matches, err := gm.CompareResources(desired, actual); err != nil || !matches {
		return []string{"gid changed"}
	}
	return nil
}
