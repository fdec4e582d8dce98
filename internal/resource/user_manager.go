package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"converge/internal/host"
)

// UserManager implements ResourceManager for user resources
type UserManager struct {
	client host.Client
}

// NewUserManager creates a new UserManager
func NewUserManager(client host.Client) *UserManager {
	return &UserManager{
		client: client,
	}
}

// GetResourceType returns the resource type this manager handles
func (um *UserManager) GetResourceType() ResourceType {
	return ResourceTypeUser
}

// GetDesiredState extracts user resources from manifests
func (um *UserManager) GetDesiredState(manifests []Resource) ([]Resource, error) {
	return filterByType(manifests, ResourceTypeUser), nil
}

// GetActualState looks up the named accounts
func (um *UserManager) GetActualState(ctx context.Context, names []string) ([]Resource, error) {
	var resources []Resource

	err := withHost(ctx, um.client, func(client host.Client) error {
		for _, name := range names {
			info, err := client.LookupUser(ctx, name)
			if errors.Is(err, host.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("unable to look up user %s: %w", name, err)
			}
			resources = append(resources, um.convertUserInfoToResource(info))
		}
		return nil
	})

	return resources, err
}

// CreateResource creates a new user
func (um *UserManager) CreateResource(ctx context.Context, resource Resource) error {
	user, ok := resource.(*UserResource)
	if !ok {
		return fmt.Errorf("%w: expected UserResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, um.client, func(client host.Client) error {
		if err := client.CreateUser(ctx, um.buildUserSpec(user)); err != nil {
			return fmt.Errorf("unable to create user: %w", err)
		}
		return nil
	})
}

// UpdateResource modifies an existing user
func (um *UserManager) UpdateResource(ctx context.Context, desired, actual Resource) error {
	user, ok := desired.(*UserResource)
	if !ok {
		return fmt.Errorf("%w: expected UserResource for desired, got %T", ErrUnexpectedType, desired)
	}

	return withHost(ctx, um.client, func(client host.Client) error {
		if err := client.ModifyUser(ctx, um.buildUserSpec(user)); err != nil {
			return fmt.Errorf("unable to modify user: %w", err)
		}
		return nil
	})
}

// DeleteResource deletes a user
func (um *UserManager) DeleteResource(ctx context.Context, resource Resource) error {
	return withHost(ctx, um.client, func(client host.Client) error {
		err := client.DeleteUser(ctx, resource.GetName())
		if errors.Is(err, host.ErrNotFound) {
			return nil
		}
		return err
	})
}

// CompareResources compares desired vs actual user
func (um *UserManager) CompareResources(desired, actual Resource) (bool, error) {
	if _, ok := desired.(*UserResource); !ok {
		return false, fmt.Errorf("%w: expected UserResource for desired, got %T", ErrUnexpectedType, desired)
	}
	if _, ok := actual.(*UserResource); !ok {
		return false, fmt.Errorf("%w: expected UserResource for actual, got %T", ErrUnexpectedType, actual)
	}

	return len(um.DiffReasons(desired, actual)) == 0, nil
}

// DiffReasons lists the attributes that differ. Unset attributes are not managed.
func (um *UserManager) DiffReasons(desired, actual Resource) []string {
	desiredUser, ok1 := desired.(*UserResource)
	actualUser, ok2 := actual.(*UserResource)
	if !ok1 || !ok2 {
		return []string{"resource type conversion failed"}
	}

	var reasons []string
	if desiredUser.Spec.UID != nil && (actualUser.Spec.UID == nil || *desiredUser.Spec.UID != *actualUser.Spec.UID) {
		reasons = append(reasons, "uid changed")
	}
	if desiredUser.Spec.Group != "" && desiredUser.Spec.Group != actualUser.Spec.Group {
		reasons = append(reasons, "primary group changed")
	}
	if len(desiredUser.Spec.Groups) > 0 && !equalStrings(desiredUser.Spec.Groups, actualUser.Spec.Groups) {
		reasons = append(reasons, "groups changed")
	}
	if desiredUser.Spec.Home != "" && desiredUser.Spec.Home != actualUser.Spec.Home {
		reasons = append(reasons, "home changed")
	}
	if desiredUser.Spec.Shell != "" && desiredUser.Spec.Shell != actualUser.Spec.Shell {
		reasons = append(reasons, "shell changed")
	}
	return reasons
}

// Helper methods

func (um *UserManager) convertUserInfoToResource(info *host.UserInfo) *UserResource {
	resource := NewUserResource(info.Name)
	uid := info.UID
	resource.Spec.UID = &uid
	resource.Spec.Group = info.Group
	resource.Spec.Groups = append([]string(nil), info.Groups...)
	sort.Strings(resource.Spec.Groups)
	resource.Spec.Home = info.Home
	resource.Spec.Shell = info.Shell
	return resource
}

func (um *UserManager) buildUserSpec(user *UserResource) host.UserSpec {
	return host.UserSpec{
		Name:   user.GetName(),
		UID:    user.Spec.UID,
		Group:  user.Spec.Group,
		Groups: user.Spec.Groups,
		Home:   user.Spec.Home,
		Shell:  user.Spec.Shell,
		System: user.Spec.System,
	}
}
