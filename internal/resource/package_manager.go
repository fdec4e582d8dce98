package resource

import (
	"context"
	"fmt"

	"converge/internal/host"
)

// PackageManager implements ResourceManager for native packages
type PackageManager struct {
	client host.Client
}

// NewPackageManager creates a new PackageManager
func NewPackageManager(client host.Client) *PackageManager {
	return &PackageManager{
		client: client,
	}
}

// GetResourceType returns the resource type this manager handles
func (pm *PackageManager) GetResourceType() ResourceType {
	return ResourceTypePackage
}

// GetDesiredState extracts package resources from manifests
func (pm *PackageManager) GetDesiredState(manifests []Resource) ([]Resource, error) {
	return filterByType(manifests, ResourceTypePackage), nil
}

// GetActualState queries the package manager. Packages that are not installed are omitted.
func (pm *PackageManager) GetActualState(ctx context.Context, names []string) ([]Resource, error) {
	var resources []Resource

	err := withHost(ctx, pm.client, func(client host.Client) error {
		for _, name := range names {
			info, err := client.QueryPackage(ctx, name)
			if err != nil {
				return fmt.Errorf("unable to query package %s: %w", name, err)
			}
			if info.Installed == "" {
				continue
			}

			resource := NewPackageResource(name)
			resource.Spec.Ensure = info.Installed
			resource.Status = &PackageStatus{Installed: info.Installed, Candidate: info.Candidate}
			resources = append(resources, resource)
		}
		return nil
	})

	return resources, err
}

// CreateResource installs a package
func (pm *PackageManager) CreateResource(ctx context.Context, resource Resource) error {
	pkg, ok := resource.(*PackageResource)
	if !ok {
		return fmt.Errorf("%w: expected PackageResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, pm.client, func(client host.Client) error {
		if err := client.InstallPackage(ctx, pkg.GetName(), pkg.PinnedVersion()); err != nil {
			return fmt.Errorf("unable to install package %s: %w", pkg.GetName(), err)
		}
		return nil
	})
}

// UpdateResource installs the desired version over the current one
func (pm *PackageManager) UpdateResource(ctx context.Context, desired, actual Resource) error {
	return pm.CreateResource(ctx, desired)
}

// DeleteResource removes a package
func (pm *PackageManager) DeleteResource(ctx context.Context, resource Resource) error {
	return withHost(ctx, pm.client, func(client host.Client) error {
		return client.RemovePackage(ctx, resource.GetName())
	})
}

// CompareResources compares desired vs installed version
func (pm *PackageManager) CompareResources(desired, actual Resource) (bool, error) {
	if _, ok := desired.(*PackageResource); !ok {
		return false, fmt.Errorf("%w: expected PackageResource for desired, got %T", ErrUnexpectedType, desired)
	}
	if _, ok := actual.(*PackageResource); !ok {
		return false, fmt.Errorf("%w: expected PackageResource for actual, got %T", ErrUnexpectedType, actual)
	}

	return len(pm.DiffReasons(desired, actual)) == 0, nil
}

// DiffReasons explains a version mismatch
func (pm *PackageManager) DiffReasons(desired, actual Resource) []string {
	desiredPkg, ok1 := desired.(*PackageResource)
	actualPkg, ok2 := actual.(*PackageResource)
	if !ok1 || !ok2 {
		return []string{"resource type conversion failed"}
	}

	var installed, candidate string
	if actualPkg.Status != nil {
		installed, candidate = actualPkg.Status.Installed, actualPkg.Status.Candidate
	}

	switch desiredPkg.Spec.Ensure {
	case PackagePresent:
		return nil
	case PackageLatest:
		if candidate != "" && installed != candidate {
			return []string{fmt.Sprintf("version %s installed, %s available", installed, candidate)}
		}
		return nil
	default:
		if installed != desiredPkg.PinnedVersion() {
			return []string{fmt.Sprintf("version %s installed, want %s", installed, desiredPkg.PinnedVersion())}
		}
		return nil
	}
}
