package resource

import (
	"context"
	"errors"
	"fmt"

	"converge/internal/host"
)

// ServiceManager implements ResourceManager and Refresher for systemd services
type ServiceManager struct {
	client host.Client
}

// NewServiceManager creates a new ServiceManager
func NewServiceManager(client host.Client) *ServiceManager {
	return &ServiceManager{
		client: client,
	}
}

// GetResourceType returns the resource type this manager handles
func (sm *ServiceManager) GetResourceType() ResourceType {
	return ResourceTypeService
}

// GetDesiredState extracts service resources from manifests
func (sm *ServiceManager) GetDesiredState(manifests []Resource) ([]Resource, error) {
	return filterByType(manifests, ResourceTypeService), nil
}

// GetActualState queries systemd for the named units. Unknown units are omitted.
func (sm *ServiceManager) GetActualState(ctx context.Context, names []string) ([]Resource, error) {
	var resources []Resource

	err := withHost(ctx, sm.client, func(client host.Client) error {
		for _, name := range names {
			info, err := client.ServiceStatus(ctx, name)
			if errors.Is(err, host.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("unable to query service %s: %w", name, err)
			}
			resources = append(resources, sm.convertServiceInfoToResource(name, info))
		}
		return nil
	})

	return resources, err
}

// CreateResource loads a new unit and brings it to the desired state
func (sm *ServiceManager) CreateResource(ctx context.Context, resource Resource) error {
	service, ok := resource.(*ServiceResource)
	if !ok {
		return fmt.Errorf("%w: expected ServiceResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, sm.client, func(client host.Client) error {
		if err := client.DaemonReload(ctx); err != nil {
			return fmt.Errorf("unable to reload systemd: %w", err)
		}

		info, err := client.ServiceStatus(ctx, service.GetName())
		if err != nil {
			return fmt.Errorf("unable to query service %s: %w", service.GetName(), err)
		}
		return sm.converge(ctx, client, service, sm.convertServiceInfoToResource(service.GetName(), info))
	})
}

// UpdateResource brings an existing unit to the desired state
func (sm *ServiceManager) UpdateResource(ctx context.Context, desired, actual Resource) error {
	desiredService, ok := desired.(*ServiceResource)
	if !ok {
		return fmt.Errorf("%w: expected ServiceResource for desired, got %T", ErrUnexpectedType, desired)
	}
	actualService, ok := actual.(*ServiceResource)
	if !ok {
		return fmt.Errorf("%w: expected ServiceResource for actual, got %T", ErrUnexpectedType, actual)
	}

	return withHost(ctx, sm.client, func(client host.Client) error {
		if sm.Restarts(desiredService, actualService) {
			if err := client.DaemonReload(ctx); err != nil {
				return fmt.Errorf("unable to reload systemd: %w", err)
			}
		}
		return sm.converge(ctx, client, desiredService, actualService)
	})
}

// DeleteResource stops and disables a unit that is no longer managed
func (sm *ServiceManager) DeleteResource(ctx context.Context, resource Resource) error {
	return withHost(ctx, sm.client, func(client host.Client) error {
		name := resource.GetName()
		if err := client.StopService(ctx, name); err != nil && !errors.Is(err, host.ErrNotFound) {
			return fmt.Errorf("unable to stop service %s: %w", name, err)
		}
		if err := client.DisableService(ctx, name); err != nil && !errors.Is(err, host.ErrNotFound) {
			return fmt.Errorf("unable to disable service %s: %w", name, err)
		}
		return nil
	})
}

// Refresh reloads unit definitions and restarts a running service
func (sm *ServiceManager) Refresh(ctx context.Context, resource Resource) error {
	service, ok := resource.(*ServiceResource)
	if !ok {
		return fmt.Errorf("%w: expected ServiceResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, sm.client, func(client host.Client) error {
		if err := client.DaemonReload(ctx); err != nil {
			return fmt.Errorf("unable to reload systemd: %w", err)
		}
		if service.Spec.Ensure != ServiceRunning {
			return nil
		}
		if err := client.RestartService(ctx, service.GetName()); err != nil {
			return fmt.Errorf("unable to restart service %s: %w", service.GetName(), err)
		}
		return nil
	})
}

// Restarts reports whether the unit gets started, which loads its current definition
func (sm *ServiceManager) Restarts(desired, actual Resource) bool {
	desiredService, ok := desired.(*ServiceResource)
	if !ok || desiredService.Spec.Ensure != ServiceRunning {
		return false
	}
	if actual == nil {
		return true
	}
	actualService, ok := actual.(*ServiceResource)
	return ok && actualService.Spec.Ensure != ServiceRunning
}

// CompareResources compares desired vs actual run state and enablement
func (sm *ServiceManager) CompareResources(desired, actual Resource) (bool, error) {
	if _, ok := desired.(*ServiceResource); !ok {
		return false, fmt.Errorf("%w: expected ServiceResource for desired, got %T", ErrUnexpectedType, desired)
	}
	if _, ok := actual.(*ServiceResource); !ok {
		return false, fmt.Errorf("%w: expected ServiceResource for actual, got %T", ErrUnexpectedType, actual)
	}

	return len(sm.DiffReasons(desired, actual)) == 0, nil
}

// DiffReasons lists the attributes that differ
func (sm *ServiceManager) DiffReasons(desired, actual Resource) []string {
	desiredService, ok1 := desired.(*ServiceResource)
	actualService, ok2 := actual.(*ServiceResource)
	if !ok1 || !ok2 {
		return []string{"resource type conversion failed"}
	}

	var reasons []string
	if desiredService.Spec.Ensure != actualService.Spec.Ensure {
		if desiredService.Spec.Ensure == ServiceRunning {
			reasons = append(reasons, "not running")
		} else {
			reasons = append(reasons, "not stopped")
		}
	}
	if desiredService.Spec.Enable != nil && !sm.enableMatches(desiredService, actualService) {
		if *desiredService.Spec.Enable {
			reasons = append(reasons, "not enabled")
		} else {
			reasons = append(reasons, "not disabled")
		}
	}
	return reasons
}

// Helper methods

func (sm *ServiceManager) converge(ctx context.Context, client host.Client, desired, actual *ServiceResource) error {
	name := desired.GetName()

	if desired.Spec.Enable != nil && !sm.enableMatches(desired, actual) {
		var err error
		if *desired.Spec.Enable {
			err = client.EnableService(ctx, name)
		} else {
			err = client.DisableService(ctx, name)
		}
		if err != nil {
			return fmt.Errorf("unable to change enablement of service %s: %w", name, err)
		}
	}

	if desired.Spec.Ensure != actual.Spec.Ensure {
		var err error
		if desired.Spec.Ensure == ServiceRunning {
			err = client.StartService(ctx, name)
		} else {
			err = client.StopService(ctx, name)
		}
		if err != nil {
			return fmt.Errorf("unable to change state of service %s: %w", name, err)
		}
	}

	return nil
}

func (sm *ServiceManager) enableMatches(desired, actual *ServiceResource) bool {
	return actual.Spec.Enable != nil && *actual.Spec.Enable == *desired.Spec.Enable
}

func (sm *ServiceManager) convertServiceInfoToResource(name string, info *host.ServiceInfo) *ServiceResource {
	resource := NewServiceResource(name)
	resource.Spec.Ensure = ServiceStopped
	if info.Running() {
		resource.Spec.Ensure = ServiceRunning
	}
	resource.SetEnable(info.Enabled)
	return resource
}
