package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"converge/internal/host"
)

// ArchiveManager implements ResourceManager for archive resources.
// An archive is present once its creates marker exists, or its file when no marker is set.
type ArchiveManager struct {
	client host.Client

	mu      sync.RWMutex
	desired map[string]*ArchiveResource
}

// NewArchiveManager creates a new ArchiveManager
func NewArchiveManager(client host.Client) *ArchiveManager {
	return &ArchiveManager{
		client:  client,
		desired: make(map[string]*ArchiveResource),
	}
}

// GetResourceType returns the resource type this manager handles
func (am *ArchiveManager) GetResourceType() ResourceType {
	return ResourceTypeArchive
}

// GetDesiredState extracts archive resources from manifests and remembers
// their markers for observation
func (am *ArchiveManager) GetDesiredState(manifests []Resource) ([]Resource, error) {
	archives := filterByType(manifests, ResourceTypeArchive)

	am.mu.Lock()
	defer am.mu.Unlock()

	am.desired = make(map[string]*ArchiveResource, len(archives))
	for _, resource := range archives {
		archive, ok := resource.(*ArchiveResource)
		if !ok {
			return nil, fmt.Errorf("%w: expected ArchiveResource, got %T", ErrUnexpectedType, resource)
		}
		am.desired[archive.GetName()] = archive
	}

	return archives, nil
}

// GetActualState checks the markers of the named archives
func (am *ArchiveManager) GetActualState(ctx context.Context, names []string) ([]Resource, error) {
	var resources []Resource

	err := withHost(ctx, am.client, func(client host.Client) error {
		for _, name := range names {
			marker := am.marker(name)
			_, err := client.StatFile(ctx, marker)
			if errors.Is(err, host.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("unable to stat %s: %w", marker, err)
			}
			resources = append(resources, NewArchiveResource(name))
		}
		return nil
	})

	return resources, err
}

// CreateResource downloads, verifies and optionally extracts an archive
func (am *ArchiveManager) CreateResource(ctx context.Context, resource Resource) error {
	archive, ok := resource.(*ArchiveResource)
	if !ok {
		return fmt.Errorf("%w: expected ArchiveResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, am.client, func(client host.Client) error {
		name := archive.GetName()

		err := client.Download(ctx, host.DownloadSpec{
			URL:         archive.Spec.Source,
			Destination: name,
			Checksum:    archive.Spec.Checksum,
			ProxyServer: archive.Spec.ProxyServer,
		})
		if err != nil {
			return fmt.Errorf("unable to download %s: %w", archive.Spec.Source, err)
		}

		if archive.Spec.Extract {
			if err := client.Mkdir(ctx, archive.Spec.ExtractPath, defaultDirectoryMode); err != nil {
				return fmt.Errorf("unable to create %s: %w", archive.Spec.ExtractPath, err)
			}
			if err := client.Extract(ctx, name, archive.Spec.ExtractPath); err != nil {
				return fmt.Errorf("unable to extract %s: %w", name, err)
			}
		}

		if archive.Spec.Cleanup {
			if err := client.RemoveFile(ctx, name); err != nil {
				return fmt.Errorf("unable to remove %s: %w", name, err)
			}
		}

		return nil
	})
}

// UpdateResource fetches the archive again
func (am *ArchiveManager) UpdateResource(ctx context.Context, desired, actual Resource) error {
	return am.CreateResource(ctx, desired)
}

// DeleteResource removes the archive file. Extracted content is left in place.
func (am *ArchiveManager) DeleteResource(ctx context.Context, resource Resource) error {
	return withHost(ctx, am.client, func(client host.Client) error {
		err := client.RemoveFile(ctx, resource.GetName())
		if errors.Is(err, host.ErrNotFound) {
			return nil
		}
		return err
	})
}

// CompareResources reports a present archive as converged
func (am *ArchiveManager) CompareResources(desired, actual Resource) (bool, error) {
	if _, ok := desired.(*ArchiveResource); !ok {
		return false, fmt.Errorf("%w: expected ArchiveResource for desired, got %T", ErrUnexpectedType, desired)
	}
	if _, ok := actual.(*ArchiveResource); !ok {
		return false, fmt.Errorf("%w: expected ArchiveResource for actual, got %T", ErrUnexpectedType, actual)
	}
	return true, nil
}

func (am *ArchiveManager) marker(name string) string {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if archive, ok := am.desired[name]; ok && archive.Spec.Creates != "" && !archive.IsAbsent() {
		return archive.Spec.Creates
	}
	return name
}
