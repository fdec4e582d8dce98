package resource

import (
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"os"

	"converge/internal/host"

	"github.com/opencontainers/go-digest"
)

const (
	defaultFileMode      os.FileMode = 0o644
	defaultDirectoryMode os.FileMode = 0o755

	// maxDigestSize bounds the files read back for content comparison.
	// Larger files are compared by size.
	maxDigestSize = 16 << 20
)

// FileManager implements ResourceManager for file resources
type FileManager struct {
	client host.Client
}

// NewFileManager creates a new FileManager
func NewFileManager(client host.Client) *FileManager {
	return &FileManager{
		client: client,
	}
}

// GetResourceType returns the resource type this manager handles
func (fm *FileManager) GetResourceType() ResourceType {
	return ResourceTypeFile
}

// GetDesiredState extracts file resources from manifests
func (fm *FileManager) GetDesiredState(manifests []Resource) ([]Resource, error) {
	return filterByType(manifests, ResourceTypeFile), nil
}

// GetActualState observes the named paths on the host
func (fm *FileManager) GetActualState(ctx context.Context, names []string) ([]Resource, error) {
	var resources []Resource

	err := withHost(ctx, fm.client, func(client host.Client) error {
		for _, name := range names {
			info, err := client.StatFile(ctx, name)
			if errors.Is(err, host.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("unable to stat %s: %w", name, err)
			}

			resource, err := fm.convertFileInfoToResource(ctx, client, info)
			if err != nil {
				return err
			}
			resources = append(resources, resource)
		}
		return nil
	})

	return resources, err
}

// CreateResource creates a new file, directory or link
func (fm *FileManager) CreateResource(ctx context.Context, resource Resource) error {
	file, ok := resource.(*FileResource)
	if !ok {
		return fmt.Errorf("%w: expected FileResource, got %T", ErrUnexpectedType, resource)
	}

	return withHost(ctx, fm.client, func(client host.Client) error {
		return fm.create(ctx, client, file)
	})
}

// UpdateResource converges an existing path to the desired specification
func (fm *FileManager) UpdateResource(ctx context.Context, desired, actual Resource) error {
	desiredFile, ok := desired.(*FileResource)
	if !ok {
		return fmt.Errorf("%w: expected FileResource for desired, got %T", ErrUnexpectedType, desired)
	}
	actualFile, ok := actual.(*FileResource)
	if !ok {
		return fmt.Errorf("%w: expected FileResource for actual, got %T", ErrUnexpectedType, actual)
	}

	return withHost(ctx, fm.client, func(client host.Client) error {
		name := desiredFile.GetName()

		if desiredFile.Spec.Ensure != actualFile.Spec.Ensure {
			if err := client.RemoveFile(ctx, name); err != nil {
				return fmt.Errorf("unable to replace %s: %w", name, err)
			}
			return fm.create(ctx, client, desiredFile)
		}

		rewritten := false
		switch desiredFile.Spec.Ensure {
		case FileEnsureFile:
			if desiredFile.Spec.Content != nil && !fm.contentMatches(desiredFile, actualFile) {
				mode, err := desiredFile.FileMode(actualFile.mode())
				if err != nil {
					return err
				}
				if err := client.WriteFile(ctx, name, []byte(*desiredFile.Spec.Content), mode); err != nil {
					return fmt.Errorf("unable to write %s: %w", name, err)
				}
				rewritten = true
			}
		case FileEnsureLink:
			if desiredFile.Spec.Target != actualFile.Spec.Target {
				if err := client.Symlink(ctx, desiredFile.Spec.Target, name); err != nil {
					return fmt.Errorf("unable to link %s: %w", name, err)
				}
				rewritten = true
			}
		}

		// A rewritten file is owned by the writer, so ownership is restored as well
		owner := pick(desiredFile.Spec.Owner, actualFile.Spec.Owner)
		group := pick(desiredFile.Spec.Group, actualFile.Spec.Group)
		if rewritten || owner != actualFile.Spec.Owner || group != actualFile.Spec.Group {
			if err := client.Chown(ctx, name, owner, group); err != nil {
				return fmt.Errorf("unable to chown %s: %w", name, err)
			}
		}

		if desiredFile.Spec.Ensure != FileEnsureLink && desiredFile.Spec.Mode != "" && !fm.modeMatches(desiredFile, actualFile) {
			mode, err := desiredFile.FileMode(0)
			if err != nil {
				return err
			}
			if err := client.Chmod(ctx, name, mode); err != nil {
				return fmt.Errorf("unable to chmod %s: %w", name, err)
			}
		}

		return nil
	})
}

// DeleteResource removes a path
func (fm *FileManager) DeleteResource(ctx context.Context, resource Resource) error {
	return withHost(ctx, fm.client, func(client host.Client) error {
		return client.RemoveFile(ctx, resource.GetName())
	})
}

// CompareResources compares the managed attributes of desired vs actual file
func (fm *FileManager) CompareResources(desired, actual Resource) (bool, error) {
	desiredFile, ok := desired.(*FileResource)
	if !ok {
		return false, fmt.Errorf("%w: expected FileResource for desired, got %T", ErrUnexpectedType, desired)
	}
	actualFile, ok := actual.(*FileResource)
	if !ok {
		return false, fmt.Errorf("%w: expected FileResource for actual, got %T", ErrUnexpectedType, actual)
	}

	return len(fm.DiffReasons(desiredFile, actualFile)) == 0, nil
}

// DiffReasons lists the attributes that differ
func (fm *FileManager) DiffReasons(desired, actual Resource) []string {
	desiredFile, ok1 := desired.(*FileResource)
	actualFile, ok2 := actual.(*FileResource)
	if !ok1 || !ok2 {
		return []string{"resource type conversion failed"}
	}

	var reasons []string
	if desiredFile.Spec.Ensure != actualFile.Spec.Ensure {
		return []string{fmt.Sprintf("type changed from %s to %s", actualFile.Spec.Ensure, desiredFile.Spec.Ensure)}
	}

	if desiredFile.Spec.Ensure == FileEnsureFile && desiredFile.Spec.Content != nil && !fm.contentMatches(desiredFile, actualFile) {
		reasons = append(reasons, "content changed")
	}
	if desiredFile.Spec.Ensure == FileEnsureLink && desiredFile.Spec.Target != actualFile.Spec.Target {
		reasons = append(reasons, "target changed")
	}
	if desiredFile.Spec.Owner != "" && desiredFile.Spec.Owner != actualFile.Spec.Owner {
		reasons = append(reasons, "owner changed")
	}
	if desiredFile.Spec.Group != "" && desiredFile.Spec.Group != actualFile.Spec.Group {
		reasons = append(reasons, "group changed")
	}
	if desiredFile.Spec.Ensure != FileEnsureLink && desiredFile.Spec.Mode != "" && !fm.modeMatches(desiredFile, actualFile) {
		reasons = append(reasons, "mode changed")
	}

	return reasons
}

// Helper methods

func (fm *FileManager) create(ctx context.Context, client host.Client, file *FileResource) error {
	name := file.GetName()

	switch file.Spec.Ensure {
	case FileEnsureDirectory:
		mode, err := file.FileMode(defaultDirectoryMode)
		if err != nil {
			return err
		}
		if err := client.Mkdir(ctx, name, mode); err != nil {
			return fmt.Errorf("unable to create directory %s: %w", name, err)
		}
	case FileEnsureLink:
		if err := client.Symlink(ctx, file.Spec.Target, name); err != nil {
			return fmt.Errorf("unable to link %s: %w", name, err)
		}
	case FileEnsureFile:
		// Unmanaged content: an earlier resource in the run may have created the file
		if file.Spec.Content == nil {
			if _, err := client.StatFile(ctx, name); err == nil {
				break
			}
		}
		mode, err := file.FileMode(defaultFileMode)
		if err != nil {
			return err
		}
		var content []byte
		if file.Spec.Content != nil {
			content = []byte(*file.Spec.Content)
		}
		if err := client.WriteFile(ctx, name, content, mode); err != nil {
			return fmt.Errorf("unable to write %s: %w", name, err)
		}
	default:
		return fmt.Errorf("cannot create file %s with ensure %q", name, file.Spec.Ensure)
	}

	if file.Spec.Owner != "" || file.Spec.Group != "" {
		if err := client.Chown(ctx, name, file.Spec.Owner, file.Spec.Group); err != nil {
			return fmt.Errorf("unable to chown %s: %w", name, err)
		}
	}

	// Mkdir and WriteFile are subject to the umask
	if file.Spec.Ensure != FileEnsureLink && file.Spec.Mode != "" {
		mode, err := file.FileMode(0)
		if err != nil {
			return err
		}
		if err := client.Chmod(ctx, name, mode); err != nil {
			return fmt.Errorf("unable to chmod %s: %w", name, err)
		}
	}

	return nil
}

func (fm *FileManager) convertFileInfoToResource(ctx context.Context, client host.Client, info *host.FileInfo) (*FileResource, error) {
	resource := NewFileResource(info.Path)
	resource.Spec.Owner = info.Owner
	resource.Spec.Group = info.Group
	resource.Spec.Mode = fmt.Sprintf("%04o", info.Mode.Perm())
	resource.Status = &FileStatus{Size: info.Size}

	switch info.Type {
	case host.FileTypeDirectory:
		resource.Spec.Ensure = FileEnsureDirectory
	case host.FileTypeLink:
		resource.Spec.Ensure = FileEnsureLink
		resource.Spec.Target = info.Target
	case host.FileTypeFile:
		resource.Spec.Ensure = FileEnsureFile
		if info.Size <= maxDigestSize {
			content, err := client.ReadFile(ctx, info.Path)
			if err != nil {
				return nil, fmt.Errorf("unable to read %s: %w", info.Path, err)
			}
			resource.Status.Digest = digest.FromBytes(content).String()
		}
	default:
		resource.Spec.Ensure = FileEnsure(info.Type)
	}

	return resource, nil
}

func (fm *FileManager) contentMatches(desired, actual *FileResource) bool {
	content := *desired.Spec.Content
	if actual.Status == nil {
		return false
	}
	if int64(len(content)) != actual.Status.Size {
		return false
	}
	if actual.Status.Digest == "" {
		return true
	}
	return digest.FromString(content).String() == actual.Status.Digest
}

func (fm *FileManager) modeMatches(desired, actual *FileResource) bool {
	desiredMode, err := desired.FileMode(0)
	if err != nil {
		return false
	}
	return desiredMode == actual.mode()
}

// mode returns the observed permission bits
func (f *FileResource) mode() os.FileMode {
	mode, err := f.FileMode(defaultFileMode)
	if err != nil {
		return defaultFileMode
	}
	return mode
}

// withHost runs fn with a connected host client, reusing the session of the current run
func withHost(ctx context.Context, client host.Client, fn func(host.Client) error) error {
	return host.NewConnectedClient(client).WithClient(ctx, fn)
}

func filterByType(manifests []Resource, resourceType ResourceType) []Resource {
	var resources []Resource
	for _, manifest := range manifests {
		if manifest.GetType() == resourceType {
			resources = append(resources, manifest)
		}
	}
	return resources
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
