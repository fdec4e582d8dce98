package host

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrNotFound is returned when the queried host object does not exist
	ErrNotFound = errors.New("host: not found")

	// ErrChecksumMismatch is returned when a downloaded archive does not match its digest
	ErrChecksumMismatch = errors.New("host: checksum mismatch")

	// ErrUnsafePath is returned when an archive entry escapes the extraction directory
	ErrUnsafePath = errors.New("host: unsafe archive path")

	// ErrNoPackageManager is returned when no supported package manager is installed
	ErrNoPackageManager = errors.New("host: no supported package manager")
)

// Client defines the interface for observing and mutating host state
type Client interface {
	// File operations
	StatFile(ctx context.Context, path string) (*FileInfo, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, content []byte, mode os.FileMode) error
	Symlink(ctx context.Context, target, path string) error
	Mkdir(ctx context.Context, path string, mode os.FileMode) error
	Chmod(ctx context.Context, path string, mode os.FileMode) error
	Chown(ctx context.Context, path, owner, group string) error
	RemoveFile(ctx context.Context, path string) error

	// Account operations
	LookupUser(ctx context.Context, name string) (*UserInfo, error)
	CreateUser(ctx context.Context, spec UserSpec) error
	ModifyUser(ctx context.Context, spec UserSpec) error
	DeleteUser(ctx context.Context, name string) error
	LookupGroup(ctx context.Context, name string) (*GroupInfo, error)
	CreateGroup(ctx context.Context, spec GroupSpec) error
	ModifyGroup(ctx context.Context, spec GroupSpec) error
	DeleteGroup(ctx context.Context, name string) error

	// Service operations
	ServiceStatus(ctx context.Context, name string) (*ServiceInfo, error)
	StartService(ctx context.Context, name string) error
	StopService(ctx context.Context, name string) error
	RestartService(ctx context.Context, name string) error
	EnableService(ctx context.Context, name string) error
	DisableService(ctx context.Context, name string) error
	DaemonReload(ctx context.Context) error

	// Archive operations
	Download(ctx context.Context, spec DownloadSpec) error
	Extract(ctx context.Context, archivePath, destination string) error

	// Package operations
	QueryPackage(ctx context.Context, name string) (*PackageInfo, error)
	InstallPackage(ctx context.Context, name, version string) error
	RemovePackage(ctx context.Context, name string) error

	// Connection management
	Connect(ctx context.Context) error
	Close() error
}

// FileType is the type of a filesystem object
type FileType string

const (
	FileTypeFile      FileType = "file"
	FileTypeDirectory FileType = "directory"
	FileTypeLink      FileType = "link"
	FileTypeOther     FileType = "other"
)

// FileInfo describes an observed filesystem object. Symlinks are not followed.
type FileInfo struct {
	Path   string
	Type   FileType
	Mode   os.FileMode // permission bits only
	Size   int64
	Owner  string
	Group  string
	Target string // link target, only for FileTypeLink
}

// UserSpec represents the specification for creating or modifying a user
type UserSpec struct {
	Name   string
	UID    *int
	Group  string
	Groups []string
	Home   string
	Shell  string
	System bool
}

// UserInfo represents user information
type UserInfo struct {
	Name   string
	UID    int
	GID    int
	Group  string
	Groups []string
	Home   string
	Shell  string
}

// GroupSpec represents the specification for creating or modifying a group
type GroupSpec struct {
	Name   string
	GID    *int
	System bool
}

// GroupInfo represents group information
type GroupInfo struct {
	Name    string
	GID     int
	Members []string
}

// ServiceInfo represents the state of a systemd unit
type ServiceInfo struct {
	Name        string
	LoadState   string
	ActiveState string
	SubState    string
	Enabled     bool
}

// Running reports whether the unit is active or about to be
func (s *ServiceInfo) Running() bool {
	return s.ActiveState == "active" || s.ActiveState == "reloading" || s.ActiveState == "activating"
}

// DownloadSpec represents a file to fetch
type DownloadSpec struct {
	URL         string
	Destination string
	Checksum    string // "<algorithm>:<hex>", empty to skip verification
	ProxyServer string
}

// PackageInfo represents a package known to the package manager
type PackageInfo struct {
	Name      string
	Installed string // installed version, empty when not installed
	Candidate string // version that would be installed
}
