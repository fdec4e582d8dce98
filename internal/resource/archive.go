package resource

import (
	"fmt"
	"net/url"
	"path"

	"github.com/opencontainers/go-digest"
)

// ArchiveEnsure is the desired presence of an archive
type ArchiveEnsure string

const (
	ArchivePresent ArchiveEnsure = "present"
	ArchiveAbsent  ArchiveEnsure = "absent"
)

// ArchiveResource represents a downloaded, optionally extracted archive identified by its local path
type ArchiveResource struct {
	BaseResource `json:",inline"`
	Spec         ArchiveSpec `json:"spec"`
}

// ArchiveSpec defines the specification for an archive
type ArchiveSpec struct {
	Ensure      ArchiveEnsure `json:"ensure,omitempty"`
	Source      string        `json:"source"`
	Checksum    string        `json:"checksum,omitempty"` // "sha256:<hex>"
	Extract     bool          `json:"extract,omitempty"`
	ExtractPath string        `json:"extractPath,omitempty"`
	Creates     string        `json:"creates,omitempty"` // path whose existence marks the archive as applied
	Cleanup     bool          `json:"cleanup,omitempty"` // remove the archive after extraction
	ProxyServer string        `json:"proxyServer,omitempty"`
}

// NewArchiveResource creates a new ArchiveResource
func NewArchiveResource(archivePath string) *ArchiveResource {
	return &ArchiveResource{
		BaseResource: newBase(ResourceTypeArchive, "Archive", archivePath),
		Spec:         ArchiveSpec{Ensure: ArchivePresent},
	}
}

// IsAbsent implements Resource interface
func (a *ArchiveResource) IsAbsent() bool {
	return a.Spec.Ensure == ArchiveAbsent
}

// Validate checks the archive specification
func (a *ArchiveResource) Validate() []error {
	var errs []error

	if !path.IsAbs(a.GetName()) {
		errs = append(errs, fmt.Errorf("archive path must be absolute: %q", a.GetName()))
	}

	switch a.Spec.Ensure {
	case ArchivePresent:
		if a.Spec.Source == "" {
			errs = append(errs, fmt.Errorf("archive %s: source cannot be empty", a.GetName()))
		} else if u, err := url.Parse(a.Spec.Source); err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Errorf("archive %s: invalid source %q", a.GetName(), a.Spec.Source))
		}
	case ArchiveAbsent:
	default:
		errs = append(errs, fmt.Errorf("archive %s: invalid ensure %q", a.GetName(), a.Spec.Ensure))
	}

	if a.Spec.Checksum != "" {
		if _, err := digest.Parse(a.Spec.Checksum); err != nil {
			errs = append(errs, fmt.Errorf("archive %s: invalid checksum: %w", a.GetName(), err))
		}
	}

	if a.Spec.Extract && !path.IsAbs(a.Spec.ExtractPath) {
		errs = append(errs, fmt.Errorf("archive %s: extract requires an absolute extractPath", a.GetName()))
	}

	if a.Spec.Cleanup && a.Spec.Creates == "" {
		errs = append(errs, fmt.Errorf("archive %s: cleanup requires creates", a.GetName()))
	}

	return errs
}
