package resource

import (
	"fmt"
)

// Well-known package ensure values. Any other value pins a version.
const (
	PackagePresent = "present"
	PackageLatest  = "latest"
	PackageAbsent  = "absent"
)

// PackageResource represents a package of the native package manager
type PackageResource struct {
	BaseResource `json:",inline"`
	Spec         PackageSpec    `json:"spec"`
	Status       *PackageStatus `json:"-"`
}

// PackageSpec defines the specification for a package
type PackageSpec struct {
	Ensure string `json:"ensure,omitempty"`
}

// PackageStatus carries observed versions
type PackageStatus struct {
	Installed string
	Candidate string
}

// NewPackageResource creates a new PackageResource
func NewPackageResource(name string) *PackageResource {
	return &PackageResource{
		BaseResource: newBase(ResourceTypePackage, "Package", name),
		Spec:         PackageSpec{Ensure: PackagePresent},
	}
}

// IsAbsent implements Resource interface
func (p *PackageResource) IsAbsent() bool {
	return p.Spec.Ensure == PackageAbsent
}

// PinnedVersion returns the requested version, empty unless ensure pins one
func (p *PackageResource) PinnedVersion() string {
	switch p.Spec.Ensure {
	case PackagePresent, PackageLatest, PackageAbsent, "":
		return ""
	default:
		return p.Spec.Ensure
	}
}

// Validate checks the package specification
func (p *PackageResource) Validate() []error {
	if p.Spec.Ensure == "" {
		return []error{fmt.Errorf("package %s: ensure cannot be empty", p.GetName())}
	}
	return nil
}
