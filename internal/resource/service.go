package resource

import (
	"fmt"
	"path"
)

// ServiceEnsure is the desired run state of a service
type ServiceEnsure string

const (
	ServiceRunning ServiceEnsure = "running"
	ServiceStopped ServiceEnsure = "stopped"
)

// ServiceResource represents a systemd service
type ServiceResource struct {
	BaseResource `json:",inline"`
	Spec         ServiceSpec `json:"spec"`
}

// ServiceSpec defines the specification for a service
type ServiceSpec struct {
	Ensure   ServiceEnsure `json:"ensure,omitempty"`
	Enable   *bool         `json:"enable,omitempty"`   // nil leaves enablement unmanaged
	UnitFile string        `json:"unitFile,omitempty"` // path of the managed unit file
}

// NewServiceResource creates a new ServiceResource
func NewServiceResource(name string) *ServiceResource {
	return &ServiceResource{
		BaseResource: newBase(ResourceTypeService, "Service", name),
		Spec:         ServiceSpec{Ensure: ServiceRunning},
	}
}

// IsAbsent implements Resource interface. Services are stopped, never absent.
func (s *ServiceResource) IsAbsent() bool {
	return false
}

// SetEnable sets the desired enablement
func (s *ServiceResource) SetEnable(enable bool) {
	s.Spec.Enable = &enable
}

// Validate checks the service specification
func (s *ServiceResource) Validate() []error {
	var errs []error
	switch s.Spec.Ensure {
	case ServiceRunning, ServiceStopped:
	default:
		errs = append(errs, fmt.Errorf("service %s: invalid ensure %q", s.GetName(), s.Spec.Ensure))
	}
	if s.Spec.UnitFile != "" && !path.IsAbs(s.Spec.UnitFile) {
		errs = append(errs, fmt.Errorf("service %s: unit file must be an absolute path", s.GetName()))
	}
	return errs
}
