package resource

import (
	"fmt"
)

// AccountEnsure is the desired presence of a user or group
type AccountEnsure string

const (
	AccountPresent AccountEnsure = "present"
	AccountAbsent  AccountEnsure = "absent"
)

// UserResource represents a local user account
type UserResource struct {
	BaseResource `json:",inline"`
	Spec         UserSpec `json:"spec"`
}

// UserSpec defines the specification for a user
type UserSpec struct {
	Ensure AccountEnsure `json:"ensure,omitempty"`
	UID    *int          `json:"uid,omitempty"`
	Group  string        `json:"group,omitempty"`  // primary group name
	Groups []string      `json:"groups,omitempty"` // supplementary groups, empty leaves them unmanaged
	Home   string        `json:"home,omitempty"`
	Shell  string        `json:"shell,omitempty"`
	System bool          `json:"system,omitempty"`
}

// NewUserResource creates a new UserResource
func NewUserResource(name string) *UserResource {
	return &UserResource{
		BaseResource: newBase(ResourceTypeUser, "User", name),
		Spec:         UserSpec{Ensure: AccountPresent},
	}
}

// IsAbsent implements Resource interface
func (u *UserResource) IsAbsent() bool {
	return u.Spec.Ensure == AccountAbsent
}

// Validate checks the user specification
func (u *UserResource) Validate() []error {
	var errs []error
	switch u.Spec.Ensure {
	case AccountPresent, AccountAbsent:
	default:
		errs = append(errs, fmt.Errorf("user %s: invalid ensure %q", u.GetName(), u.Spec.Ensure))
	}
	if u.Spec.UID != nil && *u.Spec.UID < 0 {
		errs = append(errs, fmt.Errorf("user %s: uid must not be negative", u.GetName()))
	}
	return errs
}

// GroupResource represents a local group
type GroupResource struct {
	BaseResource `json:",inline"`
	Spec         GroupSpec `json:"spec"`
}

// GroupSpec defines the specification for a group
type GroupSpec struct {
	Ensure AccountEnsure `json:"ensure,omitempty"`
	GID    *int          `json:"gid,omitempty"`
	System bool          `json:"system,omitempty"`
}

// NewGroupResource creates a new GroupResource
func NewGroupResource(name string) *GroupResource {
	return &GroupResource{
		BaseResource: newBase(ResourceTypeGroup, "Group", name),
		Spec:         GroupSpec{Ensure: AccountPresent},
	}
}

// IsAbsent implements Resource interface
func (g *GroupResource) IsAbsent() bool {
	return g.Spec.Ensure == AccountAbsent
}

// Validate checks the group specification
func (g *GroupResource) Validate() []error {
	var errs []error
	switch g.Spec.Ensure {
	case AccountPresent, AccountAbsent:
	default:
		errs = append(errs, fmt.Errorf("group %s: invalid ensure %q", g.GetName(), g.Spec.Ensure))
	}
	if g.Spec.GID != nil && *g.Spec.GID < 0 {
		errs = append(errs, fmt.Errorf("group %s: gid must not be negative", g.GetName()))
	}
	return errs
}
