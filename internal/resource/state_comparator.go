package resource

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// StateComparator handles the core logic of comparing desired vs actual state
type StateComparator interface {
	// CompareStates compares desired vs actual resources and returns a diff
	CompareStates(desired, actual []Resource) (*StateDiff, error)

	// ShouldUpdate determines if a resource should be updated and returns the reasons
	ShouldUpdate(desired, actual Resource) (bool, []string, error)

	// SetResourceManager sets the resource manager for a specific resource type
	SetResourceManager(resourceType ResourceType, manager ResourceManager)
}

// StateDiff represents the differences between desired and actual state.
// ToDelete holds both resources ensured absent that still exist and
// observed resources that are no longer desired.
type StateDiff struct {
	ToCreate  []Resource     `json:"to_create"`
	ToUpdate  []ResourcePair `json:"to_update"`
	ToDelete  []Resource     `json:"to_delete"`
	Unchanged []Resource     `json:"unchanged"`
}

// ResourcePair represents a pair of desired and actual resources for comparison
type ResourcePair struct {
	Desired Resource `json:"desired"`
	Actual  Resource `json:"actual"`
	Reasons []string `json:"reasons,omitempty"`
}

// IsEmpty reports whether the diff requires no change
func (d *StateDiff) IsEmpty() bool {
	return len(d.ToCreate) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0
}

// DefaultStateComparator implements StateComparator
type DefaultStateComparator struct {
	managers map[ResourceType]ResourceManager
}

// NewStateComparator creates a new state comparator
func NewStateComparator() StateComparator {
	return &DefaultStateComparator{
		managers: make(map[ResourceType]ResourceManager),
	}
}

// SetResourceManager sets the resource manager for a specific resource type
func (sc *DefaultStateComparator) SetResourceManager(resourceType ResourceType, manager ResourceManager) {
	sc.managers[resourceType] = manager
}

// CompareStates compares desired vs actual resources and returns a diff.
// Output follows the order of the inputs.
func (sc *DefaultStateComparator) CompareStates(desired, actual []Resource) (*StateDiff, error) {
	diff := &StateDiff{
		ToCreate:  make([]Resource, 0),
		ToUpdate:  make([]ResourcePair, 0),
		ToDelete:  make([]Resource, 0),
		Unchanged: make([]Resource, 0),
	}

	desiredMap := make(map[string]Resource, len(desired))
	actualMap := make(map[string]Resource, len(actual))

	for _, res := range desired {
		desiredMap[Key(res)] = res
	}
	for _, res := range actual {
		actualMap[Key(res)] = res
	}

	for _, desiredRes := range desired {
		key := Key(desiredRes)
		actualRes, exists := actualMap[key]

		if desiredRes.IsAbsent() {
			if exists {
				diff.ToDelete = append(diff.ToDelete, actualRes)
			} else {
				diff.Unchanged = append(diff.Unchanged, desiredRes)
			}
			continue
		}

		if !exists {
			diff.ToCreate = append(diff.ToCreate, desiredRes)
			continue
		}

		shouldUpdate, reasons, err := sc.ShouldUpdate(desiredRes, actualRes)
		if err != nil {
			return nil, fmt.Errorf("failed to compare resources %s: %w", key, err)
		}

		if shouldUpdate {
			diff.ToUpdate = append(diff.ToUpdate, ResourcePair{
				Desired: desiredRes,
				Actual:  actualRes,
				Reasons: reasons,
			})
		} else {
			diff.Unchanged = append(diff.Unchanged, desiredRes)
		}
	}

	// Observed but no longer desired
	for _, actualRes := range actual {
		if _, exists := desiredMap[Key(actualRes)]; !exists {
			diff.ToDelete = append(diff.ToDelete, actualRes)
		}
	}

	return diff, nil
}

// ShouldUpdate determines if a resource should be updated
func (sc *DefaultStateComparator) ShouldUpdate(desired, actual Resource) (bool, []string, error) {
	if desired.GetType() != actual.GetType() {
		return false, nil, fmt.Errorf("resource type mismatch: desired=%s, actual=%s",
			desired.GetType(), actual.GetType())
	}

	if desired.GetName() != actual.GetName() {
		return false, nil, fmt.Errorf("resource name mismatch: desired=%s, actual=%s",
			desired.GetName(), actual.GetName())
	}

	manager, exists := sc.managers[desired.GetType()]
	if !exists {
		return false, nil, fmt.Errorf("no resource manager registered for type %s", desired.GetType())
	}

	matches, err := manager.CompareResources(desired, actual)
	if err != nil {
		return false, nil, fmt.Errorf("failed to compare resources using manager: %w", err)
	}

	if matches {
		return false, []string{}, nil
	}

	return true, sc.determineUpdateReasons(manager, desired, actual), nil
}

// determineUpdateReasons asks the manager why two resources differ
func (sc *DefaultStateComparator) determineUpdateReasons(manager ResourceManager, desired, actual Resource) []string {
	var reasons []string
	if differ, ok := manager.(Differ); ok {
		reasons = differ.DiffReasons(desired, actual)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "configuration changed")
	}

	return reasons
}

// Helper functions shared by managers

func equalStrings(a, b []string) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty(), cmpopts.SortSlices(func(x, y string) bool { return x < y }))
}
