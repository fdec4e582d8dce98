package resource

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InventoryRecord is what an apply remembers about a catalog
type InventoryRecord struct {
	Catalog        string              `json:"catalog"`
	Managed        []ResourceReference `json:"managed"`
	LastReconciled time.Time           `json:"lastReconciled"`
	Status         string              `json:"status"`
	ResourceCounts map[string]int      `json:"resourceCounts,omitempty"`
	Errors         []string            `json:"errors,omitempty"`
}

// Inventory persists InventoryRecords between runs
type Inventory interface {
	// Load returns the record of a catalog, or nil when the catalog was never applied
	Load(ctx context.Context, catalog string) (*InventoryRecord, error)

	// Save stores a record
	Save(ctx context.Context, record *InventoryRecord) error

	// Delete forgets a catalog
	Delete(ctx context.Context, catalog string) error
}

// ManagedNames returns the managed names of one kind
func (r *InventoryRecord) ManagedNames(resourceType ResourceType) []string {
	if r == nil {
		return nil
	}
	var names []string
	for _, ref := range r.Managed {
		if ref.Type == resourceType {
			names = append(names, ref.Name)
		}
	}
	return names
}

// MemoryInventory keeps records in memory
type MemoryInventory struct {
	mu      sync.RWMutex
	records map[string]*InventoryRecord
}

// NewMemoryInventory creates an empty in-memory inventory
func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{records: make(map[string]*InventoryRecord)}
}

// Load implements Inventory
func (m *MemoryInventory) Load(ctx context.Context, catalog string) (*InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[catalog]
	if !ok {
		return nil, nil
	}
	copied := *record
	copied.Managed = append([]ResourceReference(nil), record.Managed...)
	return &copied, nil
}

// Save implements Inventory
func (m *MemoryInventory) Save(ctx context.Context, record *InventoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *record
	copied.Managed = append([]ResourceReference(nil), record.Managed...)
	m.records[record.Catalog] = &copied
	return nil
}

// Delete implements Inventory
func (m *MemoryInventory) Delete(ctx context.Context, catalog string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, catalog)
	return nil
}

// SortReferences orders references by kind then name
func SortReferences(refs []ResourceReference) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].Name < refs[j].Name
	})
}
