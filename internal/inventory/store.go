// Package inventory persists what each catalog apply managed, so later runs
// can purge orphans, report status and remove a catalog.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"converge/internal/logging"
	"converge/internal/resource"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultStateDir is where records live unless overridden
	DefaultStateDir = "/var/lib/converge"

	// StateDirEnv overrides DefaultStateDir
	StateDirEnv = "CONVERGE_STATE_DIR"

	fileSuffix = ".yaml"
)

// ErrInvalidCatalogName is returned for names that cannot be used as a file name
var ErrInvalidCatalogName = errors.New("invalid catalog name")

// Store keeps one YAML record per catalog in a directory
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. An empty dir resolves to StateDir().
func NewStore(dir string) *Store {
	if dir == "" {
		dir = StateDir()
	}
	return &Store{dir: dir}
}

// StateDir returns the state directory from the environment or the default
func StateDir() string {
	if dir := os.Getenv(StateDirEnv); dir != "" {
		return dir
	}
	return DefaultStateDir
}

// Dir returns the directory of the store
func (s *Store) Dir() string {
	return s.dir
}

// Load implements resource.Inventory
func (s *Store) Load(ctx context.Context, catalog string) (*resource.InventoryRecord, error) {
	p, err := s.path(catalog)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", p, err)
	}

	var record resource.InventoryRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", p, err)
	}
	if record.Catalog == "" {
		record.Catalog = catalog
	}
	return &record, nil
}

// Save implements resource.Inventory. The record is written to a temporary
// file and renamed over the previous one.
func (s *Store) Save(ctx context.Context, record *resource.InventoryRecord) error {
	p, err := s.path(record.Catalog)
	if err != nil {
		return err
	}

	sorted := *record
	sorted.Managed = append([]resource.ResourceReference(nil), record.Managed...)
	resource.SortReferences(sorted.Managed)

	data, err := yaml.Marshal(&sorted)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+record.Catalog+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary inventory: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync inventory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close inventory: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to chmod inventory: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace inventory %s: %w", p, err)
	}

	logging.FromContext(ctx).Debug().Str("catalog", record.Catalog).Str("path", p).Int("managed", len(sorted.Managed)).Msg("inventory saved")
	return nil
}

// Delete implements resource.Inventory
func (s *Store) Delete(ctx context.Context, catalog string) error {
	p, err := s.path(catalog)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete inventory %s: %w", p, err)
	}
	return nil
}

// List returns the names of all recorded catalogs, sorted
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) path(catalog string) (string, error) {
	if catalog == "" || catalog == "." || catalog == ".." || strings.ContainsAny(catalog, `/\`) || strings.HasPrefix(catalog, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCatalogName, catalog)
	}
	return filepath.Join(s.dir, catalog+fileSuffix), nil
}
