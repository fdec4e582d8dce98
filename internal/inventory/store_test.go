package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"converge/internal/resource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "state"))

	record, err := store.Load(ctx, "rds-exporter")
	require.NoError(t, err)
	assert.Nil(t, record)

	when := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, &resource.InventoryRecord{
		Catalog: "rds-exporter",
		Managed: []resource.ResourceReference{
			{Type: resource.ResourceTypeService, Name: "rds_exporter"},
			{Type: resource.ResourceTypeFile, Name: "/etc/rds-exporter.yaml"},
		},
		LastReconciled: when,
		Status:         resource.StatusHealthy,
		ResourceCounts: map[string]int{"file": 1, "service": 1},
	}))

	info, err := os.Stat(filepath.Join(store.Dir(), "rds-exporter.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	record, err = store.Load(ctx, "rds-exporter")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, resource.StatusHealthy, record.Status)
	assert.True(t, when.Equal(record.LastReconciled))
	assert.Equal(t, []resource.ResourceReference{
		{Type: resource.ResourceTypeFile, Name: "/etc/rds-exporter.yaml"},
		{Type: resource.ResourceTypeService, Name: "rds_exporter"},
	}, record.Managed, "references are stored sorted")
	assert.Equal(t, []string{"/etc/rds-exporter.yaml"}, record.ManagedNames(resource.ResourceTypeFile))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rds-exporter"}, names)

	require.NoError(t, store.Delete(ctx, "rds-exporter"))
	require.NoError(t, store.Delete(ctx, "rds-exporter"))

	record, err = store.Load(ctx, "rds-exporter")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStore_InvalidNames(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())

	for _, name := range []string{"", "..", "../etc/passwd", "a/b", ".hidden"} {
		_, err := store.Load(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidCatalogName, name)
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("managed: [\n"), 0o600))

	_, err := NewStore(dir).Load(ctx, "broken")
	assert.ErrorContains(t, err, "failed to parse inventory")
}

func TestStateDir(t *testing.T) {
	t.Setenv(StateDirEnv, "")
	assert.Equal(t, DefaultStateDir, StateDir())

	t.Setenv(StateDirEnv, "/tmp/converge-state")
	assert.Equal(t, "/tmp/converge-state", StateDir())
	assert.Equal(t, "/tmp/converge-state", NewStore("").Dir())
}

func TestStore_WithController(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())

	var _ resource.Inventory = store

	require.NoError(t, store.Save(ctx, &resource.InventoryRecord{Catalog: "a", Status: resource.StatusDegraded, Errors: []string{"boom"}}))
	record, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"boom"}, record.Errors)
}
