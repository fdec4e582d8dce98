package host

import (
	"context"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_Connect(t *testing.T) {
	client := NewMockClient()

	err := client.Connect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, client.GetCallCount("Connect"))

	client.SetShouldFailConnect(true)
	err = client.Connect(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mock connection failed")
}

func TestMockClient_FileOperations(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	require.NoError(t, client.WriteFile(ctx, "/etc/rds-exporter.yaml", []byte("---\n"), 0o640))

	info, err := client.StatFile(ctx, "/etc/rds-exporter.yaml")
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, info.Type)
	assert.Equal(t, "root", info.Owner)

	parent, err := client.StatFile(ctx, "/etc")
	require.NoError(t, err)
	assert.Equal(t, FileTypeDirectory, parent.Type)

	// Chown requires the account to exist
	err = client.Chown(ctx, "/etc/rds-exporter.yaml", "", "rds-exporter")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, client.CreateGroup(ctx, GroupSpec{Name: "rds-exporter", System: true}))
	require.NoError(t, client.Chown(ctx, "/etc/rds-exporter.yaml", "root", "rds-exporter"))

	f, ok := client.GetFile("/etc/rds-exporter.yaml")
	require.True(t, ok)
	assert.Equal(t, "rds-exporter", f.Group)

	// Directories with children cannot be removed
	assert.Error(t, client.RemoveFile(ctx, "/etc"))
	require.NoError(t, client.RemoveFile(ctx, "/etc/rds-exporter.yaml"))

	_, err = client.StatFile(ctx, "/etc/rds-exporter.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockClient_Accounts(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	require.NoError(t, client.CreateGroup(ctx, GroupSpec{Name: "rds-exporter", System: true}))
	require.NoError(t, client.CreateUser(ctx, UserSpec{Name: "rds-exporter", Group: "rds-exporter", System: true}))

	u, err := client.LookupUser(ctx, "rds-exporter")
	require.NoError(t, err)
	assert.Equal(t, "rds-exporter", u.Group)
	assert.Less(t, u.UID, 1000)

	// A user without an explicit group gets a private one
	require.NoError(t, client.CreateUser(ctx, UserSpec{Name: "alice"}))
	assert.True(t, client.HasGroup("alice"))

	require.NoError(t, client.ModifyUser(ctx, UserSpec{Name: "alice", Groups: []string{"rds-exporter"}}))
	g, err := client.LookupGroup(ctx, "rds-exporter")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, g.Members)

	assert.Error(t, client.DeleteGroup(ctx, "rds-exporter"), "primary group still in use")
	require.NoError(t, client.DeleteUser(ctx, "rds-exporter"))
	require.NoError(t, client.DeleteGroup(ctx, "rds-exporter"))
	assert.False(t, client.HasUser("rds-exporter"))
}

func TestMockClient_Services(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	_, err := client.ServiceStatus(ctx, "rds_exporter")
	assert.ErrorIs(t, err, ErrNotFound)

	client.AddFile("/etc/systemd/system/rds_exporter.service", []byte("[Unit]\n"), 0o644, "root", "root")

	info, err := client.ServiceStatus(ctx, "rds_exporter")
	require.NoError(t, err)
	assert.False(t, info.Running())

	require.NoError(t, client.StartService(ctx, "rds_exporter"))
	require.NoError(t, client.EnableService(ctx, "rds_exporter"))

	svc, ok := client.GetService("rds_exporter")
	require.True(t, ok)
	assert.True(t, svc.Running())
	assert.True(t, svc.Enabled)
}

func TestMockClient_Archives(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()
	payload := []byte("tarball")
	client.AddRemoteArchive("https://example.com/a.tar.gz", payload, map[string][]byte{"bin/tool": []byte("elf")})

	err := client.Download(ctx, DownloadSpec{
		URL:         "https://example.com/a.tar.gz",
		Destination: "/tmp/a.tar.gz",
		Checksum:    digest.FromString("other").String(),
	})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	require.NoError(t, client.Download(ctx, DownloadSpec{
		URL:         "https://example.com/a.tar.gz",
		Destination: "/tmp/a.tar.gz",
		Checksum:    digest.FromBytes(payload).String(),
	}))
	require.NoError(t, client.Extract(ctx, "/tmp/a.tar.gz", "/opt/a"))

	f, ok := client.GetFile("/opt/a/bin/tool")
	require.True(t, ok)
	assert.Equal(t, "elf", string(f.Content))
}

func TestMockClient_FailureInjection(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	client.SetShouldFailOperation("WriteFile", true)
	err := client.WriteFile(ctx, "/etc/x", nil, 0o644)
	assert.Error(t, err)
	assert.Equal(t, 1, client.GetCallCount("WriteFile"))
	assert.Equal(t, 1, client.MutationCount())

	client.ResetCalls()
	assert.Equal(t, 0, client.MutationCount())

	client.Reset()
	assert.NoError(t, client.WriteFile(ctx, "/etc/x", nil, 0o644))
}
