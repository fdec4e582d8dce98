package host

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/klauspost/pgzip"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	name string
	args []string
}

type fakeRunner struct {
	commands []recordedCommand
	outputs  map[string][]byte
	codes    map[string]int
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	r.commands = append(r.commands, recordedCommand{name: name, args: args})
	if code := r.codes[name]; code != 0 {
		return nil, []byte(name + " failed"), code, assert.AnError
	}
	return r.outputs[name], nil, 0, nil
}

func writeAccountFiles(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd")
	group := filepath.Join(dir, "group")
	require.NoError(t, os.WriteFile(passwd, []byte(strings.Join([]string{
		"root:x:0:0:root:/root:/bin/bash",
		"rds-exporter:x:998:997::/home/rds-exporter:/usr/sbin/nologin",
	}, "\n")+"\n"), 0o644))
	require.NoError(t, os.WriteFile(group, []byte(strings.Join([]string{
		"root:x:0:",
		"rds-exporter:x:997:",
		"monitoring:x:996:rds-exporter,other",
	}, "\n")+"\n"), 0o644))
	return passwd, group
}

func TestAdapter_FileOperations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	adapter := NewAdapter()

	path := filepath.Join(dir, "etc", "rds-exporter.yaml")
	require.NoError(t, adapter.WriteFile(ctx, path, []byte("---\ndebug: true\n"), 0o640))

	info, err := adapter.StatFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, info.Type)
	assert.Equal(t, os.FileMode(0o640), info.Mode)
	assert.Equal(t, int64(len("---\ndebug: true\n")), info.Size)

	content, err := adapter.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "---\ndebug: true\n", string(content))

	// Overwrite leaves no temp files behind
	require.NoError(t, adapter.WriteFile(ctx, path, []byte("---\n"), 0o600))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	link := filepath.Join(dir, "bin", "rds_exporter")
	require.NoError(t, adapter.Symlink(ctx, path, link))
	info, err = adapter.StatFile(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, FileTypeLink, info.Type)
	assert.Equal(t, path, info.Target)

	// Repointing replaces the existing link
	require.NoError(t, adapter.Symlink(ctx, "/nonexistent", link))
	info, err = adapter.StatFile(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "/nonexistent", info.Target)

	sub := filepath.Join(dir, "opt", "nested")
	require.NoError(t, adapter.Mkdir(ctx, sub, 0o750))
	info, err = adapter.StatFile(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, FileTypeDirectory, info.Type)
	assert.Equal(t, os.FileMode(0o750), info.Mode)

	require.NoError(t, adapter.Chmod(ctx, path, 0o644))
	info, err = adapter.StatFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode)

	require.NoError(t, adapter.RemoveFile(ctx, link))
	_, err = adapter.StatFile(ctx, link)
	assert.ErrorIs(t, err, ErrNotFound)

	// Removing something already gone is not an error
	assert.NoError(t, adapter.RemoveFile(ctx, link))
}

func TestAdapter_ReadFileNotFound(t *testing.T) {
	adapter := NewAdapter()
	_, err := adapter.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdapter_LookupAccounts(t *testing.T) {
	ctx := context.Background()
	passwd, group := writeAccountFiles(t)
	adapter := NewAdapter(WithAccountFiles(passwd, group))

	u, err := adapter.LookupUser(ctx, "rds-exporter")
	require.NoError(t, err)
	assert.Equal(t, 998, u.UID)
	assert.Equal(t, "rds-exporter", u.Group)
	assert.Equal(t, []string{"monitoring"}, u.Groups)
	assert.Equal(t, "/usr/sbin/nologin", u.Shell)

	_, err = adapter.LookupUser(ctx, "nobody-here")
	assert.ErrorIs(t, err, ErrNotFound)

	g, err := adapter.LookupGroup(ctx, "monitoring")
	require.NoError(t, err)
	assert.Equal(t, 996, g.GID)
	assert.Equal(t, []string{"rds-exporter", "other"}, g.Members)

	_, err = adapter.LookupGroup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdapter_AccountCommands(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{}
	adapter := NewAdapter(WithRunner(runner))

	gid := 500
	require.NoError(t, adapter.CreateGroup(ctx, GroupSpec{Name: "rds-exporter", GID: &gid, System: true}))
	require.NoError(t, adapter.CreateUser(ctx, UserSpec{
		Name:   "rds-exporter",
		Group:  "rds-exporter",
		Home:   "/",
		Shell:  "/usr/sbin/nologin",
		System: true,
	}))
	require.NoError(t, adapter.ModifyUser(ctx, UserSpec{Name: "rds-exporter", Groups: []string{"a", "b"}}))
	require.NoError(t, adapter.DeleteUser(ctx, "rds-exporter"))

	require.Len(t, runner.commands, 4)
	assert.Equal(t, recordedCommand{"groupadd", []string{"--gid", "500", "--system", "rds-exporter"}}, runner.commands[0])
	assert.Equal(t, recordedCommand{"useradd", []string{
		"--gid", "rds-exporter", "--home-dir", "/", "--shell", "/usr/sbin/nologin",
		"--system", "--no-create-home", "--no-user-group", "rds-exporter",
	}}, runner.commands[1])
	assert.Equal(t, recordedCommand{"usermod", []string{"--groups", "a,b", "rds-exporter"}}, runner.commands[2])
	assert.Equal(t, recordedCommand{"userdel", []string{"rds-exporter"}}, runner.commands[3])
}

func TestAdapter_CommandFailureIncludesStderr(t *testing.T) {
	runner := &fakeRunner{codes: map[string]int{"groupdel": 8}}
	adapter := NewAdapter(WithRunner(runner))

	err := adapter.DeleteGroup(context.Background(), "busy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "groupdel busy: exit 8: groupdel failed")
}

func buildTarball(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestAdapter_DownloadAndExtract(t *testing.T) {
	ctx := context.Background()
	payload := buildTarball(t, map[string]string{
		"prometheus-rds-exporter": "#!/bin/sh\n",
		"README.md":               "docs",
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download/0.10.0/prometheus-rds-exporter_Linux_x86_64.tar.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	adapter := NewAdapter()
	archive := filepath.Join(dir, "rds_exporter-0.10.0.tar.gz")

	err := adapter.Download(ctx, DownloadSpec{
		URL:         server.URL + "/download/0.10.0/prometheus-rds-exporter_Linux_x86_64.tar.gz",
		Destination: archive,
		Checksum:    digest.FromBytes(payload).String(),
	})
	require.NoError(t, err)

	dest := filepath.Join(dir, "opt", "rds_exporter-0.10.0.linux-x86_64")
	require.NoError(t, adapter.Extract(ctx, archive, dest))

	content, err := os.ReadFile(filepath.Join(dest, "prometheus-rds-exporter"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(content))

	st, err := os.Stat(filepath.Join(dest, "prometheus-rds-exporter"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), st.Mode().Perm())
}

func TestAdapter_DownloadChecksumMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "archive.tar.gz")
	err := NewAdapter().Download(context.Background(), DownloadSpec{
		URL:         server.URL,
		Destination: dest,
		Checksum:    digest.FromString("original").String(),
	})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "a rejected download must not be left in place")
}

func TestAdapter_DownloadHTTPError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "archive.tar.gz")
	err := NewAdapter().Download(context.Background(), DownloadSpec{URL: server.URL, Destination: dest})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestAdapter_ExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	require.NoError(t, os.WriteFile(archive, buildTarball(t, map[string]string{"../escape": "x"}), 0o644))

	err := NewAdapter().Extract(context.Background(), archive, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrUnsafePath)

	_, statErr := os.Stat(filepath.Join(dir, "escape"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/opt/x", "/opt/x"))
	assert.True(t, within("/opt/x", "/opt/x/bin/tool"))
	assert.False(t, within("/opt/x", "/opt/xy"))
	assert.False(t, within("/opt/x", "/opt"))
	assert.False(t, within("/opt/x", "/etc/passwd"))
}

func TestAdapter_AptPackages(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{outputs: map[string][]byte{
		"dpkg-query": []byte("install ok installed\t0.9.0"),
		"apt-cache":  []byte("prometheus-rds-exporter:\n  Installed: 0.9.0\n  Candidate: 0.10.0\n  Version table:\n"),
	}}
	adapter := NewAdapter(WithRunner(runner), WithPackageManager(PackageManagerApt))

	info, err := adapter.QueryPackage(ctx, "prometheus-rds-exporter")
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", info.Installed)
	assert.Equal(t, "0.10.0", info.Candidate)

	require.NoError(t, adapter.InstallPackage(ctx, "prometheus-rds-exporter", "0.10.0"))
	last := runner.commands[len(runner.commands)-1]
	assert.Equal(t, "apt-get", last.name)
	assert.Contains(t, last.args, "prometheus-rds-exporter=0.10.0")

	require.NoError(t, adapter.RemovePackage(ctx, "prometheus-rds-exporter"))
	last = runner.commands[len(runner.commands)-1]
	assert.Equal(t, []string{"remove", "-y", "-q", "prometheus-rds-exporter"}, last.args)
}

func TestAdapter_AptPackageNotInstalled(t *testing.T) {
	runner := &fakeRunner{
		codes:   map[string]int{"dpkg-query": 1},
		outputs: map[string][]byte{"apt-cache": []byte("  Candidate: (none)\n")},
	}
	adapter := NewAdapter(WithRunner(runner), WithPackageManager(PackageManagerApt))

	info, err := adapter.QueryPackage(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, info.Installed)
	assert.Empty(t, info.Candidate)
}

type fakeSystemd struct {
	units     map[string]dbus.UnitStatus
	fileState map[string]string
	jobs      []string
	reloads   int
	closed    bool
}

func (f *fakeSystemd) Close() { f.closed = true }

func (f *fakeSystemd) ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error) {
	var out []dbus.UnitStatus
	for _, name := range units {
		if u, ok := f.units[name]; ok {
			out = append(out, u)
		} else {
			out = append(out, dbus.UnitStatus{Name: name, LoadState: "not-found", ActiveState: "inactive"})
		}
	}
	return out, nil
}

func (f *fakeSystemd) GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error) {
	return map[string]interface{}{"UnitFileState": f.fileState[unit]}, nil
}

func (f *fakeSystemd) job(verb, name string, ch chan<- string) (int, error) {
	f.jobs = append(f.jobs, verb+" "+name)
	ch <- "done"
	return len(f.jobs), nil
}

func (f *fakeSystemd) StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	return f.job("start", name, ch)
}

func (f *fakeSystemd) StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	return f.job("stop", name, ch)
}

func (f *fakeSystemd) RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	return f.job("restart", name, ch)
}

func (f *fakeSystemd) EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error) {
	for _, file := range files {
		f.fileState[file] = "enabled"
	}
	return false, nil, nil
}

func (f *fakeSystemd) DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error) {
	for _, file := range files {
		f.fileState[file] = "disabled"
	}
	return nil, nil
}

func (f *fakeSystemd) ReloadContext(ctx context.Context) error {
	f.reloads++
	return nil
}

func TestAdapter_Systemd(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSystemd{
		units: map[string]dbus.UnitStatus{
			"rds_exporter.service": {Name: "rds_exporter.service", LoadState: "loaded", ActiveState: "active", SubState: "running"},
		},
		fileState: map[string]string{"rds_exporter.service": "disabled"},
	}
	adapter := NewAdapter()
	adapter.dial = func(ctx context.Context) (systemdConn, error) { return fake, nil }

	require.NoError(t, adapter.Connect(ctx))

	info, err := adapter.ServiceStatus(ctx, "rds_exporter")
	require.NoError(t, err)
	assert.True(t, info.Running())
	assert.False(t, info.Enabled)

	require.NoError(t, adapter.EnableService(ctx, "rds_exporter"))
	info, err = adapter.ServiceStatus(ctx, "rds_exporter")
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, 1, fake.reloads)

	require.NoError(t, adapter.RestartService(ctx, "rds_exporter"))
	require.NoError(t, adapter.StopService(ctx, "rds_exporter.service"))
	assert.Equal(t, []string{"restart rds_exporter.service", "stop rds_exporter.service"}, fake.jobs)

	_, err = adapter.ServiceStatus(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, adapter.Close())
	assert.True(t, fake.closed)
}

func TestAdapter_ServicesWithoutConnection(t *testing.T) {
	adapter := NewAdapter()
	err := adapter.StartService(context.Background(), "rds_exporter")
	assert.ErrorIs(t, err, errSystemdUnavailable)
}
