package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"converge/internal/exporter"
	"converge/internal/host"
	"converge/internal/resource"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, provider *host.MockClientProvider, args ...string) (string, error) {
	t.Helper()

	previous := clientProvider
	clientProvider = provider
	t.Cleanup(func() {
		clientProvider = previous
		stateDir, logLevel, metricsFile, verbose = "", "", "", false
		installDryRun, upgradeDryRun, removeDryRun = false, false, false
		rdsParamsFile, rdsSet, rdsDryRun = "", nil, false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	ref := resource.ResourceReference{Type: resource.ResourceTypeFile, Name: "/etc/x"}

	assert.Equal(t, ExitGeneric, exitCode(errors.New("boom")))
	assert.Equal(t, ExitValidation, exitCode(fmt.Errorf("load: %w", exporter.ErrInvalidParams)))
	assert.Equal(t, ExitValidation, exitCode(resource.NewValidationError(ref, "bad", nil)))
	assert.Equal(t, ExitDependency, exitCode(resource.NewDependencyError(ref, "missing", nil)))

	var merr *multierror.Error
	merr = multierror.Append(merr, resource.NewHostError(ref, "failed", errors.New("io"), true))
	assert.Equal(t, ExitHost, exitCode(merr.ErrorOrNil()))
}

func TestRDSExporterCommand(t *testing.T) {
	provider := host.NewMockClientProvider()
	provider.GetMockClient().AddRemoteArchive(
		"https://github.com/qonto/prometheus-rds-exporter/releases/download/0.10.0/prometheus-rds-exporter_Linux_x86_64.tar.gz",
		[]byte("tarball"), map[string][]byte{"prometheus-rds-exporter": []byte("#!binary")})
	dir := t.TempDir()
	metrics := filepath.Join(dir, "metrics", "converge.prom")

	out, err := runCommand(t, provider, "rds-exporter", "--state-dir", dir, "--metrics-file", metrics,
		"--set", "config_content.debug=true", "--set", "env_vars.blub=foobar")
	require.NoError(t, err)
	assert.Contains(t, out, "9 created")

	client := provider.GetMockClient()
	svc, ok := client.GetService("rds_exporter")
	require.True(t, ok)
	assert.True(t, svc.Running())
	assert.True(t, svc.Enabled)

	_, err = os.Stat(filepath.Join(dir, "rds-exporter.yaml"))
	require.NoError(t, err, "inventory record is written to the state dir")

	require.NoError(t, writeMetrics())
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "converge_reconcile_runs_total")

	out, err = runCommand(t, provider, "status", "rds-exporter", "--state-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
}

func TestRDSExporterCommand_InvalidSet(t *testing.T) {
	_, err := runCommand(t, host.NewMockClientProvider(), "rds-exporter", "--set", "listen_port=0", "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitValidation, exitCode(err))
}

func TestLintCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: demo\nversion: 0.1.0\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "templates"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates", "group.yaml"),
		[]byte("apiVersion: converge/v1\nkind: Group\nmetadata:\n  name: demo\n"), 0o644))

	out, err := runCommand(t, host.NewMockClientProvider(), "lint", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "demo: 1 resources, no issues found")
}
