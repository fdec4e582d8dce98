package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	params := DefaultParams()

	assert.Equal(t, "0.10.0", params.Version)
	assert.Equal(t, InstallURL, params.InstallMethod)
	assert.Equal(t, 9043, params.ListenPort)
	assert.Equal(t, "rds_exporter", params.ServiceName)
	assert.Equal(t, "/etc/rds-exporter.yaml", params.ConfigFile)
	assert.NoError(t, params.Validate())
}

func TestLoadParams(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
version: 0.11.0
config_content:
  debug: true
  collect:
    instance_types: false
env_vars:
  AWS_REGION: eu-west-3
manage_user: false
`), 0o600))

	params, err := LoadParams(file)
	require.NoError(t, err)

	assert.Equal(t, "0.11.0", params.Version)
	assert.Equal(t, true, params.ConfigContent["debug"])
	assert.Equal(t, map[string]string{"AWS_REGION": "eu-west-3"}, params.EnvVars)
	assert.False(t, params.ManageUser)
	assert.True(t, params.ManageGroup, "defaults survive for omitted keys")
	assert.Equal(t, "/usr/local/bin", params.BinDir)

	params, err = LoadParams("")
	require.NoError(t, err)
	assert.Equal(t, DefaultParams().Version, params.Version)

	_, err = LoadParams(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParams_Set(t *testing.T) {
	params := DefaultParams()

	require.NoError(t, params.Set("version=1.10"))
	assert.Equal(t, "1.10", params.Version)

	require.NoError(t, params.Set("listen_port=9100"))
	assert.Equal(t, 9100, params.ListenPort)

	require.NoError(t, params.Set("service_enable=false"))
	assert.False(t, params.ServiceEnable)

	require.NoError(t, params.Set("config_content.debug=true"))
	assert.Equal(t, true, params.ConfigContent["debug"])

	require.NoError(t, params.Set("env_vars.blub=foobar"))
	assert.Equal(t, map[string]string{"blub": "foobar"}, params.EnvVars)

	require.NoError(t, params.Set("env_vars.VERSION=1.10"))
	assert.Equal(t, "1.10", params.EnvVars["VERSION"])

	require.NoError(t, params.Set("env_vars.ENABLED=true"))
	assert.Equal(t, "true", params.EnvVars["ENABLED"])

	require.NoError(t, params.Set("scrape_job_labels.tier=01"))
	assert.Equal(t, map[string]string{"tier": "01"}, params.ScrapeJobLabels)

	assert.ErrorIs(t, params.Set("nonsense=1"), ErrInvalidParams)
	assert.ErrorIs(t, params.Set("=1"), ErrInvalidParams)
	assert.ErrorIs(t, params.Set("version"), ErrInvalidParams)
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Params)
		contains string
	}{
		{"install method", func(p *Params) { p.InstallMethod = "brew" }, "install_method must be"},
		{"missing version", func(p *Params) { p.Version = "" }, "version is required"},
		{"relative bin dir", func(p *Params) { p.BinDir = "bin" }, "bin_dir must be an absolute path"},
		{"service ensure", func(p *Params) { p.ServiceEnsure = "paused" }, "service_ensure must be"},
		{"port", func(p *Params) { p.ListenPort = 0 }, "listen_port must be"},
		{"env key", func(p *Params) { p.EnvVars = map[string]string{"BAD-KEY": "x"} }, "not a valid variable name"},
		{"env value newline", func(p *Params) { p.EnvVars = map[string]string{"OK": "x\nEvil=1"} }, "contains control characters"},
		{"env value carriage return", func(p *Params) { p.EnvVars = map[string]string{"OK": "x\r"} }, "contains control characters"},
		{"package name", func(p *Params) { p.InstallMethod = InstallPackage; p.PackageName = "" }, "package_name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.mutate(&params)
			err := params.Validate()
			require.ErrorIs(t, err, ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParams_ValidateAllowsTabsInEnvValues(t *testing.T) {
	params := DefaultParams()
	params.EnvVars = map[string]string{"OPTS": "a\tb"}
	assert.NoError(t, params.Validate())
}

func TestRealArch(t *testing.T) {
	assert.Equal(t, "x86_64", realArch("amd64"))
	assert.Equal(t, "i386", realArch("386"))
	assert.Equal(t, "arm64", realArch("arm64"))
}
