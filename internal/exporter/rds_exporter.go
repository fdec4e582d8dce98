// Package exporter builds the catalog of a Prometheus exporter daemon and
// the prometheus-rds-exporter module on top of it.
package exporter

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"converge/internal/labels"
	"converge/internal/resource"

	"github.com/goccy/go-yaml"
)

// CatalogName is the catalog the module applies
const CatalogName = "rds-exporter"

// RDSExporter is the prometheus-rds-exporter module
type RDSExporter struct {
	params Params
	daemon *Daemon
}

// NewRDSExporter validates params and resolves the daemon
func NewRDSExporter(params Params) (*RDSExporter, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	arch := realArch(params.Arch)
	installDir := fmt.Sprintf("/opt/%s-%s.%s-%s", params.ServiceName, params.Version, strings.ToLower(params.OS), arch)

	downloadURL := params.DownloadURL
	if downloadURL == "" {
		downloadURL = fmt.Sprintf("%s/download/%s/prometheus-rds-exporter_%s_%s.%s",
			strings.TrimSuffix(params.DownloadURLBase, "/"), params.Version, params.OS, arch, params.DownloadExtension)
	}

	daemon := &Daemon{
		Name:            params.ServiceName,
		Version:         params.Version,
		OS:              params.OS,
		Arch:            arch,
		InstallMethod:   params.InstallMethod,
		DownloadURL:     downloadURL,
		ArchiveChecksum: params.ArchiveChecksum,
		ArchivePath:     fmt.Sprintf("/tmp/%s-%s.%s", params.ServiceName, params.Version, params.DownloadExtension),
		ArchiveBinPath:  installDir + "/prometheus-rds-exporter",
		ExtractPath:     installDir,
		ProxyServer:     params.ProxyServer,
		BinDir:          params.BinDir,
		PackageName:     params.PackageName,
		PackageEnsure:   params.PackageEnsure,
		User:            params.User,
		Group:           params.Group,
		ManageUser:      params.ManageUser,
		ManageGroup:     params.ManageGroup,
		ExtraGroups:     params.ExtraGroups,
		Options:         options(params),
		EnvVars:         copyEnv(params.EnvVars),
		EnvFilePath:     params.EnvFilePath,
		ManageService:   params.ManageService,
		ServiceEnsure:   resource.ServiceEnsure(params.ServiceEnsure),
		ServiceEnable:   params.ServiceEnable,
		RestartOnChange: params.RestartOnChange,
	}

	if params.ExportScrapeJob {
		host := params.ScrapeHost
		if host == "" {
			host = hostname()
		}
		daemon.Scrape = &ScrapeJob{
			JobName: params.ScrapeJobName,
			Host:    host,
			Port:    params.ListenPort,
			Labels:  params.ScrapeJobLabels,
			Dir:     params.ScrapeDir,
		}
	}

	return &RDSExporter{params: params, daemon: daemon}, nil
}

// Daemon returns the resolved daemon
func (e *RDSExporter) Daemon() *Daemon {
	return e.daemon
}

// Params returns the parameters the module was built with
func (e *RDSExporter) Params() Params {
	return e.params
}

// Catalog builds the desired state of the module
func (e *RDSExporter) Catalog() (*resource.Catalog, error) {
	catalog := resource.NewCatalog(CatalogName)

	config, err := renderYAML(sortedMap(e.params.ConfigContent))
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", e.params.ConfigFile, err)
	}
	configFile := resource.NewFileResource(e.params.ConfigFile)
	configFile.SetContent(config)
	configFile.Spec.Owner = "root"
	configFile.Spec.Group = e.params.Group
	configFile.Spec.Mode = "0640"
	configFile.Notify = e.daemon.Notify()
	if err := catalog.AddResource(configFile); err != nil {
		return nil, err
	}

	if len(e.params.WebConfigContent) > 0 {
		webConfig, err := renderYAML(sortedMap(e.params.WebConfigContent))
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", e.params.WebConfigFile, err)
		}
		webConfigFile := resource.NewFileResource(e.params.WebConfigFile)
		webConfigFile.SetContent(webConfig)
		webConfigFile.Spec.Owner = "root"
		webConfigFile.Spec.Group = e.params.Group
		webConfigFile.Spec.Mode = "0640"
		webConfigFile.Notify = e.daemon.Notify()
		if err := catalog.AddResource(webConfigFile); err != nil {
			return nil, err
		}
	}

	if err := e.daemon.AddTo(catalog); err != nil {
		return nil, err
	}

	labels.Stamp(catalog, e.params.Version)
	return catalog, nil
}

// options are the daemon command line flags
func options(params Params) string {
	var opts string
	if len(params.WebConfigContent) > 0 {
		opts = fmt.Sprintf("--config.file=%s --web.config.file=%s", params.ConfigFile, params.WebConfigFile)
	} else {
		opts = fmt.Sprintf("--config %s", params.ConfigFile)
	}
	if extra := strings.TrimSpace(params.ExtraOptions); extra != "" {
		opts += " " + extra
	}
	return opts
}

// renderYAML renders a YAML document with an explicit start marker
func renderYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	if len(data) == 0 || string(data) == "{}\n" || string(data) == "[]\n" {
		return "---\n", nil
	}
	return "---\n" + string(data), nil
}

// sortedMap converts maps into key-sorted MapSlices, recursively, so rendering is stable
func sortedMap[V any](m map[string]V) yaml.MapSlice {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(yaml.MapSlice, 0, len(keys))
	for _, k := range keys {
		out = append(out, yaml.MapItem{Key: k, Value: sortedValue(m[k])})
	}
	return out
}

func sortedValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return sortedMap(value)
	case map[string]string:
		return sortedMap(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = sortedValue(item)
		}
		return out
	default:
		return v
	}
}

func copyEnv(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}
