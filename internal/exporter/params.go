package exporter

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"unicode"

	"converge/internal/resource"

	"github.com/goccy/go-yaml"
)

// ErrInvalidParams is returned when exporter parameters are inconsistent
var ErrInvalidParams = errors.New("invalid exporter parameters")

// InstallMethod selects how the exporter binary reaches the host
type InstallMethod string

const (
	InstallURL     InstallMethod = "url"
	InstallPackage InstallMethod = "package"
	InstallNone    InstallMethod = "none"
)

// Params are the parameters of the rds_exporter module
type Params struct {
	Version           string            `yaml:"version"`
	Arch              string            `yaml:"arch"`
	OS                string            `yaml:"os"`
	BinDir            string            `yaml:"bin_dir"`
	InstallMethod     InstallMethod     `yaml:"install_method"`
	ConfigContent     map[string]any    `yaml:"config_content"`
	WebConfigContent  map[string]any    `yaml:"web_config_content"`
	EnvVars           map[string]string `yaml:"env_vars"`
	EnvFilePath       string            `yaml:"env_file_path"`
	DownloadURLBase   string            `yaml:"download_url_base"`
	DownloadExtension string            `yaml:"download_extension"`
	DownloadURL       string            `yaml:"download_url"`
	ArchiveChecksum   string            `yaml:"archive_checksum"`
	ProxyServer       string            `yaml:"proxy_server"`
	PackageName       string            `yaml:"package_name"`
	PackageEnsure     string            `yaml:"package_ensure"`
	User              string            `yaml:"user"`
	Group             string            `yaml:"group"`
	ManageUser        bool              `yaml:"manage_user"`
	ManageGroup       bool              `yaml:"manage_group"`
	ExtraGroups       []string          `yaml:"extra_groups"`
	ServiceName       string            `yaml:"service_name"`
	ServiceEnsure     string            `yaml:"service_ensure"`
	ServiceEnable     bool              `yaml:"service_enable"`
	ManageService     bool              `yaml:"manage_service"`
	RestartOnChange   bool              `yaml:"restart_on_change"`
	ExtraOptions      string            `yaml:"extra_options"`
	ConfigFile        string            `yaml:"config_file"`
	WebConfigFile     string            `yaml:"web_config_file"`
	ListenPort        int               `yaml:"listen_port"`
	ExportScrapeJob   bool              `yaml:"export_scrape_job"`
	ScrapeHost        string            `yaml:"scrape_host"`
	ScrapeJobName     string            `yaml:"scrape_job_name"`
	ScrapeJobLabels   map[string]string `yaml:"scrape_job_labels"`
	ScrapeDir         string            `yaml:"scrape_dir"`
}

// DefaultParams returns the module defaults
func DefaultParams() Params {
	return Params{
		Version:           "0.10.0",
		Arch:              "amd64",
		OS:                "Linux",
		BinDir:            "/usr/local/bin",
		InstallMethod:     InstallURL,
		ConfigContent:     map[string]any{},
		EnvFilePath:       "/etc/default",
		DownloadURLBase:   "https://github.com/qonto/prometheus-rds-exporter/releases",
		DownloadExtension: "tar.gz",
		PackageName:       "prometheus-rds-exporter",
		PackageEnsure:     resource.PackageLatest,
		User:              "rds-exporter",
		Group:             "rds-exporter",
		ManageUser:        true,
		ManageGroup:       true,
		ServiceName:       "rds_exporter",
		ServiceEnsure:     string(resource.ServiceRunning),
		ServiceEnable:     true,
		ManageService:     true,
		RestartOnChange:   true,
		ConfigFile:        "/etc/rds-exporter.yaml",
		WebConfigFile:     "/etc/rds_exporter_web-config.yml",
		ListenPort:        9043,
		ScrapeJobName:     "rds",
		ScrapeDir:         "/etc/prometheus/file_sd_config.d",
	}
}

// LoadParams reads a YAML params file over the defaults
func LoadParams(file string) (Params, error) {
	params := DefaultParams()
	if file == "" {
		return params, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return params, fmt.Errorf("failed to read params file %s: %w", file, err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("%w: %s: %v", ErrInvalidParams, file, err)
	}
	return params, nil
}

// Set applies a key=value override. Dotted keys address nested maps, e.g.
// config_content.debug=true. Values are parsed as YAML scalars.
func (p *Params) Set(assignment string) error {
	key, raw, ok := strings.Cut(assignment, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("%w: invalid --set value: %s", ErrInvalidParams, assignment)
	}

	var value any
	if err := yaml.Unmarshal([]byte(strings.TrimSpace(raw)), &value); err != nil {
		return fmt.Errorf("%w: invalid value for %s: %v", ErrInvalidParams, key, err)
	}
	if value == nil {
		value = ""
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}

	parts := strings.Split(key, ".")
	current, known := doc[parts[0]]
	if !known {
		return fmt.Errorf("%w: unknown parameter %s", ErrInvalidParams, parts[0])
	}
	// String parameters keep the literal text, so version=1.10 stays "1.10"
	if literalKey(parts, current) {
		if s, ok := value.(string); ok {
			value = s
		} else {
			value = strings.TrimSpace(raw)
		}
	}
	target := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := target[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			target[part] = next
		}
		target = next
	}
	target[parts[len(parts)-1]] = value

	data, err = yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	updated := Params{}
	if err := yaml.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, key, err)
	}
	*p = updated
	return nil
}

// literalKey reports whether a key addresses a string parameter or an entry of a string map
func literalKey(parts []string, current any) bool {
	switch parts[0] {
	case "env_vars", "scrape_job_labels":
		return len(parts) == 2
	}
	_, isString := current.(string)
	return isString && len(parts) == 1
}

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the parameters
func (p Params) Validate() error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch p.InstallMethod {
	case InstallURL:
		if p.Version == "" {
			fail("version is required for install_method url")
		}
		if p.DownloadURL == "" && p.DownloadURLBase == "" {
			fail("download_url_base or download_url is required for install_method url")
		}
	case InstallPackage:
		if p.PackageName == "" {
			fail("package_name is required for install_method package")
		}
	case InstallNone:
	default:
		fail("install_method must be url, package or none, got %q", p.InstallMethod)
	}

	for name, value := range map[string]string{
		"bin_dir":         p.BinDir,
		"env_file_path":   p.EnvFilePath,
		"config_file":     p.ConfigFile,
		"web_config_file": p.WebConfigFile,
	} {
		if !path.IsAbs(value) {
			fail("%s must be an absolute path, got %q", name, value)
		}
	}
	if p.ExportScrapeJob && !path.IsAbs(p.ScrapeDir) {
		fail("scrape_dir must be an absolute path, got %q", p.ScrapeDir)
	}

	if p.ServiceName == "" || strings.ContainsAny(p.ServiceName, "/ ") {
		fail("service_name %q is not a valid unit name", p.ServiceName)
	}
	switch resource.ServiceEnsure(p.ServiceEnsure) {
	case resource.ServiceRunning, resource.ServiceStopped:
	default:
		fail("service_ensure must be running or stopped, got %q", p.ServiceEnsure)
	}
	if p.User == "" || p.Group == "" {
		fail("user and group are required")
	}
	if p.ListenPort < 1 || p.ListenPort > 65535 {
		fail("listen_port must be between 1 and 65535, got %d", p.ListenPort)
	}
	for key, value := range p.EnvVars {
		if !envKeyPattern.MatchString(key) {
			fail("env_vars key %q is not a valid variable name", key)
		}
		if strings.IndexFunc(value, isControl) >= 0 {
			fail("env_vars value of %q contains control characters", key)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
	}
	return nil
}

// isControl matches characters an EnvironmentFile line cannot carry; tabs are allowed
func isControl(r rune) bool {
	return r != '\t' && unicode.IsControl(r)
}

// realArch maps Go style architectures to the names used by release artifacts
func realArch(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i386"
	default:
		return arch
	}
}
