package exporter

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"text/template"

	"converge/internal/resource"

	"github.com/Masterminds/sprig/v3"
	"github.com/goccy/go-yaml"
)

const (
	systemdUnitDir = "/etc/systemd/system"
	nologinShell   = "/usr/sbin/nologin"
)

// Daemon describes a generic exporter daemon: how its binary is installed,
// which account runs it and the systemd service around it
type Daemon struct {
	Name    string
	Version string
	OS      string
	Arch    string // release artifact architecture, e.g. x86_64

	InstallMethod   InstallMethod
	DownloadURL     string
	ArchiveChecksum string
	ArchivePath     string
	ArchiveBinPath  string
	ExtractPath     string
	ProxyServer     string
	BinDir          string
	PackageName     string
	PackageEnsure   string

	User        string
	Group       string
	ManageUser  bool
	ManageGroup bool
	ExtraGroups []string

	Options     string
	EnvVars     map[string]string
	EnvFilePath string

	ManageService   bool
	ServiceEnsure   resource.ServiceEnsure
	ServiceEnable   bool
	RestartOnChange bool

	Scrape *ScrapeJob
}

// ScrapeJob is a file_sd target exported for Prometheus
type ScrapeJob struct {
	JobName string
	Host    string
	Port    int
	Labels  map[string]string
	Dir     string
}

// BinPath is the command the service runs
func (d *Daemon) BinPath() string {
	return path.Join(d.BinDir, d.Name)
}

// EnvFile is the environment file read by the service
func (d *Daemon) EnvFile() string {
	return path.Join(d.EnvFilePath, d.Name)
}

// UnitFile is the systemd unit path
func (d *Daemon) UnitFile() string {
	return path.Join(systemdUnitDir, d.Name+".service")
}

// ServiceRef references the daemon service
func (d *Daemon) ServiceRef() resource.ResourceReference {
	return resource.ResourceReference{Type: resource.ResourceTypeService, Name: d.Name}
}

// Notify returns the references a changed configuration file of the daemon should notify
func (d *Daemon) Notify() []resource.ResourceReference {
	if !d.ManageService || !d.RestartOnChange {
		return nil
	}
	return []resource.ResourceReference{d.ServiceRef()}
}

// AddTo adds the daemon resources to a catalog
func (d *Daemon) AddTo(catalog *resource.Catalog) error {
	var resources []resource.Resource
	var serviceDeps []resource.ResourceReference

	switch d.InstallMethod {
	case InstallURL:
		archive := resource.NewArchiveResource(d.ArchivePath)
		archive.Spec.Source = d.DownloadURL
		archive.Spec.Checksum = d.ArchiveChecksum
		archive.Spec.Extract = true
		archive.Spec.ExtractPath = d.ExtractPath
		archive.Spec.Creates = d.ArchiveBinPath
		archive.Spec.Cleanup = true
		archive.Spec.ProxyServer = d.ProxyServer

		binary := resource.NewFileResource(d.ArchiveBinPath)
		binary.Spec.Owner = "root"
		binary.Spec.Group = "root"
		binary.Spec.Mode = "0555"
		binary.DependsOn = []resource.ResourceReference{resource.Ref(archive)}

		link := resource.NewFileResource(d.BinPath())
		link.Spec.Ensure = resource.FileEnsureLink
		link.Spec.Target = d.ArchiveBinPath
		link.Notify = d.Notify()

		resources = append(resources, archive, binary, link)
		serviceDeps = append(serviceDeps, resource.Ref(link))
	case InstallPackage:
		pkg := resource.NewPackageResource(d.PackageName)
		pkg.Spec.Ensure = d.PackageEnsure
		pkg.Notify = d.Notify()

		resources = append(resources, pkg)
		serviceDeps = append(serviceDeps, resource.Ref(pkg))
	}

	if d.ManageGroup {
		group := resource.NewGroupResource(d.Group)
		group.Spec.System = true
		resources = append(resources, group)
	}

	if d.ManageUser {
		user := resource.NewUserResource(d.User)
		user.Spec.System = true
		user.Spec.Group = d.Group
		user.Spec.Groups = d.ExtraGroups
		user.Spec.Shell = nologinShell
		resources = append(resources, user)
		serviceDeps = append(serviceDeps, resource.Ref(user))
	}

	if d.ManageService {
		envFile := resource.NewFileResource(d.EnvFile())
		envFile.SetContent(renderEnvFile(d.EnvVars))
		envFile.Spec.Owner = "root"
		envFile.Spec.Group = "root"
		envFile.Spec.Mode = "0644"
		envFile.Notify = d.Notify()

		unitContent, err := d.renderUnit()
		if err != nil {
			return err
		}
		unit := resource.NewFileResource(d.UnitFile())
		unit.SetContent(unitContent)
		unit.Spec.Owner = "root"
		unit.Spec.Group = "root"
		unit.Spec.Mode = "0644"
		unit.Notify = d.Notify()

		service := resource.NewServiceResource(d.Name)
		service.Spec.Ensure = d.ServiceEnsure
		service.SetEnable(d.ServiceEnable)
		service.Spec.UnitFile = unit.GetName()
		service.DependsOn = serviceDeps

		resources = append(resources, envFile, unit, service)
	}

	if d.Scrape != nil {
		content, err := d.Scrape.render()
		if err != nil {
			return err
		}
		target := resource.NewFileResource(d.Scrape.File())
		target.SetContent(content)
		target.Spec.Mode = "0644"
		resources = append(resources, target)
	}

	for _, res := range resources {
		if err := catalog.AddResource(res); err != nil {
			return err
		}
	}
	return nil
}

var unitTemplate = template.Must(template.New("unit").Funcs(sprig.TxtFuncMap()).Parse(`# THIS FILE IS MANAGED BY CONVERGE
[Unit]
Description=Prometheus {{ .Name }}
Wants=network-online.target
After=network-online.target

[Service]
User={{ .User }}
Group={{ .Group }}
EnvironmentFile=-{{ .EnvFile }}
ExecStart={{ list .BinPath .Options | compact | join " " }}
ExecReload=/bin/kill -HUP $MAINPID
KillMode=process
Restart=always

[Install]
WantedBy=multi-user.target
`))

func (d *Daemon) renderUnit() (string, error) {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, map[string]any{
		"Name":    d.Name,
		"User":    d.User,
		"Group":   d.Group,
		"EnvFile": d.EnvFile(),
		"BinPath": d.BinPath(),
		"Options": d.Options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render unit for %s: %w", d.Name, err)
	}
	return buf.String(), nil
}

// renderEnvFile writes KEY="value" lines sorted by key
func renderEnvFile(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# THIS FILE IS MANAGED BY CONVERGE\n")
	for _, k := range keys {
		value := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(vars[k])
		fmt.Fprintf(&b, "%s=\"%s\"\n", k, value)
	}
	return b.String()
}

// File is the target file of the job
func (s *ScrapeJob) File() string {
	return path.Join(s.Dir, fmt.Sprintf("%s_%s:%d.yaml", s.JobName, s.Host, s.Port))
}

func (s *ScrapeJob) render() (string, error) {
	group := yaml.MapSlice{
		{Key: "targets", Value: []string{fmt.Sprintf("%s:%d", s.Host, s.Port)}},
	}
	if len(s.Labels) > 0 {
		group = append(group, yaml.MapItem{Key: "labels", Value: sortedMap(s.Labels)})
	}
	return renderYAML([]yaml.MapSlice{group})
}
