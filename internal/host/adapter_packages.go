package host

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// PackageManager identifies the native package tooling of a host
type PackageManager string

const (
	PackageManagerApt PackageManager = "apt"
	PackageManagerDnf PackageManager = "dnf"
	PackageManagerYum PackageManager = "yum"
)

// WithPackageManager forces a package manager instead of detecting one
func WithPackageManager(pm PackageManager) AdapterOption {
	return func(a *Adapter) {
		a.packageManager = pm
	}
}

func (a *Adapter) detectPackageManager() (PackageManager, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.packageManager != "" {
		return a.packageManager, nil
	}
	for _, candidate := range []struct {
		binary string
		pm     PackageManager
	}{
		{"apt-get", PackageManagerApt},
		{"dnf", PackageManagerDnf},
		{"yum", PackageManagerYum},
	} {
		if _, err := exec.LookPath(candidate.binary); err == nil {
			a.packageManager = candidate.pm
			return candidate.pm, nil
		}
	}
	return "", ErrNoPackageManager
}

// QueryPackage returns the installed and candidate version of a package
func (a *Adapter) QueryPackage(ctx context.Context, name string) (*PackageInfo, error) {
	pm, err := a.detectPackageManager()
	if err != nil {
		return nil, err
	}

	info := &PackageInfo{Name: name}

	switch pm {
	case PackageManagerApt:
		// dpkg-query exits 1 for unknown packages
		stdout, _, code, err := a.runner.Run(ctx, "dpkg-query", "-W", "-f=${Status}\t${Version}", name)
		if code == 127 {
			return nil, err
		}
		if err == nil && code == 0 {
			status, version, _ := strings.Cut(strings.TrimSpace(string(stdout)), "\t")
			if strings.HasSuffix(status, " installed") {
				info.Installed = version
			}
		}
		policy, err := runChecked(ctx, a.runner, "apt-cache", "policy", name)
		if err != nil {
			return nil, err
		}
		info.Candidate = parseAptCandidate(policy)
	default:
		stdout, _, code, err := a.runner.Run(ctx, "rpm", "-q", "--qf", "%{VERSION}-%{RELEASE}", name)
		if code == 127 {
			return nil, err
		}
		if err == nil && code == 0 {
			info.Installed = strings.TrimSpace(string(stdout))
		}
		if pm == PackageManagerDnf {
			out, err := runChecked(ctx, a.runner, "dnf", "-q", "repoquery", "--latest-limit", "1", "--qf", "%{version}-%{release}", name)
			if err != nil {
				return nil, err
			}
			info.Candidate = firstLine(out)
		}
	}

	return info, nil
}

// InstallPackage installs name at version, or the newest available version when version is empty
func (a *Adapter) InstallPackage(ctx context.Context, name, version string) error {
	pm, err := a.detectPackageManager()
	if err != nil {
		return err
	}

	switch pm {
	case PackageManagerApt:
		pkg := name
		if version != "" {
			pkg = name + "=" + version
		}
		_, err = runChecked(ctx, a.runner, "apt-get", "install", "-y", "-q", "--allow-downgrades", pkg)
	default:
		pkg := name
		if version != "" {
			pkg = name + "-" + version
		}
		_, err = runChecked(ctx, a.runner, string(pm), "install", "-y", "-q", pkg)
	}
	return err
}

// RemovePackage uninstalls a package
func (a *Adapter) RemovePackage(ctx context.Context, name string) error {
	pm, err := a.detectPackageManager()
	if err != nil {
		return err
	}

	switch pm {
	case PackageManagerApt:
		_, err = runChecked(ctx, a.runner, "apt-get", "remove", "-y", "-q", name)
	default:
		_, err = runChecked(ctx, a.runner, string(pm), "remove", "-y", "-q", name)
	}
	return err
}

func parseAptCandidate(policy []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(policy))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if value, ok := strings.CutPrefix(line, "Candidate:"); ok {
			candidate := strings.TrimSpace(value)
			if candidate == "(none)" {
				return ""
			}
			return candidate
		}
	}
	return ""
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
