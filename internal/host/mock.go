package host

import (
	"context"
	_ "crypto/sha256"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
)

// mutatingOperations are the Client methods that change host state
var mutatingOperations = []string{
	"WriteFile", "Symlink", "Mkdir", "Chmod", "Chown", "RemoveFile",
	"CreateUser", "ModifyUser", "DeleteUser", "CreateGroup", "ModifyGroup", "DeleteGroup",
	"StartService", "StopService", "RestartService", "EnableService", "DisableService", "DaemonReload",
	"Download", "Extract",
	"InstallPackage", "RemovePackage",
}

// MockClient implements Client for testing
type MockClient struct {
	mu sync.RWMutex

	// Storage for mock data
	files     map[string]*MockFile
	users     map[string]*UserInfo
	groups    map[string]*GroupInfo
	services  map[string]*ServiceInfo
	packages  map[string]*PackageInfo
	remotes   map[string]*mockRemote
	downloads map[string]string // destination -> url

	nextSystemID int
	nextID       int

	// Behavior controls
	shouldFailConnect    bool
	shouldFailOperations map[string]bool

	// Call tracking
	calls map[string]int
}

// MockFile represents a filesystem object in the mock client
type MockFile struct {
	Type    FileType
	Content []byte
	Mode    os.FileMode
	Owner   string
	Group   string
	Target  string
}

type mockRemote struct {
	payload []byte
	entries map[string][]byte
}

// NewMockClient creates a new mock host client seeded with root
func NewMockClient() *MockClient {
	m := &MockClient{}
	m.init()
	return m
}

func (m *MockClient) init() {
	m.files = map[string]*MockFile{
		"/": {Type: FileTypeDirectory, Mode: 0o755, Owner: "root", Group: "root"},
	}
	m.users = map[string]*UserInfo{
		"root": {Name: "root", UID: 0, GID: 0, Group: "root", Home: "/root", Shell: "/bin/bash"},
	}
	m.groups = map[string]*GroupInfo{
		"root": {Name: "root", GID: 0},
	}
	m.services = make(map[string]*ServiceInfo)
	m.packages = make(map[string]*PackageInfo)
	m.remotes = make(map[string]*mockRemote)
	m.downloads = make(map[string]string)
	m.nextSystemID = 999
	m.nextID = 1000
	m.shouldFailOperations = make(map[string]bool)
	m.calls = make(map[string]int)
}

// track records a call and reports the configured failure, if any
func (m *MockClient) track(operation string) error {
	m.calls[operation]++
	if m.shouldFailOperations[operation] {
		return fmt.Errorf("mock %s failed", operation)
	}
	return nil
}

// Connect simulates connecting to the host
func (m *MockClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["Connect"]++

	if m.shouldFailConnect {
		return fmt.Errorf("mock connection failed")
	}
	return nil
}

// Close simulates closing the connection
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls["Close"]++
	return nil
}

// File operations

// StatFile returns a mock filesystem object
func (m *MockClient) StatFile(ctx context.Context, p string) (*FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("StatFile"); err != nil {
		return nil, err
	}

	f, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return &FileInfo{
		Path:   p,
		Type:   f.Type,
		Mode:   f.Mode,
		Size:   int64(len(f.Content)),
		Owner:  f.Owner,
		Group:  f.Group,
		Target: f.Target,
	}, nil
}

// ReadFile returns the content of a mock file
func (m *MockClient) ReadFile(ctx context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("ReadFile"); err != nil {
		return nil, err
	}

	f, ok := m.files[path.Clean(p)]
	if !ok || f.Type != FileTypeFile {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return append([]byte(nil), f.Content...), nil
}

// WriteFile stores a mock regular file
func (m *MockClient) WriteFile(ctx context.Context, p string, content []byte, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("WriteFile"); err != nil {
		return err
	}

	m.ensureParents(p)
	owner, group := "root", "root"
	if existing, ok := m.files[path.Clean(p)]; ok && existing.Type == FileTypeFile {
		owner, group = existing.Owner, existing.Group
	}
	m.files[path.Clean(p)] = &MockFile{
		Type:    FileTypeFile,
		Content: append([]byte(nil), content...),
		Mode:    mode,
		Owner:   owner,
		Group:   group,
	}
	return nil
}

// Symlink stores a mock symbolic link
func (m *MockClient) Symlink(ctx context.Context, target, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Symlink"); err != nil {
		return err
	}

	m.ensureParents(p)
	m.files[path.Clean(p)] = &MockFile{
		Type:   FileTypeLink,
		Mode:   0o777,
		Owner:  "root",
		Group:  "root",
		Target: target,
	}
	return nil
}

// Mkdir stores a mock directory and its parents
func (m *MockClient) Mkdir(ctx context.Context, p string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Mkdir"); err != nil {
		return err
	}

	m.ensureParents(p)
	if existing, ok := m.files[path.Clean(p)]; ok && existing.Type == FileTypeDirectory {
		existing.Mode = mode
		return nil
	}
	m.files[path.Clean(p)] = &MockFile{Type: FileTypeDirectory, Mode: mode, Owner: "root", Group: "root"}
	return nil
}

// Chmod sets the mode of a mock file
func (m *MockClient) Chmod(ctx context.Context, p string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Chmod"); err != nil {
		return err
	}

	f, ok := m.files[path.Clean(p)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	f.Mode = mode
	return nil
}

// Chown sets owner and group of a mock file. Both must exist.
func (m *MockClient) Chown(ctx context.Context, p, owner, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Chown"); err != nil {
		return err
	}

	f, ok := m.files[path.Clean(p)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if owner != "" {
		if _, ok := m.users[owner]; !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, owner)
		}
		f.Owner = owner
	}
	if group != "" {
		if _, ok := m.groups[group]; !ok {
			return fmt.Errorf("%w: group %s", ErrNotFound, group)
		}
		f.Group = group
	}
	return nil
}

// RemoveFile removes a mock file
func (m *MockClient) RemoveFile(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("RemoveFile"); err != nil {
		return err
	}

	clean := path.Clean(p)
	if f, ok := m.files[clean]; ok && f.Type == FileTypeDirectory {
		for other := range m.files {
			if strings.HasPrefix(other, clean+"/") {
				return fmt.Errorf("directory not empty: %s", p)
			}
		}
	}
	delete(m.files, clean)
	return nil
}

func (m *MockClient) ensureParents(p string) {
	for dir := path.Dir(path.Clean(p)); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return
		}
		m.files[dir] = &MockFile{Type: FileTypeDirectory, Mode: 0o755, Owner: "root", Group: "root"}
	}
}

// Account operations

// LookupUser returns a mock user
func (m *MockClient) LookupUser(ctx context.Context, name string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("LookupUser"); err != nil {
		return nil, err
	}

	u, ok := m.users[name]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, name)
	}
	info := *u
	info.Groups = append([]string(nil), u.Groups...)
	return &info, nil
}

// CreateUser creates a mock user
func (m *MockClient) CreateUser(ctx context.Context, spec UserSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("CreateUser"); err != nil {
		return err
	}
	if _, ok := m.users[spec.Name]; ok {
		return fmt.Errorf("user %s already exists", spec.Name)
	}

	u := &UserInfo{Name: spec.Name, Home: spec.Home, Shell: spec.Shell}
	if spec.UID != nil {
		u.UID = *spec.UID
	} else {
		u.UID = m.allocateID(spec.System)
	}
	if u.Home == "" {
		u.Home = "/home/" + spec.Name
	}
	if u.Shell == "" {
		u.Shell = "/bin/sh"
	}
	if err := m.applyUserGroups(u, spec); err != nil {
		return err
	}
	m.users[spec.Name] = u
	return nil
}

// ModifyUser updates a mock user
func (m *MockClient) ModifyUser(ctx context.Context, spec UserSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("ModifyUser"); err != nil {
		return err
	}

	u, ok := m.users[spec.Name]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, spec.Name)
	}
	if spec.UID != nil {
		u.UID = *spec.UID
	}
	if spec.Home != "" {
		u.Home = spec.Home
	}
	if spec.Shell != "" {
		u.Shell = spec.Shell
	}
	return m.applyUserGroups(u, spec)
}

func (m *MockClient) applyUserGroups(u *UserInfo, spec UserSpec) error {
	if spec.Group != "" {
		g, ok := m.groups[spec.Group]
		if !ok {
			return fmt.Errorf("%w: group %s", ErrNotFound, spec.Group)
		}
		u.Group = g.Name
		u.GID = g.GID
	} else if u.Group == "" {
		// user private group
		g := &GroupInfo{Name: u.Name, GID: u.UID}
		m.groups[g.Name] = g
		u.Group = g.Name
		u.GID = g.GID
	}

	if spec.Groups == nil {
		return nil
	}
	for _, name := range spec.Groups {
		if _, ok := m.groups[name]; !ok {
			return fmt.Errorf("%w: group %s", ErrNotFound, name)
		}
	}
	for _, g := range m.groups {
		g.Members = removeString(g.Members, u.Name)
	}
	for _, name := range spec.Groups {
		m.groups[name].Members = append(m.groups[name].Members, u.Name)
	}
	u.Groups = append([]string(nil), spec.Groups...)
	sort.Strings(u.Groups)
	return nil
}

// DeleteUser removes a mock user
func (m *MockClient) DeleteUser(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("DeleteUser"); err != nil {
		return err
	}
	if _, ok := m.users[name]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, name)
	}
	delete(m.users, name)
	for _, g := range m.groups {
		g.Members = removeString(g.Members, name)
	}
	return nil
}

// LookupGroup returns a mock group
func (m *MockClient) LookupGroup(ctx context.Context, name string) (*GroupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("LookupGroup"); err != nil {
		return nil, err
	}

	g, ok := m.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, name)
	}
	info := *g
	info.Members = append([]string(nil), g.Members...)
	return &info, nil
}

// CreateGroup creates a mock group
func (m *MockClient) CreateGroup(ctx context.Context, spec GroupSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("CreateGroup"); err != nil {
		return err
	}
	if _, ok := m.groups[spec.Name]; ok {
		return fmt.Errorf("group %s already exists", spec.Name)
	}

	g := &GroupInfo{Name: spec.Name}
	if spec.GID != nil {
		g.GID = *spec.GID
	} else {
		g.GID = m.allocateID(spec.System)
	}
	m.groups[spec.Name] = g
	return nil
}

// ModifyGroup updates a mock group
func (m *MockClient) ModifyGroup(ctx context.Context, spec GroupSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("ModifyGroup"); err != nil {
		return err
	}

	g, ok := m.groups[spec.Name]
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, spec.Name)
	}
	if spec.GID != nil {
		g.GID = *spec.GID
	}
	return nil
}

// DeleteGroup removes a mock group
func (m *MockClient) DeleteGroup(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("DeleteGroup"); err != nil {
		return err
	}
	if _, ok := m.groups[name]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, name)
	}
	for _, u := range m.users {
		if u.Group == name {
			return fmt.Errorf("cannot remove the primary group of user %s", u.Name)
		}
	}
	delete(m.groups, name)
	return nil
}

func (m *MockClient) allocateID(system bool) int {
	if system {
		id := m.nextSystemID
		m.nextSystemID--
		return id
	}
	id := m.nextID
	m.nextID++
	return id
}

// Service operations

// ServiceStatus returns the state of a mock unit. A unit exists once its unit file does.
func (m *MockClient) ServiceStatus(ctx context.Context, name string) (*ServiceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("ServiceStatus"); err != nil {
		return nil, err
	}

	svc, err := m.service(name)
	if err != nil {
		return nil, err
	}
	info := *svc
	return &info, nil
}

// StartService starts a mock unit
func (m *MockClient) StartService(ctx context.Context, name string) error {
	return m.setServiceState("StartService", name, func(s *ServiceInfo) {
		s.ActiveState, s.SubState = "active", "running"
	})
}

// StopService stops a mock unit
func (m *MockClient) StopService(ctx context.Context, name string) error {
	return m.setServiceState("StopService", name, func(s *ServiceInfo) {
		s.ActiveState, s.SubState = "inactive", "dead"
	})
}

// RestartService restarts a mock unit
func (m *MockClient) RestartService(ctx context.Context, name string) error {
	return m.setServiceState("RestartService", name, func(s *ServiceInfo) {
		s.ActiveState, s.SubState = "active", "running"
	})
}

// EnableService enables a mock unit
func (m *MockClient) EnableService(ctx context.Context, name string) error {
	return m.setServiceState("EnableService", name, func(s *ServiceInfo) {
		s.Enabled = true
	})
}

// DisableService disables a mock unit
func (m *MockClient) DisableService(ctx context.Context, name string) error {
	return m.setServiceState("DisableService", name, func(s *ServiceInfo) {
		s.Enabled = false
	})
}

// DaemonReload simulates a systemd reload
func (m *MockClient) DaemonReload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.track("DaemonReload")
}

func (m *MockClient) setServiceState(operation, name string, mutate func(*ServiceInfo)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track(operation); err != nil {
		return err
	}

	svc, err := m.service(name)
	if err != nil {
		return err
	}
	mutate(svc)
	return nil
}

func (m *MockClient) service(name string) (*ServiceInfo, error) {
	name = strings.TrimSuffix(name, ".service")
	if svc, ok := m.services[name]; ok {
		return svc, nil
	}
	for _, dir := range []string{"/etc/systemd/system", "/lib/systemd/system", "/usr/lib/systemd/system"} {
		if _, ok := m.files[dir+"/"+name+".service"]; ok {
			svc := &ServiceInfo{Name: name, LoadState: "loaded", ActiveState: "inactive", SubState: "dead"}
			m.services[name] = svc
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: unit %s.service", ErrNotFound, name)
}

// Archive operations

// Download copies a registered remote payload to the destination
func (m *MockClient) Download(ctx context.Context, spec DownloadSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Download"); err != nil {
		return err
	}

	remote, ok := m.remotes[spec.URL]
	if !ok {
		return fmt.Errorf("failed to download %s: 404 Not Found", spec.URL)
	}
	if spec.Checksum != "" {
		expected, err := digest.Parse(spec.Checksum)
		if err != nil {
			return fmt.Errorf("invalid checksum %q: %w", spec.Checksum, err)
		}
		if expected.Algorithm().FromBytes(remote.payload) != expected {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, spec.URL)
		}
	}

	m.ensureParents(spec.Destination)
	m.files[path.Clean(spec.Destination)] = &MockFile{
		Type:    FileTypeFile,
		Content: append([]byte(nil), remote.payload...),
		Mode:    0o644,
		Owner:   "root",
		Group:   "root",
	}
	m.downloads[path.Clean(spec.Destination)] = spec.URL
	return nil
}

// Extract writes the entries registered for a downloaded archive
func (m *MockClient) Extract(ctx context.Context, archivePath, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("Extract"); err != nil {
		return err
	}

	if _, ok := m.files[path.Clean(archivePath)]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, archivePath)
	}
	remote := m.remotes[m.downloads[path.Clean(archivePath)]]
	if remote == nil {
		return fmt.Errorf("failed to open %s: not a known archive", archivePath)
	}

	m.ensureParents(path.Join(destination, "x"))
	if _, ok := m.files[path.Clean(destination)]; !ok {
		m.files[path.Clean(destination)] = &MockFile{Type: FileTypeDirectory, Mode: 0o755, Owner: "root", Group: "root"}
	}
	for name, content := range remote.entries {
		p := path.Join(destination, name)
		m.ensureParents(p)
		m.files[p] = &MockFile{
			Type:    FileTypeFile,
			Content: append([]byte(nil), content...),
			Mode:    0o755,
			Owner:   "root",
			Group:   "root",
		}
	}
	return nil
}

// Package operations

// QueryPackage returns a mock package
func (m *MockClient) QueryPackage(ctx context.Context, name string) (*PackageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("QueryPackage"); err != nil {
		return nil, err
	}

	if pkg, ok := m.packages[name]; ok {
		info := *pkg
		return &info, nil
	}
	return &PackageInfo{Name: name}, nil
}

// InstallPackage installs a mock package
func (m *MockClient) InstallPackage(ctx context.Context, name, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("InstallPackage"); err != nil {
		return err
	}

	pkg, ok := m.packages[name]
	if !ok {
		return fmt.Errorf("unable to locate package %s", name)
	}
	if version == "" {
		version = pkg.Candidate
	}
	pkg.Installed = version
	return nil
}

// RemovePackage removes a mock package
func (m *MockClient) RemovePackage(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.track("RemovePackage"); err != nil {
		return err
	}

	if pkg, ok := m.packages[name]; ok {
		pkg.Installed = ""
	}
	return nil
}

// Mock-specific methods for testing

// SetShouldFailConnect sets whether Connect should fail
func (m *MockClient) SetShouldFailConnect(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailConnect = shouldFail
}

// SetShouldFailOperation sets whether a specific operation should fail
func (m *MockClient) SetShouldFailOperation(operation string, shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailOperations[operation] = shouldFail
}

// GetCallCount returns the number of times a method was called
func (m *MockClient) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// MutationCount returns the number of calls that changed host state
func (m *MockClient) MutationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, op := range mutatingOperations {
		total += m.calls[op]
	}
	return total
}

// ResetCalls clears call tracking while keeping the mock host state
func (m *MockClient) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// Reset clears all mock data
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
}

// AddFile seeds a regular file
func (m *MockClient) AddFile(p string, content []byte, mode os.FileMode, owner, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureParents(p)
	m.files[path.Clean(p)] = &MockFile{Type: FileTypeFile, Content: content, Mode: mode, Owner: owner, Group: group}
}

// AddUser seeds a user
func (m *MockClient) AddUser(info UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[info.Name] = &info
}

// AddGroup seeds a group
func (m *MockClient) AddGroup(info GroupInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[info.Name] = &info
}

// AddService seeds a unit
func (m *MockClient) AddService(info ServiceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[info.Name] = &info
}

// AddPackage seeds a package known to the package manager
func (m *MockClient) AddPackage(info PackageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[info.Name] = &info
}

// AddRemoteArchive registers a downloadable archive and the entries it extracts to
func (m *MockClient) AddRemoteArchive(url string, payload []byte, entries map[string][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remotes[url] = &mockRemote{payload: payload, entries: entries}
}

// GetFile returns a copy of a mock filesystem object
func (m *MockClient) GetFile(p string) (*MockFile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, false
	}
	copied := *f
	return &copied, true
}

// GetService returns a copy of a mock unit
func (m *MockClient) GetService(name string) (*ServiceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, ok := m.services[name]
	if !ok {
		return nil, false
	}
	copied := *svc
	return &copied, true
}

// HasUser reports whether a mock user exists
func (m *MockClient) HasUser(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[name]
	return ok
}

// HasGroup reports whether a mock group exists
func (m *MockClient) HasGroup(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[name]
	return ok
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
