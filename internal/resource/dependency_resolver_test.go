package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levelOf(t *testing.T, order [][]Resource, key string) int {
	t.Helper()
	for i, level := range order {
		for _, res := range level {
			if Key(res) == key {
				return i
			}
		}
	}
	t.Fatalf("resource %s not found in order", key)
	return -1
}

func TestDependencyResolver_ImplicitDependencies(t *testing.T) {
	resolver := NewDependencyResolver()

	group := NewGroupResource("svc")
	user := NewUserResource("svc")
	user.Spec.Group = "svc"

	dir := NewFileResource("/opt/svc")
	dir.Spec.Ensure = FileEnsureDirectory

	archive := NewArchiveResource("/opt/svc/svc.tar.gz")
	archive.Spec.Source = "https://example.com/svc.tar.gz"
	archive.Spec.Extract = true
	archive.Spec.ExtractPath = "/opt/svc"

	binary := NewFileResource("/opt/svc/bin/svc")
	binary.Spec.Ensure = FileEnsureFile

	link := NewFileResource("/usr/local/bin/svc")
	link.Spec.Ensure = FileEnsureLink
	link.Spec.Target = "/opt/svc/bin/svc"

	cfg := NewFileResource("/etc/svc.yaml")
	cfg.SetContent("debug: true\n")
	cfg.Spec.Owner = "svc"
	cfg.Spec.Group = "svc"
	cfg.Notify = []ResourceReference{{Type: ResourceTypeService, Name: "svc"}}

	unit := NewFileResource("/etc/systemd/system/svc.service")
	unit.SetContent("[Service]\n")

	service := NewServiceResource("svc")
	service.Spec.UnitFile = "/etc/systemd/system/svc.service"

	graph, err := resolver.BuildDependencyGraph([]Resource{service, unit, cfg, link, binary, archive, dir, user, group})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"group/svc"}, graph.Nodes["user/svc"].Dependencies)
	assert.ElementsMatch(t, []string{"user/svc", "group/svc"}, graph.Nodes["file//etc/svc.yaml"].Dependencies)
	assert.ElementsMatch(t, []string{"file//opt/svc"}, graph.Nodes["archive//opt/svc/svc.tar.gz"].Dependencies)
	assert.ElementsMatch(t, []string{"file//opt/svc"}, graph.Nodes["file//opt/svc/bin/svc"].Dependencies)
	assert.ElementsMatch(t, []string{"file//opt/svc/bin/svc"}, graph.Nodes["file//usr/local/bin/svc"].Dependencies)
	assert.ElementsMatch(t, []string{"file//etc/systemd/system/svc.service", "file//etc/svc.yaml"}, graph.Nodes["service/svc"].Dependencies)

	order, err := resolver.GetCreationOrder(graph)
	require.NoError(t, err)
	assert.Less(t, levelOf(t, order, "group/svc"), levelOf(t, order, "user/svc"))
	assert.Less(t, levelOf(t, order, "user/svc"), levelOf(t, order, "file//etc/svc.yaml"))
	assert.Less(t, levelOf(t, order, "file//etc/svc.yaml"), levelOf(t, order, "service/svc"))
	assert.Less(t, levelOf(t, order, "file//opt/svc/bin/svc"), levelOf(t, order, "file//usr/local/bin/svc"))

	deletion, err := resolver.GetDeletionOrder(graph)
	require.NoError(t, err)
	assert.Less(t, levelOf(t, deletion, "service/svc"), levelOf(t, deletion, "group/svc"))
}

func TestDependencyResolver_AbsentResourcesHaveNoImplicitDependencies(t *testing.T) {
	resolver := NewDependencyResolver()

	user := NewUserResource("old")
	user.Spec.Ensure = AccountAbsent
	user.Spec.Group = "old"

	file := NewFileResource("/etc/old.conf")
	file.Spec.Ensure = FileEnsureAbsent
	file.Spec.Owner = "old"

	graph, err := resolver.BuildDependencyGraph([]Resource{user, NewGroupResource("old"), file})
	require.NoError(t, err)
	assert.Empty(t, graph.Nodes["user/old"].Dependencies)
	assert.Empty(t, graph.Nodes["file//etc/old.conf"].Dependencies)
}

func TestDependencyResolver_DetectsCycles(t *testing.T) {
	resolver := NewDependencyResolver()

	a := NewPackageResource("a")
	b := NewPackageResource("b")
	a.DependsOn = []ResourceReference{{Type: ResourceTypePackage, Name: "b"}}
	b.DependsOn = []ResourceReference{{Type: ResourceTypePackage, Name: "a"}}

	_, err := resolver.BuildDependencyGraph([]Resource{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestDependencyResolver_LevelsAreSorted(t *testing.T) {
	resolver := NewDependencyResolver()

	graph, err := resolver.BuildDependencyGraph([]Resource{NewPackageResource("zsh"), NewPackageResource("curl"), NewGroupResource("adm")})
	require.NoError(t, err)

	order, err := resolver.GetCreationOrder(graph)
	require.NoError(t, err)
	require.Len(t, order, 1)

	var keys []string
	for _, res := range order[0] {
		keys = append(keys, Key(res))
	}
	assert.Equal(t, []string{"group/adm", "package/curl", "package/zsh"}, keys)
}

func TestCatalog_ValidateDependencies(t *testing.T) {
	catalog := NewCatalog("test")

	file := NewFileResource("/etc/app.yaml")
	file.Notify = []ResourceReference{{Type: ResourceTypeService, Name: "app"}}
	catalog.MustAdd(file)

	err := catalog.ValidateDependencies()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifies 'service/app' which does not exist")

	catalog.MustAdd(NewServiceResource("app"))
	require.NoError(t, catalog.ValidateDependencies())

	order, err := catalog.GetCreationOrder()
	require.NoError(t, err)
	assert.Less(t, levelOf(t, order, "file//etc/app.yaml"), levelOf(t, order, "service/app"))

	assert.Error(t, catalog.AddResource(NewServiceResource("app")))
	assert.Error(t, catalog.AddResource(NewServiceResource("")))
	assert.Equal(t, []ResourceReference{
		{Type: ResourceTypeFile, Name: "/etc/app.yaml"},
		{Type: ResourceTypeService, Name: "app"},
	}, catalog.References())
}

func TestDependencyResolver_ChainsRootsAndLeaves(t *testing.T) {
	resolver := NewDependencyResolver()

	group := NewGroupResource("svc")
	user := NewUserResource("svc")
	user.Spec.Group = "svc"
	cfg := NewFileResource("/etc/svc.yaml")
	cfg.SetContent("debug: true\n")
	cfg.Spec.Owner = "svc"
	cfg.Spec.Group = "svc"

	graph, err := resolver.BuildDependencyGraph([]Resource{cfg, user, group})
	require.NoError(t, err)

	chain, err := resolver.GetDependencyChain(graph, "user/svc")
	require.NoError(t, err)
	assert.Equal(t, []string{"user/svc", "group/svc"}, chain)

	chain, err = resolver.GetDependencyChain(graph, "file//etc/svc.yaml")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "file//etc/svc.yaml", chain[0])
	assert.ElementsMatch(t, []string{"user/svc", "group/svc"}, chain[1:])

	_, err = resolver.GetDependencyChain(graph, "service/missing")
	assert.Error(t, err)

	roots := resolver.GetResourcesWithoutDependencies(graph)
	require.Len(t, roots, 1)
	assert.Equal(t, "group/svc", Key(roots[0]))

	leaves := resolver.GetResourcesWithoutDependents(graph)
	require.Len(t, leaves, 1)
	assert.Equal(t, "file//etc/svc.yaml", Key(leaves[0]))
}

func TestCatalog_DependencyReport(t *testing.T) {
	catalog := appCatalog("a: 1\n")

	report, err := catalog.DependencyReport()
	require.NoError(t, err)

	assert.Equal(t, []string{"group/app"}, report.Chains["user/app"])
	assert.Empty(t, report.Chains["group/app"])
	assert.Contains(t, report.Chains["service/app"], "file//opt/app/config.yaml")
	assert.Contains(t, report.Roots, ResourceReference{Type: ResourceTypeGroup, Name: "app"})
	assert.Equal(t, []ResourceReference{{Type: ResourceTypeService, Name: "app"}}, report.Leaves)
}
