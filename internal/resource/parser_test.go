package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestParser_ParseFile(t *testing.T) {
	parser := NewManifestParser("rds-exporter")

	fileYAML := `
apiVersion: converge/v1
kind: File
metadata:
  name: /etc/rds-exporter.yaml
  labels:
    app: rds-exporter
spec:
  owner: rds-exporter
  group: rds-exporter
  mode: "0640"
  content: |
    ---
    debug: true
notify:
  - type: service
    name: rds_exporter
`

	err := parser.ParseManifest([]byte(fileYAML))
	require.NoError(t, err)

	catalog := parser.GetCatalog()
	assert.Equal(t, "rds-exporter", catalog.Name)

	resources := catalog.GetResourcesByType(ResourceTypeFile)
	require.Len(t, resources, 1)

	file := resources[0].(*FileResource)
	assert.Equal(t, "/etc/rds-exporter.yaml", file.GetName())
	assert.Equal(t, FileEnsureFile, file.Spec.Ensure, "ensure defaults to file")
	require.NotNil(t, file.Spec.Content)
	assert.Equal(t, "---\ndebug: true\n", *file.Spec.Content)
	assert.Equal(t, "0640", file.Spec.Mode)
	assert.Equal(t, "rds-exporter", file.GetLabels()["app"])
	assert.Equal(t, []ResourceReference{{Type: ResourceTypeService, Name: "rds_exporter"}}, file.GetNotifications())
}

func TestManifestParser_ParseMixedResources(t *testing.T) {
	parser := NewManifestParser("app")

	manifests := `
apiVersion: converge/v1
kind: Group
metadata:
  name: app
spec:
  system: true
---
apiVersion: converge/v1
kind: User
metadata:
  name: app
spec:
  group: app
  shell: /usr/sbin/nologin
---
apiVersion: converge/v1
kind: Archive
metadata:
  name: /opt/app-1.0.tar.gz
spec:
  source: https://example.com/app-1.0.tar.gz
  checksum: sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
  extract: true
  extractPath: /opt
  creates: /opt/app-1.0/app
  cleanup: true
---
apiVersion: converge/v1
kind: Package
metadata:
  name: curl
spec:
  ensure: latest
---
apiVersion: converge/v1
kind: Service
metadata:
  name: app
spec:
  enable: true
dependsOn:
  - type: user
    name: app
`

	require.NoError(t, parser.ParseManifest([]byte(manifests)))

	catalog := parser.GetCatalog()
	assert.Equal(t, 5, catalog.Len())

	group, ok := catalog.GetResource(ResourceReference{Type: ResourceTypeGroup, Name: "app"})
	require.True(t, ok)
	assert.True(t, group.(*GroupResource).Spec.System)
	assert.Equal(t, AccountPresent, group.(*GroupResource).Spec.Ensure)

	user, ok := catalog.GetResource(ResourceReference{Type: ResourceTypeUser, Name: "app"})
	require.True(t, ok)
	assert.Equal(t, "/usr/sbin/nologin", user.(*UserResource).Spec.Shell)

	archive, ok := catalog.GetResource(ResourceReference{Type: ResourceTypeArchive, Name: "/opt/app-1.0.tar.gz"})
	require.True(t, ok)
	assert.True(t, archive.(*ArchiveResource).Spec.Extract)
	assert.Equal(t, "/opt/app-1.0/app", archive.(*ArchiveResource).Spec.Creates)

	pkg, ok := catalog.GetResource(ResourceReference{Type: ResourceTypePackage, Name: "curl"})
	require.True(t, ok)
	assert.Equal(t, PackageLatest, pkg.(*PackageResource).Spec.Ensure)

	service, ok := catalog.GetResource(ResourceReference{Type: ResourceTypeService, Name: "app"})
	require.True(t, ok)
	svc := service.(*ServiceResource)
	assert.Equal(t, ServiceRunning, svc.Spec.Ensure, "ensure defaults to running")
	require.NotNil(t, svc.Spec.Enable)
	assert.True(t, *svc.Spec.Enable)
	assert.Equal(t, []ResourceReference{{Type: ResourceTypeUser, Name: "app"}}, svc.GetDependencies())
}

func TestManifestParser_SkipsEmptyDocuments(t *testing.T) {
	parser := NewManifestParser("app")

	manifests := `---
# nothing here
---
apiVersion: converge/v1
kind: Package
metadata:
  name: curl
---
`
	require.NoError(t, parser.ParseManifest([]byte(manifests)))
	assert.Equal(t, 1, parser.GetCatalog().Len())
}

func TestManifestParser_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		contains string
	}{
		{
			name: "unsupported kind",
			manifest: `
apiVersion: converge/v1
kind: Container
metadata:
  name: web
`,
			contains: "unsupported resource kind: Container",
		},
		{
			name: "wrong api version",
			manifest: `
apiVersion: converge/v2
kind: File
metadata:
  name: /etc/app.yaml
`,
			contains: "unsupported apiVersion",
		},
		{
			name: "missing name",
			manifest: `
apiVersion: converge/v1
kind: Group
metadata:
  labels:
    app: x
`,
			contains: "group name cannot be empty",
		},
		{
			name: "relative path",
			manifest: `
apiVersion: converge/v1
kind: File
metadata:
  name: etc/app.yaml
`,
			contains: "must be absolute",
		},
		{
			name: "link without target",
			manifest: `
apiVersion: converge/v1
kind: File
metadata:
  name: /usr/local/bin/app
spec:
  ensure: link
`,
			contains: "link requires a target",
		},
		{
			name:     "invalid yaml",
			manifest: "apiVersion: converge/v1\nkind: [unclosed\n",
			contains: "failed to parse YAML metadata",
		},
		{
			name: "duplicate",
			manifest: `
apiVersion: converge/v1
kind: Package
metadata:
  name: curl
---
apiVersion: converge/v1
kind: Package
metadata:
  name: curl
`,
			contains: "already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewManifestParser("test").ParseManifest([]byte(tt.manifest))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestSplitDocuments(t *testing.T) {
	docs := splitDocuments([]byte("a: 1\n---\nb: |\n  ---\n  c\n--- \n\n"))
	require.Len(t, docs, 2)
	assert.Equal(t, "a: 1", string(docs[0]))
	assert.Equal(t, "b: |\n  ---\n  c", string(docs[1]))
}
