package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeChart(t *testing.T, values string, templates map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Chart.yaml"), []byte("name: demo\nversion: 1.0.0\n"), 0644); err != nil {
		t.Fatalf("failed to write Chart.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "values.yaml"), []byte(values), 0644); err != nil {
		t.Fatalf("failed to write values.yaml: %v", err)
	}
	templDir := filepath.Join(dir, "templates")
	if err := os.Mkdir(templDir, 0755); err != nil {
		t.Fatalf("failed to create templates dir: %v", err)
	}
	for name, content := range templates {
		if err := os.WriteFile(filepath.Join(templDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write template %s: %v", name, err)
		}
	}
	return dir
}

func TestLintChart(t *testing.T) {
	tests := []struct {
		name        string
		values      string
		templates   map[string]string
		wantErr     bool
		errContains string
	}{
		{
			name:   "valid chart",
			values: "foo: bar\n",
			templates: map[string]string{
				"tpl.yaml": "value: {{ .Values.foo }}\n",
			},
		},
		{
			name:   "valid manifests",
			values: "user: app\n",
			templates: map[string]string{
				"accounts.yaml": "apiVersion: converge/v1\nkind: Group\nmetadata:\n  name: {{ .Values.user }}\n---\n" +
					"apiVersion: converge/v1\nkind: User\nmetadata:\n  name: {{ .Values.user }}\nspec:\n  group: {{ .Values.user | quote }}\n",
			},
		},
		{
			name:        "invalid values",
			values:      "foo: [bar\n",
			templates:   map[string]string{},
			wantErr:     true,
			errContains: "failed to parse values.yaml",
		},
		{
			name:   "invalid template executes",
			values: "foo: bar\n",
			templates: map[string]string{
				"tpl.yaml": "value: {{ .Values.baz }}\n",
			},
			wantErr:     true,
			errContains: "failed to execute template",
		},
		{
			name:   "invalid yaml after render",
			values: "foo: bar\n",
			templates: map[string]string{
				"tpl.yaml": "value: [{{ .Values.foo }}\n",
			},
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:   "unknown kind",
			values: "",
			templates: map[string]string{
				"tpl.yaml": "apiVersion: converge/v1\nkind: Container\nmetadata:\n  name: web\n",
			},
			wantErr:     true,
			errContains: "unsupported resource kind",
		},
		{
			name:   "missing dependency",
			values: "",
			templates: map[string]string{
				"tpl.yaml": "apiVersion: converge/v1\nkind: Service\nmetadata:\n  name: web\ndependsOn:\n  - type: package\n    name: nginx\n",
			},
			wantErr:     true,
			errContains: "dependency validation failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeChart(t, tt.values, tt.templates)
			_, err := LintChart(dir)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error to contain %q, got %v", tt.errContains, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLintChart_MissingChartYaml(t *testing.T) {
	_, err := LintChart(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "failed to read Chart.yaml") {
		t.Fatalf("expected Chart.yaml error, got %v", err)
	}
}

func TestLint_VerboseListsDependencies(t *testing.T) {
	var out bytes.Buffer
	err := Lint(LintOptions{ChartPath: writeAppChart(t, "info"), Out: &out, Verbose: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"  group demo\n",
		"  user demo <- group/demo\n",
		"file//etc/demo.yaml",
		"  roots: file//etc/systemd/system/demo.service, group/demo\n",
		"  leaves: service/demo\n",
		"demo: 5 resources, no issues found",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}
