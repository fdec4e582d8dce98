package e2e

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
)

// TestConvergeE2E applies the rds-exporter module to the machine running the
// test. It needs root and systemd, so it only runs with CONVERGE_E2E=1.
func TestConvergeE2E(t *testing.T) {
	if os.Getenv("CONVERGE_E2E") != "1" {
		t.Skip("set CONVERGE_E2E=1 to run against the local host")
	}
	convergeBin, err := filepath.Abs("../bin/converge")
	if err != nil {
		t.Fatalf("failed to resolve binary: %v", err)
	}
	stateDir := t.TempDir()

	// Step 1: Build the stand-in exporter and package it like a release
	t.Log("Building stand-in exporter...")
	binary := filepath.Join(t.TempDir(), "prometheus-rds-exporter")
	build := exec.Command("go", "build", "-o", binary, "./server")
	build.Stdout, build.Stderr = os.Stdout, os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	tarball := packageRelease(t, binary)

	release := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarball)
	}))
	defer release.Close()

	run := func(args ...string) string {
		t.Helper()
		args = append(args, "--state-dir", stateDir)
		cmd := exec.Command(convergeBin, args...)
		var out bytes.Buffer
		cmd.Stdout, cmd.Stderr = io.MultiWriter(os.Stdout, &out), os.Stderr
		if err := cmd.Run(); err != nil {
			t.Fatalf("converge %s failed: %v", strings.Join(args, " "), err)
		}
		return out.String()
	}
	module := []string{"rds-exporter", "--set", "download_url=" + release.URL + "/rds.tar.gz"}

	// Step 2: Apply the module
	t.Log("Running converge rds-exporter...")
	run(module...)

	url := "http://localhost:9043"
	t.Logf("Waiting for exporter at %s...", url)
	if err := waitForReady(url+"/metrics", 10*time.Second); err != nil {
		t.Fatalf("exporter did not respond: %v", err)
	}

	// Step 3: A second run changes nothing
	if out := run(module...); !strings.Contains(out, "0 created, 0 updated, 0 deleted, 0 refreshed") {
		t.Fatalf("second run was not idempotent:\n%s", out)
	}

	// Step 4: Changing the configuration restarts the service
	t.Log("Applying debug configuration...")
	out := run(append(module, "--set", "config_content.debug=true")...)
	if !strings.Contains(out, "1 refreshed") {
		t.Fatalf("service was not refreshed:\n%s", out)
	}
	if err := waitForReady(url+"/metrics", 10*time.Second); err != nil {
		t.Fatalf("restarted exporter did not respond: %v", err)
	}
	resp, err := http.Get(url + "/config")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "debug: true") {
		t.Fatalf("unexpected configuration: %q", string(body))
	}
	t.Log("Exporter configuration verified!")

	// Step 5: Cleanup
	t.Log("Cleaning up...")
	run("remove", "rds-exporter")
}

// packageRelease builds a gzipped tarball holding the exporter binary at its root
func packageRelease(t *testing.T, binary string) []byte {
	t.Helper()
	content, err := os.ReadFile(binary)
	if err != nil {
		t.Fatalf("failed to read binary: %v", err)
	}

	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{Name: "prometheus-rds-exporter", Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("failed to write tar header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("failed to write tar entry: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip: %v", err)
	}
	return buf.Bytes()
}

func waitForReady(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if err == nil {
			resp.Body.Close()
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("timeout: %v", err)
			}
			return fmt.Errorf("timeout: got status %v", resp.Status)
		}
		time.Sleep(300 * time.Millisecond)
	}
}
