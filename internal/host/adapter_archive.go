package host

import (
	"archive/tar"
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// Download fetches spec.URL into spec.Destination, verifying the checksum when set.
// The destination is only replaced once the payload is complete and verified.
func (a *Adapter) Download(ctx context.Context, spec DownloadSpec) error {
	logger := zerolog.Ctx(ctx)

	var expected digest.Digest
	if spec.Checksum != "" {
		d, err := digest.Parse(spec.Checksum)
		if err != nil {
			return fmt.Errorf("invalid checksum %q: %w", spec.Checksum, err)
		}
		expected = d
	}

	client := a.httpClient
	if spec.ProxyServer != "" {
		client = resty.New().SetProxy(spec.ProxyServer).SetTimeout(defaultHTTPTimeout)
		defer client.Close()
	}

	if err := os.MkdirAll(filepath.Dir(spec.Destination), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	tmp := spec.Destination + ".part"
	defer func() {
		_ = os.Remove(tmp)
	}()

	logger.Debug().Str("url", spec.URL).Str("destination", spec.Destination).Msg("downloading")

	resp, err := client.R().
		SetContext(ctx).
		SetOutputFileName(tmp).
		Get(spec.URL)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", spec.URL, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to download %s: %s", spec.URL, resp.Status())
	}

	if expected != "" {
		if err := verifyFile(tmp, expected); err != nil {
			return err
		}
	}

	if err := os.Rename(tmp, spec.Destination); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

func verifyFile(path string, expected digest.Digest) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	verifier := expected.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: %s does not match %s", ErrChecksumMismatch, path, expected)
	}
	return nil
}

// Extract unpacks a gzip-compressed tarball into destination
func (a *Adapter) Extract(ctx context.Context, archivePath, destination string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, archivePath)
		}
		return err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", archivePath, err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destination, err)
	}

	return extractTar(ctx, tar.NewReader(gz), destination)
}

func extractTar(ctx context.Context, tr *tar.Reader, destination string) error {
	root := filepath.Clean(destination)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := hdr.Linkname
			if !filepath.IsAbs(linkTarget) {
				linkTarget = filepath.Join(filepath.Dir(target), linkTarget)
			}
			if !within(root, linkTarget) {
				return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// devices, fifos and hard links are not needed for release tarballs
		}
	}
}

func writeEntry(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, mode)
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.Clean("/"+name))
	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if strings.Contains(filepath.ToSlash(name), "../") || name == ".." {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
