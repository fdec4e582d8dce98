package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/moby/sys/user"
)

// StatFile returns the observed state of path without following symlinks
func (a *Adapter) StatFile(ctx context.Context, path string) (*FileInfo, error) {
	st, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	info := &FileInfo{
		Path: path,
		Mode: st.Mode().Perm(),
		Size: st.Size(),
	}

	switch {
	case st.Mode()&os.ModeSymlink != 0:
		info.Type = FileTypeLink
		target, err := os.Readlink(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read link %s: %w", path, err)
		}
		info.Target = target
	case st.IsDir():
		info.Type = FileTypeDirectory
	case st.Mode().IsRegular():
		info.Type = FileTypeFile
	default:
		info.Type = FileTypeOther
	}

	if sys, ok := st.Sys().(*syscall.Stat_t); ok {
		info.Owner = a.userName(int(sys.Uid))
		info.Group = a.groupName(int(sys.Gid))
	}

	return info, nil
}

// ReadFile reads the content of a regular file
func (a *Adapter) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

// WriteFile writes content atomically using a temp file and rename
func (a *Adapter) WriteFile(ctx context.Context, path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}

	// A directory or link in the way is replaced, as any other ensure would do.
	if st, err := os.Lstat(path); err == nil && !st.Mode().IsRegular() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to replace %s: %w", path, err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Symlink points path at target, replacing whatever is at path
func (a *Adapter) Symlink(ctx context.Context, target, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".link-tmp")
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}

	if st, err := os.Lstat(path); err == nil && st.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to replace %s: %w", path, err)
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename symlink: %w", err)
	}
	return nil
}

// Mkdir creates a directory and its parents
func (a *Adapter) Mkdir(ctx context.Context, path string, mode os.FileMode) error {
	if st, err := os.Lstat(path); err == nil && !st.IsDir() {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to replace %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(path, mode); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

// Chmod sets the permission bits of path
func (a *Adapter) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

// Chown sets owner and group by name without following symlinks. Empty names are left unchanged.
func (a *Adapter) Chown(ctx context.Context, path, owner, group string) error {
	uid, gid := -1, -1

	if owner != "" {
		u, err := a.lookupPasswd(owner)
		if err != nil {
			return err
		}
		uid = u.Uid
	}
	if group != "" {
		g, err := a.lookupGroupEntry(group)
		if err != nil {
			return err
		}
		gid = g.Gid
	}

	return os.Lchown(path, uid, gid)
}

// RemoveFile removes a file, link or empty directory
func (a *Adapter) RemoveFile(ctx context.Context, path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (a *Adapter) userName(uid int) string {
	users, err := user.ParsePasswdFileFilter(a.passwdPath, func(u user.User) bool {
		return u.Uid == uid
	})
	if err != nil || len(users) == 0 {
		return fmt.Sprintf("%d", uid)
	}
	return users[0].Name
}

func (a *Adapter) groupName(gid int) string {
	groups, err := user.ParseGroupFileFilter(a.groupPath, func(g user.Group) bool {
		return g.Gid == gid
	})
	if err != nil || len(groups) == 0 {
		return fmt.Sprintf("%d", gid)
	}
	return groups[0].Name
}
