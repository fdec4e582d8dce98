package host

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/moby/sys/user"
)

// LookupUser reads a user and its group memberships from the account database
func (a *Adapter) LookupUser(ctx context.Context, name string) (*UserInfo, error) {
	u, err := a.lookupPasswd(name)
	if err != nil {
		return nil, err
	}

	info := &UserInfo{
		Name:  u.Name,
		UID:   u.Uid,
		GID:   u.Gid,
		Group: a.groupName(u.Gid),
		Home:  u.Home,
		Shell: u.Shell,
	}

	groups, err := user.ParseGroupFileFilter(a.groupPath, func(g user.Group) bool {
		for _, member := range g.List {
			if member == name {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.groupPath, err)
	}
	for _, g := range groups {
		info.Groups = append(info.Groups, g.Name)
	}
	sort.Strings(info.Groups)

	return info, nil
}

// CreateUser runs useradd
func (a *Adapter) CreateUser(ctx context.Context, spec UserSpec) error {
	args := userArgs(spec)
	if spec.System {
		args = append(args, "--system")
	}
	if spec.Home != "" {
		args = append(args, "--no-create-home")
	}
	if spec.Group != "" {
		args = append(args, "--no-user-group")
	}
	args = append(args, spec.Name)

	_, err := runChecked(ctx, a.runner, "useradd", args...)
	return err
}

// ModifyUser runs usermod with the attributes set in spec
func (a *Adapter) ModifyUser(ctx context.Context, spec UserSpec) error {
	args := append(userArgs(spec), spec.Name)
	_, err := runChecked(ctx, a.runner, "usermod", args...)
	return err
}

// DeleteUser runs userdel
func (a *Adapter) DeleteUser(ctx context.Context, name string) error {
	_, err := runChecked(ctx, a.runner, "userdel", name)
	return err
}

// LookupGroup reads a group from the account database
func (a *Adapter) LookupGroup(ctx context.Context, name string) (*GroupInfo, error) {
	g, err := a.lookupGroupEntry(name)
	if err != nil {
		return nil, err
	}
	return &GroupInfo{
		Name:    g.Name,
		GID:     g.Gid,
		Members: g.List,
	}, nil
}

// CreateGroup runs groupadd
func (a *Adapter) CreateGroup(ctx context.Context, spec GroupSpec) error {
	var args []string
	if spec.GID != nil {
		args = append(args, "--gid", strconv.Itoa(*spec.GID))
	}
	if spec.System {
		args = append(args, "--system")
	}
	args = append(args, spec.Name)

	_, err := runChecked(ctx, a.runner, "groupadd", args...)
	return err
}

// ModifyGroup runs groupmod. Only the gid can change.
func (a *Adapter) ModifyGroup(ctx context.Context, spec GroupSpec) error {
	if spec.GID == nil {
		return nil
	}
	_, err := runChecked(ctx, a.runner, "groupmod", "--gid", strconv.Itoa(*spec.GID), spec.Name)
	return err
}

// DeleteGroup runs groupdel
func (a *Adapter) DeleteGroup(ctx context.Context, name string) error {
	_, err := runChecked(ctx, a.runner, "groupdel", name)
	return err
}

func userArgs(spec UserSpec) []string {
	var args []string
	if spec.UID != nil {
		args = append(args, "--uid", strconv.Itoa(*spec.UID))
	}
	if spec.Group != "" {
		args = append(args, "--gid", spec.Group)
	}
	if len(spec.Groups) > 0 {
		args = append(args, "--groups", strings.Join(spec.Groups, ","))
	}
	if spec.Home != "" {
		args = append(args, "--home-dir", spec.Home)
	}
	if spec.Shell != "" {
		args = append(args, "--shell", spec.Shell)
	}
	return args
}

func (a *Adapter) lookupPasswd(name string) (user.User, error) {
	users, err := user.ParsePasswdFileFilter(a.passwdPath, func(u user.User) bool {
		return u.Name == name
	})
	if err != nil {
		return user.User{}, fmt.Errorf("failed to read %s: %w", a.passwdPath, err)
	}
	if len(users) == 0 {
		return user.User{}, fmt.Errorf("%w: user %s", ErrNotFound, name)
	}
	return users[0], nil
}

func (a *Adapter) lookupGroupEntry(name string) (user.Group, error) {
	groups, err := user.ParseGroupFileFilter(a.groupPath, func(g user.Group) bool {
		return g.Name == name
	})
	if err != nil {
		return user.Group{}, fmt.Errorf("failed to read %s: %w", a.groupPath, err)
	}
	if len(groups) == 0 {
		return user.Group{}, fmt.Errorf("%w: group %s", ErrNotFound, name)
	}
	return groups[0], nil
}
