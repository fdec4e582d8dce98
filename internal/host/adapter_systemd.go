package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

var errSystemdUnavailable = errors.New("systemd is not available on this host")

// systemdConn is the subset of the systemd D-Bus API the adapter uses
type systemdConn interface {
	Close()
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	ReloadContext(ctx context.Context) error
}

func dialSystemd(ctx context.Context) (systemdConn, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return conn, nil
}

// unitName appends the .service suffix when the name has no unit type
func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func (a *Adapter) systemd() (systemdConn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return a.conn, nil
	}
	if a.connErr != nil {
		return nil, fmt.Errorf("%w: %v", errSystemdUnavailable, a.connErr)
	}
	return nil, errSystemdUnavailable
}

// ServiceStatus returns the load, active and enablement state of a unit
func (a *Adapter) ServiceStatus(ctx context.Context, name string) (*ServiceInfo, error) {
	conn, err := a.systemd()
	if err != nil {
		return nil, err
	}

	unit := unitName(name)
	units, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return nil, fmt.Errorf("failed to query unit %s: %w", unit, err)
	}
	if len(units) == 0 || units[0].LoadState == "not-found" {
		return nil, fmt.Errorf("%w: unit %s", ErrNotFound, unit)
	}

	info := &ServiceInfo{
		Name:        name,
		LoadState:   units[0].LoadState,
		ActiveState: units[0].ActiveState,
		SubState:    units[0].SubState,
	}

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unit file state of %s: %w", unit, err)
	}
	if state, ok := props["UnitFileState"].(string); ok {
		info.Enabled = state == "enabled" || state == "enabled-runtime" || state == "alias"
	}

	return info, nil
}

// StartService starts a unit and waits for the job to finish
func (a *Adapter) StartService(ctx context.Context, name string) error {
	return a.runJob(ctx, "start", name, func(conn systemdConn, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, unitName(name), "replace", ch)
	})
}

// StopService stops a unit and waits for the job to finish
func (a *Adapter) StopService(ctx context.Context, name string) error {
	return a.runJob(ctx, "stop", name, func(conn systemdConn, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, unitName(name), "replace", ch)
	})
}

// RestartService restarts a unit and waits for the job to finish
func (a *Adapter) RestartService(ctx context.Context, name string) error {
	return a.runJob(ctx, "restart", name, func(conn systemdConn, ch chan<- string) (int, error) {
		return conn.RestartUnitContext(ctx, unitName(name), "replace", ch)
	})
}

// EnableService enables a unit file
func (a *Adapter) EnableService(ctx context.Context, name string) error {
	conn, err := a.systemd()
	if err != nil {
		return err
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{unitName(name)}, false, true); err != nil {
		return fmt.Errorf("failed to enable %s: %w", name, err)
	}
	return conn.ReloadContext(ctx)
}

// DisableService disables a unit file
func (a *Adapter) DisableService(ctx context.Context, name string) error {
	conn, err := a.systemd()
	if err != nil {
		return err
	}
	if _, err := conn.DisableUnitFilesContext(ctx, []string{unitName(name)}, false); err != nil {
		return fmt.Errorf("failed to disable %s: %w", name, err)
	}
	return conn.ReloadContext(ctx)
}

// DaemonReload makes systemd re-read unit files
func (a *Adapter) DaemonReload(ctx context.Context) error {
	conn, err := a.systemd()
	if err != nil {
		return err
	}
	return conn.ReloadContext(ctx)
}

func (a *Adapter) runJob(ctx context.Context, verb, name string, submit func(systemdConn, chan<- string) (int, error)) error {
	conn, err := a.systemd()
	if err != nil {
		return err
	}

	ch := make(chan string, 1)
	if _, err := submit(conn, ch); err != nil {
		return fmt.Errorf("failed to %s %s: %w", verb, name, err)
	}

	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("failed to %s %s: job %s", verb, name, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
