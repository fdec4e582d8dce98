package host

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

const (
	defaultPasswdPath  = "/etc/passwd"
	defaultGroupPath   = "/etc/group"
	defaultHTTPTimeout = 5 * time.Minute
)

// Adapter implements Client against the local host
type Adapter struct {
	mu sync.Mutex

	runner         CommandRunner
	passwdPath     string
	groupPath      string
	httpClient     *resty.Client
	packageManager PackageManager
	dial           func(ctx context.Context) (systemdConn, error)
	conn           systemdConn
	connErr        error
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithRunner sets the command runner used for account and package commands
func WithRunner(runner CommandRunner) AdapterOption {
	return func(a *Adapter) {
		a.runner = runner
	}
}

// WithAccountFiles overrides the passwd and group database paths
func WithAccountFiles(passwdPath, groupPath string) AdapterOption {
	return func(a *Adapter) {
		a.passwdPath = passwdPath
		a.groupPath = groupPath
	}
}

// WithHTTPTimeout sets the timeout for archive downloads
func WithHTTPTimeout(timeout time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.httpClient.SetTimeout(timeout)
	}
}

// NewAdapter creates a new host adapter
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{
		runner:     ExecRunner{},
		passwdPath: defaultPasswdPath,
		groupPath:  defaultGroupPath,
		httpClient: resty.New().SetTimeout(defaultHTTPTimeout),
		dial:       dialSystemd,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect opens the systemd D-Bus connection. Hosts without systemd stay usable
// for file, account, archive and package operations.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil
	}

	conn, err := a.dial(ctx)
	if err != nil {
		if _, statErr := os.Stat("/run/systemd/system"); os.IsNotExist(statErr) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("systemd not available, service operations disabled")
			a.connErr = err
			return nil
		}
		return err
	}
	a.conn = conn
	a.connErr = nil
	return nil
}

// Close closes the systemd connection
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	return nil
}
