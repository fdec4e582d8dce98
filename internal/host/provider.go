package host

import (
	"context"
	"fmt"
)

// ClientProvider provides host clients
type ClientProvider interface {
	GetClient() Client
}

// DefaultClientProvider provides clients backed by the local host
type DefaultClientProvider struct {
	opts []AdapterOption
}

// NewDefaultClientProvider creates a new default client provider
func NewDefaultClientProvider(opts ...AdapterOption) *DefaultClientProvider {
	return &DefaultClientProvider{opts: opts}
}

// GetClient returns a client for the local host
func (p *DefaultClientProvider) GetClient() Client {
	return NewAdapter(p.opts...)
}

// MockClientProvider provides mock clients for testing
type MockClientProvider struct {
	client *MockClient
}

// NewMockClientProvider creates a new mock client provider
func NewMockClientProvider() *MockClientProvider {
	return &MockClientProvider{
		client: NewMockClient(),
	}
}

// GetClient returns the mock client
func (p *MockClientProvider) GetClient() Client {
	return p.client
}

// GetMockClient returns the mock client with its test helpers
func (p *MockClientProvider) GetMockClient() *MockClient {
	return p.client
}

// ConnectedClient wraps a Client with automatic connection management
type ConnectedClient struct {
	client    Client
	connected bool
}

// NewConnectedClient creates a new connected client wrapper
func NewConnectedClient(client Client) *ConnectedClient {
	return &ConnectedClient{
		client:    client,
		connected: false,
	}
}

func (c *ConnectedClient) ensureConnected(ctx context.Context) error {
	if !c.connected {
		if err := c.client.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to host: %w", err)
		}
		c.connected = true
	}
	return nil
}

// Close closes the connection and cleans up
func (c *ConnectedClient) Close() error {
	if c.connected {
		err := c.client.Close()
		c.connected = false
		return err
	}
	return nil
}

// GetClient returns the underlying client, ensuring it's connected
func (c *ConnectedClient) GetClient(ctx context.Context) (Client, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.client, nil
}

type sessionKey struct{}

// Session connects the client and returns a context under which WithClient reuses
// that connection. The caller closes it.
func (c *ConnectedClient) Session(ctx context.Context) (context.Context, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, sessionKey{}, c.client), nil
}

// WithClient executes a function with a connected client
func (c *ConnectedClient) WithClient(ctx context.Context, fn func(Client) error) error {
	if held, ok := ctx.Value(sessionKey{}).(Client); ok && held == c.client {
		return fn(c.client)
	}

	client, err := c.GetClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(client)
}
