package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectedClient_WithClientConnectsPerCall(t *testing.T) {
	client := NewMockClient()
	conn := NewConnectedClient(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WithClient(ctx, func(Client) error { return nil }))
	}
	assert.Equal(t, 2, client.GetCallCount("Connect"))
	assert.Equal(t, 2, client.GetCallCount("Close"))
}

func TestConnectedClient_SessionReusesConnection(t *testing.T) {
	client := NewMockClient()
	session := NewConnectedClient(client)

	ctx, err := session.Session(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, NewConnectedClient(client).WithClient(ctx, func(Client) error { return nil }))
	}
	assert.Equal(t, 1, client.GetCallCount("Connect"))
	assert.Equal(t, 0, client.GetCallCount("Close"))

	other := NewMockClient()
	require.NoError(t, NewConnectedClient(other).WithClient(ctx, func(Client) error { return nil }))
	assert.Equal(t, 1, other.GetCallCount("Connect"), "a session only covers its own client")

	require.NoError(t, session.Close())
	assert.Equal(t, 1, client.GetCallCount("Close"))
}

func TestConnectedClient_SessionConnectFailure(t *testing.T) {
	client := NewMockClient()
	client.SetShouldFailConnect(true)

	_, err := NewConnectedClient(client).Session(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to host")
}
