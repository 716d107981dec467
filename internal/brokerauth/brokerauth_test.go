package brokerauth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/tradingcore/internal/brokerauth"
)

func TestGetBrokerConnection_AllowAllDefault(t *testing.T) {
	auth := brokerauth.NewStatic(true)

	conn, err := auth.GetBrokerConnection(context.Background(), 42, "ZERODHA")
	require.NoError(t, err)
	assert.True(t, conn.Usable)
}

func TestGetBrokerConnection_DenyAllDefault(t *testing.T) {
	auth := brokerauth.NewStatic(false)

	conn, err := auth.GetBrokerConnection(context.Background(), 42, "ZERODHA")
	require.NoError(t, err)
	assert.False(t, conn.Usable)
}

func TestGrantAndRevoke(t *testing.T) {
	auth := brokerauth.NewStatic(false)
	auth.Grant(42, "ZERODHA")

	conn, err := auth.GetBrokerConnection(context.Background(), 42, "ZERODHA")
	require.NoError(t, err)
	assert.True(t, conn.Usable)

	// the grant is per (user, broker), not per user
	conn, err = auth.GetBrokerConnection(context.Background(), 42, "UPSTOX")
	require.NoError(t, err)
	assert.False(t, conn.Usable)

	conn, err = auth.GetBrokerConnection(context.Background(), 7, "ZERODHA")
	require.NoError(t, err)
	assert.False(t, conn.Usable)

	auth.Revoke(42, "ZERODHA")
	conn, err = auth.GetBrokerConnection(context.Background(), 42, "ZERODHA")
	require.NoError(t, err)
	assert.False(t, conn.Usable)
}

func TestRevoke_OverridesAllowAllDefault(t *testing.T) {
	auth := brokerauth.NewStatic(true)
	auth.Revoke(42, "ZERODHA")

	conn, err := auth.GetBrokerConnection(context.Background(), 42, "ZERODHA")
	require.NoError(t, err)
	assert.False(t, conn.Usable)

	// other brokers for the same user still fall back to allow-all
	conn, err = auth.GetBrokerConnection(context.Background(), 42, "UPSTOX")
	require.NoError(t, err)
	assert.True(t, conn.Usable)
}
