package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+server.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	stored, err := server.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", stored)

	_, err = ConnectRedis(context.Background(), "", "groupwork-test")
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "not a url", "groupwork-test")
	require.Error(t, err)
}

func TestConnectUsesSQLitePrefix(t *testing.T) {
	db, err := Connect("sqlite:file::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.Equal(t, "sqlite", db.Dialector.Name())
}
