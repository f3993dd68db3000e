package filestore

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveAndExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocal(fs, "/data", "https://files.test/media/")
	ctx := context.Background()

	name := "group_work/4/abc123/report.pdf"
	exists, err := store.Exists(ctx, name)
	require.NoError(t, err)
	require.False(t, exists)

	url, err := store.Save(ctx, name, strings.NewReader("content"))
	require.NoError(t, err)
	require.Equal(t, "https://files.test/media/group_work/4/abc123/report.pdf", url)

	exists, err = store.Exists(ctx, name)
	require.NoError(t, err)
	require.True(t, exists)

	stored, err := afero.ReadFile(fs, "/data/group_work/4/abc123/report.pdf")
	require.NoError(t, err)
	require.Equal(t, "content", string(stored))
}

func TestLocalKeepsPathsInsideRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocal(fs, "/data", "https://files.test")

	_, err := store.Save(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/data/etc/passwd")
	require.NoError(t, err)
	require.True(t, exists)

	_, err = store.Save(context.Background(), "", strings.NewReader("x"))
	require.Error(t, err)
}
