package testing

import (
	"context"
	"io"
	"testing"

	"github.com/marmos91/staticd/pkg/content"
	"github.com/stretchr/testify/require"
)

// mustReadAll opens name and returns its full body, checking that the
// number of bytes read matches the reported size.
func mustReadAll(t *testing.T, store content.Store, name string) []byte {
	t.Helper()

	obj, err := store.Open(testContext(), name)
	require.NoError(t, err, "Open(%s)", name)
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err, "read %s", name)
	require.Equal(t, obj.Size, int64(len(data)), "size mismatch for %s", name)

	return data
}

func mustWritable(t *testing.T, store content.Store) content.WritableStore {
	t.Helper()

	ws, ok := store.(content.WritableStore)
	require.True(t, ok, "store %T is not writable", store)
	return ws
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, content.ErrNotFound)
}

// PutSeed is a Seed function for writable stores.
func PutSeed(t *testing.T, store content.Store, name string, data []byte) {
	t.Helper()
	require.NoError(t, mustWritable(t, store).Put(context.Background(), name, data))
}
