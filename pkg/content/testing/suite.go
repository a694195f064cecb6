// Package testing provides a conformance suite every content.Store
// implementation runs in its own tests.
package testing

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/marmos91/staticd/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the content.Store contract, not implementation
// details, so the same cases run against filesystem, memory, Badger and S3.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) (content.Store, string) {
//	            return mystore.New(), "/site"
//	        },
//	        Seed: func(t *testing.T, s content.Store, name string, data []byte) {
//	            require.NoError(t, s.(content.WritableStore).Put(ctx, name, data))
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store and returns the root under which
	// test entries are named (entries are root + "/name"). The suite closes
	// the store when the subtest ends.
	NewStore func(t *testing.T) (content.Store, string)

	// Seed makes name readable with the given contents.
	Seed func(t *testing.T, store content.Store, name string, data []byte)
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("OpenReturnsContentAndSize", suite.testOpen)
	t.Run("OpenMissing", suite.testOpenMissing)
	t.Run("StatReportsSize", suite.testStat)
	t.Run("StatMissing", suite.testStatMissing)
	t.Run("EmptyContent", suite.testEmpty)
	t.Run("LargeContent", suite.testLarge)
	t.Run("NamesWithSpaces", suite.testNamesWithSpaces)
	t.Run("CancelledContext", suite.testCancelledContext)
	t.Run("ConcurrentReads", suite.testConcurrentReads)
}

// RunWritable adds the write-path cases for content.WritableStore backends.
func (suite *StoreTestSuite) RunWritable(t *testing.T) {
	suite.Run(t)
	t.Run("PutOverwrites", suite.testPutOverwrites)
	t.Run("Delete", suite.testDelete)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) setup(t *testing.T) (content.Store, string) {
	t.Helper()
	store, root := suite.NewStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store, root
}

func (suite *StoreTestSuite) testOpen(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/index.html"
	data := []byte("<html><body>hello</body></html>")
	suite.Seed(t, store, name, data)

	got := mustReadAll(t, store, name)
	assert.Equal(t, data, got)
}

func (suite *StoreTestSuite) testOpenMissing(t *testing.T) {
	store, root := suite.setup(t)

	_, err := store.Open(testContext(), root+"/missing.html")
	assertNotFound(t, err)
}

func (suite *StoreTestSuite) testStat(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/style.css"
	suite.Seed(t, store, name, []byte("body { color: red; }"))

	info, err := store.Stat(testContext(), name)
	require.NoError(t, err)
	assert.Equal(t, int64(20), info.Size)
}

func (suite *StoreTestSuite) testStatMissing(t *testing.T) {
	store, root := suite.setup(t)

	_, err := store.Stat(testContext(), root+"/nope.js")
	assertNotFound(t, err)
}

func (suite *StoreTestSuite) testEmpty(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/empty.txt"
	suite.Seed(t, store, name, []byte{})

	info, err := store.Stat(testContext(), name)
	require.NoError(t, err)
	assert.Zero(t, info.Size)

	assert.Empty(t, mustReadAll(t, store, name))
}

func (suite *StoreTestSuite) testLarge(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/big.bin"
	data := bytes.Repeat([]byte("0123456789abcdef"), 3<<16) // 3 MiB
	suite.Seed(t, store, name, data)

	got := mustReadAll(t, store, name)
	require.Len(t, got, len(data))
	assert.True(t, bytes.Equal(data, got))
}

func (suite *StoreTestSuite) testNamesWithSpaces(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/space in name.html"
	suite.Seed(t, store, name, []byte("spaces"))

	assert.Equal(t, []byte("spaces"), mustReadAll(t, store, name))
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/a.html"
	suite.Seed(t, store, name, []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Open(ctx, name)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Stat(ctx, name)
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *StoreTestSuite) testConcurrentReads(t *testing.T) {
	store, root := suite.setup(t)
	name := root + "/shared.html"
	data := bytes.Repeat([]byte("x"), 64<<10)
	suite.Seed(t, store, name, data)

	const readers = 16
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		go func() {
			obj, err := store.Open(testContext(), name)
			if err != nil {
				errs <- err
				return
			}
			defer obj.Body.Close()

			n, err := io.Copy(io.Discard, obj.Body)
			if err == nil && n != int64(len(data)) {
				err = io.ErrUnexpectedEOF
			}
			errs <- err
		}()
	}

	for i := 0; i < readers; i++ {
		assert.NoError(t, <-errs)
	}
}

func (suite *StoreTestSuite) testPutOverwrites(t *testing.T) {
	store, root := suite.setup(t)
	ws := mustWritable(t, store)
	name := root + "/page.html"

	require.NoError(t, ws.Put(testContext(), name, []byte("v1")))
	require.NoError(t, ws.Put(testContext(), name, []byte("version two")))

	assert.Equal(t, []byte("version two"), mustReadAll(t, store, name))
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store, root := suite.setup(t)
	ws := mustWritable(t, store)
	name := root + "/gone.html"

	require.NoError(t, ws.Put(testContext(), name, []byte("bye")))
	require.NoError(t, ws.Delete(testContext(), name))

	_, err := store.Stat(testContext(), name)
	assertNotFound(t, err)

	assertNotFound(t, ws.Delete(testContext(), name))
}
