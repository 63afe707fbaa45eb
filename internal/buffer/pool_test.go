package buffer

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relic/internal/base"
	"relic/internal/storage"
)

func newTestPool(t *testing.T, frames int) *Pool {
	t.Helper()
	disk, err := storage.NewFileDiskManager(filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return NewPool(frames, disk, nil)
}

func TestPoolBinaryData(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 10)

	page0, err := pool.NewPage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(0), page0.ID())

	// Random bytes incl. zero bytes in the middle and at the end.
	rng := rand.New(rand.NewSource(15445))
	var data [base.PageSize]byte
	rng.Read(data[:])
	data[base.PageSize/2] = 0
	data[base.PageSize-1] = 0
	copy(page0.Data()[:], data[:])

	// Fill the pool.
	for i := 1; i < 10; i++ {
		p, err := pool.NewPage()
		require.NoError(t, err)
		assert.Equal(t, base.PageID(i), p.ID())
	}

	// Everything pinned: no more pages.
	for i := 0; i < 10; i++ {
		_, err := pool.NewPage()
		assert.ErrorIs(t, err, base.ErrOutOfMemory)
	}

	// Unpin 0..4 dirty, then five new pages push them out.
	for i := 0; i < 5; i++ {
		assert.True(t, pool.UnpinPage(base.PageID(i), true))
	}
	for i := 0; i < 5; i++ {
		p, err := pool.NewPage()
		require.NoError(t, err)
		pool.UnpinPage(p.ID(), false)
	}

	// Page 0 was evicted dirty and written back; its bytes survive.
	page0, err = pool.FetchPage(0)
	require.NoError(t, err)
	assert.Equal(t, data[:], page0.Data()[:])
	assert.True(t, pool.UnpinPage(0, true))
}

func TestPoolSample(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 10)

	page0, err := pool.NewPage()
	require.NoError(t, err)
	assert.Equal(t, base.PageID(0), page0.ID())
	copy(page0.Data()[:], "Hello")

	for i := 1; i < 10; i++ {
		_, err := pool.NewPage()
		require.NoError(t, err)
	}
	_, err = pool.NewPage()
	assert.ErrorIs(t, err, base.ErrOutOfMemory)

	for i := 0; i < 5; i++ {
		assert.True(t, pool.UnpinPage(base.PageID(i), true))
	}
	for i := 0; i < 4; i++ {
		_, err := pool.NewPage()
		require.NoError(t, err)
	}

	// One unpinned frame remains, so page 0 comes back from disk.
	page0, err = pool.FetchPage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), page0.Data()[:5])

	assert.True(t, pool.UnpinPage(0, true))
	_, err = pool.NewPage()
	require.NoError(t, err)
}

func TestPoolUnpinIdempotentOnAbsent(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 2)
	assert.True(t, pool.UnpinPage(99, false))
}

func TestPoolFlushPage(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 2)

	assert.False(t, pool.FlushPage(base.InvalidPageID))
	assert.False(t, pool.FlushPage(7))

	p, err := pool.NewPage()
	require.NoError(t, err)
	copy(p.Data()[:], "dirty bytes")
	pool.UnpinPage(p.ID(), true)
	assert.True(t, pool.FlushPage(p.ID()))
	assert.False(t, p.IsDirty())
}

func TestPoolDeletePage(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 2)

	p, err := pool.NewPage()
	require.NoError(t, err)
	id := p.ID()

	// Pinned pages cannot be deleted.
	assert.False(t, pool.DeletePage(id))

	pool.UnpinPage(id, false)
	assert.True(t, pool.DeletePage(id))

	// Deleting a non-resident page succeeds.
	assert.True(t, pool.DeletePage(id))

	// The freed frame is reusable.
	_, err = pool.NewPage()
	require.NoError(t, err)
	_, err = pool.NewPage()
	require.NoError(t, err)
}

func TestPoolFetchEvictRoundTrip(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 3)

	p, err := pool.NewPage()
	require.NoError(t, err)
	id := p.ID()
	copy(p.Data()[:], "survives eviction")
	pool.UnpinPage(id, true)

	// Force id out of the pool.
	var held []base.PageID
	for i := 0; i < 3; i++ {
		q, err := pool.NewPage()
		require.NoError(t, err)
		held = append(held, q.ID())
	}
	for _, h := range held {
		pool.UnpinPage(h, false)
	}

	p, err = pool.FetchPage(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("survives eviction"), p.Data()[:17])
	assert.Equal(t, 1, p.PinCount())

	// Fetching again only bumps the pin count.
	again, err := pool.FetchPage(id)
	require.NoError(t, err)
	assert.Same(t, p, again)
	assert.Equal(t, 2, p.PinCount())
	pool.UnpinPage(id, false)
	pool.UnpinPage(id, false)
	assert.Equal(t, 0, p.PinCount())
}

func TestPoolFlushAllClearsDirty(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 4)
	var pages []*base.Page
	for i := 0; i < 4; i++ {
		p, err := pool.NewPage()
		require.NoError(t, err)
		copy(p.Data()[:], "x")
		pool.UnpinPage(p.ID(), true)
		pages = append(pages, p)
	}
	pool.FlushAll()
	for _, p := range pages {
		assert.False(t, p.IsDirty())
	}
}
