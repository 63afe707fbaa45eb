package index

import (
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relic/internal/base"
	"relic/internal/buffer"
	"relic/internal/storage"
)

// newTestPool builds a pool with the header page in place, the way the
// engine does on open.
func newTestPool(t *testing.T, frames int) *buffer.Pool {
	t.Helper()
	disk, err := storage.NewFileDiskManager(filepath.Join(t.TempDir(), "index.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	pool := buffer.NewPool(frames, disk, nil)
	header, err := pool.NewPage()
	require.NoError(t, err)
	require.Equal(t, base.HeaderPageID, header.ID())
	pool.UnpinPage(header.ID(), true)
	return pool
}

func newTestTree(t *testing.T, pool *buffer.Pool, leafMax, internalMax int32) *BPlusTree {
	t.Helper()
	tree, err := NewBPlusTree("idx_test", pool, CompareBytes, 8, leafMax, internalMax)
	require.NoError(t, err)
	return tree
}

func rid(i int64) base.RID { return base.NewRID(base.PageID(i), uint32(i)) }

func TestTreeRejectsBadKeyWidth(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 16)
	_, err := NewBPlusTree("bad", pool, CompareBytes, 7, 0, 0)
	assert.Error(t, err)
}

func TestTreeInsertAndGet(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 32)
	tree := newTestTree(t, pool, 4, 4)

	for i := int64(1); i <= 5; i++ {
		ok, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
		assert.True(t, ok, "insert %d", i)
	}

	for i := int64(1); i <= 5; i++ {
		got, found, err := tree.GetValue(Int64Key(i), nil)
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, rid(i), got)
	}
	_, found, err := tree.GetValue(Int64Key(42), nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTreeDuplicateInsertReturnsFalse(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 32)
	tree := newTestTree(t, pool, 4, 4)

	ok, err := tree.Insert(Int64Key(7), rid(7), nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(Int64Key(7), rid(99), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// The original mapping is untouched.
	got, found, err := tree.GetValue(Int64Key(7), nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rid(7), got)
}

func TestTreeSplitShape(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 32)
	tree := newTestTree(t, pool, 4, 4)

	for i := int64(1); i <= 5; i++ {
		_, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
	}

	// Exactly one split: an internal root over leaves [1,2] and [3,4,5].
	rootPage, err := pool.FetchPage(tree.root())
	require.NoError(t, err)
	root := asInternal(rootPage, tree.cmp)
	require.False(t, root.isLeaf())
	require.Equal(t, int32(2), root.size())

	left, err := pool.FetchPage(root.childAt(0))
	require.NoError(t, err)
	leftLeaf := asLeaf(left, tree.cmp)
	assert.True(t, leftLeaf.isLeaf())
	assert.Equal(t, int32(2), leftLeaf.size())
	assert.Equal(t, Int64Key(1), []byte(leftLeaf.keyAt(0)))

	right, err := pool.FetchPage(root.childAt(1))
	require.NoError(t, err)
	rightLeaf := asLeaf(right, tree.cmp)
	assert.Equal(t, int32(3), rightLeaf.size())
	assert.Equal(t, Int64Key(3), []byte(rightLeaf.keyAt(0)))

	// Leaf chain: left -> right.
	assert.Equal(t, right.ID(), leftLeaf.next())
	assert.Equal(t, base.InvalidPageID, rightLeaf.next())

	pool.UnpinPage(left.ID(), false)
	pool.UnpinPage(right.ID(), false)
	pool.UnpinPage(rootPage.ID(), false)
}

func TestTreeIterateFromKey(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 32)
	tree := newTestTree(t, pool, 4, 4)

	for i := int64(1); i <= 5; i++ {
		_, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
	}

	it, err := tree.BeginAt(Int64Key(2))
	require.NoError(t, err)
	var got []base.RID
	for {
		_, r, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, r)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []base.RID{rid(2), rid(3), rid(4), rid(5)}, got)
}

func TestTreeDeleteRedistributeAndCoalesce(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 32)
	tree := newTestTree(t, pool, 4, 4)

	for i := int64(1); i <= 5; i++ {
		_, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
	}

	// [1,2] | [3,4,5]: removing 1 borrows 3 from the right sibling.
	require.NoError(t, tree.Remove(Int64Key(1), nil))
	assertKeys(t, tree, []int64{2, 3, 4, 5})

	// [2,3] | [4,5]: removing 2 merges and collapses the root.
	require.NoError(t, tree.Remove(Int64Key(2), nil))
	assertKeys(t, tree, []int64{3, 4, 5})

	rootPage, err := pool.FetchPage(tree.root())
	require.NoError(t, err)
	assert.True(t, (node{page: rootPage}).isLeaf())
	pool.UnpinPage(rootPage.ID(), false)

	// Deleting an absent key is a silent no-op.
	require.NoError(t, tree.Remove(Int64Key(77), nil))
	assertKeys(t, tree, []int64{3, 4, 5})

	// Drain the tree completely.
	for _, k := range []int64{3, 4, 5} {
		require.NoError(t, tree.Remove(Int64Key(k), nil))
	}
	assert.True(t, tree.IsEmpty())
	_, found, err := tree.GetValue(Int64Key(3), nil)
	require.NoError(t, err)
	assert.False(t, found)

	// The tree grows back after being emptied.
	ok, err := tree.Insert(Int64Key(9), rid(9), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assertKeys(t, tree, []int64{9})
}

func assertKeys(t *testing.T, tree *BPlusTree, want []int64) {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	var got []int64
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, decodeKey(k))
	}
	require.NoError(t, it.Err())
	wantKeys := make([]int64, len(want))
	copy(wantKeys, want)
	assert.Equal(t, wantKeys, got)
}

func decodeKey(k []byte) int64 {
	var v uint64
	for _, b := range k {
		v = v<<8 | uint64(b)
	}
	return int64(v ^ 1<<63)
}

func TestTreeScaleSequentialThenRandomDeletes(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 128)
	tree := newTestTree(t, pool, 8, 8)

	const n = 500
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// In-order traversal yields every key ascending.
	it, err := tree.Begin()
	require.NoError(t, err)
	prev := int64(-1)
	count := 0
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		v := decodeKey(k)
		require.Greater(t, v, prev)
		prev = v
		count++
	}
	require.NoError(t, it.Err())
	require.Equal(t, n, count)

	// Remove a random half, keep the rest reachable.
	rng := rand.New(rand.NewSource(445))
	gone := make(map[int64]bool)
	for _, v := range rng.Perm(n)[:n/2] {
		require.NoError(t, tree.Remove(Int64Key(int64(v)), nil))
		gone[int64(v)] = true
	}
	for i := int64(0); i < n; i++ {
		_, found, err := tree.GetValue(Int64Key(i), nil)
		require.NoError(t, err)
		assert.Equal(t, !gone[i], found, "key %d", i)
	}
}

func TestTreeNodeOccupancyInvariant(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 128)
	tree := newTestTree(t, pool, 6, 6)

	for i := int64(0); i < 300; i++ {
		_, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
	}
	checkOccupancy(t, tree, tree.root(), true)
}

// checkOccupancy walks the tree verifying every non-root node holds
// [minSize, maxSize-1] entries and internal key ranges are ordered.
func checkOccupancy(t *testing.T, tree *BPlusTree, id base.PageID, isRoot bool) {
	t.Helper()
	page, err := tree.bp.FetchPage(id)
	require.NoError(t, err)
	defer tree.bp.UnpinPage(id, false)

	n := node{page: page}
	if n.isLeaf() {
		leaf := asLeaf(page, tree.cmp)
		if !isRoot {
			assert.GreaterOrEqual(t, leaf.size(), leaf.minSize())
		}
		assert.Less(t, leaf.size(), leaf.maxSize())
		for i := int32(1); i < leaf.size(); i++ {
			assert.Negative(t, tree.cmp(leaf.keyAt(i-1), leaf.keyAt(i)))
		}
		return
	}
	in := asInternal(page, tree.cmp)
	if !isRoot {
		assert.GreaterOrEqual(t, in.size(), in.minSize())
	}
	assert.Less(t, in.size(), in.maxSize())
	for i := int32(2); i < in.size(); i++ {
		assert.Negative(t, tree.cmp(in.keyAt(i-1), in.keyAt(i)))
	}
	for i := int32(0); i < in.size(); i++ {
		checkOccupancy(t, tree, in.childAt(i), false)
	}
}

func TestTreePersistsRootAcrossReopen(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 64)
	tree := newTestTree(t, pool, 0, 0)
	for i := int64(0); i < 50; i++ {
		_, err := tree.Insert(Int64Key(i), rid(i), nil)
		require.NoError(t, err)
	}

	// A second handle on the same pool finds the root via the header
	// page record.
	reopened, err := NewBPlusTree("idx_test", pool, CompareBytes, 8, 0, 0)
	require.NoError(t, err)
	for i := int64(0); i < 50; i++ {
		_, found, err := reopened.GetValue(Int64Key(i), nil)
		require.NoError(t, err)
		assert.True(t, found, "key %d", i)
	}
}

func TestTreeConcurrentInserts(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 128)
	tree := newTestTree(t, pool, 8, 8)

	const (
		workers = 4
		perW    = 200
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				k := int64(w*perW + i)
				_, err := tree.Insert(Int64Key(k), rid(k), nil)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	for k := int64(0); k < workers*perW; k++ {
		got, found, err := tree.GetValue(Int64Key(k), nil)
		require.NoError(t, err)
		require.True(t, found, "key %d", k)
		assert.Equal(t, rid(k), got)
	}
	checkOccupancy(t, tree, tree.root(), true)
}

func TestTreeConcurrentMixed(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 128)
	tree := newTestTree(t, pool, 8, 8)

	// Seed the even keys, then concurrently delete half of them while
	// inserting the odds.
	for k := int64(0); k < 400; k += 2 {
		_, err := tree.Insert(Int64Key(k), rid(k), nil)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for k := int64(0); k < 400; k += 4 {
			assert.NoError(t, tree.Remove(Int64Key(k), nil))
		}
	}()
	go func() {
		defer wg.Done()
		for k := int64(1); k < 400; k += 2 {
			_, err := tree.Insert(Int64Key(k), rid(k), nil)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	for k := int64(0); k < 400; k++ {
		_, found, err := tree.GetValue(Int64Key(k), nil)
		require.NoError(t, err)
		switch {
		case k%2 == 1:
			assert.True(t, found, "odd key %d", k)
		case k%4 == 0:
			assert.False(t, found, "deleted key %d", k)
		default:
			assert.True(t, found, "even key %d", k)
		}
	}
}
