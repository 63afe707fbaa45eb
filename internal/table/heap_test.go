package table

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relic/internal/base"
	"relic/internal/buffer"
	"relic/internal/storage"
)

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	disk, err := storage.NewFileDiskManager(filepath.Join(t.TempDir(), "heap.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	pool := buffer.NewPool(16, disk, nil)
	h, err := NewHeap(pool)
	require.NoError(t, err)
	return h
}

func testSchema() *Schema {
	return NewSchema(
		Column{Name: "name", Type: VarcharType},
		Column{Name: "age", Type: IntType},
	)
}

func row(name string, age int64) *Tuple {
	return NewTuple(StringValue(name), IntValue(age))
}

func TestTupleSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	s := testSchema()
	in := row("sam", 52)
	data, err := in.Serialize(s)
	require.NoError(t, err)

	out, err := DeserializeTuple(data, s, base.NewRID(3, 7))
	require.NoError(t, err)
	assert.Equal(t, in.Values, out.Values)
	assert.Equal(t, base.NewRID(3, 7), out.RID)
}

func TestTupleSerializeTypeMismatch(t *testing.T) {
	t.Parallel()

	s := testSchema()
	bad := NewTuple(IntValue(1), IntValue(2))
	_, err := bad.Serialize(s)
	assert.Error(t, err)
}

func TestHeapInsertAndGet(t *testing.T) {
	t.Parallel()

	h := newTestHeap(t)
	s := testSchema()

	data, err := row("alice", 30).Serialize(s)
	require.NoError(t, err)
	rid, err := h.InsertTuple(data, nil)
	require.NoError(t, err)

	got, err := h.GetTuple(rid, nil)
	require.NoError(t, err)
	tuple, err := DeserializeTuple(got, s, rid)
	require.NoError(t, err)
	assert.Equal(t, "alice", tuple.Values[0].Str)
	assert.Equal(t, int64(30), tuple.Values[1].Int)

	_, err = h.GetTuple(base.NewRID(rid.PageID, 99), nil)
	assert.ErrorIs(t, err, base.ErrTupleNotFound)
}

func TestHeapDeleteLifecycle(t *testing.T) {
	t.Parallel()

	h := newTestHeap(t)
	s := testSchema()
	data, err := row("bob", 41).Serialize(s)
	require.NoError(t, err)
	rid, err := h.InsertTuple(data, nil)
	require.NoError(t, err)

	// Marked deletes hide the tuple but keep its slot.
	require.NoError(t, h.MarkDelete(rid, nil))
	_, err = h.GetTuple(rid, nil)
	assert.ErrorIs(t, err, base.ErrTupleNotFound)

	// Rollback revives it.
	require.NoError(t, h.UndoDelete(rid, nil))
	_, err = h.GetTuple(rid, nil)
	require.NoError(t, err)

	// Apply reclaims for good.
	require.NoError(t, h.MarkDelete(rid, nil))
	require.NoError(t, h.ApplyDelete(rid, nil))
	_, err = h.GetTuple(rid, nil)
	assert.ErrorIs(t, err, base.ErrTupleNotFound)

	// Double-marking fails.
	assert.Error(t, h.MarkDelete(rid, nil))
}

func TestHeapUpdateInPlace(t *testing.T) {
	t.Parallel()

	h := newTestHeap(t)
	s := testSchema()

	d1, err := row("carol", 25).Serialize(s)
	require.NoError(t, err)
	d2, err := row("dave", 26).Serialize(s)
	require.NoError(t, err)
	rid1, err := h.InsertTuple(d1, nil)
	require.NoError(t, err)
	rid2, err := h.InsertTuple(d2, nil)
	require.NoError(t, err)

	// Grow the first tuple; the second must survive the re-pack.
	grown, err := row("carolina-maria", 25).Serialize(s)
	require.NoError(t, err)
	old, err := h.UpdateTuple(rid1, grown, nil)
	require.NoError(t, err)
	assert.Equal(t, d1, old)

	got, err := h.GetTuple(rid1, nil)
	require.NoError(t, err)
	assert.Equal(t, grown, got)
	got2, err := h.GetTuple(rid2, nil)
	require.NoError(t, err)
	assert.Equal(t, d2, got2)

	// UndoUpdate restores the before image.
	require.NoError(t, h.UndoUpdate(rid1, old, nil))
	got, err = h.GetTuple(rid1, nil)
	require.NoError(t, err)
	assert.Equal(t, d1, got)
}

func TestHeapGrowsAcrossPages(t *testing.T) {
	t.Parallel()

	h := newTestHeap(t)
	s := testSchema()

	const n = 400
	rids := make([]base.RID, 0, n)
	for i := 0; i < n; i++ {
		data, err := row(fmt.Sprintf("user-%04d-padding-padding-padding", i), int64(i)).Serialize(s)
		require.NoError(t, err)
		rid, err := h.InsertTuple(data, nil)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	// More than one page got used.
	pages := map[base.PageID]bool{}
	for _, rid := range rids {
		pages[rid.PageID] = true
	}
	assert.Greater(t, len(pages), 1)

	// The iterator sees every row exactly once, in chain order.
	it := h.Iterate(nil)
	count := 0
	for {
		data, rid, ok := it.Next()
		if !ok {
			break
		}
		tuple, err := DeserializeTuple(data, s, rid)
		require.NoError(t, err)
		assert.Equal(t, int64(count), tuple.Values[1].Int)
		count++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, n, count)
}

func TestHeapIteratorSkipsDeleted(t *testing.T) {
	t.Parallel()

	h := newTestHeap(t)
	s := testSchema()

	var rids []base.RID
	for i := int64(0); i < 10; i++ {
		data, err := row("x", i).Serialize(s)
		require.NoError(t, err)
		rid, err := h.InsertTuple(data, nil)
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	for i := 0; i < 10; i += 2 {
		require.NoError(t, h.MarkDelete(rids[i], nil))
	}

	it := h.Iterate(nil)
	var ages []int64
	for {
		data, rid, ok := it.Next()
		if !ok {
			break
		}
		tuple, err := DeserializeTuple(data, s, rid)
		require.NoError(t, err)
		ages = append(ages, tuple.Values[1].Int)
	}
	assert.Equal(t, []int64{1, 3, 5, 7, 9}, ages)
}

func TestKeyFromTupleOrdering(t *testing.T) {
	t.Parallel()

	lo := row("a", -5).KeyFromTuple([]int{1}, 8)
	hi := row("a", 17).KeyFromTuple([]int{1}, 8)
	assert.Less(t, string(lo), string(hi))
}
