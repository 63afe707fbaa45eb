package index

import (
	"relic/internal/base"
)

// Iterator walks the leaf chain in key order, pinning and read-latching
// one leaf at a time. Callers must Close an iterator they abandon
// early; a drained iterator has already released everything.
type Iterator struct {
	tree *BPlusTree
	page *base.Page // nil once exhausted
	idx  int32
	err  error
}

// Begin positions an iterator at the smallest key.
func (t *BPlusTree) Begin() (*Iterator, error) {
	page, err := t.findLeafUnlatched(nil, true, opSearch)
	if err != nil {
		return nil, err
	}
	return &Iterator{tree: t, page: page}, nil
}

// BeginAt positions an iterator at the first key >= key.
func (t *BPlusTree) BeginAt(key []byte) (*Iterator, error) {
	page, err := t.findLeafUnlatched(key, false, opSearch)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, page: page}
	if page != nil {
		it.idx = asLeaf(page, t.cmp).keyIndex(key)
	}
	return it, nil
}

// Next returns the current entry and advances. The returned key is a
// copy and stays valid after the iterator moves on. ok is false once
// the chain is exhausted.
func (it *Iterator) Next() (key []byte, rid base.RID, ok bool) {
	for it.page != nil {
		leaf := asLeaf(it.page, it.tree.cmp)
		if it.idx < leaf.size() {
			key = append([]byte(nil), leaf.keyAt(it.idx)...)
			rid = leaf.ridAt(it.idx)
			it.idx++
			return key, rid, true
		}
		next := leaf.next()
		it.release()
		if next == base.InvalidPageID {
			break
		}
		page, err := it.tree.bp.FetchPage(next)
		if err != nil {
			it.err = err
			break
		}
		page.RLatch()
		it.page = page
		it.idx = 0
	}
	return nil, base.RID{}, false
}

// Err reports a buffer pool failure that ended iteration early.
func (it *Iterator) Err() error { return it.err }

// Close releases the current leaf, if any.
func (it *Iterator) Close() {
	it.release()
}

func (it *Iterator) release() {
	if it.page == nil {
		return
	}
	id := it.page.ID()
	it.page.RUnlatch()
	it.tree.bp.UnpinPage(id, false)
	it.page = nil
}
