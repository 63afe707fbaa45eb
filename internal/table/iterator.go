package table

import (
	"relic/internal/base"
	"relic/internal/txn"
)

// Iterator walks every live tuple in the heap in page-chain order.
type Iterator struct {
	heap   *Heap
	pageID base.PageID
	slot   uint32
	tr     *txn.Transaction
	err    error
}

// Iterate returns an iterator positioned before the first tuple.
func (h *Heap) Iterate(tr *txn.Transaction) *Iterator {
	return &Iterator{heap: h, pageID: h.firstPageID, tr: tr}
}

// Next returns the next live tuple's bytes and record id; ok is false
// once the chain is exhausted.
func (it *Iterator) Next() (data []byte, rid base.RID, ok bool) {
	for it.pageID != base.InvalidPageID {
		page, err := it.heap.bp.FetchPage(it.pageID)
		if err != nil {
			it.err = err
			it.pageID = base.InvalidPageID
			return nil, base.RID{}, false
		}
		tp := tablePage{page: page}
		page.RLatch()
		for ; it.slot < tp.tupleCount(); it.slot++ {
			if tuple, live := tp.getTuple(it.slot); live {
				rid = base.NewRID(it.pageID, it.slot)
				page.RUnlatch()
				it.heap.bp.UnpinPage(it.pageID, false)
				it.slot++
				return tuple, rid, true
			}
		}
		next := tp.next()
		page.RUnlatch()
		it.heap.bp.UnpinPage(it.pageID, false)
		it.pageID = next
		it.slot = 0
	}
	return nil, base.RID{}, false
}

// Err reports a buffer pool failure that ended iteration early.
func (it *Iterator) Err() error { return it.err }
