package table

import (
	"fmt"
	"sync"

	"relic/internal/base"
	"relic/internal/buffer"
	"relic/internal/txn"
)

// Heap is an unordered collection of tuples over a doubly linked list
// of slotted pages. Deletes are two-phase: marked during the
// statement, applied at commit, rolled back on abort.
type Heap struct {
	mu          sync.Mutex
	bp          *buffer.Pool
	firstPageID base.PageID
	// Insertion hint: the page that most recently had room.
	lastTouched base.PageID
}

var _ txn.TableWriter = (*Heap)(nil)

// NewHeap creates a heap with one empty page.
func NewHeap(bp *buffer.Pool) (*Heap, error) {
	page, err := bp.NewPage()
	if err != nil {
		return nil, err
	}
	tp := tablePage{page: page}
	page.WLatch()
	tp.init(base.InvalidPageID)
	page.WUnlatch()
	id := page.ID()
	bp.UnpinPage(id, true)
	return &Heap{bp: bp, firstPageID: id, lastTouched: id}, nil
}

// OpenHeap attaches to an existing chain rooted at firstPageID.
func OpenHeap(bp *buffer.Pool, firstPageID base.PageID) *Heap {
	return &Heap{bp: bp, firstPageID: firstPageID, lastTouched: firstPageID}
}

// FirstPageID returns the head of the page chain.
func (h *Heap) FirstPageID() base.PageID { return h.firstPageID }

// InsertTuple appends the serialized tuple, searching from the insertion
// hint to the end of the chain and growing the chain when none of those
// pages has room; pages before the hint are not revisited. Returns the
// new tuple's record id.
func (h *Heap) InsertTuple(data []byte, tr *txn.Transaction) (base.RID, error) {
	if len(data) > base.PageSize-offSlots-slotSize {
		return base.RID{}, fmt.Errorf("table: tuple of %d bytes does not fit a page", len(data))
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	pageID := h.lastTouched
	for {
		page, err := h.bp.FetchPage(pageID)
		if err != nil {
			return base.RID{}, err
		}
		tp := tablePage{page: page}
		page.WLatch()
		if slot, ok := tp.insertTuple(data); ok {
			page.WUnlatch()
			h.bp.UnpinPage(pageID, true)
			h.lastTouched = pageID
			return base.NewRID(pageID, slot), nil
		}
		next := tp.next()
		if next != base.InvalidPageID {
			page.WUnlatch()
			h.bp.UnpinPage(pageID, false)
			pageID = next
			continue
		}
		// End of chain: link a fresh page.
		fresh, err := h.bp.NewPage()
		if err != nil {
			page.WUnlatch()
			h.bp.UnpinPage(pageID, false)
			return base.RID{}, err
		}
		freshTP := tablePage{page: fresh}
		fresh.WLatch()
		freshTP.init(pageID)
		tp.setNext(fresh.ID())
		page.WUnlatch()
		h.bp.UnpinPage(pageID, true)

		slot, ok := freshTP.insertTuple(data)
		fresh.WUnlatch()
		freshID := fresh.ID()
		h.bp.UnpinPage(freshID, true)
		if !ok {
			return base.RID{}, fmt.Errorf("table: tuple does not fit an empty page")
		}
		h.lastTouched = freshID
		return base.NewRID(freshID, slot), nil
	}
}

// GetTuple reads the tuple at rid.
func (h *Heap) GetTuple(rid base.RID, tr *txn.Transaction) ([]byte, error) {
	page, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	tp := tablePage{page: page}
	page.RLatch()
	data, ok := tp.getTuple(rid.Slot)
	page.RUnlatch()
	h.bp.UnpinPage(rid.PageID, false)
	if !ok {
		return nil, fmt.Errorf("%w: %s", base.ErrTupleNotFound, rid)
	}
	return data, nil
}

// MarkDelete flags the tuple deleted; space is reclaimed at commit.
func (h *Heap) MarkDelete(rid base.RID, tr *txn.Transaction) error {
	page, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := tablePage{page: page}
	page.WLatch()
	ok := tp.markDelete(rid.Slot)
	page.WUnlatch()
	h.bp.UnpinPage(rid.PageID, ok)
	if !ok {
		return fmt.Errorf("%w: %s", base.ErrTupleNotFound, rid)
	}
	return nil
}

// UpdateTuple replaces the tuple at rid and returns the old bytes for
// the caller's write record.
func (h *Heap) UpdateTuple(rid base.RID, data []byte, tr *txn.Transaction) ([]byte, error) {
	page, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	tp := tablePage{page: page}
	page.WLatch()
	old, ok := tp.getTuple(rid.Slot)
	if ok {
		ok = tp.updateTuple(rid.Slot, data)
	}
	page.WUnlatch()
	h.bp.UnpinPage(rid.PageID, ok)
	if !ok {
		return nil, fmt.Errorf("table: cannot update tuple at %s", rid)
	}
	return old, nil
}

// ApplyDelete reclaims a marked tuple's space at commit.
func (h *Heap) ApplyDelete(rid base.RID, tr *txn.Transaction) error {
	return h.applyDelete(rid)
}

func (h *Heap) applyDelete(rid base.RID) error {
	page, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := tablePage{page: page}
	page.WLatch()
	tp.applyDelete(rid.Slot)
	page.WUnlatch()
	h.bp.UnpinPage(rid.PageID, true)
	return nil
}

// UndoInsert erases an inserted tuple during abort.
func (h *Heap) UndoInsert(rid base.RID, tr *txn.Transaction) error {
	return h.applyDelete(rid)
}

// UndoDelete revives a marked tuple during abort.
func (h *Heap) UndoDelete(rid base.RID, tr *txn.Transaction) error {
	page, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := tablePage{page: page}
	page.WLatch()
	tp.rollbackDelete(rid.Slot)
	page.WUnlatch()
	h.bp.UnpinPage(rid.PageID, true)
	return nil
}

// UndoUpdate restores the previous tuple bytes during abort.
func (h *Heap) UndoUpdate(rid base.RID, data []byte, tr *txn.Transaction) error {
	page, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	tp := tablePage{page: page}
	page.WLatch()
	ok := tp.updateTuple(rid.Slot, data)
	page.WUnlatch()
	h.bp.UnpinPage(rid.PageID, ok)
	if !ok {
		return fmt.Errorf("table: cannot restore tuple at %s", rid)
	}
	return nil
}
