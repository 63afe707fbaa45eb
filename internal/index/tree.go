package index

import (
	"fmt"
	"sync"
	"sync/atomic"

	"relic/internal/base"
	"relic/internal/buffer"
	"relic/internal/txn"
)

// opType selects the traversal discipline.
//
// Search takes read latches everywhere. Insert and remove are
// pessimistic: write latches all the way down, releasing safe
// ancestors. Optimistic assumes the leaf will not split or merge: read
// latches on internal nodes, a write latch on the leaf, with a
// pessimistic restart when the leaf turns out unsafe.
type opType int

const (
	opSearch opType = iota
	opInsert
	opRemove
	opOptimistic
)

func (op opType) readLatches() bool { return op == opSearch || op == opOptimistic }

// BPlusTree is a concurrent ordered map from fixed-width keys to RIDs,
// backed by pages in the buffer pool. Traversals use latch crabbing;
// the root mutex serializes root pointer changes among writers.
type BPlusTree struct {
	name    string
	bp      *buffer.Pool
	cmp     Comparator
	keySize int

	leafMax     int32
	internalMax int32

	rootMu sync.Mutex
	rootID atomic.Int32
}

// NewBPlusTree opens the tree named name, loading its root from the
// header page if it was created before. keySize must be one of
// KeyWidths. Zero max sizes select the page capacity.
func NewBPlusTree(name string, bp *buffer.Pool, cmp Comparator, keySize int, leafMax, internalMax int32) (*BPlusTree, error) {
	ok := false
	for _, w := range KeyWidths {
		if keySize == w {
			ok = true
		}
	}
	if !ok {
		return nil, fmt.Errorf("index: unsupported key width %d", keySize)
	}
	if leafMax == 0 {
		leafMax = leafCapacity(keySize)
	}
	if internalMax == 0 {
		internalMax = internalCapacity(keySize)
	}
	t := &BPlusTree{
		name:        name,
		bp:          bp,
		cmp:         cmp,
		keySize:     keySize,
		leafMax:     leafMax,
		internalMax: internalMax,
	}
	t.rootID.Store(int32(base.InvalidPageID))
	if root, found := rootFromHeader(bp, name); found {
		t.rootID.Store(int32(root))
	}
	return t, nil
}

// Name returns the index name used in the header page.
func (t *BPlusTree) Name() string { return t.name }

// KeySize returns the fixed key width.
func (t *BPlusTree) KeySize() int { return t.keySize }

func (t *BPlusTree) root() base.PageID { return base.PageID(t.rootID.Load()) }

// IsEmpty reports whether the tree has no root.
func (t *BPlusTree) IsEmpty() bool { return t.root() == base.InvalidPageID }

// updateRootRecord writes the current root id into the header page.
func (t *BPlusTree) updateRootRecord(insert bool) {
	page, err := t.bp.FetchPage(base.HeaderPageID)
	if err != nil {
		return
	}
	h := headerPage{page: page}
	page.WLatch()
	if insert && h.find(t.name) < 0 {
		h.insertRecord(t.name, t.root())
	} else {
		h.updateRecord(t.name, t.root())
	}
	page.WUnlatch()
	t.bp.UnpinPage(base.HeaderPageID, true)
}

// GetValue point-looks-up key. The traversal read-crabs when a
// transaction is supplied and falls back to plain pin-chasing when it
// is nil.
func (t *BPlusTree) GetValue(key []byte, tr *txn.Transaction) (base.RID, bool, error) {
	if t.IsEmpty() {
		return base.RID{}, false, nil
	}
	page, err := t.findLeaf(key, false, opSearch, tr)
	if err != nil {
		return base.RID{}, false, err
	}
	if page == nil {
		return base.RID{}, false, nil
	}
	leaf := asLeaf(page, t.cmp)
	rid, found := leaf.lookup(key)
	if tr == nil {
		page.RUnlatch()
		t.bp.UnpinPage(page.ID(), false)
	} else {
		t.releaseAll(true, tr)
	}
	return rid, found, nil
}

// Insert adds a unique key. Returns false when the key already exists.
// The operation runs optimistically and restarts pessimistically when
// the target leaf could split.
func (t *BPlusTree) Insert(key []byte, rid base.RID, tr *txn.Transaction) (bool, error) {
	if tr == nil {
		tr = scratchTxn()
	}
	if t.IsEmpty() {
		t.rootMu.Lock()
		if t.IsEmpty() {
			err := t.startNewTree(key, rid)
			t.rootMu.Unlock()
			return err == nil, err
		}
		t.rootMu.Unlock()
	}
	return t.insertIntoLeaf(key, rid, tr, opOptimistic)
}

// startNewTree allocates the first leaf as root. Caller holds rootMu.
func (t *BPlusTree) startNewTree(key []byte, rid base.RID) error {
	page, err := t.bp.NewPage()
	if err != nil {
		return err
	}
	leaf := asLeaf(page, t.cmp)
	leaf.init(page.ID(), base.InvalidPageID, t.keySize, t.leafMax)
	t.rootID.Store(int32(page.ID()))
	t.updateRootRecord(true)
	leaf.insert(key, rid)
	t.bp.UnpinPage(page.ID(), true)
	return nil
}

func (t *BPlusTree) insertIntoLeaf(key []byte, rid base.RID, tr *txn.Transaction, op opType) (bool, error) {
	page, err := t.findLeaf(key, false, op, tr)
	if err != nil {
		return false, err
	}
	if page == nil {
		// Tree emptied out from under us; start over.
		return t.Insert(key, rid, tr)
	}

	leaf := asLeaf(page, t.cmp)
	inserted := false
	switch op {
	case opOptimistic:
		if _, exists := leaf.lookup(key); !exists {
			if leaf.size()+1 < leaf.maxSize() {
				leaf.insert(key, rid)
				inserted = true
			} else {
				// Leaf would fill up; restart with full write latching.
				t.finish(tr)
				return t.insertIntoLeaf(key, rid, tr, opInsert)
			}
		}
	case opInsert:
		if _, exists := leaf.lookup(key); !exists {
			if leaf.insert(key, rid) >= leaf.maxSize() {
				split, err := t.splitLeaf(leaf)
				if err != nil {
					t.finish(tr)
					return false, err
				}
				if err := t.insertIntoParent(leaf.node, split.keyAt(0), split.node, tr); err != nil {
					t.finish(tr)
					return false, err
				}
			}
			inserted = true
		}
	default:
		panic("index: bad insert mode")
	}
	t.finish(tr)
	return inserted, nil
}

// scratchTxn carries crabbing state for callers that mutate the tree
// outside any transaction (index backfill, tests).
func scratchTxn() *txn.Transaction {
	return txn.NewTransaction(-1, txn.RepeatableRead)
}

// finish releases everything a write traversal holds.
func (t *BPlusTree) finish(tr *txn.Transaction) {
	t.releaseAll(false, tr)
	if tr.RootLocked() {
		t.rootMu.Unlock()
		tr.SetRootLocked(false)
	}
}

// splitLeaf allocates a sibling and moves the upper half into it.
func (t *BPlusTree) splitLeaf(full leafNode) (leafNode, error) {
	page, err := t.bp.NewPage()
	if err != nil {
		return leafNode{}, err
	}
	split := asLeaf(page, t.cmp)
	split.init(page.ID(), full.parent(), t.keySize, t.leafMax)
	full.moveHalfTo(split)
	return split, nil
}

// splitInternal allocates a sibling and moves the upper half into it,
// reparenting the moved children.
func (t *BPlusTree) splitInternal(full internalNode) (internalNode, error) {
	page, err := t.bp.NewPage()
	if err != nil {
		return internalNode{}, err
	}
	split := asInternal(page, t.cmp)
	split.init(page.ID(), full.parent(), t.keySize, t.internalMax)
	if err := full.moveHalfTo(split, t.bp); err != nil {
		return internalNode{}, err
	}
	return split, nil
}

// insertIntoParent pushes the separator for a fresh split up the tree,
// splitting parents recursively as needed. The split page is unpinned
// here; the old node stays pinned by the caller.
func (t *BPlusTree) insertIntoParent(old node, key []byte, split node, tr *txn.Transaction) error {
	if old.isRoot() {
		rootPage, err := t.bp.NewPage()
		if err != nil {
			return err
		}
		newRoot := asInternal(rootPage, t.cmp)
		newRoot.init(rootPage.ID(), base.InvalidPageID, t.keySize, t.internalMax)
		newRoot.populateNewRoot(old.id(), key, split.id())
		t.rootID.Store(int32(rootPage.ID()))
		old.setParent(rootPage.ID())
		split.setParent(rootPage.ID())
		t.updateRootRecord(false)
		t.bp.UnpinPage(rootPage.ID(), true)
		t.bp.UnpinPage(split.id(), true)
		return nil
	}

	parentID := old.parent()
	parentPage, err := t.bp.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := asInternal(parentPage, t.cmp)
	split.setParent(parentID)
	t.bp.UnpinPage(split.id(), true)

	if parent.insertNodeAfter(old.id(), key, split.id()) >= parent.maxSize() {
		parentSplit, err := t.splitInternal(parent)
		if err != nil {
			t.bp.UnpinPage(parentID, true)
			return err
		}
		if err := t.insertIntoParent(parent.node, parentSplit.keyAt(0), parentSplit.node, tr); err != nil {
			t.bp.UnpinPage(parentID, true)
			return err
		}
	}
	t.bp.UnpinPage(parentID, true)
	return nil
}

// Remove deletes key if present; deleting an absent key is a no-op.
// Runs optimistically first, restarting pessimistically when the leaf
// could underflow.
func (t *BPlusTree) Remove(key []byte, tr *txn.Transaction) error {
	if tr == nil {
		tr = scratchTxn()
	}
	return t.remove(key, tr, opOptimistic)
}

func (t *BPlusTree) remove(key []byte, tr *txn.Transaction, op opType) error {
	if t.IsEmpty() {
		return nil
	}
	page, err := t.findLeaf(key, false, op, tr)
	if err != nil {
		return err
	}
	if page == nil {
		return nil
	}
	leaf := asLeaf(page, t.cmp)
	switch op {
	case opOptimistic:
		if _, exists := leaf.lookup(key); exists {
			if leaf.size()-1 >= leaf.minSize() {
				leaf.removeAndDeleteRecord(key)
			} else {
				// Leaf would underflow; restart with full write latching.
				t.finish(tr)
				return t.remove(key, tr, opRemove)
			}
		}
	case opRemove:
		if leaf.removeAndDeleteRecord(key) < leaf.minSize() {
			if err := t.coalesceOrRedistribute(leaf, tr); err != nil {
				t.finish(tr)
				return err
			}
		}
	default:
		panic("index: bad remove mode")
	}
	t.finish(tr)
	return nil
}

// coalesceOrRedistribute restores the minimum-occupancy invariant for
// an underflowing node by merging with or borrowing from a sibling,
// recursing up when the parent underflows in turn.
func (t *BPlusTree) coalesceOrRedistribute(under treeNode, tr *txn.Transaction) error {
	n := under.view()
	if n.isRoot() {
		return t.adjustRoot(n, tr)
	}

	parentID := n.parent()
	parentPage, err := t.bp.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := asInternal(parentPage, t.cmp)
	childIdx := parent.valueIndex(n.id())
	if childIdx < 0 {
		panic("index: underflowing node missing from parent")
	}
	siblingIdx := childIdx - 1
	if childIdx == 0 {
		siblingIdx = 1
	}
	siblingID := parent.childAt(siblingIdx)
	siblingPage, err := t.bp.FetchPage(siblingID)
	if err != nil {
		t.bp.UnpinPage(parentID, false)
		return err
	}
	siblingPage.WLatch()
	tr.AddIntoPageSet(siblingPage)
	sibling := t.asNode(siblingPage)

	if sibling.view().size()+n.size() < n.maxSize() {
		// Merge the right node of the pair into the left one.
		left, right, sepIdx := sibling, under, childIdx
		if childIdx == 0 {
			left, right, sepIdx = under, sibling, siblingIdx
		}
		if err := right.moveAllTo(left, parent.keyAt(sepIdx), t.bp); err != nil {
			t.bp.UnpinPage(parentID, true)
			return err
		}
		tr.AddIntoDeletedPageSet(right.view().id())
		parent.remove(sepIdx)
		if parent.size() < parent.minSize() {
			if err := t.coalesceOrRedistribute(parent, tr); err != nil {
				t.bp.UnpinPage(parentID, true)
				return err
			}
		}
		t.bp.UnpinPage(parentID, true)
		return nil
	}

	// Borrow one entry across the separator.
	if childIdx == 0 {
		if err := sibling.moveFirstToEndOf(under, parent.keyAt(1), t.bp); err != nil {
			t.bp.UnpinPage(parentID, true)
			return err
		}
		parent.setKeyAt(1, sibling.keyAt(0))
	} else {
		if err := sibling.moveLastToFrontOf(under, parent.keyAt(childIdx), t.bp); err != nil {
			t.bp.UnpinPage(parentID, true)
			return err
		}
		parent.setKeyAt(childIdx, under.keyAt(0))
	}
	t.bp.UnpinPage(parentID, true)
	return nil
}

// adjustRoot handles underflow at the root: an empty leaf root empties
// the tree; an internal root with one child promotes that child.
func (t *BPlusTree) adjustRoot(oldRoot node, tr *txn.Transaction) error {
	oldRootID := oldRoot.id()
	if oldRoot.isLeaf() {
		if oldRoot.size() > 0 {
			return nil
		}
		tr.AddIntoDeletedPageSet(oldRootID)
		t.rootID.Store(int32(base.InvalidPageID))
		t.updateRootRecord(false)
		return nil
	}
	if oldRoot.size() > 1 {
		return nil
	}
	childID := asInternal(oldRoot.page, t.cmp).childAt(0)
	childPage, err := t.bp.FetchPage(childID)
	if err != nil {
		return err
	}
	node{page: childPage}.setParent(base.InvalidPageID)
	t.rootID.Store(int32(childID))
	t.updateRootRecord(false)
	tr.AddIntoDeletedPageSet(oldRootID)
	t.bp.UnpinPage(childID, true)
	return nil
}

// asNode wraps a page in the view matching its node type.
func (t *BPlusTree) asNode(p *base.Page) treeNode {
	if (node{page: p}).isLeaf() {
		return asLeaf(p, t.cmp)
	}
	return asInternal(p, t.cmp)
}

// nodeSafe reports whether a mutation at this node cannot cascade to its
// parent. Optimistic traversals treat every node as safe; the leaf is
// re-checked at the operation site.
func nodeSafe(n node, op opType, minSize int32) bool {
	switch op {
	case opSearch, opOptimistic:
		return true
	case opInsert:
		return n.size()+1 < n.maxSize()
	case opRemove:
		return n.size()-1 >= minSize
	}
	return false
}

// findLeaf descends to the leaf covering key (or the leftmost leaf),
// crabbing latches per op when a transaction is supplied. Writers
// enter holding the root mutex; it is released as soon as the
// traversal proves the root cannot change. Returns nil when the tree
// is empty.
func (t *BPlusTree) findLeaf(key []byte, leftMost bool, op opType, tr *txn.Transaction) (*base.Page, error) {
	if tr == nil {
		return t.findLeafUnlatched(key, leftMost, op)
	}

	if op != opSearch {
		t.rootMu.Lock()
		tr.SetRootLocked(true)
		if t.IsEmpty() {
			t.rootMu.Unlock()
			tr.SetRootLocked(false)
			return nil, nil
		}
	} else if t.IsEmpty() {
		return nil, nil
	}

	page, err := t.fetchLatched(t.root(), op, tr)
	if err != nil {
		if tr.RootLocked() {
			t.rootMu.Unlock()
			tr.SetRootLocked(false)
		}
		return nil, err
	}
	cur := node{page: page}
	if tr.RootLocked() && (op == opSearch || (op == opOptimistic && !cur.isLeaf())) {
		t.rootMu.Unlock()
		tr.SetRootLocked(false)
	}

	for !cur.isLeaf() {
		in := asInternal(page, t.cmp)
		var childID base.PageID
		if leftMost {
			childID = in.childAt(0)
		} else {
			childID = in.lookup(key)
		}
		page, err = t.fetchLatched(childID, op, tr)
		if err != nil {
			return nil, err
		}
		cur = node{page: page}
	}
	return page, nil
}

// findLeafUnlatched pin-chases to the leaf without latching internal
// nodes or transaction bookkeeping, and returns the leaf pinned and
// read-latched; used by the iterator entry points and by findLeaf when
// no transaction is supplied.
func (t *BPlusTree) findLeafUnlatched(key []byte, leftMost bool, op opType) (*base.Page, error) {
	if t.IsEmpty() {
		return nil, nil
	}
	page, err := t.bp.FetchPage(t.root())
	if err != nil {
		return nil, err
	}
	for {
		cur := node{page: page}
		if cur.isLeaf() {
			page.RLatch()
			return page, nil
		}
		in := asInternal(page, t.cmp)
		var childID base.PageID
		if leftMost {
			childID = in.childAt(0)
		} else {
			childID = in.lookup(key)
		}
		t.bp.UnpinPage(page.ID(), false)
		page, err = t.bp.FetchPage(childID)
		if err != nil {
			return nil, err
		}
	}
}

// fetchLatched pins and latches one node on the way down, then, when
// the node is safe, releases the root mutex and every ancestor latch
// the transaction still holds before recording the new page in the
// page set.
func (t *BPlusTree) fetchLatched(id base.PageID, op opType, tr *txn.Transaction) (*base.Page, error) {
	page, err := t.bp.FetchPage(id)
	if err != nil {
		return nil, err
	}
	if !op.readLatches() {
		page.WLatch()
	} else {
		page.RLatch()
		if op == opOptimistic && (node{page: page}).isLeaf() {
			// Optimistic mode write-latches the target leaf. The pin
			// keeps the page resident across the latch swap, and a
			// page never changes node type.
			page.RUnlatch()
			page.WLatch()
		}
	}
	cur := node{page: page}
	leaf := cur.isLeaf()

	var min int32
	if leaf {
		min = asLeaf(page, t.cmp).minSize()
	} else {
		min = asInternal(page, t.cmp).minSize()
	}
	if id != t.root() && nodeSafe(cur, op, min) {
		if tr.RootLocked() {
			t.rootMu.Unlock()
			tr.SetRootLocked(false)
		}
		t.releaseAll(op.readLatches(), tr)
	}
	tr.AddIntoPageSet(page)
	return page, nil
}

// releaseAll unlatches and unpins every page in the transaction's page
// set, then deletes any pages in its deferred-deletion set. Pages are
// unpinned dirty on write traversals.
func (t *BPlusTree) releaseAll(read bool, tr *txn.Transaction) {
	deleted := tr.DeletedPageSet()
	for _, page := range tr.PageSet() {
		if read {
			page.RUnlatch()
		} else {
			page.WUnlatch()
		}
		id := page.ID()
		t.bp.UnpinPage(id, !read)
		if _, ok := deleted[id]; ok {
			t.bp.DeletePage(id)
			delete(deleted, id)
		}
	}
	tr.ClearPageSet()
}

// InsertEntry adds an index entry, ignoring duplicates. Satisfies the
// transaction rollback contract.
func (t *BPlusTree) InsertEntry(key []byte, rid base.RID, tr *txn.Transaction) error {
	_, err := t.Insert(key, rid, tr)
	return err
}

// DeleteEntry removes an index entry if present. Satisfies the
// transaction rollback contract.
func (t *BPlusTree) DeleteEntry(key []byte, tr *txn.Transaction) error {
	return t.Remove(key, tr)
}
