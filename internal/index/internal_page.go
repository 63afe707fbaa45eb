package index

import (
	"encoding/binary"

	"relic/internal/base"
	"relic/internal/buffer"
)

// internalNode views a page as a B+ tree internal node: the shared
// header followed by (key, child page id) pairs. The key at index 0 is
// a sentinel and is never compared; child i-1 holds keys < key i,
// child i holds keys >= key i.
type internalNode struct {
	node
	cmp Comparator
}

func asInternal(p *base.Page, cmp Comparator) internalNode {
	return internalNode{node: node{page: p}, cmp: cmp}
}

func (n internalNode) view() node { return n.node }

func (n internalNode) init(id, parent base.PageID, keySize int, maxSize int32) {
	if maxSize > internalCapacity(keySize) {
		panic("index: internal max size exceeds page capacity")
	}
	n.initHeader(internalNodeType, keySize, id, parent, maxSize)
}

func (n internalNode) minSize() int32 { return (n.maxSize() + 1) / 2 }

func (n internalNode) stride() int { return n.keySize() + childBytes }

func (n internalNode) entryOff(i int32) int { return nodeHeader + int(i)*n.stride() }

func (n internalNode) keyAt(i int32) []byte {
	off := n.entryOff(i)
	return n.data()[off : off+n.keySize()]
}

func (n internalNode) setKeyAt(i int32, key []byte) {
	off := n.entryOff(i)
	copy(n.data()[off:off+n.keySize()], key)
}

func (n internalNode) childAt(i int32) base.PageID {
	off := n.entryOff(i) + n.keySize()
	return base.PageID(binary.LittleEndian.Uint32(n.data()[off:]))
}

func (n internalNode) setChildAt(i int32, id base.PageID) {
	off := n.entryOff(i) + n.keySize()
	binary.LittleEndian.PutUint32(n.data()[off:], uint32(id))
}

func (n internalNode) setEntry(i int32, key []byte, child base.PageID) {
	n.setKeyAt(i, key)
	n.setChildAt(i, child)
}

// valueIndex returns the position of child, or -1.
func (n internalNode) valueIndex(child base.PageID) int32 {
	for i := int32(0); i < n.size(); i++ {
		if n.childAt(i) == child {
			return i
		}
	}
	return -1
}

// lookup returns the child that covers key: the child at the largest
// index i >= 1 with key(i) <= key, or child 0 when every key is
// greater.
func (n internalNode) lookup(key []byte) base.PageID {
	lo, hi := int32(1), n.size()-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if n.cmp(key, n.keyAt(mid)) < 0 {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return n.childAt(hi)
}

// populateNewRoot seeds a fresh root with two children split out of
// the old root.
func (n internalNode) populateNewRoot(oldChild base.PageID, key []byte, newChild base.PageID) {
	n.setChildAt(0, oldChild)
	n.setEntry(1, key, newChild)
	n.setSize(2)
}

// insertNodeAfter places (key, newChild) immediately after oldChild.
// Returns the size after insertion.
func (n internalNode) insertNodeAfter(oldChild base.PageID, key []byte, newChild base.PageID) int32 {
	size := n.size()
	if size+1 > n.maxSize() {
		panic("index: insert into full internal node")
	}
	at := n.valueIndex(oldChild) + 1
	if at <= 0 {
		panic("index: split child missing from parent")
	}
	d := n.data()
	copy(d[n.entryOff(at+1):n.entryOff(size+1)], d[n.entryOff(at):n.entryOff(size)])
	n.setEntry(at, key, newChild)
	return n.incSize(1)
}

// remove deletes the entry at index, compacting the array.
func (n internalNode) remove(i int32) {
	size := n.size()
	d := n.data()
	copy(d[n.entryOff(i):n.entryOff(size-1)], d[n.entryOff(i+1):n.entryOff(size)])
	n.incSize(-1)
}

// moveHalfTo splits a full internal node, moving the upper half to
// recipient and reparenting the moved children.
func (n internalNode) moveHalfTo(recipient internalNode, bp *buffer.Pool) error {
	size := n.size()
	off := size / 2
	if err := recipient.copyNFrom(n, off, size-off, bp); err != nil {
		return err
	}
	n.setSize(off)
	return nil
}

// copyNFrom appends n entries of src starting at from, adopting each
// moved child by rewriting its parent pointer through the buffer pool.
func (n internalNode) copyNFrom(src internalNode, from, cnt int32, bp *buffer.Pool) error {
	off := n.size()
	copy(n.data()[n.entryOff(off):n.entryOff(off+cnt)],
		src.data()[src.entryOff(from):src.entryOff(from+cnt)])
	for i := int32(0); i < cnt; i++ {
		if err := n.adopt(n.childAt(off+i), bp); err != nil {
			return err
		}
	}
	n.incSize(cnt)
	return nil
}

// adopt points a child's parent id at this node and persists it.
// No child latch: the child may already be write-latched by this very
// traversal, and the parent-pointer bytes are touched by nothing a
// concurrent reader looks at.
func (n internalNode) adopt(child base.PageID, bp *buffer.Pool) error {
	page, err := bp.FetchPage(child)
	if err != nil {
		return err
	}
	node{page: page}.setParent(n.id())
	bp.UnpinPage(child, true)
	return nil
}

// moveAllTo merges into the left sibling. The separator key from the
// parent replaces the sentinel so the merged key range stays ordered.
func (n internalNode) moveAllTo(dst treeNode, middleKey []byte, bp *buffer.Pool) error {
	recipient := dst.(internalNode)
	n.setKeyAt(0, middleKey)
	if err := recipient.copyNFrom(n, 0, n.size(), bp); err != nil {
		return err
	}
	n.setSize(0)
	return nil
}

func (n internalNode) moveFirstToEndOf(dst treeNode, middleKey []byte, bp *buffer.Pool) error {
	recipient := dst.(internalNode)
	child := n.childAt(0)
	at := recipient.size()
	recipient.setEntry(at, middleKey, child)
	recipient.incSize(1)
	size := n.incSize(-1)
	d := n.data()
	copy(d[n.entryOff(0):n.entryOff(size)], d[n.entryOff(1):n.entryOff(size+1)])
	return recipient.adopt(child, bp)
}

func (n internalNode) moveLastToFrontOf(dst treeNode, middleKey []byte, bp *buffer.Pool) error {
	recipient := dst.(internalNode)
	recipient.setKeyAt(0, middleKey)
	last := n.size() - 1
	key, child := n.keyAt(last), n.childAt(last)
	d := recipient.data()
	copy(d[recipient.entryOff(1):recipient.entryOff(recipient.size()+1)],
		d[recipient.entryOff(0):recipient.entryOff(recipient.size())])
	recipient.setEntry(0, key, child)
	recipient.incSize(1)
	n.incSize(-1)
	return recipient.adopt(child, bp)
}
