package index

import (
	"encoding/binary"

	"relic/internal/base"
	"relic/internal/buffer"
)

// leafNode views a page as a B+ tree leaf: the shared header followed
// by a densely packed, strictly increasing array of (key, RID) pairs,
// plus a next-leaf pointer chaining leaves in key order.
type leafNode struct {
	node
	cmp Comparator
}

func asLeaf(p *base.Page, cmp Comparator) leafNode {
	return leafNode{node: node{page: p}, cmp: cmp}
}

func (l leafNode) view() node { return l.node }

func (l leafNode) init(id, parent base.PageID, keySize int, maxSize int32) {
	if maxSize > leafCapacity(keySize) {
		panic("index: leaf max size exceeds page capacity")
	}
	l.initHeader(leafNodeType, keySize, id, parent, maxSize)
}

func (l leafNode) minSize() int32 { return l.maxSize() / 2 }

func (l leafNode) next() base.PageID {
	return base.PageID(binary.LittleEndian.Uint32(l.data()[offNext:]))
}

func (l leafNode) setNext(id base.PageID) {
	binary.LittleEndian.PutUint32(l.data()[offNext:], uint32(id))
}

func (l leafNode) stride() int { return l.keySize() + ridBytes }

func (l leafNode) entryOff(i int32) int { return nodeHeader + int(i)*l.stride() }

func (l leafNode) keyAt(i int32) []byte {
	off := l.entryOff(i)
	return l.data()[off : off+l.keySize()]
}

func (l leafNode) ridAt(i int32) base.RID {
	off := l.entryOff(i) + l.keySize()
	d := l.data()
	return base.RID{
		PageID: base.PageID(binary.LittleEndian.Uint32(d[off:])),
		Slot:   binary.LittleEndian.Uint32(d[off+4:]),
	}
}

func (l leafNode) setEntry(i int32, key []byte, rid base.RID) {
	off := l.entryOff(i)
	d := l.data()
	copy(d[off:off+l.keySize()], key)
	binary.LittleEndian.PutUint32(d[off+l.keySize():], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(d[off+l.keySize()+4:], rid.Slot)
}

// keyIndex returns the first index whose key is >= key, which may be
// size when every key is smaller.
func (l leafNode) keyIndex(key []byte) int32 {
	lo, hi := int32(0), l.size()-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch c := l.cmp(l.keyAt(mid), key); {
		case c > 0:
			hi = mid - 1
		case c < 0:
			lo = mid + 1
		default:
			return mid
		}
	}
	return lo
}

// lookup finds key and returns its RID.
func (l leafNode) lookup(key []byte) (base.RID, bool) {
	i := l.keyIndex(key)
	if i == l.size() || l.cmp(l.keyAt(i), key) != 0 {
		return base.RID{}, false
	}
	return l.ridAt(i), true
}

// insert places (key, rid) in order. An existing key has its value
// replaced, acting as an update. Returns the size after insertion.
func (l leafNode) insert(key []byte, rid base.RID) int32 {
	size := l.size()
	if size+1 > l.maxSize() {
		panic("index: insert into full leaf")
	}
	i := l.keyIndex(key)
	if i < size && l.cmp(l.keyAt(i), key) == 0 {
		l.setEntry(i, key, rid)
		return size
	}
	if i != size {
		d := l.data()
		copy(d[l.entryOff(i+1):l.entryOff(size+1)], d[l.entryOff(i):l.entryOff(size)])
	}
	l.setEntry(i, key, rid)
	return l.incSize(1)
}

// removeAndDeleteRecord removes key if present, compacting the array.
// Returns the size after removal.
func (l leafNode) removeAndDeleteRecord(key []byte) int32 {
	size := l.size()
	i := l.keyIndex(key)
	if i == size || l.cmp(l.keyAt(i), key) != 0 {
		return size
	}
	d := l.data()
	copy(d[l.entryOff(i):l.entryOff(size-1)], d[l.entryOff(i+1):l.entryOff(size)])
	return l.incSize(-1)
}

// moveHalfTo splits a full leaf, moving the upper half to recipient
// and splicing recipient into the next-pointer chain.
func (l leafNode) moveHalfTo(recipient leafNode) {
	size := l.size()
	off := size / 2
	recipient.copyNFrom(l, off, size-off)
	l.setSize(off)
	recipient.setNext(l.next())
	l.setNext(recipient.id())
}

// copyNFrom appends n entries of src starting at from.
func (l leafNode) copyNFrom(src leafNode, from, n int32) {
	off := l.size()
	copy(l.data()[l.entryOff(off):l.entryOff(off+n)],
		src.data()[src.entryOff(from):src.entryOff(from+n)])
	l.incSize(n)
}

// moveAllTo merges into the left sibling and hands over the next
// pointer. The separator key is unused for leaves.
func (l leafNode) moveAllTo(dst treeNode, _ []byte, _ *buffer.Pool) error {
	recipient := dst.(leafNode)
	recipient.copyNFrom(l, 0, l.size())
	l.setSize(0)
	recipient.setNext(l.next())
	return nil
}

func (l leafNode) moveFirstToEndOf(dst treeNode, _ []byte, _ *buffer.Pool) error {
	recipient := dst.(leafNode)
	recipient.setEntry(recipient.size(), l.keyAt(0), l.ridAt(0))
	recipient.incSize(1)
	size := l.incSize(-1)
	d := l.data()
	copy(d[l.entryOff(0):l.entryOff(size)], d[l.entryOff(1):l.entryOff(size+1)])
	return nil
}

func (l leafNode) moveLastToFrontOf(dst treeNode, _ []byte, _ *buffer.Pool) error {
	recipient := dst.(leafNode)
	last := l.size() - 1
	key, rid := l.keyAt(last), l.ridAt(last)
	d := recipient.data()
	copy(d[recipient.entryOff(1):recipient.entryOff(recipient.size()+1)],
		d[recipient.entryOff(0):recipient.entryOff(recipient.size())])
	recipient.setEntry(0, key, rid)
	recipient.incSize(1)
	l.incSize(-1)
	return nil
}
