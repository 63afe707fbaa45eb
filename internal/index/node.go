package index

import (
	"bytes"
	"encoding/binary"

	"relic/internal/base"
	"relic/internal/buffer"
)

// Comparator is a total order over fixed-width keys.
type Comparator func(a, b []byte) int

// CompareBytes orders keys lexicographically. Int64Key encodes so that
// this order matches signed integer order.
func CompareBytes(a, b []byte) int { return bytes.Compare(a, b) }

// Int64Key encodes v into a width-8 key whose lexicographic order
// matches signed integer order.
func Int64Key(v int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(v)^(1<<63))
	return k[:]
}

// KeyWidths are the supported fixed key sizes.
var KeyWidths = []int{4, 8, 16, 32, 64}

const (
	leafNodeType     uint16 = 1
	internalNodeType uint16 = 2

	// Shared node header, at the start of the page:
	//
	//	0  type     uint16
	//	2  keySize  uint16
	//	4  size     int32
	//	8  maxSize  int32
	//	12 pageID   int32
	//	16 parentID int32
	//	20 next     int32 (leaf only)
	//	24 entries...
	//
	// Leaf entries are (key, RID) with an 8-byte RID (page id, slot);
	// internal entries are (key, child page id). The first internal
	// key is a sentinel and never compared.
	offNodeType = 0
	offKeySize  = 2
	offSize     = 4
	offMaxSize  = 8
	offPageID   = 12
	offParentID = 16
	offNext     = 20
	nodeHeader  = 24

	ridBytes   = 8
	childBytes = 4
)

// node is the header view shared by leaf and internal pages.
type node struct {
	page *base.Page
}

func (n node) data() []byte { return n.page.Data()[:] }

func (n node) nodeType() uint16 {
	return binary.LittleEndian.Uint16(n.data()[offNodeType:])
}

func (n node) isLeaf() bool { return n.nodeType() == leafNodeType }

func (n node) keySize() int {
	return int(binary.LittleEndian.Uint16(n.data()[offKeySize:]))
}

func (n node) size() int32 {
	return int32(binary.LittleEndian.Uint32(n.data()[offSize:]))
}

func (n node) setSize(v int32) {
	binary.LittleEndian.PutUint32(n.data()[offSize:], uint32(v))
}

func (n node) incSize(d int32) int32 {
	v := n.size() + d
	n.setSize(v)
	return v
}

func (n node) maxSize() int32 {
	return int32(binary.LittleEndian.Uint32(n.data()[offMaxSize:]))
}

func (n node) id() base.PageID {
	return base.PageID(binary.LittleEndian.Uint32(n.data()[offPageID:]))
}

func (n node) parent() base.PageID {
	return base.PageID(binary.LittleEndian.Uint32(n.data()[offParentID:]))
}

func (n node) setParent(id base.PageID) {
	binary.LittleEndian.PutUint32(n.data()[offParentID:], uint32(id))
}

func (n node) isRoot() bool { return n.parent() == base.InvalidPageID }

func (n node) initHeader(typ uint16, keySize int, id, parent base.PageID, maxSize int32) {
	d := n.data()
	binary.LittleEndian.PutUint16(d[offNodeType:], typ)
	binary.LittleEndian.PutUint16(d[offKeySize:], uint16(keySize))
	binary.LittleEndian.PutUint32(d[offSize:], 0)
	binary.LittleEndian.PutUint32(d[offMaxSize:], uint32(maxSize))
	binary.LittleEndian.PutUint32(d[offPageID:], uint32(id))
	binary.LittleEndian.PutUint32(d[offParentID:], uint32(parent))
	invalid := base.InvalidPageID
	binary.LittleEndian.PutUint32(d[offNext:], uint32(invalid))
}

// treeNode is the slice of a node the merge/redistribute machinery
// needs, implemented by both page kinds.
type treeNode interface {
	view() node
	minSize() int32
	keyAt(i int32) []byte
	// moveAllTo merges every entry into the left sibling dst. For
	// internal nodes the separator from the parent is embedded first.
	moveAllTo(dst treeNode, middleKey []byte, bp *buffer.Pool) error
	// moveFirstToEndOf shifts one entry left across the separator.
	moveFirstToEndOf(dst treeNode, middleKey []byte, bp *buffer.Pool) error
	// moveLastToFrontOf shifts one entry right across the separator.
	moveLastToFrontOf(dst treeNode, middleKey []byte, bp *buffer.Pool) error
}

// leafCapacity returns how many (key, RID) entries fit on a page.
func leafCapacity(keySize int) int32 {
	return int32((base.PageSize - nodeHeader) / (keySize + ridBytes))
}

// internalCapacity returns how many (key, child) entries fit on a page.
func internalCapacity(keySize int) int32 {
	return int32((base.PageSize - nodeHeader) / (keySize + childBytes))
}
