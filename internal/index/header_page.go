package index

import (
	"bytes"
	"encoding/binary"

	"relic/internal/base"
	"relic/internal/buffer"
)

// The header page (reserved page id 0) stores (index name -> root page
// id) records so trees can find their roots after reopening:
//
//	0 recordCount int32
//	4 records: name [32]byte, rootPageID int32
const (
	headerNameBytes  = 32
	headerRecordSize = headerNameBytes + 4
	headerMaxRecords = (base.PageSize - 4) / headerRecordSize
)

type headerPage struct {
	page *base.Page
}

func (h headerPage) data() []byte { return h.page.Data()[:] }

func (h headerPage) count() int32 {
	return int32(binary.LittleEndian.Uint32(h.data()))
}

func (h headerPage) setCount(n int32) {
	binary.LittleEndian.PutUint32(h.data(), uint32(n))
}

func (h headerPage) recordOff(i int32) int { return 4 + int(i)*headerRecordSize }

func (h headerPage) nameAt(i int32) string {
	off := h.recordOff(i)
	name := h.data()[off : off+headerNameBytes]
	return string(bytes.TrimRight(name, "\x00"))
}

func (h headerPage) rootAt(i int32) base.PageID {
	off := h.recordOff(i) + headerNameBytes
	return base.PageID(binary.LittleEndian.Uint32(h.data()[off:]))
}

func (h headerPage) find(name string) int32 {
	for i := int32(0); i < h.count(); i++ {
		if h.nameAt(i) == name {
			return i
		}
	}
	return -1
}

func (h headerPage) insertRecord(name string, root base.PageID) {
	n := h.count()
	if n >= headerMaxRecords {
		panic("index: header page full")
	}
	if len(name) > headerNameBytes {
		panic("index: index name too long")
	}
	off := h.recordOff(n)
	d := h.data()
	copy(d[off:off+headerNameBytes], name)
	binary.LittleEndian.PutUint32(d[off+headerNameBytes:], uint32(root))
	h.setCount(n + 1)
}

func (h headerPage) updateRecord(name string, root base.PageID) {
	i := h.find(name)
	if i < 0 {
		h.insertRecord(name, root)
		return
	}
	off := h.recordOff(i) + headerNameBytes
	binary.LittleEndian.PutUint32(h.data()[off:], uint32(root))
}

// rootFromHeader reads the recorded root for name, if any.
func rootFromHeader(bp *buffer.Pool, name string) (base.PageID, bool) {
	page, err := bp.FetchPage(base.HeaderPageID)
	if err != nil {
		return base.InvalidPageID, false
	}
	defer bp.UnpinPage(base.HeaderPageID, false)
	h := headerPage{page: page}
	page.RLatch()
	defer page.RUnlatch()
	i := h.find(name)
	if i < 0 {
		return base.InvalidPageID, false
	}
	return h.rootAt(i), true
}
