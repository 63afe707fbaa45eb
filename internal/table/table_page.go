package table

import (
	"encoding/binary"

	"relic/internal/base"
)

// Slotted page format, data packed backward from the end:
//
//	---------------------------------------------------------
//	| HEADER | SLOTS ... | ... FREE SPACE ... | ... TUPLES |
//	---------------------------------------------------------
//	                                          ^ free-space pointer
//
// Header (byte offsets):
//
//	0  prevPageID int32
//	4  nextPageID int32
//	8  freeSpacePtr uint32
//	12 tupleCount uint32
//	16 slot array: (offset uint32, size uint32) per slot
//
// A deleted tuple keeps its slot with the delete bit set in the size
// until the owning transaction commits (apply) or aborts (rollback).
const (
	offPrev       = 0
	offNext       = 4
	offFreeSpace  = 8
	offTupleCount = 12
	offSlots      = 16
	slotSize      = 8

	deleteMask = uint32(1) << 31
)

type tablePage struct {
	page *base.Page
}

func (p tablePage) data() []byte { return p.page.Data()[:] }

func (p tablePage) init(prev base.PageID) {
	p.setPrev(prev)
	p.setNext(base.InvalidPageID)
	p.setFreeSpacePtr(base.PageSize)
	p.setTupleCount(0)
}

func (p tablePage) prev() base.PageID {
	return base.PageID(binary.LittleEndian.Uint32(p.data()[offPrev:]))
}

func (p tablePage) setPrev(id base.PageID) {
	binary.LittleEndian.PutUint32(p.data()[offPrev:], uint32(id))
}

func (p tablePage) next() base.PageID {
	return base.PageID(binary.LittleEndian.Uint32(p.data()[offNext:]))
}

func (p tablePage) setNext(id base.PageID) {
	binary.LittleEndian.PutUint32(p.data()[offNext:], uint32(id))
}

func (p tablePage) freeSpacePtr() uint32 {
	return binary.LittleEndian.Uint32(p.data()[offFreeSpace:])
}

func (p tablePage) setFreeSpacePtr(v uint32) {
	binary.LittleEndian.PutUint32(p.data()[offFreeSpace:], v)
}

func (p tablePage) tupleCount() uint32 {
	return binary.LittleEndian.Uint32(p.data()[offTupleCount:])
}

func (p tablePage) setTupleCount(v uint32) {
	binary.LittleEndian.PutUint32(p.data()[offTupleCount:], v)
}

func (p tablePage) slotOffset(slot uint32) uint32 {
	return binary.LittleEndian.Uint32(p.data()[offSlots+slot*slotSize:])
}

func (p tablePage) setSlotOffset(slot, v uint32) {
	binary.LittleEndian.PutUint32(p.data()[offSlots+slot*slotSize:], v)
}

func (p tablePage) slotSizeField(slot uint32) uint32 {
	return binary.LittleEndian.Uint32(p.data()[offSlots+slot*slotSize+4:])
}

func (p tablePage) setSlotSizeField(slot, v uint32) {
	binary.LittleEndian.PutUint32(p.data()[offSlots+slot*slotSize+4:], v)
}

func (p tablePage) isDeleted(slot uint32) bool {
	return p.slotSizeField(slot)&deleteMask != 0
}

func (p tablePage) liveSize(slot uint32) uint32 {
	return p.slotSizeField(slot) &^ deleteMask
}

func (p tablePage) freeSpace() uint32 {
	return p.freeSpacePtr() - (offSlots + p.tupleCount()*slotSize)
}

// insertTuple places data in a fresh slot. Returns false when the page
// cannot hold the tuple plus its slot entry.
func (p tablePage) insertTuple(data []byte) (uint32, bool) {
	need := uint32(len(data)) + slotSize
	if p.freeSpace() < need {
		return 0, false
	}
	slot := p.tupleCount()
	off := p.freeSpacePtr() - uint32(len(data))
	copy(p.data()[off:], data)
	p.setFreeSpacePtr(off)
	p.setSlotOffset(slot, off)
	p.setSlotSizeField(slot, uint32(len(data)))
	p.setTupleCount(slot + 1)
	return slot, true
}

// getTuple copies out the tuple in slot; false for dead or absent
// slots.
func (p tablePage) getTuple(slot uint32) ([]byte, bool) {
	if slot >= p.tupleCount() || p.isDeleted(slot) || p.liveSize(slot) == 0 {
		return nil, false
	}
	off, size := p.slotOffset(slot), p.liveSize(slot)
	out := make([]byte, size)
	copy(out, p.data()[off:off+size])
	return out, true
}

// markDelete flags the slot deleted without reclaiming space.
func (p tablePage) markDelete(slot uint32) bool {
	if slot >= p.tupleCount() || p.isDeleted(slot) || p.liveSize(slot) == 0 {
		return false
	}
	p.setSlotSizeField(slot, p.slotSizeField(slot)|deleteMask)
	return true
}

// rollbackDelete clears the delete flag.
func (p tablePage) rollbackDelete(slot uint32) {
	if slot < p.tupleCount() {
		p.setSlotSizeField(slot, p.slotSizeField(slot)&^deleteMask)
	}
}

// applyDelete reclaims the slot's space, compacting the data area.
// The slot keeps a zero size so later slots keep their numbers.
func (p tablePage) applyDelete(slot uint32) {
	if slot >= p.tupleCount() || p.liveSize(slot) == 0 {
		return
	}
	off, size := p.slotOffset(slot), p.liveSize(slot)
	free := p.freeSpacePtr()
	// Close the gap: shift everything below the victim up by size.
	copy(p.data()[free+size:off+size], p.data()[free:off])
	p.setFreeSpacePtr(free + size)
	for s := uint32(0); s < p.tupleCount(); s++ {
		if sOff := p.slotOffset(s); p.liveSize(s) != 0 && sOff < off {
			p.setSlotOffset(s, sOff+size)
		}
	}
	p.setSlotOffset(slot, 0)
	p.setSlotSizeField(slot, 0)
}

// updateTuple overwrites the tuple in place when the new bytes fit in
// the old footprint plus current free space.
func (p tablePage) updateTuple(slot uint32, data []byte) bool {
	if slot >= p.tupleCount() || p.isDeleted(slot) || p.liveSize(slot) == 0 {
		return false
	}
	oldSize := p.liveSize(slot)
	newSize := uint32(len(data))
	if newSize > oldSize && newSize-oldSize > p.freeSpace() {
		return false
	}
	off := p.slotOffset(slot)
	free := p.freeSpacePtr()
	// Re-pack the data area around the resized tuple.
	delta := int64(oldSize) - int64(newSize) // positive shrinks, negative grows
	newFree := uint32(int64(free) + delta)
	copy(p.data()[newFree:off+oldSize-newSize], p.data()[free:off])
	for s := uint32(0); s < p.tupleCount(); s++ {
		if sOff := p.slotOffset(s); s != slot && p.liveSize(s) != 0 && sOff < off {
			p.setSlotOffset(s, uint32(int64(sOff)+delta))
		}
	}
	newOff := uint32(int64(off) + delta)
	copy(p.data()[newOff:newOff+newSize], data)
	p.setSlotOffset(slot, newOff)
	p.setSlotSizeField(slot, newSize)
	p.setFreeSpacePtr(newFree)
	return true
}
