package buffer

import (
	"sync"

	"relic/internal/base"
	"relic/internal/storage"
)

// Pool is a bounded cache of disk pages with pin-count reference
// tracking. All operations serialize on a single pool-wide mutex; disk
// I/O happens while it is held, which also serializes disk access per
// pool.
//
// Frame states partition into: on the free list, holding a pinned
// page, or holding an unpinned resident page tracked by the replacer.
// The page table maps resident page ids to frames; a pin count of zero
// is equivalent to membership in the replacer or the free list.
type Pool struct {
	mu sync.Mutex

	frames    []base.Page
	disk      storage.DiskManager
	pageTable map[base.PageID]FrameID
	freeList  []FrameID
	replacer  *LRUReplacer
	log       base.Logger
}

// NewPool creates a pool with poolSize frames over the given disk
// manager. Initially every frame is on the free list.
func NewPool(poolSize int, disk storage.DiskManager, log base.Logger) *Pool {
	if log == nil {
		log = base.DiscardLogger{}
	}
	p := &Pool{
		frames:    make([]base.Page, poolSize),
		disk:      disk,
		pageTable: make(map[base.PageID]FrameID, poolSize),
		freeList:  make([]FrameID, 0, poolSize),
		replacer:  NewLRUReplacer(),
		log:       log,
	}
	for i := range p.frames {
		p.frames[i].SetID(base.InvalidPageID)
		p.freeList = append(p.freeList, FrameID(i))
	}
	return p
}

// Size returns the number of frames.
func (p *Pool) Size() int { return len(p.frames) }

// findFrame picks a frame for a new resident page, preferring the free
// list over eviction. If the chosen victim holds a dirty page its
// former id is returned so the caller can write it back. Caller holds
// the pool mutex.
func (p *Pool) findFrame() (FrameID, base.PageID, bool) {
	if n := len(p.freeList); n > 0 {
		frame := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return frame, base.InvalidPageID, true
	}
	frame, ok := p.replacer.Victim()
	if !ok {
		return -1, base.InvalidPageID, false
	}
	victim := &p.frames[frame]
	if victim.PinCount() != 0 {
		panic("buffer: victim frame is pinned")
	}
	delete(p.pageTable, victim.ID())
	dirtyID := base.InvalidPageID
	if victim.IsDirty() {
		dirtyID = victim.ID()
	}
	return frame, dirtyID, true
}

// FetchPage returns the page pinned, reading it from disk if it is not
// resident. Returns ErrOutOfMemory when every frame is pinned.
func (p *Pool) FetchPage(id base.PageID) (*base.Page, error) {
	if id == base.InvalidPageID {
		panic("buffer: fetch of invalid page id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if frame, ok := p.pageTable[id]; ok {
		page := &p.frames[frame]
		page.IncPin()
		p.replacer.Pin(frame)
		return page, nil
	}

	frame, dirtyID, ok := p.findFrame()
	if !ok {
		return nil, base.ErrOutOfMemory
	}
	page := &p.frames[frame]
	if dirtyID != base.InvalidPageID {
		if err := p.disk.WritePage(dirtyID, page.Data()[:]); err != nil {
			return nil, err
		}
	}
	p.pageTable[id] = frame
	page.SetID(id)
	page.SetPinCount(1)
	page.SetDirty(false)
	page.ResetMemory()
	if err := p.disk.ReadPage(id, page.Data()[:]); err != nil {
		delete(p.pageTable, id)
		page.SetID(base.InvalidPageID)
		page.SetPinCount(0)
		p.freeList = append(p.freeList, frame)
		return nil, err
	}
	return page, nil
}

// NewPage allocates a fresh page on disk and returns it pinned and
// zeroed. The zero page is written out immediately so the allocation is
// durable. Returns ErrOutOfMemory when every frame is pinned.
func (p *Pool) NewPage() (*base.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeList) == 0 && p.replacer.Size() == 0 {
		return nil, base.ErrOutOfMemory
	}
	frame, dirtyID, ok := p.findFrame()
	if !ok {
		return nil, base.ErrOutOfMemory
	}
	page := &p.frames[frame]
	if dirtyID != base.InvalidPageID {
		if err := p.disk.WritePage(dirtyID, page.Data()[:]); err != nil {
			return nil, err
		}
	}
	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, err
	}
	p.pageTable[id] = frame
	page.SetID(id)
	page.SetPinCount(1)
	page.SetDirty(false)
	page.ResetMemory()
	if err := p.disk.WritePage(id, page.Data()[:]); err != nil {
		return nil, err
	}
	return page, nil
}

// UnpinPage drops one pin and folds in the caller's dirty hint. When
// the count reaches zero the frame becomes evictable. Unpinning a
// non-resident page succeeds as a no-op.
func (p *Pool) UnpinPage(id base.PageID, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pageTable[id]
	if !ok {
		return true
	}
	page := &p.frames[frame]
	page.OrDirty(dirty)
	if page.DecPin() == 0 {
		p.replacer.Unpin(frame)
	}
	return true
}

// FlushPage writes the page to disk regardless of the dirty flag and
// clears it. Returns false for invalid or non-resident pages.
func (p *Pool) FlushPage(id base.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == base.InvalidPageID {
		return false
	}
	frame, ok := p.pageTable[id]
	if !ok {
		return false
	}
	page := &p.frames[frame]
	page.SetDirty(false)
	if err := p.disk.WritePage(id, page.Data()[:]); err != nil {
		p.log.Error("page flush failed", "page", id, "err", err)
		return false
	}
	return true
}

// DeletePage evicts the page and deallocates it on disk. Deleting a
// non-resident page succeeds; deleting a pinned page fails.
func (p *Pool) DeletePage(id base.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.pageTable[id]
	if !ok {
		return true
	}
	page := &p.frames[frame]
	if page.PinCount() > 0 {
		return false
	}
	delete(p.pageTable, id)
	page.SetID(base.InvalidPageID)
	page.SetDirty(false)
	page.ResetMemory()
	p.replacer.Pin(frame)
	p.freeList = append(p.freeList, frame)
	p.disk.DeallocatePage(id)
	return true
}

// FlushAll writes every resident page to disk and clears dirty flags.
func (p *Pool) FlushAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, frame := range p.pageTable {
		page := &p.frames[frame]
		page.SetDirty(false)
		if err := p.disk.WritePage(id, page.Data()[:]); err != nil {
			p.log.Error("page flush failed", "page", id, "err", err)
		}
	}
}
