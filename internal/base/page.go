package base

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// PageSize is the fixed size of every on-disk and in-memory page.
const PageSize = 4096

// PageID identifies a page in the database file.
type PageID int32

// InvalidPageID marks an unset or deleted page reference.
const InvalidPageID PageID = -1

// HeaderPageID is reserved for the header page that records
// (index name -> root page id) entries.
const HeaderPageID PageID = 0

// Page is a fixed-size block of bytes resident in a buffer pool frame.
// The buffer pool owns all metadata mutation; everyone else only touches
// Data under the latch.
//
// The latch is a short-duration reader-writer lock over the page bytes
// and is unrelated to transactional row locks.
type Page struct {
	latch sync.RWMutex

	data     [PageSize]byte
	id       PageID
	pinCount int
	dirty    bool
}

// Data returns the page's byte contents. Callers must hold the latch in
// the appropriate mode while reading or writing.
func (p *Page) Data() *[PageSize]byte { return &p.data }

// ID returns the page id currently resident in this frame.
func (p *Page) ID() PageID { return p.id }

// PinCount returns the number of outstanding pins.
func (p *Page) PinCount() int { return p.pinCount }

// IsDirty reports whether the page has unflushed modifications.
func (p *Page) IsDirty() bool { return p.dirty }

// RLatch acquires the page latch in shared mode.
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases a shared latch.
func (p *Page) RUnlatch() { p.latch.RUnlock() }

// WLatch acquires the page latch in exclusive mode.
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases an exclusive latch.
func (p *Page) WUnlatch() { p.latch.Unlock() }

// Sum64 hashes the page contents. The disk manager records the hash of
// every written page and verifies it on the next read.
func (p *Page) Sum64() uint64 { return xxhash.Sum64(p.data[:]) }

// The methods below mutate frame metadata and are reserved for the
// buffer pool, which serializes them under the pool mutex.

// SetID records the page id resident in this frame.
func (p *Page) SetID(id PageID) { p.id = id }

// SetPinCount overwrites the pin count.
func (p *Page) SetPinCount(n int) { p.pinCount = n }

// IncPin increments the pin count.
func (p *Page) IncPin() { p.pinCount++ }

// DecPin decrements the pin count and returns the new value.
func (p *Page) DecPin() int {
	p.pinCount--
	return p.pinCount
}

// SetDirty overwrites the dirty flag.
func (p *Page) SetDirty(dirty bool) { p.dirty = dirty }

// OrDirty folds a caller's dirty hint into the flag.
func (p *Page) OrDirty(dirty bool) { p.dirty = p.dirty || dirty }

// ResetMemory zeroes the page contents.
func (p *Page) ResetMemory() {
	p.data = [PageSize]byte{}
}
