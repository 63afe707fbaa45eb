package txn

import (
	"relic/internal/base"
)

// ID identifies a transaction. Ids are assigned monotonically, so a
// larger id always means a younger transaction.
type ID int32

// State tracks the two-phase locking lifecycle.
//
//	GROWING -> SHRINKING -> COMMITTED
//	   \__________\______________________> ABORTED
type State int32

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

// IsolationLevel selects the locking policy applied by executors and
// the lock manager. It never changes executor control flow.
type IsolationLevel int32

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// WriteType tags a write record for rollback.
type WriteType int32

const (
	WriteInsert WriteType = iota
	WriteDelete
	WriteUpdate
)

// TableWriter is the slice of a table heap the rollback path needs.
// Implemented by the heap; declared here to keep the dependency arrow
// pointing from storage to transactions.
type TableWriter interface {
	// UndoInsert erases the tuple at rid.
	UndoInsert(rid base.RID, t *Transaction) error
	// UndoDelete revives a tuple marked deleted at rid.
	UndoDelete(rid base.RID, t *Transaction) error
	// UndoUpdate restores the previous tuple bytes at rid.
	UndoUpdate(rid base.RID, data []byte, t *Transaction) error
	// ApplyDelete erases a tuple marked deleted at rid, at commit.
	ApplyDelete(rid base.RID, t *Transaction) error
}

// IndexWriter is the slice of an index the rollback path needs.
// Implemented by the B+ tree index.
type IndexWriter interface {
	InsertEntry(key []byte, rid base.RID, t *Transaction) error
	DeleteEntry(key []byte, t *Transaction) error
}

// TableWriteRecord remembers one table mutation for commit/abort.
// OldData is only set for updates.
type TableWriteRecord struct {
	RID     base.RID
	Type    WriteType
	OldData []byte
	Table   TableWriter
}

// IndexWriteRecord remembers one index mutation for abort.
type IndexWriteRecord struct {
	RID   base.RID
	Type  WriteType
	Key   []byte
	Index IndexWriter
}

// Transaction is the per-transaction state bag threaded through
// executors, the lock manager, and the B+ tree.
//
// A transaction is owned by one goroutine during statement execution.
// The lock manager reads and writes state under its own mutex; nothing
// else touches a transaction concurrently.
type Transaction struct {
	id        ID
	state     State
	isolation IsolationLevel

	sharedLocks    map[base.RID]struct{}
	exclusiveLocks map[base.RID]struct{}

	// Crabbing state for concurrent index operations: pages latched on
	// the way down, in order, plus pages scheduled for deletion once
	// the traversal releases them.
	pageSet      []*base.Page
	deletedPages map[base.PageID]struct{}
	rootLocked   bool

	tableWrites []TableWriteRecord
	indexWrites []IndexWriteRecord
}

// NewTransaction creates a transaction in the Growing state.
func NewTransaction(id ID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		state:          Growing,
		isolation:      isolation,
		sharedLocks:    make(map[base.RID]struct{}),
		exclusiveLocks: make(map[base.RID]struct{}),
		deletedPages:   make(map[base.PageID]struct{}),
	}
}

// ID returns the transaction id.
func (t *Transaction) ID() ID { return t.id }

// State returns the current lifecycle state.
func (t *Transaction) State() State { return t.state }

// SetState moves the transaction to a new lifecycle state.
func (t *Transaction) SetState(s State) { t.state = s }

// Isolation returns the isolation level fixed at Begin.
func (t *Transaction) Isolation() IsolationLevel { return t.isolation }

// IsSharedLocked reports whether rid is in the shared lock set.
func (t *Transaction) IsSharedLocked(rid base.RID) bool {
	_, ok := t.sharedLocks[rid]
	return ok
}

// IsExclusiveLocked reports whether rid is in the exclusive lock set.
func (t *Transaction) IsExclusiveLocked(rid base.RID) bool {
	_, ok := t.exclusiveLocks[rid]
	return ok
}

// SharedLocks returns the shared lock set, owned by the lock manager.
func (t *Transaction) SharedLocks() map[base.RID]struct{} { return t.sharedLocks }

// ExclusiveLocks returns the exclusive lock set, owned by the lock
// manager.
func (t *Transaction) ExclusiveLocks() map[base.RID]struct{} { return t.exclusiveLocks }

// AddIntoPageSet appends a latched page to the crabbing set.
func (t *Transaction) AddIntoPageSet(p *base.Page) { t.pageSet = append(t.pageSet, p) }

// PageSet returns the latched pages in acquisition order.
func (t *Transaction) PageSet() []*base.Page { return t.pageSet }

// ClearPageSet empties the crabbing set after latches are released.
func (t *Transaction) ClearPageSet() { t.pageSet = t.pageSet[:0] }

// AddIntoDeletedPageSet schedules a page for deletion at traversal end.
func (t *Transaction) AddIntoDeletedPageSet(id base.PageID) {
	t.deletedPages[id] = struct{}{}
}

// DeletedPageSet returns the deferred-deletion set.
func (t *Transaction) DeletedPageSet() map[base.PageID]struct{} { return t.deletedPages }

// RootLocked reports whether this transaction holds the index root
// mutex.
func (t *Transaction) RootLocked() bool { return t.rootLocked }

// SetRootLocked records possession of the index root mutex.
func (t *Transaction) SetRootLocked(locked bool) { t.rootLocked = locked }

// AppendTableWrite records a table mutation for commit/abort.
func (t *Transaction) AppendTableWrite(rec TableWriteRecord) {
	t.tableWrites = append(t.tableWrites, rec)
}

// AppendIndexWrite records an index mutation for abort.
func (t *Transaction) AppendIndexWrite(rec IndexWriteRecord) {
	t.indexWrites = append(t.indexWrites, rec)
}

// TableWrites returns the table write set in execution order.
func (t *Transaction) TableWrites() []TableWriteRecord { return t.tableWrites }

// IndexWrites returns the index write set in execution order.
func (t *Transaction) IndexWrites() []IndexWriteRecord { return t.indexWrites }
