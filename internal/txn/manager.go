package txn

import (
	"sync"
	"sync/atomic"
)

// Manager creates, commits, and aborts transactions. Aborts roll the
// transaction back using its accumulated table and index write sets,
// in reverse order; commits apply deferred deletes. Both release all
// row locks last.
type Manager struct {
	mu      sync.Mutex
	running map[ID]*Transaction

	next int32
	lm   *LockManager
}

// NewManager creates a transaction manager over the given lock
// manager.
func NewManager(lm *LockManager) *Manager {
	return &Manager{
		running: make(map[ID]*Transaction),
		lm:      lm,
	}
}

// Begin starts a new transaction at the given isolation level.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	t := NewTransaction(ID(atomic.AddInt32(&m.next, 1)-1), isolation)
	m.mu.Lock()
	m.running[t.ID()] = t
	m.mu.Unlock()
	return t
}

// Get returns a running transaction by id, or nil.
func (m *Manager) Get(id ID) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}

// Commit applies deferred deletes, releases locks, and retires the
// transaction.
func (m *Manager) Commit(t *Transaction) error {
	t.SetState(Committed)

	// Marked deletes become real at commit.
	writes := t.TableWrites()
	for i := len(writes) - 1; i >= 0; i-- {
		rec := writes[i]
		if rec.Type == WriteDelete {
			if err := rec.Table.ApplyDelete(rec.RID, t); err != nil {
				return err
			}
		}
	}
	t.tableWrites = nil
	t.indexWrites = nil

	m.release(t)
	return nil
}

// Abort undoes the transaction's table writes and index writes in
// reverse order, releases locks, and retires the transaction.
func (m *Manager) Abort(t *Transaction) error {
	t.SetState(Aborted)

	tableWrites := t.TableWrites()
	for i := len(tableWrites) - 1; i >= 0; i-- {
		rec := tableWrites[i]
		var err error
		switch rec.Type {
		case WriteInsert:
			err = rec.Table.UndoInsert(rec.RID, t)
		case WriteDelete:
			err = rec.Table.UndoDelete(rec.RID, t)
		case WriteUpdate:
			err = rec.Table.UndoUpdate(rec.RID, rec.OldData, t)
		}
		if err != nil {
			return err
		}
	}
	t.tableWrites = nil

	indexWrites := t.IndexWrites()
	for i := len(indexWrites) - 1; i >= 0; i-- {
		rec := indexWrites[i]
		var err error
		switch rec.Type {
		case WriteInsert:
			err = rec.Index.DeleteEntry(rec.Key, t)
		case WriteDelete:
			err = rec.Index.InsertEntry(rec.Key, rec.RID, t)
		}
		if err != nil {
			return err
		}
	}
	t.indexWrites = nil

	m.release(t)
	return nil
}

func (m *Manager) release(t *Transaction) {
	m.lm.ReleaseAll(t)
	m.mu.Lock()
	delete(m.running, t.ID())
	m.mu.Unlock()
}
