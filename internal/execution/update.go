package execution

import (
	"bytes"

	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/table"
	"relic/internal/txn"
)

// UpdateExecutor rewrites its child's rows in place. Each row is
// locked exclusively (upgrading a shared lock when the scan below
// already holds one) before the heap write. Index entries are
// re-keyed when an update touches indexed columns.
type UpdateExecutor struct {
	ctx   *Context
	plan  *UpdatePlan
	child Executor

	info *catalog.TableInfo
	done bool
}

func (e *UpdateExecutor) Init() error {
	info, err := e.ctx.Catalog.GetTableByOID(e.plan.TableOID)
	if err != nil {
		return err
	}
	e.info = info
	return e.child.Init()
}

func (e *UpdateExecutor) Next() (*table.Tuple, base.RID, error) {
	if e.done {
		return nil, base.RID{}, nil
	}
	e.done = true
	tr := e.ctx.Txn

	for {
		old, rid, err := e.child.Next()
		if err != nil {
			return nil, base.RID{}, childErr(err)
		}
		if old == nil {
			return nil, base.RID{}, nil
		}

		if e.ctx.LockMgr != nil {
			if tr.IsSharedLocked(rid) {
				err = e.ctx.LockMgr.LockUpgrade(tr, rid)
			} else if !tr.IsExclusiveLocked(rid) {
				err = e.ctx.LockMgr.LockExclusive(tr, rid)
			}
			if err != nil {
				return nil, base.RID{}, err
			}
		}

		updated := applyUpdates(old, e.plan.Updates)
		data, err := updated.Serialize(e.info.Schema)
		if err != nil {
			return nil, base.RID{}, err
		}
		oldData, err := e.info.Heap.UpdateTuple(rid, data, tr)
		if err != nil {
			return nil, base.RID{}, err
		}
		tr.AppendTableWrite(txn.TableWriteRecord{
			RID:     rid,
			Type:    txn.WriteUpdate,
			OldData: oldData,
			Table:   e.info.Heap,
		})

		for _, idx := range e.ctx.Catalog.GetTableIndexes(e.info.Name) {
			oldKey := old.KeyFromTuple(idx.KeyAttrs, idx.KeySize)
			newKey := updated.KeyFromTuple(idx.KeyAttrs, idx.KeySize)
			if bytes.Equal(oldKey, newKey) {
				continue
			}
			if err := idx.Index.DeleteEntry(oldKey, tr); err != nil {
				return nil, base.RID{}, err
			}
			tr.AppendIndexWrite(txn.IndexWriteRecord{
				RID: rid, Type: txn.WriteDelete, Key: oldKey, Index: idx.Index,
			})
			if err := idx.Index.InsertEntry(newKey, rid, tr); err != nil {
				return nil, base.RID{}, err
			}
			tr.AppendIndexWrite(txn.IndexWriteRecord{
				RID: rid, Type: txn.WriteInsert, Key: newKey, Index: idx.Index,
			})
		}

		if e.ctx.LockMgr != nil && tr.Isolation() == txn.ReadCommitted {
			e.ctx.LockMgr.Unlock(tr, rid)
		}
	}
}
