package execution

import (
	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/table"
	"relic/internal/txn"
)

// DeleteExecutor marks its child's rows deleted and removes their
// index entries. The marks become permanent at commit and are rolled
// back on abort.
type DeleteExecutor struct {
	ctx   *Context
	plan  *DeletePlan
	child Executor

	info *catalog.TableInfo
	done bool
}

func (e *DeleteExecutor) Init() error {
	info, err := e.ctx.Catalog.GetTableByOID(e.plan.TableOID)
	if err != nil {
		return err
	}
	e.info = info
	return e.child.Init()
}

func (e *DeleteExecutor) Next() (*table.Tuple, base.RID, error) {
	if e.done {
		return nil, base.RID{}, nil
	}
	e.done = true
	tr := e.ctx.Txn

	for {
		tuple, rid, err := e.child.Next()
		if err != nil {
			return nil, base.RID{}, childErr(err)
		}
		if tuple == nil {
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

		if err := e.info.Heap.MarkDelete(rid, tr); err != nil {
			return nil, base.RID{}, err
		}
		tr.AppendTableWrite(txn.TableWriteRecord{
			RID:   rid,
			Type:  txn.WriteDelete,
			Table: e.info.Heap,
		})

		for _, idx := range e.ctx.Catalog.GetTableIndexes(e.info.Name) {
			key := tuple.KeyFromTuple(idx.KeyAttrs, idx.KeySize)
			if err := idx.Index.DeleteEntry(key, tr); err != nil {
				return nil, base.RID{}, err
			}
			tr.AppendIndexWrite(txn.IndexWriteRecord{
				RID: rid, Type: txn.WriteDelete, Key: key, Index: idx.Index,
			})
		}

		if e.ctx.LockMgr != nil && tr.Isolation() == txn.ReadCommitted {
			e.ctx.LockMgr.Unlock(tr, rid)
		}
	}
}
