package execution

import (
	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/table"
	"relic/internal/txn"
)

// SeqScanExecutor walks a table heap front to back. Row locks follow
// the transaction's isolation level: READ_UNCOMMITTED takes none,
// READ_COMMITTED releases the shared lock right after the row is read,
// REPEATABLE_READ keeps it until the transaction ends.
type SeqScanExecutor struct {
	ctx  *Context
	plan *SeqScanPlan

	info *catalog.TableInfo
	iter *table.Iterator
}

func (e *SeqScanExecutor) Init() error {
	info, err := e.ctx.Catalog.GetTableByOID(e.plan.TableOID)
	if err != nil {
		return err
	}
	e.info = info
	e.iter = info.Heap.Iterate(e.ctx.Txn)
	return nil
}

func (e *SeqScanExecutor) Next() (*table.Tuple, base.RID, error) {
	tr := e.ctx.Txn
	for {
		data, rid, ok := e.iter.Next()
		if !ok {
			if err := e.iter.Err(); err != nil {
				return nil, base.RID{}, err
			}
			return nil, base.RID{}, nil
		}

		if e.ctx.LockMgr != nil && tr.Isolation() != txn.ReadUncommitted {
			if !tr.IsSharedLocked(rid) && !tr.IsExclusiveLocked(rid) {
				if err := e.ctx.LockMgr.LockShared(tr, rid); err != nil {
					return nil, base.RID{}, err
				}
			}
		}

		tuple, err := table.DeserializeTuple(data, e.info.Schema, rid)
		if err != nil {
			return nil, base.RID{}, err
		}
		out, err := project(tuple, e.info.Schema, e.plan.Projections)
		if err != nil {
			return nil, base.RID{}, err
		}

		if e.ctx.LockMgr != nil && tr.Isolation() == txn.ReadCommitted {
			e.ctx.LockMgr.Unlock(tr, rid)
		}

		if e.plan.Predicate != nil {
			match, err := e.plan.Predicate.Eval(out, e.plan.Schema)
			if err != nil {
				return nil, base.RID{}, err
			}
			if !match.AsBool() {
				continue
			}
		}
		return out, rid, nil
	}
}
