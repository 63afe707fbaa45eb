package execution

import (
	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/table"
	"relic/internal/txn"
)

// InsertExecutor inserts raw plan rows or its child's output into a
// table, maintaining every index on it. It produces no tuples; the
// first Next does all the work.
type InsertExecutor struct {
	ctx   *Context
	plan  *InsertPlan
	child Executor

	info *catalog.TableInfo
	done bool
}

func (e *InsertExecutor) Init() error {
	info, err := e.ctx.Catalog.GetTableByOID(e.plan.TableOID)
	if err != nil {
		return err
	}
	e.info = info
	return nil
}

func (e *InsertExecutor) Next() (*table.Tuple, base.RID, error) {
	if e.done {
		return nil, base.RID{}, nil
	}
	e.done = true

	if e.plan.IsRawInsert() {
		for _, row := range e.plan.RawValues {
			if err := e.insertOne(&table.Tuple{Values: row}); err != nil {
				return nil, base.RID{}, err
			}
		}
		return nil, base.RID{}, nil
	}

	if err := e.child.Init(); err != nil {
		return nil, base.RID{}, childErr(err)
	}
	for {
		tuple, _, err := e.child.Next()
		if err != nil {
			return nil, base.RID{}, childErr(err)
		}
		if tuple == nil {
			return nil, base.RID{}, nil
		}
		if err := e.insertOne(tuple); err != nil {
			return nil, base.RID{}, err
		}
	}
}

// insertOne writes the tuple to the heap and each index, recording
// both in the transaction's write sets for rollback.
func (e *InsertExecutor) insertOne(tuple *table.Tuple) error {
	tr := e.ctx.Txn
	data, err := tuple.Serialize(e.info.Schema)
	if err != nil {
		return err
	}
	rid, err := e.info.Heap.InsertTuple(data, tr)
	if err != nil {
		return err
	}
	tuple.RID = rid
	tr.AppendTableWrite(txn.TableWriteRecord{
		RID:   rid,
		Type:  txn.WriteInsert,
		Table: e.info.Heap,
	})

	for _, idx := range e.ctx.Catalog.GetTableIndexes(e.info.Name) {
		key := tuple.KeyFromTuple(idx.KeyAttrs, idx.KeySize)
		if err := idx.Index.InsertEntry(key, rid, tr); err != nil {
			return err
		}
		tr.AppendIndexWrite(txn.IndexWriteRecord{
			RID:   rid,
			Type:  txn.WriteInsert,
			Key:   key,
			Index: idx.Index,
		})
	}
	return nil
}
