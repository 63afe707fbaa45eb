package execution

import (
	"fmt"

	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/index"
	"relic/internal/table"
)

// IndexScanExecutor walks an index in key order and fetches each row
// from the backing table.
type IndexScanExecutor struct {
	ctx  *Context
	plan *IndexScanPlan

	indexInfo *catalog.IndexInfo
	tableInfo *catalog.TableInfo
	iter      *index.Iterator
}

func (e *IndexScanExecutor) Init() error {
	indexInfo, err := e.ctx.Catalog.GetIndexByOID(e.plan.IndexOID)
	if err != nil {
		return err
	}
	tableInfo, err := e.ctx.Catalog.GetTable(indexInfo.TableName)
	if err != nil {
		return err
	}
	iter, err := indexInfo.Index.Begin()
	if err != nil {
		return err
	}
	e.indexInfo = indexInfo
	e.tableInfo = tableInfo
	e.iter = iter
	return nil
}

func (e *IndexScanExecutor) Next() (*table.Tuple, base.RID, error) {
	for {
		_, rid, ok := e.iter.Next()
		if !ok {
			if err := e.iter.Err(); err != nil {
				return nil, base.RID{}, err
			}
			return nil, base.RID{}, nil
		}
		data, err := e.tableInfo.Heap.GetTuple(rid, e.ctx.Txn)
		if err != nil {
			e.iter.Close()
			return nil, base.RID{}, fmt.Errorf("index scan: %w", err)
		}
		tuple, err := table.DeserializeTuple(data, e.tableInfo.Schema, rid)
		if err != nil {
			return nil, base.RID{}, err
		}
		out, err := project(tuple, e.tableInfo.Schema, e.plan.Projections)
		if err != nil {
			return nil, base.RID{}, err
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
