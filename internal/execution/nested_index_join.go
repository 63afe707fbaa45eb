package execution

import (
	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/table"
)

// probeCacheSize bounds the per-join memo of inner-row probes. Joins
// whose outer side repeats keys skip the index descent entirely.
const probeCacheSize = 512

// NestedIndexJoinExecutor probes the inner table's index once per
// outer row. Probe results are memoized in a bounded LRU keyed by the
// hash of the encoded key, so skewed outer inputs do not re-descend
// the tree.
type NestedIndexJoinExecutor struct {
	ctx   *Context
	plan  *NestedIndexJoinPlan
	child Executor

	innerTable *catalog.TableInfo
	innerIndex *catalog.IndexInfo
	probes     *freelru.LRU[uint64, *table.Tuple]
}

// NewNestedIndexJoinExecutor wires the probe cache eagerly so a failed
// allocation surfaces at build time.
func NewNestedIndexJoinExecutor(ctx *Context, plan *NestedIndexJoinPlan, child Executor) *NestedIndexJoinExecutor {
	probes, err := freelru.New[uint64, *table.Tuple](probeCacheSize, func(k uint64) uint32 {
		return uint32(k ^ k>>32)
	})
	if err != nil {
		panic("execution: probe cache sizing is static and must construct")
	}
	return &NestedIndexJoinExecutor{ctx: ctx, plan: plan, child: child, probes: probes}
}

func (e *NestedIndexJoinExecutor) Init() error {
	innerTable, err := e.ctx.Catalog.GetTableByOID(e.plan.InnerTableOID)
	if err != nil {
		return err
	}
	innerIndex, err := e.ctx.Catalog.GetIndex(e.plan.IndexName, innerTable.Name)
	if err != nil {
		return err
	}
	e.innerTable = innerTable
	e.innerIndex = innerIndex
	e.probes.Purge()
	return e.child.Init()
}

func (e *NestedIndexJoinExecutor) Next() (*table.Tuple, base.RID, error) {
	for {
		outer, _, err := e.child.Next()
		if err != nil {
			return nil, base.RID{}, childErr(err)
		}
		if outer == nil {
			return nil, base.RID{}, nil
		}

		key := outer.KeyFromTuple(e.plan.OuterKeyAttrs, e.innerIndex.KeySize)
		inner, err := e.probe(key)
		if err != nil {
			return nil, base.RID{}, err
		}
		if inner == nil {
			continue
		}

		out, err := e.merge(outer, inner)
		if err != nil {
			return nil, base.RID{}, err
		}
		return out, base.RID{}, nil
	}
}

// probe resolves the inner row for key, consulting the memo first.
// A nil row with nil error means no match.
func (e *NestedIndexJoinExecutor) probe(key []byte) (*table.Tuple, error) {
	h := xxhash.Sum64(key)
	if row, ok := e.probes.Get(h); ok {
		return row, nil
	}
	rid, found, err := e.innerIndex.Index.GetValue(key, e.ctx.Txn)
	if err != nil {
		return nil, err
	}
	if !found {
		e.probes.Add(h, nil)
		return nil, nil
	}
	data, err := e.innerTable.Heap.GetTuple(rid, e.ctx.Txn)
	if err != nil {
		return nil, err
	}
	row, err := table.DeserializeTuple(data, e.innerTable.Schema, rid)
	if err != nil {
		return nil, err
	}
	e.probes.Add(h, row)
	return row, nil
}

func (e *NestedIndexJoinExecutor) merge(outer, inner *table.Tuple) (*table.Tuple, error) {
	if e.plan.Projections != nil {
		outerSchema := e.plan.Child.OutputSchema()
		out := &table.Tuple{Values: make([]table.Value, 0, len(e.plan.Projections))}
		for _, expr := range e.plan.Projections {
			v, err := expr.EvalJoin(outer, outerSchema, inner, e.innerTable.Schema)
			if err != nil {
				return nil, err
			}
			out.Values = append(out.Values, v)
		}
		return out, nil
	}
	out := &table.Tuple{Values: make([]table.Value, 0, len(outer.Values)+len(inner.Values))}
	out.Values = append(out.Values, outer.Values...)
	out.Values = append(out.Values, inner.Values...)
	return out, nil
}
