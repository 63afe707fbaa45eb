package execution

import (
	"errors"
	"fmt"

	"relic/internal/base"
	"relic/internal/catalog"
	"relic/internal/table"
	"relic/internal/txn"
)

// Context carries the engine singletons and the current transaction
// through an executor tree.
type Context struct {
	Txn     *txn.Transaction
	Catalog *catalog.Catalog
	LockMgr *txn.LockManager
	TxnMgr  *txn.Manager
}

// Executor is the iterator contract every operator implements. Next
// returns a nil tuple once the operator is exhausted.
type Executor interface {
	Init() error
	Next() (*table.Tuple, base.RID, error)
}

// Build constructs the executor tree for a plan.
func Build(plan Plan, ctx *Context) (Executor, error) {
	switch p := plan.(type) {
	case *SeqScanPlan:
		return &SeqScanExecutor{ctx: ctx, plan: p}, nil
	case *IndexScanPlan:
		return &IndexScanExecutor{ctx: ctx, plan: p}, nil
	case *InsertPlan:
		var child Executor
		if !p.IsRawInsert() {
			var err error
			if child, err = Build(p.Child, ctx); err != nil {
				return nil, err
			}
		}
		return &InsertExecutor{ctx: ctx, plan: p, child: child}, nil
	case *UpdatePlan:
		child, err := Build(p.Child, ctx)
		if err != nil {
			return nil, err
		}
		return &UpdateExecutor{ctx: ctx, plan: p, child: child}, nil
	case *DeletePlan:
		child, err := Build(p.Child, ctx)
		if err != nil {
			return nil, err
		}
		return &DeleteExecutor{ctx: ctx, plan: p, child: child}, nil
	case *NestedLoopJoinPlan:
		left, err := Build(p.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := Build(p.Right, ctx)
		if err != nil {
			return nil, err
		}
		return &NestedLoopJoinExecutor{ctx: ctx, plan: p, left: left, right: right}, nil
	case *NestedIndexJoinPlan:
		child, err := Build(p.Child, ctx)
		if err != nil {
			return nil, err
		}
		return NewNestedIndexJoinExecutor(ctx, p, child), nil
	case *AggregationPlan:
		child, err := Build(p.Child, ctx)
		if err != nil {
			return nil, err
		}
		return &AggregationExecutor{ctx: ctx, plan: p, child: child}, nil
	case *LimitPlan:
		child, err := Build(p.Child, ctx)
		if err != nil {
			return nil, err
		}
		return &LimitExecutor{ctx: ctx, plan: p, child: child}, nil
	}
	return nil, fmt.Errorf("execution: unknown plan %T", plan)
}

// childErr wraps a child failure, keeping transactional aborts intact
// so the transaction manager can catch and roll back.
func childErr(err error) error {
	var abort *txn.AbortError
	if errors.As(err, &abort) {
		return err
	}
	return fmt.Errorf("%w: %v", base.ErrChildExecution, err)
}

// project applies one expression per output column, or passes the
// tuple through when projections are absent.
func project(t *table.Tuple, s *table.Schema, projections []Expression) (*table.Tuple, error) {
	if projections == nil {
		return t, nil
	}
	out := &table.Tuple{Values: make([]table.Value, 0, len(projections)), RID: t.RID}
	for _, e := range projections {
		v, err := e.Eval(t, s)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// Row pairs an output tuple with the record id it came from, for
// callers that drain a whole plan.
type Row struct {
	Tuple *table.Tuple
	RID   base.RID
}
