package execution

import (
	"relic/internal/base"
	"relic/internal/table"
)

// NestedLoopJoinExecutor materializes both inputs in Init and emits
// every pair the predicate accepts.
type NestedLoopJoinExecutor struct {
	ctx         *Context
	plan        *NestedLoopJoinPlan
	left, right Executor

	results []*table.Tuple
	pos     int
}

func (e *NestedLoopJoinExecutor) Init() error {
	leftRows, err := drain(e.left)
	if err != nil {
		return childErr(err)
	}
	rightRows, err := drain(e.right)
	if err != nil {
		return childErr(err)
	}

	leftSchema := e.plan.Left.OutputSchema()
	rightSchema := e.plan.Right.OutputSchema()
	e.results = e.results[:0]
	e.pos = 0
	for _, l := range leftRows {
		for _, r := range rightRows {
			if e.plan.Predicate != nil {
				match, err := e.plan.Predicate.EvalJoin(l, leftSchema, r, rightSchema)
				if err != nil {
					return err
				}
				if !match.AsBool() {
					continue
				}
			}
			joined := &table.Tuple{Values: make([]table.Value, 0, len(l.Values)+len(r.Values))}
			joined.Values = append(joined.Values, l.Values...)
			joined.Values = append(joined.Values, r.Values...)
			e.results = append(e.results, joined)
		}
	}
	return nil
}

func (e *NestedLoopJoinExecutor) Next() (*table.Tuple, base.RID, error) {
	if e.pos >= len(e.results) {
		return nil, base.RID{}, nil
	}
	t := e.results[e.pos]
	e.pos++
	return t, base.RID{}, nil
}

// drain inits a child and collects its full output.
func drain(child Executor) ([]*table.Tuple, error) {
	if err := child.Init(); err != nil {
		return nil, err
	}
	var rows []*table.Tuple
	for {
		t, _, err := child.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return rows, nil
		}
		rows = append(rows, t)
	}
}
