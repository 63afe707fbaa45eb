package execution

import (
	"relic/internal/base"
	"relic/internal/table"
)

// LimitExecutor skips Offset rows from its child, then forwards at
// most Limit.
type LimitExecutor struct {
	ctx   *Context
	plan  *LimitPlan
	child Executor

	seen int
}

func (e *LimitExecutor) Init() error {
	e.seen = 0
	return e.child.Init()
}

func (e *LimitExecutor) Next() (*table.Tuple, base.RID, error) {
	for {
		tuple, rid, err := e.child.Next()
		if err != nil {
			return nil, base.RID{}, childErr(err)
		}
		if tuple == nil {
			return nil, base.RID{}, nil
		}
		if e.seen < e.plan.Offset {
			e.seen++
			continue
		}
		if e.seen >= e.plan.Offset+e.plan.Limit {
			return nil, base.RID{}, nil
		}
		e.seen++
		return tuple, rid, nil
	}
}
