package execution

import (
	"fmt"

	"relic/internal/table"
)

// Expression evaluates against a single tuple, or against a pair of
// tuples when used as a join predicate.
type Expression interface {
	Eval(t *table.Tuple, s *table.Schema) (table.Value, error)
	EvalJoin(l *table.Tuple, ls *table.Schema, r *table.Tuple, rs *table.Schema) (table.Value, error)
}

// ColumnRef reads one column. TupleIdx selects the join side: 0 for
// the only/left tuple, 1 for the right.
type ColumnRef struct {
	TupleIdx int
	ColIdx   int
}

func (c *ColumnRef) Eval(t *table.Tuple, _ *table.Schema) (table.Value, error) {
	if c.ColIdx >= len(t.Values) {
		return table.Value{}, fmt.Errorf("execution: column %d out of range", c.ColIdx)
	}
	return t.Values[c.ColIdx], nil
}

func (c *ColumnRef) EvalJoin(l *table.Tuple, _ *table.Schema, r *table.Tuple, _ *table.Schema) (table.Value, error) {
	t := l
	if c.TupleIdx == 1 {
		t = r
	}
	if c.ColIdx >= len(t.Values) {
		return table.Value{}, fmt.Errorf("execution: column %d out of range", c.ColIdx)
	}
	return t.Values[c.ColIdx], nil
}

// Constant yields a fixed value.
type Constant struct {
	V table.Value
}

func (c *Constant) Eval(*table.Tuple, *table.Schema) (table.Value, error) { return c.V, nil }

func (c *Constant) EvalJoin(*table.Tuple, *table.Schema, *table.Tuple, *table.Schema) (table.Value, error) {
	return c.V, nil
}

// CompareType enumerates comparison operators.
type CompareType int

const (
	CmpEq CompareType = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (op CompareType) apply(c int) bool {
	switch op {
	case CmpEq:
		return c == 0
	case CmpNe:
		return c != 0
	case CmpLt:
		return c < 0
	case CmpLe:
		return c <= 0
	case CmpGt:
		return c > 0
	case CmpGe:
		return c >= 0
	}
	return false
}

// Comparison applies op to its operands, yielding a boolean value.
type Comparison struct {
	Op          CompareType
	Left, Right Expression
}

func (c *Comparison) Eval(t *table.Tuple, s *table.Schema) (table.Value, error) {
	l, err := c.Left.Eval(t, s)
	if err != nil {
		return table.Value{}, err
	}
	r, err := c.Right.Eval(t, s)
	if err != nil {
		return table.Value{}, err
	}
	return table.BoolValue(c.Op.apply(l.Compare(r))), nil
}

func (c *Comparison) EvalJoin(l *table.Tuple, ls *table.Schema, r *table.Tuple, rs *table.Schema) (table.Value, error) {
	lv, err := c.Left.EvalJoin(l, ls, r, rs)
	if err != nil {
		return table.Value{}, err
	}
	rv, err := c.Right.EvalJoin(l, ls, r, rs)
	if err != nil {
		return table.Value{}, err
	}
	return table.BoolValue(c.Op.apply(lv.Compare(rv))), nil
}

// UpdateType selects how an update expression changes a column.
type UpdateType int

const (
	// UpdateSet overwrites the column with the operand.
	UpdateSet UpdateType = iota
	// UpdateAdd adds the operand to an integer column.
	UpdateAdd
)

// UpdateInfo describes the new value for one column.
type UpdateInfo struct {
	Type    UpdateType
	Operand table.Value
}

// applyUpdates produces the updated copy of a tuple.
func applyUpdates(t *table.Tuple, updates map[int]UpdateInfo) *table.Tuple {
	out := &table.Tuple{Values: append([]table.Value(nil), t.Values...), RID: t.RID}
	for i, u := range updates {
		switch u.Type {
		case UpdateSet:
			out.Values[i] = u.Operand
		case UpdateAdd:
			out.Values[i] = table.IntValue(out.Values[i].Int + u.Operand.Int)
		}
	}
	return out
}
