package execution

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"relic/internal/base"
	"relic/internal/table"
)

// AggExpression evaluates over a finished group: its group-by values
// and aggregate results.
type AggExpression interface {
	EvalAggregate(groups, aggs []table.Value) (table.Value, error)
}

// GroupByRef reads group-by column i.
type GroupByRef struct{ Idx int }

func (g *GroupByRef) EvalAggregate(groups, _ []table.Value) (table.Value, error) {
	return groups[g.Idx], nil
}

// AggRef reads aggregate result i.
type AggRef struct{ Idx int }

func (a *AggRef) EvalAggregate(_, aggs []table.Value) (table.Value, error) {
	return aggs[a.Idx], nil
}

// AggConstant yields a fixed value.
type AggConstant struct{ V table.Value }

func (c *AggConstant) EvalAggregate(_, _ []table.Value) (table.Value, error) {
	return c.V, nil
}

// AggComparison compares two aggregate expressions, for HAVING.
type AggComparison struct {
	Op          CompareType
	Left, Right AggExpression
}

func (c *AggComparison) EvalAggregate(groups, aggs []table.Value) (table.Value, error) {
	l, err := c.Left.EvalAggregate(groups, aggs)
	if err != nil {
		return table.Value{}, err
	}
	r, err := c.Right.EvalAggregate(groups, aggs)
	if err != nil {
		return table.Value{}, err
	}
	return table.BoolValue(c.Op.apply(l.Compare(r))), nil
}

// aggBucket is one group in the hash table. Buckets live in hash
// chains keyed by the xxhash of the encoded group-by values; equality
// on the values themselves resolves collisions.
type aggBucket struct {
	groups []table.Value
	aggs   []table.Value
}

// AggregationExecutor fully materializes its child in Init, folding
// rows into per-group aggregate state, then emits one tuple per
// surviving group.
type AggregationExecutor struct {
	ctx   *Context
	plan  *AggregationPlan
	child Executor

	buckets map[uint64][]*aggBucket
	order   []*aggBucket
	pos     int
}

func (e *AggregationExecutor) Init() error {
	if err := e.child.Init(); err != nil {
		return childErr(err)
	}
	e.buckets = make(map[uint64][]*aggBucket)
	e.order = e.order[:0]
	e.pos = 0

	childSchema := e.plan.Child.OutputSchema()
	for {
		tuple, _, err := e.child.Next()
		if err != nil {
			return childErr(err)
		}
		if tuple == nil {
			break
		}
		groups := make([]table.Value, len(e.plan.GroupBys))
		for i, expr := range e.plan.GroupBys {
			if groups[i], err = expr.Eval(tuple, childSchema); err != nil {
				return err
			}
		}
		inputs := make([]table.Value, len(e.plan.Aggregates))
		for i, expr := range e.plan.Aggregates {
			if inputs[i], err = expr.Eval(tuple, childSchema); err != nil {
				return err
			}
		}
		e.combine(groups, inputs)
	}
	return nil
}

// combine folds one row's aggregate inputs into its group's bucket,
// creating the bucket with initial values on first sight.
func (e *AggregationExecutor) combine(groups, inputs []table.Value) {
	h := hashValues(groups)
	for _, b := range e.buckets[h] {
		if valuesEqual(b.groups, groups) {
			e.fold(b, inputs)
			return
		}
	}
	b := &aggBucket{groups: groups, aggs: make([]table.Value, len(inputs))}
	for i, typ := range e.plan.AggTypes {
		switch typ {
		case CountAggregate:
			b.aggs[i] = table.IntValue(1)
		default:
			b.aggs[i] = inputs[i]
		}
	}
	e.buckets[h] = append(e.buckets[h], b)
	e.order = append(e.order, b)
}

func (e *AggregationExecutor) fold(b *aggBucket, inputs []table.Value) {
	for i, typ := range e.plan.AggTypes {
		switch typ {
		case CountAggregate:
			b.aggs[i] = table.IntValue(b.aggs[i].Int + 1)
		case SumAggregate:
			b.aggs[i] = table.IntValue(b.aggs[i].Int + inputs[i].Int)
		case MinAggregate:
			if inputs[i].Compare(b.aggs[i]) < 0 {
				b.aggs[i] = inputs[i]
			}
		case MaxAggregate:
			if inputs[i].Compare(b.aggs[i]) > 0 {
				b.aggs[i] = inputs[i]
			}
		}
	}
}

func (e *AggregationExecutor) Next() (*table.Tuple, base.RID, error) {
	for e.pos < len(e.order) {
		b := e.order[e.pos]
		e.pos++
		if e.plan.Having != nil {
			match, err := e.plan.Having.EvalAggregate(b.groups, b.aggs)
			if err != nil {
				return nil, base.RID{}, err
			}
			if !match.AsBool() {
				continue
			}
		}
		out := &table.Tuple{Values: make([]table.Value, 0, len(b.groups)+len(b.aggs))}
		out.Values = append(out.Values, b.groups...)
		out.Values = append(out.Values, b.aggs...)
		return out, base.RID{}, nil
	}
	return nil, base.RID{}, nil
}

// hashValues hashes the encoded group-by values.
func hashValues(vals []table.Value) uint64 {
	d := xxhash.New()
	for _, v := range vals {
		switch v.Type {
		case table.IntType:
			fmt.Fprintf(d, "i%d|", v.Int)
		case table.VarcharType:
			fmt.Fprintf(d, "s%s|", v.Str)
		}
	}
	return d.Sum64()
}

func valuesEqual(a, b []table.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Compare(b[i]) != 0 {
			return false
		}
	}
	return true
}
