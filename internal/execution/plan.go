package execution

import (
	"relic/internal/catalog"
	"relic/internal/table"
)

// Plan is a node of a physical query plan. Plans carry the schema of
// the tuples they emit; executors do the work.
type Plan interface {
	OutputSchema() *table.Schema
}

// SeqScanPlan scans a table heap, optionally filtering and projecting.
// A nil Projections emits table rows unchanged.
type SeqScanPlan struct {
	TableOID    catalog.TableOID
	Predicate   Expression
	Projections []Expression
	Schema      *table.Schema
}

func (p *SeqScanPlan) OutputSchema() *table.Schema { return p.Schema }

// IndexScanPlan scans a B+ tree index in key order, fetching rows from
// the backing table.
type IndexScanPlan struct {
	IndexOID    catalog.IndexOID
	Predicate   Expression
	Projections []Expression
	Schema      *table.Schema
}

func (p *IndexScanPlan) OutputSchema() *table.Schema { return p.Schema }

// InsertPlan inserts raw rows, or its child's output, into a table.
type InsertPlan struct {
	TableOID  catalog.TableOID
	RawValues [][]table.Value
	Child     Plan
}

// IsRawInsert reports whether the rows come embedded in the plan.
func (p *InsertPlan) IsRawInsert() bool { return p.Child == nil }

func (p *InsertPlan) OutputSchema() *table.Schema { return nil }

// UpdatePlan rewrites columns of the child's rows in place.
type UpdatePlan struct {
	TableOID catalog.TableOID
	Updates  map[int]UpdateInfo
	Child    Plan
}

func (p *UpdatePlan) OutputSchema() *table.Schema { return nil }

// DeletePlan removes the child's rows from a table.
type DeletePlan struct {
	TableOID catalog.TableOID
	Child    Plan
}

func (p *DeletePlan) OutputSchema() *table.Schema { return nil }

// NestedLoopJoinPlan joins two children on a predicate.
type NestedLoopJoinPlan struct {
	Predicate   Expression
	Left, Right Plan
	Schema      *table.Schema
}

func (p *NestedLoopJoinPlan) OutputSchema() *table.Schema { return p.Schema }

// NestedIndexJoinPlan joins the child against an inner table through
// that table's index: one probe per outer row.
type NestedIndexJoinPlan struct {
	InnerTableOID catalog.TableOID
	IndexName     string
	OuterKeyAttrs []int
	Child         Plan
	Projections   []Expression
	Schema        *table.Schema
}

func (p *NestedIndexJoinPlan) OutputSchema() *table.Schema { return p.Schema }

// AggregationType enumerates the supported aggregates.
type AggregationType int

const (
	CountAggregate AggregationType = iota
	SumAggregate
	MinAggregate
	MaxAggregate
)

// AggregationPlan groups the child's rows and folds aggregates over
// each group. Output tuples are the group-by values followed by the
// aggregate values, filtered by Having.
type AggregationPlan struct {
	GroupBys   []Expression
	Aggregates []Expression
	AggTypes   []AggregationType
	Having     AggExpression
	Child      Plan
	Schema     *table.Schema
}

func (p *AggregationPlan) OutputSchema() *table.Schema { return p.Schema }

// LimitPlan drops Offset rows, then passes through at most Limit.
type LimitPlan struct {
	Offset int
	Limit  int
	Child  Plan
}

func (p *LimitPlan) OutputSchema() *table.Schema { return p.Child.OutputSchema() }
