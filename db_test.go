package relic

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relic/internal/execution"
	"relic/internal/table"
	"relic/internal/txn"
)

func setup(t *testing.T, options ...Option) *DB {
	t.Helper()
	opts := append([]Option{WithCycleDetectionInterval(5 * time.Millisecond)}, options...)
	db, err := Open(filepath.Join(t.TempDir(), "relic.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenClose(t *testing.T) {
	t.Parallel()

	db := setup(t)
	require.NoError(t, db.Close())
	// Close is idempotent.
	require.NoError(t, db.Close())
}

func TestEndToEndStatementFlow(t *testing.T) {
	t.Parallel()

	db := setup(t)

	tr := db.Begin(txn.RepeatableRead)
	schema := table.NewSchema(
		table.Column{Name: "id", Type: table.IntType},
		table.Column{Name: "name", Type: table.VarcharType},
	)
	info, err := db.Catalog().CreateTable(tr, "users", schema)
	require.NoError(t, err)
	_, err = db.Catalog().CreateIndex(tr, "users_id", "users", []int{0}, 8, 0, 0)
	require.NoError(t, err)

	_, err = db.Execute(&execution.InsertPlan{
		TableOID: info.OID,
		RawValues: [][]table.Value{
			{table.IntValue(1), table.StringValue("ada")},
			{table.IntValue(2), table.StringValue("grace")},
			{table.IntValue(3), table.StringValue("edsger")},
		},
	}, tr)
	require.NoError(t, err)
	require.NoError(t, db.Commit(tr))

	tr2 := db.Begin(txn.ReadCommitted)
	rows, err := db.Execute(&execution.SeqScanPlan{TableOID: info.OID, Schema: schema}, tr2)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "grace", rows[1].Tuple.Values[1].Str)
	require.NoError(t, db.Commit(tr2))
}

func TestDeadlockVictimRaisedThroughEngine(t *testing.T) {
	t.Parallel()

	db := setup(t)

	tr := db.Begin(txn.RepeatableRead)
	schema := table.NewSchema(table.Column{Name: "v", Type: table.IntType})
	info, err := db.Catalog().CreateTable(tr, "pairs", schema)
	require.NoError(t, err)
	_, err = db.Execute(&execution.InsertPlan{
		TableOID: info.OID,
		RawValues: [][]table.Value{
			{table.IntValue(1)}, {table.IntValue(2)},
		},
	}, tr)
	require.NoError(t, err)
	require.NoError(t, db.Commit(tr))

	// Fish the row ids out without taking any locks.
	scan := &execution.SeqScanPlan{TableOID: info.OID, Schema: schema}
	ru := db.Begin(txn.ReadUncommitted)
	rows, err := db.Execute(scan, ru)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	r1, r2 := rows[0].RID, rows[1].RID
	require.NoError(t, db.Commit(ru))

	// T1 shares then upgrades r1; T2 shares r2. T1 chases X on r2
	// while T2 chases X on r1: a cycle the detector must break by
	// aborting the younger T2.
	t1 := db.Begin(txn.RepeatableRead)
	t2 := db.Begin(txn.RepeatableRead)
	lm := db.LockManager()
	require.NoError(t, lm.LockShared(t1, r1))
	require.NoError(t, lm.LockShared(t2, r2))
	require.NoError(t, lm.LockUpgrade(t1, r1))

	done1 := make(chan error, 1)
	go func() { done1 <- lm.LockExclusive(t1, r2) }()

	err2 := lm.LockExclusive(t2, r1)
	require.Error(t, err2)
	assert.ErrorIs(t, err2, ErrDeadlock)
	require.NoError(t, db.Abort(t2))

	require.NoError(t, <-done1)
	require.NoError(t, db.Commit(t1))
}

func TestReopenSeesCommittedPages(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "persist.db")
	db, err := Open(path)
	require.NoError(t, err)

	tr := db.Begin(txn.RepeatableRead)
	schema := table.NewSchema(table.Column{Name: "v", Type: table.IntType})
	info, err := db.Catalog().CreateTable(tr, "nums", schema)
	require.NoError(t, err)
	_, err = db.Execute(&execution.InsertPlan{
		TableOID:  info.OID,
		RawValues: [][]table.Value{{table.IntValue(42)}},
	}, tr)
	require.NoError(t, err)
	require.NoError(t, db.Commit(tr))
	firstPage := info.Heap.FirstPageID()
	require.NoError(t, db.Close())

	// The catalog is in-memory, but the heap pages are durable:
	// reattach to the same chain after reopening.
	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	heap := table.OpenHeap(db2.Pool(), firstPage)
	it := heap.Iterate(nil)
	data, rid, ok := it.Next()
	require.True(t, ok)
	tuple, err := table.DeserializeTuple(data, schema, rid)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tuple.Values[0].Int)
}
