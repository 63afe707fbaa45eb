package relic

import (
	"relic/internal/base"
	"relic/internal/buffer"
	"relic/internal/catalog"
	"relic/internal/execution"
	"relic/internal/storage"
	"relic/internal/txn"
)

// DB owns the engine singletons: disk manager, buffer pool, lock
// manager, transaction manager, and catalog. Everything flows through
// an execution context rather than package globals.
type DB struct {
	disk    *storage.FileDiskManager
	pool    *buffer.Pool
	lockMgr *txn.LockManager
	txnMgr  *txn.Manager
	catalog *catalog.Catalog
	log     Logger
	closed  bool
}

// Open opens or creates the database file at path and wires up the
// engine. The header page (page 0) is allocated on first open.
func Open(path string, options ...Option) (*DB, error) {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	disk, err := storage.NewFileDiskManager(path, opts.syncWrites)
	if err != nil {
		return nil, err
	}
	pool := buffer.NewPool(opts.poolSize, disk, opts.logger)

	// Reserve the header page on a fresh file.
	if disk.NumPages() == 0 {
		if err := allocateHeaderPage(pool); err != nil {
			disk.Close()
			return nil, err
		}
	}

	lockMgr := txn.NewLockManager(opts.detectionInterval, opts.logger)
	d := &DB{
		disk:    disk,
		pool:    pool,
		lockMgr: lockMgr,
		txnMgr:  txn.NewManager(lockMgr),
		catalog: catalog.NewCatalog(pool),
		log:     opts.logger,
	}
	return d, nil
}

// allocateHeaderPage claims page 0 of a brand-new file.
func allocateHeaderPage(pool *buffer.Pool) error {
	page, err := pool.NewPage()
	if err != nil {
		return err
	}
	if page.ID() != base.HeaderPageID {
		panic("relic: header page must be page 0")
	}
	pool.UnpinPage(page.ID(), true)
	return nil
}

// Close stops the deadlock detector, flushes every resident page, and
// closes the file.
func (d *DB) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.lockMgr.Close()
	d.pool.FlushAll()
	return d.disk.Close()
}

// Begin starts a transaction.
func (d *DB) Begin(isolation txn.IsolationLevel) *txn.Transaction {
	return d.txnMgr.Begin(isolation)
}

// Commit commits a transaction.
func (d *DB) Commit(t *txn.Transaction) error {
	return d.txnMgr.Commit(t)
}

// Abort rolls a transaction back.
func (d *DB) Abort(t *txn.Transaction) error {
	return d.txnMgr.Abort(t)
}

// Catalog returns the table and index registry.
func (d *DB) Catalog() *catalog.Catalog { return d.catalog }

// Pool returns the buffer pool.
func (d *DB) Pool() *buffer.Pool { return d.pool }

// LockManager returns the lock manager.
func (d *DB) LockManager() *txn.LockManager { return d.lockMgr }

// TxnManager returns the transaction manager.
func (d *DB) TxnManager() *txn.Manager { return d.txnMgr }

// ExecContext builds an execution context for t.
func (d *DB) ExecContext(t *txn.Transaction) *execution.Context {
	return &execution.Context{
		Txn:     t,
		Catalog: d.catalog,
		LockMgr: d.lockMgr,
		TxnMgr:  d.txnMgr,
	}
}

// Execute builds and drains the executor tree for plan, returning its
// output rows. A transactional abort error leaves rollback to the
// caller.
func (d *DB) Execute(plan execution.Plan, t *txn.Transaction) ([]*execution.Row, error) {
	exec, err := execution.Build(plan, d.ExecContext(t))
	if err != nil {
		return nil, err
	}
	if err := exec.Init(); err != nil {
		return nil, err
	}
	var rows []*execution.Row
	for {
		tuple, rid, err := exec.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			return rows, nil
		}
		rows = append(rows, &execution.Row{Tuple: tuple, RID: rid})
	}
}
