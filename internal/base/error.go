package base

import "errors"

var (
	// ErrOutOfMemory is returned when the buffer pool has no free frame
	// and no unpinned page to evict.
	ErrOutOfMemory = errors.New("buffer pool out of memory")

	// ErrChildExecution wraps a failure raised by a child executor.
	ErrChildExecution = errors.New("child executor failed")

	// ErrTupleNotFound is returned when a record id does not resolve to
	// a live tuple.
	ErrTupleNotFound = errors.New("tuple not found")

	// ErrLockOnShrinking is the abort reason for lock requests made
	// after the transaction started releasing locks.
	ErrLockOnShrinking = errors.New("lock requested while shrinking")

	// ErrUpgradeConflict is the abort reason when two transactions race
	// to upgrade the same shared lock.
	ErrUpgradeConflict = errors.New("concurrent lock upgrade")

	// ErrDeadlock is the abort reason for deadlock victims.
	ErrDeadlock = errors.New("deadlock victim")

	// ErrInvalidChecksum signals that a page read back from disk does
	// not match the hash recorded at write time.
	ErrInvalidChecksum = errors.New("invalid page checksum")
)
