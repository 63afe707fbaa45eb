package relic

import (
	"relic/internal/base"
	"relic/internal/txn"
)

var (
	ErrOutOfMemory     = base.ErrOutOfMemory
	ErrChildExecution  = base.ErrChildExecution
	ErrTupleNotFound   = base.ErrTupleNotFound
	ErrLockOnShrinking = base.ErrLockOnShrinking
	ErrUpgradeConflict = base.ErrUpgradeConflict
	ErrDeadlock        = base.ErrDeadlock
	ErrInvalidChecksum = base.ErrInvalidChecksum
)

// AbortError is raised by locking operations that abort their
// transaction. Match the reason with errors.Is against ErrDeadlock,
// ErrLockOnShrinking, or ErrUpgradeConflict.
type AbortError = txn.AbortError
