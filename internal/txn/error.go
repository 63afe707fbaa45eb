package txn

import (
	"fmt"
)

// AbortError is raised by locking operations that abort their
// transaction. Reason is one of base.ErrLockOnShrinking,
// base.ErrUpgradeConflict, or base.ErrDeadlock and matches with
// errors.Is.
type AbortError struct {
	TxnID  ID
	Reason error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transaction %d aborted: %v", e.TxnID, e.Reason)
}

func (e *AbortError) Unwrap() error { return e.Reason }
