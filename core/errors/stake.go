package errors

import stderrors "errors"

var (
	// ErrConfig reports invalid construction parameters (cycle or period
	// lengths, weight tables, addresses).
	ErrConfig = stderrors.New("staking: invalid configuration")
	// ErrNotStarted is returned by time dependent calls made before the pool
	// start time has been fixed.
	ErrNotStarted = stderrors.New("staking: staking not started")
	// ErrArithmetic signals an overflow, underflow or division by zero. It
	// never occurs while the ledger invariants hold.
	ErrArithmetic = stderrors.New("staking: arithmetic error")
)
