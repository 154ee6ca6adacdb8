package staking

import (
	"errors"

	coreerrors "deltastake/core/errors"
)

// Shared sentinels re-exported so callers only need this package.
var (
	ErrConfig     = coreerrors.ErrConfig
	ErrNotStarted = coreerrors.ErrNotStarted
	ErrArithmetic = coreerrors.ErrArithmetic
)

var (
	ErrAlreadyStarted         = errors.New("staking: staking has started")
	ErrDisabled               = errors.New("staking: contract is disabled")
	ErrNotDisabled            = errors.New("staking: contract is enabled")
	ErrUnauthorized           = errors.New("staking: caller is not the owner")
	ErrWrongToken             = errors.New("staking: wrong token")
	ErrContractNotWhitelisted = errors.New("staking: contract not whitelisted")
	ErrInvalidQuantity        = errors.New("staking: quantity must be exactly one")
	ErrAlreadyStaked          = errors.New("staking: token already staked")
	ErrTokenFrozen            = errors.New("staking: token still frozen")
	ErrNotStakedOrWrongOwner  = errors.New("staking: token not staked or incorrect token owner")
	ErrInvalidRange           = errors.New("staking: invalid period range")
	ErrInvalidAmount          = errors.New("staking: amount must be positive")
	ErrPeriodNotFundable      = errors.New("staking: period already started")
	ErrAlreadyWithdrawn       = errors.New("staking: cycle already withdrawn")
	ErrCycleNotElapsed        = errors.New("staking: cycle not elapsed")
	ErrInvalidSnapshot        = errors.New("staking: snapshot does not cover cycle")
	ErrNonZeroWeight          = errors.New("staking: cycle has non-zero global weight")
	ErrZeroAddress            = errors.New("staking: zero address")
	ErrTransferFailed         = errors.New("staking: transfer failed")
	ErrNilState               = errors.New("staking: state not configured")
)

var (
	errVaultNotSet   = errors.New("staking: rewards vault not configured")
	errCustodyNotSet = errors.New("staking: custody not configured")
)
