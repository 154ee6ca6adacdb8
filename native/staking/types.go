package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolState is the lifecycle state of the pool.
type PoolState struct {
	Started   bool
	StartTime int64
	Disabled  bool
	// TotalRewardsPool is the cumulative amount funded through the schedule.
	TotalRewardsPool *big.Int
}

// TokenInfo records a deposited token.
type TokenInfo struct {
	Ref          TokenRef
	Owner        common.Address
	DepositCycle uint64
	Weight       uint64
}

// StakerState is the per-staker bookkeeping outside the weight history.
type StakerState struct {
	LastClaimedPeriod uint64
	Tokens            []TokenRef
}

// Claim describes a reward claim over consecutive periods.
type Claim struct {
	StartPeriod uint64
	Periods     uint64
	Amount      *big.Int
}

// EndPeriod returns the last period covered, or StartPeriod-1 when empty.
func (c Claim) EndPeriod() uint64 {
	if c.Periods == 0 {
		if c.StartPeriod == 0 {
			return 0
		}
		return c.StartPeriod - 1
	}
	return c.StartPeriod + c.Periods - 1
}

// LostCycle is a funded, elapsed cycle during which nobody was staked.
type LostCycle struct {
	Cycle uint64
	// GlobalSnapshotIndex is the global snapshot in force during the cycle,
	// -1 when the cycle precedes the first snapshot.
	GlobalSnapshotIndex int
	Rewards             *big.Int
}

func (p *PoolState) clone() *PoolState {
	if p == nil {
		return &PoolState{TotalRewardsPool: big.NewInt(0)}
	}
	out := *p
	out.TotalRewardsPool = newBigInt(p.TotalRewardsPool)
	return &out
}

func (s *StakerState) clone() *StakerState {
	if s == nil {
		return nil
	}
	out := *s
	out.Tokens = append([]TokenRef(nil), s.Tokens...)
	return &out
}

func (t *TokenInfo) clone() *TokenInfo {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
