package staking

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativestaking "deltastake/native/staking"
	"deltastake/state/snapshots"
)

type storedPool struct {
	Started          bool
	StartTime        uint64
	Disabled         bool
	TotalRewardsPool *big.Int
}

func newStoredPool(p *nativestaking.PoolState) (*storedPool, error) {
	total, err := boundedAmount(p.TotalRewardsPool)
	if err != nil {
		return nil, err
	}
	start := p.StartTime
	if start < 0 {
		start = 0
	}
	return &storedPool{
		Started:          p.Started,
		StartTime:        uint64(start),
		Disabled:         p.Disabled,
		TotalRewardsPool: total,
	}, nil
}

func (s *storedPool) toPool() *nativestaking.PoolState {
	total := big.NewInt(0)
	if s.TotalRewardsPool != nil {
		total.Set(s.TotalRewardsPool)
	}
	return &nativestaking.PoolState{
		Started:          s.Started,
		StartTime:        int64(s.StartTime),
		Disabled:         s.Disabled,
		TotalRewardsPool: total,
	}
}

type storedTokenRef struct {
	Contract common.Address
	ID       [32]byte
}

func newStoredTokenRef(ref nativestaking.TokenRef) storedTokenRef {
	return storedTokenRef{Contract: ref.Contract, ID: ref.ID.Bytes32()}
}

func (s storedTokenRef) toRef() nativestaking.TokenRef {
	return nativestaking.NewTokenRef(s.Contract, new(uint256.Int).SetBytes32(s.ID[:]))
}

type storedStaker struct {
	LastClaimedPeriod uint64
	Tokens            []storedTokenRef
}

func newStoredStaker(st *nativestaking.StakerState) *storedStaker {
	out := &storedStaker{LastClaimedPeriod: st.LastClaimedPeriod, Tokens: make([]storedTokenRef, len(st.Tokens))}
	for i, ref := range st.Tokens {
		out.Tokens[i] = newStoredTokenRef(ref)
	}
	return out
}

func (s *storedStaker) toStaker() *nativestaking.StakerState {
	out := &nativestaking.StakerState{LastClaimedPeriod: s.LastClaimedPeriod, Tokens: make([]nativestaking.TokenRef, len(s.Tokens))}
	for i, ref := range s.Tokens {
		out.Tokens[i] = ref.toRef()
	}
	return out
}

type storedToken struct {
	Ref          storedTokenRef
	Owner        common.Address
	DepositCycle uint64
	Weight       uint64
}

func newStoredToken(info *nativestaking.TokenInfo) *storedToken {
	return &storedToken{
		Ref:          newStoredTokenRef(info.Ref),
		Owner:        info.Owner,
		DepositCycle: info.DepositCycle,
		Weight:       info.Weight,
	}
}

func (s *storedToken) toToken() *nativestaking.TokenInfo {
	return &nativestaking.TokenInfo{
		Ref:          s.Ref.toRef(),
		Owner:        s.Owner,
		DepositCycle: s.DepositCycle,
		Weight:       s.Weight,
	}
}

type storedSnapshot struct {
	StartCycle uint64
	Weight     uint64
}

func newStoredSnapshot(s snapshots.Snapshot) storedSnapshot {
	return storedSnapshot{StartCycle: s.StartCycle, Weight: s.Weight}
}

func (s storedSnapshot) toSnapshot() snapshots.Snapshot {
	return snapshots.Snapshot{StartCycle: s.StartCycle, Weight: s.Weight}
}

// boundedAmount copies v after checking it fits an unsigned 256-bit value.
func boundedAmount(v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount %s", nativestaking.ErrArithmetic, v)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return nil, fmt.Errorf("%w: amount exceeds 256 bits", nativestaking.ErrArithmetic)
	}
	return new(big.Int).Set(v), nil
}
