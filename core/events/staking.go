package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"deltastake/core/types"
)

const (
	// TypeStakingStarted is emitted once when the pool start time is fixed.
	TypeStakingStarted = "staking.started"
	// TypeStakingDisabled is emitted when the owner permanently disables the pool.
	TypeStakingDisabled = "staking.disabled"
	// TypeStakingRewardsAdded captures a funding round for a range of periods.
	TypeStakingRewardsAdded = "staking.rewardsAdded"
	// TypeStakingNftStaked captures a single deposit.
	TypeStakingNftStaked = "staking.nftStaked"
	// TypeStakingNftsBatchStaked captures a batch deposit.
	TypeStakingNftsBatchStaked = "staking.nftsBatchStaked"
	// TypeStakingNftUnstaked captures a single withdrawal.
	TypeStakingNftUnstaked = "staking.nftUnstaked"
	// TypeStakingNftsBatchUnstaked captures a batch withdrawal.
	TypeStakingNftsBatchUnstaked = "staking.nftsBatchUnstaked"
	// TypeStakingHistoriesUpdated is emitted whenever a deposit or withdrawal
	// changes the staker and global snapshot ledgers.
	TypeStakingHistoriesUpdated = "staking.historiesUpdated"
	// TypeStakingRewardsClaimed is emitted when rewards are claimed.
	TypeStakingRewardsClaimed = "staking.rewardsClaimed"
	// TypeStakingRewardsPoolWithdrawn is emitted on an owner sweep after disable.
	TypeStakingRewardsPoolWithdrawn = "staking.rewardsPoolWithdrawn"
	// TypeStakingLostCycleWithdrawn is emitted when a lost cycle is reclaimed.
	TypeStakingLostCycleWithdrawn = "staking.lostCycleWithdrawn"
)

// StakingStarted marks the beginning of accrual.
type StakingStarted struct {
	Owner     common.Address
	StartTime int64
}

// EventType satisfies the Event interface.
func (StakingStarted) EventType() string { return TypeStakingStarted }

// Event converts the structured payload into a broadcastable event.
func (e StakingStarted) Event() *types.Event {
	return &types.Event{Type: TypeStakingStarted, Attributes: map[string]string{
		"owner":     formatAddress(e.Owner),
		"startTime": strconv.FormatInt(e.StartTime, 10),
	}}
}

// StakingDisabled marks the permanent halt of accrual.
type StakingDisabled struct {
	Owner common.Address
	Cycle uint64
}

// EventType satisfies the Event interface.
func (StakingDisabled) EventType() string { return TypeStakingDisabled }

// Event converts the structured payload into a broadcastable event.
func (e StakingDisabled) Event() *types.Event {
	return &types.Event{Type: TypeStakingDisabled, Attributes: map[string]string{
		"owner": formatAddress(e.Owner),
		"cycle": formatUint(e.Cycle),
	}}
}

// RewardsAdded captures a funding round.
type RewardsAdded struct {
	StartPeriod     uint64
	EndPeriod       uint64
	RewardsPerCycle *big.Int
	Total           *big.Int
}

// EventType satisfies the Event interface.
func (RewardsAdded) EventType() string { return TypeStakingRewardsAdded }

// Event converts the structured payload into a broadcastable event.
func (e RewardsAdded) Event() *types.Event {
	return &types.Event{Type: TypeStakingRewardsAdded, Attributes: map[string]string{
		"startPeriod":     formatUint(e.StartPeriod),
		"endPeriod":       formatUint(e.EndPeriod),
		"rewardsPerCycle": formatAmount(e.RewardsPerCycle),
		"total":           formatAmount(e.Total),
	}}
}

// NftStaked records deposits. A single deposit renders as nftStaked, several
// as nftsBatchStaked.
type NftStaked struct {
	Staker   common.Address
	Cycle    uint64
	Contract common.Address
	TokenIDs []uint256.Int
	Weights  []uint64
}

// EventType satisfies the Event interface.
func (e NftStaked) EventType() string {
	if len(e.TokenIDs) > 1 {
		return TypeStakingNftsBatchStaked
	}
	return TypeStakingNftStaked
}

// Event converts the structured payload into a broadcastable event.
func (e NftStaked) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: tokenAttributes(e.Staker, e.Cycle, e.Contract, e.TokenIDs, e.Weights)}
}

// NftUnstaked records withdrawals.
type NftUnstaked struct {
	Staker   common.Address
	Cycle    uint64
	Contract common.Address
	TokenIDs []uint256.Int
	Weights  []uint64
	// Bookkept is false when the pool was disabled and the histories were left
	// untouched.
	Bookkept bool
}

// EventType satisfies the Event interface.
func (e NftUnstaked) EventType() string {
	if len(e.TokenIDs) > 1 {
		return TypeStakingNftsBatchUnstaked
	}
	return TypeStakingNftUnstaked
}

// Event converts the structured payload into a broadcastable event.
func (e NftUnstaked) Event() *types.Event {
	attrs := tokenAttributes(e.Staker, e.Cycle, e.Contract, e.TokenIDs, e.Weights)
	attrs["bookkept"] = strconv.FormatBool(e.Bookkept)
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// HistoriesUpdated captures the new staker and global weights after a deposit
// or withdrawal.
type HistoriesUpdated struct {
	Staker       common.Address
	StartCycle   uint64
	StakerWeight uint64
	GlobalWeight uint64
}

// EventType satisfies the Event interface.
func (HistoriesUpdated) EventType() string { return TypeStakingHistoriesUpdated }

// Event converts the structured payload into a broadcastable event.
func (e HistoriesUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakingHistoriesUpdated, Attributes: map[string]string{
		"staker":       formatAddress(e.Staker),
		"startCycle":   formatUint(e.StartCycle),
		"stakerWeight": formatUint(e.StakerWeight),
		"globalWeight": formatUint(e.GlobalWeight),
	}}
}

// RewardsClaimed captures a reward payout covering a range of periods.
type RewardsClaimed struct {
	Staker      common.Address
	Cycle       uint64
	StartPeriod uint64
	Periods     uint64
	Amount      *big.Int
}

// EventType satisfies the Event interface.
func (RewardsClaimed) EventType() string { return TypeStakingRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e RewardsClaimed) Event() *types.Event {
	return &types.Event{Type: TypeStakingRewardsClaimed, Attributes: map[string]string{
		"staker":      formatAddress(e.Staker),
		"cycle":       formatUint(e.Cycle),
		"startPeriod": formatUint(e.StartPeriod),
		"periods":     formatUint(e.Periods),
		"amount":      formatAmount(e.Amount),
	}}
}

// RewardsPoolWithdrawn captures an owner sweep of the reward pool.
type RewardsPoolWithdrawn struct {
	Owner  common.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (RewardsPoolWithdrawn) EventType() string { return TypeStakingRewardsPoolWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e RewardsPoolWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakingRewardsPoolWithdrawn, Attributes: map[string]string{
		"owner":  formatAddress(e.Owner),
		"amount": formatAmount(e.Amount),
	}}
}

// LostCycleWithdrawn captures the reclaim of a cycle nobody staked through.
type LostCycleWithdrawn struct {
	To                  common.Address
	Cycle               uint64
	GlobalSnapshotIndex int
	Amount              *big.Int
}

// EventType satisfies the Event interface.
func (LostCycleWithdrawn) EventType() string { return TypeStakingLostCycleWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e LostCycleWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakingLostCycleWithdrawn, Attributes: map[string]string{
		"to":                  formatAddress(e.To),
		"cycle":               formatUint(e.Cycle),
		"globalSnapshotIndex": strconv.Itoa(e.GlobalSnapshotIndex),
		"amount":              formatAmount(e.Amount),
	}}
}

func tokenAttributes(staker common.Address, cycle uint64, contract common.Address, ids []uint256.Int, weights []uint64) map[string]string {
	idStrings := make([]string, len(ids))
	for i := range ids {
		idStrings[i] = ids[i].Dec()
	}
	weightStrings := make([]string, len(weights))
	var total uint64
	for i, w := range weights {
		weightStrings[i] = formatUint(w)
		total += w
	}
	return map[string]string{
		"staker":   formatAddress(staker),
		"cycle":    formatUint(cycle),
		"contract": formatAddress(contract),
		"tokenIds": strings.Join(idStrings, ","),
		"weights":  strings.Join(weightStrings, ","),
		"weight":   formatUint(total),
	}
}
