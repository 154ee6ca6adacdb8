package rpc

import (
	"math/big"

	"deltastake/native/staking"
	"deltastake/state/snapshots"
)

type poolResponse struct {
	Started            bool   `json:"started"`
	StartTime          int64  `json:"startTime"`
	Disabled           bool   `json:"disabled"`
	CurrentCycle       uint64 `json:"currentCycle"`
	CurrentPeriod      uint64 `json:"currentPeriod"`
	CycleLengthSeconds uint64 `json:"cycleLengthSeconds"`
	PeriodLengthCycles uint64 `json:"periodLengthCycles"`
	TotalWeight        uint64 `json:"totalWeight"`
	TotalRewardsPool   string `json:"totalRewardsPool"`
	RewardsBalance     string `json:"rewardsBalance,omitempty"`
}

type scheduleResponse struct {
	Period          uint64 `json:"period"`
	RewardsPerCycle string `json:"rewardsPerCycle"`
}

type lostCycleResponse struct {
	Cycle               uint64 `json:"cycle"`
	GlobalSnapshotIndex int    `json:"globalSnapshotIndex"`
	Rewards             string `json:"rewards"`
}

type lostCycleStatusResponse struct {
	Cycle     uint64 `json:"cycle"`
	Withdrawn bool   `json:"withdrawn"`
}

type snapshotResponse struct {
	StartCycle uint64 `json:"startCycle"`
	Weight     uint64 `json:"weight"`
}

type stakerResponse struct {
	Address           string             `json:"address"`
	LastClaimedPeriod uint64             `json:"lastClaimedPeriod"`
	Tokens            []string           `json:"tokens"`
	History           []snapshotResponse `json:"history"`
}

type claimResponse struct {
	StartPeriod uint64 `json:"startPeriod"`
	Periods     uint64 `json:"periods"`
	EndPeriod   uint64 `json:"endPeriod"`
	Amount      string `json:"amount"`
}

type tokensRequest struct {
	Tokens []string `json:"tokens"`
}

type claimRequest struct {
	MaxPeriods uint64 `json:"maxPeriods"`
}

type addRewardsRequest struct {
	StartPeriod     uint64 `json:"startPeriod"`
	EndPeriod       uint64 `json:"endPeriod"`
	RewardsPerCycle string `json:"rewardsPerCycle"`
}

type withdrawPoolRequest struct {
	Amount string `json:"amount"`
}

type withdrawLostCycleRequest struct {
	To                  string `json:"to"`
	Cycle               uint64 `json:"cycle"`
	GlobalSnapshotIndex int    `json:"globalSnapshotIndex"`
}

type withdrawLostCycleResponse struct {
	Cycle  uint64 `json:"cycle"`
	Amount string `json:"amount"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func newClaimResponse(c staking.Claim) claimResponse {
	return claimResponse{
		StartPeriod: c.StartPeriod,
		Periods:     c.Periods,
		EndPeriod:   c.EndPeriod(),
		Amount:      amountString(c.Amount),
	}
}

func newSnapshotResponses(entries []snapshots.Snapshot) []snapshotResponse {
	out := make([]snapshotResponse, len(entries))
	for i, entry := range entries {
		out[i] = snapshotResponse{StartCycle: entry.StartCycle, Weight: entry.Weight}
	}
	return out
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type mintRequest struct {
	To     string   `json:"to"`
	Tokens []string `json:"tokens"`
	Amount string   `json:"amount"`
}

type mintResponse struct {
	To     string   `json:"to"`
	Tokens []string `json:"tokens,omitempty"`
	Amount string   `json:"amount,omitempty"`
}
