package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/state/snapshots"
)

// engineState is the persistence contract of the engine. Histories returned
// by the getters are read-only views; all mutation goes through Commit.
type engineState interface {
	StakingPoolGet() (*PoolState, bool, error)
	StakingScheduleGet(period uint64) (*big.Int, error)
	StakingGlobalHistory() (*snapshots.History, error)
	StakingStakerHistory(addr common.Address) (*snapshots.History, error)
	StakingStakerGet(addr common.Address) (*StakerState, bool, error)
	StakingTokenGet(ref TokenRef) (*TokenInfo, bool, error)
	StakingLostCycleWithdrawn(cycle uint64) (bool, error)
	StakingCommit(cs *Changeset) error
}

// HistoryOp applies (or, when Revert is set, undoes) a planned history update.
type HistoryOp struct {
	Update snapshots.Update
	Revert bool
}

// Changeset is the full set of writes produced by one engine call. Backends
// must apply it atomically. A nil entry in Stakers or Tokens deletes the
// record; a false entry in LostCycles clears the marker.
type Changeset struct {
	Pool          *PoolState
	Schedule      map[uint64]*big.Int
	Global        []HistoryOp
	StakerHistory map[common.Address][]HistoryOp
	Stakers       map[common.Address]*StakerState
	Tokens        map[TokenRef]*TokenInfo
	LostCycles    map[uint64]bool
}

// NewChangeset returns an empty changeset with initialised maps.
func NewChangeset() *Changeset {
	return &Changeset{
		Schedule:      make(map[uint64]*big.Int),
		StakerHistory: make(map[common.Address][]HistoryOp),
		Stakers:       make(map[common.Address]*StakerState),
		Tokens:        make(map[TokenRef]*TokenInfo),
		LostCycles:    make(map[uint64]bool),
	}
}

// Empty reports whether the changeset carries no writes.
func (c *Changeset) Empty() bool {
	if c == nil {
		return true
	}
	return c.Pool == nil && len(c.Schedule) == 0 && len(c.Global) == 0 &&
		len(c.StakerHistory) == 0 && len(c.Stakers) == 0 && len(c.Tokens) == 0 &&
		len(c.LostCycles) == 0
}

// ApplyHistoryOps replays ops against h in order.
func ApplyHistoryOps(h *snapshots.History, ops []HistoryOp) {
	for _, op := range ops {
		if op.Revert {
			h.Revert(op.Update)
			continue
		}
		h.Apply(op.Update)
	}
}

// txn accumulates a forward changeset and the inverse needed to undo it once
// committed. The first pre-image recorded for a key wins.
type txn struct {
	forward *Changeset
	inverse *Changeset
}

func newTxn() *txn {
	return &txn{forward: NewChangeset(), inverse: NewChangeset()}
}

func (t *txn) putPool(prev, next *PoolState) {
	if t.inverse.Pool == nil {
		t.inverse.Pool = prev.clone()
	}
	t.forward.Pool = next.clone()
}

func (t *txn) putSchedule(period uint64, prev, next *big.Int) {
	if _, ok := t.inverse.Schedule[period]; !ok {
		t.inverse.Schedule[period] = newBigInt(prev)
	}
	t.forward.Schedule[period] = newBigInt(next)
}

func (t *txn) recordGlobal(u snapshots.Update) {
	t.forward.Global = append(t.forward.Global, HistoryOp{Update: u})
	t.inverse.Global = append([]HistoryOp{{Update: u, Revert: true}}, t.inverse.Global...)
}

func (t *txn) recordStakerHistory(addr common.Address, u snapshots.Update) {
	t.forward.StakerHistory[addr] = append(t.forward.StakerHistory[addr], HistoryOp{Update: u})
	t.inverse.StakerHistory[addr] = append([]HistoryOp{{Update: u, Revert: true}}, t.inverse.StakerHistory[addr]...)
}

func (t *txn) putStaker(addr common.Address, prev, next *StakerState) {
	if _, ok := t.inverse.Stakers[addr]; !ok {
		t.inverse.Stakers[addr] = prev.clone()
	}
	t.forward.Stakers[addr] = next.clone()
}

func (t *txn) putToken(ref TokenRef, prev, next *TokenInfo) {
	if _, ok := t.inverse.Tokens[ref]; !ok {
		t.inverse.Tokens[ref] = prev.clone()
	}
	t.forward.Tokens[ref] = next.clone()
}

func (t *txn) markLostCycle(cycle uint64) {
	if _, ok := t.inverse.LostCycles[cycle]; !ok {
		t.inverse.LostCycles[cycle] = false
	}
	t.forward.LostCycles[cycle] = true
}
