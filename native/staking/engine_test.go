package staking

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"deltastake/core/cycle"
	"deltastake/core/events"
	"deltastake/state/snapshots"
)

const (
	testStartTime   int64  = 1_700_000_000
	testCycleLength uint64 = 60
	testPeriodLen   uint64 = 10
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol      = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type mockState struct {
	pool       *PoolState
	schedule   map[uint64]*big.Int
	global     *snapshots.History
	stakerHist map[common.Address]*snapshots.History
	stakers    map[common.Address]*StakerState
	tokens     map[TokenRef]*TokenInfo
	lost       map[uint64]bool
	commits    int
	commitErr  error
}

func newMockState() *mockState {
	return &mockState{
		schedule:   make(map[uint64]*big.Int),
		global:     &snapshots.History{},
		stakerHist: make(map[common.Address]*snapshots.History),
		stakers:    make(map[common.Address]*StakerState),
		tokens:     make(map[TokenRef]*TokenInfo),
		lost:       make(map[uint64]bool),
	}
}

func (m *mockState) StakingPoolGet() (*PoolState, bool, error) {
	if m.pool == nil {
		return nil, false, nil
	}
	return m.pool.clone(), true, nil
}

func (m *mockState) StakingScheduleGet(period uint64) (*big.Int, error) {
	return newBigInt(m.schedule[period]), nil
}

func (m *mockState) StakingGlobalHistory() (*snapshots.History, error) {
	return m.global, nil
}

func (m *mockState) StakingStakerHistory(addr common.Address) (*snapshots.History, error) {
	h, ok := m.stakerHist[addr]
	if !ok {
		return &snapshots.History{}, nil
	}
	return h, nil
}

func (m *mockState) StakingStakerGet(addr common.Address) (*StakerState, bool, error) {
	st, ok := m.stakers[addr]
	if !ok {
		return nil, false, nil
	}
	return st.clone(), true, nil
}

func (m *mockState) StakingTokenGet(ref TokenRef) (*TokenInfo, bool, error) {
	info, ok := m.tokens[ref]
	if !ok {
		return nil, false, nil
	}
	return info.clone(), true, nil
}

func (m *mockState) StakingLostCycleWithdrawn(cycle uint64) (bool, error) {
	return m.lost[cycle], nil
}

func (m *mockState) StakingCommit(cs *Changeset) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits++
	if cs.Pool != nil {
		m.pool = cs.Pool.clone()
	}
	for period, rate := range cs.Schedule {
		m.schedule[period] = newBigInt(rate)
	}
	ApplyHistoryOps(m.global, cs.Global)
	for addr, ops := range cs.StakerHistory {
		h, ok := m.stakerHist[addr]
		if !ok {
			h = &snapshots.History{}
			m.stakerHist[addr] = h
		}
		ApplyHistoryOps(h, ops)
	}
	for addr, st := range cs.Stakers {
		if st == nil {
			delete(m.stakers, addr)
			continue
		}
		m.stakers[addr] = st.clone()
	}
	for ref, info := range cs.Tokens {
		if info == nil {
			delete(m.tokens, ref)
			continue
		}
		m.tokens[ref] = info.clone()
	}
	for c, marked := range cs.LostCycles {
		if !marked {
			delete(m.lost, c)
			continue
		}
		m.lost[c] = true
	}
	return nil
}

type fakeVault struct {
	balance  *big.Int
	pulled   map[common.Address]*big.Int
	paid     map[common.Address]*big.Int
	pullErr  error
	payErr   error
	payCalls int
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		balance: big.NewInt(0),
		pulled:  make(map[common.Address]*big.Int),
		paid:    make(map[common.Address]*big.Int),
	}
}

func (v *fakeVault) Pull(from common.Address, amount *big.Int) error {
	if v.pullErr != nil {
		return v.pullErr
	}
	v.balance.Add(v.balance, amount)
	v.pulled[from] = new(big.Int).Add(newBigInt(v.pulled[from]), amount)
	return nil
}

func (v *fakeVault) Pay(to common.Address, amount *big.Int) error {
	v.payCalls++
	if v.payErr != nil {
		return v.payErr
	}
	if v.balance.Cmp(amount) < 0 {
		return errors.New("vault: insufficient balance")
	}
	v.balance.Sub(v.balance, amount)
	v.paid[to] = new(big.Int).Add(newBigInt(v.paid[to]), amount)
	return nil
}

func (v *fakeVault) Balance() (*big.Int, error) {
	return new(big.Int).Set(v.balance), nil
}

func (v *fakeVault) paidTo(addr common.Address) int64 {
	return newBigInt(v.paid[addr]).Int64()
}

type fakeCustody struct {
	released map[common.Address][]TokenRef
	err      error
}

func (c *fakeCustody) Release(to common.Address, refs []TokenRef) error {
	if c.err != nil {
		return c.err
	}
	if c.released == nil {
		c.released = make(map[common.Address][]TokenRef)
	}
	c.released[to] = append(c.released[to], refs...)
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) types() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType()
	}
	return out
}

type harness struct {
	t       *testing.T
	engine  *Engine
	state   *mockState
	vault   *fakeVault
	custody *fakeCustody
	emitter *captureEmitter
	now     int64
}

func testParams() Params {
	params := DefaultParams(owner, collection)
	params.Cycle = cycle.Config{CycleLengthSeconds: testCycleLength, PeriodLengthCycles: testPeriodLen}
	return params
}

func newHarness(t *testing.T, mutate func(*Params)) *harness {
	t.Helper()
	params := testParams()
	if mutate != nil {
		mutate(&params)
	}
	engine, err := NewEngine(params)
	require.NoError(t, err)
	h := &harness{
		t:       t,
		engine:  engine,
		state:   newMockState(),
		vault:   newFakeVault(),
		custody: &fakeCustody{},
		emitter: &captureEmitter{},
		now:     testStartTime - 3600,
	}
	engine.SetState(h.state)
	engine.SetVault(h.vault)
	engine.SetCustody(h.custody)
	engine.SetEmitter(h.emitter)
	engine.SetNowFunc(func() int64 { return h.now })
	return h
}

func (h *harness) start() {
	h.t.Helper()
	h.now = testStartTime
	require.NoError(h.t, h.engine.Start(owner))
}

// at moves the clock to the first second of the given cycle.
func (h *harness) at(c uint64) {
	h.now = testStartTime + int64((c-1)*testCycleLength)
}

func (h *harness) fund(start, end uint64, rate int64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.AddRewardsForPeriods(owner, start, end, big.NewInt(rate)))
}

func (h *harness) stake(staker common.Address, refs ...TokenRef) {
	h.t.Helper()
	quantities := make([]uint64, len(refs))
	for i := range quantities {
		quantities[i] = 1
	}
	require.NoError(h.t, h.engine.OnBatchAssetReceived(staker, refs, quantities, nil))
}

func (h *harness) estimate(staker common.Address) int64 {
	h.t.Helper()
	claim, err := h.engine.EstimateRewards(staker, 0)
	require.NoError(h.t, err)
	return claim.Amount.Int64()
}

func car(rarity uint8, serial uint64) TokenRef {
	return NewTokenRef(collection, EncodeTokenID(TokenAttributes{Type: TokenTypeCar, Season: Season2019, Rarity: rarity}, serial))
}

func TestNewEngineValidatesParams(t *testing.T) {
	params := testParams()
	params.Cycle.CycleLengthSeconds = 59
	_, err := NewEngine(params)
	require.ErrorIs(t, err, ErrConfig)

	params = testParams()
	params.Cycle.PeriodLengthCycles = 1
	_, err = NewEngine(params)
	require.ErrorIs(t, err, ErrConfig)

	params = testParams()
	params.Owner = common.Address{}
	_, err = NewEngine(params)
	require.ErrorIs(t, err, ErrConfig)

	params = testParams()
	params.RarityWeights[RarityApex] = 0
	_, err = NewEngine(params)
	require.ErrorIs(t, err, ErrConfig)

	params = testParams()
	params.RarityWeights[RarityEpic] = math.MaxInt64 + 10
	_, err = NewEngine(params)
	require.ErrorIs(t, err, ErrConfig)

	params = testParams()
	params.RarityWeights[RarityEpic] = math.MaxInt64
	_, err = NewEngine(params)
	require.NoError(t, err)

	params = testParams()
	params.FreezeCycles = 0
	engine, err := NewEngine(params)
	require.NoError(t, err)
	require.Equal(t, DefaultFreezeCycles, engine.Params().FreezeCycles)
}

func TestStartLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	period, err := h.engine.CurrentPeriod()
	require.NoError(t, err)
	require.Zero(t, period)
	_, err = h.engine.CurrentCycle()
	require.ErrorIs(t, err, ErrNotStarted)
	_, err = h.engine.EstimateRewards(alice, 0)
	require.ErrorIs(t, err, ErrNotStarted)
	err = h.engine.OnAssetReceived(alice, car(RarityEpic, 1), 1, nil)
	require.ErrorIs(t, err, ErrNotStarted)
	require.ErrorIs(t, h.engine.Disable(owner), ErrNotStarted)

	require.ErrorIs(t, h.engine.Start(alice), ErrUnauthorized)
	h.start()
	require.ErrorIs(t, h.engine.Start(owner), ErrAlreadyStarted)

	pool, err := h.engine.Pool()
	require.NoError(t, err)
	require.True(t, pool.Started)
	require.Equal(t, testStartTime, pool.StartTime)

	h.at(11)
	cycleNum, err := h.engine.CurrentCycle()
	require.NoError(t, err)
	require.Equal(t, uint64(11), cycleNum)
	period, err = h.engine.CurrentPeriod()
	require.NoError(t, err)
	require.Equal(t, uint64(2), period)

	require.ErrorIs(t, h.engine.Disable(alice), ErrUnauthorized)
	require.NoError(t, h.engine.Disable(owner))
	commits := h.state.commits
	require.NoError(t, h.engine.Disable(owner))
	require.Equal(t, commits, h.state.commits)
	require.Equal(t, []string{events.TypeStakingStarted, events.TypeStakingDisabled}, h.emitter.types())

	_, err = h.engine.EstimateRewards(alice, 0)
	require.ErrorIs(t, err, ErrDisabled)
	_, err = h.engine.ClaimRewards(alice, 0)
	require.ErrorIs(t, err, ErrDisabled)
	require.ErrorIs(t, h.engine.OnAssetReceived(alice, car(RarityEpic, 1), 1, nil), ErrDisabled)
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine, err := NewEngine(testParams())
	require.NoError(t, err)
	require.ErrorIs(t, engine.Start(owner), ErrNilState)
	_, err = engine.RewardsSchedule(1)
	require.ErrorIs(t, err, ErrNilState)
}
