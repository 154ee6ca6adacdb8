package staking

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"deltastake/core/cycle"
	nativestaking "deltastake/native/staking"
	"deltastake/state/snapshots"
	"deltastake/storage"
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

const startTime int64 = 1_700_000_000

type testVault struct{ balance *big.Int }

func (v *testVault) Pull(_ common.Address, amount *big.Int) error {
	v.balance.Add(v.balance, amount)
	return nil
}

func (v *testVault) Pay(_ common.Address, amount *big.Int) error {
	v.balance.Sub(v.balance, amount)
	return nil
}

func (v *testVault) Balance() (*big.Int, error) { return new(big.Int).Set(v.balance), nil }

type testCustody struct{}

func (testCustody) Release(common.Address, []nativestaking.TokenRef) error { return nil }

func newTestEngine(t *testing.T, store *Store, now *int64) *nativestaking.Engine {
	t.Helper()
	params := nativestaking.DefaultParams(owner, collection)
	params.Cycle = cycle.Config{CycleLengthSeconds: 60, PeriodLengthCycles: 10}
	engine, err := nativestaking.NewEngine(params)
	require.NoError(t, err)
	engine.SetState(store)
	engine.SetVault(&testVault{balance: big.NewInt(0)})
	engine.SetCustody(testCustody{})
	engine.SetNowFunc(func() int64 { return *now })
	return engine
}

func epic(serial uint64) nativestaking.TokenRef {
	attrs := nativestaking.TokenAttributes{Type: nativestaking.TokenTypeCar, Season: nativestaking.Season2020, Rarity: nativestaking.RarityEpic}
	return nativestaking.NewTokenRef(collection, nativestaking.EncodeTokenID(attrs, serial))
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)

	now := startTime - 60
	engine := newTestEngine(t, store, &now)
	require.NoError(t, engine.AddRewardsForPeriods(owner, 1, 2, big.NewInt(5)))
	now = startTime
	require.NoError(t, engine.Start(owner))
	require.NoError(t, engine.OnBatchAssetReceived(alice, []nativestaking.TokenRef{epic(1), epic(2)}, []uint64{1, 1}, nil))
	now = startTime + 2*60
	require.NoError(t, engine.Unstake(alice, epic(1)))
	now = startTime + 10*60
	_, err = engine.WithdrawLostCycleRewards(owner, owner, 1, 0)
	require.ErrorIs(t, err, nativestaking.ErrNonZeroWeight)
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewStore(db)
	require.NoError(t, err)

	pool, ok, err := reopened.StakingPoolGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pool.Started)
	require.Equal(t, startTime, pool.StartTime)
	require.Equal(t, int64(100), pool.TotalRewardsPool.Int64())

	rate, err := reopened.StakingScheduleGet(2)
	require.NoError(t, err)
	require.Equal(t, int64(5), rate.Int64())
	rate, err = reopened.StakingScheduleGet(3)
	require.NoError(t, err)
	require.Zero(t, rate.Sign())

	global, err := reopened.StakingGlobalHistory()
	require.NoError(t, err)
	require.Equal(t, []snapshots.Snapshot{{StartCycle: 1, Weight: 20}, {StartCycle: 3, Weight: 10}}, global.Entries())
	history, err := reopened.StakingStakerHistory(alice)
	require.NoError(t, err)
	require.Equal(t, global.Entries(), history.Entries())

	st, ok, err := reopened.StakingStakerGet(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []nativestaking.TokenRef{epic(2)}, st.Tokens)

	info, ok, err := reopened.StakingTokenGet(epic(2))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alice, info.Owner)
	require.Equal(t, uint64(1), info.DepositCycle)
	_, ok, err = reopened.StakingTokenGet(epic(1))
	require.NoError(t, err)
	require.False(t, ok)

	reopenedEngine := newTestEngine(t, reopened, &now)
	now = startTime + 11*60
	claim, err := reopenedEngine.EstimateRewards(alice, 0)
	require.NoError(t, err)
	require.Equal(t, int64(50), claim.Amount.Int64())
}

func TestStoreRevertTruncatesHistory(t *testing.T) {
	db := storage.NewMemDB()
	store, err := NewStore(db)
	require.NoError(t, err)

	h := &snapshots.History{}
	first, _, err := h.RecordDelta(1, 10)
	require.NoError(t, err)
	second, _, err := h.RecordDelta(2, 5)
	require.NoError(t, err)

	forward := nativestaking.NewChangeset()
	forward.Global = []nativestaking.HistoryOp{{Update: first}, {Update: second}}
	forward.StakerHistory[alice] = []nativestaking.HistoryOp{{Update: first}}
	forward.LostCycles[7] = true
	require.NoError(t, store.StakingCommit(forward))

	inverse := nativestaking.NewChangeset()
	inverse.Global = []nativestaking.HistoryOp{{Update: second, Revert: true}}
	inverse.StakerHistory[alice] = []nativestaking.HistoryOp{{Update: first, Revert: true}}
	inverse.LostCycles[7] = false
	require.NoError(t, store.StakingCommit(inverse))

	reopened, err := NewStore(db)
	require.NoError(t, err)
	global, err := reopened.StakingGlobalHistory()
	require.NoError(t, err)
	require.Equal(t, []snapshots.Snapshot{{StartCycle: 1, Weight: 10}}, global.Entries())
	history, err := reopened.StakingStakerHistory(alice)
	require.NoError(t, err)
	require.Zero(t, history.Len())
	withdrawn, err := reopened.StakingLostCycleWithdrawn(7)
	require.NoError(t, err)
	require.False(t, withdrawn)
}

func TestStoreRejectsOversizedAmounts(t *testing.T) {
	store, err := NewStore(storage.NewMemDB())
	require.NoError(t, err)
	cs := nativestaking.NewChangeset()
	cs.Schedule[1] = new(big.Int).Lsh(big.NewInt(1), 256)
	require.ErrorIs(t, store.StakingCommit(cs), nativestaking.ErrArithmetic)
}

func TestWriteHistoryStagesEntriesAndTrims(t *testing.T) {
	db := storage.NewMemDB()
	store, err := NewStore(db)
	require.NoError(t, err)

	prev := &snapshots.History{}
	next := prev.Clone()
	first, ok, err := next.RecordDelta(3, 10)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := next.RecordDelta(5, -4)
	require.NoError(t, err)
	require.True(t, ok)

	batch := db.NewBatch()
	ops := []nativestaking.HistoryOp{{Update: first}, {Update: second}}
	require.NoError(t, writeHistory(batch, prev, next, ops, globalEntryKey, globalLenKey))
	require.NoError(t, batch.Write())
	loaded, err := store.loadHistory(globalPrefix, globalLenKey)
	require.NoError(t, err)
	require.Equal(t, []snapshots.Snapshot{{StartCycle: 3, Weight: 10}, {StartCycle: 5, Weight: 6}}, loaded.Entries())

	trimmed := next.Clone()
	trimmed.Revert(second)
	batch = db.NewBatch()
	require.NoError(t, writeHistory(batch, next, trimmed, []nativestaking.HistoryOp{{Update: second, Revert: true}}, globalEntryKey, globalLenKey))
	require.NoError(t, batch.Write())
	loaded, err = store.loadHistory(globalPrefix, globalLenKey)
	require.NoError(t, err)
	require.Equal(t, []snapshots.Snapshot{{StartCycle: 3, Weight: 10}}, loaded.Entries())
}
