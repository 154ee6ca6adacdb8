package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"deltastake/core/cycle"
	"deltastake/integrations/indexer"
	"deltastake/native/bank"
	"deltastake/native/inventory"
	"deltastake/native/staking"
	stakingstate "deltastake/state/staking"
	"deltastake/storage"
)

const (
	testSecret = "rpc-test-secret"
	testStart  = int64(1_700_000_000)
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	pool       = common.HexToAddress("0x0000000000000000000000000000000000009001")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type testEnv struct {
	t        *testing.T
	now      int64
	engine   *staking.Engine
	ledger   *bank.Ledger
	registry *inventory.Registry
	handler  http.Handler
}

func newTestEnv(t *testing.T, limit RateLimit) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	store, err := stakingstate.NewStore(db)
	require.NoError(t, err)
	ledger, err := bank.NewLedger(db)
	require.NoError(t, err)
	registry, err := inventory.NewRegistry(db)
	require.NoError(t, err)
	sqlDB, err := indexer.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	recorder, err := indexer.NewRecorder(sqlDB, nil)
	require.NoError(t, err)

	params := staking.DefaultParams(owner, collection)
	params.Cycle = cycle.Config{CycleLengthSeconds: 60, PeriodLengthCycles: 10}
	engine, err := staking.NewEngine(params)
	require.NoError(t, err)

	env := &testEnv{t: t, now: testStart, engine: engine, ledger: ledger, registry: registry}
	engine.SetNowFunc(func() int64 { return env.now })
	engine.SetState(store)
	engine.SetVault(bank.NewVault(ledger, pool))
	engine.SetCustody(registry.Custody(pool))
	engine.SetEmitter(recorder)
	registry.RegisterReceiver(pool, engine)

	srv, err := NewServer(Config{
		Auth:        AuthConfig{HMACSecret: testSecret},
		RateLimit:   limit,
		PoolAddress: pool,
	}, engine, nil)
	require.NoError(t, err)
	srv.SetAssets(registry)
	srv.SetEvents(recorder)
	srv.EnableDevMint(registry, ledger)
	env.handler = srv.Handler()
	return env
}

func (env *testEnv) token(addr common.Address) string {
	env.t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(env.t, err)
	return signed
}

func (env *testEnv) do(method, path string, caller *common.Address, body interface{}) *httptest.ResponseRecorder {
	env.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(env.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+env.token(*caller))
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func epic(serial uint64) staking.TokenRef {
	attrs := staking.TokenAttributes{Type: staking.TokenTypeCar, Season: staking.Season2019, Rarity: staking.RarityEpic}
	return staking.NewTokenRef(collection, staking.EncodeTokenID(attrs, serial))
}

func TestAdminRoutesRequireOwner(t *testing.T) {
	env := newTestEnv(t, RateLimit{})

	rec := env.do(http.MethodPost, "/v1/admin/start", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/start", &bob, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/start", &owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/start", &owner, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/withdraw", &owner, withdrawPoolRequest{Amount: "1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/rewards", &owner, addRewardsRequest{StartPeriod: 1, EndPeriod: 2, RewardsPerCycle: "-5"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDevMintDrivesStakingOverHTTP(t *testing.T) {
	env := newTestEnv(t, RateLimit{})
	ref := epic(7)

	rec := env.do(http.MethodPost, "/v1/admin/mint", &alice, mintRequest{To: alice.Hex(), Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(http.MethodPost, "/v1/admin/mint", &owner, mintRequest{To: alice.Hex()})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/mint", &owner, mintRequest{To: owner.Hex(), Amount: "200"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(http.MethodPost, "/v1/admin/mint", &owner, mintRequest{To: alice.Hex(), Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(http.MethodPost, "/v1/admin/mint", &owner, mintRequest{To: bob.Hex(), Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/rewards", &owner, addRewardsRequest{StartPeriod: 1, EndPeriod: 2, RewardsPerCycle: "10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(http.MethodPost, "/v1/admin/start", &owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/v1/stake", &alice, tokensRequest{Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.now = testStart + 600
	rec = env.do(http.MethodGet, "/v1/stakers/"+alice.Hex()+"/estimate", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, claimResponse{StartPeriod: 1, Periods: 1, EndPeriod: 1, Amount: "100"}, decode[claimResponse](t, rec))
}

func TestStakeEstimateAndClaimFlow(t *testing.T) {
	env := newTestEnv(t, RateLimit{})
	require.NoError(t, env.ledger.Mint(owner, big.NewInt(100)))
	ref := epic(1)
	require.NoError(t, env.registry.Mint(alice, ref))

	rec := env.do(http.MethodPost, "/v1/admin/rewards", &owner, addRewardsRequest{StartPeriod: 1, EndPeriod: 1, RewardsPerCycle: "10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/v1/stake", &alice, tokensRequest{Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/v1/admin/start", &owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/v1/stake", &alice, tokensRequest{Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/v1/unstake", &alice, tokensRequest{Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusConflict, rec.Code)

	env.now = testStart + 600
	rec = env.do(http.MethodGet, "/v1/pool", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	poolResp := decode[poolResponse](t, rec)
	require.True(t, poolResp.Started)
	require.Equal(t, uint64(11), poolResp.CurrentCycle)
	require.Equal(t, uint64(2), poolResp.CurrentPeriod)
	require.Equal(t, uint64(10), poolResp.TotalWeight)
	require.Equal(t, "100", poolResp.TotalRewardsPool)
	require.Equal(t, "100", poolResp.RewardsBalance)

	rec = env.do(http.MethodGet, "/v1/stakers/"+alice.Hex()+"/estimate?maxPeriods=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	estimate := decode[claimResponse](t, rec)
	require.Equal(t, claimResponse{StartPeriod: 1, Periods: 1, EndPeriod: 1, Amount: "100"}, estimate)

	rec = env.do(http.MethodPost, "/v1/claim", &alice, claimRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "100", decode[claimResponse](t, rec).Amount)
	balance, err := env.ledger.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Int64())

	rec = env.do(http.MethodGet, "/v1/stakers/"+alice.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	staker := decode[stakerResponse](t, rec)
	require.Equal(t, uint64(1), staker.LastClaimedPeriod)
	require.Equal(t, []string{ref.String()}, staker.Tokens)
	require.Equal(t, []snapshotResponse{{StartCycle: 1, Weight: 10}}, staker.History)

	rec = env.do(http.MethodPost, "/v1/unstake", &alice, tokensRequest{Tokens: []string{ref.String()}})
	require.Equal(t, http.StatusOK, rec.Code)
	holder, err := env.registry.OwnerOf(ref)
	require.NoError(t, err)
	require.Equal(t, alice, holder)

	rec = env.do(http.MethodGet, "/v1/stakers/"+alice.Hex()+"/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evts := decode[[]indexer.Event](t, rec)
	require.NotEmpty(t, evts)
	require.Equal(t, "staking.historiesUpdated", evts[0].Type)
	var claimed bool
	for _, evt := range evts {
		if evt.Type == "staking.rewardsClaimed" {
			claimed = true
			require.Equal(t, "100", evt.Attributes["amount"])
		}
	}
	require.True(t, claimed)
}

func TestLostCycleRoutes(t *testing.T) {
	env := newTestEnv(t, RateLimit{})
	require.NoError(t, env.ledger.Mint(owner, big.NewInt(50)))
	rec := env.do(http.MethodPost, "/v1/admin/rewards", &owner, addRewardsRequest{StartPeriod: 1, EndPeriod: 1, RewardsPerCycle: "5"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPost, "/v1/admin/start", &owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env.now = testStart + 3*60

	rec = env.do(http.MethodGet, "/v1/lost-cycles?from=1&to=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lost := decode[[]lostCycleResponse](t, rec)
	require.Len(t, lost, 3)
	require.Equal(t, lostCycleResponse{Cycle: 1, GlobalSnapshotIndex: -1, Rewards: "5"}, lost[0])

	rec = env.do(http.MethodPost, "/v1/admin/lost-cycles", &owner, withdrawLostCycleRequest{To: bob.Hex(), Cycle: 1, GlobalSnapshotIndex: -1})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "5", decode[withdrawLostCycleResponse](t, rec).Amount)

	rec = env.do(http.MethodPost, "/v1/admin/lost-cycles", &owner, withdrawLostCycleRequest{To: bob.Hex(), Cycle: 1, GlobalSnapshotIndex: -1})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/v1/lost-cycles/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[lostCycleStatusResponse](t, rec).Withdrawn)

	rec = env.do(http.MethodGet, "/v1/lost-cycles?from=2&to=1", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedRequests(t *testing.T) {
	env := newTestEnv(t, RateLimit{})

	rec := env.do(http.MethodGet, "/v1/stakers/not-an-address", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodGet, "/v1/schedule/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodPost, "/v1/stake", &alice, map[string]string{"unexpected": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodPost, "/v1/stake", &alice, tokensRequest{Tokens: []string{"garbage"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/claim", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	rec = env.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	env := newTestEnv(t, RateLimit{RequestsPerMinute: 1, Burst: 2})
	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodGet, "/v1/pool", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(http.MethodGet, "/v1/pool", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/pool", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")
	res := httptest.NewRecorder()
	env.handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	rec = env.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForMapsEngineErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{staking.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", staking.ErrTokenFrozen), http.StatusConflict},
		{staking.ErrInvalidRange, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", staking.ErrTransferFailed, inventory.ErrNotOwner), http.StatusBadGateway},
		{fmt.Errorf("global history: %w", staking.ErrArithmetic), http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), "error %v", tc.err)
	}

	srv := &Server{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rec := httptest.NewRecorder()
	srv.writeEngineError(rec, httptest.NewRequest(http.MethodPost, "/v1/claim", nil), fmt.Errorf("weight overflow: %w", staking.ErrArithmetic))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorResponse](t, rec)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), body.Error)
}
