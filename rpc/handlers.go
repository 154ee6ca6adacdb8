package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"deltastake/native/staking"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.Pool()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	params := s.engine.Params()
	resp := poolResponse{
		Started:            pool.Started,
		StartTime:          pool.StartTime,
		Disabled:           pool.Disabled,
		CycleLengthSeconds: params.Cycle.CycleLengthSeconds,
		PeriodLengthCycles: params.Cycle.PeriodLengthCycles,
		TotalRewardsPool:   amountString(pool.TotalRewardsPool),
	}
	if pool.Started {
		if resp.CurrentCycle, err = s.engine.CurrentCycle(); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		if resp.CurrentPeriod, err = s.engine.CurrentPeriod(); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
	}
	history, err := s.engine.GlobalHistory()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if n := len(history); n > 0 {
		resp.TotalWeight = history[n-1].Weight
	}
	if balance, err := s.engine.RewardsBalance(); err == nil {
		resp.RewardsBalance = balance.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	period, err := uintParam(r, "period")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rate, err := s.engine.RewardsSchedule(period)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{Period: period, RewardsPerCycle: rate.String()})
}

func (s *Server) handleLostCycles(w http.ResponseWriter, r *http.Request) {
	from, err := uintQuery(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := uintQuery(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lost, err := s.engine.LostCycles(from, to)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]lostCycleResponse, len(lost))
	for i, entry := range lost {
		out[i] = lostCycleResponse{
			Cycle:               entry.Cycle,
			GlobalSnapshotIndex: entry.GlobalSnapshotIndex,
			Rewards:             amountString(entry.Rewards),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLostCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := uintParam(r, "cycle")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	withdrawn, err := s.engine.WithdrawnLostCycle(cycle)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lostCycleStatusResponse{Cycle: cycle, Withdrawn: withdrawn})
}

func (s *Server) handleStaker(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, _, err := s.engine.Staker(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	history, err := s.engine.StakerHistory(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	tokens := make([]string, len(st.Tokens))
	for i, ref := range st.Tokens {
		tokens[i] = ref.String()
	}
	writeJSON(w, http.StatusOK, stakerResponse{
		Address:           addr.Hex(),
		LastClaimedPeriod: st.LastClaimedPeriod,
		Tokens:            tokens,
		History:           newSnapshotResponses(history),
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var maxPeriods uint64
	if r.URL.Query().Has("maxPeriods") {
		if maxPeriods, err = uintQuery(r, "maxPeriods"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	claim, err := s.engine.EstimateRewards(addr, maxPeriods)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClaimResponse(claim))
}

func (s *Server) handleStakerEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeEngineError(w, r, errUnavailable)
		return
	}
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit", errBadRequest))
			return
		}
	}
	evts, err := s.events.ByAccount(r.Context(), strings.ToLower(addr.Hex()), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evts)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		s.writeEngineError(w, r, errUnavailable)
		return
	}
	caller, _ := CallerFrom(r.Context())
	refs, ok := s.decodeTokens(w, r)
	if !ok {
		return
	}
	if err := s.assets.SafeBatchTransfer(caller, s.cfg.PoolAddress, refs, nil); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "staked"})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	refs, ok := s.decodeTokens(w, r)
	if !ok {
		return
	}
	var err error
	if len(refs) == 1 {
		err = s.engine.Unstake(caller, refs[0])
	} else {
		err = s.engine.BatchUnstake(caller, refs)
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "unstaked"})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req claimRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	claim, err := s.engine.ClaimRewards(caller, req.MaxPeriods)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClaimResponse(claim))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if err := s.engine.Start(caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started"})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	if err := s.engine.Disable(caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "disabled"})
}

func (s *Server) handleAddRewards(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req addRewardsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	rate, err := parseAmount(req.RewardsPerCycle)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.AddRewardsForPeriods(caller, req.StartPeriod, req.EndPeriod, rate); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "funded"})
}

func (s *Server) handleWithdrawPool(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req withdrawPoolRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.WithdrawRewardsPool(caller, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "withdrawn"})
}

func (s *Server) handleWithdrawLostCycle(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	var req withdrawLostCycleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid recipient", errBadRequest))
		return
	}
	amount, err := s.engine.WithdrawLostCycleRewards(caller, common.HexToAddress(req.To), req.Cycle, req.GlobalSnapshotIndex)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawLostCycleResponse{Cycle: req.Cycle, Amount: amountString(amount)})
}

func (s *Server) handleDevMint(w http.ResponseWriter, r *http.Request) {
	if !s.minter.enabled() {
		s.writeEngineError(w, r, errUnavailable)
		return
	}
	caller, _ := CallerFrom(r.Context())
	if caller != s.engine.Params().Owner {
		s.writeEngineError(w, r, fmt.Errorf("%w: mint", staking.ErrUnauthorized))
		return
	}
	var req mintRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid recipient", errBadRequest))
		return
	}
	refs, err := parseTokenRefs(req.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var amount *big.Int
	if strings.TrimSpace(req.Amount) != "" {
		if amount, err = parseAmount(req.Amount); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if len(refs) == 0 && amount == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: nothing to mint", errBadRequest))
		return
	}
	to := common.HexToAddress(req.To)
	for _, ref := range refs {
		if err := s.minter.assets.Mint(to, ref); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
	}
	if amount != nil {
		if err := s.minter.currency.Mint(to, amount); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
	}
	s.logger.Warn("rpc: dev mint", "to", to.Hex(), "tokens", len(refs), "amount", amountString(amount))
	writeJSON(w, http.StatusOK, mintResponse{To: to.Hex(), Tokens: req.Tokens, Amount: amountString(amount)})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func (s *Server) decodeTokens(w http.ResponseWriter, r *http.Request) ([]staking.TokenRef, bool) {
	var req tokensRequest
	if !s.decodeBody(w, r, &req) {
		return nil, false
	}
	if len(req.Tokens) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: tokens required", errBadRequest))
		return nil, false
	}
	refs, err := parseTokenRefs(req.Tokens)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return refs, true
}

func parseTokenRefs(raw []string) ([]staking.TokenRef, error) {
	refs := make([]staking.TokenRef, len(raw))
	for i, value := range raw {
		ref, err := staking.ParseTokenRef(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		refs[i] = ref
	}
	return refs, nil
}

func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount is required", errBadRequest)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount", errBadRequest)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", errBadRequest)
	}
	return value, nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	value, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errBadRequest, name)
	}
	return value, nil
}

func uintQuery(r *http.Request, name string) (uint64, error) {
	value, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errBadRequest, name)
	}
	return value, nil
}

func addressParam(r *http.Request) (common.Address, error) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid address", errBadRequest)
	}
	return common.HexToAddress(raw), nil
}
