// Package staking persists the staking engine state in a key/value database.
// Every engine changeset is written through a single atomic batch.
package staking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	nativestaking "deltastake/native/staking"
	"deltastake/state/snapshots"
	"deltastake/storage"
)

// Store implements the staking engine state on top of storage.Database.
// Snapshot histories are cached in memory after the first read.
type Store struct {
	mu         sync.RWMutex
	db         storage.Database
	global     *snapshots.History
	stakerHist map[common.Address]*snapshots.History
}

// NewStore opens the staking state in db, loading the global history.
func NewStore(db storage.Database) (*Store, error) {
	if db == nil {
		return nil, errors.New("staking store: database required")
	}
	s := &Store{db: db, stakerHist: make(map[common.Address]*snapshots.History)}
	global, err := s.loadHistory(globalPrefix, globalLenKey)
	if err != nil {
		return nil, fmt.Errorf("staking store: load global history: %w", err)
	}
	s.global = global
	return s, nil
}

// StakingPoolGet returns the persisted pool state.
func (s *Store) StakingPoolGet() (*nativestaking.PoolState, bool, error) {
	var stored storedPool
	ok, err := s.get(poolKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toPool(), true, nil
}

// StakingScheduleGet returns the per-cycle reward of period, zero if unset.
func (s *Store) StakingScheduleGet(period uint64) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := s.get(scheduleKey(period), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// StakingGlobalHistory returns the cached global history. Callers must not
// mutate it.
func (s *Store) StakingGlobalHistory() (*snapshots.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global, nil
}

// StakingStakerHistory returns the cached history of addr, loading it on
// first use. Callers must not mutate it.
func (s *Store) StakingStakerHistory(addr common.Address) (*snapshots.History, error) {
	s.mu.RLock()
	h, ok := s.stakerHist[addr]
	s.mu.RUnlock()
	if ok {
		return h, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.stakerHist[addr]; ok {
		return h, nil
	}
	h, err := s.loadHistory(stakerHistoryPrefix(addr), stakerHistoryLenKey(addr))
	if err != nil {
		return nil, fmt.Errorf("staking store: load history of %s: %w", addr.Hex(), err)
	}
	s.stakerHist[addr] = h
	return h, nil
}

// StakingStakerGet returns the bookkeeping of addr.
func (s *Store) StakingStakerGet(addr common.Address) (*nativestaking.StakerState, bool, error) {
	var stored storedStaker
	ok, err := s.get(stakerKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toStaker(), true, nil
}

// StakingTokenGet returns the deposit record of ref.
func (s *Store) StakingTokenGet(ref nativestaking.TokenRef) (*nativestaking.TokenInfo, bool, error) {
	var stored storedToken
	ok, err := s.get(tokenKey(ref), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toToken(), true, nil
}

// StakingLostCycleWithdrawn reports whether cycle was reclaimed.
func (s *Store) StakingLostCycleWithdrawn(cycle uint64) (bool, error) {
	return s.db.Has(lostCycleKey(cycle))
}

// StakingCommit writes the changeset in one batch. Caches are swapped only
// after the batch has been written.
func (s *Store) StakingCommit(cs *nativestaking.Changeset) error {
	if cs.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()

	if cs.Pool != nil {
		stored, err := newStoredPool(cs.Pool)
		if err != nil {
			return err
		}
		if err := putRLP(batch, poolKey, stored); err != nil {
			return err
		}
	}
	for period, rate := range cs.Schedule {
		amount, err := boundedAmount(rate)
		if err != nil {
			return fmt.Errorf("schedule period %d: %w", period, err)
		}
		if amount.Sign() == 0 {
			batch.Delete(scheduleKey(period))
			continue
		}
		if err := putRLP(batch, scheduleKey(period), amount); err != nil {
			return err
		}
	}

	var nextGlobal *snapshots.History
	if len(cs.Global) > 0 {
		nextGlobal = s.global.Clone()
		nativestaking.ApplyHistoryOps(nextGlobal, cs.Global)
		if err := writeHistory(batch, s.global, nextGlobal, cs.Global, globalEntryKey, globalLenKey); err != nil {
			return err
		}
	}
	nextStakers := make(map[common.Address]*snapshots.History, len(cs.StakerHistory))
	for addr, ops := range cs.StakerHistory {
		current, ok := s.stakerHist[addr]
		if !ok {
			loaded, err := s.loadHistory(stakerHistoryPrefix(addr), stakerHistoryLenKey(addr))
			if err != nil {
				return err
			}
			current = loaded
		}
		next := current.Clone()
		nativestaking.ApplyHistoryOps(next, ops)
		entryKey := func(i int) []byte { return stakerHistoryEntryKey(addr, i) }
		if err := writeHistory(batch, current, next, ops, entryKey, stakerHistoryLenKey(addr)); err != nil {
			return err
		}
		nextStakers[addr] = next
	}

	for addr, st := range cs.Stakers {
		if st == nil {
			batch.Delete(stakerKey(addr))
			continue
		}
		if err := putRLP(batch, stakerKey(addr), newStoredStaker(st)); err != nil {
			return err
		}
	}
	for ref, info := range cs.Tokens {
		if info == nil {
			batch.Delete(tokenKey(ref))
			continue
		}
		if err := putRLP(batch, tokenKey(ref), newStoredToken(info)); err != nil {
			return err
		}
	}
	for cycle, marked := range cs.LostCycles {
		if !marked {
			batch.Delete(lostCycleKey(cycle))
			continue
		}
		batch.Put(lostCycleKey(cycle), []byte{1})
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("staking store: write batch: %w", err)
	}
	if nextGlobal != nil {
		s.global = nextGlobal
	}
	for addr, h := range nextStakers {
		s.stakerHist[addr] = h
	}
	return nil
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("staking store: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) loadHistory(prefix, lenKey []byte) (*snapshots.History, error) {
	var entries []snapshots.Snapshot
	var decodeErr error
	err := s.db.Iterate(prefix, func(key, value []byte) bool {
		if len(key)-len(prefix) != historyIndexLength {
			return true
		}
		var stored storedSnapshot
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			decodeErr = err
			return false
		}
		if idx := binary.BigEndian.Uint64(key[len(prefix):]); idx != uint64(len(entries)) {
			decodeErr = fmt.Errorf("missing snapshot before index %d", idx)
			return false
		}
		entries = append(entries, stored.toSnapshot())
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	raw, err := s.db.Get(lenKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if len(entries) != 0 {
			return nil, fmt.Errorf("history length missing for %d entries", len(entries))
		}
	case err != nil:
		return nil, err
	default:
		if len(raw) != 8 || binary.BigEndian.Uint64(raw) != uint64(len(entries)) {
			return nil, fmt.Errorf("history length mismatch: %x vs %d entries", raw, len(entries))
		}
	}
	return snapshots.NewHistory(entries)
}

// writeHistory stages the entries touched by ops and trims entries removed by
// reverts.
func writeHistory(batch storage.Batch, prev, next *snapshots.History, ops []nativestaking.HistoryOp, entryKey func(int) []byte, lenKey []byte) error {
	touched := make(map[int]struct{}, len(ops))
	for _, op := range ops {
		touched[op.Update.Index] = struct{}{}
	}
	for idx := range touched {
		if idx < next.Len() {
			if err := putRLP(batch, entryKey(idx), newStoredSnapshot(next.At(idx))); err != nil {
				return err
			}
		}
	}
	for idx := next.Len(); idx < prev.Len(); idx++ {
		batch.Delete(entryKey(idx))
	}
	if next.Len() == 0 {
		batch.Delete(lenKey)
		return nil
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(next.Len()))
	batch.Put(lenKey, raw[:])
	return nil
}

func putRLP(batch storage.Batch, key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("staking store: encode %q: %w", key, err)
	}
	batch.Put(key, encoded)
	return nil
}
