// Package inventory is a minimal NFT ownership registry. Safe transfers into a
// registered receiver invoke its deposit callbacks, and the registry releases
// assets held by a receiver back to their depositors.
package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/native/staking"
	"deltastake/storage"
)

var (
	ErrNotOwner      = errors.New("inventory: caller does not own token")
	ErrTokenExists   = errors.New("inventory: token already minted")
	ErrUnknownToken  = errors.New("inventory: unknown token")
	ErrZeroRecipient = errors.New("inventory: zero recipient")
	errNilDatabase   = errors.New("inventory: database required")
)

var ownerPrefix = []byte("inv/owner/")

// Receiver accepts safe transfers.
type Receiver interface {
	OnAssetReceived(from common.Address, ref staking.TokenRef, quantity uint64, data []byte) error
	OnBatchAssetReceived(from common.Address, refs []staking.TokenRef, quantities []uint64, data []byte) error
}

// Registry stores token ownership.
type Registry struct {
	mu        sync.Mutex
	db        storage.Database
	receivers map[common.Address]Receiver
	logger    *slog.Logger
}

// NewRegistry returns a registry persisted in db.
func NewRegistry(db storage.Database) (*Registry, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	return &Registry{db: db, receivers: make(map[common.Address]Receiver), logger: slog.Default()}, nil
}

// SetLogger overrides the default logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RegisterReceiver routes safe transfers to addr through r.
func (r *Registry) RegisterReceiver(addr common.Address, recv Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[addr] = recv
}

// Custody returns a staking.Custody that releases assets held by holder.
func (r *Registry) Custody(holder common.Address) staking.Custody {
	return custody{registry: r, holder: holder}
}

// Mint assigns a new token to owner.
func (r *Registry) Mint(owner common.Address, ref staking.TokenRef) error {
	if owner == (common.Address{}) {
		return ErrZeroRecipient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ok, err := r.db.Has(ownerKey(ref))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, ref)
	}
	return r.db.Put(ownerKey(ref), owner.Bytes())
}

// OwnerOf returns the current owner of ref.
func (r *Registry) OwnerOf(ref staking.TokenRef) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerOf(ref)
}

// TokensOf lists the tokens held by owner.
func (r *Registry) TokensOf(owner common.Address) ([]staking.TokenRef, error) {
	var (
		out       []staking.TokenRef
		decodeErr error
	)
	err := r.db.Iterate(ownerPrefix, func(key, value []byte) bool {
		if common.BytesToAddress(value) != owner {
			return true
		}
		ref, err := refFromKey(key)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, ref)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decodeErr
}

// SafeTransfer moves ref from "from" to "to". When "to" is a registered
// receiver its callback must accept the asset or the transfer is undone.
func (r *Registry) SafeTransfer(from, to common.Address, ref staking.TokenRef, data []byte) error {
	return r.SafeBatchTransfer(from, to, []staking.TokenRef{ref}, data)
}

// SafeBatchTransfer moves every ref from "from" to "to" atomically. The
// receiver callback runs without the registry lock held so it may call back
// into Custody.
func (r *Registry) SafeBatchTransfer(from, to common.Address, refs []staking.TokenRef, data []byte) error {
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	r.mu.Lock()
	if err := r.move(from, to, refs); err != nil {
		r.mu.Unlock()
		return err
	}
	recv := r.receivers[to]
	r.mu.Unlock()
	if recv == nil {
		return nil
	}

	var err error
	if len(refs) == 1 {
		err = recv.OnAssetReceived(from, refs[0], 1, data)
	} else {
		quantities := make([]uint64, len(refs))
		for i := range quantities {
			quantities[i] = 1
		}
		err = recv.OnBatchAssetReceived(from, refs, quantities, data)
	}
	if err == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if undoErr := r.move(to, from, refs); undoErr != nil {
		r.logger.Error("inventory transfer undo failed", "error", undoErr, "cause", err)
		return fmt.Errorf("%w (undo: %v)", err, undoErr)
	}
	return err
}

func (r *Registry) move(from, to common.Address, refs []staking.TokenRef) error {
	batch := r.db.NewBatch()
	for _, ref := range refs {
		owner, err := r.ownerOf(ref)
		if err != nil {
			return err
		}
		if owner != from {
			return fmt.Errorf("%w: %s", ErrNotOwner, ref)
		}
		batch.Put(ownerKey(ref), to.Bytes())
	}
	return batch.Write()
}

func (r *Registry) ownerOf(ref staking.TokenRef) (common.Address, error) {
	raw, err := r.db.Get(ownerKey(ref))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownToken, ref)
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

type custody struct {
	registry *Registry
	holder   common.Address
}

// Release returns assets held by the pool to their depositor.
func (c custody) Release(to common.Address, refs []staking.TokenRef) error {
	if to == (common.Address{}) {
		return ErrZeroRecipient
	}
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()
	return c.registry.move(c.holder, to, refs)
}
