package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"deltastake/storage"
)

var (
	errNilDatabase       = errors.New("bank: database required")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
	ErrBalanceOverflow   = errors.New("bank: balance exceeds 256 bits")
)

var (
	balancePrefix = []byte("bank/balance/")
	supplyKey     = []byte("bank/supply")
)

// Ledger tracks balances of the reward currency.
type Ledger struct {
	mu sync.Mutex
	db storage.Database
}

// NewLedger returns a ledger persisted in db.
func NewLedger(db storage.Database) (*Ledger, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	return &Ledger{db: db}, nil
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(balanceKey(addr))
}

// Supply returns the total minted amount.
func (l *Ledger) Supply() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(supplyKey)
}

// Mint credits amount to addr and grows the supply.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.read(balanceKey(addr))
	if err != nil {
		return err
	}
	supply, err := l.read(supplyKey)
	if err != nil {
		return err
	}
	batch := l.db.NewBatch()
	if err := putAmount(batch, balanceKey(addr), balance.Add(balance, amount)); err != nil {
		return err
	}
	if err := putAmount(batch, supplyKey, supply.Add(supply, amount)); err != nil {
		return err
	}
	return batch.Write()
}

// Transfer moves amount from one account to another atomically.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := l.read(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := l.read(balanceKey(to))
	if err != nil {
		return err
	}
	batch := l.db.NewBatch()
	if err := putAmount(batch, balanceKey(from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := putAmount(batch, balanceKey(to), toBalance.Add(toBalance, amount)); err != nil {
		return err
	}
	return batch.Write()
}

func (l *Ledger) read(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(raw, amount); err != nil {
		return nil, fmt.Errorf("bank: decode %q: %w", key, err)
	}
	return amount, nil
}

func putAmount(batch storage.Batch, key []byte, amount *big.Int) error {
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrBalanceOverflow
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	batch.Put(key, encoded)
	return nil
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte(nil), balancePrefix...), addr.Bytes()...)
}
