package bank

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Vault holds reward currency on behalf of a staking pool account.
type Vault struct {
	ledger  *Ledger
	account common.Address
}

// NewVault returns a vault backed by the pool account in ledger.
func NewVault(ledger *Ledger, account common.Address) *Vault {
	return &Vault{ledger: ledger, account: account}
}

// Account returns the pool account address.
func (v *Vault) Account() common.Address { return v.account }

// Pull moves amount from the funder into the pool account.
func (v *Vault) Pull(from common.Address, amount *big.Int) error {
	return v.ledger.Transfer(from, v.account, amount)
}

// Pay moves amount from the pool account to the recipient.
func (v *Vault) Pay(to common.Address, amount *big.Int) error {
	return v.ledger.Transfer(v.account, to, amount)
}

// Balance returns the pool account balance.
func (v *Vault) Balance() (*big.Int, error) {
	return v.ledger.Balance(v.account)
}
