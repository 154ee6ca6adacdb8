package inventory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"deltastake/native/staking"
)

func ownerKey(ref staking.TokenRef) []byte {
	id := ref.ID.Bytes32()
	buf := append(append([]byte(nil), ownerPrefix...), ref.Contract.Bytes()...)
	return append(buf, id[:]...)
}

func refFromKey(key []byte) (staking.TokenRef, error) {
	body := key[len(ownerPrefix):]
	if len(body) != common.AddressLength+32 {
		return staking.TokenRef{}, fmt.Errorf("inventory: malformed key %x", key)
	}
	contract := common.BytesToAddress(body[:common.AddressLength])
	id := new(uint256.Int).SetBytes32(body[common.AddressLength:])
	return staking.NewTokenRef(contract, id), nil
}
