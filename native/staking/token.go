package staking

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Attribute byte offsets inside a token id.
const (
	typeBit   = 240
	seasonBit = 224
	rarityBit = 176
)

const (
	TokenTypeCar uint8 = 1

	Season2018 uint8 = 1
	Season2019 uint8 = 2
	Season2020 uint8 = 3

	RarityCommon    uint8 = 1
	RarityEpic      uint8 = 2
	RarityLegendary uint8 = 3
	RarityApex      uint8 = 4
)

// TokenRef identifies a deposited NFT. It is comparable and used as a map key.
type TokenRef struct {
	Contract common.Address
	ID       uint256.Int
}

// NewTokenRef builds a reference from a contract address and token id.
func NewTokenRef(contract common.Address, id *uint256.Int) TokenRef {
	ref := TokenRef{Contract: contract}
	if id != nil {
		ref.ID.Set(id)
	}
	return ref
}

// String renders the reference as "<contract>/<decimal id>".
func (r TokenRef) String() string {
	return strings.ToLower(r.Contract.Hex()) + "/" + r.ID.Dec()
}

// ParseTokenRef parses the String form. The id may be decimal or 0x-prefixed hex.
func ParseTokenRef(raw string) (TokenRef, error) {
	contract, id, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok || !common.IsHexAddress(contract) {
		return TokenRef{}, fmt.Errorf("%w: malformed token reference %q", ErrWrongToken, raw)
	}
	value, err := ParseTokenID(id)
	if err != nil {
		return TokenRef{}, err
	}
	return NewTokenRef(common.HexToAddress(contract), value), nil
}

// ParseTokenID parses a decimal or 0x-prefixed hex token id.
func ParseTokenID(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	var (
		value *uint256.Int
		err   error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		value, err = uint256.FromHex(trimmed)
	} else {
		value, err = uint256.FromDecimal(trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: token id %q: %v", ErrWrongToken, raw, err)
	}
	return value, nil
}

// TokenAttributes are the fields packed into a token id.
type TokenAttributes struct {
	Type   uint8
	Season uint8
	Rarity uint8
}

// DecodeAttributes extracts the type, season and rarity bytes from an id.
func DecodeAttributes(id *uint256.Int) TokenAttributes {
	return TokenAttributes{
		Type:   byteAt(id, typeBit),
		Season: byteAt(id, seasonBit),
		Rarity: byteAt(id, rarityBit),
	}
}

// EncodeTokenID packs attributes and a serial number (low 64 bits) into an id.
func EncodeTokenID(attrs TokenAttributes, serial uint64) *uint256.Int {
	id := uint256.NewInt(serial)
	id.Or(id, new(uint256.Int).Lsh(uint256.NewInt(uint64(attrs.Type)), typeBit))
	id.Or(id, new(uint256.Int).Lsh(uint256.NewInt(uint64(attrs.Season)), seasonBit))
	id.Or(id, new(uint256.Int).Lsh(uint256.NewInt(uint64(attrs.Rarity)), rarityBit))
	return id
}

func byteAt(id *uint256.Int, bit uint) uint8 {
	if id == nil {
		return 0
	}
	return uint8(new(uint256.Int).Rsh(id, bit).Uint64() & 0xff)
}
