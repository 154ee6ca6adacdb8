package staking

import (
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/core/cycle"
)

const (
	// DefaultFreezeCycles is the number of cycles a token must stay deposited
	// before it can be withdrawn from an enabled pool.
	DefaultFreezeCycles uint64 = 1
	// MaxFundingPeriods bounds the number of periods touched by one funding
	// call or lost cycle listing.
	MaxFundingPeriods uint64 = 10_000
)

// Params captures the immutable configuration of a staking pool.
type Params struct {
	Owner      common.Address
	Cycle      cycle.Config
	Collection common.Address
	// TokenType is the required asset type encoded in bits 240-247 of the id.
	TokenType uint8
	// Seasons lists the accepted season values (bits 224-231).
	Seasons []uint8
	// RarityWeights maps rarity (bits 176-183) to staking weight. Rarities
	// without an entry are rejected.
	RarityWeights map[uint8]uint64
	// FreezeCycles is the minimum number of elapsed cycles between deposit
	// and withdrawal while the pool is enabled.
	FreezeCycles uint64
}

// DefaultParams returns the car collection configuration: seasons 2019 and
// 2020, common/epic/legendary/apex weights 1/10/100/500.
func DefaultParams(owner, collection common.Address) Params {
	return Params{
		Owner:      owner,
		Cycle:      cycle.DefaultConfig(),
		Collection: collection,
		TokenType:  TokenTypeCar,
		Seasons:    []uint8{Season2019, Season2020},
		RarityWeights: map[uint8]uint64{
			RarityCommon:    1,
			RarityEpic:      10,
			RarityLegendary: 100,
			RarityApex:      500,
		},
		FreezeCycles: DefaultFreezeCycles,
	}
}

// Validate ensures the parameters describe a usable pool.
func (p Params) Validate() error {
	if err := p.Cycle.Validate(); err != nil {
		return err
	}
	if p.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner required", ErrConfig)
	}
	if p.Collection == (common.Address{}) {
		return fmt.Errorf("%w: collection required", ErrConfig)
	}
	if len(p.Seasons) == 0 {
		return fmt.Errorf("%w: at least one season required", ErrConfig)
	}
	if len(p.RarityWeights) == 0 {
		return fmt.Errorf("%w: rarity weights required", ErrConfig)
	}
	for rarity, weight := range p.RarityWeights {
		if weight == 0 {
			return fmt.Errorf("%w: rarity %d has zero weight", ErrConfig, rarity)
		}
		if weight > math.MaxInt64 {
			return fmt.Errorf("%w: rarity %d weight %d exceeds %d", ErrConfig, rarity, weight, int64(math.MaxInt64))
		}
	}
	return nil
}

func (p Params) clone() Params {
	out := p
	out.Seasons = append([]uint8(nil), p.Seasons...)
	out.RarityWeights = make(map[uint8]uint64, len(p.RarityWeights))
	for k, v := range p.RarityWeights {
		out.RarityWeights[k] = v
	}
	return out
}

// Rarities returns the configured rarities in ascending order.
func (p Params) Rarities() []uint8 {
	out := make([]uint8, 0, len(p.RarityWeights))
	for r := range p.RarityWeights {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WeightOf validates a token against the pool configuration and returns its
// staking weight.
func (p Params) WeightOf(ref TokenRef) (uint64, error) {
	if ref.Contract != p.Collection {
		return 0, fmt.Errorf("%w: %s", ErrContractNotWhitelisted, ref.Contract.Hex())
	}
	attrs := DecodeAttributes(&ref.ID)
	if attrs.Type != p.TokenType {
		return 0, fmt.Errorf("%w: type %d", ErrWrongToken, attrs.Type)
	}
	seasonOK := false
	for _, s := range p.Seasons {
		if s == attrs.Season {
			seasonOK = true
			break
		}
	}
	if !seasonOK {
		return 0, fmt.Errorf("%w: season %d", ErrWrongToken, attrs.Season)
	}
	weight, ok := p.RarityWeights[attrs.Rarity]
	if !ok {
		return 0, fmt.Errorf("%w: rarity %d", ErrWrongToken, attrs.Rarity)
	}
	return weight, nil
}
