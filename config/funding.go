package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FundingRound funds every period of [StartPeriod, EndPeriod] with
// RewardsPerCycle per cycle.
type FundingRound struct {
	StartPeriod     uint64
	EndPeriod       uint64
	RewardsPerCycle *big.Int
}

// fundingPlanFile mirrors the YAML representation of a funding plan.
type fundingPlanFile struct {
	Rounds []struct {
		StartPeriod     uint64 `yaml:"start_period"`
		EndPeriod       uint64 `yaml:"end_period"`
		RewardsPerCycle string `yaml:"rewards_per_cycle"`
	} `yaml:"rounds"`
}

// LoadFundingPlan reads the funding rounds applied at boot.
func LoadFundingPlan(path string) ([]FundingRound, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open funding plan: %w", err)
	}
	defer file.Close()
	var plan fundingPlanFile
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode funding plan: %w", err)
	}
	rounds := make([]FundingRound, 0, len(plan.Rounds))
	for i, entry := range plan.Rounds {
		if entry.StartPeriod == 0 || entry.StartPeriod > entry.EndPeriod {
			return nil, fmt.Errorf("round %d: invalid period range [%d, %d]", i, entry.StartPeriod, entry.EndPeriod)
		}
		rate, err := parseDecimal(entry.RewardsPerCycle)
		if err != nil {
			return nil, fmt.Errorf("round %d rewards_per_cycle: %w", i, err)
		}
		rounds = append(rounds, FundingRound{
			StartPeriod:     entry.StartPeriod,
			EndPeriod:       entry.EndPeriod,
			RewardsPerCycle: rate,
		})
	}
	return rounds, nil
}

func parseDecimal(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("value required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("value must be positive")
	}
	return amount, nil
}
