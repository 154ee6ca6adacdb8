package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StakingMetrics struct {
	totalWeight      prometheus.Gauge
	stakers          prometheus.Gauge
	stakeOps         *prometheus.CounterVec
	unstakeOps       *prometheus.CounterVec
	claims           prometheus.Counter
	rewardsClaimed   prometheus.Counter
	rewardsFunded    prometheus.Counter
	lostCycles       prometheus.Counter
	lostCycleRewards prometheus.Counter
	transferFailures *prometheus.CounterVec
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the lazily registered staking engine collectors.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			totalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_weight",
				Help: "Total deposited weight effective in the current cycle.",
			}),
			stakers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_stakers",
				Help: "Number of stakers with at least one deposited token.",
			}),
			stakeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_tokens_staked_total",
				Help: "Count of deposited tokens by entry point.",
			}, []string{"mode"}),
			unstakeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_tokens_unstaked_total",
				Help: "Count of withdrawn tokens by bookkeeping mode.",
			}, []string{"mode"}),
			claims: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_claims_total",
				Help: "Count of successful reward claims.",
			}),
			rewardsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_claimed",
				Help: "Cumulative reward units paid to stakers.",
			}),
			rewardsFunded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_funded",
				Help: "Cumulative reward units committed to the schedule.",
			}),
			lostCycles: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_lost_cycles_withdrawn_total",
				Help: "Count of reclaimed lost cycles.",
			}),
			lostCycleRewards: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_lost_cycle_rewards",
				Help: "Cumulative reward units reclaimed from lost cycles.",
			}),
			transferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_transfer_failures_total",
				Help: "Count of failed external transfers by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			stakingRegistry.totalWeight,
			stakingRegistry.stakers,
			stakingRegistry.stakeOps,
			stakingRegistry.unstakeOps,
			stakingRegistry.claims,
			stakingRegistry.rewardsClaimed,
			stakingRegistry.rewardsFunded,
			stakingRegistry.lostCycles,
			stakingRegistry.lostCycleRewards,
			stakingRegistry.transferFailures,
		)
	})
	return stakingRegistry
}

func (m *StakingMetrics) SetTotalWeight(weight uint64) {
	if m == nil {
		return
	}
	m.totalWeight.Set(float64(weight))
}

func (m *StakingMetrics) AddStakers(delta int) {
	if m == nil {
		return
	}
	m.stakers.Add(float64(delta))
}

func (m *StakingMetrics) ObserveStaked(count int, batch bool) {
	if m == nil {
		return
	}
	mode := "single"
	if batch {
		mode = "batch"
	}
	m.stakeOps.WithLabelValues(mode).Add(float64(count))
}

func (m *StakingMetrics) ObserveUnstaked(count int, bookkept bool) {
	if m == nil {
		return
	}
	mode := "bookkept"
	if !bookkept {
		mode = "disabled"
	}
	m.unstakeOps.WithLabelValues(mode).Add(float64(count))
}

func (m *StakingMetrics) ObserveClaim(amount *big.Int) {
	if m == nil {
		return
	}
	m.claims.Inc()
	m.rewardsClaimed.Add(bigToFloat(amount))
}

func (m *StakingMetrics) ObserveFunding(amount *big.Int) {
	if m == nil {
		return
	}
	m.rewardsFunded.Add(bigToFloat(amount))
}

func (m *StakingMetrics) ObserveLostCycle(amount *big.Int) {
	if m == nil {
		return
	}
	m.lostCycles.Inc()
	m.lostCycleRewards.Add(bigToFloat(amount))
}

func (m *StakingMetrics) IncTransferFailure(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.transferFailures.WithLabelValues(operation).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
