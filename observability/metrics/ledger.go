package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks the accrual and side-pool activity of the ledger.
type LedgerMetrics struct {
	epochsSettled      prometheus.Counter
	catchupEpochs      prometheus.Counter
	roundingDust       *prometheus.GaugeVec
	sidepoolClaims     prometheus.Counter
	sidepoolClaimedSum prometheus.Gauge
	treasuryShortfalls prometheus.Counter
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them on first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			epochsSettled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "qstake_epochs_settled_total",
				Help: "Count of epochs rolled over by global settlement.",
			}),
			catchupEpochs: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "qstake_catchup_epochs_total",
				Help: "Count of epoch steps walked by account catch-up processing.",
			}),
			roundingDust: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "qstake_rounding_dust",
				Help: "Cumulative integer-division remainder recorded per epoch.",
			}, []string{"epoch"}),
			sidepoolClaims: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "qstake_sidepool_claims_total",
				Help: "Count of side-pool claims processed, including zero payouts.",
			}),
			sidepoolClaimedSum: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "qstake_sidepool_claimed",
				Help: "Amount claimed against the live side-pool distribution.",
			}),
			treasuryShortfalls: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "qstake_treasury_shortfalls_total",
				Help: "Count of treasury pulls rejected for insufficient funding.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.epochsSettled,
			ledgerRegistry.catchupEpochs,
			ledgerRegistry.roundingDust,
			ledgerRegistry.sidepoolClaims,
			ledgerRegistry.sidepoolClaimedSum,
			ledgerRegistry.treasuryShortfalls,
		)
	})
	return ledgerRegistry
}

// ObserveEpochSettled counts one epoch rollover.
func (m *LedgerMetrics) ObserveEpochSettled() {
	if m == nil {
		return
	}
	m.epochsSettled.Inc()
}

// ObserveCatchUpEpoch counts one step of an account's catch-up walk.
func (m *LedgerMetrics) ObserveCatchUpEpoch() {
	if m == nil {
		return
	}
	m.catchupEpochs.Inc()
}

// ObserveRoundingDust accumulates the division remainder for an epoch.
func (m *LedgerMetrics) ObserveRoundingDust(epoch uint64, dust *big.Int) {
	if m == nil || dust == nil || dust.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(dust).Float64()
	m.roundingDust.WithLabelValues(strconv.FormatUint(epoch, 10)).Add(value)
}

// ObserveSidePoolClaim counts a processed claim and the running claimed total.
func (m *LedgerMetrics) ObserveSidePoolClaim(claimed *big.Int) {
	if m == nil {
		return
	}
	m.sidepoolClaims.Inc()
	if claimed != nil {
		value, _ := new(big.Float).SetInt(claimed).Float64()
		m.sidepoolClaimedSum.Set(value)
	}
}

// ObserveTreasuryShortfall counts a rejected treasury pull.
func (m *LedgerMetrics) ObserveTreasuryShortfall() {
	if m == nil {
		return
	}
	m.treasuryShortfalls.Inc()
}
