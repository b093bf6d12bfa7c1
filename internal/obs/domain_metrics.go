package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CalcBatchesTotal counts section calculation batches by outcome.
	CalcBatchesTotal *prometheus.CounterVec
	// CalcBatchDuration records section calculation latency in milliseconds.
	CalcBatchDuration *prometheus.HistogramVec
	// MergeOutcomesTotal counts reconciliation merges by resolving match rule.
	MergeOutcomesTotal *prometheus.CounterVec
	// MergeAppendsTotal counts incoming items that matched nothing and were appended.
	MergeAppendsTotal prometheus.Counter
	// StaleResultsDiscarded counts calculation responses dropped for arriving
	// behind the last applied sequence number.
	StaleResultsDiscarded prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CalcBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calc_batches_total",
			Help:      "Count of section calculation batches by outcome.",
		}, []string{"result"})
		CalcBatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calc_batch_duration_ms",
			Help:      "Latency of section calculation batches in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"result"})
		MergeOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_outcomes_total",
			Help:      "Count of reconciliation merge outcomes by match rule.",
		}, []string{"rule"})
		MergeAppendsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_appends_total",
			Help:      "Incoming calculated items appended because no local item matched.",
		})
		StaleResultsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Calculation responses dropped for carrying a stale sequence number.",
		})

		mustRegisterCollector(reg, CalcBatchesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CalcBatchesTotal = v
			}
		})
		mustRegisterCollector(reg, CalcBatchDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CalcBatchDuration = v
			}
		})
		mustRegisterCollector(reg, MergeOutcomesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				MergeOutcomesTotal = v
			}
		})
		mustRegisterCollector(reg, MergeAppendsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				MergeAppendsTotal = v
			}
		})
		mustRegisterCollector(reg, StaleResultsDiscarded, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StaleResultsDiscarded = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
