// Package observability holds the Prometheus collectors for the
// statistics store. Everything registers against the default registry so
// promhttp.Handler picks it up without extra wiring.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnitLoads counts shard units materialized from storage, including
	// fresh-empty fallbacks.
	UnitLoads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "unit_loads_total",
		Help:      "Shard units loaded into memory.",
	})

	// UnitLoadFallbacks counts loads that fell back to an empty unit
	// because the shard file was missing, unreadable or malformed.
	UnitLoadFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "unit_load_fallbacks_total",
		Help:      "Unit loads that degraded to an empty unit.",
	})

	// UnitSaves counts shard units written to storage.
	UnitSaves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "unit_saves_total",
		Help:      "Shard units persisted.",
	})

	// UnitSaveFailures counts persistence failures, including directory
	// creation failures.
	UnitSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "unit_save_failures_total",
		Help:      "Failed shard unit saves.",
	})

	// UnitEvictions counts resident units dropped under memory pressure.
	UnitEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "unit_evictions_total",
		Help:      "Resident units evicted by the memory budget.",
	})

	// Increments counts recorded use events (one per conjunct).
	Increments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "increments_total",
		Help:      "Recorded use-count increments.",
	})

	// Flushes counts flush passes.
	Flushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rankstats",
		Name:      "flushes_total",
		Help:      "Dirty-set flush passes.",
	})

	// ResidentUnits tracks how many shard units are currently cached.
	ResidentUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rankstats",
		Name:      "resident_units",
		Help:      "Shard units currently resident in memory.",
	})
)
