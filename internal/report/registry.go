package report

import "sync"

// Every Client owns the Aggregator of its DSN: NewClient creates it with
// GetOrCreateAggregator and Close unregisters it. The transport built for the
// same DSN only looks it up with GetAggregator, so its drops and the Client's
// own land in one report, which the metrics Collector observes.
var (
	aggregatorsMu sync.Mutex
	aggregators   = make(map[string]*Aggregator)
)

// GetAggregator returns the Aggregator registered for dsn, or nil.
func GetAggregator(dsn string) *Aggregator {
	aggregatorsMu.Lock()
	defer aggregatorsMu.Unlock()
	return aggregators[dsn]
}

// GetOrCreateAggregator returns the Aggregator registered for dsn, creating
// and registering one first if needed. It returns nil for an empty dsn, which
// has nothing to report to.
func GetOrCreateAggregator(dsn string) *Aggregator {
	if dsn == "" {
		return nil
	}

	aggregatorsMu.Lock()
	defer aggregatorsMu.Unlock()
	a, ok := aggregators[dsn]
	if !ok {
		a = NewAggregator()
		aggregators[dsn] = a
	}
	return a
}

// UnregisterAggregator forgets the Aggregator of dsn. Outcomes it still holds
// are discarded along with it.
func UnregisterAggregator(dsn string) {
	aggregatorsMu.Lock()
	defer aggregatorsMu.Unlock()
	delete(aggregators, dsn)
}

// ClearRegistry forgets every Aggregator.
func ClearRegistry() {
	aggregatorsMu.Lock()
	defer aggregatorsMu.Unlock()
	clear(aggregators)
}
