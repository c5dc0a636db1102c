package metrics

// Outcome label values.
const (
	OutcomeGood = "good"
	OutcomeBad  = "bad"
)

// Collector wraps metrics and provides helper methods with the instance label pre-filled.
type Collector struct {
	instance string
}

// NewCollector creates a new Collector for the given instance alias.
func NewCollector(instance string) *Collector {
	return &Collector{instance: instance}
}

// Instance returns the instance alias the collector labels metrics with.
func (c *Collector) Instance() string {
	return c.instance
}

// AddRecords adds good and bad record counts for a type and operation.
func (c *Collector) AddRecords(typ, operation string, good, bad int) {
	if good > 0 {
		RecordsTransferredTotal.WithLabelValues(c.instance, typ, operation, OutcomeGood).Add(float64(good))
	}
	if bad > 0 {
		RecordsTransferredTotal.WithLabelValues(c.instance, typ, operation, OutcomeBad).Add(float64(bad))
	}
}

// IncChunks increments the chunks counter.
func (c *Collector) IncChunks(typ, operation string) {
	ChunksTotal.WithLabelValues(c.instance, typ, operation).Inc()
}

// IncChunkFailures increments the chunk failures counter.
func (c *Collector) IncChunkFailures(typ, operation string) {
	ChunkFailuresTotal.WithLabelValues(c.instance, typ, operation).Inc()
}

// AddExported adds to the exported records counter.
func (c *Collector) AddExported(typ string, n int) {
	RecordsExportedTotal.WithLabelValues(c.instance, typ).Add(float64(n))
}

// AddIdentityMappings adds to the identity mappings counter.
func (c *Collector) AddIdentityMappings(typ string, n int) {
	IdentityMappingsTotal.WithLabelValues(c.instance, typ).Add(float64(n))
}

// AddDeferredUpdates adds to the deferred updates counter.
func (c *Collector) AddDeferredUpdates(typ string, n int) {
	DeferredUpdatesTotal.WithLabelValues(c.instance, typ).Add(float64(n))
}

// AddSchemaMismatches adds to the schema mismatches counter.
func (c *Collector) AddSchemaMismatches(n int) {
	SchemaMismatchesTotal.WithLabelValues(c.instance).Add(float64(n))
}

// IncRuns increments the finished runs counter.
func (c *Collector) IncRuns(outcome string) {
	RunsTotal.WithLabelValues(c.instance, outcome).Inc()
}

// SetPhase sets the phase gauge. Sets value to 1 for the given phase, 0 for the others.
func (c *Collector) SetPhase(phase string, phases []string) {
	for _, p := range phases {
		if p == phase {
			Phase.WithLabelValues(c.instance, p).Set(1)
		} else {
			Phase.WithLabelValues(c.instance, p).Set(0)
		}
	}
}

// ObserveChunkDuration records a chunk duration observation.
func (c *Collector) ObserveChunkDuration(operation string, seconds float64) {
	ChunkDuration.WithLabelValues(c.instance, operation).Observe(seconds)
}

// ObservePhaseDuration records the time spent in a phase.
func (c *Collector) ObservePhaseDuration(phase string, seconds float64) {
	PhaseDuration.WithLabelValues(c.instance, phase).Observe(seconds)
}
