// Package migrate runs a migration between two instances: discovery, export,
// destination cleanup, identity resolution, ordered load and deferred references.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/identity"
	"github.com/getpup/datacopy/lifecycle"
	"github.com/getpup/datacopy/metrics"
	"github.com/getpup/datacopy/ordering"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/transfer"
)

// Orchestrator copies records from a source instance to a destination instance.
// It is meant to be driven from a single goroutine.
type Orchestrator struct {
	config    Config
	src       transfer.Transferrer
	dst       transfer.Transferrer
	exporter  *export.Exporter
	collector *metrics.Collector

	// set by Prepare
	prepared bool
	srcCat   *schema.Catalog
	dstCat   *schema.Catalog
	srcOrder []string
	dstOrder []string

	// reset by every import
	ids       *identity.Map
	deferrals *identity.Deferrals

	mu      sync.Mutex
	phases  *lifecycle.Manager
	results datacopy.Results
}

// Compile-time check that Orchestrator implements datacopy.Migrator.
var _ datacopy.Migrator = (*Orchestrator)(nil)

// New creates a new Orchestrator with the given configuration.
// Returns an error wrapping datacopy.ErrConfiguration if a required field is missing.
func New(cfg Config) (*Orchestrator, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentExports <= 0 {
		cfg.MaxConcurrentExports = 4
	}

	// Create metrics collector if enabled (default: true)
	var collector *metrics.Collector
	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}
	if metricsEnabled {
		collector = metrics.NewCollector(cfg.DestinationAlias)
	}

	// Create or use provided channels
	src := cfg.SourceChannel
	if src == nil {
		tc := cfg.Transfer
		tc.Instance = cfg.Source
		tc.Logger = cfg.Logger
		src = transfer.New(tc)
	}
	dst := cfg.DestinationChannel
	if dst == nil {
		tc := cfg.Transfer
		tc.Instance = cfg.Destination
		tc.Collector = collector
		tc.Logger = cfg.Logger
		dst = transfer.New(tc)
	}

	o := &Orchestrator{
		config: cfg,
		src:    src,
		dst:    dst,
		exporter: export.NewExporter(export.Config{
			Dir:           cfg.Dir,
			MaxConcurrent: cfg.MaxConcurrentExports,
			Collector:     collector,
			Logger:        cfg.Logger,
		}),
		collector: collector,
		results:   datacopy.NewResults(),
	}
	o.phases = o.newPhases()
	return o, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Source == nil:
		return fmt.Errorf("%w: source instance is required", datacopy.ErrConfiguration)
	case cfg.Destination == nil:
		return fmt.Errorf("%w: destination instance is required", datacopy.ErrConfiguration)
	case cfg.SourceAlias == "" || cfg.DestinationAlias == "":
		return fmt.Errorf("%w: source and destination aliases are required", datacopy.ErrConfiguration)
	case cfg.Dir == nil:
		return fmt.Errorf("%w: artifact directory is required", datacopy.ErrConfiguration)
	}
	for _, m := range cfg.Metadata {
		if len(m.MatchBy) == 0 {
			return fmt.Errorf("%w: metadata type %s has no match fields", datacopy.ErrConfiguration, m.Name)
		}
	}
	return nil
}

func (o *Orchestrator) newPhases() *lifecycle.Manager {
	return lifecycle.New(lifecycle.Config{Collector: o.collector, Logger: o.config.Logger})
}

// Phase returns the phase of the current or last run.
func (o *Orchestrator) Phase() datacopy.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phases.Phase()
}

// History returns the phase transitions of the current or last run.
func (o *Orchestrator) History() []lifecycle.Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phases.History()
}

// Identities returns the identity map built by the last import, or nil.
func (o *Orchestrator) Identities() *identity.Map {
	return o.ids
}

// Results returns a copy of the counts accumulated so far.
func (o *Orchestrator) Results() datacopy.Results {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := datacopy.NewResults()
	out.Merge(o.results)
	return out
}

func (o *Orchestrator) addResults(r datacopy.Results) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results.Merge(r)
}

// startRun begins a new phase history for a delete or import run.
func (o *Orchestrator) startRun() *lifecycle.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = o.newPhases()
	return o.phases
}

// Prepare discovers both instances, checks the production guard, prunes the types and
// fields present on one side only, exports the destination's metadata and writes the
// discovery report of both instances. It runs once; later calls return nil.
// ImportAll refreshes the destination metadata export on every run.
//
// Returns an error wrapping datacopy.ErrProductionGuard if the destination is production
// and the configuration does not allow copying to it, or datacopy.ErrOrderingDeadlock if
// the data types cannot be ordered.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	if o.prepared {
		return nil
	}
	cfg := o.config

	dstCat, err := schema.Discover(ctx, cfg.Destination, cfg.request(cfg.DestinationAlias, cfg.DestinationProduction))
	if err != nil {
		return err
	}
	if err := o.guard(dstCat); err != nil {
		return err
	}

	srcCat, err := schema.Discover(ctx, cfg.Source, cfg.request(cfg.SourceAlias, cfg.SourceProduction))
	if err != nil {
		return err
	}

	mismatches, results := schema.Reconcile(srcCat, dstCat)
	for _, m := range mismatches {
		if cfg.Logger != nil {
			cfg.Logger.Warn(ctx, "schema mismatch", "error", m)
		}
	}
	if o.collector != nil {
		o.collector.AddSchemaMismatches(len(mismatches))
	}

	dstOrder, err := ordering.LoadOrder(dstCat.Types)
	if err != nil {
		return fmt.Errorf("[%s] %w", cfg.DestinationAlias, err)
	}
	srcOrder, err := ordering.LoadOrder(srcCat.Types)
	if err != nil {
		return fmt.Errorf("[%s] %w", cfg.SourceAlias, err)
	}

	if _, err := o.exporter.Export(ctx, o.dst, cfg.DestinationAlias, cfg.destinationFolder(), metadataItems(dstCat)); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := cfg.Dir.WriteInfo(cfg.sourceFolder(), schema.BuildInfo(srcCat, srcOrder, now)); err != nil {
		return err
	}
	if err := cfg.Dir.WriteInfo(cfg.destinationFolder(), schema.BuildInfo(dstCat, dstOrder, now)); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info(ctx, "instances prepared",
			"source", cfg.SourceAlias,
			"destination", cfg.DestinationAlias,
			"types", len(dstCat.Types),
			"metadata", len(dstCat.Metadata),
			"mismatches", len(mismatches),
			"loadOrder", dstOrder)
	}

	o.srcCat, o.dstCat = srcCat, dstCat
	o.srcOrder, o.dstOrder = srcOrder, dstOrder
	o.addResults(results)
	o.prepared = true
	return nil
}

// guard refuses a production destination unless copying to production is allowed
// and stop-on-errors is enabled.
func (o *Orchestrator) guard(dst *schema.Catalog) error {
	if !dst.Production {
		return nil
	}
	if !o.config.CopyToProduction {
		return fmt.Errorf("%w: [%s] is a production instance and copying to production is not allowed", datacopy.ErrProductionGuard, dst.Alias)
	}
	if !o.config.StopOnErrors {
		return fmt.Errorf("%w: [%s] is a production instance and requires stop-on-errors", datacopy.ErrProductionGuard, dst.Alias)
	}
	return nil
}

// LoadOrder returns the destination's data types in load order.
func (o *Orchestrator) LoadOrder(ctx context.Context) ([]string, error) {
	if err := o.Prepare(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), o.dstOrder...), nil
}

// Compare prepares both instances and returns the schema counts.
func (o *Orchestrator) Compare(ctx context.Context) (datacopy.Results, error) {
	if err := o.Prepare(ctx); err != nil {
		return datacopy.NewResults(), err
	}

	all := o.Results()
	out := datacopy.NewResults()
	out.Entries[datacopy.StageSchema] = all.Entries[datacopy.StageSchema]
	return out, nil
}

// Export writes the source's data types, in load order, and metadata types to the artifact directory.
func (o *Orchestrator) Export(ctx context.Context) (datacopy.Results, error) {
	if err := o.Prepare(ctx); err != nil {
		return datacopy.NewResults(), err
	}

	items := make([]export.Item, 0, len(o.srcOrder)+len(o.srcCat.Metadata))
	for _, name := range o.srcOrder {
		t, _ := o.srcCat.Type(name)
		items = append(items, export.Item{Type: name, Query: dataQuery(t)})
	}
	items = append(items, metadataItems(o.srcCat)...)

	results, err := o.exporter.Export(ctx, o.src, o.config.SourceAlias, o.config.sourceFolder(), items)
	o.addResults(results)
	return results, err
}

// Full runs Compare, Export and ImportAll in sequence.
func (o *Orchestrator) Full(ctx context.Context) (int, error) {
	if _, err := o.Compare(ctx); err != nil {
		return 0, err
	}
	if _, err := o.Export(ctx); err != nil {
		return 0, err
	}
	return o.ImportAll(ctx)
}

// checkTransfer decides whether a transfer error stops the run.
// Lost chunks are tolerated when configured; everything else is fatal.
func (o *Orchestrator) checkTransfer(ctx context.Context, typ string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if o.config.TolerateTransportFailures && errors.Is(err, datacopy.ErrTransportFailure) {
		if o.config.Logger != nil {
			o.config.Logger.Warn(ctx, "transport failure tolerated", "type", typ, "error", err)
		}
		return nil
	}
	return err
}

// finish closes a run: a fatal error moves it to failed, anything else to done.
func (o *Orchestrator) finish(ctx context.Context, phases *lifecycle.Manager, err error) error {
	if err != nil {
		phases.Fail(ctx, err)
		if o.collector != nil {
			o.collector.IncRuns(metrics.OutcomeBad)
		}
		return err
	}
	if err := phases.Transition(ctx, datacopy.PhaseDone); err != nil {
		return err
	}
	if o.collector != nil {
		o.collector.IncRuns(metrics.OutcomeGood)
	}
	return nil
}

func dataQuery(t *schema.ObjectType) datacopy.Query {
	return datacopy.Query{Type: t.Name, Fields: t.Fields, Where: t.Where, OrderBy: t.OrderBy}
}

// metadataFields returns Id, the match fields and the export fields, without duplicates.
func metadataFields(m schema.MetadataType) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{{datacopy.IDField}, m.MatchBy, m.Fields} {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func metadataItems(c *schema.Catalog) []export.Item {
	items := make([]export.Item, len(c.Metadata))
	for i, m := range c.Metadata {
		items[i] = export.Item{Type: m.Name, Query: datacopy.Query{
			Type:    m.Name,
			Fields:  metadataFields(m),
			Where:   m.Where,
			OrderBy: m.OrderBy,
		}}
	}
	return items
}
