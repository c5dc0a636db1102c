// Package datacopy is the public entry point for building a migrator.
package datacopy

import (
	"context"
	"database/sql"
	"fmt"

	rootpkg "github.com/getpup/datacopy"
	"github.com/getpup/datacopy/config"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/migrate"
	"github.com/getpup/datacopy/rules"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/store"
	"github.com/getpup/datacopy/store/sqlstore"
	"github.com/getpup/datacopy/transfer"
)

// Re-export core types from root package
type (
	// Record is a single record keyed by field name.
	Record = rootpkg.Record

	// Results holds good/bad counts by stage, alias and type.
	Results = rootpkg.Results

	// Migrator copies records between two instances.
	Migrator = rootpkg.Migrator

	// Logger is the structured logger used by the migrator.
	Logger = rootpkg.Logger
)

// Option configures a Migrator.
type Option func(*options)

// options holds the internal configuration for creating a Migrator.
type options struct {
	source, destination           store.Instance
	sourceAlias, destinationAlias string
	sourceProd, destinationProd   bool
	data                          []schema.DataRequest
	metadata                      []schema.MetadataRequest
	includeAllCustom              bool
	customToIgnore                []string
	ignoreFields, twoPassFields   []string
	artifactDir                   string
	stopOnErrors                  bool
	deleteDestination             bool
	copyToProduction              bool
	tolerateTransportFailures     bool
	transfer                      transfer.Config
	rules                         []migrate.Rule
	maxConcurrentExports          int
	logger                        rootpkg.Logger
	metricsEnabled                *bool
}

// New creates a Migrator with the given options.
//
// Required options:
//   - WithSource: source instance and alias
//   - WithDestination: destination instance and alias
//
// Optional configuration (with defaults):
//   - WithArtifactDir: folder holding the JSON exports (default: "data")
//   - WithData / WithMetadata: the types to copy and to match
//   - WithStopOnErrors: fail runs that leave bad records (default: true)
//   - WithDeleteDestination: delete destination records before importing (default: false)
//   - WithCopyToProduction: allow a production destination (default: false)
//   - WithTransfer: chunk sizes, concurrency and polling (default: bulk, 10000 rows, 4 chunks)
//   - WithRules: post-processing rules (default: none)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithSettings: every value above taken from loaded settings
//
// Example:
//
//	m, err := datacopy.New(
//	    datacopy.WithSource(devStore, "dev"),
//	    datacopy.WithDestination(qaStore, "qa"),
//	    datacopy.WithData(schema.DataRequest{Name: "Account"}, schema.DataRequest{Name: "Contact"}),
//	)
//
// Returns an error if any required option is missing or a value is invalid.
func New(opts ...Option) (Migrator, error) {
	o := &options{
		artifactDir:  "data",
		stopOnErrors: true,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.source == nil {
		return nil, fmt.Errorf("%w: source is required: use WithSource option", rootpkg.ErrConfiguration)
	}
	if o.destination == nil {
		return nil, fmt.Errorf("%w: destination is required: use WithDestination option", rootpkg.ErrConfiguration)
	}

	m, err := migrate.New(migrate.Config{
		Source:                    o.source,
		Destination:               o.destination,
		SourceAlias:               o.sourceAlias,
		DestinationAlias:          o.destinationAlias,
		SourceProduction:          o.sourceProd,
		DestinationProduction:     o.destinationProd,
		Data:                      o.data,
		Metadata:                  o.metadata,
		IncludeAllCustom:          o.includeAllCustom,
		CustomToIgnore:            o.customToIgnore,
		IgnoreFields:              o.ignoreFields,
		TwoPassFields:             o.twoPassFields,
		Dir:                       export.NewDir(o.artifactDir),
		StopOnErrors:              o.stopOnErrors,
		DeleteDestination:         o.deleteDestination,
		CopyToProduction:          o.copyToProduction,
		TolerateTransportFailures: o.tolerateTransportFailures,
		Transfer:                  o.transfer,
		Rules:                     o.rules,
		MaxConcurrentExports:      o.maxConcurrentExports,
		Logger:                    o.logger,
		MetricsEnabled:            o.metricsEnabled,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// WithSource sets the instance records are copied from.
func WithSource(inst store.Instance, alias string) Option {
	return func(o *options) {
		o.source = inst
		o.sourceAlias = alias
	}
}

// WithDestination sets the instance records are copied to.
func WithDestination(inst store.Instance, alias string) Option {
	return func(o *options) {
		o.destination = inst
		o.destinationAlias = alias
	}
}

// WithProduction flags either instance as production.
func WithProduction(source, destination bool) Option {
	return func(o *options) {
		o.sourceProd = source
		o.destinationProd = destination
	}
}

// WithData adds data types to copy.
func WithData(reqs ...schema.DataRequest) Option {
	return func(o *options) {
		o.data = append(o.data, reqs...)
	}
}

// WithMetadata adds types matched by business key.
func WithMetadata(reqs ...schema.MetadataRequest) Option {
	return func(o *options) {
		o.metadata = append(o.metadata, reqs...)
	}
}

// WithAllCustom selects every custom type except the ignored ones.
func WithAllCustom(ignore ...string) Option {
	return func(o *options) {
		o.includeAllCustom = true
		o.customToIgnore = ignore
	}
}

// WithArtifactDir sets the folder the exports are written to and read from.
func WithArtifactDir(dir string) Option {
	return func(o *options) {
		o.artifactDir = dir
	}
}

// WithStopOnErrors enables or disables strict mode.
func WithStopOnErrors(enabled bool) Option {
	return func(o *options) {
		o.stopOnErrors = enabled
	}
}

// WithDeleteDestination enables deleting destination records before importing.
func WithDeleteDestination(enabled bool) Option {
	return func(o *options) {
		o.deleteDestination = enabled
	}
}

// WithCopyToProduction allows a production destination.
func WithCopyToProduction(enabled bool) Option {
	return func(o *options) {
		o.copyToProduction = enabled
	}
}

// WithTolerateTransportFailures counts lost chunks as bad records instead of stopping.
func WithTolerateTransportFailures(enabled bool) Option {
	return func(o *options) {
		o.tolerateTransportFailures = enabled
	}
}

// WithTransfer sets the channel settings.
func WithTransfer(cfg transfer.Config) Option {
	return func(o *options) {
		o.transfer = cfg
	}
}

// WithRules adds post-processing rules.
func WithRules(rules ...migrate.Rule) Option {
	return func(o *options) {
		o.rules = append(o.rules, rules...)
	}
}

// WithMaxConcurrentExports bounds the types exported at the same time.
func WithMaxConcurrentExports(n int) Option {
	return func(o *options) {
		o.maxConcurrentExports = n
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger rootpkg.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = &enabled
	}
}

// WithSettings applies loaded settings: aliases, production flags, types, flags,
// transfer settings and a companion rule per configured companion.
// Instances still have to be given with WithSource and WithDestination; their
// aliases are overridden by the settings.
// Later options override what the settings set.
func WithSettings(s *config.Settings) Option {
	return func(o *options) {
		o.sourceAlias = s.Source
		o.destinationAlias = s.Destination
		if inst, ok := s.Instance(s.Source); ok {
			o.sourceProd = inst.Production
		}
		if inst, ok := s.Instance(s.Destination); ok {
			o.destinationProd = inst.Production
		}
		o.data = s.DataRequests()
		o.metadata = s.MetadataRequests()
		o.includeAllCustom = s.IncludeAllCustom
		o.customToIgnore = s.CustomObjectsToIgnore
		o.ignoreFields = s.IgnoreFields
		o.twoPassFields = s.TwoPassReferenceFields
		o.artifactDir = s.RootDir
		o.stopOnErrors = s.StopOnErrors
		o.deleteDestination = s.DeleteDestination
		o.copyToProduction = s.CopyToProduction
		o.tolerateTransportFailures = s.TolerateTransportFailures
		o.transfer = s.TransferConfig()
		o.maxConcurrentExports = s.MaxConcurrentChunks
		for _, c := range s.Companions {
			o.rules = append(o.rules, &rules.CompanionRecord{
				OwnerType:     c.OwnerType,
				CompanionType: c.CompanionType,
				FlagField:     c.FlagField,
				OwnerField:    c.OwnerField,
			})
		}
	}
}

// Connection is an open SQL instance.
type Connection struct {
	DB    *sql.DB
	Store *sqlstore.Store
}

// Connect opens the database of an instance and creates the job tables if needed.
// The driver must be registered by the caller, e.g. with a blank import of
// github.com/lib/pq, github.com/go-sql-driver/mysql or github.com/mattn/go-sqlite3.
func Connect(ctx context.Context, inst config.Instance, logger rootpkg.Logger) (*Connection, error) {
	dialect, err := sqlstore.ParseDialect(inst.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver(), inst.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", dialect, err)
	}

	s := sqlstore.NewWithConfig(db, sqlstore.Config{Dialect: dialect, Logger: logger})
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Connection{DB: db, Store: s}, nil
}

// Close stops job processing and closes the database.
func (c *Connection) Close() error {
	if err := c.Store.Close(); err != nil {
		return err
	}
	return c.DB.Close()
}

// RunMigrations creates the job tables on db.
//
// This should typically be run once during deployment. Connect runs it on every open.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	dialect, err := sqlstore.ParseDialect(driver)
	if err != nil {
		return err
	}
	s := sqlstore.New(db, dialect)
	defer s.Close()
	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}
