package migrate

import (
	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/store"
	"github.com/getpup/datacopy/transfer"
)

// Config holds configuration for the migration Orchestrator.
type Config struct {
	// Source is the instance records are copied from (required).
	Source store.Instance

	// Destination is the instance records are copied to (required).
	Destination store.Instance

	// SourceAlias and DestinationAlias name the instances (required).
	// When they are equal, destination artifacts are written to a separate folder.
	SourceAlias      string
	DestinationAlias string

	// SourceProduction and DestinationProduction flag production instances.
	SourceProduction      bool
	DestinationProduction bool

	// Data lists the data types to copy.
	Data []schema.DataRequest

	// Metadata lists the types matched by business key instead of being copied.
	Metadata []schema.MetadataRequest

	// IncludeAllCustom selects every custom type, except CustomToIgnore.
	IncludeAllCustom bool
	CustomToIgnore   []string

	// IgnoreFields and TwoPassFields apply to custom types selected by IncludeAllCustom.
	IgnoreFields  []string
	TwoPassFields []string

	// Dir is where exports are written and read (required).
	Dir *export.Dir

	// StopOnErrors fails deletes and imports that leave any bad record.
	StopOnErrors bool

	// DeleteDestination removes the destination records before importing.
	DeleteDestination bool

	// CopyToProduction allows a production destination. It also requires StopOnErrors.
	CopyToProduction bool

	// TolerateTransportFailures counts lost chunks as bad records and continues.
	// By default a lost chunk stops the run.
	TolerateTransportFailures bool

	// Transfer configures the default channels. Its Instance, Collector and Logger
	// fields are set by the orchestrator.
	Transfer transfer.Config

	// SourceChannel and DestinationChannel are optional custom channels.
	// If nil, channels are created from Transfer.
	SourceChannel      transfer.Transferrer
	DestinationChannel transfer.Transferrer

	// Rules post-process the load (optional).
	Rules []Rule

	// MaxConcurrentExports bounds the types exported at the same time (default: 4).
	MaxConcurrentExports int

	// Logger is for observability (optional).
	Logger datacopy.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool
}

func (c Config) sameAlias() bool {
	return c.SourceAlias == c.DestinationAlias
}

func (c Config) sourceFolder() string {
	return export.Folder(c.SourceAlias, false, c.sameAlias())
}

func (c Config) destinationFolder() string {
	return export.Folder(c.DestinationAlias, true, c.sameAlias())
}

func (c Config) request(alias string, production bool) schema.Request {
	return schema.Request{
		Alias:            alias,
		Production:       production,
		Data:             c.Data,
		Metadata:         c.Metadata,
		IncludeAllCustom: c.IncludeAllCustom,
		CustomToIgnore:   c.CustomToIgnore,
		IgnoreFields:     c.IgnoreFields,
		TwoPassFields:    c.TwoPassFields,
	}
}
