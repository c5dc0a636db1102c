package migrate

import (
	"context"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/identity"
	"github.com/getpup/datacopy/transfer"
)

// Rule post-processes the load of data types.
type Rule interface {
	// Filter returns the source records of typ that should be loaded.
	// It must not modify the records it is given.
	Filter(ctx context.Context, typ string, records []datacopy.Record) []datacopy.Record

	// AfterLoad runs once typ has been loaded, before the next type.
	AfterLoad(ctx context.Context, env *Env, typ string) error
}

// Env is what a Rule can reach while a load runs.
type Env struct {
	SourceAlias      string
	DestinationAlias string

	// Destination reads from and writes to the destination instance.
	Destination transfer.Transferrer

	// Dir holds the source exports, under SourceFolder.
	Dir          *export.Dir
	SourceFolder string

	// Identities maps source ids to destination ids. Rules may add entries.
	Identities *identity.Map

	// Logger is for observability (optional).
	Logger datacopy.Logger
}
