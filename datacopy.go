package datacopy

import "context"

// Migrator copies records of related object types from a source instance to a
// destination instance, translating every reference to the ids the destination assigns.
type Migrator interface {
	// LoadOrder returns the destination's data types in an order where every
	// type comes after the types it references.
	// Returns an error wrapping ErrOrderingDeadlock if the references form a cycle
	// that no two-pass field breaks.
	LoadOrder(ctx context.Context) ([]string, error)

	// Compare discovers both instances, prunes types and fields that exist on only
	// one side, and returns the schema counts.
	Compare(ctx context.Context) (Results, error)

	// Export captures the source's data and metadata types to the artifact directory.
	Export(ctx context.Context) (Results, error)

	// DeleteAll removes every destination record of the data types, in reverse load order.
	// Returns the bad record count. Does nothing when destination deletion is disabled.
	DeleteAll(ctx context.Context) (int, error)

	// ImportAll loads the exported source records into the destination.
	//
	// The migrator will:
	// 1. Delete destination records, if configured
	// 2. Match metadata records across instances by business key
	// 3. Load each data type in order, replacing parent ids with destination ids
	// 4. Write the two-pass reference fields once every type is loaded
	//
	// Returns the bad record count. With stop-on-errors enabled a nonzero count is
	// returned together with an error wrapping ErrImportFailed.
	ImportAll(ctx context.Context) (int, error)

	// Full runs Compare, Export and ImportAll in sequence.
	Full(ctx context.Context) (int, error)

	// Results returns the counts accumulated so far.
	Results() Results
}
