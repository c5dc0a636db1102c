package transfer

import (
	"context"

	"github.com/getpup/datacopy"
)

// Transferrer moves row sets to and from one instance.
// This interface allows for mock implementations in tests.
type Transferrer interface {
	Transfer(ctx context.Context, req Request) (Result, error)
	Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, int, error)
	DeleteWhere(ctx context.Context, typ, where string) (Result, error)
	DeleteIDs(ctx context.Context, typ string, ids []string) (Result, error)
}
