package transfer

import (
	"context"
	"fmt"

	"github.com/getpup/datacopy"
)

// Query counts the matching records, then reads them. A fetched count that differs
// from the counted total is logged, not returned as an error.
func (c *Channel) Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, int, error) {
	total, err := c.config.Instance.Count(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", q.Type, err)
	}

	recs, err := c.config.Instance.Query(ctx, q)
	if err != nil {
		return nil, total, fmt.Errorf("failed to query %s: %w", q.Type, err)
	}

	if len(recs) != total && c.config.Logger != nil {
		c.config.Logger.Warn(ctx, "fetched count differs from total", "type", q.Type, "total", total, "fetched", len(recs))
	}
	return recs, total, nil
}

// DeleteWhere deletes every record of typ matching where. An empty where deletes all records.
// Chunks run one after the other.
func (c *Channel) DeleteWhere(ctx context.Context, typ, where string) (Result, error) {
	recs, _, err := c.Query(ctx, datacopy.Query{Type: typ, Fields: []string{datacopy.IDField}, Where: where})
	if err != nil {
		return Result{Type: typ, Operation: datacopy.OperationDelete}, err
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if id := rec.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return c.DeleteIDs(ctx, typ, ids)
}

// DeleteIDs deletes records of typ by id. Records already gone count as deleted.
// Chunks run one after the other.
func (c *Channel) DeleteIDs(ctx context.Context, typ string, ids []string) (Result, error) {
	rows := make([]datacopy.Record, len(ids))
	for i, id := range ids {
		rows[i] = datacopy.Record{datacopy.IDField: id}
	}
	return c.transfer(ctx, Request{Type: typ, Operation: datacopy.OperationDelete, Rows: rows}, 1)
}
