package export

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/metrics"
	"github.com/getpup/datacopy/transfer"
)

// Item is one type to export and the query that selects its records.
type Item struct {
	Type  string
	Query datacopy.Query
}

// Config holds configuration for an Exporter.
type Config struct {
	// Dir is where artifacts are written (required).
	Dir *Dir

	// MaxConcurrent bounds the types read at the same time (default: 4).
	MaxConcurrent int

	// Collector receives export metrics (optional).
	Collector *metrics.Collector

	// Logger is for observability (optional).
	Logger datacopy.Logger
}

// Exporter reads types from an instance and writes one artifact per type.
type Exporter struct {
	config Config
}

// NewExporter creates an Exporter. Applies default values if zero.
func NewExporter(cfg Config) *Exporter {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Exporter{config: cfg}
}

// Export reads every item through ch and writes it to folder.
// The export counts of each type are recorded under alias: good for fetched
// records, bad for records counted but not fetched. The first read or write
// error cancels the remaining items.
func (e *Exporter) Export(ctx context.Context, ch transfer.Transferrer, alias, folder string, items []Item) (datacopy.Results, error) {
	exports := make([]datacopy.Export, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrent)
	for i, item := range items {
		g.Go(func() error {
			recs, total, err := ch.Query(gctx, item.Query)
			if err != nil {
				return fmt.Errorf("failed to export %s from [%s]: %w", item.Type, alias, err)
			}

			exp := datacopy.Export{Total: total, Fetched: len(recs), Records: recs}
			if err := e.config.Dir.Write(folder, item.Type, exp); err != nil {
				return err
			}
			exports[i] = exp

			if e.config.Collector != nil {
				e.config.Collector.AddExported(item.Type, len(recs))
			}
			if e.config.Logger != nil {
				e.config.Logger.Info(gctx, "type exported", "alias", alias, "type", item.Type, "total", total, "fetched", len(recs))
			}
			return nil
		})
	}

	results := datacopy.NewResults()
	if err := g.Wait(); err != nil {
		return results, err
	}

	for i, item := range items {
		missing := exports[i].Total - exports[i].Fetched
		if missing < 0 {
			missing = 0
		}
		results.Add(datacopy.StageExport, alias, item.Type, exports[i].Fetched, missing)
	}
	return results, nil
}
