package migrate

import (
	"context"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/ordering"
)

// DeleteAll removes every destination record of the data types, children first.
// It does nothing and returns 0 when DeleteDestination is false.
//
// Returns the bad record count. With StopOnErrors a nonzero count is returned
// together with a *datacopy.RunError wrapping datacopy.ErrDeleteFailed.
func (o *Orchestrator) DeleteAll(ctx context.Context) (int, error) {
	if !o.config.DeleteDestination {
		return 0, nil
	}
	phases := o.startRun()

	if err := o.Prepare(ctx); err != nil {
		return 0, o.finish(ctx, phases, err)
	}
	if err := phases.Transition(ctx, datacopy.PhaseDeleting); err != nil {
		return 0, err
	}

	bad, err := o.deleteAll(ctx)
	return bad, o.finish(ctx, phases, err)
}

// deleteAll deletes type by type in reverse load order and records the delete counts.
func (o *Orchestrator) deleteAll(ctx context.Context) (int, error) {
	results := datacopy.NewResults()
	alias := o.config.DestinationAlias
	order := ordering.Reverse(o.dstOrder)

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "deleting destination records", "destination", alias, "order", order)
	}

	for _, typ := range order {
		res, err := o.dst.DeleteWhere(ctx, typ, "")
		results.Add(datacopy.StageDelete, alias, typ, res.Good, res.Bad)
		if err := o.checkTransfer(ctx, typ, err); err != nil {
			o.addResults(results)
			return results.Total(datacopy.StageDelete).Bad, err
		}
	}
	o.addResults(results)

	bad := results.Total(datacopy.StageDelete).Bad
	if bad == 0 {
		return 0, nil
	}

	if o.config.Logger != nil {
		o.config.Logger.Warn(ctx, "deleting records failed",
			"destination", alias,
			"types", len(results.BadTypes(datacopy.StageDelete)),
			"records", bad)
	}
	if o.config.StopOnErrors {
		return bad, datacopy.NewRunError(datacopy.StageDelete, results)
	}
	return bad, nil
}
