package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/identity"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/transfer"
)

// ImportAll loads the exported source records into the destination.
//
// The orchestrator will:
// 1. Delete the destination records, if DeleteDestination is set
// 2. Match metadata records across instances by business key
// 3. Load each data type in order, replacing parent ids with destination ids
// 4. Write the two-pass reference fields once every type is loaded
//
// Returns the bad record count, delete failures included. With StopOnErrors a
// nonzero count is returned together with a *datacopy.RunError.
func (o *Orchestrator) ImportAll(ctx context.Context) (int, error) {
	phases := o.startRun()

	if err := o.Prepare(ctx); err != nil {
		return 0, o.finish(ctx, phases, err)
	}

	bad := 0
	if o.config.DeleteDestination {
		if err := phases.Transition(ctx, datacopy.PhaseDeleting); err != nil {
			return 0, err
		}
		n, err := o.deleteAll(ctx)
		if err != nil {
			return n, o.finish(ctx, phases, err)
		}
		bad += n
	}

	o.ids = identity.NewMap()
	o.deferrals = identity.NewDeferrals()

	if err := phases.Transition(ctx, datacopy.PhaseResolvingIdentities); err != nil {
		return bad, err
	}
	if err := o.resolveIdentities(ctx); err != nil {
		return bad, o.finish(ctx, phases, err)
	}

	if err := phases.Transition(ctx, datacopy.PhaseLoading); err != nil {
		return bad, err
	}
	results := datacopy.NewResults()
	err := o.loadAll(ctx, &results)
	if err == nil && o.deferrals.Len() > 0 {
		if err = phases.Transition(ctx, datacopy.PhaseResolvingDeferredReferences); err == nil {
			err = o.resolveDeferred(ctx, &results)
		}
	}
	o.addResults(results)

	imported := results.Total(datacopy.StageImport).Bad
	bad += imported
	if err != nil {
		return bad, o.finish(ctx, phases, err)
	}

	if imported > 0 {
		if o.config.Logger != nil {
			o.config.Logger.Warn(ctx, "importing records failed",
				"destination", o.config.DestinationAlias,
				"types", len(results.BadTypes(datacopy.StageImport)),
				"records", imported)
		}
		if o.config.StopOnErrors {
			return bad, o.finish(ctx, phases, datacopy.NewRunError(datacopy.StageImport, results))
		}
	}
	return bad, o.finish(ctx, phases, nil)
}

// resolveIdentities links the metadata records of both instances by match key.
// The destination metadata is exported again first so each run matches against
// the destination as it is now, not as it was when Prepare ran.
func (o *Orchestrator) resolveIdentities(ctx context.Context) error {
	if _, err := o.exporter.Export(ctx, o.dst, o.config.DestinationAlias, o.config.destinationFolder(), metadataItems(o.dstCat)); err != nil {
		return err
	}
	for _, m := range o.dstCat.Metadata {
		src, err := o.config.Dir.Read(o.config.sourceFolder(), m.Name)
		if err != nil {
			return err
		}
		dst, err := o.config.Dir.Read(o.config.destinationFolder(), m.Name)
		if err != nil {
			return err
		}

		stats, err := identity.ResolveMatches(o.ids, m.Name, m.MatchBy, src.Records, dst.Records)
		if err != nil {
			var mk *identity.MatchKeyError
			if errors.As(err, &mk) {
				if mk.Alias == "source" {
					mk.Alias = o.config.SourceAlias
				} else {
					mk.Alias = o.config.DestinationAlias
				}
			}
			return err
		}

		if o.collector != nil {
			o.collector.AddIdentityMappings(m.Name, stats.Matched)
		}
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "metadata matched",
				"type", m.Name,
				"matched", stats.Matched,
				"unmatched", stats.Unmatched,
				"duplicates", stats.Duplicates)
		}
	}
	return nil
}

// loadAll loads every data type in order, one at a time. Each type's parent ids
// must be known before it is sent.
func (o *Orchestrator) loadAll(ctx context.Context, results *datacopy.Results) error {
	env := &Env{
		SourceAlias:      o.config.SourceAlias,
		DestinationAlias: o.config.DestinationAlias,
		Destination:      o.dst,
		Dir:              o.config.Dir,
		SourceFolder:     o.config.sourceFolder(),
		Identities:       o.ids,
		Logger:           o.config.Logger,
	}

	for i, typ := range o.dstOrder {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if o.config.Logger != nil {
			o.config.Logger.Debug(ctx, "loading type", "type", typ, "position", i+1, "of", len(o.dstOrder))
		}
		if err := o.loadType(ctx, typ, results); err != nil {
			return err
		}
		for _, r := range o.config.Rules {
			if err := r.AfterLoad(ctx, env, typ); err != nil {
				return fmt.Errorf("rule failed after loading %s: %w", typ, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) loadType(ctx context.Context, typ string, results *datacopy.Results) error {
	exp, err := o.config.Dir.Read(o.config.sourceFolder(), typ)
	if err != nil {
		if errors.Is(err, export.ErrArtifactNotFound) {
			return fmt.Errorf("%s was not exported from [%s]: %w", typ, o.config.SourceAlias, err)
		}
		return err
	}

	records := exp.Records
	for _, r := range o.config.Rules {
		records = r.Filter(ctx, typ, records)
	}
	if len(records) == 0 {
		return nil
	}

	dstType, _ := o.dstCat.Type(typ)
	srcType, _ := o.srcCat.Type(typ)
	rows, oldIDs := o.payload(ctx, srcType, dstType, records)

	req := transfer.Request{Type: typ, Operation: datacopy.OperationInsert, Rows: rows}
	if dstType.ExternalIDField != "" {
		req.Operation = datacopy.OperationUpsert
		req.ExternalIDField = dstType.ExternalIDField
	}

	res, err := o.dst.Transfer(ctx, req)
	results.Add(datacopy.StageImport, o.config.DestinationAlias, typ, res.Good, res.Bad)

	mapped := 0
	for _, out := range res.Rows {
		if out.Success && out.ID != "" {
			o.ids.Set(typ, oldIDs[out.Index], out.ID)
			mapped++
		}
	}
	if o.collector != nil {
		o.collector.AddIdentityMappings(typ, mapped)
	}
	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "type loaded", "type", typ, "operation", req.Operation, "good", res.Good, "bad", res.Bad)
	}

	return o.checkTransfer(ctx, typ, err)
}

// payload builds the rows sent for typ, and the source id of each row.
//
// Only fields both instances accept are kept, and nil values are dropped so the
// destination applies its defaults. Parent ids are replaced with destination ids;
// a parent with no destination id is left out. Two-pass references are held back
// in the deferrals. The Id field is never sent: the destination assigns ids.
func (o *Orchestrator) payload(ctx context.Context, srcType, dstType *schema.ObjectType, records []datacopy.Record) ([]datacopy.Record, []string) {
	rows := make([]datacopy.Record, len(records))
	oldIDs := make([]string, len(records))
	warned := false

	for i, rec := range records {
		oldID := rec.ID()
		oldIDs[i] = oldID

		row := make(datacopy.Record, len(rec))
		for field, v := range rec {
			if v == nil || field == datacopy.IDField {
				continue
			}
			if !dstType.HasField(field) || (srcType != nil && !srcType.HasField(field)) {
				continue
			}
			row[field] = v
		}

		for _, p := range dstType.Parents {
			old, ok := row[p.Field]
			if !ok {
				continue
			}
			newID, found := o.ids.Get(p.Type, fmt.Sprint(old))
			if found {
				row[p.Field] = newID
				continue
			}
			delete(row, p.Field)
			if o.config.Logger != nil {
				if !warned {
					o.config.Logger.Warn(ctx, "default field values are used because parents were not found", "type", dstType.Name)
					warned = true
				}
				o.config.Logger.Debug(ctx, "parent reference cleared",
					"type", dstType.Name,
					"field", p.Field,
					"record", oldID,
					"parentType", p.Type,
					"parent", old)
			}
		}

		for _, d := range dstType.Deferred {
			if v, ok := row[d.Field]; ok {
				o.deferrals.Add(dstType.Name, oldID, d.Field, fmt.Sprint(v))
				delete(row, d.Field)
			}
		}

		rows[i] = row
	}
	return rows, oldIDs
}

// resolveDeferred writes the two-pass references once every type is loaded.
// References whose target has no destination id are skipped, as are records that
// were never loaded.
func (o *Orchestrator) resolveDeferred(ctx context.Context, results *datacopy.Results) error {
	for _, typ := range o.deferrals.Types() {
		dstType, _ := o.dstCat.Type(typ)

		var rows []datacopy.Record
		for _, oldID := range o.deferrals.Records(typ) {
			newID, ok := o.ids.Get(typ, oldID)
			if !ok {
				if o.config.Logger != nil {
					o.config.Logger.Info(ctx, "deferred references skipped, record was not loaded", "type", typ, "record", oldID)
				}
				continue
			}

			row := datacopy.Record{datacopy.IDField: newID}
			for _, d := range o.deferrals.Fields(typ, oldID) {
				ref, _ := dstType.DeferredParent(d.Field)
				refID, ok := o.ids.Get(ref.Type, d.RefID)
				if !ok {
					if o.config.Logger != nil {
						o.config.Logger.Info(ctx, "deferred reference not resolved",
							"type", typ,
							"field", d.Field,
							"record", oldID,
							"target", d.RefID)
					}
					continue
				}
				row[d.Field] = refID
			}
			if len(row) > 1 {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}

		res, err := o.dst.Transfer(ctx, transfer.Request{Type: typ, Operation: datacopy.OperationUpdate, Rows: rows})
		results.Add(datacopy.StageImport, o.config.DestinationAlias, typ, res.Good, res.Bad)
		if o.collector != nil {
			o.collector.AddDeferredUpdates(typ, res.Good)
		}
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "deferred references written", "type", typ, "good", res.Good, "bad", res.Bad)
		}
		if err := o.checkTransfer(ctx, typ, err); err != nil {
			return err
		}
	}
	return nil
}
