package memory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/store"
)

// applyLocked writes rows one at a time. The caller holds s.mu.
func (s *Store) applyLocked(spec datacopy.JobSpec, rows []datacopy.Record) []datacopy.RowResult {
	s.batches = append(s.batches, Batch{Spec: spec, Rows: cloneRows(rows)})

	results := make([]datacopy.RowResult, len(rows))
	for i, row := range rows {
		if s.reject != nil {
			if rowErr := s.reject(spec, row); rowErr != nil {
				results[i] = datacopy.RowResult{ID: row.ID(), Errors: []datacopy.RowError{*rowErr}}
				continue
			}
		}

		switch spec.Operation {
		case datacopy.OperationInsert:
			results[i] = s.insert(spec.Type, row)
		case datacopy.OperationUpsert:
			results[i] = s.upsert(spec.Type, spec.ExternalIDField, row)
		case datacopy.OperationUpdate:
			results[i] = s.update(spec.Type, row)
		case datacopy.OperationDelete:
			results[i] = s.delete(spec.Type, row)
		default:
			results[i] = failure(row.ID(), store.CodeRejected, fmt.Sprintf("unsupported operation %s", spec.Operation))
		}
	}
	return results
}

func (s *Store) insert(typ string, row datacopy.Record) datacopy.RowResult {
	if _, ok := row[datacopy.IDField]; ok {
		return failure("", store.CodeInvalidField, "cannot specify Id in an insert call", datacopy.IDField)
	}
	if res, ok := s.validate(typ, row, true); !ok {
		return res
	}

	id := uuid.New().String()
	rec := row.Clone()
	rec[datacopy.IDField] = id
	s.put(typ, id, rec)
	return datacopy.RowResult{ID: id, Success: true, Created: true}
}

func (s *Store) upsert(typ, externalField string, row datacopy.Record) datacopy.RowResult {
	key, ok := row[externalField]
	if externalField == "" || !ok || key == nil {
		return failure("", store.CodeRequiredField, "missing external id value", externalField)
	}

	var existing []string
	for _, id := range s.ids[typ] {
		if rec, ok := s.records[typ][id]; ok && rec[externalField] != nil && render(rec[externalField]) == render(key) {
			existing = append(existing, id)
		}
	}
	switch len(existing) {
	case 0:
		return s.insert(typ, row)
	case 1:
		update := row.Clone()
		update[datacopy.IDField] = existing[0]
		return s.update(typ, update)
	default:
		return failure("", store.CodeDuplicateValue, fmt.Sprintf("%d records share external id %v", len(existing), key), externalField)
	}
}

func (s *Store) update(typ string, row datacopy.Record) datacopy.RowResult {
	id := row.ID()
	rec, ok := s.records[typ][id]
	if !ok {
		if id == "" {
			return failure("", store.CodeInvalidID, "missing Id", datacopy.IDField)
		}
		return failure(id, datacopy.ErrCodeEntityDeleted, "entity is deleted")
	}
	if res, ok := s.validate(typ, row, false); !ok {
		res.ID = id
		return res
	}

	for k, v := range row {
		rec[k] = v
	}
	return datacopy.RowResult{ID: id, Success: true}
}

func (s *Store) delete(typ string, row datacopy.Record) datacopy.RowResult {
	id := row.ID()
	if _, ok := s.records[typ][id]; !ok {
		return failure(id, datacopy.ErrCodeEntityDeleted, "entity is deleted")
	}
	delete(s.records[typ], id)
	return datacopy.RowResult{ID: id, Success: true}
}

// validate checks field names, references and required fields.
// required fields are only checked when creating.
func (s *Store) validate(typ string, row datacopy.Record, creating bool) (datacopy.RowResult, bool) {
	desc := s.descs[typ]

	for name, v := range row {
		if name == datacopy.IDField {
			continue
		}
		f, ok := field(desc, name)
		if !ok {
			return failure("", store.CodeInvalidField, fmt.Sprintf("no such column %s on %s", name, typ), name), false
		}
		if f.Type != schema.FieldTypeReference || v == nil {
			continue
		}
		ref, _ := v.(string)
		if !s.exists(f.ReferenceTo, ref) {
			return failure("", store.CodeInvalidReference, fmt.Sprintf("invalid reference %v in %s", v, name), name), false
		}
	}

	if creating {
		for _, f := range desc.Fields {
			if f.Name == datacopy.IDField || f.Nillable || !f.Createable || f.AutoNumber || f.Calculated {
				continue
			}
			if v, ok := row[f.Name]; !ok || v == nil {
				return failure("", store.CodeRequiredField, fmt.Sprintf("required field %s is missing", f.Name), f.Name), false
			}
		}
	}
	return datacopy.RowResult{}, true
}

// exists reports whether id is a record of one of the types. References to
// types this store does not hold are accepted.
func (s *Store) exists(types []string, id string) bool {
	known := false
	for _, typ := range types {
		recs, ok := s.records[typ]
		if !ok {
			continue
		}
		known = true
		if _, ok := recs[id]; ok {
			return true
		}
	}
	return !known
}

func (s *Store) put(typ, id string, rec datacopy.Record) {
	if _, ok := s.records[typ]; !ok {
		s.records[typ] = make(map[string]datacopy.Record)
	}
	if _, ok := s.records[typ][id]; !ok {
		s.ids[typ] = append(s.ids[typ], id)
	}
	s.records[typ][id] = rec
}

func field(desc schema.Description, name string) (schema.FieldDescription, bool) {
	for _, f := range desc.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.FieldDescription{}, false
}

func failure(id, code, msg string, fields ...string) datacopy.RowResult {
	return datacopy.RowResult{ID: id, Errors: []datacopy.RowError{{Code: code, Message: msg, Fields: fields}}}
}
