package schema

import (
	"fmt"

	"github.com/getpup/datacopy"
)

// Mismatch is a type or field present on one instance and missing on the other.
type Mismatch struct {
	// Alias is the instance that has the type or field.
	Alias string

	// Peer is the instance that lacks it.
	Peer string

	// Type is the type name.
	Type string

	// Field is the field name, or "" when the whole type is missing.
	Field string
}

func (m Mismatch) Error() string {
	if m.Field == "" {
		return fmt.Sprintf("[%s] type %s does not exist in [%s]", m.Alias, m.Type, m.Peer)
	}
	return fmt.Sprintf("[%s] field %s.%s does not exist in [%s]", m.Alias, m.Type, m.Field, m.Peer)
}

func (m Mismatch) Unwrap() error {
	return datacopy.ErrSchemaMismatch
}

// Reconcile prunes both catalogs down to the data types and fields they share.
//
// It returns every mismatch found, in source-then-destination order, and the
// schema counts: for each instance and type, one good per field its peer also has
// and one bad per field its peer lacks.
func Reconcile(src, dst *Catalog) ([]Mismatch, datacopy.Results) {
	results := datacopy.NewResults()
	var mismatches []Mismatch

	removeTypes := make(map[string]bool)
	removeFields := make(map[string]map[string]bool)

	diff := func(a, b *Catalog) {
		for i := range a.Types {
			ta := &a.Types[i]
			tb, ok := b.Type(ta.Name)
			if !ok {
				removeTypes[ta.Name] = true
				mismatches = append(mismatches, Mismatch{Alias: a.Alias, Peer: b.Alias, Type: ta.Name})
				continue
			}
			for _, f := range ta.Fields {
				if tb.HasField(f) {
					results.Add(datacopy.StageSchema, a.Alias, ta.Name, 1, 0)
					continue
				}
				if removeFields[ta.Name] == nil {
					removeFields[ta.Name] = make(map[string]bool)
				}
				removeFields[ta.Name][f] = true
				results.Add(datacopy.StageSchema, a.Alias, ta.Name, 0, 1)
				mismatches = append(mismatches, Mismatch{Alias: a.Alias, Peer: b.Alias, Type: ta.Name, Field: f})
			}
		}
	}
	diff(src, dst)
	diff(dst, src)

	for _, c := range []*Catalog{src, dst} {
		for _, name := range sortedKeys(removeTypes) {
			if c.removeType(name) {
				c.reject(RejectTypeMismatch, name, "", fmt.Sprintf("[%s] type ignored because of instance mismatch", c.Alias))
			}
		}
		for i := range c.Types {
			t := &c.Types[i]
			names, ok := removeFields[t.Name]
			if !ok {
				continue
			}
			t.removeFields(names)
			for _, f := range sortedKeys(names) {
				c.reject(RejectFieldMismatch, t.Name, f, fmt.Sprintf("[%s] field ignored because of instance mismatch", c.Alias))
			}
		}
		for i := range c.Types {
			t := &c.Types[i]
			orphaned := make(map[string]bool)
			for _, r := range append(append([]Reference{}, t.Parents...), t.Deferred...) {
				if removeTypes[r.Type] {
					orphaned[r.Field] = true
				}
			}
			if len(orphaned) > 0 {
				t.removeFields(orphaned)
				for _, f := range sortedKeys(orphaned) {
					c.reject(RejectFieldMismatch, t.Name, f, fmt.Sprintf("[%s] field ignored because its parent type was pruned", c.Alias))
				}
			}
			t.Children = filterRefs(t.Children, func(r Reference) bool { return !removeTypes[r.Type] })
		}
	}

	return mismatches, results
}
