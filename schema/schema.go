// Package schema describes the object types of an instance and the references between them.
package schema

import "sort"

// Reference is a field on one type holding the id of a record of another type.
type Reference struct {
	// Field is the name of the reference field.
	Field string `json:"field"`

	// Type is the referenced type. For child references it is the child type.
	Type string `json:"type"`
}

// ObjectType is a data type selected for migration.
type ObjectType struct {
	// Name is the type name.
	Name string `json:"name"`

	// Fields lists the accepted fields in discovery order. Always includes datacopy.IDField.
	Fields []string `json:"fields"`

	// Parents are reference fields loaded with the record.
	Parents []Reference `json:"parents"`

	// Deferred are two-pass reference fields written after every type is loaded.
	Deferred []Reference `json:"twoPassParents"`

	// Children are references from other selected types to this one.
	Children []Reference `json:"children"`

	// ExternalIDField is the field upserts match on. Empty means records are inserted.
	ExternalIDField string `json:"externalIdField,omitempty"`

	// Where filters the exported records.
	Where string `json:"where,omitempty"`

	// OrderBy orders the exported records.
	OrderBy string `json:"orderBy,omitempty"`
}

// HasField reports whether the type carries the field.
func (t *ObjectType) HasField(name string) bool {
	for _, f := range t.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Parent returns the ordinary parent reference held in field.
func (t *ObjectType) Parent(field string) (Reference, bool) {
	for _, p := range t.Parents {
		if p.Field == field {
			return p, true
		}
	}
	return Reference{}, false
}

// DeferredParent returns the two-pass reference held in field.
func (t *ObjectType) DeferredParent(field string) (Reference, bool) {
	for _, p := range t.Deferred {
		if p.Field == field {
			return p, true
		}
	}
	return Reference{}, false
}

// removeFields drops the named fields and any references they hold.
func (t *ObjectType) removeFields(names map[string]bool) {
	t.Fields = filterStrings(t.Fields, func(f string) bool { return !names[f] })
	keep := func(r Reference) bool { return !names[r.Field] }
	t.Parents = filterRefs(t.Parents, keep)
	t.Deferred = filterRefs(t.Deferred, keep)
}

// MetadataType is a reference or lookup type whose records already exist on both
// instances and are linked by a business key instead of being loaded.
type MetadataType struct {
	// Name is the type name.
	Name string `json:"name"`

	// MatchBy lists the fields that form the match key, in key order.
	MatchBy []string `json:"matchBy"`

	// Fields lists the exported fields. Includes datacopy.IDField and MatchBy.
	Fields []string `json:"fieldsToExport"`

	// Where filters the exported records.
	Where string `json:"where,omitempty"`

	// OrderBy orders the exported records.
	OrderBy string `json:"orderBy,omitempty"`
}

// RejectKind classifies why something was left out of a catalog.
type RejectKind string

const (
	// RejectType marks a type that failed the selection rules.
	RejectType RejectKind = "ADD_SOBJECT"

	// RejectField marks a field that failed the selection rules.
	RejectField RejectKind = "ADD_FIELD"

	// RejectChild marks a child reference that failed the selection rules.
	RejectChild RejectKind = "ADD_CHILD"

	// RejectTypeMismatch marks a type pruned because the peer instance lacks it.
	RejectTypeMismatch RejectKind = "SOBJ_MISMATCH"

	// RejectFieldMismatch marks a field pruned because the peer instance lacks it.
	RejectFieldMismatch RejectKind = "FIELD_MISMATCH"
)

// Reject records one thing left out of a catalog and the reasons for it.
type Reject struct {
	Kind    RejectKind `json:"kind"`
	Type    string     `json:"type"`
	Field   string     `json:"field,omitempty"`
	Reasons []string   `json:"reasons"`
}

// Catalog is the discovered, filtered schema of one instance.
type Catalog struct {
	// Alias names the instance.
	Alias string

	// Production reports whether the instance is flagged as production.
	Production bool

	// Types are the selected data types in discovery order.
	Types []ObjectType

	// Metadata are the selected metadata types in discovery order.
	Metadata []MetadataType

	// Rejects lists everything left out, in the order it was rejected.
	Rejects []Reject

	// AllFields lists every field the instance reported, by type.
	AllFields map[string][]string
}

// Type returns the data type with the given name.
func (c *Catalog) Type(name string) (*ObjectType, bool) {
	for i := range c.Types {
		if c.Types[i].Name == name {
			return &c.Types[i], true
		}
	}
	return nil, false
}

// Meta returns the metadata type with the given name.
func (c *Catalog) Meta(name string) (*MetadataType, bool) {
	for i := range c.Metadata {
		if c.Metadata[i].Name == name {
			return &c.Metadata[i], true
		}
	}
	return nil, false
}

// IsData reports whether name is a selected data type.
func (c *Catalog) IsData(name string) bool {
	_, ok := c.Type(name)
	return ok
}

// IsMetadata reports whether name is a selected metadata type.
func (c *Catalog) IsMetadata(name string) bool {
	_, ok := c.Meta(name)
	return ok
}

// TypeNames returns the data type names in discovery order.
func (c *Catalog) TypeNames() []string {
	out := make([]string, len(c.Types))
	for i, t := range c.Types {
		out[i] = t.Name
	}
	return out
}

// MetadataNames returns the metadata type names in discovery order.
func (c *Catalog) MetadataNames() []string {
	out := make([]string, len(c.Metadata))
	for i, m := range c.Metadata {
		out[i] = m.Name
	}
	return out
}

func (c *Catalog) removeType(name string) bool {
	for i := range c.Types {
		if c.Types[i].Name == name {
			c.Types = append(c.Types[:i], c.Types[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Catalog) reject(kind RejectKind, typ, field string, reasons ...string) {
	c.Rejects = append(c.Rejects, Reject{Kind: kind, Type: typ, Field: field, Reasons: reasons})
}

func filterStrings(in []string, keep func(string) bool) []string {
	out := in[:0:0]
	for _, s := range in {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func filterRefs(in []Reference, keep func(Reference) bool) []Reference {
	out := in[:0:0]
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
