package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/getpup/datacopy"
)

// FieldTypeReference is the field type of reference fields.
const FieldTypeReference = "reference"

// Capabilities are the operations an instance allows on a type.
type Capabilities struct {
	Createable    bool `json:"createable"`
	Deletable     bool `json:"deletable"`
	Queryable     bool `json:"queryable"`
	Updateable    bool `json:"updateable"`
	Retrieveable  bool `json:"retrieveable"`
	Replicateable bool `json:"replicateable"`
}

// AllCapabilities allows every operation.
var AllCapabilities = Capabilities{
	Createable:    true,
	Deletable:     true,
	Queryable:     true,
	Updateable:    true,
	Retrieveable:  true,
	Replicateable: true,
}

// FieldDescription is a field as reported by an instance.
type FieldDescription struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	ReferenceTo []string `json:"referenceTo,omitempty"`
	AutoNumber  bool     `json:"autoNumber,omitempty"`
	Calculated  bool     `json:"calculated,omitempty"`
	Deprecated  bool     `json:"deprecated,omitempty"`
	Createable  bool     `json:"createable"`
	Nillable    bool     `json:"nillable"`
}

// ChildDescription is a reference from another type to the described type.
type ChildDescription struct {
	Type         string `json:"childType"`
	Field        string `json:"field"`
	Relationship string `json:"relationshipName,omitempty"`
	Deprecated   bool   `json:"deprecated,omitempty"`
}

// Description is a type as reported by an instance.
type Description struct {
	Name          string             `json:"name"`
	Custom        bool               `json:"custom,omitempty"`
	CustomSetting bool               `json:"customSetting,omitempty"`
	Deprecated    bool               `json:"deprecated,omitempty"`
	Capabilities  Capabilities       `json:"capabilities"`
	Fields        []FieldDescription `json:"fields"`
	Children      []ChildDescription `json:"children,omitempty"`
}

// Describer reports the schema of an instance.
type Describer interface {
	Describe(ctx context.Context) ([]Description, error)
}

// DataRequest selects a data type and configures how it is loaded.
type DataRequest struct {
	Name            string
	IgnoreFields    []string
	TwoPassFields   []string
	ExternalIDField string
	Where           string
	OrderBy         string
}

// MetadataRequest selects a metadata type and its match key.
type MetadataRequest struct {
	Name    string
	MatchBy []string
	Fields  []string
	Where   string
	OrderBy string
}

// Request selects the types to discover on one instance.
type Request struct {
	// Alias names the instance.
	Alias string

	// Production flags the instance as production.
	Production bool

	// Data lists the requested data types.
	Data []DataRequest

	// Metadata lists the requested metadata types.
	Metadata []MetadataRequest

	// IncludeAllCustom selects every custom type, requested or not.
	IncludeAllCustom bool

	// CustomToIgnore lists custom types IncludeAllCustom leaves out.
	CustomToIgnore []string

	// IgnoreFields and TwoPassFields apply to custom types selected by IncludeAllCustom.
	IgnoreFields  []string
	TwoPassFields []string
}

func (r Request) dataRequest(name string) (DataRequest, bool) {
	for _, d := range r.Data {
		if d.Name == name {
			return d, true
		}
	}
	return DataRequest{Name: name, IgnoreFields: r.IgnoreFields, TwoPassFields: r.TwoPassFields}, false
}

func (r Request) metadataRequest(name string) (MetadataRequest, bool) {
	for _, m := range r.Metadata {
		if m.Name == name {
			return m, true
		}
	}
	return MetadataRequest{}, false
}

// Discover describes the instance and selects the requested types and fields.
//
// A type is rejected when it is a custom setting, deprecated, lacks any of the
// create/delete/query/update/retrieve/replicate capabilities, or was not requested.
// With IncludeAllCustom, custom types are selected regardless of these rules.
//
// A field is rejected when it is auto-numbered, calculated, deprecated, ignored or
// not createable. A reference field must point at exactly one selected data or
// metadata type, and a reference to the field's own type must be two-pass.
// The Id field is always kept.
//
// Returns an error wrapping datacopy.ErrTypeNotFound if a requested type is not
// reported by the instance.
func Discover(ctx context.Context, d Describer, req Request) (*Catalog, error) {
	descs, err := d.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance %s: %w", req.Alias, err)
	}

	cat := &Catalog{
		Alias:      req.Alias,
		Production: req.Production,
		AllFields:  make(map[string][]string),
	}

	reported := make(map[string]bool, len(descs))
	for _, desc := range descs {
		reported[desc.Name] = true
	}
	for _, dr := range req.Data {
		if !reported[dr.Name] {
			return nil, fmt.Errorf("%w: requested type %s was not found on %s", datacopy.ErrTypeNotFound, dr.Name, req.Alias)
		}
	}
	for _, mr := range req.Metadata {
		if !reported[mr.Name] {
			return nil, fmt.Errorf("%w: requested type %s was not found on %s", datacopy.ErrTypeNotFound, mr.Name, req.Alias)
		}
	}

	selected := make([]Description, 0, len(descs))
	for _, desc := range descs {
		names := make([]string, len(desc.Fields))
		for i, f := range desc.Fields {
			names[i] = f.Name
		}
		cat.AllFields[desc.Name] = names

		if mr, ok := req.metadataRequest(desc.Name); ok {
			cat.Metadata = append(cat.Metadata, MetadataType{
				Name:    mr.Name,
				MatchBy: mr.MatchBy,
				Fields:  mr.Fields,
				Where:   mr.Where,
				OrderBy: mr.OrderBy,
			})
			continue
		}

		if reasons := typeRejects(desc, req); len(reasons) > 0 && !includeCustom(desc, req) {
			cat.reject(RejectType, desc.Name, "", reasons...)
			continue
		}

		dr, _ := req.dataRequest(desc.Name)
		cat.Types = append(cat.Types, ObjectType{
			Name:            desc.Name,
			ExternalIDField: dr.ExternalIDField,
			Where:           dr.Where,
			OrderBy:         dr.OrderBy,
		})
		selected = append(selected, desc)
	}

	for _, desc := range selected {
		t, _ := cat.Type(desc.Name)
		dr, _ := req.dataRequest(desc.Name)
		for _, f := range desc.Fields {
			addField(cat, t, dr, f)
		}
		for _, child := range desc.Children {
			addChild(cat, t, child)
		}
	}

	return cat, nil
}

func typeRejects(desc Description, req Request) []string {
	var reasons []string
	if desc.CustomSetting {
		reasons = append(reasons, "Can't be custom setting")
	}
	if desc.Deprecated {
		reasons = append(reasons, "Can't be deprecated")
	}
	caps := desc.Capabilities
	for _, c := range []struct {
		ok   bool
		name string
	}{
		{caps.Createable, "createable"},
		{caps.Deletable, "deletable"},
		{caps.Queryable, "queryable"},
		{caps.Replicateable, "replicateable"},
		{caps.Retrieveable, "retrieveable"},
		{caps.Updateable, "updateable"},
	} {
		if !c.ok {
			reasons = append(reasons, "Must be "+c.name)
		}
	}
	if _, ok := req.dataRequest(desc.Name); !ok {
		reasons = append(reasons, "Was not requested")
	}
	return reasons
}

func includeCustom(desc Description, req Request) bool {
	return req.IncludeAllCustom && desc.Custom && !contains(req.CustomToIgnore, desc.Name)
}

func addField(cat *Catalog, t *ObjectType, dr DataRequest, f FieldDescription) {
	if f.Name == datacopy.IDField {
		t.Fields = append(t.Fields, f.Name)
		return
	}

	var reasons []string
	if f.AutoNumber {
		reasons = append(reasons, "Can't be autoNumber")
	}
	if f.Calculated {
		reasons = append(reasons, "Can't be calculated")
	}
	if f.Deprecated {
		reasons = append(reasons, "Can't be deprecated")
	}
	if contains(dr.IgnoreFields, f.Name) {
		reasons = append(reasons, "User asked for this field to be excluded")
	}
	if !f.Createable {
		reasons = append(reasons, "Must be createable")
	}

	twoPass := contains(dr.TwoPassFields, f.Name)
	if f.Type == FieldTypeReference {
		if len(f.ReferenceTo) == 1 {
			target := f.ReferenceTo[0]
			if !cat.IsData(target) && !cat.IsMetadata(target) {
				reasons = append(reasons, fmt.Sprintf("Parent type [%s] is not processed", target))
			}
			if target == t.Name && !twoPass {
				reasons = append(reasons, "Self references must be configured as two-pass reference fields")
			}
		} else {
			reasons = append(reasons, fmt.Sprintf("Reference must point to exactly one type: | %s |", strings.Join(f.ReferenceTo, " | ")))
		}
	} else if twoPass {
		reasons = append(reasons, fmt.Sprintf("Field [%s] is configured as two-pass reference field but is not a reference", f.Name))
	}

	if len(reasons) > 0 {
		cat.reject(RejectField, t.Name, f.Name, reasons...)
		return
	}

	if f.Type == FieldTypeReference {
		ref := Reference{Field: f.Name, Type: f.ReferenceTo[0]}
		if twoPass {
			t.Deferred = append(t.Deferred, ref)
		} else {
			t.Parents = append(t.Parents, ref)
		}
	}
	t.Fields = append(t.Fields, f.Name)
}

func addChild(cat *Catalog, t *ObjectType, child ChildDescription) {
	var reasons []string
	if child.Deprecated {
		reasons = append(reasons, "Can't be deprecated")
	}
	if child.Type == t.Name {
		reasons = append(reasons, "Self references are not tracked as children")
	}
	if !cat.IsData(child.Type) {
		reasons = append(reasons, fmt.Sprintf("Child type [%s] is not processed", child.Type))
	}
	if len(reasons) > 0 {
		cat.reject(RejectChild, t.Name, child.Field+" => "+child.Type, reasons...)
		return
	}
	t.Children = append(t.Children, Reference{Field: child.Field, Type: child.Type})
}
