package schema

import (
	"sort"
	"time"
)

// Info is the discovery report written for each instance.
type Info struct {
	Now       time.Time                          `json:"now"`
	Alias     string                             `json:"alias"`
	LoadOrder []string                           `json:"importOrder"`
	Metadata  []MetadataType                     `json:"metadata"`
	Types     map[string]ObjectType              `json:"sObjects"`
	AllFields map[string][]string                `json:"allFields"`
	Rejected  map[RejectKind]map[string][]string `json:"rejected"`
}

// BuildInfo renders the catalog as a report. Fields, parents and children are sorted.
// The catalog itself is not modified.
func BuildInfo(c *Catalog, loadOrder []string, now time.Time) Info {
	info := Info{
		Now:       now,
		Alias:     c.Alias,
		LoadOrder: loadOrder,
		Metadata:  c.Metadata,
		Types:     make(map[string]ObjectType, len(c.Types)),
		AllFields: make(map[string][]string, len(c.AllFields)),
		Rejected:  make(map[RejectKind]map[string][]string),
	}

	for _, t := range c.Types {
		t.Fields = sortedCopy(t.Fields)
		t.Parents = sortedRefs(t.Parents)
		t.Deferred = sortedRefs(t.Deferred)
		t.Children = sortedRefs(t.Children)
		info.Types[t.Name] = t
	}
	for typ, fields := range c.AllFields {
		info.AllFields[typ] = sortedCopy(fields)
	}
	for _, kind := range []RejectKind{RejectType, RejectField, RejectChild, RejectTypeMismatch, RejectFieldMismatch} {
		info.Rejected[kind] = make(map[string][]string)
	}
	for _, r := range c.Rejects {
		key := r.Type
		if r.Field != "" {
			key += "." + r.Field
		}
		info.Rejected[r.Kind][key] = append(info.Rejected[r.Kind][key], r.Reasons...)
	}

	return info
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func sortedRefs(in []Reference) []Reference {
	out := append([]Reference(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Field < out[j].Field
	})
	return out
}
