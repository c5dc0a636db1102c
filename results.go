package datacopy

import "sort"

// Stage groups result counts by the step of a run that produced them.
type Stage string

const (
	// StageSchema counts fields present on both instances (good) and fields pruned as mismatches (bad).
	StageSchema Stage = "schema"

	// StageDelete counts destination records deleted before loading.
	StageDelete Stage = "delete"

	// StageExport counts records captured from an instance.
	StageExport Stage = "export"

	// StageImport counts records loaded into the destination, including the deferred reference pass.
	StageImport Stage = "import"
)

// Counts is a good/bad record tally.
type Counts struct {
	Good int `json:"good"`
	Bad  int `json:"bad"`
}

// Results accumulates counts by stage, instance alias and type.
// Phases return a Results value and callers merge it into theirs.
type Results struct {
	Entries map[Stage]map[string]map[string]Counts `json:"entries"`
}

// NewResults returns an empty accumulator.
func NewResults() Results {
	return Results{Entries: make(map[Stage]map[string]map[string]Counts)}
}

// Add adds good and bad to the counts of (stage, alias, typ).
func (r *Results) Add(stage Stage, alias, typ string, good, bad int) {
	if r.Entries == nil {
		r.Entries = make(map[Stage]map[string]map[string]Counts)
	}
	byAlias, ok := r.Entries[stage]
	if !ok {
		byAlias = make(map[string]map[string]Counts)
		r.Entries[stage] = byAlias
	}
	byType, ok := byAlias[alias]
	if !ok {
		byType = make(map[string]Counts)
		byAlias[alias] = byType
	}
	c := byType[typ]
	c.Good += good
	c.Bad += bad
	byType[typ] = c
}

// Merge adds every count of other into r.
func (r *Results) Merge(other Results) {
	for stage, byAlias := range other.Entries {
		for alias, byType := range byAlias {
			for typ, c := range byType {
				r.Add(stage, alias, typ, c.Good, c.Bad)
			}
		}
	}
}

// Get returns the counts of (stage, alias, typ).
func (r Results) Get(stage Stage, alias, typ string) Counts {
	return r.Entries[stage][alias][typ]
}

// Total sums every count of a stage.
func (r Results) Total(stage Stage) Counts {
	var total Counts
	for _, byType := range r.Entries[stage] {
		for _, c := range byType {
			total.Good += c.Good
			total.Bad += c.Bad
		}
	}
	return total
}

// BadTypes returns the sorted names of types with a nonzero bad count in a stage.
func (r Results) BadTypes(stage Stage) []string {
	seen := make(map[string]bool)
	for _, byType := range r.Entries[stage] {
		for typ, c := range byType {
			if c.Bad > 0 {
				seen[typ] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for typ := range seen {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Aliases returns the sorted aliases that have counts in a stage.
func (r Results) Aliases(stage Stage) []string {
	out := make([]string, 0, len(r.Entries[stage]))
	for alias := range r.Entries[stage] {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Types returns the sorted types counted for an alias in a stage.
func (r Results) Types(stage Stage, alias string) []string {
	out := make([]string, 0, len(r.Entries[stage][alias]))
	for typ := range r.Entries[stage][alias] {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
