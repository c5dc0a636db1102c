// Package identity tracks which destination record each source record became.
package identity

// State is the lookup state of a source id.
type State int

const (
	// Absent means no entry exists for the source id.
	Absent State = iota

	// Unmatched means the type was resolved and the source record has no destination counterpart.
	Unmatched

	// Resolved means the source record maps to a destination id.
	Resolved
)

func (s State) String() string {
	switch s {
	case Unmatched:
		return "unmatched"
	case Resolved:
		return "resolved"
	default:
		return "absent"
	}
}

// Map translates source ids to destination ids, per type.
// Entries are only ever added during a run. Map is not safe for concurrent use.
type Map struct {
	types map[string]map[string]*string // type -> old id -> new id (nil when unmatched)
	order []string                      // types in first-write order
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{types: make(map[string]map[string]*string)}
}

func (m *Map) table(typ string) map[string]*string {
	t, ok := m.types[typ]
	if !ok {
		t = make(map[string]*string)
		m.types[typ] = t
		m.order = append(m.order, typ)
	}
	return t
}

// Set records that oldID of typ became newID on the destination.
func (m *Map) Set(typ, oldID, newID string) {
	id := newID
	m.table(typ)[oldID] = &id
}

// SetUnmatched records that oldID of typ has no destination counterpart.
// It does not overwrite a resolved entry.
func (m *Map) SetUnmatched(typ, oldID string) {
	t := m.table(typ)
	if _, ok := t[oldID]; ok {
		return
	}
	t[oldID] = nil
}

// Get returns the destination id for oldID of typ. ok is true only when the entry is resolved.
func (m *Map) Get(typ, oldID string) (string, bool) {
	id, state := m.Lookup(typ, oldID)
	return id, state == Resolved
}

// Lookup returns the destination id and the entry's state.
func (m *Map) Lookup(typ, oldID string) (string, State) {
	t, ok := m.types[typ]
	if !ok {
		return "", Absent
	}
	id, ok := t[oldID]
	if !ok {
		return "", Absent
	}
	if id == nil {
		return "", Unmatched
	}
	return *id, Resolved
}

// HasType reports whether any entry of typ was recorded.
func (m *Map) HasType(typ string) bool {
	_, ok := m.types[typ]
	return ok
}

// Len returns the number of resolved entries of typ.
func (m *Map) Len(typ string) int {
	n := 0
	for _, id := range m.types[typ] {
		if id != nil {
			n++
		}
	}
	return n
}

// Types returns the recorded types in the order they were first written.
func (m *Map) Types() []string {
	return append([]string(nil), m.order...)
}
