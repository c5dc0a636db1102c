package identity

// Deferred is a reference field held back from the initial load.
type Deferred struct {
	// Field is the reference field name.
	Field string

	// RefID is the source id the field referenced.
	RefID string
}

// Deferrals collects two-pass reference values per type and source record,
// in the order they were added.
type Deferrals struct {
	types   map[string]map[string][]Deferred
	order   []string
	records map[string][]string
}

// NewDeferrals returns an empty collection.
func NewDeferrals() *Deferrals {
	return &Deferrals{
		types:   make(map[string]map[string][]Deferred),
		records: make(map[string][]string),
	}
}

// Add records that oldID of typ referenced refOldID in field.
func (d *Deferrals) Add(typ, oldID, field, refOldID string) {
	t, ok := d.types[typ]
	if !ok {
		t = make(map[string][]Deferred)
		d.types[typ] = t
		d.order = append(d.order, typ)
	}
	if _, ok := t[oldID]; !ok {
		d.records[typ] = append(d.records[typ], oldID)
	}
	t[oldID] = append(t[oldID], Deferred{Field: field, RefID: refOldID})
}

// Types returns the types with deferred values, in first-added order.
func (d *Deferrals) Types() []string {
	return append([]string(nil), d.order...)
}

// Records returns the source ids of typ with deferred values, in first-added order.
func (d *Deferrals) Records(typ string) []string {
	return append([]string(nil), d.records[typ]...)
}

// Fields returns the deferred values of oldID of typ.
func (d *Deferrals) Fields(typ, oldID string) []Deferred {
	return d.types[typ][oldID]
}

// Len returns the total number of deferred values.
func (d *Deferrals) Len() int {
	n := 0
	for _, t := range d.types {
		for _, fields := range t {
			n += len(fields)
		}
	}
	return n
}
