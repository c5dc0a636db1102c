package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/datacopy"
)

func TestMap(t *testing.T) {
	t.Run("resolved entry", func(t *testing.T) {
		m := NewMap()
		m.Set("Account", "old-1", "new-1")

		id, ok := m.Get("Account", "old-1")
		assert.True(t, ok)
		assert.Equal(t, "new-1", id)
		assert.True(t, m.HasType("Account"))
		assert.Equal(t, 1, m.Len("Account"))
	})

	t.Run("absent and unmatched are distinct", func(t *testing.T) {
		m := NewMap()
		m.SetUnmatched("Pricebook2", "old-1")

		_, state := m.Lookup("Pricebook2", "old-1")
		assert.Equal(t, Unmatched, state)

		_, state = m.Lookup("Pricebook2", "old-2")
		assert.Equal(t, Absent, state)

		_, state = m.Lookup("Account", "old-1")
		assert.Equal(t, Absent, state)

		_, ok := m.Get("Pricebook2", "old-1")
		assert.False(t, ok)
		assert.True(t, m.HasType("Pricebook2"))
		assert.Equal(t, 0, m.Len("Pricebook2"))
	})

	t.Run("unmatched does not overwrite resolved", func(t *testing.T) {
		m := NewMap()
		m.Set("Account", "old-1", "new-1")
		m.SetUnmatched("Account", "old-1")

		id, state := m.Lookup("Account", "old-1")
		assert.Equal(t, Resolved, state)
		assert.Equal(t, "new-1", id)
	})

	t.Run("types in first write order", func(t *testing.T) {
		m := NewMap()
		m.Set("B", "1", "x")
		m.Set("A", "1", "y")
		m.Set("B", "2", "z")

		assert.Equal(t, []string{"B", "A"}, m.Types())
		assert.False(t, m.HasType("C"))
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "unmatched", Unmatched.String())
	assert.Equal(t, "resolved", Resolved.String())
}

func TestMatchKey(t *testing.T) {
	tests := []struct {
		name    string
		rec     datacopy.Record
		fields  []string
		want    string
		wantErr bool
	}{
		{"single field", datacopy.Record{"Name": "ACME"}, []string{"Name"}, "ACME", false},
		{"fields in configured order", datacopy.Record{"Region": "West", "Name": "ACME"}, []string{"Name", "Region"}, "ACME|West", false},
		{"non string value", datacopy.Record{"Name": "ACME", "Year": 2024}, []string{"Name", "Year"}, "ACME|2024", false},
		{"nil value is empty", datacopy.Record{"Name": "ACME", "Region": nil}, []string{"Name", "Region"}, "ACME|", false},
		{"empty value collides with nil", datacopy.Record{"Name": "ACME", "Region": ""}, []string{"Name", "Region"}, "ACME|", false},
		{"missing field", datacopy.Record{"Id": "1", "Name": "ACME"}, []string{"Name", "Region"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchKey(tt.rec, tt.fields)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, datacopy.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMatches(t *testing.T) {
	fields := []string{"Name", "Region"}

	t.Run("links records sharing a key", func(t *testing.T) {
		source := []datacopy.Record{
			{"Id": "src-1", "Name": "ACME", "Region": "West"},
			{"Id": "src-2", "Name": "Globex", "Region": "East"},
		}
		destination := []datacopy.Record{
			{"Id": "dst-9", "Name": "ACME", "Region": "West"},
		}

		m := NewMap()
		stats, err := ResolveMatches(m, "Pricebook2", fields, source, destination)
		require.NoError(t, err)
		assert.Equal(t, MatchStats{Matched: 1, Unmatched: 1}, stats)

		id, ok := m.Get("Pricebook2", "src-1")
		assert.True(t, ok)
		assert.Equal(t, "dst-9", id)

		_, state := m.Lookup("Pricebook2", "src-2")
		assert.Equal(t, Unmatched, state)
	})

	t.Run("null and empty key fields match", func(t *testing.T) {
		source := []datacopy.Record{{"Id": "src-1", "Name": "ACME", "Region": nil}}
		destination := []datacopy.Record{{"Id": "dst-1", "Name": "ACME", "Region": ""}}

		m := NewMap()
		stats, err := ResolveMatches(m, "Pricebook2", fields, source, destination)
		require.NoError(t, err)
		assert.Equal(t, MatchStats{Matched: 1}, stats)

		id, ok := m.Get("Pricebook2", "src-1")
		assert.True(t, ok)
		assert.Equal(t, "dst-1", id)
	})

	t.Run("duplicate destination keys keep the last", func(t *testing.T) {
		source := []datacopy.Record{{"Id": "src-1", "Name": "ACME", "Region": "West"}}
		destination := []datacopy.Record{
			{"Id": "dst-1", "Name": "ACME", "Region": "West"},
			{"Id": "dst-2", "Name": "ACME", "Region": "West"},
		}

		m := NewMap()
		stats, err := ResolveMatches(m, "Pricebook2", fields, source, destination)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Duplicates)

		id, _ := m.Get("Pricebook2", "src-1")
		assert.Equal(t, "dst-2", id)
	})

	t.Run("missing key field is fatal and writes nothing", func(t *testing.T) {
		source := []datacopy.Record{
			{"Id": "src-1", "Name": "ACME", "Region": "West"},
			{"Id": "src-2", "Name": "Globex"},
		}

		m := NewMap()
		_, err := ResolveMatches(m, "Pricebook2", fields, source, nil)
		require.Error(t, err)

		var mk *MatchKeyError
		require.True(t, errors.As(err, &mk))
		assert.Equal(t, "source", mk.Alias)
		assert.Equal(t, "Pricebook2", mk.Type)
		assert.Equal(t, "src-2", mk.ID)
		assert.Equal(t, "Region", mk.Field)
		assert.False(t, m.HasType("Pricebook2"))
	})
}

func TestDeferrals(t *testing.T) {
	d := NewDeferrals()
	d.Add("Contact", "c-2", "ReportsToId", "c-1")
	d.Add("Account", "a-1", "ParentId", "a-0")
	d.Add("Contact", "c-3", "ReportsToId", "c-2")
	d.Add("Contact", "c-2", "AssistantId", "c-3")

	assert.Equal(t, []string{"Contact", "Account"}, d.Types())
	assert.Equal(t, []string{"c-2", "c-3"}, d.Records("Contact"))
	assert.Equal(t, []Deferred{{Field: "ReportsToId", RefID: "c-1"}, {Field: "AssistantId", RefID: "c-3"}}, d.Fields("Contact", "c-2"))
	assert.Equal(t, 4, d.Len())
	assert.Empty(t, d.Records("Case"))
}
