package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/getpup/datacopy"
)

// KeySeparator joins match key fields.
const KeySeparator = "|"

// MatchKeyError reports a record that lacks one of the configured match key fields.
type MatchKeyError struct {
	Alias string
	Type  string
	ID    string
	Field string
}

func (e *MatchKeyError) Error() string {
	return fmt.Sprintf("[%s] %s record %q has no value for match key field %s", e.Alias, e.Type, e.ID, e.Field)
}

func (e *MatchKeyError) Unwrap() error {
	return datacopy.ErrConfiguration
}

// MatchKey joins the values of fields in order, separated by KeySeparator.
// A nil value renders as an empty string, so a record whose key field is null
// matches one where the same field is empty.
// Returns a *MatchKeyError if the record lacks one of the fields.
func MatchKey(rec datacopy.Record, fields []string) (string, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := rec[f]
		if !ok {
			return "", &MatchKeyError{ID: rec.ID(), Field: f}
		}
		if v != nil {
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, KeySeparator), nil
}

// MatchStats summarizes a match run for one type.
type MatchStats struct {
	Matched    int
	Unmatched  int
	Duplicates int
}

// ResolveMatches links the source and destination records of a metadata type
// that share a match key. Unmatched source records are recorded as unmatched.
// When several destination records share a key, the last one wins.
//
// Returns a *MatchKeyError if any record on either side lacks a key field. No
// entry is written in that case.
func ResolveMatches(m *Map, typ string, fields []string, source, destination []datacopy.Record) (MatchStats, error) {
	var stats MatchStats

	dstIDs := make(map[string]string, len(destination))
	for _, rec := range destination {
		key, err := MatchKey(rec, fields)
		if err != nil {
			return stats, withType(err, "destination", typ)
		}
		if _, dup := dstIDs[key]; dup {
			stats.Duplicates++
		}
		dstIDs[key] = rec.ID()
	}

	srcKeys := make([]string, len(source))
	for i, rec := range source {
		key, err := MatchKey(rec, fields)
		if err != nil {
			return stats, withType(err, "source", typ)
		}
		srcKeys[i] = key
	}

	for i, rec := range source {
		if newID, ok := dstIDs[srcKeys[i]]; ok {
			m.Set(typ, rec.ID(), newID)
			stats.Matched++
			continue
		}
		m.SetUnmatched(typ, rec.ID())
		stats.Unmatched++
	}
	return stats, nil
}

func withType(err error, alias, typ string) error {
	var mk *MatchKeyError
	if errors.As(err, &mk) {
		mk.Alias = alias
		mk.Type = typ
	}
	return err
}
