// Package rules holds post-processing rules for migration loads.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/migrate"
)

// CompanionRecord handles records the destination creates by itself whenever an
// owner record is created, such as a default address created with each account.
//
// Flagged companion records are not loaded: the destination already has them.
// Once the owners are loaded, each source companion is linked to the destination
// companion of the same owner, so references to companions still resolve.
type CompanionRecord struct {
	// OwnerType is the type whose creation produces a companion.
	OwnerType string

	// CompanionType is the type of the automatically created records.
	CompanionType string

	// FlagField marks a record as automatically created when true.
	FlagField string

	// OwnerField is the reference from the companion to its owner.
	OwnerField string
}

// Compile-time check that CompanionRecord implements migrate.Rule.
var _ migrate.Rule = (*CompanionRecord)(nil)

// Validate checks that every field is set.
func (c *CompanionRecord) Validate() error {
	if c.OwnerType == "" || c.CompanionType == "" || c.FlagField == "" || c.OwnerField == "" {
		return fmt.Errorf("%w: companion rule needs ownerType, companionType, flagField and ownerField", datacopy.ErrConfiguration)
	}
	return nil
}

// Filter drops flagged companions.
func (c *CompanionRecord) Filter(ctx context.Context, typ string, records []datacopy.Record) []datacopy.Record {
	if typ != c.CompanionType {
		return records
	}
	out := make([]datacopy.Record, 0, len(records))
	for _, rec := range records {
		if !flagged(rec[c.FlagField]) {
			out = append(out, rec)
		}
	}
	return out
}

// AfterLoad links source companions to the destination companions of their owners.
func (c *CompanionRecord) AfterLoad(ctx context.Context, env *migrate.Env, typ string) error {
	if typ != c.OwnerType {
		return nil
	}

	exp, err := env.Dir.Read(env.SourceFolder, c.CompanionType)
	if errors.Is(err, export.ErrArtifactNotFound) {
		if env.Logger != nil {
			env.Logger.Warn(ctx, "companion type was not exported, nothing to link", "type", c.CompanionType)
		}
		return nil
	}
	if err != nil {
		return err
	}

	created, _, err := env.Destination.Query(ctx, datacopy.Query{
		Type:   c.CompanionType,
		Fields: []string{datacopy.IDField, c.OwnerField},
		Where:  c.FlagField + " = true",
	})
	if err != nil {
		return fmt.Errorf("failed to read companions from [%s]: %w", env.DestinationAlias, err)
	}

	byOwner := make(map[string]string, len(created))
	for _, rec := range created {
		if owner, ok := rec[c.OwnerField]; ok && owner != nil {
			byOwner[fmt.Sprint(owner)] = rec.ID()
		}
	}

	linked, missing := 0, 0
	for _, rec := range exp.Records {
		if !flagged(rec[c.FlagField]) {
			continue
		}
		owner, ok := rec[c.OwnerField]
		if !ok || owner == nil {
			missing++
			continue
		}
		newOwner, ok := env.Identities.Get(c.OwnerType, fmt.Sprint(owner))
		if !ok {
			missing++
			continue
		}
		companion, ok := byOwner[newOwner]
		if !ok {
			missing++
			continue
		}
		env.Identities.Set(c.CompanionType, rec.ID(), companion)
		linked++
	}

	if env.Logger != nil {
		env.Logger.Info(ctx, "companions linked", "owner", c.OwnerType, "type", c.CompanionType, "linked", linked, "missing", missing)
	}
	return nil
}

func flagged(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true") || x == "1"
	case float64:
		return x == 1
	case int:
		return x == 1
	case int64:
		return x == 1
	}
	return false
}
