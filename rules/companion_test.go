package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/identity"
	"github.com/getpup/datacopy/migrate"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/store/memory"
	"github.com/getpup/datacopy/transfer"
)

func addressRule() *CompanionRecord {
	return &CompanionRecord{
		OwnerType:     "Account",
		CompanionType: "Address",
		FlagField:     "IsDefault",
		OwnerField:    "AccountId",
	}
}

// newInstance registers Account, Address (owned by Account) and Order (referencing Address).
func newInstance() *memory.Store {
	s := memory.New()
	s.AddType(schema.Description{Name: "Account", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{
		{Name: "Name", Type: "string", Createable: true, Nillable: true},
	}})
	s.AddType(schema.Description{Name: "Address", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{
		{Name: "Street", Type: "string", Createable: true, Nillable: true},
		{Name: "IsDefault", Type: "boolean", Createable: true, Nillable: true},
		{Name: "AccountId", Type: schema.FieldTypeReference, ReferenceTo: []string{"Account"}, Createable: true, Nillable: true},
	}})
	s.AddType(schema.Description{Name: "Order", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{
		{Name: "Name", Type: "string", Createable: true, Nillable: true},
		{Name: "AddressId", Type: schema.FieldTypeReference, ReferenceTo: []string{"Address"}, Createable: true, Nillable: true},
	}})
	return s
}

func identityWith(typ, oldID, newID string) *identity.Map {
	m := identity.NewMap()
	m.Set(typ, oldID, newID)
	return m
}

func TestValidate(t *testing.T) {
	assert.NoError(t, addressRule().Validate())

	r := addressRule()
	r.FlagField = ""
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, datacopy.ErrConfiguration))
}

func TestFilter(t *testing.T) {
	r := addressRule()
	records := []datacopy.Record{
		{"Id": "ad1", "IsDefault": true},
		{"Id": "ad2", "IsDefault": false},
		{"Id": "ad3", "IsDefault": "true"},
		{"Id": "ad4"},
	}

	kept := r.Filter(context.Background(), "Address", records)
	assert.Equal(t, []datacopy.Record{{"Id": "ad2", "IsDefault": false}, {"Id": "ad4"}}, kept)

	assert.Len(t, r.Filter(context.Background(), "Account", records), 4, "other types pass through")
	assert.Len(t, records, 4, "input is not modified")
}

func TestFlagged(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{true, true},
		{false, false},
		{"TRUE", true},
		{"1", true},
		{"no", false},
		{1.0, true},
		{0.0, false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, flagged(tt.value), "%v", tt.value)
	}
}

func TestAfterLoad_LinksCompanions(t *testing.T) {
	ctx := context.Background()
	dir := export.NewDir(t.TempDir())
	require.NoError(t, dir.Write("src", "Address", datacopy.Export{Total: 2, Fetched: 2, Records: []datacopy.Record{
		{"Id": "ad-src-1", "IsDefault": true, "AccountId": "acc-src-1"},
		{"Id": "ad-src-2", "IsDefault": false, "AccountId": "acc-src-1"},
	}}))

	dst := newInstance()
	dst.Seed("Account", datacopy.Record{"Id": "acc-dst-1", "Name": "Acme"})
	dst.Seed("Address", datacopy.Record{"Id": "ad-dst-1", "IsDefault": true, "AccountId": "acc-dst-1"})

	env := &migrate.Env{
		SourceAlias:      "src",
		DestinationAlias: "dst",
		Destination:      transfer.New(transfer.Config{Instance: dst}),
		Dir:              dir,
		SourceFolder:     "src",
		Identities:       identityWith("Account", "acc-src-1", "acc-dst-1"),
	}

	require.NoError(t, addressRule().AfterLoad(ctx, env, "Account"))

	newID, ok := env.Identities.Get("Address", "ad-src-1")
	assert.True(t, ok)
	assert.Equal(t, "ad-dst-1", newID)
	_, ok = env.Identities.Get("Address", "ad-src-2")
	assert.False(t, ok, "unflagged companions are loaded normally")
}

func TestAfterLoad_IgnoresOtherTypesAndMissingExport(t *testing.T) {
	env := &migrate.Env{Dir: export.NewDir(t.TempDir()), SourceFolder: "src", Identities: identityWith("Account", "a", "b")}

	assert.NoError(t, addressRule().AfterLoad(context.Background(), env, "Order"))
	assert.NoError(t, addressRule().AfterLoad(context.Background(), env, "Account"))
	assert.False(t, env.Identities.HasType("Address"))
}

func TestCompanionRecord_WithOrchestrator(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("Account", datacopy.Record{"Id": "acc1", "Name": "Acme"})
	src.Seed("Address",
		datacopy.Record{"Id": "ad1", "Street": "Main St", "IsDefault": true, "AccountId": "acc1"},
		datacopy.Record{"Id": "ad2", "Street": "Side St", "IsDefault": false, "AccountId": "acc1"},
	)
	src.Seed("Order", datacopy.Record{"Id": "o1", "Name": "First", "AddressId": "ad1"})

	// the destination creates the default address of every account itself
	var autoCreate migrate.Rule = &autoAddress{store: dst}
	disabled := false
	o, err := migrate.New(migrate.Config{
		Source:           src,
		Destination:      dst,
		SourceAlias:      "src",
		DestinationAlias: "dst",
		Data:             []schema.DataRequest{{Name: "Account"}, {Name: "Address"}, {Name: "Order"}},
		Dir:              export.NewDir(t.TempDir()),
		StopOnErrors:     true,
		Transfer:         transfer.Config{PollInterval: time.Millisecond, PollTimeout: 5 * time.Second},
		Rules:            []migrate.Rule{autoCreate, addressRule()},
		MetricsEnabled:   &disabled,
	})
	require.NoError(t, err)

	bad, err := o.Full(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Len(t, dst.Records("Address"), 2, "the default address is not loaded twice")

	var defaultAddress string
	for _, rec := range dst.Records("Address") {
		if rec["IsDefault"] == true {
			defaultAddress = rec.ID()
		}
	}
	orders := dst.Records("Order")
	require.Len(t, orders, 1)
	assert.Equal(t, defaultAddress, orders[0]["AddressId"])
}

// autoAddress stands in for a destination that creates a default Address per Account.
type autoAddress struct {
	store *memory.Store
}

func (a *autoAddress) Filter(ctx context.Context, typ string, records []datacopy.Record) []datacopy.Record {
	return records
}

func (a *autoAddress) AfterLoad(ctx context.Context, env *migrate.Env, typ string) error {
	if typ != "Account" {
		return nil
	}
	for _, acc := range a.store.Records("Account") {
		a.store.Seed("Address", datacopy.Record{"Street": "Default", "IsDefault": true, "AccountId": acc.ID()})
	}
	return nil
}
