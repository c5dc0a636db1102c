package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/export"
	"github.com/getpup/datacopy/identity"
	"github.com/getpup/datacopy/lifecycle"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/store/memory"
	"github.com/getpup/datacopy/transfer"
)

type testLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *testLogger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {}
func (l *testLogger) Info(ctx context.Context, msg string, keyvals ...interface{})  {}
func (l *testLogger) Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *testLogger) Error(ctx context.Context, msg string, keyvals ...interface{}) {}

func (l *testLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.warns {
		if w == msg {
			n++
		}
	}
	return n
}

func text(name string) schema.FieldDescription {
	return schema.FieldDescription{Name: name, Type: "string", Createable: true, Nillable: true}
}

func ref(name string, to string) schema.FieldDescription {
	return schema.FieldDescription{Name: name, Type: schema.FieldTypeReference, ReferenceTo: []string{to}, Createable: true, Nillable: true}
}

// newInstance registers Region (metadata), A, B (parent A) and C (parent B, deferred self reference).
func newInstance(opts ...memory.Option) *memory.Store {
	s := memory.New(opts...)
	s.AddType(schema.Description{Name: "Region", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{text("Name"), text("Zone")}})
	s.AddType(schema.Description{Name: "A", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{text("Name"), ref("RegionId", "Region")}})
	s.AddType(schema.Description{Name: "B", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{text("Name"), ref("AId", "A")}})
	s.AddType(schema.Description{Name: "C", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{text("Name"), ref("BId", "B"), ref("ParentId", "C")}})
	return s
}

func testConfig(t *testing.T, src, dst *memory.Store) Config {
	disabled := false
	return Config{
		Source:           src,
		Destination:      dst,
		SourceAlias:      "src",
		DestinationAlias: "dst",
		Data: []schema.DataRequest{
			{Name: "A"},
			{Name: "B"},
			{Name: "C", TwoPassFields: []string{"ParentId"}},
		},
		Metadata:       []schema.MetadataRequest{{Name: "Region", MatchBy: []string{"Name", "Zone"}}},
		Dir:            export.NewDir(t.TempDir()),
		StopOnErrors:   true,
		Transfer:       transfer.Config{PollInterval: time.Millisecond, PollTimeout: 5 * time.Second},
		MetricsEnabled: &disabled,
	}
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func seedChain(s *memory.Store) {
	s.Seed("A", datacopy.Record{"Id": "a1", "Name": "Alpha"})
	s.Seed("B", datacopy.Record{"Id": "b1", "Name": "Beta", "AId": "a1"})
	s.Seed("C",
		datacopy.Record{"Id": "c1", "Name": "Root", "BId": "b1", "ParentId": nil},
		datacopy.Record{"Id": "c2", "Name": "Leaf", "BId": "b1", "ParentId": "c1"},
	)
}

func operations(s *memory.Store) []string {
	var out []string
	for _, b := range s.Batches() {
		out = append(out, fmt.Sprintf("%s %s", b.Spec.Operation, b.Spec.Type))
	}
	return out
}

func phases(history []lifecycle.Transition) []datacopy.Phase {
	out := []datacopy.Phase{datacopy.PhaseIdle}
	for _, tr := range history {
		out = append(out, tr.To)
	}
	return out
}

func findByName(t *testing.T, s *memory.Store, typ, name string) datacopy.Record {
	t.Helper()
	for _, rec := range s.Records(typ) {
		if rec["Name"] == name {
			return rec
		}
	}
	t.Fatalf("no %s named %s", typ, name)
	return nil
}

func TestNew_Validation(t *testing.T) {
	src, dst := newInstance(), newInstance()

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing source", func(c *Config) { c.Source = nil }},
		{"missing destination", func(c *Config) { c.Destination = nil }},
		{"missing alias", func(c *Config) { c.SourceAlias = "" }},
		{"missing dir", func(c *Config) { c.Dir = nil }},
		{"metadata without match fields", func(c *Config) { c.Metadata = []schema.MetadataRequest{{Name: "Region"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, src, dst)
			tt.modify(&cfg)

			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, datacopy.ErrConfiguration))
		})
	}
}

func TestLoadOrder(t *testing.T) {
	o := newOrchestrator(t, testConfig(t, newInstance(), newInstance()))

	order, err := o.LoadOrder(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestPrepare_WritesInfoAndDestinationMetadata(t *testing.T) {
	src, dst := newInstance(), newInstance()
	dst.Seed("Region", datacopy.Record{"Id": "r9", "Name": "ACME", "Zone": "West"})
	cfg := testConfig(t, src, dst)
	o := newOrchestrator(t, cfg)

	require.NoError(t, o.Prepare(context.Background()))

	info, err := cfg.Dir.ReadInfo("dst")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, info.LoadOrder)
	_, err = cfg.Dir.ReadInfo("src")
	require.NoError(t, err)

	regions, err := cfg.Dir.Read("dst", "Region")
	require.NoError(t, err)
	assert.Equal(t, 1, regions.Fetched)

	_, err = cfg.Dir.Read("src", "Region")
	assert.True(t, errors.Is(err, export.ErrArtifactNotFound), "source is exported by Export only")
}

func TestPrepare_SameAliasUsesSeparateFolder(t *testing.T) {
	inst := newInstance()
	inst.Seed("Region", datacopy.Record{"Id": "r1", "Name": "ACME", "Zone": "West"})
	cfg := testConfig(t, inst, inst)
	cfg.DestinationAlias = "src"
	o := newOrchestrator(t, cfg)

	require.NoError(t, o.Prepare(context.Background()))

	_, err := cfg.Dir.Read("src_SAME", "Region")
	assert.NoError(t, err)
}

func TestPrepare_ProductionGuard(t *testing.T) {
	tests := []struct {
		name             string
		copyToProduction bool
		stopOnErrors     bool
		wantErr          bool
	}{
		{"copy not allowed", false, true, true},
		{"lenient mode", true, false, true},
		{"allowed", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, newInstance(), newInstance())
			cfg.DestinationProduction = true
			cfg.CopyToProduction = tt.copyToProduction
			cfg.StopOnErrors = tt.stopOnErrors
			o := newOrchestrator(t, cfg)

			err := o.Prepare(context.Background())

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, datacopy.ErrProductionGuard))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCompare_CountsMismatchedFields(t *testing.T) {
	src := newInstance()
	src.AddType(schema.Description{Name: "A", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{text("Name"), ref("RegionId", "Region"), text("Legacy")}})
	logger := &testLogger{}
	cfg := testConfig(t, src, newInstance())
	cfg.Logger = logger
	o := newOrchestrator(t, cfg)

	results, err := o.Compare(context.Background())

	require.NoError(t, err)
	assert.Equal(t, datacopy.Counts{Good: 3, Bad: 1}, results.Get(datacopy.StageSchema, "src", "A"))
	assert.Equal(t, datacopy.Counts{Good: 3}, results.Get(datacopy.StageSchema, "dst", "A"))
	assert.Empty(t, results.Entries[datacopy.StageImport])
	assert.Equal(t, 1, logger.count("schema mismatch"))
}

func TestFull_DeferredSelfReference(t *testing.T) {
	src, dst := newInstance(), newInstance()
	seedChain(src)
	o := newOrchestrator(t, testConfig(t, src, dst))

	bad, err := o.Full(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Equal(t, []string{"insert A", "insert B", "insert C", "update C"}, operations(dst))

	for _, b := range dst.Batches() {
		if b.Spec.Type == "C" && b.Spec.Operation == datacopy.OperationInsert {
			for _, row := range b.Rows {
				assert.NotContains(t, row, "ParentId", "deferred field is not sent with the insert")
			}
		}
	}

	root := findByName(t, dst, "C", "Root")
	leaf := findByName(t, dst, "C", "Leaf")
	beta := findByName(t, dst, "B", "Beta")
	assert.Equal(t, root["Id"], leaf["ParentId"])
	assert.Equal(t, beta["Id"], leaf["BId"])
	assert.NotEqual(t, "c1", root["Id"])

	assert.Equal(t, []datacopy.Phase{
		datacopy.PhaseIdle,
		datacopy.PhaseResolvingIdentities,
		datacopy.PhaseLoading,
		datacopy.PhaseResolvingDeferredReferences,
		datacopy.PhaseDone,
	}, phases(o.History()))

	results := o.Results()
	assert.Equal(t, datacopy.Counts{Good: 3}, results.Get(datacopy.StageImport, "dst", "C"), "two inserts and one deferred update")
	assert.Equal(t, datacopy.Counts{Good: 2}, results.Get(datacopy.StageExport, "src", "C"))
}

func TestImportAll_OmitsUnresolvedParent(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("A", datacopy.Record{"Id": "a1", "Name": "Alpha"})
	src.Seed("B",
		datacopy.Record{"Id": "b1", "Name": "Known", "AId": "a1"},
		datacopy.Record{"Id": "b2", "Name": "Orphan", "AId": "a-ghost"},
		datacopy.Record{"Id": "b3", "Name": "Other orphan", "AId": "a-ghost-2"},
	)
	logger := &testLogger{}
	cfg := testConfig(t, src, dst)
	cfg.Logger = logger
	o := newOrchestrator(t, cfg)
	ctx := context.Background()

	_, err := o.Export(ctx)
	require.NoError(t, err)
	bad, err := o.ImportAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Equal(t, 1, logger.count("default field values are used because parents were not found"))

	orphan := findByName(t, dst, "B", "Orphan")
	assert.NotContains(t, orphan, "AId")
	known := findByName(t, dst, "B", "Known")
	assert.Equal(t, findByName(t, dst, "A", "Alpha")["Id"], known["AId"])
	assert.Len(t, dst.Records("B"), 3, "rows with an omitted parent are still submitted")
}

func TestImportAll_MatchesMetadataByKey(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("Region",
		datacopy.Record{"Id": "r-src-1", "Name": "ACME", "Zone": "West"},
		datacopy.Record{"Id": "r-src-2", "Name": "ACME", "Zone": "East"},
	)
	dst.Seed("Region", datacopy.Record{"Id": "r-dst-9", "Name": "ACME", "Zone": "West"})
	src.Seed("A",
		datacopy.Record{"Id": "a1", "Name": "West account", "RegionId": "r-src-1"},
		datacopy.Record{"Id": "a2", "Name": "East account", "RegionId": "r-src-2"},
	)
	o := newOrchestrator(t, testConfig(t, src, dst))

	_, err := o.Full(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "r-dst-9", findByName(t, dst, "A", "West account")["RegionId"])
	assert.NotContains(t, findByName(t, dst, "A", "East account"), "RegionId")

	newID, ok := o.Identities().Get("Region", "r-src-1")
	assert.True(t, ok)
	assert.Equal(t, "r-dst-9", newID)
	assert.Equal(t, 1, o.Identities().Len("Region"))
	_, state := o.Identities().Lookup("Region", "r-src-2")
	assert.Equal(t, identity.Unmatched, state)
}

func TestImportAll_RematchesMetadataOnEachRun(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("Region",
		datacopy.Record{"Id": "r-src-1", "Name": "ACME", "Zone": "West"},
		datacopy.Record{"Id": "r-src-2", "Name": "ACME", "Zone": "East"},
	)
	dst.Seed("Region", datacopy.Record{"Id": "r-dst-9", "Name": "ACME", "Zone": "West"})
	src.Seed("A", datacopy.Record{"Id": "a2", "Name": "East account", "RegionId": "r-src-2"})
	o := newOrchestrator(t, testConfig(t, src, dst))
	ctx := context.Background()

	_, err := o.Full(ctx)
	require.NoError(t, err)
	_, state := o.Identities().Lookup("Region", "r-src-2")
	require.Equal(t, identity.Unmatched, state)

	dst.Seed("Region", datacopy.Record{"Id": "r-dst-5", "Name": "ACME", "Zone": "East"})

	_, err = o.ImportAll(ctx)
	require.NoError(t, err)

	newID, ok := o.Identities().Get("Region", "r-src-2")
	assert.True(t, ok, "a region created after the first run is matched by the second")
	assert.Equal(t, "r-dst-5", newID)
	assert.Equal(t, 2, o.Identities().Len("Region"))

	var regions []any
	for _, rec := range dst.Records("A") {
		regions = append(regions, rec["RegionId"])
	}
	assert.Contains(t, regions, "r-dst-5")
}

func TestImportAll_MissingMatchFieldIsFatal(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("Region", datacopy.Record{"Id": "r1", "Name": "ACME", "Zone": "West"})
	cfg := testConfig(t, src, dst)
	o := newOrchestrator(t, cfg)
	ctx := context.Background()

	_, err := o.Export(ctx)
	require.NoError(t, err)

	// strip a key field from the exported source records
	exp, err := cfg.Dir.Read("src", "Region")
	require.NoError(t, err)
	delete(exp.Records[0], "Zone")
	require.NoError(t, cfg.Dir.Write("src", "Region", exp))

	_, err = o.ImportAll(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, datacopy.ErrConfiguration))
	assert.Contains(t, err.Error(), "[src]")
	assert.Equal(t, datacopy.PhaseFailed, o.Phase())
	assert.Empty(t, dst.Batches())
}

func TestImportAll_PreDeleteInReverseOrder(t *testing.T) {
	src, dst := newInstance(), newInstance()
	seedChain(src)
	seedChain(dst)
	cfg := testConfig(t, src, dst)
	cfg.DeleteDestination = true
	o := newOrchestrator(t, cfg)

	bad, err := o.Full(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Equal(t, []string{
		"delete C", "delete B", "delete A",
		"insert A", "insert B", "insert C", "update C",
	}, operations(dst))
	assert.Len(t, dst.Records("C"), 2)
	assert.Equal(t, datacopy.Counts{Good: 2}, o.Results().Get(datacopy.StageDelete, "dst", "C"))
	assert.Equal(t, []datacopy.Phase{
		datacopy.PhaseIdle,
		datacopy.PhaseDeleting,
		datacopy.PhaseResolvingIdentities,
		datacopy.PhaseLoading,
		datacopy.PhaseResolvingDeferredReferences,
		datacopy.PhaseDone,
	}, phases(o.History()))
}

func TestDeleteAll(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		dst := newInstance()
		seedChain(dst)
		o := newOrchestrator(t, testConfig(t, newInstance(), dst))

		bad, err := o.DeleteAll(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, bad)
		assert.Len(t, dst.Records("A"), 1)
	})

	t.Run("enabled", func(t *testing.T) {
		dst := newInstance()
		seedChain(dst)
		cfg := testConfig(t, newInstance(), dst)
		cfg.DeleteDestination = true
		o := newOrchestrator(t, cfg)

		bad, err := o.DeleteAll(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, bad)
		assert.Empty(t, dst.Records("A"))
		assert.Empty(t, dst.Records("C"))
		assert.Equal(t, []string{"delete C", "delete B", "delete A"}, operations(dst))
		assert.Equal(t, datacopy.PhaseDone, o.Phase())
	})

	t.Run("strict failure", func(t *testing.T) {
		dst := newInstance(memory.WithRejectFunc(func(spec datacopy.JobSpec, row datacopy.Record) *datacopy.RowError {
			if spec.Type == "B" {
				return &datacopy.RowError{Code: "LOCKED", Message: "record is locked"}
			}
			return nil
		}))
		seedChain(dst)
		cfg := testConfig(t, newInstance(), dst)
		cfg.DeleteDestination = true
		o := newOrchestrator(t, cfg)

		bad, err := o.DeleteAll(context.Background())

		require.Error(t, err)
		assert.True(t, errors.Is(err, datacopy.ErrDeleteFailed))
		assert.Equal(t, 1, bad)
		assert.Equal(t, datacopy.PhaseFailed, o.Phase())
	})
}

func TestImportAll_RoundTrip(t *testing.T) {
	src, dst := newInstance(), newInstance()
	const n = 25
	for i := 0; i < n; i++ {
		src.Seed("A", datacopy.Record{"Id": fmt.Sprintf("a%d", i), "Name": fmt.Sprintf("Account %d", i)})
	}
	cfg := testConfig(t, src, dst)
	cfg.Transfer.ChunkSize = 10
	o := newOrchestrator(t, cfg)

	bad, err := o.Full(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Equal(t, n, o.Identities().Len("A"))
	assert.Len(t, dst.Records("A"), n)
	assert.Equal(t, datacopy.Counts{Good: n}, o.Results().Get(datacopy.StageImport, "dst", "A"))
	assert.Equal(t, []string{"insert A", "insert A", "insert A"}, operations(dst))
}

func TestImportAll_UpsertWithExternalID(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("A", datacopy.Record{"Id": "a1", "Name": "Alpha"})
	dst.Seed("A", datacopy.Record{"Id": "existing", "Name": "Alpha"})
	cfg := testConfig(t, src, dst)
	cfg.Data[0].ExternalIDField = "Name"
	o := newOrchestrator(t, cfg)

	bad, err := o.Full(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	assert.Len(t, dst.Records("A"), 1)
	newID, _ := o.Identities().Get("A", "a1")
	assert.Equal(t, "existing", newID)
	assert.Equal(t, datacopy.OperationUpsert, dst.Batches()[0].Spec.Operation)
	assert.NotContains(t, dst.Batches()[0].Rows[0], "Id")
}

func TestImportAll_StrictAndLenient(t *testing.T) {
	rejectBad := memory.WithRejectFunc(func(spec datacopy.JobSpec, row datacopy.Record) *datacopy.RowError {
		if spec.Type == "B" && row["Name"] == "bad" {
			return &datacopy.RowError{Code: "FIELD_CUSTOM_VALIDATION_EXCEPTION", Message: "rejected"}
		}
		return nil
	})

	tests := []struct {
		name      string
		strict    bool
		wantErr   bool
		wantPhase datacopy.Phase
	}{
		{"strict", true, true, datacopy.PhaseFailed},
		{"lenient", false, false, datacopy.PhaseDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst := newInstance(), newInstance(rejectBad)
			src.Seed("A", datacopy.Record{"Id": "a1", "Name": "Alpha"})
			src.Seed("B",
				datacopy.Record{"Id": "b1", "Name": "good", "AId": "a1"},
				datacopy.Record{"Id": "b2", "Name": "bad", "AId": "a1"},
			)
			src.Seed("C", datacopy.Record{"Id": "c1", "Name": "child", "BId": "b1"})
			cfg := testConfig(t, src, dst)
			cfg.StopOnErrors = tt.strict
			o := newOrchestrator(t, cfg)

			bad, err := o.Full(context.Background())

			assert.Equal(t, 1, bad)
			assert.Equal(t, tt.wantPhase, o.Phase())
			assert.Len(t, dst.Records("C"), 1, "later types still load")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, datacopy.ErrImportFailed))
			var runErr *datacopy.RunError
			require.True(t, errors.As(err, &runErr))
			assert.Equal(t, map[string]int{"B": 1}, runErr.Types)
		})
	}
}

func TestImportAll_DeadlockAbortsBeforeTransfer(t *testing.T) {
	cyclic := func() *memory.Store {
		s := memory.New()
		s.AddType(schema.Description{Name: "X", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{ref("YId", "Y")}})
		s.AddType(schema.Description{Name: "Y", Capabilities: schema.AllCapabilities, Fields: []schema.FieldDescription{ref("XId", "X")}})
		return s
	}
	src, dst := cyclic(), cyclic()
	src.Seed("X", datacopy.Record{"Id": "x1"})
	cfg := testConfig(t, src, dst)
	cfg.Data = []schema.DataRequest{{Name: "X"}, {Name: "Y"}}
	cfg.Metadata = nil
	o := newOrchestrator(t, cfg)

	_, err := o.ImportAll(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, datacopy.ErrOrderingDeadlock))
	assert.Contains(t, err.Error(), "X.YId")
	assert.Contains(t, err.Error(), "Y.XId")
	assert.Empty(t, dst.Batches())
	assert.Equal(t, datacopy.PhaseFailed, o.Phase())
}

func TestImportAll_TransportFailure(t *testing.T) {
	failA := memory.WithJobFailureFunc(func(spec datacopy.JobSpec, rows []datacopy.Record) error {
		if spec.Type == "A" {
			return errors.New("server unavailable")
		}
		return nil
	})

	t.Run("halts the run", func(t *testing.T) {
		src, dst := newInstance(), newInstance(failA)
		seedChain(src)
		o := newOrchestrator(t, testConfig(t, src, dst))

		_, err := o.Full(context.Background())

		require.Error(t, err)
		assert.True(t, errors.Is(err, datacopy.ErrTransportFailure))
		assert.Equal(t, datacopy.PhaseFailed, o.Phase())
		assert.Empty(t, operations(dst), "nothing after the lost chunk is sent")
		assert.Equal(t, datacopy.Counts{Bad: 1}, o.Results().Get(datacopy.StageImport, "dst", "A"))
	})

	t.Run("tolerated", func(t *testing.T) {
		src, dst := newInstance(), newInstance(failA)
		seedChain(src)
		cfg := testConfig(t, src, dst)
		cfg.StopOnErrors = false
		cfg.TolerateTransportFailures = true
		o := newOrchestrator(t, cfg)

		bad, err := o.Full(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, bad)
		assert.Equal(t, []string{"insert B", "insert C", "update C"}, operations(dst))
		assert.NotContains(t, findByName(t, dst, "B", "Beta"), "AId")
	})
}

func TestImportAll_RequiresExport(t *testing.T) {
	src, dst := newInstance(), newInstance()
	seedChain(src)
	o := newOrchestrator(t, testConfig(t, src, dst))

	_, err := o.ImportAll(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, export.ErrArtifactNotFound))
}

type recordingRule struct {
	loaded []string
}

func (r *recordingRule) Filter(ctx context.Context, typ string, records []datacopy.Record) []datacopy.Record {
	if typ != "B" {
		return records
	}
	var out []datacopy.Record
	for _, rec := range records {
		if rec["Name"] != "skip" {
			out = append(out, rec)
		}
	}
	return out
}

func (r *recordingRule) AfterLoad(ctx context.Context, env *Env, typ string) error {
	r.loaded = append(r.loaded, typ)
	if typ == "A" && env.Identities.Len("A") != 1 {
		return errors.New("A was not mapped before its rule ran")
	}
	return nil
}

func TestImportAll_Rules(t *testing.T) {
	src, dst := newInstance(), newInstance()
	src.Seed("A", datacopy.Record{"Id": "a1", "Name": "Alpha"})
	src.Seed("B",
		datacopy.Record{"Id": "b1", "Name": "keep", "AId": "a1"},
		datacopy.Record{"Id": "b2", "Name": "skip", "AId": "a1"},
	)
	rule := &recordingRule{}
	cfg := testConfig(t, src, dst)
	cfg.Rules = []Rule{rule}
	o := newOrchestrator(t, cfg)

	_, err := o.Full(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, rule.loaded)
	require.Len(t, dst.Records("B"), 1)
	assert.Equal(t, "keep", dst.Records("B")[0]["Name"])
}

func TestImportAll_ContextCancelled(t *testing.T) {
	src, dst := newInstance(), newInstance(memory.WithLatency(time.Second))
	seedChain(src)
	o := newOrchestrator(t, testConfig(t, src, dst))
	_, err := o.Export(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = o.ImportAll(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, datacopy.PhaseFailed, o.Phase())
}
