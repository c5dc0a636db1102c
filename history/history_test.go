package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/datacopy"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSaveAndGet(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	results := datacopy.NewResults()
	results.Add(datacopy.StageImport, "qa", "Account", 10, 2)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &Run{
		Command:     "import",
		Source:      "dev",
		Destination: "qa",
		StartedAt:   started,
		FinishedAt:  started.Add(90 * time.Second),
		Bad:         2,
		Error:       "import failed",
		Results:     results,
	}

	require.NoError(t, s.Save(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "import", got.Command)
	assert.Equal(t, 2, got.Bad)
	assert.False(t, got.Succeeded())
	assert.Equal(t, 90*time.Second, got.Duration())
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, datacopy.Counts{Good: 10, Bad: 2}, got.Results.Get(datacopy.StageImport, "qa", "Account"))
}

func TestGet_NotFound(t *testing.T) {
	s, _ := openStore(t)

	_, err := s.Get(context.Background(), "missing")

	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSave_ReplacesExistingRun(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	run := &Run{ID: "run-1", Command: "full", StartedAt: time.Now()}
	require.NoError(t, s.Save(ctx, run))
	run.Bad = 5
	require.NoError(t, s.Save(ctx, run))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Bad)
}

func TestList_MostRecentFirst(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, cmd := range []string{"export", "import", "delete"} {
		require.NoError(t, s.Save(ctx, &Run{Command: cmd, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"delete", "import", "export"}},
		{"limited", 2, []string{"delete", "import"}},
		{"limit above count", 10, []string{"delete", "import", "export"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.List(ctx, tt.limit)
			require.NoError(t, err)

			var got []string
			for _, r := range runs {
				got = append(got, r.Command)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	s, path := openStore(t)
	require.NoError(t, s.Save(context.Background(), &Run{ID: "kept", Command: "full"}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	run, err := reopened.Get(context.Background(), "kept")
	require.NoError(t, err)
	assert.True(t, run.Succeeded())
}
