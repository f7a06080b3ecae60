package param

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightbus/internal/metrics"
	"flightbus/internal/tracing"
)

func newTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("FMS", map[string]float32{"THROTTLE_DZ": 0.15, "XY_P": 0.95}))
	require.NoError(t, tbl.Register("CONTROL", map[string]float32{"ROLL_P": 7}))
	return tbl
}

func TestTable(t *testing.T) {
	tbl := newTable(t)

	v, err := tbl.GetFloat("FMS", "XY_P")
	require.NoError(t, err)
	assert.Equal(t, float32(0.95), v)

	_, err = tbl.GetFloat("FMS", "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.GetFloat("INS", "XY_P")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tbl.Set("FMS", "XY_P", 1.2))
	assert.ErrorIs(t, tbl.Set("FMS", "NOPE", 1), ErrNotFound)

	// re-registering keeps tuned values
	require.NoError(t, tbl.Register("FMS", map[string]float32{"XY_P": 0.95, "Z_P": 1}))
	v, _ = tbl.GetFloat("FMS", "XY_P")
	assert.Equal(t, float32(1.2), v)
	v, _ = tbl.GetFloat("FMS", "Z_P")
	assert.Equal(t, float32(1), v)

	assert.Equal(t, []string{"CONTROL", "FMS"}, tbl.Groups())
	assert.ErrorIs(t, tbl.Register("", nil), ErrInvalidName)
}

func TestReset(t *testing.T) {
	tbl := newTable(t)
	require.NoError(t, tbl.Set("FMS", "XY_P", 1.2))
	require.NoError(t, tbl.Set("CONTROL", "ROLL_P", 9))

	require.NoError(t, tbl.Reset("FMS"))
	v, _ := tbl.GetFloat("FMS", "XY_P")
	assert.Equal(t, float32(0.95), v)
	v, _ = tbl.GetFloat("CONTROL", "ROLL_P")
	assert.Equal(t, float32(9), v)

	assert.ErrorIs(t, tbl.Reset("INS"), ErrNotFound)
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "params.yaml",
			content: `FMS:
  XY_P: 2
  THROTTLE_DZ: 0.25
CONTROL:
  ROLL_P: 5.5
  UNKNOWN: 1
`,
		},
		{
			name: "toml",
			file: "params.toml",
			content: `[FMS]
XY_P = 2
THROTTLE_DZ = 0.25

[CONTROL]
ROLL_P = 5.5
UNKNOWN = 1
`,
		},
		{
			name:    "json",
			file:    "params.json",
			content: `{"FMS": {"XY_P": 2, "THROTTLE_DZ": 0.25}, "CONTROL": {"ROLL_P": 5.5, "UNKNOWN": 1}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			tbl := newTable(t)
			require.NoError(t, tbl.LoadFile(path))

			v, _ := tbl.GetFloat("FMS", "XY_P")
			assert.Equal(t, float32(2), v)
			v, _ = tbl.GetFloat("FMS", "THROTTLE_DZ")
			assert.Equal(t, float32(0.25), v)
			v, _ = tbl.GetFloat("CONTROL", "ROLL_P")
			assert.Equal(t, float32(5.5), v)
			_, err := tbl.GetFloat("CONTROL", "UNKNOWN")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFile(filepath.Join(dir, "params.ini"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("FMS:\n  XY_P: fast\n"), 0o600))
	_, err = ReadFile(bad)
	assert.Error(t, err)
}

func TestEncodeReadsBack(t *testing.T) {
	values := Values{"FMS": {"XY_P": 0.5, "Z_P": 2}}
	dir := t.TempDir()

	for _, format := range []string{"yaml", "json", "toml"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(dir, "params."+format)
			f, err := os.Create(path)
			require.NoError(t, err)
			require.NoError(t, Encode(f, values, format))
			require.NoError(t, f.Close())

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, values, got)
		})
	}

	assert.Error(t, Encode(os.Stdout, values, "ini"))
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "FMS", map[string]float32{"XY_P": 3}))

	tbl := newTable(t)
	require.NoError(t, Sync(ctx, store, tbl))

	// stored group wins
	v, _ := tbl.GetFloat("FMS", "XY_P")
	assert.Equal(t, float32(3), v)

	// missing group is seeded from the table
	seeded, err := store.Fetch(ctx, "CONTROL")
	require.NoError(t, err)
	assert.Equal(t, map[string]float32{"ROLL_P": 7}, seeded)
}

func TestDecoratedStore(t *testing.T) {
	ctx := context.Background()
	registry := metrics.NewRegistry()
	store := NewTracedStore(NewMetricsStore(NewMemoryStore(), registry), tracing.NewNoop())

	_, err := store.Fetch(ctx, "FMS")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "FMS", map[string]float32{"XY_P": 1}))
	values, err := store.Fetch(ctx, "FMS")
	require.NoError(t, err)
	assert.Equal(t, float32(1), values["XY_P"])

	require.NoError(t, store.Delete(ctx, "FMS"))
	require.NoError(t, store.Delete(ctx, "FMS"))
	_, err = store.Fetch(ctx, "FMS")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := testutil.GatherAndCount(registry.Gatherer(), "flightbus_database_operation_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
