package fixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

func mustTask(t *testing.T, id string) tasks.Definition {
	t.Helper()
	d, err := tasks.Get(id)
	require.NoError(t, err)
	return d
}

func TestGenerate_Deterministic(t *testing.T) {
	def := mustTask(t, "T2_multi_page")
	a := Generate(def)
	b := Generate(def)
	assert.Equal(t, a, b)
	assert.Len(t, a.Records, def.Constraints.TotalRows)
	assert.True(t, records.IsCanonical(a.Records))
	assert.Empty(t, a.Totals)
}

func TestGenerate_MatchesQuery(t *testing.T) {
	def := mustTask(t, "T4_rate_limit_429")
	for _, r := range Generate(def).Records {
		assert.Equal(t, def.Query.Year, r.Year)
		assert.Equal(t, def.Query.Reporter, r.Reporter)
		assert.Equal(t, def.Query.Flow, r.Flow)
		assert.Positive(t, r.TradeValue)
		assert.False(t, r.IsTotalsRow())
	}
}

func TestGenerate_TotalsTrap(t *testing.T) {
	def := mustTask(t, "T7_totals_trap")
	set := Generate(def)
	assert.Len(t, set.Records, 800)
	require.Len(t, set.Totals, 5)
	for _, r := range set.Totals {
		assert.True(t, r.IsTotalsRow())
	}
}

func TestDirStore_RoundTripAllCompressions(t *testing.T) {
	def := mustTask(t, "T7_totals_trap")
	want := Generate(def)

	for _, c := range []Compression{CompressNone, CompressGzip, CompressZstd} {
		t.Run(string(c), func(t *testing.T) {
			dir := t.TempDir()
			_, err := Export(dir, want, c)
			require.NoError(t, err)

			got, err := DirStore{Dir: dir}.Load(def)
			require.NoError(t, err)
			assert.Equal(t, want.Records, got.Records)
			assert.Equal(t, want.Totals, got.Totals)
		})
	}
}

func TestDirStore_Missing(t *testing.T) {
	_, err := DirStore{Dir: t.TempDir()}.Load(mustTask(t, "T1_single_page"))
	require.Error(t, err)
}

type countingSource struct{ calls int }

func (c *countingSource) Load(def tasks.Definition) (*Set, error) {
	c.calls++
	return Generate(def), nil
}

func TestCached_LoadsOnce(t *testing.T) {
	src := &countingSource{}
	c := NewCached(src)
	def := mustTask(t, "T1_single_page")

	a, err := c.Load(def)
	require.NoError(t, err)
	b, err := c.Load(def)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, src.calls)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressNone, c)
	_, err = ParseCompression("brotli")
	require.Error(t, err)
}
