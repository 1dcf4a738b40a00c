package paging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comtradebench/greenbench/internal/faults"
	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

func mustTask(t *testing.T, id string) tasks.Definition {
	t.Helper()
	d, err := tasks.Get(id)
	require.NoError(t, err)
	return d
}

func newPaginator() *Paginator {
	return New(faults.NewEngine(), fixtures.NewCached(fixtures.Generator{}))
}

// drain walks every page once, retrying transport faults on the same cursor.
func drain(t *testing.T, p *Paginator, def tasks.Definition) ([]records.Record, int) {
	t.Helper()
	var out []records.Record
	requests := 0
	cursor := 0
	for {
		requests++
		require.Less(t, requests, 100, "drain did not terminate")
		page, d, err := p.FetchPage(context.Background(), def, cursor)
		require.NoError(t, err)
		if d.IsError() {
			require.Empty(t, page.Records)
			require.Equal(t, cursor, page.Offset)
			continue
		}
		out = append(out, page.Records...)
		if !page.HasMore {
			return out, requests
		}
		cursor = page.NextOffset
	}
}

func TestFetchPage_SinglePage(t *testing.T) {
	def := mustTask(t, "T1_single_page")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	page, d, err := p.FetchPage(context.Background(), def, 0)
	require.NoError(t, err)
	assert.Equal(t, faults.Pass, d)
	assert.Len(t, page.Records, 120)
	assert.False(t, page.HasMore)
	assert.Equal(t, 1, page.Page)
}

func TestFetchPage_ShortFinalPage(t *testing.T) {
	def := mustTask(t, "T2_multi_page")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	got, requests := drain(t, p, def)
	assert.Equal(t, 3, requests)
	assert.Len(t, got, 1200)

	last, _, err := p.FetchPage(context.Background(), def, 1000)
	require.NoError(t, err)
	assert.Len(t, last.Records, 200)
	assert.False(t, last.HasMore)
}

func TestFetchPage_CursorPastEnd(t *testing.T) {
	def := mustTask(t, "T2_multi_page")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	page, _, err := p.FetchPage(context.Background(), def, 5000)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.False(t, page.HasMore)
}

func TestFetchPage_NegativeCursor(t *testing.T) {
	def := mustTask(t, "T1_single_page")
	_, _, err := newPaginator().FetchPage(context.Background(), def, -1)
	require.Error(t, err)
}

func TestFetchPage_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newPaginator().FetchPage(ctx, mustTask(t, "T1_single_page"), 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchPage_TransportFaultsRetrySameCursor(t *testing.T) {
	for _, id := range []string{"T4_rate_limit_429", "T5_server_error_500"} {
		t.Run(id, func(t *testing.T) {
			def := mustTask(t, id)
			p := newPaginator()
			require.NoError(t, p.Configure(def))

			got, requests := drain(t, p, def)
			assert.Equal(t, def.Constraints.BaselineRequests, requests)
			truth := fixtures.Generate(def).Records
			assert.Equal(t, truth, got)
		})
	}
}

func TestFetchPage_FaultCarriesRequestIndex(t *testing.T) {
	def := mustTask(t, "T4_rate_limit_429")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	var got []int
	for i := range 5 {
		page, d, err := p.FetchPage(context.Background(), def, 0)
		require.NoError(t, err)
		assert.Equal(t, i, page.RequestIndex)
		if d.IsError() {
			assert.Empty(t, page.Records)
			assert.False(t, page.HasMore)
			got = append(got, page.RequestIndex)
		}
	}
	assert.Equal(t, def.Fault.Schedule, got)
}

func TestFetchPage_DedupIdempotent(t *testing.T) {
	def := mustTask(t, "T3_duplicates")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	got, requests := drain(t, p, def)
	assert.Equal(t, 3, requests)
	assert.Greater(t, len(got), def.Constraints.TotalRows)

	once := records.Canonicalize(got)
	assert.Equal(t, fixtures.Generate(def).Records, once)
	assert.Equal(t, once, records.Canonicalize(once))
}

func TestFetchPage_DuplicateFirstPage(t *testing.T) {
	all := fixtures.Generate(mustTask(t, "T3_duplicates")).Records
	out := duplicate(all, 0, 200, 200, 50)
	assert.Len(t, out, 250)
	assert.Len(t, records.Dedup(out), 200)
}

func TestFetchPage_DriftConvergesWithinBound(t *testing.T) {
	def := mustTask(t, "T6_page_drift")
	p := newPaginator()
	require.NoError(t, p.Configure(def))
	truth := fixtures.Generate(def).Records

	union := map[records.DedupKey]records.Record{}
	passes := 0
	for passes < tasks.MaxDriftAttempts {
		before := len(union)
		got, _ := drain(t, p, def)
		passes++
		for _, r := range got {
			union[r.Key()] = r
		}
		if passes > 1 && len(union) == before {
			break
		}
	}

	assert.LessOrEqual(t, passes, tasks.MaxDriftAttempts)
	assert.Len(t, union, len(truth))
	for _, r := range truth {
		assert.Equal(t, r, union[r.Key()])
	}
	assert.True(t, p.Stats(def).Complete)
	assert.Equal(t, def.Constraints.BaselineRequests, p.Stats(def).Faults.Requests)
}

func TestFetchPage_DriftFirstPassIncomplete(t *testing.T) {
	def := mustTask(t, "T6_page_drift")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	got, _ := drain(t, p, def)
	assert.Less(t, len(records.Dedup(got)), def.Constraints.TotalRows)
	assert.False(t, p.Stats(def).Complete)
}

func TestFetchPage_DriftPermutationDeterministic(t *testing.T) {
	all := fixtures.Generate(mustTask(t, "T6_page_drift")).Records
	a, lo, hi := drift(all, 0, 200, 7, 2)
	b, _, _ := drift(all, 0, 200, 7, 2)
	assert.Equal(t, a, b)
	assert.Equal(t, 7, lo)
	assert.Equal(t, 207, hi)
	assert.False(t, records.IsCanonical(a))
}

func TestFetchPage_TotalsBoundToPages(t *testing.T) {
	def := mustTask(t, "T7_totals_trap")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	got, requests := drain(t, p, def)
	assert.Equal(t, 4, requests)
	assert.Len(t, got, 805)

	clean, dropped := records.DropTotals(got)
	assert.Equal(t, 5, dropped)
	assert.Equal(t, fixtures.Generate(def).Records, clean)
}

func TestConfigure_ResetsSession(t *testing.T) {
	def := mustTask(t, "T4_rate_limit_429")
	p := newPaginator()
	require.NoError(t, p.Configure(def))

	_, d, err := p.FetchPage(context.Background(), def, 0)
	require.NoError(t, err)
	assert.Equal(t, faults.HTTP429, d)

	require.NoError(t, p.Configure(def))
	st := p.Stats(def)
	assert.Zero(t, st.Faults.Requests)
	assert.Zero(t, st.PagesServed)
	assert.Zero(t, st.Covered)

	_, d, err = p.FetchPage(context.Background(), def, 0)
	require.NoError(t, err)
	assert.Equal(t, faults.HTTP429, d)
}
