package faults

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comtradebench/greenbench/internal/tasks"
)

func mustTask(t *testing.T, id string) tasks.Definition {
	t.Helper()
	d, err := tasks.Get(id)
	require.NoError(t, err)
	return d
}

func sequence(e *Engine, def tasks.Definition, n int) []Decision {
	out := make([]Decision, n)
	for i := range n {
		out[i], _ = e.Next(def)
	}
	return out
}

func TestDecide_RateLimitSchedule(t *testing.T) {
	def := mustTask(t, "T4_rate_limit_429")
	got := sequence(NewEngine(), def, 6)
	assert.Equal(t, []Decision{HTTP429, HTTP429, Pass, HTTP429, Pass, Pass}, got)
}

func TestDecide_ServerErrorSchedule(t *testing.T) {
	def := mustTask(t, "T5_server_error_500")
	got := sequence(NewEngine(), def, 5)
	assert.Equal(t, []Decision{Pass, HTTP500, Pass, HTTP500, Pass}, got)
}

func TestDecide_PerMode(t *testing.T) {
	tests := []struct {
		id    string
		index int
		want  Decision
	}{
		{"T1_single_page", 0, Pass},
		{"T3_duplicates", 0, Pass},
		{"T3_duplicates", 1, DuplicatePage},
		{"T6_page_drift", 0, DriftedPage},
		{"T6_page_drift", 1, Pass},
		{"T7_totals_trap", 0, TotalsInjected},
		{"T7_totals_trap", 40, TotalsInjected},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(mustTask(t, tt.id), tt.index))
		})
	}
}

func TestEngine_DeterministicAcrossEngines(t *testing.T) {
	for _, def := range tasks.All() {
		a := sequence(NewEngine(), def, 20)
		b := sequence(NewEngine(), def, 20)
		assert.Equal(t, a, b, def.ID)
	}
}

func TestEngine_ResetAfterAbandonedSession(t *testing.T) {
	def := mustTask(t, "T4_rate_limit_429")
	fresh := sequence(NewEngine(), def, 6)

	e := NewEngine()
	e.Reset(def.ID)
	sequence(e, def, 2) // abandoned midway
	e.Reset(def.ID)
	assert.Equal(t, fresh, sequence(e, def, 6))
}

func TestEngine_IndicesIncrease(t *testing.T) {
	e := NewEngine()
	def := mustTask(t, "T1_single_page")
	for want := range 5 {
		_, idx := e.Next(def)
		assert.Equal(t, want, idx)
	}
	assert.Equal(t, FaultState{Requests: 5}, e.Snapshot(def.ID))
}

func TestEngine_TasksIsolatedUnderConcurrency(t *testing.T) {
	e := NewEngine()
	defs := tasks.All()
	var wg sync.WaitGroup
	for _, def := range defs {
		e.Reset(def.ID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				e.Next(def)
			}
		}()
	}
	wg.Wait()

	for _, def := range defs {
		assert.Equal(t, 50, e.Snapshot(def.ID).Requests, def.ID)
	}
}

func TestDecision_Helpers(t *testing.T) {
	assert.True(t, HTTP429.IsError())
	assert.False(t, DuplicatePage.IsError())
	assert.Equal(t, 500, HTTP500.StatusCode())
	assert.Equal(t, 200, TotalsInjected.StatusCode())
	assert.Equal(t, "drifted_page", DriftedPage.String())
}
