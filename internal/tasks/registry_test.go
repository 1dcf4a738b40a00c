package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_HasSevenTasks(t *testing.T) {
	ids := IDs()
	require.Len(t, ids, 7)
	assert.Equal(t, "T1_single_page", ids[0])
	assert.Equal(t, "T7_totals_trap", ids[6])
}

func TestRegistry_EveryModeCovered(t *testing.T) {
	seen := map[FaultMode]bool{}
	for _, d := range All() {
		seen[d.Fault.Mode] = true
		require.NoError(t, check(d), d.ID)
	}
	for _, m := range Modes {
		assert.True(t, seen[m], "no task uses mode %s", m)
	}
}

func TestGet_Unknown(t *testing.T) {
	_, err := Get("T99_nope")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestGet_ReturnsCopy(t *testing.T) {
	d, err := Get("T4_rate_limit_429")
	require.NoError(t, err)
	d.Fault.Schedule[0] = 99

	again, err := Get("T4_rate_limit_429")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, again.Fault.Schedule)
}

func TestDefinition_Pages(t *testing.T) {
	tests := []struct {
		id    string
		pages int
	}{
		{"T1_single_page", 1},
		{"T2_multi_page", 3},
		{"T6_page_drift", 4},
		{"T7_totals_trap", 4},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, err := Get(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.pages, d.Pages())
		})
	}
}

func TestParseFaultMode(t *testing.T) {
	m, err := ParseFaultMode(" Rate_Limit ")
	require.NoError(t, err)
	assert.Equal(t, ModeRateLimit, m)

	m, err = ParseFaultMode("pagination")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, m)

	_, err = ParseFaultMode("chaos")
	require.Error(t, err)
}

func TestCheck_RejectsDriftOutsideWindow(t *testing.T) {
	d, err := Get("T6_page_drift")
	require.NoError(t, err)
	d.Fault.Schedule = append(d.Fault.Schedule, (MaxDriftAttempts-1)*d.Pages())
	require.Error(t, check(d))
}

func TestQuery_MapKeepsYearNumeric(t *testing.T) {
	d, err := Get("T2_multi_page")
	require.NoError(t, err)
	m := d.Query.Map()
	assert.Equal(t, 2021, m["year"])
	assert.Len(t, m, len(QueryKeys))
}
