// Package fixtures produces the ground-truth record sets served by the mock
// API and compared against by the judge.
package fixtures

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Set is the complete fixture for one task.
type Set struct {
	TaskID string
	// Records are the logical rows in canonical order, totals excluded.
	Records []records.Record
	// Totals are world-total rows the mock API mixes into totals_trap pages.
	Totals []records.Record
}

// Source loads fixture sets.
type Source interface {
	Load(def tasks.Definition) (*Set, error)
}

// Generator builds fixtures deterministically from the task definition.
type Generator struct{}

// Load implements Source.
func (Generator) Load(def tasks.Definition) (*Set, error) {
	return Generate(def), nil
}

// Generate returns the deterministic fixture for def. Values derive from an
// FNV hash of the task id and row index, so every run produces the same rows.
func Generate(def tasks.Definition) *Set {
	q := def.Query
	set := &Set{TaskID: def.ID, Records: make([]records.Record, 0, def.Constraints.TotalRows)}

	for i := range def.Constraints.TotalRows {
		h := rowHash(def.ID, i)
		set.Records = append(set.Records, records.Record{
			Year:       q.Year,
			Reporter:   q.Reporter,
			Partner:    q.Partner,
			Flow:       q.Flow,
			HS:         q.HS,
			TradeValue: int64(h%5_000_000) + 1_000,
			NetWeight:  int64((h>>22)%100_000) + 1,
			Qty:        int64((h>>44)%10_000) + 1,
			RecordID:   fmt.Sprintf("%s_%05d", def.ID, i+1),
		})
	}
	records.SortCanonical(set.Records)

	for k := range def.Constraints.TotalsRows {
		set.Totals = append(set.Totals, records.Record{
			Year:       q.Year,
			Reporter:   q.Reporter,
			Partner:    records.TotalsPartner,
			Flow:       q.Flow,
			HS:         records.TotalsHS,
			TradeValue: sumTradeValue(set.Records, k, def.Constraints.TotalsRows),
			RecordID:   fmt.Sprintf("%s_TOTAL_%02d", def.ID, k+1),
			IsTotal:    true,
		})
	}
	return set
}

// sumTradeValue aggregates every n-th record starting at k.
func sumTradeValue(recs []records.Record, k, n int) int64 {
	var sum int64
	for i := k; i < len(recs); i += n {
		sum += recs[i].TradeValue
	}
	return sum
}

func rowHash(taskID string, i int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(taskID)) //nolint:errcheck
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i))
	h.Write(buf[:]) //nolint:errcheck
	return h.Sum64()
}

// Cached memoizes another Source per task id. Fixture sets are read-only once
// loaded, so callers share them.
type Cached struct {
	src Source

	mu   sync.Mutex
	sets map[string]*Set
}

// NewCached wraps src.
func NewCached(src Source) *Cached {
	return &Cached{src: src, sets: make(map[string]*Set)}
}

// Load implements Source.
func (c *Cached) Load(def tasks.Definition) (*Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sets[def.ID]; ok {
		return s, nil
	}
	s, err := c.src.Load(def)
	if err != nil {
		return nil, err
	}
	c.sets[def.ID] = s
	return s, nil
}
