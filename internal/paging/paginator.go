// Package paging computes which slice of a task's records a /records call
// returns, composing the fault engine's decision into the page.
package paging

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/comtradebench/greenbench/internal/faults"
	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Page is one successful /records response.
type Page struct {
	TaskID       string           `json:"task_id"`
	Records      []records.Record `json:"data"`
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
	Offset       int              `json:"offset"`
	NextOffset   int              `json:"next_offset"`
	HasMore      bool             `json:"has_more"`
	Token        string           `json:"page_token"`
	RequestIndex int              `json:"request_index"`
}

// Stats summarizes one configure→drain session.
type Stats struct {
	TaskID        string            `json:"task_id"`
	Faults        faults.FaultState `json:"faults"`
	PagesServed   int               `json:"pages_served"`
	HighestCursor int               `json:"highest_cursor"`
	Covered       int               `json:"covered"`
	TotalRecords  int               `json:"total_records"`
	Complete      bool              `json:"complete"`
}

type session struct {
	pagesServed   int
	highestCursor int
	served        []bool
	covered       int
}

func (s *session) mark(lo, hi int) {
	for i := lo; i < hi && i < len(s.served); i++ {
		if !s.served[i] {
			s.served[i] = true
			s.covered++
		}
	}
}

// Paginator is the pagination state machine. Sessions are keyed by task id
// and isolated from each other.
type Paginator struct {
	faults *faults.Engine
	src    fixtures.Source

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a Paginator serving fixtures from src.
func New(engine *faults.Engine, src fixtures.Source) *Paginator {
	return &Paginator{
		faults:   engine,
		src:      src,
		sessions: make(map[string]*session),
	}
}

// Configure resets the fault state and pagination session of the task.
func (p *Paginator) Configure(def tasks.Definition) error {
	set, err := p.src.Load(def)
	if err != nil {
		return fmt.Errorf("loading fixture for %s: %w", def.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults.Reset(def.ID)
	p.sessions[def.ID] = &session{served: make([]bool, len(set.Records))}
	return nil
}

// FetchPage serves the page starting at cursor (a 0-based record offset).
// When the fault decision is an HTTP error the page carries no records, only
// the cursor and the request index, and the caller is expected to retry with
// the same cursor.
func (p *Paginator) FetchPage(ctx context.Context, def tasks.Definition, cursor int) (*Page, faults.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Pass, err
	}
	if cursor < 0 {
		return nil, faults.Pass, fmt.Errorf("cursor must be non-negative, got %d", cursor)
	}
	set, err := p.src.Load(def)
	if err != nil {
		return nil, faults.Pass, fmt.Errorf("loading fixture for %s: %w", def.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sess, ok := p.sessions[def.ID]
	if !ok {
		sess = &session{served: make([]bool, len(set.Records))}
		p.sessions[def.ID] = sess
	}

	decision, index := p.faults.Next(def)
	size := def.Constraints.PageSize
	if decision.IsError() {
		return &Page{
			TaskID:       def.ID,
			Page:         cursor/size + 1,
			PageSize:     size,
			Offset:       cursor,
			NextOffset:   cursor,
			Token:        fmt.Sprintf("%s:%d", def.ID, cursor),
			RequestIndex: index,
		}, decision, nil
	}

	total := len(set.Records)
	lo, hi := clamp(cursor, total), clamp(cursor+size, total)

	var data []records.Record
	switch decision {
	case faults.DuplicatePage:
		data = duplicate(set.Records, lo, hi, size, def.Fault.DuplicateCount)
		sess.mark(lo, hi)
	case faults.DriftedPage:
		var dlo, dhi int
		data, dlo, dhi = drift(set.Records, lo, size, def.Fault.DriftShift, index)
		sess.mark(dlo, dhi)
	case faults.TotalsInjected:
		data = injectTotals(set.Records[lo:hi], set.Totals, cursor/size, def.Pages())
		sess.mark(lo, hi)
	default:
		data = slices.Clone(set.Records[lo:hi])
		sess.mark(lo, hi)
	}

	sess.pagesServed++
	sess.highestCursor = max(sess.highestCursor, cursor)

	return &Page{
		TaskID:       def.ID,
		Records:      data,
		Page:         cursor/size + 1,
		PageSize:     size,
		Offset:       cursor,
		NextOffset:   cursor + size,
		HasMore:      cursor+size < total,
		Token:        fmt.Sprintf("%s:%d", def.ID, cursor),
		RequestIndex: index,
	}, decision, nil
}

// Stats reports the session bookkeeping for the task.
func (p *Paginator) Stats(def tasks.Definition) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		TaskID:       def.ID,
		Faults:       p.faults.Snapshot(def.ID),
		TotalRecords: def.Constraints.TotalRows,
	}
	if sess, ok := p.sessions[def.ID]; ok {
		st.PagesServed = sess.pagesServed
		st.HighestCursor = sess.highestCursor
		st.Covered = sess.covered
		st.TotalRecords = len(sess.served)
	}
	st.Complete = st.Covered == st.TotalRecords
	return st
}

func clamp(v, total int) int {
	return min(max(v, 0), total)
}

// duplicate interleaves the tail of the previous page into the current one.
// The first page has no predecessor and re-emits its own head instead.
func duplicate(all []records.Record, lo, hi, size, n int) []records.Record {
	cur := all[lo:hi]
	var src []records.Record
	if lo >= size {
		src = all[lo-size : lo]
	} else {
		src = cur
	}
	n = min(n, len(src))
	dups := src[len(src)-n:]
	if lo < size {
		dups = src[:n]
	}

	out := make([]records.Record, 0, len(cur)+len(dups))
	for i, r := range cur {
		out = append(out, r)
		if i < len(dups) {
			out = append(out, dups[i])
		}
	}
	if len(dups) > len(cur) {
		out = append(out, dups[len(cur):]...)
	}
	return out
}

// drift slides the page window forward by shift rows and permutes the result
// from the request index. It returns the window bounds actually served.
func drift(all []records.Record, lo, size, shift, index int) ([]records.Record, int, int) {
	total := len(all)
	dlo, dhi := clamp(lo+shift, total), clamp(lo+size+shift, total)
	out := slices.Clone(all[dlo:dhi])
	if len(out) == 0 {
		return out, dlo, dhi
	}
	k := (index*7 + 3) % len(out)
	out = slices.Concat(out[k:], out[:k])
	if index%2 == 1 {
		slices.Reverse(out)
	}
	return out, dlo, dhi
}

// injectTotals mixes the totals rows assigned to pageIdx into the page.
// Totals row k belongs to page k mod pages.
func injectTotals(page, totals []records.Record, pageIdx, pages int) []records.Record {
	var mine []records.Record
	for k, t := range totals {
		if pages > 0 && k%pages == pageIdx {
			mine = append(mine, t)
		}
	}
	out := make([]records.Record, 0, len(page)+len(mine))
	out = append(out, page...)
	for j, t := range mine {
		pos := (j*37 + pageIdx*11) % (len(out) + 1)
		out = slices.Insert(out, pos, t)
	}
	return out
}
