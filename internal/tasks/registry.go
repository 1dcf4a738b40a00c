package tasks

import (
	"fmt"
	"sort"
)

// MaxDriftAttempts bounds how many complete passes a page_drift client needs
// before the union of its canonicalized records equals ground truth. Every
// drift schedule index falls inside the first MaxDriftAttempts-1 passes.
const MaxDriftAttempts = 3

var registry = map[string]Definition{
	"T1_single_page": {
		ID:          "T1_single_page",
		Description: "All records fit in a single page",
		Query:       Query{Reporter: "USA", Partner: "CHN", Flow: "M", HS: "8517", Year: 2022},
		Fault:       FaultInjection{Mode: ModeNone},
		Constraints: Constraints{TotalRows: 120, PageSize: 500, PagingMode: PagingPage, MaxRequests: 10, BaselineRequests: 1},
	},
	"T2_multi_page": {
		ID:          "T2_multi_page",
		Description: "Records span several pages; stop exactly at the last page",
		Query:       Query{Reporter: "DEU", Partner: "FRA", Flow: "X", HS: "8703", Year: 2021},
		Fault:       FaultInjection{Mode: ModeNone},
		Constraints: Constraints{TotalRows: 1200, PageSize: 500, PagingMode: PagingPage, MaxRequests: 20, BaselineRequests: 3},
	},
	"T3_duplicates": {
		ID:          "T3_duplicates",
		Description: "Pages re-emit records from the previous page; deduplicate by dedup_key",
		Query:       Query{Reporter: "JPN", Partner: "KOR", Flow: "M", HS: "8542", Year: 2022},
		Fault:       FaultInjection{Mode: ModeDuplicates, Schedule: []int{1, 2}, DuplicateCount: 50},
		Constraints: Constraints{TotalRows: 600, PageSize: 200, PagingMode: PagingPage, MaxRequests: 20, BaselineRequests: 3},
	},
	"T4_rate_limit_429": {
		ID:          "T4_rate_limit_429",
		Description: "Some requests are rejected with HTTP 429; retry with backoff",
		Query:       Query{Reporter: "GBR", Partner: "USA", Flow: "X", HS: "3004", Year: 2023},
		Fault:       FaultInjection{Mode: ModeRateLimit, Schedule: []int{0, 1, 3}},
		Constraints: Constraints{TotalRows: 600, PageSize: 200, PagingMode: PagingPage, MaxRequests: 30, BaselineRequests: 6},
	},
	"T5_server_error_500": {
		ID:          "T5_server_error_500",
		Description: "Some requests fail with HTTP 500; retry with a bounded budget",
		Query:       Query{Reporter: "BRA", Partner: "ARG", Flow: "M", HS: "1201", Year: 2020},
		Fault:       FaultInjection{Mode: ModeServerError, Schedule: []int{1, 3}},
		Constraints: Constraints{TotalRows: 600, PageSize: 200, PagingMode: PagingOffset, MaxRequests: 30, BaselineRequests: 5},
	},
	"T6_page_drift": {
		ID:          "T6_page_drift",
		Description: "Page boundaries and ordering drift between fetches; re-fetch and sort canonically",
		Query:       Query{Reporter: "IND", Partner: "ARE", Flow: "X", HS: "7108", Year: 2022},
		Fault:       FaultInjection{Mode: ModePageDrift, Schedule: []int{0, 2, 5}, DriftShift: 7},
		Constraints: Constraints{TotalRows: 800, PageSize: 200, PagingMode: PagingPage, MaxRequests: 40, BaselineRequests: 12},
	},
	"T7_totals_trap": {
		ID:          "T7_totals_trap",
		Description: "World-total rows are mixed into the data; drop them and report totals_handling",
		Query:       Query{Reporter: "CAN", Partner: "MEX", Flow: "M", HS: "2709", Year: 2021},
		Fault:       FaultInjection{Mode: ModeTotalsTrap},
		Constraints: Constraints{TotalRows: 800, PageSize: 200, PagingMode: PagingPage, MaxRequests: 20, BaselineRequests: 4, TotalsRows: 5},
	},
}

func init() {
	for id, def := range registry {
		if err := check(def); err != nil {
			panic(fmt.Sprintf("task %s: %v", id, err))
		}
	}
}

// check enforces the registry's structural invariants at startup.
func check(d Definition) error {
	c := d.Constraints
	if c.TotalRows <= 0 || c.PageSize <= 0 {
		return fmt.Errorf("total_rows and page_size must be positive")
	}
	if c.BaselineRequests <= 0 {
		return fmt.Errorf("baseline_requests must be positive")
	}
	for _, idx := range d.Fault.Schedule {
		if idx < 0 {
			return fmt.Errorf("negative schedule index %d", idx)
		}
		if d.Fault.Mode == ModePageDrift && idx >= (MaxDriftAttempts-1)*d.Pages() {
			return fmt.Errorf("drift index %d outside the convergence window", idx)
		}
	}
	if d.Fault.Mode == ModeDuplicates && (d.Fault.DuplicateCount <= 0 || d.Fault.DuplicateCount > c.PageSize) {
		return fmt.Errorf("duplicate_count must be in (0, page_size]")
	}
	if d.Fault.Mode == ModeTotalsTrap && c.TotalsRows <= 0 {
		return fmt.Errorf("totals_trap needs totals_rows")
	}
	return nil
}

// Get returns the task with the given id.
func Get(id string) (Definition, error) {
	def, ok := registry[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return def.clone(), nil
}

// All returns every task sorted by id.
func All() []Definition {
	defs := make([]Definition, 0, len(registry))
	for _, d := range registry {
		defs = append(defs, d.clone())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// IDs returns every task id sorted.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
