package purple

import (
	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Metadata is the metadata.json the baseline agent writes.
type Metadata struct {
	TaskID               string          `json:"task_id"`
	Query                map[string]any  `json:"query"`
	RowCount             int             `json:"row_count"`
	Schema               []string        `json:"schema"`
	DedupKey             []string        `json:"dedup_key"`
	SortedBy             []string        `json:"sorted_by"`
	PaginationStats      PaginationStats `json:"pagination_stats"`
	RequestStats         Stats           `json:"request_stats"`
	RetryPolicy          RetryPolicy     `json:"retry_policy"`
	TotalsHandling       TotalsHandling  `json:"totals_handling"`
	ExecutionTimeSeconds float64         `json:"execution_time_seconds"`
	Notes                string          `json:"notes"`
}

// PaginationStats describes how the task was paged.
type PaginationStats struct {
	Mode         tasks.PagingMode `json:"mode"`
	PageSize     int              `json:"page_size"`
	PagesFetched int              `json:"pages_fetched"`
	Passes       int              `json:"passes"`
	Duplicates   int              `json:"duplicates_removed"`
}

// RetryPolicy records the backoff settings used.
type RetryPolicy struct {
	MaxRetries         uint64  `json:"max_retries"`
	BaseBackoffSeconds float64 `json:"base_backoff_seconds"`
	MaxBackoffSeconds  float64 `json:"max_backoff_seconds"`
	HonorsRetryAfter   bool    `json:"honors_retry_after"`
	RetryOn            []int   `json:"retry_on"`
}

// TotalsHandling reports whether totals rows were dropped.
type TotalsHandling struct {
	Enabled     bool   `json:"enabled"`
	RowsDropped int    `json:"rows_dropped"`
	Rule        string `json:"rule"`
}

func newMetadata(def tasks.Definition, rep *Report, cfg Config) Metadata {
	return Metadata{
		TaskID:   def.ID,
		Query:    def.Query.Map(),
		RowCount: rep.Rows,
		Schema:   records.Fields,
		DedupKey: records.DedupFields,
		SortedBy: records.DedupFields,
		PaginationStats: PaginationStats{
			Mode:         def.Constraints.PagingMode,
			PageSize:     def.Constraints.PageSize,
			PagesFetched: rep.Stats.PagesFetched,
			Passes:       rep.Passes,
			Duplicates:   rep.Duplicates,
		},
		RequestStats: rep.Stats,
		RetryPolicy: RetryPolicy{
			MaxRetries:         cfg.MaxRetries,
			BaseBackoffSeconds: cfg.RetryBase.Seconds(),
			MaxBackoffSeconds:  cfg.MaxBackoff.Seconds(),
			HonorsRetryAfter:   true,
			RetryOn:            []int{429, 500},
		},
		TotalsHandling: TotalsHandling{
			Enabled:     true,
			RowsDropped: rep.TotalsDropped,
			Rule:        TotalsRule,
		},
		ExecutionTimeSeconds: rep.Elapsed.Seconds(),
		Notes:                "baseline agent: retries 429/500, dedups by dedup_key, drops totals rows, sorts canonically",
	}
}
