package scoring

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
	"github.com/comtradebench/greenbench/internal/validation"
)

// SlowRunSeconds is the execution time above which efficiency loses SlowRunPenalty.
const (
	SlowRunSeconds = 45.0
	SlowRunPenalty = 3.0
)

// Correctness components.
const (
	rowCountPoints    = 10.0
	rowMatchPoints    = 15.0
	queryPoints       = 5.0
	totalsRowPenalty  = 5.0
	totalsNotePenalty = 3.0
)

// observabilityTokens must each appear in run.log as a whole word.
var observabilityTokens = []struct {
	name string
	re   *regexp.Regexp
}{
	{"task_id", regexp.MustCompile(`(?i)\btask_id\b`)},
	{"page", regexp.MustCompile(`(?i)\bpage\b`)},
	{"request", regexp.MustCompile(`(?i)\brequest\b`)},
	{"complete", regexp.MustCompile(`(?i)\bcomplete\b`)},
}

// requestLine matches a run.log line that records one HTTP request.
var requestLine = regexp.MustCompile(`(?im)^.*\brequest\b.*$`)

// handlingHints are the log words that show an agent noticed the fault of a
// mode without transport errors.
var handlingHints = map[tasks.FaultMode][]string{
	tasks.ModeNone:       {"has_more", "page"},
	tasks.ModeDuplicates: {"dedup", "duplicate"},
	tasks.ModeTotalsTrap: {"totals"},
}

type evaluation struct {
	def     tasks.Definition
	truth   []records.Record
	out     *validation.Output
	details map[string]any
	errors  []string
}

func (e *evaluation) errorf(format string, args ...any) {
	e.errors = append(e.errors, fmt.Sprintf(format, args...))
}

// completeness: 3 points per file and 1 per required metadata field.
func (e *evaluation) completeness() float64 {
	o := e.out
	score := 0.0
	if o.Files[validation.DataFile] && o.DataLines > 0 {
		score += 3 * float64(o.ParsedLines) / float64(o.DataLines)
	}
	if o.Metadata != nil {
		score += 3
	}
	if o.LogOK {
		score += 3
	}
	for _, f := range validation.MetadataFields {
		if o.FieldOK[f] {
			score++
		}
	}
	return clamp(score, 0, MaxCompleteness)
}

func (e *evaluation) correctness() float64 {
	subs, totalsRows := canonical(e.out.Records)
	e.details["row_count_actual"] = len(subs)
	e.details["row_count_expected"] = len(e.truth)
	e.details["totals_rows_present"] = totalsRows
	if md := e.out.Metadata; md != nil && md.RowCount != nil {
		e.details["row_count_declared"] = *md.RowCount
	} else {
		e.details["row_count_declared"] = nil
	}

	matched := matchRows(e.truth, subs)
	e.details["rows_matched"] = matched
	queryOK := e.queryMatches()
	e.details["query_match"] = queryOK

	if matched == 0 && !queryOK {
		e.errorf("no matching rows and query mismatch")
		return 0
	}

	score := 0.0
	if len(subs) == len(e.truth) {
		score += rowCountPoints
	}
	if len(e.truth) > 0 {
		score += rowMatchPoints * float64(matched) / float64(len(e.truth))
	}
	if queryOK {
		score += queryPoints
	}

	if e.def.Fault.Mode == tasks.ModeTotalsTrap {
		if totalsRows > 0 {
			e.errorf("%d totals rows present in data.jsonl", totalsRows)
			score -= totalsRowPenalty
		}
		var handling any
		if md := e.out.Metadata; md != nil {
			handling = md.TotalsHandling
		}
		if !totalsReported(handling) {
			e.errorf("metadata.totals_handling does not report dropped totals rows")
			score -= totalsNotePenalty
		}
	}
	return clamp(score, 0, MaxCorrectness)
}

// matchRows counts submitted rows equal to a ground-truth row, each truth row
// matching at most once.
func matchRows(truth, subs []records.Record) int {
	remaining := make(map[records.Record]int, len(truth))
	for _, r := range truth {
		remaining[r]++
	}
	matched := 0
	for _, r := range subs {
		if remaining[r] > 0 {
			remaining[r]--
			matched++
		}
	}
	return matched
}

func (e *evaluation) queryMatches() bool {
	md := e.out.Metadata
	if md == nil || md.Query == nil {
		return false
	}
	want := e.def.Query.Map()
	for _, k := range tasks.QueryKeys {
		if !validation.SameValue(want[k], md.Query[k]) {
			return false
		}
	}
	return true
}

// totalsReported accepts a string mentioning the drop, or an object with
// enabled=true or a positive rows_dropped.
func totalsReported(v any) bool {
	switch h := v.(type) {
	case string:
		s := strings.ToLower(h)
		return strings.Contains(s, "drop") || strings.Contains(s, "exclud") || strings.Contains(s, "remov")
	case map[string]any:
		if enabled, ok := h["enabled"].(bool); ok && enabled {
			return true
		}
		switch n := h["rows_dropped"].(type) {
		case json.Number:
			f, err := n.Float64()
			return err == nil && f > 0
		case float64:
			return n > 0
		case int:
			return n > 0
		}
	}
	return false
}

func (e *evaluation) robustness() float64 {
	mode := e.def.Fault.Mode
	log := e.out.Log

	if mode.IsTransportFault() {
		if validation.HasEvidence(mode, log) {
			return MaxRobustness
		}
		e.errorf("no evidence of %s handling in run.log", mode)
		return 0
	}

	if !e.out.LogOK {
		return 0
	}
	// drift is handled when the rows arrive re-sorted, whatever the log says
	if mode == tasks.ModePageDrift {
		e.details["canonical_order"] = e.out.Canonical
		if e.out.Canonical {
			return MaxRobustness
		}
		return 0
	}
	lower := strings.ToLower(log)
	for _, hint := range handlingHints[mode] {
		if strings.Contains(lower, hint) {
			return MaxRobustness
		}
	}
	return MaxRobustness / 2
}

func (e *evaluation) efficiency() float64 {
	baseline := e.def.Constraints.BaselineRequests
	e.details["baseline_requests"] = baseline

	requests, known := e.requestCount()
	if known {
		e.details["request_count"] = requests
	} else {
		e.details["request_count"] = nil
	}

	score := MaxEfficiency / 2
	switch {
	case !known:
	case requests <= baseline:
		score = MaxEfficiency
	default:
		score = MaxEfficiency * float64(baseline) / float64(requests)
	}

	if md := e.out.Metadata; md != nil && md.ExecutionTimeSeconds != nil {
		e.details["execution_time_seconds"] = *md.ExecutionTimeSeconds
		if *md.ExecutionTimeSeconds > SlowRunSeconds {
			score -= SlowRunPenalty
		}
	}
	return clamp(score, 0, MaxEfficiency)
}

// requestCount prefers the agent's own accounting and falls back to counting
// request lines in run.log.
func (e *evaluation) requestCount() (int, bool) {
	if md := e.out.Metadata; md != nil && md.RequestStats != nil && md.RequestStats.RequestsTotal != nil {
		if n := *md.RequestStats.RequestsTotal; n > 0 {
			return n, true
		}
	}
	if n := len(requestLine.FindAllString(e.out.Log, -1)); n > 0 {
		return n, true
	}
	return 0, false
}

func (e *evaluation) dataQuality() float64 {
	o := e.out
	if o.DataLines == 0 {
		return 0
	}
	valid := o.ValidRecords()
	e.details["data_valid_pct"] = 100 * float64(valid) / float64(o.DataLines)
	return MaxDataQuality * float64(valid) / float64(o.DataLines)
}

func (e *evaluation) observability() float64 {
	per := MaxObservability / float64(len(observabilityTokens))
	score := 0.0
	var missing []string
	for _, tok := range observabilityTokens {
		if tok.re.MatchString(e.out.Log) {
			score += per
		} else {
			missing = append(missing, tok.name)
		}
	}
	if len(missing) > 0 {
		e.errorf("run.log missing observability fields: %s", strings.Join(missing, ", "))
	}
	return score
}
