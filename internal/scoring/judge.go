// Package scoring grades a purple agent's output directory on six gated
// dimensions against the task's ground truth.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
	"github.com/comtradebench/greenbench/internal/validation"
)

// Result is the outcome of one evaluation.
type Result struct {
	TaskID    string             `json:"task_id"`
	Total     float64            `json:"score_total"`
	Breakdown Breakdown          `json:"score_breakdown"`
	Raw       Breakdown          `json:"raw_breakdown"`
	Errors    []string           `json:"errors"`
	Details   map[string]any     `json:"details"`
	Issues    []validation.Issue `json:"issues,omitempty"`
}

// Judge scores output directories. It never mutates the ground truth.
type Judge struct {
	truth  fixtures.Source
	logger *slog.Logger
}

// NewJudge creates a judge reading ground truth from truth.
func NewJudge(truth fixtures.Source, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{truth: truth, logger: logger}
}

// Score evaluates dir for def. Malformed agent output only lowers the score;
// the error is reserved for internal faults such as an unreadable fixture.
func (j *Judge) Score(def tasks.Definition, dir string) (*Result, error) {
	set, err := j.truth.Load(def)
	if err != nil {
		return nil, fmt.Errorf("loading ground truth for %s: %w", def.ID, err)
	}

	out, issues := validation.ValidateOutput(dir, validation.ExpectTask(def))
	ev := &evaluation{def: def, truth: set.Records, out: out, details: make(map[string]any)}

	raw := Breakdown{
		Completeness:  ev.completeness(),
		Correctness:   ev.correctness(),
		Robustness:    ev.robustness(),
		Efficiency:    ev.efficiency(),
		DataQuality:   ev.dataQuality(),
		Observability: ev.observability(),
	}
	post := Gate(raw)

	ev.details["gates_applied"] = Gates(raw)
	ev.details["data_sha256"] = digest(out.DataBytes, out.Files[validation.DataFile])
	ev.details["metadata_sha256"] = digest(out.MetadataBytes, out.Files[validation.MetadataFile])

	errs := make([]string, 0, len(issues)+len(ev.errors))
	for _, is := range issues {
		errs = append(errs, is.String())
	}
	errs = append(errs, ev.errors...)

	res := &Result{
		TaskID:    def.ID,
		Total:     post.Sum(),
		Breakdown: post,
		Raw:       raw,
		Errors:    errs,
		Details:   ev.details,
		Issues:    issues,
	}
	j.logger.Debug("scored output",
		"task_id", def.ID,
		"dir", dir,
		"total", res.Total,
		"issues", len(issues),
	)
	return res, nil
}

func digest(data []byte, present bool) string {
	if !present {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonical drops totals rows and sorts by dedup key. Duplicates are kept so
// they count against the row-count check.
func canonical(recs []records.Record) ([]records.Record, int) {
	out, dropped := records.DropTotals(recs)
	records.SortCanonical(out)
	return out, dropped
}
