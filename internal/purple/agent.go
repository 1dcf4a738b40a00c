// Package purple is the baseline purple agent: it drains a task from the mock
// API, cleans the records and writes the output contract files.
package purple

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/comtradebench/greenbench/internal/assess"
	"github.com/comtradebench/greenbench/internal/paging"
	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
	"github.com/comtradebench/greenbench/internal/validation"
)

// TotalsRule describes how totals rows are recognized and dropped.
const TotalsRule = "drop rows with isTotal=true, partner=WLD and hs=TOTAL"

// ErrRetriesExhausted is returned when a page keeps failing after MaxRetries.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Config holds the agent settings.
type Config struct {
	MockURL string
	// OutputRoot receives one <task_id>/ directory per run.
	OutputRoot string
	Client     *http.Client
	// RetryBase is the first exponential backoff delay.
	RetryBase  time.Duration
	MaxRetries uint64
	// MaxBackoff caps every wait, including a server's Retry-After.
	MaxBackoff time.Duration
	// ReadyTimeout bounds the wait for the mock API to become healthy.
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// Stats is the request accounting reported in metadata.json.
type Stats struct {
	RequestsTotal int `json:"requests_total"`
	Retries429    int `json:"retries_429"`
	Retries500    int `json:"retries_500"`
	PagesFetched  int `json:"pages_fetched"`
}

// Report summarizes one run.
type Report struct {
	TaskID        string        `json:"task_id"`
	OutputDir     string        `json:"output_dir"`
	Rows          int           `json:"rows"`
	Passes        int           `json:"passes"`
	TotalsDropped int           `json:"totals_dropped"`
	Duplicates    int           `json:"duplicates_removed"`
	Stats         Stats         `json:"request_stats"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Agent runs tasks against one mock API.
type Agent struct {
	cfg        Config
	configurer *assess.HTTPConfigurer
	logger     *slog.Logger
}

// New creates an Agent, filling unset settings with defaults.
func New(cfg Config) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	cfg.MockURL = strings.TrimRight(cfg.MockURL, "/")

	c := assess.NewHTTPConfigurer(cfg.MockURL)
	c.Client = cfg.Client
	return &Agent{cfg: cfg, configurer: c, logger: cfg.Logger}
}

// WaitReady polls /healthz until the mock API answers or ReadyTimeout passes.
func (a *Agent) WaitReady(ctx context.Context) error {
	b := retry.WithMaxDuration(a.cfg.ReadyTimeout, retry.NewConstant(250*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.MockURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := a.cfg.Client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("mock API not ready: HTTP %d", resp.StatusCode))
		}
		return nil
	})
}

// Run configures the task, drains it and writes data.jsonl, metadata.json
// and run.log under OutputRoot/<task_id>. run.log is written even when the
// drain fails.
func (a *Agent) Run(ctx context.Context, def tasks.Definition) (*Report, error) {
	started := time.Now()
	dir := filepath.Join(a.cfg.OutputRoot, def.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	r := &run{agent: a, def: def, log: newRunLog(def.ID, a.logger)}
	r.log.Infof("task_id=%s start mode=%s paging=%s page_size=%d", def.ID, def.Fault.Mode, def.Constraints.PagingMode, def.Constraints.PageSize)

	if err := a.configurer.Configure(ctx, def); err != nil {
		r.log.Errorf("task_id=%s configure failed: %v", def.ID, err)
		return nil, errors.Join(err, r.log.WriteFile(dir))
	}

	raw, err := r.drain(ctx)
	if err != nil {
		r.log.Errorf("task_id=%s aborted after request=%d: %v", def.ID, r.stats.RequestsTotal, err)
		return nil, errors.Join(err, r.log.WriteFile(dir))
	}

	clean, dropped := records.DropTotals(raw)
	if dropped > 0 {
		r.log.Infof("task_id=%s totals: dropped %d totals rows (%s)", def.ID, dropped, TotalsRule)
	} else {
		r.log.Infof("task_id=%s totals: no totals rows found", def.ID)
	}
	deduped := records.Dedup(clean)
	dups := len(clean) - len(deduped)
	r.log.Infof("task_id=%s dedup: removed %d duplicate rows by key %s", def.ID, dups, strings.Join(records.DedupFields, ","))
	records.SortCanonical(deduped)

	elapsed := time.Since(started)
	rep := &Report{
		TaskID:        def.ID,
		OutputDir:     dir,
		Rows:          len(deduped),
		Passes:        r.passes,
		TotalsDropped: dropped,
		Duplicates:    dups,
		Stats:         r.stats,
		Elapsed:       elapsed,
	}
	r.log.Infof("task_id=%s complete rows=%d requests=%d retries_429=%d retries_500=%d", def.ID, rep.Rows, r.stats.RequestsTotal, r.stats.Retries429, r.stats.Retries500)

	if err := a.write(dir, def, deduped, rep); err != nil {
		return nil, err
	}
	if err := r.log.WriteFile(dir); err != nil {
		return nil, err
	}
	a.logger.Info("baseline run complete", "task_id", def.ID, "rows", rep.Rows, "requests", r.stats.RequestsTotal)
	return rep, nil
}

type run struct {
	agent  *Agent
	def    tasks.Definition
	log    *runLog
	stats  Stats
	passes int
}

// drain fetches every page once, or for page_drift repeats complete passes
// until a pass adds no unseen record.
func (r *run) drain(ctx context.Context) ([]records.Record, error) {
	maxPasses := 1
	if r.def.Fault.Mode == tasks.ModePageDrift {
		maxPasses = tasks.MaxDriftAttempts
	}

	var all []records.Record
	seen := make(map[records.DedupKey]struct{})
	for pass := 1; pass <= maxPasses; pass++ {
		r.passes = pass
		recs, err := r.pass(ctx, pass)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, rec := range recs {
			k := rec.Key()
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				added++
			}
		}
		all = append(all, recs...)

		if maxPasses == 1 {
			break
		}
		if pass > 1 && added == 0 {
			r.log.Infof("task_id=%s drift: pass %d added no new rows, union stable at %d rows", r.def.ID, pass, len(seen))
			break
		}
		if pass == maxPasses {
			r.log.Warnf("task_id=%s drift: pass limit %d reached with %d rows", r.def.ID, maxPasses, len(seen))
			break
		}
		r.log.Infof("task_id=%s drift: pass %d added %d new rows, re-fetching for canonical union", r.def.ID, pass, added)
	}
	return all, nil
}

func (r *run) pass(ctx context.Context, pass int) ([]records.Record, error) {
	var out []records.Record
	size := r.def.Constraints.PageSize
	for cursor := 0; ; cursor += size {
		page, err := r.fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		r.stats.PagesFetched++
		if !page.HasMore || len(page.Records) == 0 {
			r.log.Infof("task_id=%s pass=%d last page=%d has_more=false", r.def.ID, pass, page.Page)
			return out, nil
		}
	}
}

// fetch requests the page at cursor, retrying 429 and 500 responses with
// exponential backoff. A Retry-After header raises the next wait.
func (r *run) fetch(ctx context.Context, cursor int) (*paging.Page, error) {
	a := r.agent
	var hint time.Duration
	attempt := 0
	exhausted := false

	base := retry.WithMaxRetries(a.cfg.MaxRetries, retry.NewExponential(a.cfg.RetryBase))
	backoff := retry.WithCappedDuration(a.cfg.MaxBackoff, retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := base.Next()
		if stop {
			exhausted = true
			return 0, true
		}
		d = max(d, hint)
		hint = 0
		return d, false
	}))

	u := a.cfg.MockURL + "/records?" + r.values(cursor).Encode()
	page, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*paging.Page, error) {
		attempt++
		r.stats.RequestsTotal++
		n := r.stats.RequestsTotal

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := a.cfg.Client.Do(req)
		if err != nil {
			r.log.Warnf("task_id=%s request=%d offset=%d transport error: %v, retrying", r.def.ID, n, cursor, err)
			return nil, retry.RetryableError(err)
		}
		defer resp.Body.Close() //nolint:errcheck

		switch resp.StatusCode {
		case http.StatusOK:
			var p paging.Page
			if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
				return nil, fmt.Errorf("decoding page at offset %d: %w", cursor, err)
			}
			r.log.Infof("task_id=%s page=%d request=%d status=200 rows=%d has_more=%t", r.def.ID, p.Page, n, len(p.Records), p.HasMore)
			return &p, nil
		case http.StatusTooManyRequests:
			r.stats.Retries429++
			hint = retryAfter(resp.Header.Get("Retry-After"))
			r.log.Warnf("task_id=%s request=%d status=429 HTTP 429 received, retrying with backoff (attempt %d/%d, retry_after=%s)", r.def.ID, n, attempt, a.cfg.MaxRetries, hint)
			return nil, retry.RetryableError(fmt.Errorf("HTTP 429 at offset %d", cursor))
		case http.StatusInternalServerError:
			r.stats.Retries500++
			r.log.Warnf("task_id=%s request=%d status=500 HTTP 500 received, retrying with backoff (attempt %d/%d)", r.def.ID, n, attempt, a.cfg.MaxRetries)
			return nil, retry.RetryableError(fmt.Errorf("HTTP 500 at offset %d", cursor))
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("HTTP %d at offset %d: %s", resp.StatusCode, cursor, strings.TrimSpace(string(msg)))
		}
	})
	if err != nil {
		if exhausted {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}
		return nil, err
	}
	return page, nil
}

// values builds the /records query: the task query plus page or offset
// addressing.
func (r *run) values(cursor int) url.Values {
	q := r.def.Query
	v := url.Values{}
	v.Set("task_id", r.def.ID)
	v.Set("reporter", q.Reporter)
	v.Set("partner", q.Partner)
	v.Set("flow", q.Flow)
	v.Set("hs", q.HS)
	v.Set("year", strconv.Itoa(q.Year))

	size := r.def.Constraints.PageSize
	if r.def.Constraints.PagingMode == tasks.PagingOffset {
		v.Set("offset", strconv.Itoa(cursor))
		v.Set("maxRecords", strconv.Itoa(size))
	} else {
		v.Set("page", strconv.Itoa(cursor/size+1))
		v.Set("page_size", strconv.Itoa(size))
	}
	return v
}

// retryAfter parses a delta-seconds Retry-After value.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func (a *Agent) write(dir string, def tasks.Definition, recs []records.Record, rep *Report) error {
	f, err := os.Create(filepath.Join(dir, validation.DataFile))
	if err != nil {
		return err
	}
	if err := records.WriteJSONL(f, recs); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("writing %s: %w", validation.DataFile, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	md := newMetadata(def, rep, a.cfg)
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, validation.MetadataFile), append(b, '\n'), 0o644)
}
