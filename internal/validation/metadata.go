package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Metadata is the typed view of metadata.json. Fields the agent omitted stay
// at their zero value; pointers distinguish absent from zero.
type Metadata struct {
	TaskID               string         `json:"task_id"`
	Query                map[string]any `json:"query"`
	RowCount             *int           `json:"row_count"`
	Schema               []string       `json:"schema"`
	DedupKey             []string       `json:"dedup_key"`
	TotalsHandling       any            `json:"totals_handling"`
	RequestStats         *RequestStats  `json:"request_stats,omitempty"`
	ExecutionTimeSeconds *float64       `json:"execution_time_seconds,omitempty"`
	Notes                string         `json:"notes,omitempty"`
}

// RequestStats is the request accounting an agent reports about its run.
type RequestStats struct {
	RequestsTotal *int `json:"requests_total"`
	Retries429    int  `json:"retries_429"`
	Retries500    int  `json:"retries_500"`
	PagesFetched  int  `json:"pages_fetched"`
}

// DecodeMetadata converts a decoded metadata document into Metadata. Fields
// that fail to convert are left unset and reported in the returned error; the
// Metadata is never nil.
func DecodeMetadata(raw map[string]any) (*Metadata, error) {
	md := &Metadata{}
	err := decodeInto(raw, md)
	return md, err
}

// DecodeRecord converts one parsed data.jsonl object into a Record.
func DecodeRecord(obj map[string]any) (records.Record, error) {
	var rec records.Record
	if err := decodeInto(obj, &rec); err != nil {
		return records.Record{}, err
	}
	return rec, nil
}

func decodeInto(input, result any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: jsonNumberHook,
		TagName:    "json",
		Result:     result,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// jsonNumberHook lets integral floats such as 6.0 fill integer fields, which
// some JSON writers emit for counters.
func jsonNumberHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	n, ok := data.(json.Number)
	if !ok {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil || f != float64(int64(f)) {
			return nil, fmt.Errorf("expected integer, got %s", n)
		}
		return int64(f), nil
	case reflect.Float32, reflect.Float64:
		return n.Float64()
	}
	return data, nil
}

// SameValue compares two JSON values by type and value. Numbers match only
// when both are integers or both are non-integers; a numeric year never
// equals its string form.
func SameValue(want, got any) bool {
	wk, wv := normalize(want)
	gk, gv := normalize(got)
	return wk == gk && wv == gv
}

func normalize(v any) (string, string) {
	switch x := v.(type) {
	case nil:
		return "null", ""
	case string:
		return "string", x
	case bool:
		return "bool", strconv.FormatBool(x)
	case int:
		return "int", strconv.Itoa(x)
	case int64:
		return "int", strconv.FormatInt(x, 10)
	case float64:
		return "float", strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		if i, err := x.Int64(); err == nil && !strings.ContainsAny(x.String(), ".eE") {
			return "int", strconv.FormatInt(i, 10)
		}
		if f, err := x.Float64(); err == nil {
			return "float", strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "number", x.String()
	default:
		return fmt.Sprintf("%T", v), fmt.Sprint(v)
	}
}

func describe(v any) string {
	kind, val := normalize(v)
	if kind == "string" {
		return strconv.Quote(val) + " (string)"
	}
	return val + " (" + kind + ")"
}

// evidence is a log pattern: required must appear, and at least one of anyOf
// when anyOf is set. Matching is case-insensitive.
type evidence struct {
	required string
	anyOf    []string
}

func (e evidence) matches(log string) bool {
	log = strings.ToLower(log)
	if !strings.Contains(log, e.required) {
		return false
	}
	if len(e.anyOf) == 0 {
		return true
	}
	for _, p := range e.anyOf {
		if strings.Contains(log, p) {
			return true
		}
	}
	return false
}

func (e evidence) String() string {
	if len(e.anyOf) == 0 {
		return strconv.Quote(e.required)
	}
	return fmt.Sprintf("%q and one of %q", e.required, e.anyOf)
}

var faultEvidence = map[tasks.FaultMode]evidence{
	tasks.ModeRateLimit:   {required: "429", anyOf: []string{"retry", "backoff"}},
	tasks.ModeServerError: {required: "500", anyOf: []string{"retry"}},
	tasks.ModeTotalsTrap:  {required: "totals"},
}

// RequiresEvidence reports whether the fault mode demands log evidence.
func RequiresEvidence(mode tasks.FaultMode) bool {
	_, ok := faultEvidence[mode]
	return ok
}

// HasEvidence reports whether log contains the evidence the mode demands.
// Modes without an evidence rule always pass.
func HasEvidence(mode tasks.FaultMode, log string) bool {
	ev, ok := faultEvidence[mode]
	return !ok || ev.matches(log)
}
