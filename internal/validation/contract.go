// Package validation checks a purple agent's output directory against the
// file contract: data.jsonl, metadata.json and run.log.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Code is a contract violation code. The set is closed.
type Code string

const (
	CodeMissingDir    Code = "E001"
	CodeMissingFile   Code = "E002"
	CodeInvalidJSON   Code = "E003"
	CodeRowCount      Code = "E004"
	CodeSchema        Code = "E005"
	CodeQuery         Code = "E006"
	CodeDedupKey      Code = "E007"
	CodeLogEvidence   Code = "E008"
	CodeRecordField   Code = "E009"
	CodeTotalsPresent Code = "E010"
	CodeTaskID        Code = "E011"
	CodeMetadataField Code = "E012"
	CodeOrder         Code = "E013"
)

// Codes lists every code in order.
var Codes = []Code{
	CodeMissingDir, CodeMissingFile, CodeInvalidJSON, CodeRowCount,
	CodeSchema, CodeQuery, CodeDedupKey, CodeLogEvidence,
	CodeRecordField, CodeTotalsPresent, CodeTaskID, CodeMetadataField,
	CodeOrder,
}

// Contract file names.
const (
	DataFile     = "data.jsonl"
	MetadataFile = "metadata.json"
	LogFile      = "run.log"
)

// RequiredFiles are the files every output directory must contain.
var RequiredFiles = []string{DataFile, MetadataFile, LogFile}

// MetadataFields are the metadata fields that earn completeness credit.
var MetadataFields = []string{"task_id", "query", "row_count", "schema", "dedup_key", "totals_handling"}

// MinLogChars is the minimum number of non-whitespace characters in run.log.
const MinLogChars = 10

// Issue is one contract violation.
type Issue struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return string(i.Code) + ": " + i.Message
}

// Expectation is what the output is checked against.
type Expectation struct {
	// TaskID defaults to the directory's base name.
	TaskID string
	// Query holds the expected query values. Nil skips the value comparison.
	Query map[string]any
	Mode  tasks.FaultMode
}

// ExpectTask builds the expectation for a registered task.
func ExpectTask(def tasks.Definition) Expectation {
	return Expectation{TaskID: def.ID, Query: def.Query.Map(), Mode: def.Fault.Mode}
}

// Output is the parsed content of an output directory. Everything the judge
// needs is here so the directory is read once.
type Output struct {
	Dir   string
	Files map[string]bool

	DataBytes     []byte
	MetadataBytes []byte

	// DataLines counts non-blank lines; ParsedLines those that are JSON objects.
	DataLines   int
	ParsedLines int
	// Raw holds the parsed objects with numbers kept as json.Number.
	Raw []map[string]any
	// RecordValid reports, per Raw entry, whether it passes the record schema.
	RecordValid []bool
	// Records holds the entries that decode into a Record, in file order.
	Records []records.Record
	// Canonical is true when Records is non-empty and, totals rows aside,
	// already sorted by dedup_key as submitted.
	Canonical bool

	MetadataRaw map[string]any
	Metadata    *Metadata
	// FieldOK reports, per MetadataFields entry, whether it is present and valid.
	FieldOK map[string]bool

	Log string
	// LogOK is true for UTF-8 logs with at least MinLogChars non-whitespace characters.
	LogOK bool
}

// ValidRecords counts records that passed the record schema.
func (o *Output) ValidRecords() int {
	n := 0
	for _, ok := range o.RecordValid {
		if ok {
			n++
		}
	}
	return n
}

// Validate checks dir and returns every violation found.
func Validate(dir string, exp Expectation) []Issue {
	_, issues := ValidateOutput(dir, exp)
	return issues
}

// ValidateOutput checks dir and returns the parsed artifacts with the
// violations. Checks never stop at the first failure.
func ValidateOutput(dir string, exp Expectation) (*Output, []Issue) {
	out := &Output{Dir: dir, Files: make(map[string]bool), FieldOK: make(map[string]bool)}
	var issues []Issue
	add := func(c Code, format string, args ...any) {
		issues = append(issues, Issue{Code: c, Message: defaultPrinter.Sprintf(format, args...)})
	}

	info, err := os.Stat(dir)
	if err != nil {
		add(CodeMissingDir, "missing output directory: %s", dir)
		return out, issues
	}
	if !info.IsDir() {
		add(CodeMissingDir, "path is not a directory: %s", dir)
		return out, issues
	}
	if exp.TaskID == "" {
		exp.TaskID = filepath.Base(filepath.Clean(dir))
	}

	read := func(name string) []byte {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			add(CodeMissingFile, "missing required file: %s", name)
			return nil
		}
		out.Files[name] = true
		return data
	}
	out.DataBytes = read(DataFile)
	out.MetadataBytes = read(MetadataFile)
	logBytes := read(LogFile)

	if out.Files[MetadataFile] {
		checkMetadata(out, exp, add)
	}
	if out.Files[DataFile] {
		checkData(out, add)
	}
	if out.Files[LogFile] {
		checkLog(out, logBytes, exp.Mode, add)
	}
	return out, issues
}

type addFunc func(c Code, format string, args ...any)

func checkMetadata(out *Output, exp Expectation, add addFunc) {
	if !utf8.Valid(out.MetadataBytes) {
		add(CodeInvalidJSON, "%s is not UTF-8", MetadataFile)
		return
	}
	dec := json.NewDecoder(bytes.NewReader(out.MetadataBytes))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		add(CodeInvalidJSON, "invalid JSON in %s: %v", MetadataFile, err)
		return
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		add(CodeInvalidJSON, "%s must be a JSON object", MetadataFile)
		return
	}
	out.MetadataRaw = raw

	invalid := make(map[string]bool)
	for _, se := range validateAgainstSchema(metadataSchema, raw) {
		invalid[se.Field] = true
		add(metadataCode(se.Field), "%s", se.String())
	}

	md, err := DecodeMetadata(raw)
	if err != nil && len(invalid) == 0 {
		add(CodeMetadataField, "decoding %s: %v", MetadataFile, err)
	}
	out.Metadata = md

	if _, ok := raw["schema"]; ok && !invalid["schema"] {
		if missing := missingFrom(md.Schema, records.Fields); len(missing) > 0 {
			invalid["schema"] = true
			add(CodeSchema, "schema missing mandatory fields: %v", missing)
		}
	}
	if _, ok := raw["dedup_key"]; ok && !invalid["dedup_key"] {
		if missing := missingFrom(md.DedupKey, records.DedupFields); len(missing) > 0 {
			invalid["dedup_key"] = true
			add(CodeDedupKey, "dedup_key missing required fields: %v", missing)
		}
	}
	if _, ok := raw["task_id"]; ok && !invalid["task_id"] && md.TaskID != exp.TaskID {
		invalid["task_id"] = true
		add(CodeTaskID, "task_id mismatch: expected %q, metadata declares %q", exp.TaskID, md.TaskID)
	}
	if _, ok := raw["query"]; ok && !invalid["query"] && exp.Query != nil {
		for _, key := range tasks.QueryKeys {
			want, got := exp.Query[key], md.Query[key]
			if !SameValue(want, got) {
				invalid["query"] = true
				add(CodeQuery, "query mismatch on %q: expected %s, got %s", key, describe(want), describe(got))
			}
		}
	}

	for _, f := range MetadataFields {
		_, present := raw[f]
		out.FieldOK[f] = present && !invalid[f]
	}
}

// metadataCode maps a metadata field to the code reported when it is invalid.
func metadataCode(field string) Code {
	switch field {
	case "row_count":
		return CodeRowCount
	case "schema":
		return CodeSchema
	case "query":
		return CodeQuery
	case "dedup_key":
		return CodeDedupKey
	case "task_id":
		return CodeTaskID
	default:
		return CodeMetadataField
	}
}

func checkData(out *Output, add addFunc) {
	if !utf8.Valid(out.DataBytes) {
		add(CodeInvalidJSON, "%s is not UTF-8", DataFile)
		return
	}

	for i, line := range strings.Split(string(out.DataBytes), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out.DataLines++
		obj, err := parseObject(line)
		if err != nil {
			add(CodeInvalidJSON, "invalid JSON in %s line %d: %v", DataFile, i+1, err)
			continue
		}
		out.ParsedLines++
		out.Raw = append(out.Raw, obj)

		errs := validateAgainstSchema(recordSchema, obj)
		out.RecordValid = append(out.RecordValid, len(errs) == 0)
		for _, se := range errs {
			add(CodeRecordField, "%s line %d: %s", DataFile, i+1, se)
		}
		if rec, err := DecodeRecord(obj); err == nil {
			out.Records = append(out.Records, rec)
		}
		if isTotalsRaw(obj) {
			add(CodeTotalsPresent, "totals row not dropped at %s line %d", DataFile, i+1)
		}
	}

	if kept, _ := records.DropTotals(out.Records); len(kept) > 0 {
		out.Canonical = records.IsCanonical(kept)
		if !out.Canonical {
			add(CodeOrder, "%s is not sorted by dedup_key", DataFile)
		}
	}

	if md := out.Metadata; md != nil && md.RowCount != nil && *md.RowCount != out.DataLines {
		out.FieldOK["row_count"] = false
		add(CodeRowCount, "row count mismatch: metadata declares %d, actual %d", *md.RowCount, out.DataLines)
	}

	key := records.DedupFields
	if md := out.Metadata; md != nil && out.FieldOK["dedup_key"] {
		key = md.DedupKey
	}
	seen := make(map[string]int, len(out.Raw))
	for i, obj := range out.Raw {
		k, err := tupleOf(obj, key)
		if err != nil {
			add(CodeDedupKey, "record %d: %v", i, err)
			continue
		}
		if first, dup := seen[k]; dup {
			add(CodeDedupKey, "duplicate dedup_key at record %d (first seen at record %d)", i, first)
			continue
		}
		seen[k] = i
	}
}

func checkLog(out *Output, data []byte, mode tasks.FaultMode, add addFunc) {
	if !utf8.Valid(data) {
		add(CodeLogEvidence, "%s is not UTF-8", LogFile)
		return
	}
	out.Log = string(data)
	if n := nonSpace(out.Log); n < MinLogChars {
		add(CodeLogEvidence, "%s too short: need >= %d non-whitespace characters, got %d", LogFile, MinLogChars, n)
	} else {
		out.LogOK = true
	}
	if ev, ok := faultEvidence[mode]; ok && !ev.matches(out.Log) {
		add(CodeLogEvidence, "no %s evidence in %s: need %s", mode, LogFile, ev)
	}
}

func parseObject(line string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", describe(v))
	}
	return obj, nil
}

func isTotalsRaw(obj map[string]any) bool {
	isTotal, _ := obj["isTotal"].(bool)
	return isTotal && obj["partner"] == records.TotalsPartner && obj["hs"] == records.TotalsHS
}

func tupleOf(obj map[string]any, key []string) (string, error) {
	parts := make([]string, len(key))
	for i, f := range key {
		v, ok := obj[f]
		if !ok {
			return "", fmt.Errorf("missing dedup_key field %q", f)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f"), nil
}

func missingFrom(have, want []string) []string {
	var missing []string
	for _, f := range want {
		if !slices.Contains(have, f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func nonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// HasIssue reports whether issues contain the code.
func HasIssue(issues []Issue, c Code) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Code == c })
}
