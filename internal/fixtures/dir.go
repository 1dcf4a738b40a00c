package fixtures

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/comtradebench/greenbench/internal/records"
	"github.com/comtradebench/greenbench/internal/tasks"
)

// Compression selects the on-disk encoding of exported fixture files.
type Compression string

const (
	CompressNone Compression = "none"
	CompressGzip Compression = "gzip"
	CompressZstd Compression = "zstd"
)

// ParseCompression converts a flag value.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case CompressNone, "":
		return CompressNone, nil
	case CompressGzip, CompressZstd:
		return Compression(s), nil
	}
	return "", fmt.Errorf("invalid compression %q: must be none, gzip, or zstd", s)
}

func (c Compression) ext() string {
	switch c {
	case CompressGzip:
		return ".jsonl.gz"
	case CompressZstd:
		return ".jsonl.zst"
	default:
		return ".jsonl"
	}
}

// DirStore reads fixtures from <dir>/<task_id>.jsonl, .jsonl.gz or .jsonl.zst.
// Totals rows may be mixed into the file; they are split out on load.
type DirStore struct {
	Dir string
}

// Load implements Source.
func (d DirStore) Load(def tasks.Definition) (*Set, error) {
	for _, c := range []Compression{CompressNone, CompressGzip, CompressZstd} {
		path := filepath.Join(d.Dir, def.ID+c.ext())
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("opening fixture %s: %w", path, err)
		}
		defer f.Close() //nolint:errcheck

		recs, err := readCompressed(f, c)
		if err != nil {
			return nil, fmt.Errorf("reading fixture %s: %w", path, err)
		}
		return split(def.ID, recs), nil
	}
	return nil, fmt.Errorf("no fixture for %s in %s", def.ID, d.Dir)
}

func split(taskID string, recs []records.Record) *Set {
	set := &Set{TaskID: taskID}
	for _, r := range recs {
		if r.IsTotalsRow() {
			set.Totals = append(set.Totals, r)
		} else {
			set.Records = append(set.Records, r)
		}
	}
	records.SortCanonical(set.Records)
	return set
}

func readCompressed(r io.Reader, c Compression) ([]records.Record, error) {
	switch c {
	case CompressGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close() //nolint:errcheck
		return records.ReadJSONL(zr)
	case CompressZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return records.ReadJSONL(zr)
	default:
		return records.ReadJSONL(r)
	}
}

// Export writes the fixture for def into dir and returns the file path.
// Totals rows are appended after the logical records.
func Export(dir string, set *Set, c Compression) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, set.TaskID+c.ext())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	all := make([]records.Record, 0, len(set.Records)+len(set.Totals))
	all = append(all, set.Records...)
	all = append(all, set.Totals...)

	if err := writeCompressed(f, c, all); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}

func writeCompressed(w io.Writer, c Compression, recs []records.Record) error {
	switch c {
	case CompressGzip:
		zw := gzip.NewWriter(w)
		if err := records.WriteJSONL(zw, recs); err != nil {
			return err
		}
		return zw.Close()
	case CompressZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := records.WriteJSONL(zw, recs); err != nil {
			zw.Close() //nolint:errcheck
			return err
		}
		return zw.Close()
	default:
		return records.WriteJSONL(w, recs)
	}
}
