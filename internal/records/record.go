// Package records defines the trade record model, its dedup key and the
// canonical ordering shared by the mock API, the validator and the judge.
package records

import (
	"cmp"
	"slices"
)

// Totals marker values. A row is a totals row only when all three match.
const (
	TotalsPartner = "WLD"
	TotalsHS      = "TOTAL"
)

// Fields lists the mandatory record fields in schema order.
var Fields = []string{
	"year",
	"reporter",
	"partner",
	"flow",
	"hs",
	"tradeValue",
	"netWeight",
	"qty",
	"record_id",
}

// DedupFields are the fields forming the dedup key, in sort order.
var DedupFields = []string{"year", "reporter", "partner", "flow", "hs", "record_id"}

// Record is one trade-data row.
type Record struct {
	Year       int    `json:"year"`
	Reporter   string `json:"reporter"`
	Partner    string `json:"partner"`
	Flow       string `json:"flow"`
	HS         string `json:"hs"`
	TradeValue int64  `json:"tradeValue"`
	NetWeight  int64  `json:"netWeight"`
	Qty        int64  `json:"qty"`
	RecordID   string `json:"record_id"`
	IsTotal    bool   `json:"isTotal,omitempty"`
}

// DedupKey identifies a logical record.
type DedupKey struct {
	Year     int
	Reporter string
	Partner  string
	Flow     string
	HS       string
	RecordID string
}

// Key returns the record's dedup key.
func (r Record) Key() DedupKey {
	return DedupKey{
		Year:     r.Year,
		Reporter: r.Reporter,
		Partner:  r.Partner,
		Flow:     r.Flow,
		HS:       r.HS,
		RecordID: r.RecordID,
	}
}

// IsTotalsRow reports whether r is a world-total aggregate row.
func (r Record) IsTotalsRow() bool {
	return r.IsTotal && r.Partner == TotalsPartner && r.HS == TotalsHS
}

// Compare orders keys field by field in DedupFields order.
func (k DedupKey) Compare(o DedupKey) int {
	return cmp.Or(
		cmp.Compare(k.Year, o.Year),
		cmp.Compare(k.Reporter, o.Reporter),
		cmp.Compare(k.Partner, o.Partner),
		cmp.Compare(k.Flow, o.Flow),
		cmp.Compare(k.HS, o.HS),
		cmp.Compare(k.RecordID, o.RecordID),
	)
}

// SortCanonical stable-sorts recs in place by dedup key.
func SortCanonical(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		return a.Key().Compare(b.Key())
	})
}

// IsCanonical reports whether recs are already in canonical order.
func IsCanonical(recs []Record) bool {
	return slices.IsSortedFunc(recs, func(a, b Record) int {
		return a.Key().Compare(b.Key())
	})
}

// DropTotals returns recs without totals rows and how many were removed.
func DropTotals(recs []Record) ([]Record, int) {
	out := make([]Record, 0, len(recs))
	dropped := 0
	for _, r := range recs {
		if r.IsTotalsRow() {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

// Dedup keeps the first occurrence of every dedup key.
func Dedup(recs []Record) []Record {
	seen := make(map[DedupKey]struct{}, len(recs))
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Canonicalize drops totals rows, removes duplicate keys and sorts. It does
// not modify recs.
func Canonicalize(recs []Record) []Record {
	out, _ := DropTotals(recs)
	out = Dedup(out)
	SortCanonical(out)
	return out
}
