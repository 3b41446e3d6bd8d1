package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

// RecordColumns is the canonical field order of a listing row.
var RecordColumns = []string{
	"name", "cuisine", "type", "price", "phone", "opening_hours",
	"rating", "review_count", "special_dish", "address", "url", "district",
}

// Row is one flattened record: its field names in order plus their values.
// Rows read from tabular files may gain fields as downstream steps label them.
type Row struct {
	Fields []string
	Values map[string]string
}

// NewRow returns an empty Row.
func NewRow() Row {
	return Row{Values: make(map[string]string)}
}

// Get returns the value for field, or "" when absent.
func (r Row) Get(field string) string {
	return r.Values[field]
}

// Has reports whether the row carries field.
func (r Row) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}

// Set stores value, appending field to the order when it is new.
func (r *Row) Set(field, value string) {
	if r.Values == nil {
		r.Values = make(map[string]string)
	}
	if _, ok := r.Values[field]; !ok {
		r.Fields = append(r.Fields, field)
	}
	r.Values[field] = value
}

// RecordRow flattens a ListingRecord in canonical column order.
func RecordRow(rec crawler.ListingRecord) Row {
	row := Row{Fields: append([]string(nil), RecordColumns...), Values: make(map[string]string, len(RecordColumns))}
	row.Values["name"] = rec.Name
	row.Values["cuisine"] = rec.Cuisine
	row.Values["type"] = rec.DishType
	row.Values["price"] = rec.PriceBand
	row.Values["phone"] = rec.Phone
	row.Values["opening_hours"] = rec.OpeningHours
	row.Values["rating"] = FormatFloat(rec.Rating)
	row.Values["review_count"] = strconv.Itoa(rec.ReviewCount)
	row.Values["special_dish"] = rec.SpecialDish
	row.Values["address"] = rec.Address
	row.Values["url"] = rec.URL
	row.Values["district"] = rec.District
	return row
}

// RecordRows flattens records in order.
func RecordRows(records []crawler.ListingRecord) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RecordRow(rec))
	}
	return rows
}

// FormatFloat renders v with a decimal point so ratings stay float-typed in
// tabular output ("4.0", not "4").
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// ParseFloat reads a numeric cell, returning 0 for empty, invalid or
// non-finite text.
func ParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseInt reads an integer cell; float text ("12.0") is truncated and
// invalid text yields 0.
func ParseInt(s string) int {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return int(ParseFloat(s))
}
