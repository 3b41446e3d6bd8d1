package analysis

import (
	"sort"
	"strings"

	"github.com/JakeFAU/openrice-crawler/internal/dataset"
)

// FoodieTypeField is the column Classify adds.
const FoodieTypeField = "foodie_type"

// Foodie types, checked in this order.
const (
	FoodieYouTuber  = "YouTuber"
	FoodieIGCreator = "IG Creator"
	FoodieRegular   = "Regular Foodie"
)

// Rules holds the classification thresholds.
type Rules struct {
	MinRating      float64
	MinReviews     int
	IGPriceBands   []string
	RequireSpecial bool
}

// DefaultRules returns the thresholds used by the published dataset.
func DefaultRules() Rules {
	return Rules{
		MinRating:      4.0,
		MinReviews:     100,
		IGPriceBands:   []string{"$201-400", "$401-800"},
		RequireSpecial: true,
	}
}

// ClassifyRow returns the foodie type for one listing. Both thresholds are
// strict: a 4.0 rating or exactly 100 reviews does not qualify.
func (r Rules) ClassifyRow(row dataset.Row) string {
	rating := dataset.ParseFloat(row.Get("rating"))
	reviews := dataset.ParseInt(row.Get("review_count"))
	if rating > r.MinRating && reviews > r.MinReviews {
		return FoodieYouTuber
	}
	price := strings.TrimSpace(row.Get("price"))
	special := strings.TrimSpace(row.Get("special_dish"))
	if containsString(r.IGPriceBands, price) && (!r.RequireSpecial || special != "") {
		return FoodieIGCreator
	}
	return FoodieRegular
}

// Classify returns copies of rows with FoodieTypeField set.
func Classify(rows []dataset.Row, rules Rules) []dataset.Row {
	out := make([]dataset.Row, 0, len(rows))
	for _, row := range rows {
		labeled := cloneRow(row)
		labeled.Set(FoodieTypeField, rules.ClassifyRow(row))
		out = append(out, labeled)
	}
	return out
}

// Count is one value and how many rows carry it.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Distribution counts the values of field, most frequent first. Ties keep
// first-seen order.
func Distribution(rows []dataset.Row, field string) []Count {
	index := make(map[string]int)
	var counts []Count
	for _, row := range rows {
		v := row.Get(field)
		i, ok := index[v]
		if !ok {
			i = len(counts)
			index[v] = i
			counts = append(counts, Count{Value: v})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(a, b int) bool { return counts[a].Count > counts[b].Count })
	return counts
}

func cloneRow(row dataset.Row) dataset.Row {
	out := dataset.Row{
		Fields: append([]string(nil), row.Fields...),
		Values: make(map[string]string, len(row.Values)+2),
	}
	for k, v := range row.Values {
		out.Values[k] = v
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
