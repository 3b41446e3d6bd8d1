package analysis

import (
	"sort"

	"github.com/JakeFAU/openrice-crawler/internal/dataset"
)

const topReviewed = 10

// CuisineRating is the mean rating of one cuisine.
type CuisineRating struct {
	Cuisine    string  `json:"cuisine"`
	MeanRating float64 `json:"mean_rating"`
	Listings   int     `json:"listings"`
}

// Reviewed is one entry of the most-reviewed ranking.
type Reviewed struct {
	Name        string `json:"name"`
	District    string `json:"district"`
	ReviewCount int    `json:"review_count"`
}

// Summary is a descriptive overview of a dataset.
type Summary struct {
	Rows               int             `json:"rows"`
	RatingByCuisine    []CuisineRating `json:"rating_by_cuisine"`
	MostReviewed       []Reviewed      `json:"most_reviewed"`
	PriceDistribution  []Count         `json:"price_distribution"`
	DistrictCounts     []Count         `json:"district_counts"`
	FoodieDistribution []Count         `json:"foodie_distribution,omitempty"`
}

// Summarize computes mean rating by cuisine (highest first), the ten most
// reviewed listings, and price band and district counts. Rows already
// classified also get a foodie type distribution.
func Summarize(rows []dataset.Row) Summary {
	s := Summary{
		Rows:              len(rows),
		RatingByCuisine:   ratingByCuisine(rows),
		MostReviewed:      mostReviewed(rows, topReviewed),
		PriceDistribution: Distribution(rows, "price"),
		DistrictCounts:    Distribution(rows, "district"),
	}
	if len(rows) > 0 && rows[0].Has(FoodieTypeField) {
		s.FoodieDistribution = Distribution(rows, FoodieTypeField)
	}
	return s
}

func ratingByCuisine(rows []dataset.Row) []CuisineRating {
	index := make(map[string]int)
	var out []CuisineRating
	for _, row := range rows {
		cuisine := row.Get("cuisine")
		i, ok := index[cuisine]
		if !ok {
			i = len(out)
			index[cuisine] = i
			out = append(out, CuisineRating{Cuisine: cuisine})
		}
		out[i].MeanRating += dataset.ParseFloat(row.Get("rating"))
		out[i].Listings++
	}
	for i := range out {
		out[i].MeanRating /= float64(out[i].Listings)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MeanRating > out[b].MeanRating })
	return out
}

func mostReviewed(rows []dataset.Row, limit int) []Reviewed {
	out := make([]Reviewed, 0, len(rows))
	for _, row := range rows {
		out = append(out, Reviewed{
			Name:        row.Get("name"),
			District:    row.Get("district"),
			ReviewCount: dataset.ParseInt(row.Get("review_count")),
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ReviewCount > out[b].ReviewCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
