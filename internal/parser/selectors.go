package parser

// DefaultOrigin is prefixed onto relative listing links.
const DefaultOrigin = "https://www.openrice.com"

// Selectors locates listing fields in district markup. Field selectors are
// evaluated relative to one container.
type Selectors struct {
	Container       string `mapstructure:"container"`
	Name            string `mapstructure:"name"`
	Link            string `mapstructure:"link"`
	InfoLine        string `mapstructure:"info_line"`
	InfoSpan        string `mapstructure:"info_span"`
	Rating          string `mapstructure:"rating"`
	ReviewCount     string `mapstructure:"review_count"`
	Phone           string `mapstructure:"phone"`
	OpeningHours    string `mapstructure:"opening_hours"`
	SpecialDish     string `mapstructure:"special_dish"`
	Address         string `mapstructure:"address"`
	AddressFallback string `mapstructure:"address_fallback"`
}

// DefaultSelectors returns the selectors for the current OpenRice listing markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:       "div.poi-list-cell-desktop-right-top-wrapper-main",
		Name:            "div.poi-name",
		Link:            "a[href*='/zh/hongkong/restaurant/']",
		InfoLine:        "div.poi-list-cell-line-info",
		InfoSpan:        "span.poi-list-cell-line-info-link",
		Rating:          "span.score",
		ReviewCount:     "span.review-count",
		Phone:           "span.phone-number",
		OpeningHours:    "span.opening-hours",
		SpecialDish:     "span.special-dish",
		Address:         "div.poi-list-cell-line-address",
		AddressFallback: "span.address",
	}
}

// Info line spans are positional: index 0 carries the district link and is
// skipped; 1, 2 and 3 are cuisine, dish type and price band. Keep these
// indices unless the markup grows semantic attributes for the fields.
const (
	spanCuisine  = 1
	spanDishType = 2
	spanPrice    = 3
	minInfoSpans = 4
)

// ReviewSuffix is the unit appended to review counts ("123則").
const ReviewSuffix = "則"

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&s.Container, d.Container)
	fill(&s.Name, d.Name)
	fill(&s.Link, d.Link)
	fill(&s.InfoLine, d.InfoLine)
	fill(&s.InfoSpan, d.InfoSpan)
	fill(&s.Rating, d.Rating)
	fill(&s.ReviewCount, d.ReviewCount)
	fill(&s.Phone, d.Phone)
	fill(&s.OpeningHours, d.OpeningHours)
	fill(&s.SpecialDish, d.SpecialDish)
	fill(&s.Address, d.Address)
	fill(&s.AddressFallback, d.AddressFallback)
	return s
}
