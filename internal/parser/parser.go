// Package parser extracts listing records from rendered OpenRice district
// markup using goquery. Parsing never fails: missing optional fields degrade
// to defaults and broken containers are skipped one at a time.
package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

var errMissingName = errors.New("container has no name element")

// Config controls Parser behavior.
type Config struct {
	Origin    string
	Selectors Selectors
}

// Parser implements crawler.Parser.
type Parser struct {
	origin string
	sel    Selectors
	logger *zap.Logger
}

// New builds a Parser; empty config fields take the OpenRice defaults.
func New(cfg Config, logger *zap.Logger) *Parser {
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		origin: strings.TrimSuffix(cfg.Origin, "/"),
		sel:    cfg.Selectors.withDefaults(),
		logger: logger,
	}
}

// Parse returns the complete records found in markup, tagged with district.
func (p *Parser) Parse(markup, district string) []crawler.ListingRecord {
	return p.ParseReport(markup, district).Records
}

// ParseReport is Parse plus counters describing what was dropped.
func (p *Parser) ParseReport(markup, district string) crawler.ParseReport {
	report := crawler.ParseReport{Records: make([]crawler.ListingRecord, 0)}
	logger := p.logger.With(zap.String("district", district))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		report.Mismatch = true
		logger.Warn("markup could not be parsed", zap.Error(err))
		return report
	}
	containers := doc.Find(p.sel.Container)
	report.Containers = containers.Length()
	if report.Containers == 0 {
		report.Mismatch = true
		logger.Warn("container selector matched nothing; markup may have changed",
			zap.String("selector", p.sel.Container),
			zap.Error(crawler.ErrStructuralMismatch),
		)
		return report
	}

	containers.Each(func(i int, s *goquery.Selection) {
		rec, err := p.extract(i, s, district)
		switch {
		case errors.Is(err, errMissingName):
			report.DroppedNoName++
			logger.Debug("container without name skipped", zap.Int("index", i))
		case err != nil:
			report.SkippedErrors++
			logger.Warn("container skipped", zap.Int("index", i), zap.Error(err))
		case !rec.Complete():
			report.DroppedIncomplete++
			logger.Info("incomplete listing dropped",
				zap.Int("index", i),
				zap.String("name", rec.Name),
				zap.Bool("has_cuisine", rec.Cuisine != ""),
				zap.Bool("has_type", rec.DishType != ""),
				zap.Bool("has_price", rec.PriceBand != ""),
			)
		default:
			report.Records = append(report.Records, rec)
		}
	})
	logger.Debug("markup parsed",
		zap.Int("containers", report.Containers),
		zap.Int("records", len(report.Records)),
		zap.Int("dropped", report.Dropped()),
	)
	return report
}

func (p *Parser) extract(index int, s *goquery.Selection, district string) (rec crawler.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &crawler.FieldExtractionError{
				Index: index,
				Name:  rec.Name,
				Field: "container",
				Err:   fmt.Errorf("panic: %v", r),
			}
		}
	}()

	nameSel := s.Find(p.sel.Name).First()
	if nameSel.Length() == 0 {
		return crawler.ListingRecord{}, errMissingName
	}
	rec.Name = cleanText(nameSel)
	if rec.Name == "" {
		return crawler.ListingRecord{}, errMissingName
	}

	if href, ok := s.Find(p.sel.Link).First().Attr("href"); ok {
		rec.URL = crawler.AbsoluteURL(p.origin, href)
	}

	spans := s.Find(p.sel.InfoLine).First().Find(p.sel.InfoSpan)
	if spans.Length() >= minInfoSpans {
		rec.Cuisine = cleanText(spans.Eq(spanCuisine))
		rec.DishType = cleanText(spans.Eq(spanDishType))
		rec.PriceBand = cleanText(spans.Eq(spanPrice))
	}

	if text := p.optional(s, p.sel.Rating); text != "" {
		rating, perr := parseRating(text)
		if perr != nil {
			p.logger.Debug("rating defaulted",
				zap.Error(&crawler.FieldExtractionError{Index: index, Name: rec.Name, Field: "rating", Err: perr}))
		}
		rec.Rating = rating
	}
	if text := p.optional(s, p.sel.ReviewCount); text != "" {
		count, perr := parseReviewCount(text)
		if perr != nil {
			p.logger.Debug("review count defaulted",
				zap.Error(&crawler.FieldExtractionError{Index: index, Name: rec.Name, Field: "review_count", Err: perr}))
		}
		rec.ReviewCount = count
	}

	rec.Phone = p.optional(s, p.sel.Phone)
	rec.OpeningHours = p.optional(s, p.sel.OpeningHours)
	rec.SpecialDish = p.optional(s, p.sel.SpecialDish)
	rec.Address = p.optional(s, p.sel.Address)
	if rec.Address == "" {
		rec.Address = p.optional(s, p.sel.AddressFallback)
	}
	rec.District = district
	return rec, nil
}

func (p *Parser) optional(s *goquery.Selection, selector string) string {
	return cleanText(s.Find(selector).First())
}

// cleanText returns the element text with runs of whitespace collapsed.
func cleanText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}

// normalizeNumeric folds full-width digits and punctuation to ASCII.
func normalizeNumeric(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}

func parseRating(text string) (float64, error) {
	rating, err := strconv.ParseFloat(normalizeNumeric(text), 64)
	if err != nil {
		return 0, fmt.Errorf("parse rating %q: %w", text, err)
	}
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("non-finite rating %q", text)
	}
	if rating < 0 {
		return 0, fmt.Errorf("negative rating %q", text)
	}
	return rating, nil
}

func parseReviewCount(text string) (int, error) {
	cleaned := normalizeNumeric(text)
	cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, ReviewSuffix))
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	count, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse review count %q: %w", text, err)
	}
	if count < 0 {
		return 0, fmt.Errorf("negative review count %q", text)
	}
	return count, nil
}
