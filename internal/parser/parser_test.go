package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/openrice-crawler/internal/dataset"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	// #nosec G304 -- fixtures live in the package testdata directory.
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func wrap(containers ...string) string {
	return "<html><body>" + strings.Join(containers, "") + "</body></html>"
}

func container(inner string) string {
	return `<div class="poi-list-cell-desktop-right-top-wrapper-main">` + inner + `</div>`
}

const fullInfo = `<div class="poi-list-cell-line-info">` +
	`<span class="poi-list-cell-line-info-link">灣仔</span>` +
	`<span class="poi-list-cell-line-info-link">日本菜</span>` +
	`<span class="poi-list-cell-line-info-link">壽司</span>` +
	`<span class="poi-list-cell-line-info-link">$201-400</span></div>`

func TestParseFixtureYieldsCompleteRecordsOnly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	p := New(Config{}, zap.New(core))

	report := p.ParseReport(loadFixture(t, "district_listing.html"), "Central")

	require.Len(t, report.Records, 2)
	for _, rec := range report.Records {
		require.Equal(t, "Central", rec.District)
	}
	require.Equal(t, 3, report.Containers)
	require.Equal(t, 1, report.DroppedIncomplete)
	require.Zero(t, report.DroppedNoName)
	require.False(t, report.Mismatch)

	dropped := logs.FilterMessage("incomplete listing dropped").All()
	require.Len(t, dropped, 1)
	require.Equal(t, "無價餐廳", dropped[0].ContextMap()["name"])
	require.Equal(t, false, dropped[0].ContextMap()["has_price"])
}

func TestParseFixtureFieldValues(t *testing.T) {
	t.Parallel()

	records := New(Config{}, nil).Parse(loadFixture(t, "district_listing.html"), "中環")
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "蘭芳園", first.Name)
	assert.Equal(t, "港式", first.Cuisine)
	assert.Equal(t, "茶餐廳", first.DishType)
	assert.Equal(t, "$51-100", first.PriceBand)
	assert.Equal(t, "2544 3895", first.Phone)
	assert.Equal(t, "07:30 - 18:00", first.OpeningHours)
	assert.Equal(t, "絲襪奶茶", first.SpecialDish)
	assert.Equal(t, "中環結志街2號", first.Address)
	assert.InDelta(t, 4.3, first.Rating, 1e-9)
	assert.Equal(t, 123, first.ReviewCount)
	assert.Equal(t, "https://www.openrice.com/zh/hongkong/restaurant/central-lan-fong-yuen/r1001", first.URL)

	second := records[1]
	assert.Equal(t, "https://www.openrice.com/zh/hongkong/restaurant/central-tsim-chai-kee/r1002", second.URL)
	assert.Equal(t, "中環威靈頓街98號", second.Address, "address falls back to span.address")
	assert.InDelta(t, 3.9, second.Rating, 1e-9, "full-width digits are normalized")
	assert.Zero(t, second.ReviewCount, "unparsable review text defaults to 0")
	assert.Empty(t, second.Phone)
	assert.Empty(t, second.OpeningHours)
	assert.Empty(t, second.SpecialDish)
}

func TestParseSkipsContainersWithoutName(t *testing.T) {
	t.Parallel()

	markup := wrap(
		container(fullInfo),
		container(`<div class="poi-name">   </div>`+fullInfo),
		container(`<div class="poi-name">鮨 匠</div>`+fullInfo),
	)
	report := New(Config{}, nil).ParseReport(markup, "灣仔")
	require.Len(t, report.Records, 1)
	require.Equal(t, "鮨 匠", report.Records[0].Name)
	require.Equal(t, 2, report.DroppedNoName)
	require.Equal(t, 2, report.Dropped())
}

func TestFewerThanFourSpansLeavesPositionalFieldsEmpty(t *testing.T) {
	t.Parallel()

	markup := wrap(container(`<div class="poi-name">Cafe</div>` +
		`<div class="poi-list-cell-line-info">` +
		`<span class="poi-list-cell-line-info-link">灣仔</span>` +
		`<span class="poi-list-cell-line-info-link">日本菜</span>` +
		`<span class="poi-list-cell-line-info-link">壽司</span></div>`))

	p := New(Config{}, nil)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	rec, err := p.extract(0, doc.Find(p.sel.Container).First(), "灣仔")
	require.NoError(t, err)
	require.Empty(t, rec.Cuisine)
	require.Empty(t, rec.DishType)
	require.Empty(t, rec.PriceBand)
	require.False(t, rec.Complete())

	require.Empty(t, p.Parse(markup, "灣仔"))
}

func TestParseSkipsIndexZeroSpan(t *testing.T) {
	t.Parallel()

	records := New(Config{}, nil).Parse(wrap(container(`<div class="poi-name">鮨 匠</div>`+fullInfo)), "灣仔")
	require.Len(t, records, 1)
	require.Equal(t, "日本菜", records[0].Cuisine)
	require.Equal(t, "壽司", records[0].DishType)
	require.Equal(t, "$201-400", records[0].PriceBand)
}

func TestParseRelativeURLGetsOrigin(t *testing.T) {
	t.Parallel()

	markup := wrap(container(`<a href="/zh/hongkong/restaurant/abc"><div class="poi-name">ABC</div></a>` + fullInfo))
	records := New(Config{}, nil).Parse(markup, "灣仔")
	require.Len(t, records, 1)
	require.Equal(t, "https://www.openrice.com/zh/hongkong/restaurant/abc", records[0].URL)
}

func TestParseIgnoresNonListingLinks(t *testing.T) {
	t.Parallel()

	markup := wrap(container(`<a href="/zh/hongkong/promo/1">promo</a><div class="poi-name">ABC</div>` + fullInfo))
	records := New(Config{Origin: "https://www.openrice.com/"}, nil).Parse(markup, "灣仔")
	require.Len(t, records, 1)
	require.Empty(t, records[0].URL)
}

func TestParseNoContainersIsStructuralMismatch(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	report := New(Config{}, zap.New(core)).ParseReport("<html><body><p>改版了</p></body></html>", "北角")
	require.True(t, report.Mismatch)
	require.Empty(t, report.Records)
	require.NotNil(t, report.Records)
	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "北角", entries[0].ContextMap()["district"])
	require.Contains(t, entries[0].ContextMap()["error"], "no listing containers found")
}

func TestParseCustomSelectors(t *testing.T) {
	t.Parallel()

	markup := wrap(`<article class="card"><h2 class="title">New Markup</h2>` + fullInfo + `</article>`)
	p := New(Config{Selectors: Selectors{Container: "article.card", Name: "h2.title"}}, nil)
	records := p.Parse(markup, "灣仔")
	require.Len(t, records, 1)
	require.Equal(t, "New Markup", records[0].Name)
}

func TestParseReviewCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "123則", want: 123},
		{in: " 45 則 ", want: 45},
		{in: "１２３則", want: 123},
		{in: "1,234則", want: 1234},
		{in: "評論", wantErr: true},
		{in: "-3則", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseReviewCount(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			require.Zero(t, got, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseReviewCountAbsentDefaultsToZero(t *testing.T) {
	t.Parallel()

	records := New(Config{}, nil).Parse(wrap(container(`<div class="poi-name">ABC</div>`+fullInfo)), "灣仔")
	require.Len(t, records, 1)
	require.Zero(t, records[0].ReviewCount)
	require.Zero(t, records[0].Rating)
}

func TestParseRating(t *testing.T) {
	t.Parallel()

	got, err := parseRating("4.5")
	require.NoError(t, err)
	require.InDelta(t, 4.5, got, 1e-9)

	got, err = parseRating("４．２")
	require.NoError(t, err)
	require.InDelta(t, 4.2, got, 1e-9)

	got, err = parseRating("N/A")
	require.Error(t, err)
	require.Zero(t, got)

	for _, in := range []string{"NaN", "nan", "Inf", "+Inf", "-Inf", "infinity", "ＩＮＦ"} {
		got, err = parseRating(in)
		require.Error(t, err, in)
		require.Zero(t, got, in)
	}
}

func TestParseNonFiniteRatingDefaultsAndEncodes(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	markup := wrap(
		container(`<div class="poi-name">甲</div>`+fullInfo+`<span class="score">NaN</span>`),
		container(`<div class="poi-name">乙</div>`+fullInfo+`<span class="score">Inf</span>`),
		container(`<div class="poi-name">丙</div>`+fullInfo+`<span class="score">infinity</span>`),
	)
	records := New(Config{}, zap.New(core)).Parse(markup, "灣仔")
	require.Len(t, records, 3)
	for _, rec := range records {
		require.Zero(t, rec.Rating, rec.Name)
	}
	require.Len(t, logs.FilterMessage("rating defaulted").All(), 3)

	data, err := dataset.EncodeJSON(records)
	require.NoError(t, err)
	require.NoError(t, dataset.Validate(data))
}
