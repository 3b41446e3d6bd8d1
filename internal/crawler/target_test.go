package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistrictFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "encoded district with query",
			url:  "https://www.openrice.com/zh/hongkong/restaurants/district/%E7%9F%B3%E5%A1%98%E5%92%80?sortBy=ORScoreDesc",
			want: "石塘咀",
		},
		{
			name: "plain ascii district",
			url:  "https://www.openrice.com/en/hongkong/restaurants/district/central",
			want: "central",
		},
		{
			name: "undecodable segment kept raw",
			url:  "https://www.openrice.com/zh/hongkong/restaurants/district/%zz?sortBy=ORScoreDesc",
			want: "%zz",
		},
		{
			name:    "missing marker",
			url:     "https://www.openrice.com/zh/hongkong/restaurants",
			wantErr: true,
		},
		{
			name:    "empty segment",
			url:     "https://www.openrice.com/zh/hongkong/restaurants/district/?sortBy=ORScoreDesc",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DistrictFromURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrNoDistrictMarker))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewTargetsPreservesOrder(t *testing.T) {
	t.Parallel()

	targets, err := NewTargets([]string{
		" https://www.openrice.com/zh/hongkong/restaurants/district/%E4%B8%AD%E7%92%B0?sortBy=ORScoreDesc ",
		"https://www.openrice.com/zh/hongkong/restaurants/district/%E7%81%A3%E4%BB%94?sortBy=ORScoreDesc",
	})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, "中環", targets[0].District)
	require.Equal(t, "灣仔", targets[1].District)
	require.NotContains(t, targets[0].URL, " ")

	_, err = NewTargets([]string{"https://example.com/nothing"})
	require.ErrorIs(t, err, ErrNoDistrictMarker)
}

func TestAbsoluteURL(t *testing.T) {
	t.Parallel()

	origin := "https://www.openrice.com"
	require.Equal(t, "https://www.openrice.com/zh/hongkong/restaurant/abc", AbsoluteURL(origin, "/zh/hongkong/restaurant/abc"))
	require.Equal(t, "https://www.openrice.com/zh/hongkong/restaurant/abc", AbsoluteURL(origin+"/", "zh/hongkong/restaurant/abc"))
	require.Equal(t, "https://cdn.example.com/x", AbsoluteURL(origin, "//cdn.example.com/x"))
	require.Equal(t, "https://other.example/x", AbsoluteURL(origin, "https://other.example/x"))
	require.Empty(t, AbsoluteURL(origin, "  "))
}

func TestRecordKeyFallback(t *testing.T) {
	t.Parallel()

	withURL := ListingRecord{Name: "n", URL: "https://www.openrice.com/r"}
	require.Equal(t, "https://www.openrice.com/r", withURL.Key())

	a := ListingRecord{Name: "n", District: "d", Address: "x"}
	b := ListingRecord{Name: "n", District: "d", Address: "y"}
	require.NotEqual(t, a.Key(), b.Key())
}

func TestFetchErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("net::ERR_CONNECTION_RESET")
	err := NewFetchError("https://www.openrice.com/x", cause)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.ErrorIs(t, err, cause)
	require.Same(t, err, NewFetchError("https://other", err), "existing fetch errors are not re-wrapped")
	require.NoError(t, NewFetchError("u", nil))

	fieldErr := &FieldExtractionError{Index: 2, Name: "Cafe", Field: "rating", Err: cause}
	require.Contains(t, fieldErr.Error(), "container 2 (Cafe)")
	require.ErrorIs(t, fieldErr, cause)
}
