package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DistrictMarker precedes the url-encoded district name in directory URLs.
const DistrictMarker = "district/"

// DistrictFromURL derives the district label from a directory URL: the text
// after DistrictMarker, cut at the query suffix, percent-decoded. A segment
// that does not decode is returned raw so labels stay stable across runs.
func DistrictFromURL(rawURL string) (string, error) {
	_, after, found := strings.Cut(rawURL, DistrictMarker)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNoDistrictMarker, rawURL)
	}
	segment, _, _ := strings.Cut(after, "?")
	segment = strings.TrimSuffix(segment, "/")
	if segment == "" {
		return "", fmt.Errorf("%w: empty district in %s", ErrNoDistrictMarker, rawURL)
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment, nil
	}
	return decoded, nil
}

// NewTarget builds a CrawlTarget from a directory URL.
func NewTarget(rawURL string) (CrawlTarget, error) {
	rawURL = strings.TrimSpace(rawURL)
	district, err := DistrictFromURL(rawURL)
	if err != nil {
		return CrawlTarget{}, err
	}
	return CrawlTarget{URL: rawURL, District: district}, nil
}

// NewTargets converts URLs to targets, preserving order.
func NewTargets(urls []string) ([]CrawlTarget, error) {
	targets := make([]CrawlTarget, 0, len(urls))
	for _, raw := range urls {
		target, err := NewTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// AbsoluteURL prefixes origin onto relative hrefs; absolute URLs pass through.
func AbsoluteURL(origin, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	origin = strings.TrimSuffix(origin, "/")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return origin + href
}
