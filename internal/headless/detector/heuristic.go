// Package detector decides when a statically fetched listing page must be
// re-fetched with a headless browser.
package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultContainerSelector matches one restaurant entry on a district listing.
const DefaultContainerSelector = "div.poi-list-cell-desktop-right-top-wrapper-main"

// Promotion reasons reported by Decide.
const (
	ReasonEmptyBody    = "empty_body"
	ReasonUnparsable   = "unparsable"
	ReasonSPAMarker    = "spa_marker"
	ReasonScriptHeavy  = "script_heavy"
	ReasonNoContainers = "no_containers"
)

// Decision explains whether markup needs a headless render.
type Decision struct {
	Promote    bool
	Containers int
	Reason     string
}

// Heuristic promotes pages that do not already carry enough listing containers.
type Heuristic struct {
	MinContainers     int
	ContainerSelector string
}

// NewHeuristic creates a new detector.
func NewHeuristic(minContainers int, selector string) *Heuristic {
	if minContainers <= 0 {
		minContainers = 1
	}
	if selector == "" {
		selector = DefaultContainerSelector
	}
	return &Heuristic{MinContainers: minContainers, ContainerSelector: selector}
}

var spaMarkers = []string{
	"__next",
	"id=\"root\"",
	"id=\"app\"",
	"data-reactroot",
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(markup string) bool {
	return h.Decide(markup).Promote
}

// Decide counts listing containers in markup and, when there are too few,
// names the most likely reason the static fetch came back without them.
func (h *Heuristic) Decide(markup string) Decision {
	if strings.TrimSpace(markup) == "" {
		return Decision{Promote: true, Reason: ReasonEmptyBody}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Decision{Promote: true, Reason: ReasonUnparsable}
	}
	count := doc.Find(h.ContainerSelector).Length()
	if count >= h.MinContainers {
		return Decision{Containers: count}
	}
	reason := ReasonNoContainers
	switch {
	case hasSPAMarker(markup):
		reason = ReasonSPAMarker
	case scriptDensityHigh(markup):
		reason = ReasonScriptHeavy
	}
	return Decision{Promote: true, Containers: count, Reason: reason}
}

func hasSPAMarker(markup string) bool {
	for _, marker := range spaMarkers {
		if strings.Contains(markup, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(markup string) bool {
	lower := strings.ToLower(markup)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
