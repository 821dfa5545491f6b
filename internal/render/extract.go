package render

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Explicit region markers a custom template can use to name its card.
const (
	CardStartMarker = "<!-- simtrack:card:start -->"
	CardEndMarker   = "<!-- simtrack:card:end -->"
)

// ExtractCardRegion pulls the card template out of user-supplied HTML.
// Explicit start/end markers win; without them the largest <div> subtree
// containing a template variable reference is taken. No recognizable
// region is an error the selection fallback chain handles.
func ExtractCardRegion(html string) (string, error) {
	if start := strings.Index(html, CardStartMarker); start >= 0 {
		end := strings.Index(html[start:], CardEndMarker)
		if end < 0 {
			return "", fmt.Errorf("card start marker without end marker")
		}
		region := html[start+len(CardStartMarker) : start+end]
		region = strings.TrimSpace(region)
		if region == "" {
			return "", fmt.Errorf("card region between markers is empty")
		}
		return region, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse custom template: %w", err)
	}

	best := ""
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		if !strings.Contains(outer, "{{") {
			return
		}
		if len(outer) > len(best) {
			best = outer
		}
	})
	if best == "" {
		return "", fmt.Errorf("no card region found: need marker comments or a <div> referencing a template variable")
	}
	return best, nil
}
