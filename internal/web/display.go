package web

import (
	"bytes"
	"html/template"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"

	"github.com/simtrack/simtrack/internal/block"
)

// displayClass is the class allowlist for formatted message HTML: code
// fence language tags, the macro slot anchor, and the raw-block marker.
var displayClass = regexp.MustCompile(`^(language-[A-Za-z0-9_+.-]+|simtrack-slot|sim-raw)$`)

// selectorTag guards fence tags before they are spliced into a CSS
// selector. Settings validation is looser than cascadia syntax.
var selectorTag = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Formatter turns stored message text into display HTML. Markdown is
// rendered with raw HTML passthrough so macro-expanded elements survive,
// then sanitized, so the sanitizer is the only trust boundary.
type Formatter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewFormatter builds the shared message formatter. Safe for concurrent
// use.
func NewFormatter() *Formatter {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(displayClass).OnElements("code", "pre", "span")

	return &Formatter{
		md: goldmark.New(
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: policy,
	}
}

// Display renders one message's text. With hideRaw set, fenced sim
// regions are stripped before the markdown pass so readers see prose
// only; otherwise they render as ordinary code blocks and get annotated
// later by AnnotateRawBlocks.
func (f *Formatter) Display(ex *block.Extractor, text string, hideRaw bool) template.HTML {
	if hideRaw {
		text, _ = ex.Strip(text)
	}

	var buf bytes.Buffer
	if err := f.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML("<p>" + template.HTMLEscapeString(text) + "</p>")
	}

	return template.HTML(f.policy.SanitizeBytes(buf.Bytes()))
}

// AnnotateRawBlocks marks rendered sim fences on an assembled page so
// the stylesheet can set them apart from ordinary code blocks. Both the
// configured tag and the default are matched, because messages written
// before a tag change keep their old fences; the seen set keeps each
// element annotated once when the two selectors overlap.
func AnnotateRawBlocks(doc *goquery.Document, tag string) {
	seen := make(map[*xhtml.Node]bool)
	for _, t := range []string{tag, block.DefaultTag} {
		if !selectorTag.MatchString(t) {
			continue
		}
		doc.Find("code.language-" + t).Each(func(_ int, sel *goquery.Selection) {
			node := sel.Get(0)
			if seen[node] {
				return
			}
			seen[node] = true
			sel.AddClass("sim-raw")
			sel.ParentsFiltered("pre").First().AddClass("sim-raw")
		})
	}
}
