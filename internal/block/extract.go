// Package block locates fenced sim-data regions inside raw chat message
// text. A region is a triple-backtick fence opened with the configured
// language tag and closed by the next bare triple-backtick fence; nesting
// is not supported, so the first opener and the first closer win.
package block

import (
	"regexp"
	"strings"
)

// DefaultTag is the fence language tag used when none is configured.
const DefaultTag = "sim"

// Match holds byte offsets into the source text for one fenced region.
// Start/End span the whole region including both fences; BodyStart/BodyEnd
// span the interior between the opening line and the closing fence.
type Match struct {
	Start     int
	End       int
	BodyStart int
	BodyEnd   int
}

// Body returns the raw interior of the region, untrimmed.
func (m Match) Body(text string) string {
	return text[m.BodyStart:m.BodyEnd]
}

// Extractor matches fenced regions for one configured tag. Build a new
// one whenever the tag setting changes; the zero value is not usable.
type Extractor struct {
	tag string
	re  *regexp.Regexp
}

// NewExtractor compiles the fence pattern for tag. An empty tag falls
// back to DefaultTag.
func NewExtractor(tag string) *Extractor {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = DefaultTag
	}
	// (?s) lets the body span newlines; the non-greedy group stops at the
	// first closing fence, which is what makes nesting unsupported.
	re := regexp.MustCompile("(?s)```[ \t]*" + regexp.QuoteMeta(tag) + "[ \t]*\r?\n(.*?)```")
	return &Extractor{tag: tag, re: re}
}

// Tag returns the configured fence tag.
func (e *Extractor) Tag() string {
	return e.tag
}

// First returns the trimmed body of the first fenced region, or ok=false
// when the text carries none. Absence is not an error.
func (e *Extractor) First(text string) (string, bool) {
	m, ok := e.FirstMatch(text)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(m.Body(text)), true
}

// FirstMatch returns offsets for the first fenced region.
func (e *Extractor) FirstMatch(text string) (Match, bool) {
	loc := e.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return Match{}, false
	}
	return Match{Start: loc[0], End: loc[1], BodyStart: loc[2], BodyEnd: loc[3]}, true
}

// All returns offsets for every fenced region in document order. Bulk
// callers (migration, context filtering) operate on all of them, not just
// the first.
func (e *Extractor) All(text string) []Match {
	locs := e.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	matches := make([]Match, len(locs))
	for i, loc := range locs {
		matches[i] = Match{Start: loc[0], End: loc[1], BodyStart: loc[2], BodyEnd: loc[3]}
	}
	return matches
}

// Contains reports whether the text carries at least one fenced region.
func (e *Extractor) Contains(text string) bool {
	return e.re.MatchString(text)
}

// Strip removes every fenced region (fences included) and returns the
// remaining text plus the number of regions removed. Surrounding message
// text is left byte-for-byte untouched.
func (e *Extractor) Strip(text string) (string, int) {
	matches := e.All(text)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m.Start])
		prev = m.End
	}
	b.WriteString(text[prev:])
	return b.String(), len(matches)
}

// Rewrite substitutes a new body into the region described by m, keeping
// both fences and everything outside the region untouched. The body is
// written with a trailing newline so the closing fence stays on its own
// line.
func Rewrite(text string, m Match, body string) string {
	body = strings.TrimRight(body, "\n")
	return text[:m.BodyStart] + body + "\n" + text[m.BodyEnd:]
}
