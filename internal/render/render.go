// Package render compiles card templates and turns render contexts into
// HTML fragments. Compilation happens once per template-selection change
// and always succeeds: bad selections cascade to the default built-in
// and finally to a minimal hardcoded card that cannot fail.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/simtrack/simtrack/internal/cards"
)

//go:embed templates
var templatesFS embed.FS

// fallbackCard is the backstop template. It references only fields that
// always exist, so once parsed it cannot fail at execution either.
const fallbackCard = `<div class="sim-card sim-card-minimal" style="background: {{.Background}}; border-color: {{.Darkened}};">
  <span class="sim-name">{{.Name}}</span>
  <span class="sim-react">{{.ReactionEmoji}}</span>
  {{if .HealthIcon}}<span class="sim-health">{{.HealthIcon}}</span>{{end}}
</div>
`

// funcs is the helper set card templates rely on. Equality, comparison
// and negation come with the engine; everything here is total, and bad
// input degrades to a safe value instead of failing the render.
var funcs = template.FuncMap{
	"intdiv":      intdiv,
	"ceildiv":     ceildiv,
	"adjustColor": adjustColor,
	"darken":      cards.Darken,
	"stackOrder":  stackOrder,
	"offsetY":     offsetY,
	"initial":     cards.Initial,
}

var (
	wrapperTmpl = template.Must(template.New("wrapper").Parse(
		`<div class="simtrack-cards" data-sim-for="{{.MessageID}}">{{.Inner}}</div>`))
	fallbackTmpl = template.Must(template.New("fallback").Funcs(funcs).Parse(fallbackCard))
)

// Engine holds the currently compiled card template. Selection changes
// recompile; renders only read. The lock keeps the preview server's
// handlers safe alongside the event loop.
type Engine struct {
	mu        sync.RWMutex
	selection string
	card      *template.Template
	tabbed    bool
	warnings  []string
}

// NewEngine starts with the default built-in compiled.
func NewEngine() *Engine {
	e := &Engine{}
	e.Select(defaultBuiltin().ID, "")
	return e
}

// Select compiles the card template for the given selection: a built-in
// template id, or custom HTML when customHTML is non-empty. Returns the
// user-visible warnings produced while falling back; empty means the
// selection compiled cleanly. Reselecting the same inputs is a no-op.
func (e *Engine) Select(templateID, customHTML string) []string {
	key := selectionKey(templateID, customHTML)

	e.mu.Lock()
	defer e.mu.Unlock()
	if key == e.selection && e.card != nil {
		return e.warnings
	}

	var warnings []string
	tabbed := strings.Contains(strings.ToLower(templateID), "tabs")

	var tmpl *template.Template
	var customErr error
	if customHTML != "" {
		region, err := ExtractCardRegion(customHTML)
		if err == nil {
			tmpl, err = compileCard("custom", region)
		}
		customErr = err
	}

	if tmpl == nil {
		info, ok := lookupBuiltin(templateID)
		if !ok {
			info = defaultBuiltin()
		}
		if customErr != nil {
			warnings = append(warnings, fmt.Sprintf("custom template unusable (%v), falling back to %q", customErr, info.ID))
		} else if customHTML == "" && !ok {
			warnings = append(warnings, fmt.Sprintf("unknown template %q, falling back to %q", templateID, info.ID))
		}
		var err error
		tmpl, err = compileBuiltin(info)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("template %q unusable (%v), using minimal card", info.ID, err))
			tmpl = fallbackTmpl
			tabbed = false
		} else {
			tabbed = info.Tabbed
		}
	}

	e.selection = key
	e.card = tmpl
	e.tabbed = tabbed
	e.warnings = warnings
	return warnings
}

// Tabbed reports whether the active template renders in tabbed mode.
func (e *Engine) Tabbed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tabbed
}

// Warnings returns the warnings from the last selection.
func (e *Engine) Warnings() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.warnings
}

// RenderCards renders a batch: per-character templates execute once per
// context and concatenate in character order; tabbed templates execute
// once with the whole batch. An execution failure of the selected
// template degrades to the minimal card rather than failing the render.
func (e *Engine) RenderCards(batch cards.Batch) (string, error) {
	e.mu.RLock()
	card, tabbed := e.card, e.tabbed
	e.mu.RUnlock()

	if len(batch.Characters) == 0 {
		return "", nil
	}

	if tabbed {
		var buf bytes.Buffer
		if err := card.Execute(&buf, batch); err == nil {
			return buf.String(), nil
		}
		return renderPerCharacter(fallbackTmpl, batch)
	}

	out, err := renderPerCharacter(card, batch)
	if err != nil {
		return renderPerCharacter(fallbackTmpl, batch)
	}
	return out, nil
}

// Wrap encloses rendered card HTML in the per-message wrapper the
// placement layer keys on.
func Wrap(messageID, inner string) (string, error) {
	var buf bytes.Buffer
	err := wrapperTmpl.Execute(&buf, struct {
		MessageID string
		Inner     template.HTML
	}{MessageID: messageID, Inner: template.HTML(inner)})
	if err != nil {
		return "", fmt.Errorf("wrap fragment: %w", err)
	}
	return buf.String(), nil
}

func renderPerCharacter(tmpl *template.Template, batch cards.Batch) (string, error) {
	var b strings.Builder
	for _, ctx := range batch.Characters {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, ctx); err != nil {
			return "", fmt.Errorf("render card for %s: %w", ctx.Name, err)
		}
		b.Write(buf.Bytes())
	}
	return b.String(), nil
}

func compileBuiltin(info TemplateInfo) (*template.Template, error) {
	data, err := templatesFS.ReadFile("templates/" + info.File)
	if err != nil {
		return nil, err
	}
	return compileCard(info.ID, string(data))
}

func compileCard(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(funcs).Parse(text)
}

func selectionKey(templateID, customHTML string) string {
	if customHTML == "" {
		return "builtin:" + templateID
	}
	// The custom body participates so edits to it recompile.
	return fmt.Sprintf("custom:%s:%d:%s", templateID, len(customHTML), customHTML)
}

// intdiv divides two integers, returning 0 on non-numeric input or a
// zero divisor.
func intdiv(a, b any) int {
	ai, err1 := cast.ToIntE(a)
	bi, err2 := cast.ToIntE(b)
	if err1 != nil || err2 != nil || bi == 0 {
		return 0
	}
	return ai / bi
}

// ceildiv divides rounding up, with the same degraded cases as intdiv.
func ceildiv(a, b any) int {
	af, err1 := cast.ToFloat64E(a)
	bf, err2 := cast.ToFloat64E(b)
	if err1 != nil || err2 != nil || bf == 0 {
		return 0
	}
	return int(math.Ceil(af / bf))
}

// adjustColor scales a color's brightness to percent. Non-numeric
// percent leaves the color at full brightness.
func adjustColor(color string, percent any) string {
	p, err := cast.ToIntE(percent)
	if err != nil {
		p = 100
	}
	return cards.Adjust(color, p)
}

// stackOrder yields a stable z-index so earlier characters stack above
// later ones.
func stackOrder(index any) int {
	i, err := cast.ToIntE(index)
	if err != nil {
		return 0
	}
	return 50 - i
}

// offsetY yields the vertical offset for a stacked element at index.
func offsetY(index any) int {
	i, err := cast.ToIntE(index)
	if err != nil {
		return 0
	}
	return i * 6
}
