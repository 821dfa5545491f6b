// Package place splices rendered card fragments into a chat page. It
// owns the DOM conventions: message elements are `.message` with a
// data-msg-id attribute and a `.message-text` content child, side
// panels hang off body, and every inserted element carries data-sim-for
// so teardown can find it again.
package place

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/simtrack/simtrack/internal/macro"
)

// Position says where a message's cards land.
type Position int

const (
	Bottom Position = iota
	Above
	Left
	Right
	Macro
)

// ParsePosition reads the settings enum; unknown values take the
// default position.
func ParsePosition(s string) Position {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ABOVE":
		return Above
	case "LEFT":
		return Left
	case "RIGHT":
		return Right
	case "MACRO":
		return Macro
	default:
		return Bottom
	}
}

func (p Position) String() string {
	switch p {
	case Above:
		return "ABOVE"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	case Macro:
		return "MACRO"
	default:
		return "BOTTOM"
	}
}

// State tracks one message's card through its render lifecycle.
type State int

const (
	NoCard State = iota
	Rendering
	Rendered
)

func (s State) String() string {
	switch s {
	case Rendering:
		return "rendering"
	case Rendered:
		return "rendered"
	default:
		return "no-card"
	}
}

// Injector mutates one page document. All methods run on the event
// loop; a fresh Injector is built per page assembly.
type Injector struct {
	doc    *goquery.Document
	states map[string]State
}

// NewInjector wraps an already-parsed page.
func NewInjector(doc *goquery.Document) *Injector {
	return &Injector{doc: doc, states: make(map[string]State)}
}

// NewInjectorFromHTML parses page HTML and wraps it.
func NewInjectorFromHTML(pageHTML string) (*Injector, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return NewInjector(doc), nil
}

// HTML serializes the current document.
func (inj *Injector) HTML() (string, error) {
	return inj.doc.Html()
}

// State returns the card state for a message.
func (inj *Injector) State(messageID string) State {
	return inj.states[messageID]
}

// Begin starts a render pass for a message: any prior insertion is torn
// down first so the page never accumulates duplicates.
func (inj *Injector) Begin(messageID string) {
	inj.Remove(messageID)
	inj.states[messageID] = Rendering
}

// Fail aborts the pass; with the prior fragment already removed the
// message is back to no card.
func (inj *Injector) Fail(messageID string) {
	inj.Remove(messageID)
	inj.states[messageID] = NoCard
}

// Complete inserts the wrapper-rendered fragment at the configured
// position. A missing anchor (message not on the page, no body for a
// panel, no macro slot) is a silent no-op returning false.
func (inj *Injector) Complete(messageID, fragment string, pos Position) bool {
	var inserted bool
	switch pos {
	case Above:
		inserted = inj.placeAbove(messageID, fragment)
	case Left:
		inserted = inj.placePanel("left", fragment)
	case Right:
		inserted = inj.placePanel("right", fragment)
	case Macro:
		inserted = inj.placeMacro(messageID, fragment)
	default:
		inserted = inj.placeBottom(messageID, fragment)
	}

	if inserted {
		inj.states[messageID] = Rendered
	} else {
		inj.states[messageID] = NoCard
	}
	return inserted
}

// Remove deletes every element inserted for a message: cards, divider,
// error marker, wherever they sit (message body or side panel).
func (inj *Injector) Remove(messageID string) {
	sel := fmt.Sprintf(`[data-sim-for=%q]`, messageID)
	inj.doc.Find(sel).Remove()
}

// InsertErrorMarker places an inline parse-failure marker in the
// message. The marker carries data-sim-for so the next pass removes it.
func (inj *Injector) InsertErrorMarker(messageID, text string) bool {
	content := inj.messageContent(messageID)
	if content == nil {
		return false
	}
	marker := fmt.Sprintf(`<div class="simtrack-error" data-sim-for=%q>%s</div>`,
		messageID, html.EscapeString(text))
	content.AppendHtml(marker)
	return true
}

// ClearPanels destroys both side panels.
func (inj *Injector) ClearPanels() {
	inj.doc.Find("#sim-panel-left, #sim-panel-right").Remove()
}

// Teardown removes everything simtrack put on the page and resets all
// card states.
func (inj *Injector) Teardown() {
	inj.doc.Find(".simtrack-cards, .simtrack-divider, .simtrack-error").Remove()
	inj.ClearPanels()
	inj.states = make(map[string]State)
}

func (inj *Injector) placeBottom(messageID, fragment string) bool {
	content := inj.messageContent(messageID)
	if content == nil {
		return false
	}
	content.AppendHtml(divider(messageID) + fragment)
	return true
}

func (inj *Injector) placeAbove(messageID, fragment string) bool {
	msg := inj.message(messageID)
	if msg == nil {
		return false
	}
	// A reasoning block outranks the text: cards sit directly above it.
	if reasoning := msg.Find(".message-reasoning").First(); reasoning.Length() > 0 {
		reasoning.BeforeHtml(fragment + divider(messageID))
		return true
	}
	content := msg.Find(".message-text").First()
	if content.Length() == 0 {
		return false
	}
	content.PrependHtml(fragment + divider(messageID))
	return true
}

func (inj *Injector) placePanel(side, fragment string) bool {
	body := inj.doc.Find("body").First()
	if body.Length() == 0 {
		return false
	}
	id := "sim-panel-" + side
	// Destroy-then-recreate: the panel is never patched in place.
	inj.doc.Find("#" + id).Remove()
	body.AppendHtml(fmt.Sprintf(`<div id=%q class="sim-panel sim-panel-%s">%s</div>`, id, side, fragment))
	return true
}

func (inj *Injector) placeMacro(messageID, fragment string) bool {
	msg := inj.message(messageID)
	if msg == nil {
		return false
	}
	slot := msg.Find("." + macro.SlotClass).First()
	if slot.Length() == 0 {
		return false
	}
	// The slot itself stays so the next render still has its anchor.
	slot.SetHtml(fragment)
	return true
}

func (inj *Injector) message(messageID string) *goquery.Selection {
	sel := inj.doc.Find(fmt.Sprintf(`.message[data-msg-id=%q]`, messageID)).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

func (inj *Injector) messageContent(messageID string) *goquery.Selection {
	msg := inj.message(messageID)
	if msg == nil {
		return nil
	}
	content := msg.Find(".message-text").First()
	if content.Length() == 0 {
		return nil
	}
	return content
}

func divider(messageID string) string {
	return fmt.Sprintf(`<hr class="simtrack-divider" data-sim-for=%q>`, messageID)
}
