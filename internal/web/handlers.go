package web

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/simtrack/simtrack/internal/block"
	"github.com/simtrack/simtrack/internal/chat"
	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/ops"
	"github.com/simtrack/simtrack/internal/place"
	"github.com/simtrack/simtrack/internal/render"
	"github.com/simtrack/simtrack/internal/session"
)

// Handlers contains HTTP route handlers for the preview UI.
type Handlers struct {
	env       *ops.Env
	renderer  *Renderer
	formatter *Formatter
	hub       *Hub
}

// HandleChats handles GET /chats, the chat list.
func (h *Handlers) HandleChats(w http.ResponseWriter, r *http.Request) {
	chats, err := db.ListChats(h.env.DB)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "chats", ChatsPageData{
		PageData: PageData{
			Title:   "Chats",
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Chats: chats,
	})
}

// HandleCreateChat handles POST /chats and creates an empty chat.
func (h *Handlers) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("title is required"))
		return
	}

	c, err := ops.CreateChat(h.env, title)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, "/chats/"+c.ID, http.StatusFound)
}

// HandleChat handles GET /chats/{id}, the assembled chat page. The
// message log is built as a plain scaffold, run through the same
// placement pipeline the host would drive, then embedded in the layout.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	c, err := db.GetChat(h.env.DB, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	settings, err := ops.GetSettings(h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	msgs, err := db.ListMessages(h.env.DB, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	scaffold := h.chatScaffold(msgs, settings)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(scaffold))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	inj := place.NewInjector(doc)
	res, err := ops.RefreshChat(h.env, inj, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	AnnotateRawBlocks(doc, settings.CodeBlockTag)

	logHTML, err := doc.Find("body").Html()
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	migrated := parseIntParam(r, "migrated", -1)

	h.renderer.renderPage(w, "chat", ChatPageData{
		PageData: PageData{
			Title:   c.Title,
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Chat:     c,
		LogHTML:  template.HTML(logHTML),
		Refresh:  res,
		Migrated: migrated,
		HasFlash: migrated >= 0,
	})
}

// HandleAppend handles POST /chats/{id}/messages: append a message and
// bounce back to the page, which re-renders it through the pipeline.
func (h *Handlers) HandleAppend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	author := strings.TrimSpace(r.FormValue("author"))
	if author == "" {
		author = "Narrator"
	}

	_, err := ops.AppendMessage(h.env, ops.AppendInput{
		ChatID: id,
		Author: author,
		Text:   r.FormValue("text"),
		IsUser: formBool(r, "is_user"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, "/chats/"+id, http.StatusFound)
}

// HandleMigrate handles POST /chats/{id}/migrate, the bulk legacy rewrite.
func (h *Handlers) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := ops.MigrateChat(h.env, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/chats/%s?migrated=%d", id, result.Migrated), http.StatusFound)
}

// HandleLint handles GET /chats/{id}/lint, the block lint report.
func (h *Handlers) HandleLint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	c, err := db.GetChat(h.env.DB, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.LintChat(h.env, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "lint", LintPageData{
		PageData: PageData{
			Title:   "Lint: " + c.Title,
			Version: h.renderer.version,
			Nav:     "chats",
		},
		Chat:   c,
		Result: result,
	})
}

// HandleSettings handles GET /settings, the settings form.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := ops.GetSettings(h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "settings", SettingsPageData{
		PageData: PageData{
			Title:   "Settings",
			Version: h.renderer.version,
			Nav:     "settings",
		},
		Settings:  settings,
		Templates: render.Builtins(),
		Positions: []string{"ABOVE", "BOTTOM", "LEFT", "RIGHT", "MACRO"},
		Saved:     r.URL.Query().Get("saved") == "1",
	})
}

// HandleSettingsSave handles POST /settings: validate and persist the
// form, then bounce back. The settings-changed event refreshes any
// other open page.
func (h *Handlers) HandleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	s := session.Settings{
		Enabled:           formBool(r, "enabled"),
		CodeBlockTag:      r.FormValue("code_block_tag"),
		DefaultBgColor:    r.FormValue("default_bg_color"),
		ShowThoughtBubble: formBool(r, "show_thought_bubble"),
		Template:          r.FormValue("template"),
		CustomTemplate:    r.FormValue("custom_template"),
		Position:          r.FormValue("position"),
		HideRawBlocks:     formBool(r, "hide_raw_blocks"),
	}

	keys := r.Form["custom_field_key"]
	descs := r.Form["custom_field_description"]
	for i, key := range keys {
		desc := ""
		if i < len(descs) {
			desc = descs[i]
		}
		s.CustomFields = append(s.CustomFields, session.CustomField{Key: key, Description: desc})
	}

	if _, err := ops.UpdateSettings(h.env, s); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	http.Redirect(w, r, "/settings?saved=1", http.StatusFound)
}

// chatScaffold builds the plain message log the placement pipeline
// operates on: the same .message / .message-text structure a host page
// carries, with macro-expanded, formatted text inside.
func (h *Handlers) chatScaffold(msgs []*chat.Message, settings session.Settings) string {
	ex := block.NewExtractor(settings.CodeBlockTag)
	expander := h.env.Expander()

	var b strings.Builder
	b.WriteString(`<div class="chat-log">`)
	for _, m := range msgs {
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		if m.IsSystem {
			role = "system"
		}
		fmt.Fprintf(&b, `<div class="message message-%s" data-msg-id=%q>`, role, m.ID)
		fmt.Fprintf(&b, `<div class="message-author">%s</div>`, template.HTMLEscapeString(m.Author))
		b.WriteString(`<div class="message-text">`)
		text := expander.Expand(m.ActiveText())
		b.WriteString(string(h.formatter.Display(ex, text, settings.HideRawBlocks)))
		b.WriteString(`</div></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// formBool reads a checkbox-style form value.
func formBool(r *http.Request, name string) bool {
	v := r.FormValue(name)
	return v == "on" || v == "true" || v == "1"
}
