package ops

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/place"
)

// newTestEnv builds an Env over a throwaway database.
func newTestEnv(t *testing.T) *Env {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	env := NewEnv(database, nil, nil)
	env.BaseDir = t.TempDir()
	return env
}

// seedChat inserts a chat plus one message per text, in order.
func seedChat(t *testing.T, env *Env, texts ...string) (string, []string) {
	t.Helper()
	c, err := CreateChat(env, "test chat")
	require.NoError(t, err)

	ids := make([]string, 0, len(texts))
	for _, text := range texts {
		m, err := AppendMessage(env, AppendInput{
			ChatID: c.ID,
			Author: "Narrator",
			Text:   text,
		})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	return c.ID, ids
}

// simBlock wraps a JSON body in a sim fence.
func simBlock(body string) string {
	return "```sim\n" + body + "\n```"
}

// testPage builds page HTML with one message element per id.
func testPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div class="message" data-msg-id=%q><div class="message-text">story text</div></div>`, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// newInjector parses a test page.
func newInjector(t *testing.T, ids ...string) *place.Injector {
	t.Helper()
	inj, err := place.NewInjectorFromHTML(testPage(ids...))
	require.NoError(t, err)
	return inj
}

// pageHTML serializes the injector's document.
func pageHTML(t *testing.T, inj *place.Injector) string {
	t.Helper()
	html, err := inj.HTML()
	require.NoError(t, err)
	return html
}
