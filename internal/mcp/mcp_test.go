package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/ops"
)

// testSetup creates an environment backed by a temporary database.
func testSetup(t *testing.T) (*ops.Env, func()) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	env := ops.NewEnv(database, nil, nil)
	env.BaseDir = t.TempDir()

	cleanup := func() {
		database.Close()
	}

	return env, cleanup
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// seedChat creates a chat with one message per text and returns the
// chat id plus message ids in order.
func seedChat(t *testing.T, env *ops.Env, texts ...string) (string, []string) {
	t.Helper()

	c, err := ops.CreateChat(env, "mcp test chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	ids := make([]string, 0, len(texts))
	for _, text := range texts {
		m, err := ops.AppendMessage(env, ops.AppendInput{
			ChatID: c.ID,
			Author: "Narrator",
			Text:   text,
		})
		if err != nil {
			t.Fatalf("append message: %v", err)
		}
		ids = append(ids, m.ID)
	}
	return c.ID, ids
}

func simBlock(body string) string {
	return "```sim\n" + body + "\n```"
}

// legacyAlice is a flat legacy block keyed by character name.
const legacyAlice = `{
  "current_date": "March 3",
  "Alice": {"ap": 78, "bg": "#2e3440", "last_react": 1, "internal_thought": "He came back."}
}`

func TestHandleStatus(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "1.2.3")
	ctx := context.Background()

	result, err := h.HandleStatus(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)

	if out["version"] != "1.2.3" {
		t.Errorf("version=%v, want 1.2.3", out["version"])
	}
	if out["enabled"] != true {
		t.Errorf("enabled=%v, want true", out["enabled"])
	}
	if out["chats"] != float64(0) {
		t.Errorf("chats=%v, want 0", out["chats"])
	}
	if out["captured"] != false {
		t.Errorf("captured=%v, want false", out["captured"])
	}

	// A chat plus one successful render flips both counters.
	seedChat(t, env, "hello there")
	renderRes, err := h.HandleRender(ctx, makeRequest(map[string]any{"body": legacyAlice}))
	if err != nil {
		t.Fatalf("render returned error: %v", err)
	}
	if renderRes.IsError {
		t.Fatalf("render failed: %v", extractErrorMessage(renderRes))
	}

	result, err = h.HandleStatus(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)

	if out["chats"] != float64(1) {
		t.Errorf("chats=%v, want 1", out["chats"])
	}
	if out["captured"] != true {
		t.Errorf("captured=%v, want true", out["captured"])
	}
}

func TestHandleRender(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	_, ids := seedChat(t, env, "story\n"+simBlock(legacyAlice))

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "render raw body",
			args:      map[string]any{"body": legacyAlice},
			wantError: false,
		},
		{
			name:      "render stored message",
			args:      map[string]any{"message_id": ids[0]},
			wantError: false,
		},
		{
			name:      "no addressing",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "unknown message",
			args:      map[string]any{"message_id": "nope"},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "body is not JSON",
			args:      map[string]any{"body": `{"Alice": `},
			wantError: true,
			errorCode: "BAD_BLOCK",
		},
		{
			name:      "body is not an object",
			args:      map[string]any{"body": `"just a string"`},
			wantError: true,
			errorCode: "BAD_SHAPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleRender(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else {
				if result.IsError {
					t.Errorf("expected success, got error: %v", extractErrorMessage(result))
				}
			}
		})
	}
}

func TestHandleRenderBodyFields(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	result, err := h.HandleRender(ctx, makeRequest(map[string]any{"body": legacyAlice}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)

	html, _ := out["html"].(string)
	if !strings.Contains(html, "Alice") {
		t.Errorf("html should contain the character name, got: %s", html)
	}
	if !strings.Contains(html, `data-sim-for="preview"`) {
		t.Errorf("body renders should be wrapped under the preview id, got: %s", html)
	}
	if out["format"] != "legacy" {
		t.Errorf("format=%v, want legacy", out["format"])
	}
	if out["characters"] != float64(1) {
		t.Errorf("characters=%v, want 1", out["characters"])
	}
}

func TestHandleMigrate(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	chatID, _ := seedChat(t, env,
		"intro\n"+simBlock(`{"Rin": {"ap": 5}}`)+"\noutro",
		simBlock(`{"worldData": {}, "characters": [{"name": "Zoe", "ap": 4}]}`),
	)

	result, err := h.HandleMigrate(ctx, makeRequest(map[string]any{"chat_id": chatID}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)

	if out["blocks"] != float64(2) {
		t.Errorf("blocks=%v, want 2", out["blocks"])
	}
	if out["migrated"] != float64(1) {
		t.Errorf("migrated=%v, want 1", out["migrated"])
	}
	if out["already_canonical"] != float64(1) {
		t.Errorf("already_canonical=%v, want 1", out["already_canonical"])
	}
	if out["messages_changed"] != float64(1) {
		t.Errorf("messages_changed=%v, want 1", out["messages_changed"])
	}
	if out["nothing_to_do"] != false {
		t.Errorf("nothing_to_do=%v, want false", out["nothing_to_do"])
	}

	// Second run is a no-op.
	result, err = h.HandleMigrate(ctx, makeRequest(map[string]any{"chat_id": chatID}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)

	if out["migrated"] != float64(0) {
		t.Errorf("second run migrated=%v, want 0", out["migrated"])
	}
	if out["nothing_to_do"] != true {
		t.Errorf("second run nothing_to_do=%v, want true", out["nothing_to_do"])
	}

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{
			name:      "missing chat_id",
			args:      map[string]any{},
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "unknown chat",
			args:      map[string]any{"chat_id": "missing"},
			errorCode: "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleMigrate(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result, got success")
			}
			assertErrorCode(t, result, tt.errorCode)
		})
	}
}

func TestHandleLint(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	chatID, _ := seedChat(t, env,
		simBlock(`{"Alice": {"ap": 10}}`),
		simBlock(`{"Alice": {"mood": "sunny"}}`),
	)

	result, err := h.HandleLint(ctx, makeRequest(map[string]any{"chat_id": chatID}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)

	if out["blocks"] != float64(2) {
		t.Errorf("blocks=%v, want 2", out["blocks"])
	}
	if out["clean"] != float64(1) {
		t.Errorf("clean=%v, want 1", out["clean"])
	}
	findings, _ := out["findings"].([]any)
	if len(findings) != 1 {
		t.Fatalf("findings=%d, want 1", len(findings))
	}

	result, err = h.HandleLint(ctx, makeRequest(map[string]any{"chat_id": "missing"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "NOT_FOUND")

	result, err = h.HandleLint(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandlePrompt(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	result, err := h.HandlePrompt(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)

	prompt, _ := out["prompt"].(string)
	if !strings.Contains(prompt, "```sim") {
		t.Errorf("prompt should name the fence tag, got: %s", prompt)
	}
	schema, _ := out["schema"].(string)
	if !strings.Contains(schema, "characters") {
		t.Errorf("schema should describe the canonical envelope, got: %s", schema)
	}
}

func TestHandleData(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	result, err := h.HandleData(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["found"] != false {
		t.Errorf("found=%v before any capture, want false", out["found"])
	}

	renderRes, err := h.HandleRender(ctx, makeRequest(map[string]any{"body": legacyAlice}))
	if err != nil {
		t.Fatalf("render returned error: %v", err)
	}
	if renderRes.IsError {
		t.Fatalf("render failed: %v", extractErrorMessage(renderRes))
	}

	result, err = h.HandleData(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)
	if out["found"] != true {
		t.Errorf("found=%v after capture, want true", out["found"])
	}
	if out["data"] != legacyAlice {
		t.Errorf("data=%v, want the captured body", out["data"])
	}

	result, err = h.HandleData(ctx, makeRequest(map[string]any{"path": "Alice.ap"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)
	if out["data"] != "78" {
		t.Errorf("data=%v for path Alice.ap, want 78", out["data"])
	}
}

func TestHandleSettingsUpdate(t *testing.T) {
	env, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(env, "test")
	ctx := context.Background()

	// Patch two keys; everything else keeps its default.
	result, err := h.HandleSettingsUpdate(ctx, makeRequest(map[string]any{
		"position": "left",
		"enabled":  false,
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)

	if out["position"] != "LEFT" {
		t.Errorf("position=%v, want LEFT", out["position"])
	}
	if out["enabled"] != false {
		t.Errorf("enabled=%v, want false", out["enabled"])
	}
	if out["code_block_tag"] != "sim" {
		t.Errorf("code_block_tag=%v, patch should not touch it", out["code_block_tag"])
	}

	// The patch persists.
	result, err = h.HandleSettingsGet(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)
	if out["position"] != "LEFT" {
		t.Errorf("persisted position=%v, want LEFT", out["position"])
	}

	result, err = h.HandleSettingsUpdate(ctx, makeRequest(map[string]any{
		"custom_fields": []any{map[string]any{"key": "mood", "description": "current mood"}},
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out = parseOutput(t, result)
	fields, _ := out["custom_fields"].([]any)
	if len(fields) != 1 {
		t.Fatalf("custom_fields=%d, want 1", len(fields))
	}

	result, err = h.HandleSettingsUpdate(ctx, makeRequest(map[string]any{
		"position": "DIAGONAL",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()

	if len(names) != 8 {
		t.Errorf("AllToolNames() returned %d names, want 8", len(names))
	}

	// Registry keys and definition names must agree: clients address
	// tools by the definition name.
	for name, entry := range toolRegistry {
		if entry.def.Name != name {
			t.Errorf("tool %q defined under name %q", name, entry.def.Name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	originalErr := errors.NewNotFound("chat", "abc")
	wrappedErr := fmt.Errorf("refresh: %w", originalErr)

	r := errorResult(wrappedErr)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}

	msg := errObj["message"].(string)
	if !strings.Contains(msg, "refresh:") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	r := errorResult(errors.NewNotFound("chat", "abc"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
