// Package mcp exposes the sim pipeline as MCP tools over stdio. Each
// tool decodes its arguments into a typed request, calls the matching
// operation, and wraps the result or error as an MCP tool result.
package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/simtrack/simtrack/internal/db"
	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env     *ops.Env
	version string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env, version string) *Handlers {
	return &Handlers{env: env, version: version}
}

// Request types for each tool

// RenderRequest represents the arguments for sim_render.
type RenderRequest struct {
	MessageID string `json:"message_id,omitempty"`
	Body      string `json:"body,omitempty"`
}

// MigrateRequest represents the arguments for sim_migrate.
type MigrateRequest struct {
	ChatID string `json:"chat_id"`
}

// LintRequest represents the arguments for sim_lint.
type LintRequest struct {
	ChatID string `json:"chat_id"`
}

// DataRequest represents the arguments for sim_data.
type DataRequest struct {
	Path string `json:"path,omitempty"`
}

// StatusOutput is the sim_status payload.
type StatusOutput struct {
	Version  string `json:"version"`
	Enabled  bool   `json:"enabled"`
	Tag      string `json:"code_block_tag"`
	Template string `json:"template"`
	Position string `json:"position"`
	Chats    int    `json:"chats"`
	Captured bool   `json:"captured"`
}

// HandleStatus handles the sim_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings, err := ops.GetSettings(h.env)
	if err != nil {
		return errorResult(err), nil
	}

	chats, err := db.ListChats(h.env.DB)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(StatusOutput{
		Version:  h.version,
		Enabled:  settings.Enabled,
		Tag:      settings.CodeBlockTag,
		Template: settings.Template,
		Position: settings.Position,
		Chats:    len(chats),
		Captured: h.env.Tracker.Last() != "",
	})
}

// HandleRender handles the sim_render tool call.
func (h *Handlers) HandleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RenderFragment(h.env, ops.RenderFragmentInput{
		MessageID: input.MessageID,
		Body:      input.Body,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMigrate handles the sim_migrate tool call.
func (h *Handlers) HandleMigrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MigrateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ChatID == "" {
		return errorResult(errors.NewInvalidRequest("chat_id is required")), nil
	}

	result, err := ops.MigrateChat(h.env, input.ChatID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleLint handles the sim_lint tool call.
func (h *Handlers) HandleLint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LintRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ChatID == "" {
		return errorResult(errors.NewInvalidRequest("chat_id is required")), nil
	}

	result, err := ops.LintChat(h.env, input.ChatID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePrompt handles the sim_prompt tool call.
func (h *Handlers) HandlePrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.BuildPrompt(h.env)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleData handles the sim_data tool call.
func (h *Handlers) HandleData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DataRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(ops.LastData(h.env, input.Path))
}

// HandleSettingsGet handles the sim_settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings, err := ops.GetSettings(h.env)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(settings)
}

// HandleSettingsUpdate handles the sim_settings_update tool call.
// Patch semantics: argument keys overlay the stored settings, absent
// keys keep their current value.
func (h *Handlers) HandleSettingsUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current, err := ops.GetSettings(h.env)
	if err != nil {
		return errorResult(err), nil
	}

	if err := decodeInto(req, &current); err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	updated, err := ops.UpdateSettings(h.env, current)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(updated)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: INTERNAL error details are not exposed to prevent leaking
// file paths or SQL errors.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var simErr *errors.SimError
	if stderrors.As(err, &simErr) {
		msg := simErr.Message
		// A wrapped error keeps its wrapper context in the message.
		if full := err.Error(); full != simErr.Error() {
			msg = full
		}
		errorObj := map[string]any{
			"code":    simErr.Code,
			"message": msg,
			"status":  simErr.Status,
		}
		if simErr.Code != errors.ErrInternal && simErr.Details != nil {
			errorObj["details"] = simErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
