package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Names and argument keys are the wire contract;
// changing one breaks every client config that lists it.

var statusToolDef = mcp.NewTool("sim_status",
	mcp.WithDescription("Report tracker status: version, settings summary, chat count, and whether sim data has been captured this session."),
)

var renderToolDef = mcp.NewTool("sim_render",
	mcp.WithDescription("Render sim data to an HTML card fragment. Pass message_id to render the newest block of a stored message, or body to render raw JSON directly."),
	mcp.WithString("message_id",
		mcp.Description("Message whose newest sim block should be rendered."),
	),
	mcp.WithString("body",
		mcp.Description("Raw sim JSON to render instead of a stored message."),
	),
)

var migrateToolDef = mcp.NewTool("sim_migrate",
	mcp.WithDescription("Rewrite every legacy sim block in a chat to the canonical worldData/characters shape. Returns per-message counts; blocks that fail to parse are left untouched."),
	mcp.WithString("chat_id",
		mcp.Required(),
		mcp.Description("Chat to migrate."),
	),
)

var lintToolDef = mcp.NewTool("sim_lint",
	mcp.WithDescription("Validate every sim block in a chat against the expected JSON shape, including custom fields. Returns per-block findings."),
	mcp.WithString("chat_id",
		mcp.Required(),
		mcp.Description("Chat to lint."),
	),
)

var promptToolDef = mcp.NewTool("sim_prompt",
	mcp.WithDescription("Return the tracking prompt to append to generation requests, plus the JSON schema sim blocks are expected to match."),
)

var dataToolDef = mcp.NewTool("sim_data",
	mcp.WithDescription("Return the last captured sim JSON, optionally drilled into with a gjson path such as Alice.ap."),
	mcp.WithString("path",
		mcp.Description("Optional gjson path into the captured data."),
	),
)

var settingsGetToolDef = mcp.NewTool("sim_settings_get",
	mcp.WithDescription("Return the current extension settings."),
)

var settingsUpdateToolDef = mcp.NewTool("sim_settings_update",
	mcp.WithDescription("Patch extension settings. Only the keys present in the arguments change; returns the full normalized settings object."),
	mcp.WithBoolean("enabled",
		mcp.Description("Master toggle for the whole pipeline."),
	),
	mcp.WithString("code_block_tag",
		mcp.Description("Fence tag that marks sim blocks. Single word, no backticks."),
	),
	mcp.WithString("default_bg_color",
		mcp.Description("Fallback card background color."),
	),
	mcp.WithBoolean("show_thought_bubble",
		mcp.Description("Show the internal thought line on cards."),
	),
	mcp.WithString("template",
		mcp.Description("Card template name, or \"custom\" to use custom_template."),
	),
	mcp.WithString("custom_template",
		mcp.Description("Custom card template HTML."),
	),
	mcp.WithString("position",
		mcp.Description("Where rendered cards are placed."),
		mcp.Enum("ABOVE", "BOTTOM", "LEFT", "RIGHT", "MACRO"),
	),
	mcp.WithBoolean("hide_raw_blocks",
		mcp.Description("Hide raw sim fences in displayed chat text."),
	),
	mcp.WithArray("custom_fields",
		mcp.Description("User-defined stats as objects with key and description."),
	),
)
