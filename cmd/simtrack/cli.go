package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/chat"
	"github.com/simtrack/simtrack/internal/errors"
	"github.com/simtrack/simtrack/internal/ops"
	"github.com/simtrack/simtrack/internal/session"
	"github.com/simtrack/simtrack/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *ops.Env) *cli.App {
	app := &cli.App{
		Name:    "simtrack",
		Usage:   "Track character sim blocks in chat logs",
		Version: Version,
		Commands: []*cli.Command{
			importCmd(env),
			exportCmd(env),
			appendCmd(env),
			editCmd(env),
			swipeCmd(env),
			renderCmd(env),
			migrateCmd(env),
			lintCmd(env),
			promptCmd(env),
			filterCmd(env),
			settingsCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// importCmd creates the import command.
func importCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a JSONL chat log into a new chat",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Chat log file path"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Chat title (defaults to the log header or filename)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ImportChat(env, ops.ImportChatInput{
				Path:  c.String("path"),
				Title: c.String("title"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a chat as a JSONL log",
		ArgsUsage: "<chat-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.simtrack/exports/<title>-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("chat id argument is required"))
			}
			output, err := ops.ExportChat(env, ops.ExportChatInput{
				ChatID: c.Args().First(),
				Path:   c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// appendCmd creates the append command.
func appendCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "append",
		Usage:     "Append a message to a chat (reads text from stdin or --text)",
		ArgsUsage: "<chat-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Value: "Narrator", Usage: "Message author"},
			&cli.StringFlag{Name: "text", Usage: "Message text (stdin wins when piped)"},
			&cli.BoolFlag{Name: "user", Usage: "Mark as a user message"},
			&cli.BoolFlag{Name: "system", Usage: "Mark as a system message"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("chat id argument is required"))
			}

			text := c.String("text")
			if stdinHasData() {
				piped, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if piped != "" {
					text = piped
				}
			}
			if text == "" {
				return outputError(errors.NewInvalidRequest("message text is required (pipe it or pass --text)"))
			}

			msg, err := ops.AppendMessage(env, ops.AppendInput{
				ChatID:   c.Args().First(),
				Author:   c.String("author"),
				Text:     text,
				IsUser:   c.Bool("user"),
				IsSystem: c.Bool("system"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(msg)
		},
	}
}

// editCmd creates the edit command.
func editCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Rewrite a message's active text (reads text from stdin or --text)",
		ArgsUsage: "<message-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Usage: "Replacement text (stdin wins when piped)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("message id argument is required"))
			}

			text := c.String("text")
			if stdinHasData() {
				piped, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if piped != "" {
					text = piped
				}
			}
			if text == "" {
				return outputError(errors.NewInvalidRequest("replacement text is required (pipe it or pass --text)"))
			}

			msg, err := ops.EditMessage(env, c.Args().First(), text)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(msg)
		},
	}
}

// swipeCmd creates the swipe command.
func swipeCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "swipe",
		Usage:     "Add a swipe variant to a message, or activate an existing one",
		ArgsUsage: "<message-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Usage: "New variant text to add and activate"},
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Value: -1, Usage: "Existing variant index to activate"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("message id argument is required"))
			}
			if c.IsSet("text") && c.IsSet("index") {
				return outputError(errors.NewInvalidRequest("pass either --text or --index, not both"))
			}

			var (
				msg *chat.Message
				err error
			)
			switch {
			case c.IsSet("index"):
				msg, err = ops.SwitchSwipe(env, c.Args().First(), c.Int("index"))
			case c.IsSet("text"):
				msg, err = ops.SwipeMessage(env, c.Args().First(), c.String("text"))
			default:
				return outputError(errors.NewInvalidRequest("either --text or --index is required"))
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(msg)
		},
	}
}

// renderCmd creates the render command.
func renderCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "render",
		Usage: "Render sim data to a card fragment (from a stored message or a block body on stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message ID whose block is rendered"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RenderFragmentInput{MessageID: c.String("message")}

			if input.MessageID == "" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("either --message or a block body on stdin is required"))
				}
				body, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				input.Body = body
			}

			output, err := ops.RenderFragment(env, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// migrateCmd creates the migrate command.
func migrateCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "Rewrite legacy sim blocks in a chat to the canonical envelope",
		ArgsUsage: "<chat-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("chat id argument is required"))
			}
			output, err := ops.MigrateChat(env, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// lintCmd creates the lint command.
func lintCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "lint",
		Usage:     "Validate every sim block in a chat against the expected shape",
		ArgsUsage: "<chat-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("chat id argument is required"))
			}
			output, err := ops.LintChat(env, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// promptCmd creates the prompt command.
func promptCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Print the tracking prompt and expected-shape schema",
		Action: func(c *cli.Context) error {
			output, err := ops.BuildPrompt(env)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// filterCmd creates the filter command.
func filterCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     "Preview the context filter: which messages keep their sim blocks when sent",
		ArgsUsage: "<chat-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Value: ops.ReasonGenerate, Usage: "Generation reason: generate|swipe|regenerate"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("chat id argument is required"))
			}
			output, err := ops.FilterChat(env, c.Args().First(), c.String("reason"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// settingsCmd creates the settings command with get/set subcommands.
func settingsCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Read or update the tracker settings",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print current settings",
				Action: func(c *cli.Context) error {
					settings, err := ops.GetSettings(env)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(settings)
				},
			},
			{
				Name:  "set",
				Usage: "Update settings; only the flags you pass change",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "enabled", Usage: "Enable or disable the pipeline"},
					&cli.StringFlag{Name: "tag", Usage: "Fence tag that marks sim blocks"},
					&cli.StringFlag{Name: "bg", Usage: "Default card background color"},
					&cli.BoolFlag{Name: "thought", Usage: "Show the thought line on cards"},
					&cli.StringFlag{Name: "template", Usage: "Card template: default|tabs|compact|custom"},
					&cli.StringFlag{Name: "custom-template", Usage: "Path to a custom card template file (implies --template custom)"},
					&cli.StringFlag{Name: "position", Usage: "Card position: ABOVE|BOTTOM|LEFT|RIGHT|MACRO"},
					&cli.BoolFlag{Name: "hide-raw", Usage: "Hide raw sim fences in rendered messages"},
					&cli.StringSliceFlag{Name: "custom-field", Usage: "Custom tracked field as key=description; repeat to set several, replaces the list"},
					&cli.BoolFlag{Name: "clear-custom-fields", Usage: "Remove all custom tracked fields"},
				},
				Action: func(c *cli.Context) error {
					settings, err := ops.GetSettings(env)
					if err != nil {
						return outputError(err)
					}

					if c.IsSet("enabled") {
						settings.Enabled = c.Bool("enabled")
					}
					if c.IsSet("tag") {
						settings.CodeBlockTag = c.String("tag")
					}
					if c.IsSet("bg") {
						settings.DefaultBgColor = c.String("bg")
					}
					if c.IsSet("thought") {
						settings.ShowThoughtBubble = c.Bool("thought")
					}
					if c.IsSet("template") {
						settings.Template = c.String("template")
					}
					if c.IsSet("custom-template") {
						data, err := os.ReadFile(c.String("custom-template"))
						if err != nil {
							return outputError(errors.NewInvalidRequest(fmt.Sprintf("cannot read custom template: %v", err)))
						}
						settings.CustomTemplate = string(data)
						settings.Template = "custom"
					}
					if c.IsSet("position") {
						settings.Position = c.String("position")
					}
					if c.IsSet("hide-raw") {
						settings.HideRawBlocks = c.Bool("hide-raw")
					}
					if c.Bool("clear-custom-fields") {
						settings.CustomFields = nil
					}
					if c.IsSet("custom-field") {
						fields, err := parseCustomFields(c.StringSlice("custom-field"))
						if err != nil {
							return outputError(err)
						}
						settings.CustomFields = fields
					}

					output, err := ops.UpdateSettings(env, settings)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local preview server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Interface to listen on (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind := env.Config.WebBind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := env.Config.WebPort
			if c.IsSet("port") {
				port = c.Int("port")
			}

			if path := env.Config.CustomTemplatePath; path != "" {
				watcher, err := web.SyncCustomTemplate(env, path)
				if err != nil {
					env.Logger.Warn("custom template watch failed",
						zap.String("path", path), zap.Error(err))
				} else {
					defer watcher.Close()
				}
			}

			srv := web.NewServer(env, Version, bind, port)
			return web.Run(srv, env.Logger)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var simErr *errors.SimError
	if stderrors.As(err, &simErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", simErr.Code, simErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseCustomFields parses repeated key=description flag values.
func parseCustomFields(raw []string) ([]session.CustomField, error) {
	fields := make([]session.CustomField, 0, len(raw))
	for _, r := range raw {
		key, desc, _ := strings.Cut(r, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("custom field %q must look like key=description", r))
		}
		fields = append(fields, session.CustomField{Key: key, Description: strings.TrimSpace(desc)})
	}
	return fields, nil
}
