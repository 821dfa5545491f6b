// Package web serves the loopback preview UI: chat pages assembled
// through the same render pipeline the host drives, a settings form,
// and a websocket channel that tells open pages to reload when the
// underlying data changes.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/simtrack/simtrack/internal/ops"
	"github.com/simtrack/simtrack/internal/render"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates and configures the HTTP server for the preview UI.
func NewServer(env *ops.Env, version, bind string, port int) *http.Server {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		env.Logger.Fatal("template sub-FS", zap.Error(err))
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		env.Logger.Fatal("static sub-FS", zap.Error(err))
	}

	renderer := NewRenderer(templateSub, version, env.Logger)

	hub := NewHub(env.Logger)
	hub.Subscribe(env.Bus)

	h := &Handlers{
		env:       env,
		renderer:  renderer,
		formatter: NewFormatter(),
		hub:       hub,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/chats", http.StatusFound)
	})
	mux.HandleFunc("GET /chats", h.HandleChats)
	mux.HandleFunc("POST /chats", h.HandleCreateChat)
	mux.HandleFunc("GET /chats/{id}", h.HandleChat)
	mux.HandleFunc("POST /chats/{id}/messages", h.HandleAppend)
	mux.HandleFunc("POST /chats/{id}/migrate", h.HandleMigrate)
	mux.HandleFunc("GET /chats/{id}/lint", h.HandleLint)
	mux.HandleFunc("GET /settings", h.HandleSettings)
	mux.HandleFunc("POST /settings", h.HandleSettingsSave)
	mux.HandleFunc("GET /ws", hub.ServeWS)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	handler := securityHeaders(mux)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", bind, port),
		Handler: handler,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
// Inline style attributes are allowed because card templates carry
// per-character colors; scripts stay restricted to our own files.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:; img-src 'self' data:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// SyncCustomTemplate loads the card template file into settings now and
// again on every file change, so edits recompile the template and
// refresh open preview pages. Close the returned watcher to stop.
func SyncCustomTemplate(env *ops.Env, path string) (*fsnotify.Watcher, error) {
	apply := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			env.Logger.Warn("custom template read failed", zap.String("path", path), zap.Error(err))
			return
		}

		settings, err := ops.GetSettings(env)
		if err != nil {
			env.Logger.Warn("custom template sync: load settings", zap.Error(err))
			return
		}
		if settings.Template == "custom" && settings.CustomTemplate == string(data) {
			return
		}

		settings.Template = "custom"
		settings.CustomTemplate = string(data)
		if _, err := ops.UpdateSettings(env, settings); err != nil {
			env.Logger.Warn("custom template sync: save settings", zap.Error(err))
			return
		}
		env.Logger.Info("custom template reloaded", zap.String("path", path), zap.Int("bytes", len(data)))
	}

	apply()
	return render.Watch(path, apply)
}

// Run starts the HTTP server and handles graceful shutdown on
// SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("preview running", zap.String("url", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
