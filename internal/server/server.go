package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/TobiSchelling/AutoPoster/internal/autopost"
	"github.com/TobiSchelling/AutoPoster/internal/credentials"
	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/settings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Post text is plain prose with line breaks and hashtags.
var md = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

const recentRunsLimit = 20

// Autoposter is what the status page and the control endpoints need.
type Autoposter interface {
	Status(ctx context.Context) (settings.Settings, *time.Time, error)
	State() autopost.State
	RunOnce(ctx context.Context) (string, error)
	Enable(ctx context.Context, chatID, ownerUserID int64, intervalMinutes int, styleName string) (settings.Settings, error)
	Disable(ctx context.Context) (settings.Settings, error)
}

// Journal reads the run history.
type Journal interface {
	RecentRuns(ctx context.Context, limit int) ([]database.Run, error)
	LatestPublished(ctx context.Context) (*database.Run, error)
	GetStats(ctx context.Context) (*database.Stats, error)
}

// Connector completes an OAuth redirect.
type Connector interface {
	ConnectWithState(ctx context.Context, state, code string) (int64, *credentials.Account, error)
}

// Notifier tells a user their account was connected.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Deps are the server's collaborators. Connector and Notifier are optional.
type Deps struct {
	Autopost  Autoposter
	Journal   Journal
	Connector Connector
	Notifier  Notifier
}

// Server is the HTTP surface: status page, manual trigger and OAuth callback.
type Server struct {
	deps  Deps
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(deps Deps) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefID": func(id *int64) string {
			if id == nil {
				return "-"
			}
			return fmt.Sprint(*id)
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.UTC().Format("2006-01-02 15:04 UTC")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "callback.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{deps: deps, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /run", s.handleRun)
	s.mux.HandleFunc("POST /autopost/enable", s.handleEnable)
	s.mux.HandleFunc("POST /autopost/disable", s.handleDisable)
	s.mux.HandleFunc("GET /oauth/callback", s.handleCallback)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, next, err := s.deps.Autopost.Status(ctx)
	if err != nil {
		log.Printf("Error loading autopost status: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Settings": st,
		"State":    s.deps.Autopost.State().String(),
		"NextRun":  "-",
	}
	if next != nil {
		data["NextRun"] = next.UTC().Format("2006-01-02 15:04 UTC")
	}

	if s.deps.Journal != nil {
		runs, err := s.deps.Journal.RecentRuns(ctx, recentRunsLimit)
		if err != nil {
			log.Printf("Error loading recent runs: %v", err)
		}
		latest, err := s.deps.Journal.LatestPublished(ctx)
		if err != nil {
			log.Printf("Error loading latest post: %v", err)
		}
		stats, err := s.deps.Journal.GetStats(ctx)
		if err != nil {
			log.Printf("Error loading run stats: %v", err)
		}
		data["Runs"] = runs
		data["Latest"] = latest
		data["Stats"] = stats
	}

	s.render(w, "index.html", http.StatusOK, data)
}

type runResponse struct {
	PostID string `json:"post_id,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	postID, err := s.deps.Autopost.RunOnce(r.Context())
	if err != nil {
		resp := runResponse{Error: err.Error()}
		if k := autopost.KindOf(err); k != 0 {
			resp.Kind = k.String()
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{PostID: postID})
}

// EnableRequest is the body of POST /autopost/enable.
type EnableRequest struct {
	ChatID          int64  `json:"chat_id"`
	OwnerUserID     int64  `json:"owner_user_id"`
	IntervalMinutes int    `json:"interval_minutes"`
	Style           string `json:"style"`
}

type settingsResponse struct {
	Settings *settings.Settings `json:"settings,omitempty"`
	Error    string             `json:"error,omitempty"`
	Kind     string             `json:"kind,omitempty"`
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req EnableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, settingsResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.ChatID == 0 || req.OwnerUserID == 0 {
		writeJSON(w, http.StatusBadRequest, settingsResponse{Error: "chat_id and owner_user_id are required"})
		return
	}
	st, err := s.deps.Autopost.Enable(r.Context(), req.ChatID, req.OwnerUserID, req.IntervalMinutes, req.Style)
	s.writeSettings(w, st, err)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Autopost.Disable(r.Context())
	s.writeSettings(w, st, err)
}

func (s *Server) writeSettings(w http.ResponseWriter, st settings.Settings, err error) {
	if err != nil {
		resp := settingsResponse{Error: err.Error()}
		if k := autopost.KindOf(err); k != 0 {
			resp.Kind = k.String()
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: &st})
}

// statusFor maps a run failure to an HTTP status.
func statusFor(err error) int {
	switch autopost.KindOf(err) {
	case autopost.KindConfig, autopost.KindNotFound:
		return http.StatusUnprocessableEntity
	case autopost.KindGeneration, autopost.KindAuth, autopost.KindPublish:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := map[string]any{}
	status := http.StatusOK

	switch {
	case s.deps.Connector == nil:
		status = http.StatusNotFound
		data["Error"] = "LinkedIn OAuth is not configured."
	case q.Get("error") != "":
		status = http.StatusBadRequest
		data["Error"] = "LinkedIn returned an error: " + q.Get("error_description")
	case q.Get("code") == "" || q.Get("state") == "":
		status = http.StatusBadRequest
		data["Error"] = "The redirect is missing the code or state parameter."
	default:
		userID, acct, err := s.deps.Connector.ConnectWithState(r.Context(), q.Get("state"), q.Get("code"))
		if err != nil {
			log.Printf("OAuth callback failed: %v", err)
			status = http.StatusBadRequest
			data["Error"] = "Authorization failed: " + err.Error()
			break
		}
		name := acct.Name
		if name == "" {
			name = acct.PersonID
		}
		data["Name"] = name
		data["ExpiresAt"] = time.Unix(acct.ExpiresAtEpoch, 0).UTC()
		if s.deps.Notifier != nil {
			if err := s.deps.Notifier.Notify(r.Context(), userID, "LinkedIn connected: "+name); err != nil {
				log.Printf("Failed to notify user %d about connection: %v", userID, err)
			}
		}
	}

	s.render(w, "callback.html", status, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.deps.Autopost.State().String(),
	})
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// ListenAndServe serves the handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}
