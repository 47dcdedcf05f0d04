package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"eventsbot/internal/config"
	appLog "eventsbot/internal/log"
	"eventsbot/internal/model"
)

// Store is the persistence the HTTP surface needs.
type Store interface {
	AddChannel(ctx context.Context, channelID string) error
	RemoveChannel(ctx context.Context, channelID string) error
	GetMessages(ctx context.Context, week model.Week) ([]model.StoredMessage, error)
	CooldownExpiry(ctx context.Context, accessor, resource string) (time.Time, bool, error)
	SetCooldown(ctx context.Context, accessor, resource string, d time.Duration) (time.Time, error)
	Now() time.Time
}

// AdminChecker answers whether a Slack user is a workspace admin.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// HealthReporter names the first background job that died, if any.
type HealthReporter interface {
	Healthy() (string, bool)
}

// Deps bundles what the Server calls into.
type Deps struct {
	Store  Store
	Admins AdminChecker
	Health HealthReporter
	// CheckAPI starts a synchronization pass in the background.
	CheckAPI func()
}

// Server serves Slack callbacks, the health probe and the read-only API.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled for /api", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return logRequests(h)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /slack/events", s.handleSlackEvents)
	s.mux.HandleFunc("GET /api/messages", s.handleMessages)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave auth off.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards /api/ with HTTP Basic Auth. Slack callbacks
// carry their own signature and /healthz stays open for probes.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventsbot", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Health != nil {
		if job, ok := s.deps.Health.Healthy(); !ok {
			writeJSON(w, http.StatusInternalServerError, detailResponse{
				Detail: "The " + job + " thread has died. This container will soon restart.",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Everything is lookin' good!"})
}

type messageResponse struct {
	Week      string `json:"week"`
	ChannelID string `json:"channel_id"`
	Position  int    `json:"position"`
	Timestamp string `json:"ts"`
	Text      string `json:"text"`
}

type messagesResponse struct {
	Week     string            `json:"week"`
	Messages []messageResponse `json:"messages"`
}

// handleMessages lists what is stored for ?week=YYYY-MM-DD, defaulting to
// the current week.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("week")
	var week model.Week
	if raw == "" {
		loc := resolveLocationOrLocal(s.cfg.Timezone)
		week = model.WeekOf(s.deps.Store.Now().In(loc), model.ParseWeekday(s.cfg.WeekStart))
	} else {
		w2, err := model.ParseWeek(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "week must be YYYY-MM-DD")
			return
		}
		week = w2
	}

	msgs, err := s.deps.Store.GetMessages(r.Context(), week)
	if err != nil {
		appLog.Error("failed to load messages", err, "week", week)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	resp := messagesResponse{Week: string(week), Messages: make([]messageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageResponse{
			Week:      string(m.Week),
			ChannelID: m.ChannelID,
			Position:  m.Position,
			Timestamp: m.Timestamp,
			Text:      m.Text,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Warn("invalid timezone, falling back to local", "tz", name, "err", err)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
