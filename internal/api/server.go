package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

// Engine is the read side of rpxp.Service exposed over HTTP.
type Engine interface {
	Settings(ctx context.Context, guildID string) (rpxp.Guild, error)
	Summary(ctx context.Context, guildID string, scope rpxp.SummaryScope) (rpxp.Summary, error)
	List(ctx context.Context, guildID, ownerID string) (rpxp.TupperList, error)
}

type Roller interface {
	RolloverGuild(ctx context.Context, g rpxp.Guild) error
}

type Queue interface {
	Len() int
}

type Config struct {
	AdminToken string
	Timeout    time.Duration
}

type Server struct {
	cfg    Config
	log    *slog.Logger
	engine Engine
	roller Roller
	queue  Queue
	mux    *chi.Mux
}

func New(cfg Config, logger *slog.Logger, engine Engine, roller Roller, queue Queue) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		engine: engine,
		roller: roller,
		queue:  queue,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1/guilds/{guildID}", func(r chi.Router) {
		r.Get("/", s.handleSettings)
		r.Get("/summary", s.handleSummary)
		r.Get("/users/{userID}/tuppers", s.handleTuppers)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/rollover", s.handleRollover)
		})
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeError(w, http.StatusServiceUnavailable, "admin endpoints are disabled")
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	depth := 0
	if s.queue != nil {
		depth = s.queue.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "queue_depth": depth})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	g, err := s.engine.Settings(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	scope := rpxp.SummaryScope(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("scope"))))
	sum, err := s.engine.Summary(r.Context(), chi.URLParam(r, "guildID"), scope)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTuppers(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.List(r.Context(), chi.URLParam(r, "guildID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	g, err := s.engine.Settings(r.Context(), chi.URLParam(r, "guildID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.roller.RolloverGuild(r.Context(), g); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.log.Info("manual rollover", "guild_id", g.GuildID, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "guild_id": g.GuildID})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rpxp.ErrGuildNotSetUp), errors.Is(err, rpxp.ErrTupperNotFound), errors.Is(err, rpxp.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rpxp.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rpxp.ErrOnCooldown), errors.Is(err, rpxp.ErrGuildExists), errors.Is(err, rpxp.ErrDuplicateTag):
		writeError(w, http.StatusConflict, err.Error())
	case rpxp.IsUserError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.log.Error("api request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
