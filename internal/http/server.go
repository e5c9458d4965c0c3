package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"campuscms/internal/auth"
	"campuscms/internal/config"
	"campuscms/internal/metrics"
	"campuscms/internal/model"
	"campuscms/internal/rbac"
	"campuscms/internal/repository"
	"campuscms/internal/upload"
	"campuscms/internal/workflow"
)

type Server struct {
	cfg     config.Config
	store   *repository.Store
	uploads *upload.Store
	redis   *redis.Client
}

func NewServer(cfg config.Config, store *repository.Store, uploads *upload.Store, redisClient *redis.Client) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		uploads: uploads,
		redis:   redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// identity collaborator
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.requireSession).Post("/auth/logout", s.handleLogout)
	r.With(s.requireSession).Get("/auth/me", s.handleGetMe)

	// public content, no session required
	r.Route("/api/public", func(r chi.Router) {
		r.Get("/{kind}", s.handlePublicList)
		r.Get("/{kind}/{contentID}", s.handlePublicGet)
	})

	// admin API
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/content", s.handleAdminCreateContent)
		r.Get("/content", s.handleAdminListContent)
		r.Get("/content/{contentID}", s.handleAdminGetContent)
		r.Patch("/content/{contentID}", s.handleAdminUpdateContent)
		r.Delete("/content/{contentID}", s.handleAdminDeleteContent)
		r.Post("/content/{contentID}/submit", s.handleSubmit)
		r.Post("/content/{contentID}/approve", s.handleApprove)
		r.Post("/content/{contentID}/reject", s.handleReject)
		r.Post("/content/{contentID}/archive", s.handleArchive)
		r.Get("/review", s.handleReviewQueue)
		r.Get("/users", s.handleListUsers)
		r.Patch("/users/{userID}/role", s.handleUpdateRole)
		r.Patch("/users/{userID}", s.handleUpdateProfile)
		r.Delete("/users/{userID}", s.handleDeleteUser)
	})

	// teacher API
	r.Route("/api/teacher", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/papers", s.handleCreatePaper)
		r.Get("/papers", s.handleListOwnPapers)
		r.Get("/papers/{contentID}", s.handleGetOwnPaper)
		r.Patch("/papers/{contentID}", s.handleUpdateOwnPaper)
		r.Post("/papers/{contentID}/submit", s.handleSubmit)
	})

	// object storage
	r.With(s.requireSession).Post("/api/uploads", s.handleUpload)
	r.Handle("/files/*", s.uploads.Handler())

	// portal pages behind the route guard
	for _, role := range []model.Role{model.RoleAdmin, model.RoleTeacher, model.RoleStudent} {
		r.Get("/"+string(role)+"/login", s.handleLoginPage(role))
		r.With(s.portalGuard(role)).Get("/"+string(role)+"/dashboard", s.handleDashboard(role))
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/student/login", http.StatusSeeOther)
	})

	return r
}

// Session resolution

type actorKey struct{}

// resolveActor turns a request into the current actor, or nil when there is no
// usable session. The role and account flags come from the role store on every
// call; token claims only identify the user. A store failure is returned as an
// error, never folded into "no session": a missing role row means the session
// is dead, a store outage means we cannot tell.
func (s *Server) resolveActor(r *http.Request) (*model.Actor, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		if cookie, err := r.Cookie(s.cfg.CookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return nil, nil
	}
	claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
	if err != nil {
		return nil, nil
	}
	actor, err := s.store.GetActor(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}

// requireSession rejects requests without a live, active session. A
// deactivated account gets the same treatment as no session at all.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.resolveActor(r)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if actor == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if !actor.IsActive {
			writeError(w, http.StatusUnauthorized, "account_disabled")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) *model.Actor {
	actor, _ := ctx.Value(actorKey{}).(*model.Actor)
	return actor
}

// deny records an evaluator denial and answers 403.
func deny(w http.ResponseWriter) {
	metrics.Denials.Inc()
	writeError(w, http.StatusForbidden, "forbidden")
}

// writeDomainError maps the error taxonomy onto distinct response codes so a
// caller can tell "not allowed" and "illegal transition" apart from a server
// fault, and a collaborator outage is never dressed up as an empty result.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrReviewNotesRequired):
		writeError(w, http.StatusUnprocessableEntity, "review_notes_required")
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "invalid_transition")
	case errors.Is(err, rbac.ErrDenied):
		deny(w)
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable")
	}
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// publicKindParam maps the public route segment to a content kind.
func publicKindParam(segment string) (model.Kind, bool) {
	switch segment {
	case "notices":
		return model.KindNotice, true
	case "news":
		return model.KindNews, true
	case "events":
		return model.KindEvent, true
	case "papers":
		return model.KindPaper, true
	default:
		return "", false
	}
}

func contentID(r *http.Request) string {
	return chi.URLParam(r, "contentID")
}
