package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"campuscms/internal/auth"
	"campuscms/internal/crypto"
	"campuscms/internal/metrics"
	"campuscms/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         userSummary `json:"user"`
}

type userSummary struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName string  `json:"displayName"`
	Department  *string `json:"department,omitempty"`
	Role        string  `json:"role"`
	IsActive    bool    `json:"isActive"`
	IsVerified  bool    `json:"isVerified"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	formLogin := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
	if formLogin {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeDomainError(w, err)
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	actor, err := s.store.GetActor(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "role_not_found")
			return
		}
		writeDomainError(w, err)
		return
	}
	if !actor.IsActive {
		writeError(w, http.StatusUnauthorized, "account_disabled")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), user.ID, r.UserAgent(), clientIP(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.SignIns.Inc()
	s.setSessionCookie(w, accessToken)

	if formLogin {
		http.Redirect(w, r, dashboardPath(actor.Role), http.StatusSeeOther)
		return
	}

	profile, err := s.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         summarize(user, actor, profile),
	})
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Department  string `json:"department,omitempty"`
}

// handleSignup registers student and teacher accounts. The role is fixed here
// and only an admin may change it afterward. Self-registered teachers start
// unverified until an admin reviews them.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	role, ok := model.ParseRole(strings.TrimSpace(strings.ToLower(req.Role)))
	if !ok || role == model.RoleAdmin {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := model.Profile{
		UserID:      user.ID,
		DisplayName: req.DisplayName,
		IsActive:    true,
		IsVerified:  role == model.RoleStudent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if dept := strings.TrimSpace(req.Department); dept != "" {
		profile.Department = &dept
	}

	if err := s.store.CreateUserWithRole(r.Context(), user, role, profile); err != nil {
		writeError(w, http.StatusBadRequest, "signup_failed")
		return
	}

	actor := model.Actor{UserID: user.ID, Role: role, IsActive: true, IsVerified: profile.IsVerified}
	writeJSON(w, http.StatusCreated, summarize(user, actor, profile))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	session, err := s.store.GetRefreshSession(r.Context(), crypto.HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeDomainError(w, err)
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "user_not_found")
			return
		}
		writeDomainError(w, err)
		return
	}
	actor, err := s.store.GetActor(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "role_not_found")
			return
		}
		writeDomainError(w, err)
		return
	}
	if !actor.IsActive {
		writeError(w, http.StatusUnauthorized, "account_disabled")
		return
	}

	if err := s.store.RevokeRefreshSession(r.Context(), session.ID, time.Now().UTC()); err != nil {
		writeDomainError(w, err)
		return
	}
	accessToken, refreshToken, err := s.issueTokens(r.Context(), user.ID, r.UserAgent(), clientIP(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profile, err := s.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.setSessionCookie(w, accessToken)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         summarize(user, actor, profile),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	_ = s.store.RevokeRefreshSessionsByUser(r.Context(), actor.UserID, time.Now().UTC())
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	user, err := s.store.GetUserByID(r.Context(), actor.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	profile, err := s.store.GetProfile(r.Context(), actor.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(user, *actor, profile))
}

func (s *Server) issueTokens(ctx context.Context, userID, userAgent, ip string) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, userID)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	session := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ip != "" {
		session.IPAddress = &ip
	}
	if err := s.store.CreateRefreshSession(ctx, session); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func summarize(user model.User, actor model.Actor, profile model.Profile) userSummary {
	return userSummary{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: profile.DisplayName,
		Department:  profile.Department,
		Role:        string(actor.Role),
		IsActive:    profile.IsActive,
		IsVerified:  profile.IsVerified,
	}
}
