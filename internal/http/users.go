package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"campuscms/internal/model"
	"campuscms/internal/rbac"
	"campuscms/internal/repository"
)

type userPage struct {
	Items []userSummary `json:"items"`
	Total int           `json:"total"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if rbac.EffectiveRole(actor) != model.RoleAdmin {
		deny(w)
		return
	}

	limit, offset := pageParams(r)
	accounts, total, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page := userPage{Items: make([]userSummary, 0, len(accounts)), Total: total}
	for _, account := range accounts {
		page.Items = append(page.Items, summarize(account.User, model.Actor{
			UserID:     account.User.ID,
			Role:       account.Role,
			IsActive:   account.Profile.IsActive,
			IsVerified: account.Profile.IsVerified,
		}, account.Profile))
	}
	writeJSON(w, http.StatusOK, page)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// handleUpdateRole is the only path that changes a role assignment, and only
// an admin reaches it.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if rbac.EffectiveRole(actor) != model.RoleAdmin {
		deny(w)
		return
	}

	userID := chi.URLParam(r, "userID")
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	role, ok := model.ParseRole(strings.TrimSpace(strings.ToLower(req.Role)))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	if err := s.store.UpdateRole(r.Context(), userID, role); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "role": string(role)})
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	Department  *string `json:"department,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
	IsVerified  *bool   `json:"isVerified,omitempty"`
}

// handleUpdateProfile covers admin account administration: deactivating an
// account (blocks every authenticated operation on the next request) and
// verifying a self-registered teacher.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if rbac.EffectiveRole(actor) != model.RoleAdmin {
		deny(w)
		return
	}

	userID := chi.URLParam(r, "userID")
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	profile, err := s.store.UpdateProfile(r.Context(), userID, repository.ProfileUpdate{
		DisplayName: req.DisplayName,
		Department:  req.Department,
		IsActive:    req.IsActive,
		IsVerified:  req.IsVerified,
	}, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// a deactivated account keeps no live sessions
	if req.IsActive != nil && !*req.IsActive {
		_ = s.store.RevokeRefreshSessionsByUser(r.Context(), userID, time.Now().UTC())
	}

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	assignment, err := s.store.GetRoleAssignment(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(user, model.Actor{
		UserID:     userID,
		Role:       assignment.Role,
		IsActive:   profile.IsActive,
		IsVerified: profile.IsVerified,
	}, profile))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if rbac.EffectiveRole(actor) != model.RoleAdmin {
		deny(w)
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == actor.UserID {
		writeError(w, http.StatusBadRequest, "cannot_delete_self")
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
