package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"campuscms/internal/metrics"
	"campuscms/internal/model"
	"campuscms/internal/rbac"
	"campuscms/internal/repository"
	"campuscms/internal/workflow"
)

type contentResponse struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Summary       *string    `json:"summary,omitempty"`
	Location      *string    `json:"location,omitempty"`
	StartsAt      *time.Time `json:"startsAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Abstract      *string    `json:"abstract,omitempty"`
	DocumentURL   *string    `json:"documentUrl,omitempty"`
	AttachmentURL *string    `json:"attachmentUrl,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	SubmittedBy   *string    `json:"submittedBy,omitempty"`
	ReviewedBy    *string    `json:"reviewedBy,omitempty"`
	ReviewNotes   *string    `json:"reviewNotes,omitempty"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	Views         int64      `json:"views"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type contentPage struct {
	Items []contentResponse `json:"items"`
	Total int               `json:"total"`
}

func mapContent(c model.Content) contentResponse {
	return contentResponse{
		ID:            c.ID,
		Kind:          string(c.Kind),
		Status:        string(c.Status),
		Title:         c.Title,
		Body:          c.Body,
		Summary:       c.Summary,
		Location:      c.Location,
		StartsAt:      c.StartsAt,
		ExpiresAt:     c.ExpiresAt,
		Abstract:      c.Abstract,
		DocumentURL:   c.DocumentURL,
		AttachmentURL: c.AttachmentURL,
		CreatedBy:     c.CreatedBy,
		SubmittedBy:   c.SubmittedBy,
		ReviewedBy:    c.ReviewedBy,
		ReviewNotes:   c.ReviewNotes,
		ApprovedAt:    c.ApprovedAt,
		PublishedAt:   c.PublishedAt,
		Views:         c.Views,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func mapContentPage(items []model.Content, total int) contentPage {
	page := contentPage{Items: make([]contentResponse, 0, len(items)), Total: total}
	for _, c := range items {
		page.Items = append(page.Items, mapContent(c))
	}
	return page
}

type createContentRequest struct {
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Summary       *string    `json:"summary,omitempty"`
	Location      *string    `json:"location,omitempty"`
	StartsAt      *time.Time `json:"startsAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Abstract      *string    `json:"abstract,omitempty"`
	DocumentURL   *string    `json:"documentUrl,omitempty"`
	AttachmentURL *string    `json:"attachmentUrl,omitempty"`
}

// createContent builds a draft record for the acting author. Research papers
// record the author as submitter as well.
func (s *Server) createContent(w http.ResponseWriter, r *http.Request, kind model.Kind, req createContentRequest) {
	actor := actorFromContext(r.Context())
	if !rbac.Decide(rbac.Request{Role: rbac.EffectiveRole(actor), Op: rbac.OpCreate, Kind: kind}) {
		deny(w)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	now := time.Now().UTC()
	c := model.Content{
		ID:            uuid.NewString(),
		Kind:          kind,
		Status:        model.StatusDraft,
		Title:         req.Title,
		Body:          req.Body,
		Summary:       req.Summary,
		Location:      req.Location,
		StartsAt:      req.StartsAt,
		ExpiresAt:     req.ExpiresAt,
		Abstract:      req.Abstract,
		DocumentURL:   req.DocumentURL,
		AttachmentURL: req.AttachmentURL,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if kind == model.KindPaper {
		c.SubmittedBy = &actor.UserID
	}
	if kind != model.KindNotice {
		c.ExpiresAt = nil
	}

	if err := s.store.CreateContent(r.Context(), c); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapContent(c))
}

func (s *Server) handleAdminCreateContent(w http.ResponseWriter, r *http.Request) {
	var req createContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	kind, ok := model.ParseKind(strings.TrimSpace(req.Kind))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	s.createContent(w, r, kind, req)
}

func (s *Server) handleAdminListContent(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if rbac.EffectiveRole(actor) != model.RoleAdmin {
		deny(w)
		return
	}

	filter := repository.ContentFilter{}
	filter.Limit, filter.Offset = pageParams(r)
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, ok := model.ParseKind(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_kind")
			return
		}
		filter.Kind = &kind
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		filter.Status = &status
	}

	items, total, err := s.store.ListContent(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapContentPage(items, total))
}

// handleReviewQueue lists pending records awaiting an admin decision, newest
// submissions last.
func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if rbac.EffectiveRole(actor) != model.RoleAdmin {
		deny(w)
		return
	}

	pending := model.StatusPending
	filter := repository.ContentFilter{Status: &pending}
	filter.Limit, filter.Offset = pageParams(r)
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, ok := model.ParseKind(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_kind")
			return
		}
		filter.Kind = &kind
	}

	items, total, err := s.store.ListContent(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapContentPage(items, total))
}

func (s *Server) handleAdminGetContent(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	c, err := s.store.GetContent(r.Context(), contentID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	viewReq := rbac.Request{
		Role: rbac.EffectiveRole(actor), Op: rbac.OpViewPrivate,
		Kind: c.Kind, Status: c.Status, IsOwner: c.OwnedBy(actor.UserID),
	}
	if !rbac.Decide(viewReq) {
		deny(w)
		return
	}
	writeJSON(w, http.StatusOK, mapContent(c))
}

type updateContentRequest struct {
	Title         *string    `json:"title,omitempty"`
	Body          *string    `json:"body,omitempty"`
	Summary       *string    `json:"summary,omitempty"`
	Location      *string    `json:"location,omitempty"`
	StartsAt      *time.Time `json:"startsAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Abstract      *string    `json:"abstract,omitempty"`
	DocumentURL   *string    `json:"documentUrl,omitempty"`
	AttachmentURL *string    `json:"attachmentUrl,omitempty"`
}

func (req updateContentRequest) toUpdate() repository.ContentUpdate {
	return repository.ContentUpdate{
		Title:         req.Title,
		Body:          req.Body,
		Summary:       req.Summary,
		Location:      req.Location,
		StartsAt:      req.StartsAt,
		ExpiresAt:     req.ExpiresAt,
		Abstract:      req.Abstract,
		DocumentURL:   req.DocumentURL,
		AttachmentURL: req.AttachmentURL,
	}
}

func (s *Server) handleAdminUpdateContent(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	c, err := s.store.GetContent(r.Context(), contentID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	role := rbac.EffectiveRole(actor)
	editAny := rbac.Decide(rbac.Request{Role: role, Op: rbac.OpEditAny, Kind: c.Kind, Status: c.Status})
	editOwn := rbac.Decide(rbac.Request{
		Role: role, Op: rbac.OpEditOwnDraft,
		Kind: c.Kind, Status: c.Status, IsOwner: c.OwnedBy(actor.UserID),
	})
	if !editAny && !editOwn {
		deny(w)
		return
	}

	var req updateContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	updated, err := s.store.UpdateContent(r.Context(), c.ID, req.toUpdate(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapContent(updated))
}

func (s *Server) handleAdminDeleteContent(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	c, err := s.store.GetContent(r.Context(), contentID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !rbac.Decide(rbac.Request{Role: rbac.EffectiveRole(actor), Op: rbac.OpDeleteAny, Kind: c.Kind, Status: c.Status}) {
		deny(w)
		return
	}

	deleted, err := s.store.DeleteContent(r.Context(), c.ID)
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

// Transitions. Every one is checked twice: the evaluator decides whether the
// actor may trigger the operation, the state machine decides whether the edge
// exists, and the store writes status and side-effect fields in one
// compare-and-set update. Failing either check writes nothing.

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	c, err := s.store.GetContent(r.Context(), contentID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	submitReq := rbac.Request{
		Role: rbac.EffectiveRole(actor), Op: rbac.OpSubmitForReview,
		Kind: c.Kind, Status: c.Status, IsOwner: c.OwnedBy(actor.UserID),
	}
	if !rbac.Decide(submitReq) {
		deny(w)
		return
	}

	change, err := workflow.Submit(c, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.applyTransition(w, r, c, change)
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, rbac.OpApprove, workflow.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, rbac.OpReject, workflow.Reject)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, rbac.OpReject, workflow.Archive)
}

func (s *Server) review(
	w http.ResponseWriter,
	r *http.Request,
	op rbac.Operation,
	transition func(model.Content, string, string, time.Time) (workflow.Change, error),
) {
	actor := actorFromContext(r.Context())
	c, err := s.store.GetContent(r.Context(), contentID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !rbac.Decide(rbac.Request{Role: rbac.EffectiveRole(actor), Op: op, Kind: c.Kind, Status: c.Status}) {
		deny(w)
		return
	}

	var req reviewRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
	}

	change, err := transition(c, actor.UserID, req.Notes, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.applyTransition(w, r, c, change)
}

func (s *Server) applyTransition(w http.ResponseWriter, r *http.Request, c model.Content, change workflow.Change) {
	updated, err := s.store.ApplyTransition(r.Context(), c.ID, change)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.Transitions.WithLabelValues(string(c.Kind), string(change.To)).Inc()
	writeJSON(w, http.StatusOK, mapContent(updated))
}
