package http

import (
	"net/http"
	"time"

	"campuscms/internal/model"
	"campuscms/internal/rbac"
	"campuscms/internal/repository"
)

func (s *Server) handleCreatePaper(w http.ResponseWriter, r *http.Request) {
	var req createContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s.createContent(w, r, model.KindPaper, req)
}

// handleListOwnPapers lists the author's research papers in every status.
func (s *Server) handleListOwnPapers(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	ownSampleReq := rbac.Request{
		Role: rbac.EffectiveRole(actor), Op: rbac.OpViewPrivate,
		Kind: model.KindPaper, IsOwner: true,
	}
	if !rbac.Decide(ownSampleReq) {
		deny(w)
		return
	}

	kind := model.KindPaper
	filter := repository.ContentFilter{Kind: &kind, CreatedBy: &actor.UserID}
	filter.Limit, filter.Offset = pageParams(r)
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

func (s *Server) handleGetOwnPaper(w http.ResponseWriter, r *http.Request) {
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
		// an author probing someone else's paper learns nothing
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapContent(c))
}

func (s *Server) handleUpdateOwnPaper(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	c, err := s.store.GetContent(r.Context(), contentID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	editReq := rbac.Request{
		Role: rbac.EffectiveRole(actor), Op: rbac.OpEditOwnDraft,
		Kind: c.Kind, Status: c.Status, IsOwner: c.OwnedBy(actor.UserID),
	}
	if !rbac.Decide(editReq) {
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
