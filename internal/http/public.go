package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"campuscms/internal/metrics"
	"campuscms/internal/model"
	"campuscms/internal/repository"
)

// Public read paths. Visibility is enforced in the query itself (published
// only, unexpired notices); anything else answers not_found so drafts and
// archived records are indistinguishable from records that never existed.

func (s *Server) handlePublicList(w http.ResponseWriter, r *http.Request) {
	kind, ok := publicKindParam(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	filter := repository.ContentFilter{
		Kind:       &kind,
		PublicOnly: true,
		Now:        time.Now().UTC(),
	}
	filter.Limit, filter.Offset = pageParams(r)

	items, total, err := s.store.ListContent(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapContentPage(items, total))
}

func (s *Server) handlePublicGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := publicKindParam(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	c, err := s.store.GetPublicContent(r.Context(), contentID(r), time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if c.Kind != kind {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	c.Views = s.countView(r.Context(), c, clientIP(r))
	writeJSON(w, http.StatusOK, mapContent(c))
}

// countView bumps the public view counter, at most once per visitor per dedup
// window when redis is configured, and returns the counter to report for this
// response; the reader's own hit is included. Only this public read path
// counts; admin and author previews go through the private routes and never
// touch it.
func (s *Server) countView(ctx context.Context, c model.Content, visitorIP string) int64 {
	if s.redis != nil && visitorIP != "" {
		key := "campuscms:view:" + c.ID + ":" + visitorIP
		fresh, err := s.redis.SetNX(ctx, key, "1", s.cfg.ViewDedupTTL).Result()
		if err == nil && !fresh {
			return c.Views
		}
	}
	views, err := s.store.IncrementViews(ctx, c.ID)
	if err != nil {
		return c.Views
	}
	metrics.PublicViews.WithLabelValues(string(c.Kind)).Inc()
	return views
}
