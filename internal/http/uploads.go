package http

import (
	"errors"
	"net/http"

	"campuscms/internal/model"
	"campuscms/internal/rbac"
	"campuscms/internal/upload"
)

const maxUploadBytes = 32 << 20

// handleUpload stores an attachment and returns its durable public URL. Only
// roles that can author content may upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	role := rbac.EffectiveRole(actor)
	if role != model.RoleAdmin && role != model.RoleTeacher {
		deny(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer file.Close()

	url, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, upload.ErrBadFilename) {
			writeError(w, http.StatusBadRequest, "invalid_filename")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}
