package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// submitRequest is the C9 submission envelope. Source carries the raw
// log lines to ingest, newline-delimited; resolving an object-store
// path into lines is out of scope here (spec.md's byte-source
// resolution is explicitly deferred to an external collaborator) so
// Source is accepted inline, exactly as the CLI and tests supply it.
type submitRequest struct {
	ServerID string `json:"server_id" validate:"required"`
	Source   string `json:"source" validate:"required"`
}

// SubmitIngest handles POST /api/v1/ingest/submit. The caller's
// server_identity is resolved from the authenticated context, not
// trusted from the body's server_id field, which must be present to
// pass validation but is otherwise unused.
//
// Grounded on the teacher's IngestEvents shape in internal/handlers/
// ingest.go (body-size guard, validator.v10 struct validation), adapted
// from "one RawEvent per line, enqueued individually" to "one raw log
// batch, enqueued as a single ingestion job".
func (h *Handler) SubmitIngest(w http.ResponseWriter, r *http.Request) {
	serverIdentity, ok := serverIdentityFromContext(r.Context())
	if !ok {
		h.errorResponse(w, http.StatusUnauthorized, "missing server identity")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	defer r.Body.Close()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusRequestEntityTooLarge, "request body too large or malformed")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid submission: "+err.Error())
		return
	}

	var lines []string
	for _, line := range strings.Split(req.Source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		h.errorResponse(w, http.StatusBadRequest, "source contains no log lines")
		return
	}

	job, accepted := h.pool.Submit(serverIdentity, lines)
	if !accepted {
		h.logger.Warnw("ingestion queue full, rejecting submission", "server_identity", serverIdentity, "lines", len(lines))
		h.errorResponse(w, http.StatusServiceUnavailable, "ingestion queue is full, retry later")
		return
	}

	h.logger.Infow("ingestion job queued", "job_id", job.ID, "server_identity", serverIdentity, "lines", len(lines))
	h.jsonResponse(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetIngestJob handles GET /api/v1/ingest/jobs/{id}. The lookup tries,
// in order, the worker pool's in-memory table (fastest, but only knows
// about jobs this process ran), the Redis status mirror (§4.10, visible
// across replicas), then Postgres (authoritative, survives a restart).
func (h *Handler) GetIngestJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if job, ok := h.pool.GetJob(id); ok {
		h.jsonResponse(w, http.StatusOK, job)
		return
	}
	if h.jobCache != nil {
		if job, ok := h.jobCache.Get(r.Context(), id); ok {
			h.jsonResponse(w, http.StatusOK, job)
			return
		}
	}
	if h.jobStore != nil {
		if job, err := h.jobStore.GetJob(r.Context(), id); err == nil {
			h.jsonResponse(w, http.StatusOK, job)
			return
		}
	}
	h.errorResponse(w, http.StatusNotFound, "unknown job id")
}
