package review

import (
	"encoding/json"
	"errors"
	"net/http"

	"bikecatalog/catalog-service/internal/httpjson"
	"bikecatalog/catalog-service/internal/logging"
)

// Handler exposes the review workflow over HTTP.
//
// Routes:
//
//	GET    /api/admin/scraped-bikes                  → review queue
//	GET    /api/admin/scraped-bikes/stats            → counts per status
//	PUT    /api/admin/scraped-bikes/{id}/review      → record a decision
//	DELETE /api/admin/scraped-bikes/{id}             → delete a rejected record
//	POST   /api/admin/bicycles/{id}/apply-changes    → apply approved changes
type Handler struct {
	svc *Service
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the review routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/scraped-bikes", h.list)
	mux.HandleFunc("GET /api/admin/scraped-bikes/stats", h.stats)
	mux.HandleFunc("PUT /api/admin/scraped-bikes/{id}/review", h.setStatus)
	mux.HandleFunc("DELETE /api/admin/scraped-bikes/{id}", h.delete)
	mux.HandleFunc("POST /api/admin/bicycles/{id}/apply-changes", h.applyChanges)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListScraped(r.Context())
	if err != nil {
		h.fail(w, r, "listScraped", err)
		return
	}
	httpjson.OK(w, recs)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.QueueStats(r.Context())
	if err != nil {
		h.fail(w, r, "queueStats", err)
		return
	}
	httpjson.OK(w, st)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid review id", http.StatusBadRequest)
		return
	}
	var in DecisionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpjson.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	d, err := h.svc.SetReviewStatus(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, "setReviewStatus", err)
		return
	}
	httpjson.OK(w, map[string]any{
		"message": "Review status updated",
		"review":  d,
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid review id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteReview(r.Context(), id); err != nil {
		h.fail(w, r, "deleteReview", err)
		return
	}
	httpjson.OK(w, map[string]string{"message": "Scraped bike deleted"})
}

type applyRequest struct {
	Changes *Changes `json:"changes"`
}

func (h *Handler) applyChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid bicycle id", http.StatusBadRequest)
		return
	}
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Changes == nil {
		httpjson.Error(w, "changes is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ApplyChanges(r.Context(), id, *req.Changes)
	if err != nil {
		h.fail(w, r, "applyChanges", err)
		return
	}
	httpjson.OK(w, map[string]any{
		"message": "Bicycle updated successfully",
		"result":  res,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpjson.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, ErrInvalidState) {
		httpjson.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		httpjson.Error(w, ve.Msg, http.StatusBadRequest)
		return
	}
	logging.FromContext(r.Context()).Error().Err(err).Str("op", op).Msg("review request failed")
	httpjson.Error(w, "Internal server error", http.StatusInternalServerError)
}
