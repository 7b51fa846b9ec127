package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"bikecatalog/catalog-service/internal/httpjson"
	"bikecatalog/catalog-service/internal/logging"
)

// Handler exposes the catalog over HTTP.
//
// Routes:
//
//	GET    /api/bicycles?type=           → list bicycles
//	GET    /api/bicycles/{id}            → bicycle with components
//	GET    /api/components/{category}    → components of one category
//	GET    /api/manufacturers            → active manufacturers
//	GET    /api/brands                   → active brands + manufacturer
//	GET    /api/brands/{id}/history      → brand ownership history
//	POST   /api/admin/bicycles           → create bicycle
//	PUT    /api/admin/bicycles/{id}      → update bicycle (coalesce)
//	DELETE /api/admin/bicycles/{id}      → delete bicycle
type Handler struct {
	svc *Service
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the catalog routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/bicycles", h.listBicycles)
	mux.HandleFunc("GET /api/bicycles/{id}", h.getBicycle)
	mux.HandleFunc("GET /api/components/{category}", h.listComponents)
	mux.HandleFunc("GET /api/manufacturers", h.listManufacturers)
	mux.HandleFunc("GET /api/brands", h.listBrands)
	mux.HandleFunc("GET /api/brands/{id}/history", h.brandHistory)
	mux.HandleFunc("POST /api/admin/bicycles", h.createBicycle)
	mux.HandleFunc("PUT /api/admin/bicycles/{id}", h.updateBicycle)
	mux.HandleFunc("DELETE /api/admin/bicycles/{id}", h.deleteBicycle)
}

func (h *Handler) listBicycles(w http.ResponseWriter, r *http.Request) {
	bikes, err := h.svc.ListBicycles(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, r, "listBicycles", err)
		return
	}
	httpjson.OK(w, bikes)
}

func (h *Handler) getBicycle(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid bicycle id", http.StatusBadRequest)
		return
	}
	bike, err := h.svc.GetBicycle(r.Context(), id)
	if err != nil {
		h.fail(w, r, "getBicycle", err)
		return
	}
	httpjson.OK(w, bike)
}

func (h *Handler) listComponents(w http.ResponseWriter, r *http.Request) {
	comps, err := h.svc.ListComponentsByCategory(r.Context(), r.PathValue("category"))
	if err != nil {
		h.fail(w, r, "listComponents", err)
		return
	}
	httpjson.OK(w, comps)
}

func (h *Handler) listManufacturers(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListManufacturers(r.Context())
	if err != nil {
		h.fail(w, r, "listManufacturers", err)
		return
	}
	httpjson.OK(w, out)
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListBrands(r.Context())
	if err != nil {
		h.fail(w, r, "listBrands", err)
		return
	}
	httpjson.OK(w, out)
}

func (h *Handler) brandHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid brand id", http.StatusBadRequest)
		return
	}
	out, err := h.svc.BrandHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, "brandHistory", err)
		return
	}
	httpjson.OK(w, out)
}

func (h *Handler) createBicycle(w http.ResponseWriter, r *http.Request) {
	var in BicycleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpjson.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	bike, err := h.svc.CreateBicycle(r.Context(), in)
	if err != nil {
		h.fail(w, r, "createBicycle", err)
		return
	}
	httpjson.Created(w, bike)
}

func (h *Handler) updateBicycle(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid bicycle id", http.StatusBadRequest)
		return
	}
	var in BicycleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpjson.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	bike, err := h.svc.UpdateBicycle(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, "updateBicycle", err)
		return
	}
	httpjson.OK(w, bike)
}

func (h *Handler) deleteBicycle(w http.ResponseWriter, r *http.Request) {
	id, ok := httpjson.PathID(r, "id")
	if !ok {
		httpjson.Error(w, "invalid bicycle id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteBicycle(r.Context(), id); err != nil {
		h.fail(w, r, "deleteBicycle", err)
		return
	}
	httpjson.OK(w, map[string]string{"message": "Bicycle deleted"})
}

// fail maps domain errors to status codes; anything unexpected is logged and
// reported as a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpjson.Error(w, "Bicycle not found", http.StatusNotFound)
		return
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		httpjson.Error(w, ve.Msg, http.StatusBadRequest)
		return
	}
	logging.FromContext(r.Context()).Error().Err(err).Str("op", op).Msg("catalog request failed")
	httpjson.Error(w, "Internal server error", http.StatusInternalServerError)
}
