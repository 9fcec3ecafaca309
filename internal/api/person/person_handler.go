package person

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mfigueiredo/person-registry/app/observability/metrics"
	"github.com/mfigueiredo/person-registry/internal/api"
)

// PersonHandler exposes the person registry over HTTP.
type PersonHandler struct {
	personService PersonService
	logger        *slog.Logger
}

func NewPersonHandler(personService PersonService, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{
		personService: personService,
		logger:        logger,
	}
}

// Create handles POST /api/v1/persons.
func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.personService.Create(r.Context(), &req)
	if err != nil {
		metrics.Get().RegisterRequestsTotal.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("outcome", "rejected")))
		h.respondServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	metrics.Get().RegisterRequestsTotal.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("outcome", "created")))
	api.WriteJSONResponse(w, r, http.StatusOK, p)
}

// GetByID handles GET /api/v1/persons/{id}.
func (h *PersonHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	p, err := h.personService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Person not found")
			return
		}
		h.respondServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, p)
}

// List handles GET /api/v1/persons with optional field filters and paging.
func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &Filter{
		Name:         q.Get("name"),
		Gender:       q.Get("gender"),
		Email:        q.Get("email"),
		Nationality:  q.Get("nationality"),
		PlaceOfBirth: q.Get("placeOfBirth"),
		CPF:          q.Get("cpf"),
	}

	if v := q.Get("birthDate"); v != "" {
		day, err := time.Parse(dateLayout, v)
		if err != nil {
			api.ErrorResponse(w, r, http.StatusBadRequest, "invalid birthDate parameter, expected YYYY-MM-DD")
			return
		}
		filter.BirthDate = &day
	}

	// Out-of-range or non-numeric paging values fall back to the defaults.
	filter.PageIndex, _ = strconv.Atoi(q.Get("pageIndex"))
	filter.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	persons, err := h.personService.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, persons)
}

// Update handles PATCH /api/v1/persons/{id}; only supplied fields change.
func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req UpdatePersonRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.personService.Update(r.Context(), id, &req)
	if err != nil {
		h.respondServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/persons/{id} (soft delete).
func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.personService.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Person deleted",
	})
}

// Login handles POST /api/v1/persons/login.
func (h *PersonHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if req.CPF == "" || req.Password == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "CPF and password are required")
		return
	}

	resp, err := h.personService.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, api.ErrUnauthenticated) {
			metrics.Get().LoginRequestsTotal.Add(r.Context(), 1,
				metric.WithAttributes(attribute.String("outcome", "denied")))
			// Uniform message whether the CPF is unknown or the password is wrong.
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.ErrorContext(r.Context(), "Login failed unexpectedly", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	metrics.Get().LoginRequestsTotal.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("outcome", "granted")))
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

func (h *PersonHandler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid id parameter")
		return 0, false
	}
	return id, true
}

// respondServiceError translates service errors into the client-facing
// taxonomy: field map for validation, message for business rules, generic
// failure for everything else.
func (h *PersonHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, businessStatus int) {
	var vErr *api.ValidationError
	switch {
	case errors.As(err, &vErr):
		api.ValidationErrorResponse(w, r, vErr.Fields)
	case errors.Is(err, api.ErrConflict):
		api.ErrorResponse(w, r, businessStatus, "CPF already in use")
	case errors.Is(err, api.ErrNotFound):
		api.ErrorResponse(w, r, businessStatus, "Invalid ID")
	default:
		h.logger.ErrorContext(r.Context(), "Unexpected service error", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}
