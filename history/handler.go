package history

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/godamri/helix-audit/http/response"
)

const dateOnly = "2006-01-02"

// Handler exposes the QueryService over HTTP.
type Handler struct {
	query  *QueryService
	logger *slog.Logger
}

func NewHandler(query *QueryService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{query: query, logger: logger.With("component", "audit_log_http")}
}

// RegisterRoutes mounts the audit log routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit-logs", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/search", h.HandleSearch)
		r.Get("/{id}", h.HandleGet)
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, err := parsePageRequest(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.query.FindAll(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parsePageRequest(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := parseCriteria(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.query.Search(r.Context(), c, p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.query.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidPageRequest), errors.Is(err, ErrInvalidCriteria):
		response.ErrorProblem(w, r, http.StatusBadRequest, response.ErrValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		response.ErrorJSON(w, r, response.MapStatus(response.ErrNotFound), response.ErrNotFound, "audit log not found")
	default:
		h.logger.ErrorContext(r.Context(), "audit log query failed", "path", r.URL.Path, "error", err)
		response.ErrorJSON(w, r, response.MapStatus(response.ErrSystem), response.ErrSystem, "internal error")
	}
}

func parsePageRequest(q url.Values) (PageRequest, error) {
	var p PageRequest
	var err error
	if p.Page, err = intParam(q, "page"); err != nil {
		return p, err
	}
	if p.Size, err = intParam(q, "size"); err != nil {
		return p, err
	}
	// Size 0 means "default" only when the parameter is absent.
	if q.Has("size") && p.Size < 1 {
		return p, fmt.Errorf("%w: size must be between 1 and %d", ErrInvalidPageRequest, MaxPageSize)
	}
	p.SortBy = q.Get("sortBy")
	p.SortDir = SortDirection(q.Get("sortDir"))
	return p, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidPageRequest, name)
	}
	return n, nil
}

func parseCriteria(q url.Values) (Criteria, error) {
	c := Criteria{
		ServiceName: q.Get("serviceName"),
		EntityName:  q.Get("entityName"),
		EntityID:    q.Get("entityId"),
		ActionType:  ActionType(q.Get("actionType")),
		UserID:      q.Get("userId"),
	}

	var err error
	if c.StartDate, err = dateParam(q, "startDate", false); err != nil {
		return c, err
	}
	if c.EndDate, err = dateParam(q, "endDate", true); err != nil {
		return c, err
	}
	return c, nil
}

// dateParam accepts RFC 3339, a zone-less date-time (UTC) or a bare date.
// A bare endDate covers the whole day.
func dateParam(q url.Values, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", raw, time.UTC); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateOnly, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid date", ErrInvalidCriteria, name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
