package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tamaqBack/internal/catalog"
	"tamaqBack/internal/discount"
	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/orders"
	"tamaqBack/internal/repo"
)

func parseAuthID(r *http.Request, header string) (int64, error) {
	val := strings.TrimSpace(r.Header.Get(header))
	if val == "" {
		return 0, fmt.Errorf("missing %s", header)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", header)
	}
	return id, nil
}

// parseOrderID reads the pat :id route parameter.
func parseOrderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(":id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id")
	}
	return id, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

// writeServiceError maps the error taxonomy onto status codes: validation
// 422, not found 404, conflicting state 409, exhaustion 410, wrong
// delivery phrase 403.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, lifecycle.ErrConflictingState), errors.Is(err, repo.ErrCouponAlreadyApplied):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repo.ErrCouponExhausted), errors.Is(err, repo.ErrDriverUnavailable):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, repo.ErrWrongDeliveryCode):
		writeError(w, http.StatusForbidden, "wrong delivery code")
	case errors.Is(err, discount.ErrNotEligible),
		errors.Is(err, orders.ErrBranchClosed),
		errors.Is(err, orders.ErrItemUnavailable),
		errors.Is(err, orders.ErrNotDelivered):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Errorf("http: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
