package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tamaqBack/internal/discount"
	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/orders"
	"tamaqBack/internal/repo"
)

func TestWriteServiceError(t *testing.T) {
	srv := NewServer(&stubService{}, nil, nil, nil, "secret", testLogger{})

	cases := []struct {
		err  error
		want int
	}{
		{repo.ErrNotFound, http.StatusNotFound},
		{lifecycle.ErrConflictingState, http.StatusConflict},
		{repo.ErrCouponAlreadyApplied, http.StatusConflict},
		{repo.ErrCouponExhausted, http.StatusGone},
		{repo.ErrDriverUnavailable, http.StatusGone},
		{repo.ErrWrongDeliveryCode, http.StatusForbidden},
		{discount.ErrNotEligible, http.StatusUnprocessableEntity},
		{orders.ErrBranchClosed, http.StatusUnprocessableEntity},
		{orders.ErrItemUnavailable, http.StatusUnprocessableEntity},
		{orders.ErrNotDelivered, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", repo.ErrCouponExhausted), http.StatusGone},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		srv.writeServiceError(w, tc.err)
		if w.Code != tc.want {
			t.Errorf("writeServiceError(%v) = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestParseOrderID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/orders/42?:id=42", nil)
	id, err := parseOrderID(r)
	if err != nil || id != 42 {
		t.Fatalf("parseOrderID = %d, %v", id, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/orders/x?:id=x", nil)
	if _, err := parseOrderID(r); err == nil {
		t.Fatal("expected error for a non-numeric id")
	}
}
