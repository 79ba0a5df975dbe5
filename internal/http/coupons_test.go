package http

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tamaqBack/internal/repo"
)

type stubCouponAdmin struct {
	coupons map[int64]repo.Coupon
	nextID  int64

	created     []repo.Coupon
	deactivated []int64
}

func (s *stubCouponAdmin) Get(ctx context.Context, id int64) (repo.Coupon, error) {
	c, ok := s.coupons[id]
	if !ok {
		return repo.Coupon{}, repo.ErrNotFound
	}
	return c, nil
}

func (s *stubCouponAdmin) Create(ctx context.Context, c repo.Coupon) (int64, error) {
	s.nextID++
	c.ID = s.nextID
	if c.Code == "" {
		c.Code = "GENERATED1"
	}
	if s.coupons == nil {
		s.coupons = map[int64]repo.Coupon{}
	}
	s.coupons[c.ID] = c
	s.created = append(s.created, c)
	return c.ID, nil
}

func (s *stubCouponAdmin) Deactivate(ctx context.Context, id int64) error {
	if _, ok := s.coupons[id]; !ok {
		return repo.ErrNotFound
	}
	s.deactivated = append(s.deactivated, id)
	return nil
}

func newCouponServer(admin *stubCouponAdmin) *Server {
	return NewServer(&stubService{}, nil, admin, nil, "secret", testLogger{})
}

func TestCreateCoupon(t *testing.T) {
	t.Run("forces branch scope from the auth header", func(t *testing.T) {
		admin := &stubCouponAdmin{}
		srv := newCouponServer(admin)

		body := `{"type":"item_discount","discount_kind":"percent","discount_value":"10","target_id":100,"max_uses":50}`
		req := httptest.NewRequest(http.MethodPost, "/api/branch/coupons", strings.NewReader(body))
		req.Header.Set("X-Branch-Id", "5")
		rec := httptest.NewRecorder()
		srv.CreateCoupon(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if len(admin.created) != 1 {
			t.Fatalf("created %d coupons, want 1", len(admin.created))
		}
		c := admin.created[0]
		if c.Scope != repo.ScopeBranch || c.BranchID.Int64 != 5 {
			t.Fatalf("scope=%q branch=%v, want branch scope for branch 5", c.Scope, c.BranchID)
		}
		if !c.IsActive {
			t.Fatalf("coupon created inactive")
		}
		if !strings.Contains(rec.Body.String(), `"code":"GENERATED1"`) {
			t.Fatalf("response does not carry the generated code: %s", rec.Body.String())
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		admin := &stubCouponAdmin{}
		srv := newCouponServer(admin)

		req := httptest.NewRequest(http.MethodPost, "/api/branch/coupons", strings.NewReader(`{"type":"half_price_tuesdays"}`))
		req.Header.Set("X-Branch-Id", "5")
		rec := httptest.NewRecorder()
		srv.CreateCoupon(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if len(admin.created) != 0 {
			t.Fatalf("coupon created despite invalid type")
		}
	})

	t.Run("rejects bxgy without quantities", func(t *testing.T) {
		admin := &stubCouponAdmin{}
		srv := newCouponServer(admin)

		req := httptest.NewRequest(http.MethodPost, "/api/branch/coupons", strings.NewReader(`{"type":"bxgy","buy_item_id":100,"get_item_id":200}`))
		req.Header.Set("X-Branch-Id", "5")
		rec := httptest.NewRecorder()
		srv.CreateCoupon(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestDeactivateCoupon(t *testing.T) {
	admin := &stubCouponAdmin{
		coupons: map[int64]repo.Coupon{
			7: {ID: 7, Code: "WAIVE7", Type: repo.CouponDeliveryWaiver, Scope: repo.ScopeBranch,
				BranchID: sql.NullInt64{Int64: 5, Valid: true}, IsActive: true},
		},
	}
	srv := newCouponServer(admin)

	t.Run("another branch gets not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/branch/coupons/7/deactivate?:id=7", nil)
		req.Header.Set("X-Branch-Id", "6")
		rec := httptest.NewRecorder()
		srv.DeactivateCoupon(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if len(admin.deactivated) != 0 {
			t.Fatalf("coupon deactivated by the wrong branch")
		}
	})

	t.Run("owner deactivates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/branch/coupons/7/deactivate?:id=7", nil)
		req.Header.Set("X-Branch-Id", "5")
		rec := httptest.NewRecorder()
		srv.DeactivateCoupon(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		if len(admin.deactivated) != 1 || admin.deactivated[0] != 7 {
			t.Fatalf("deactivated = %v, want [7]", admin.deactivated)
		}
	})
}
