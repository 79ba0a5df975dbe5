package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"tamaqBack/internal/repo"
)

type couponView struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	Type          string     `json:"type"`
	DiscountKind  string     `json:"discount_kind,omitempty"`
	DiscountValue string     `json:"discount_value,omitempty"`
	MaxUses       *int64     `json:"max_uses,omitempty"`
	UsesCount     int64      `json:"uses_count"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	IsActive      bool       `json:"is_active"`
}

func makeCouponView(c repo.Coupon) couponView {
	v := couponView{
		ID:            c.ID,
		Code:          c.Code,
		Type:          c.Type,
		DiscountKind:  c.DiscountKind,
		DiscountValue: c.DiscountValue.StringFixed(2),
		UsesCount:     c.UsesCount,
		ValidFrom:     c.ValidFrom,
		IsActive:      c.IsActive,
	}
	if c.MaxUses.Valid {
		n := c.MaxUses.Int64
		v.MaxUses = &n
	}
	if c.ValidUntil.Valid {
		t := c.ValidUntil.Time
		v.ValidUntil = &t
	}
	return v
}

type createCouponRequest struct {
	Code          string     `json:"code"`
	Type          string     `json:"type"`
	DiscountKind  string     `json:"discount_kind"`
	DiscountValue string     `json:"discount_value"`
	MaxUses       *int64     `json:"max_uses"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
	TargetID      *int64     `json:"target_id"`
	BuyQty        int        `json:"buy_qty"`
	GetQty        int        `json:"get_qty"`
	BuyItemID     *int64     `json:"buy_item_id"`
	GetItemID     *int64     `json:"get_item_id"`
}

// CreateCoupon handles POST /api/branch/coupons. The scope and branch are
// forced from the caller's identity, never from the body.
func (s *Server) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	branchID, err := parseAuthID(r, "X-Branch-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req createCouponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	c := repo.Coupon{
		Code:     req.Code,
		Type:     req.Type,
		Scope:    repo.ScopeBranch,
		BranchID: sql.NullInt64{Int64: branchID, Valid: true},
		IsActive: true,
		BuyQty:   req.BuyQty,
		GetQty:   req.GetQty,
	}
	switch req.Type {
	case repo.CouponDeliveryWaiver:
	case repo.CouponItemDiscount, repo.CouponCategoryDiscount:
		if req.DiscountKind != repo.KindPercent && req.DiscountKind != repo.KindFixed {
			writeError(w, http.StatusBadRequest, "invalid discount kind")
			return
		}
		value, err := decimal.NewFromString(req.DiscountValue)
		if err != nil || value.IsNegative() {
			writeError(w, http.StatusBadRequest, "invalid discount value")
			return
		}
		if req.TargetID == nil {
			writeError(w, http.StatusBadRequest, "target required")
			return
		}
		c.DiscountKind = req.DiscountKind
		c.DiscountValue = value
		c.TargetID = sql.NullInt64{Int64: *req.TargetID, Valid: true}
	case repo.CouponBuyXGetY:
		if req.BuyQty <= 0 || req.GetQty <= 0 || req.BuyItemID == nil || req.GetItemID == nil {
			writeError(w, http.StatusBadRequest, "invalid bxgy parameters")
			return
		}
		c.BuyItemID = sql.NullInt64{Int64: *req.BuyItemID, Valid: true}
		c.GetItemID = sql.NullInt64{Int64: *req.GetItemID, Valid: true}
	default:
		writeError(w, http.StatusBadRequest, "unknown coupon type")
		return
	}
	if req.MaxUses != nil {
		if *req.MaxUses <= 0 {
			writeError(w, http.StatusBadRequest, "invalid max uses")
			return
		}
		c.MaxUses = sql.NullInt64{Int64: *req.MaxUses, Valid: true}
	}
	c.ValidFrom = req.ValidFrom
	if c.ValidFrom.IsZero() {
		c.ValidFrom = time.Now()
	}
	if req.ValidUntil != nil {
		if !req.ValidUntil.After(c.ValidFrom) {
			writeError(w, http.StatusBadRequest, "valid_until before valid_from")
			return
		}
		c.ValidUntil = sql.NullTime{Time: *req.ValidUntil, Valid: true}
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	id, err := s.coupons.Create(ctx, c)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	created, err := s.coupons.Get(ctx, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, makeCouponView(created))
}

// DeactivateCoupon handles POST /api/branch/coupons/:id/deactivate.
func (s *Server) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	branchID, err := parseAuthID(r, "X-Branch-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	couponID, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	c, err := s.coupons.Get(ctx, couponID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !c.BranchID.Valid || c.BranchID.Int64 != branchID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.coupons.Deactivate(ctx, couponID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
