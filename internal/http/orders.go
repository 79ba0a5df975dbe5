package http

import (
	"net/http"
	"strconv"
	"time"

	"tamaqBack/internal/orders"
	"tamaqBack/internal/repo"
)

type orderItemView struct {
	ID             int64  `json:"id"`
	MenuItemID     int64  `json:"menu_item_id"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	AddedTotal     string `json:"added_total"`
	LineTotal      string `json:"line_total"`
	DiscountAmount string `json:"discount_amount"`
	Snapshot       string `json:"snapshot"`
}

type orderView struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	BranchID      int64           `json:"branch_id"`
	DriverID      *int64          `json:"driver_id,omitempty"`
	Status        string          `json:"status"`
	Subtotal      string          `json:"subtotal"`
	DiscountTotal string          `json:"discount_total"`
	DeliveryPrice string          `json:"delivery_price"`
	GrandTotal    string          `json:"grand_total"`
	Address       string          `json:"address"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	PickedUpAt    *time.Time      `json:"picked_up_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []orderItemView `json:"items,omitempty"`
}

func makeOrderView(o repo.Order) orderView {
	v := orderView{
		ID:            o.ID,
		Number:        o.OrderNumber,
		BranchID:      o.BranchID,
		Status:        o.Status,
		Subtotal:      o.Subtotal.StringFixed(2),
		DiscountTotal: o.DiscountTotal.StringFixed(2),
		DeliveryPrice: o.DeliveryPrice.StringFixed(2),
		GrandTotal:    o.GrandTotal.StringFixed(2),
		Address:       o.Address,
		CreatedAt:     o.CreatedAt,
	}
	if o.DriverID.Valid {
		id := o.DriverID.Int64
		v.DriverID = &id
	}
	if o.ConfirmedAt.Valid {
		t := o.ConfirmedAt.Time
		v.ConfirmedAt = &t
	}
	if o.PickedUpAt.Valid {
		t := o.PickedUpAt.Time
		v.PickedUpAt = &t
	}
	if o.DeliveredAt.Valid {
		t := o.DeliveredAt.Time
		v.DeliveredAt = &t
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ID:             it.ID,
			MenuItemID:     it.MenuItemID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice.StringFixed(2),
			AddedTotal:     it.AddedTotal.StringFixed(2),
			LineTotal:      it.LineTotal.StringFixed(2),
			DiscountAmount: it.DiscountAmount.StringFixed(2),
			Snapshot:       it.Snapshot,
		})
	}
	return v
}

type createOrderRequest struct {
	BranchID int64   `json:"branch_id"`
	Email    string  `json:"email"`
	Address  string  `json:"address"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Lines    []struct {
		MenuItemID  int64   `json:"menu_item_id"`
		Quantity    int     `json:"quantity"`
		ModifierIDs []int64 `json:"modifier_ids"`
	} `json:"lines"`
}

// CreateOrder handles POST /api/orders.
func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	in := orders.CreateRequest{
		CustomerID:    customerID,
		CustomerEmail: req.Email,
		BranchID:      req.BranchID,
		Address:       req.Address,
		Lat:           req.Lat,
		Lon:           req.Lon,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, orders.CreateLine{
			MenuItemID:  line.MenuItemID,
			Quantity:    line.Quantity,
			ModifierIDs: line.ModifierIDs,
		})
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	res, err := s.svc.CreateOrder(ctx, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"order": makeOrderView(res.Order),
		// shown exactly once; only the hash is stored
		"delivery_code": res.SecretPhrase,
	})
}

// ListOrders handles GET /api/orders, the customer's history page.
func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	list, err := s.svc.ListCustomerOrders(ctx, customerID, limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, makeOrderView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

// GetOrder handles GET /api/orders/:id.
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	order, err := s.svc.Get(ctx, orderID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if order.CustomerID != customerID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, makeOrderView(order))
}

// OrderEvents handles GET /api/orders/:id/events.
func (s *Server) OrderEvents(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	order, err := s.svc.Get(ctx, orderID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if order.CustomerID != customerID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	events, err := s.events.ListByOrder(ctx, orderID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ApplyCoupon handles POST /api/orders/:id/coupon.
func (s *Server) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code required")
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	order, err := s.svc.ApplyCoupon(ctx, customerID, orderID, req.Code)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, makeOrderView(order))
}

// CancelOrder handles POST /api/orders/:id/cancel.
func (s *Server) CancelOrder(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = decodeBody(r, &req)

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.CancelByCustomer(ctx, customerID, orderID, req.Reason); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RateOrder handles POST /api/orders/:id/rating.
func (s *Server) RateOrder(w http.ResponseWriter, r *http.Request) {
	customerID, err := parseAuthID(r, "X-Customer-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Stars int `json:"stars"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.RateOrder(ctx, customerID, orderID, req.Stars); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rated"})
}
