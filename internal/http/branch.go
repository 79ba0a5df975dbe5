package http

import (
	"net/http"

	"tamaqBack/internal/lifecycle"
)

// BranchTransition handles POST /api/branch/orders/:id. The action comes
// from the body and parses into the typed enum before anything runs.
func (s *Server) BranchTransition(w http.ResponseWriter, r *http.Request) {
	branchID, err := parseAuthID(r, "X-Branch-Id")
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
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	action, err := lifecycle.ParseBranchAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.BranchDo(ctx, branchID, orderID, action, req.Reason); err != nil {
		s.writeServiceError(w, err)
		return
	}
	order, err := s.svc.Get(ctx, orderID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, makeOrderView(order))
}

// BranchOrders handles GET /api/branch/orders, the active queue.
func (s *Server) BranchOrders(w http.ResponseWriter, r *http.Request) {
	branchID, err := parseAuthID(r, "X-Branch-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	list, err := s.svc.ListBranchOrders(ctx, branchID)
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
