package http

import (
	"net/http"

	"tamaqBack/internal/lifecycle"
)

// DriverTransition handles POST /api/driver/orders/:id.
func (s *Server) DriverTransition(w http.ResponseWriter, r *http.Request) {
	driverID, err := parseAuthID(r, "X-Driver-Id")
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
		Action       string `json:"action"`
		DeliveryCode string `json:"delivery_code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	action, err := lifecycle.ParseDriverAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.DriverDo(ctx, driverID, orderID, action, req.DeliveryCode); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DriverOnline handles POST /api/driver/online.
func (s *Server) DriverOnline(w http.ResponseWriter, r *http.Request) {
	driverID, err := parseAuthID(r, "X-Driver-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.DriverOnline(ctx, driverID, req.Lon, req.Lat); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

// DriverOffline handles POST /api/driver/offline.
func (s *Server) DriverOffline(w http.ResponseWriter, r *http.Request) {
	driverID, err := parseAuthID(r, "X-Driver-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.DriverOffline(ctx, driverID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}

// DriverLocation handles POST /api/driver/location, the heartbeat.
func (s *Server) DriverLocation(w http.ResponseWriter, r *http.Request) {
	driverID, err := parseAuthID(r, "X-Driver-Id")
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	if err := s.svc.Heartbeat(ctx, driverID, req.Lon, req.Lat); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
