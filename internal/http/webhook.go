package http

import (
	"errors"
	"io"
	"net/http"

	"tamaqBack/internal/pay"
	"tamaqBack/internal/repo"
)

// PaystackWebhook handles POST /api/webhooks/paystack. The signature is
// verified before any field of the payload is trusted. Unknown references
// and state anomalies are logged and acknowledged so the gateway stops
// retrying; only transport-level failures return non-2xx.
func (s *Server) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	defer r.Body.Close()

	if !pay.VerifySignature(body, r.Header.Get("x-paystack-signature"), s.paySecret) {
		writeError(w, http.StatusUnauthorized, "bad signature")
		return
	}

	event, err := pay.ParseWebhook(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r)
	defer cancel()

	switch event.Event {
	case pay.EventChargeSuccess:
		err = s.svc.PaymentSucceeded(ctx, event.Data.Reference)
	case pay.EventChargeFailed:
		err = s.svc.PaymentFailed(ctx, event.Data.Reference, event.Data.GatewayResponse)
	default:
		s.log.Infof("webhook: ignoring event %s", event.Event)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.log.Errorf("webhook: unknown reference %s", event.Data.Reference)
			writeJSON(w, http.StatusOK, map[string]string{"status": "unknown reference"})
			return
		}
		s.log.Errorf("webhook: %s: %v", event.Data.Reference, err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CustomerWS, BranchWS and DriverWS upgrade the respective websocket
// connections.
func (s *Server) CustomerWS(w http.ResponseWriter, r *http.Request) { s.hubs.Customer.ServeWS(w, r) }
func (s *Server) BranchWS(w http.ResponseWriter, r *http.Request)   { s.hubs.Branch.ServeWS(w, r) }
func (s *Server) DriverWS(w http.ResponseWriter, r *http.Request)   { s.hubs.Driver.ServeWS(w, r) }
