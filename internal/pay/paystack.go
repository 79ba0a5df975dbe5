// Package pay wraps the payment gateway: transaction initialization over
// its REST API and signature verification for its asynchronous webhook.
package pay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Webhook event names the handler reacts to.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// Client is a minimal Paystack API client.
type Client struct {
	httpClient *http.Client
	secret     string
	baseURL    string
}

// NewClient constructs a Paystack client. The secret doubles as the webhook
// signing key.
func NewClient(httpClient *http.Client, secret string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		secret:     secret,
		baseURL:    "https://api.paystack.co",
	}
}

// Secret returns the configured API secret.
func (c *Client) Secret() string { return c.secret }

// InitResult carries what the caller needs to hand to the customer.
type InitResult struct {
	Reference        string
	AuthorizationURL string
}

var subunits = decimal.NewFromInt(100)

// InitializeTransaction opens a transaction for the given amount and payer.
// Amount is converted to gateway subunits; the reference is ours and comes
// back on the webhook.
func (c *Client) InitializeTransaction(ctx context.Context, amount decimal.Decimal, email, reference string) (InitResult, error) {
	payload := map[string]interface{}{
		"email":     email,
		"amount":    amount.Mul(subunits).IntPart(),
		"reference": reference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return InitResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return InitResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return InitResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return InitResult{}, fmt.Errorf("paystack: unexpected status %s", resp.Status)
	}

	var apiResp struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return InitResult{}, err
	}
	if !apiResp.Status {
		return InitResult{}, fmt.Errorf("paystack: unsuccessful response")
	}
	return InitResult{Reference: apiResp.Data.Reference, AuthorizationURL: apiResp.Data.AuthorizationURL}, nil
}

// WebhookEvent is the subset of the webhook payload the handler trusts,
// after the signature check.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Channel   string `json:"channel"`
		// GatewayResponse carries the processor's verdict, e.g. the
		// decline reason on charge.failed.
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// ParseWebhook decodes a verified webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("paystack: bad webhook body: %w", err)
	}
	if ev.Event == "" || ev.Data.Reference == "" {
		return WebhookEvent{}, fmt.Errorf("paystack: webhook missing event or reference")
	}
	return ev, nil
}
