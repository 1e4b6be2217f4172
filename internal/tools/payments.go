package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cxrescue/internal/logging"

	"github.com/google/uuid"
)

// RefundReceipt is the result of a processed refund.
type RefundReceipt struct {
	RefundID string  `json:"refund_id"`
	OrderID  string  `json:"order_id"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"`
}

// CouponReceipt is the result of coupon creation.
type CouponReceipt struct {
	CouponCode string  `json:"coupon_code"`
	CouponID   string  `json:"coupon_id,omitempty"`
	CustomerID string  `json:"customer_id"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
}

// PaymentClient talks to the payment provider for refunds and coupons.
type PaymentClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     *cachedSecret
}

// NewPaymentClient creates a payment provider client.
func NewPaymentClient(baseURL string, secrets SecretSource, timeout time.Duration) *PaymentClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     newCachedSecret(secrets, SecretPaymentAPIKey),
	}
}

// Refund processes a refund against an order's charge. amount <= 0 means a
// full refund; otherwise a partial refund of that amount. Amounts cross the
// wire in cents.
func (c *PaymentClient) Refund(ctx context.Context, orderID string, amount float64, reason string) (*RefundReceipt, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "requested_by_customer"
	}

	payload := map[string]interface{}{
		"charge": orderID,
		"reason": reason,
		"metadata": map[string]string{
			"source":    "cx_rescue_pipeline",
			"automated": "true",
		},
	}
	if amount > 0 {
		payload["amount"] = int(amount * 100)
	}

	logging.Tools("[Payments] Processing refund for order %s", orderID)

	var resp struct {
		ID     string `json:"id"`
		Amount int    `json:"amount"`
		Status string `json:"status"`
	}
	if err := c.post(ctx, fmt.Sprintf("%s/v1/refunds", c.baseURL), key, payload, &resp); err != nil {
		return nil, err
	}

	return &RefundReceipt{
		RefundID: resp.ID,
		OrderID:  orderID,
		Amount:   float64(resp.Amount) / 100,
		Status:   resp.Status,
	}, nil
}

// CreateCoupon creates a discount coupon for a customer. unit is "percent" or
// "amount" (dollars).
func (c *PaymentClient) CreateCoupon(ctx context.Context, customerID string, value float64, unit string) (*CouponReceipt, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}
	if unit == "" {
		unit = "percent"
	}

	couponCode := fmt.Sprintf("CX-RESCUE-%s", strings.ToUpper(uuid.NewString()[:8]))

	payload := map[string]interface{}{
		"id":   couponCode,
		"name": fmt.Sprintf("Customer Experience Rescue - %s", customerID),
		"metadata": map[string]string{
			"customer_id": customerID,
			"source":      "cx_rescue_pipeline",
			"created_for": "service_recovery",
		},
	}
	if unit == "percent" {
		payload["percent_off"] = value
	} else {
		payload["amount_off"] = int(value * 100)
		payload["currency"] = "usd"
	}

	logging.Tools("[Payments] Creating coupon %s for customer %s", couponCode, customerID)

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, fmt.Sprintf("%s/v1/coupons", c.baseURL), key, payload, &resp); err != nil {
		return nil, err
	}

	return &CouponReceipt{
		CouponCode: couponCode,
		CouponID:   resp.ID,
		CustomerID: customerID,
		Value:      value,
		Unit:       unit,
	}, nil
}

func (c *PaymentClient) post(ctx context.Context, url, key string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	return doJSON(c.httpClient, req, out)
}
