package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cxrescue/internal/logging"
)

// Order is the snapshot of an order record from the order management system.
type Order struct {
	OrderID           string                   `json:"order_id"`
	CustomerID        string                   `json:"customer_id,omitempty"`
	Status            string                   `json:"status"`
	OrderDate         string                   `json:"order_date,omitempty"`
	TotalAmount       float64                  `json:"total_amount"`
	Items             []map[string]interface{} `json:"items,omitempty"`
	ShippingAddress   interface{}              `json:"shipping_address,omitempty"`
	ShippingMethod    string                   `json:"shipping_method,omitempty"`
	TrackingNumber    string                   `json:"tracking_number,omitempty"`
	EstimatedDelivery string                   `json:"estimated_delivery,omitempty"`
	PaymentStatus     string                   `json:"payment_status,omitempty"`
}

// ReplacementReceipt is the result of creating a replacement order.
type ReplacementReceipt struct {
	NewOrderID        string `json:"new_order_id"`
	OriginalOrderID   string `json:"original_order_id"`
	ShippingMethod    string `json:"shipping_method"`
	TrackingNumber    string `json:"tracking_number,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

// ShippingReceipt is the result of a shipping upgrade.
type ShippingReceipt struct {
	OrderID           string `json:"order_id"`
	NewMethod         string `json:"new_method"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

// OrderClient talks to the order management system.
type OrderClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     *cachedSecret
}

// NewOrderClient creates an order system client. The order system shares the
// inventory platform's API credential.
func NewOrderClient(baseURL string, secrets SecretSource, timeout time.Duration) *OrderClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OrderClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     newCachedSecret(secrets, SecretInventoryAPIKey),
	}
}

type orderResponse struct {
	ID                string                   `json:"id"`
	CustomerID        string                   `json:"customer_id"`
	Status            string                   `json:"status"`
	CreatedAt         string                   `json:"created_at"`
	Total             float64                  `json:"total"`
	Items             []map[string]interface{} `json:"items"`
	ShippingAddress   interface{}              `json:"shipping_address"`
	ShippingMethod    string                   `json:"shipping_method"`
	TrackingNumber    string                   `json:"tracking_number"`
	EstimatedDelivery string                   `json:"estimated_delivery"`
	PaymentStatus     string                   `json:"payment_status"`
}

func (r *orderResponse) toOrder(orderID string) *Order {
	o := &Order{
		OrderID:           r.ID,
		CustomerID:        r.CustomerID,
		Status:            r.Status,
		OrderDate:         r.CreatedAt,
		TotalAmount:       r.Total,
		Items:             r.Items,
		ShippingAddress:   r.ShippingAddress,
		ShippingMethod:    r.ShippingMethod,
		TrackingNumber:    r.TrackingNumber,
		EstimatedDelivery: r.EstimatedDelivery,
		PaymentStatus:     r.PaymentStatus,
	}
	if o.OrderID == "" {
		o.OrderID = orderID
	}
	if o.Status == "" {
		o.Status = "unknown"
	}
	return o
}

// GetStatus retrieves order status and details. Returns ErrNotFound for
// unknown orders.
func (c *OrderClient) GetStatus(ctx context.Context, orderID string) (*Order, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/orders/%s", c.baseURL, orderID)
	logging.Tools("[Orders] Looking up order %s", orderID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	var raw orderResponse
	if err := doJSON(c.httpClient, req, &raw); err != nil {
		return nil, err
	}
	return raw.toOrder(orderID), nil
}

// CreateReplacement creates a replacement for an existing order, copying its
// items and shipping address. When upgrade is set the replacement ships
// express regardless of the original method.
func (c *OrderClient) CreateReplacement(ctx context.Context, originalOrderID string, upgrade bool) (*ReplacementReceipt, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}

	original, err := c.GetStatus(ctx, originalOrderID)
	if err != nil {
		return nil, fmt.Errorf("original order lookup: %w", err)
	}

	shippingMethod := original.ShippingMethod
	if upgrade || shippingMethod == "" {
		shippingMethod = "express"
	}

	payload := map[string]interface{}{
		"customer_id":       original.CustomerID,
		"items":             original.Items,
		"shipping_address":  original.ShippingAddress,
		"shipping_method":   shippingMethod,
		"order_type":        "replacement",
		"original_order_id": originalOrderID,
		"notes":             "Replacement order created by CX Rescue Pipeline",
		"priority":          "high",
	}

	logging.Tools("[Orders] Creating replacement order for %s", originalOrderID)

	var resp struct {
		ID                string `json:"id"`
		TrackingNumber    string `json:"tracking_number"`
		EstimatedDelivery string `json:"estimated_delivery"`
	}
	if err := c.post(ctx, fmt.Sprintf("%s/orders", c.baseURL), key, payload, &resp); err != nil {
		return nil, err
	}

	return &ReplacementReceipt{
		NewOrderID:        resp.ID,
		OriginalOrderID:   originalOrderID,
		ShippingMethod:    shippingMethod,
		TrackingNumber:    resp.TrackingNumber,
		EstimatedDelivery: resp.EstimatedDelivery,
	}, nil
}

// UpgradeShipping upgrades the shipping method on a pending order.
func (c *OrderClient) UpgradeShipping(ctx context.Context, orderID, newMethod string) (*ShippingReceipt, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}
	if newMethod == "" {
		newMethod = "express"
	}

	payload := map[string]interface{}{
		"shipping_method": newMethod,
		"reason":          "Customer experience rescue upgrade",
	}

	logging.Tools("[Orders] Upgrading shipping for order %s to %s", orderID, newMethod)

	var resp struct {
		EstimatedDelivery string `json:"estimated_delivery"`
	}
	url := fmt.Sprintf("%s/orders/%s/shipping", c.baseURL, orderID)
	if err := c.post(ctx, url, key, payload, &resp); err != nil {
		return nil, err
	}

	return &ShippingReceipt{
		OrderID:           orderID,
		NewMethod:         newMethod,
		EstimatedDelivery: resp.EstimatedDelivery,
	}, nil
}

func (c *OrderClient) post(ctx context.Context, url, key string, payload, out interface{}) error {
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
