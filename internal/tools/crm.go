package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cxrescue/internal/logging"
)

// CustomerProfile is the read-only snapshot of a customer record as formatted
// from the CRM response. Stages receive it through the case file and never
// mutate it.
type CustomerProfile struct {
	CustomerID        string  `json:"customer_id"`
	Name              string  `json:"name"`
	Email             string  `json:"email,omitempty"`
	Phone             string  `json:"phone,omitempty"`
	LTV               float64 `json:"ltv"`
	Status            string  `json:"status"`
	RecentOrderCount  int     `json:"recent_order_count"`
	TotalOrders       int     `json:"total_orders"`
	AvgOrderValue     float64 `json:"avg_order_value"`
	JoinDate          string  `json:"join_date,omitempty"`
	LastOrderDate     string  `json:"last_order_date,omitempty"`
	SupportTickets    int     `json:"support_tickets"`
	SatisfactionScore float64 `json:"satisfaction_score,omitempty"`
}

// CreditReceipt is the result of adding an account credit.
type CreditReceipt struct {
	CreditID   string  `json:"credit_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
	Balance    float64 `json:"balance,omitempty"`
}

// CRMClient talks to the customer record system.
type CRMClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     *cachedSecret
}

// NewCRMClient creates a CRM client for the given base URL.
func NewCRMClient(baseURL string, secrets SecretSource, timeout time.Duration) *CRMClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CRMClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     newCachedSecret(secrets, SecretCRMAPIKey),
	}
}

// crmCustomerResponse mirrors the CRM wire shape.
type crmCustomerResponse struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	Phone             string  `json:"phone"`
	LifetimeValue     float64 `json:"lifetime_value"`
	Tier              string  `json:"tier"`
	OrdersLast90Days  int     `json:"orders_last_90_days"`
	TotalOrders       int     `json:"total_orders"`
	AvgOrderValue     float64 `json:"avg_order_value"`
	CreatedAt         string  `json:"created_at"`
	LastOrderDate     string  `json:"last_order_date"`
	SupportTickets    int     `json:"support_tickets_count"`
	SatisfactionScore float64 `json:"satisfaction_score"`
}

// LookupCustomer fetches a customer record. Returns ErrNotFound when the CRM
// has no record for the id.
func (c *CRMClient) LookupCustomer(ctx context.Context, customerID string) (*CustomerProfile, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/customers/%s", c.baseURL, customerID)
	logging.Tools("[CRM] Looking up customer %s", customerID)

	var raw crmCustomerResponse
	if err := c.getJSON(ctx, url, key, &raw); err != nil {
		return nil, err
	}

	profile := &CustomerProfile{
		CustomerID:        raw.ID,
		Name:              raw.Name,
		Email:             raw.Email,
		Phone:             raw.Phone,
		LTV:               raw.LifetimeValue,
		Status:            raw.Tier,
		RecentOrderCount:  raw.OrdersLast90Days,
		TotalOrders:       raw.TotalOrders,
		AvgOrderValue:     raw.AvgOrderValue,
		JoinDate:          raw.CreatedAt,
		LastOrderDate:     raw.LastOrderDate,
		SupportTickets:    raw.SupportTickets,
		SatisfactionScore: raw.SatisfactionScore,
	}
	if profile.CustomerID == "" {
		profile.CustomerID = customerID
	}
	if profile.Name == "" {
		profile.Name = "Unknown"
	}
	if profile.Status == "" {
		profile.Status = "Standard"
	}
	return profile, nil
}

// AppendNote adds a note to the customer's record.
func (c *CRMClient) AppendNote(ctx context.Context, customerID, note string) (bool, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return false, err
	}

	url := fmt.Sprintf("%s/customers/%s/notes", c.baseURL, customerID)
	payload := map[string]interface{}{
		"note":       note,
		"created_by": "CX-Rescue-Pipeline",
	}

	if err := c.postJSON(ctx, url, key, payload, nil); err != nil {
		logging.ToolsError("[CRM] Failed to append note for customer %s: %v", customerID, err)
		return false, err
	}
	logging.Tools("[CRM] Appended note for customer %s", customerID)
	return true, nil
}

// AddCredit adds a service-recovery credit to the customer account.
func (c *CRMClient) AddCredit(ctx context.Context, customerID string, amount float64, reason string) (*CreditReceipt, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "Service recovery credit"
	}

	url := fmt.Sprintf("%s/customers/%s/credits", c.baseURL, customerID)
	payload := map[string]interface{}{
		"amount": amount,
		"reason": reason,
		"source": "cx_rescue_pipeline",
		"type":   "service_recovery",
	}

	var resp struct {
		ID         string  `json:"id"`
		NewBalance float64 `json:"new_balance"`
	}
	if err := c.postJSON(ctx, url, key, payload, &resp); err != nil {
		return nil, err
	}

	logging.Tools("[CRM] Added $%.2f credit to customer %s", amount, customerID)
	return &CreditReceipt{
		CreditID:   resp.ID,
		CustomerID: customerID,
		Amount:     amount,
		Balance:    resp.NewBalance,
	}, nil
}

func (c *CRMClient) getJSON(ctx context.Context, url, key string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	return doJSON(c.httpClient, req, out)
}

func (c *CRMClient) postJSON(ctx context.Context, url, key string, payload, out interface{}) error {
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

// doJSON executes req and decodes a JSON response into out (when non-nil).
// 404 maps to ErrNotFound; other non-2xx statuses become transport errors.
func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
