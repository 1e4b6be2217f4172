package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cxrescue/internal/logging"
)

// StockInfo describes availability for one product.
type StockInfo struct {
	ProductID         string   `json:"product_id"`
	ProductName       string   `json:"product_name,omitempty"`
	SKU               string   `json:"sku,omitempty"`
	InStock           bool     `json:"in_stock"`
	QuantityAvailable int      `json:"quantity_available"`
	RestockDate       string   `json:"restock_date,omitempty"`
	Alternatives      []string `json:"alternative_products,omitempty"`
}

// InventoryClient checks product availability and stock levels.
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     *cachedSecret
}

// NewInventoryClient creates an inventory client.
func NewInventoryClient(baseURL string, secrets SecretSource, timeout time.Duration) *InventoryClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InventoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     newCachedSecret(secrets, SecretInventoryAPIKey),
	}
}

// CheckAvailability resolves a product mention (SKU, name, or id) to current
// stock information. Two calls: product search, then inventory levels.
// Returns ErrNotFound when no product matches.
func (c *InventoryClient) CheckAvailability(ctx context.Context, productIdentifier string) (*StockInfo, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}

	logging.Tools("[Inventory] Checking availability for %q", productIdentifier)

	product, err := c.lookupProduct(ctx, productIdentifier, key)
	if err != nil {
		return nil, err
	}

	info := &StockInfo{
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         product.SKU,
	}

	levels, err := c.getInventoryLevels(ctx, product.ID, key)
	if err != nil {
		// Product exists but levels are unavailable; report as out of stock
		// rather than failing the lookup.
		logging.ToolsError("[Inventory] Levels unavailable for product %s: %v", product.ID, err)
		return info, nil
	}

	info.InStock = levels.Quantity > 0
	info.QuantityAvailable = levels.Quantity
	info.RestockDate = levels.ExpectedRestock
	info.Alternatives = levels.Alternatives
	return info, nil
}

type productRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	SKU  string `json:"sku"`
}

func (c *InventoryClient) lookupProduct(ctx context.Context, identifier, key string) (*productRecord, error) {
	searchURL := fmt.Sprintf("%s/products/search?q=%s", c.baseURL, url.QueryEscape(identifier))
	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	var resp struct {
		Products []productRecord `json:"products"`
	}
	if err := doJSON(c.httpClient, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Products) == 0 {
		return nil, ErrNotFound
	}
	return &resp.Products[0], nil
}

type inventoryLevels struct {
	Quantity        int      `json:"quantity"`
	Reserved        int      `json:"reserved"`
	ExpectedRestock string   `json:"expected_restock"`
	Alternatives    []string `json:"alternative_products"`
}

func (c *InventoryClient) getInventoryLevels(ctx context.Context, productID, key string) (*inventoryLevels, error) {
	levelsURL := fmt.Sprintf("%s/inventory/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, "GET", levelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	var levels inventoryLevels
	if err := doJSON(c.httpClient, req, &levels); err != nil {
		return nil, err
	}
	return &levels, nil
}
