package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecrets() StaticSecretSource {
	return StaticSecretSource{
		SecretCRMAPIKey:       "crm-key",
		SecretInventoryAPIKey: "inv-key",
		SecretPaymentAPIKey:   "pay-key",
		SecretSendgridAPIKey:  "sg-key",
		SecretTwilioAuthToken: "tw-token",
		SecretTranscriptKey:   "tr-key",
	}
}

func TestLookupCustomerFormatsProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/C1", r.URL.Path)
		assert.Equal(t, "Bearer crm-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                  "C1",
			"name":                "Jane Doe",
			"email":               "jane@example.com",
			"phone":               "+15551234567",
			"lifetime_value":      1500.0,
			"tier":                "Gold",
			"orders_last_90_days": 4,
			"total_orders":        22,
		})
	}))
	defer server.Close()

	client := NewCRMClient(server.URL, testSecrets(), 5*time.Second)
	profile, err := client.LookupCustomer(context.Background(), "C1")
	require.NoError(t, err)

	assert.Equal(t, "C1", profile.CustomerID)
	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, 1500.0, profile.LTV)
	assert.Equal(t, "Gold", profile.Status)
	assert.Equal(t, 4, profile.RecentOrderCount)
}

func TestLookupCustomerNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewCRMClient(server.URL, testSecrets(), 5*time.Second)
	_, err := client.LookupCustomer(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestLookupCustomerDefaultsMissingFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"lifetime_value": 10.0})
	}))
	defer server.Close()

	client := NewCRMClient(server.URL, testSecrets(), 5*time.Second)
	profile, err := client.LookupCustomer(context.Background(), "C9")
	require.NoError(t, err)

	assert.Equal(t, "C9", profile.CustomerID)
	assert.Equal(t, "Unknown", profile.Name)
	assert.Equal(t, "Standard", profile.Status)
}

func TestAppendNote(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/C1/notes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewCRMClient(server.URL, testSecrets(), 5*time.Second)
	ok, err := client.AppendNote(context.Background(), "C1", "resolution note")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "resolution note", got["note"])
	assert.Equal(t, "CX-Rescue-Pipeline", got["created_by"])
}

func TestAddCredit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/C1/credits", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "cr_1", "new_balance": 125.0})
	}))
	defer server.Close()

	client := NewCRMClient(server.URL, testSecrets(), 5*time.Second)
	receipt, err := client.AddCredit(context.Background(), "C1", 25, "")
	require.NoError(t, err)

	assert.Equal(t, "cr_1", receipt.CreditID)
	assert.Equal(t, 25.0, receipt.Amount)
	assert.Equal(t, 125.0, receipt.Balance)
}

func TestMissingSecretFailsLookup(t *testing.T) {
	client := NewCRMClient("http://localhost:1", StaticSecretSource{}, time.Second)
	_, err := client.LookupCustomer(context.Background(), "C1")
	assert.True(t, errors.Is(err, ErrSecretUnavailable))
}
