package tools

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cxrescue/internal/logging"
)

// TranscriptClient fetches conversation transcripts from the transcript store.
type TranscriptClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     *cachedSecret
}

// NewTranscriptClient creates a transcript store client.
func NewTranscriptClient(baseURL string, secrets SecretSource, timeout time.Duration) *TranscriptClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TranscriptClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     newCachedSecret(secrets, SecretTranscriptKey),
	}
}

// Fetch returns the plain text of a conversation. Returns ErrNotFound when the
// transcript does not exist or is empty.
func (c *TranscriptClient) Fetch(ctx context.Context, transcriptID string) (string, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/transcripts/%s", c.baseURL, transcriptID)
	logging.Tools("[Transcripts] Fetching transcript %s", transcriptID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	var resp struct {
		TranscriptID string `json:"transcript_id"`
		Text         string `json:"text"`
	}
	if err := doJSON(c.httpClient, req, &resp); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", ErrNotFound
	}
	return resp.Text, nil
}
