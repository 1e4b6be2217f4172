package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cxrescue/internal/logging"
)

// SendReceipt records the outcome of an email or SMS send.
type SendReceipt struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// EmailClient sends customer emails through a SendGrid-compatible endpoint.
type EmailClient struct {
	endpoint   string
	fromEmail  string
	httpClient *http.Client
	apiKey     *cachedSecret
}

// NewEmailClient creates an email sender.
func NewEmailClient(endpoint, fromEmail string, secrets SecretSource, timeout time.Duration) *EmailClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmailClient{
		endpoint:   endpoint,
		fromEmail:  fromEmail,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     newCachedSecret(secrets, SecretSendgridAPIKey),
	}
}

// SendEmail sends an HTML-wrapped email to the recipient.
func (c *EmailClient) SendEmail(ctx context.Context, recipient, subject, body string) (*SendReceipt, error) {
	key, err := c.apiKey.get()
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{
				"to":      []map[string]string{{"email": recipient}},
				"subject": subject,
			},
		},
		"from": map[string]string{"email": c.fromEmail},
		"content": []map[string]string{
			{
				"type":  "text/html",
				"value": formatHTMLEmail(body),
			},
		},
		"categories": []string{"cx-rescue"},
		"custom_args": map[string]string{
			"source": "cx_rescue_pipeline",
			"type":   "service_recovery",
		},
	}

	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(data.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	logging.Tools("[Email] Sending email to %s", recipient)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("email send failed with status %d", resp.StatusCode)
	}

	return &SendReceipt{
		Recipient: recipient,
		MessageID: resp.Header.Get("X-Message-Id"),
		Status:    "sent",
	}, nil
}

// formatHTMLEmail wraps a plain text body in the standard customer email
// layout.
func formatHTMLEmail(body string) string {
	htmlBody := strings.ReplaceAll(body, "\n", "<br>")
	return fmt.Sprintf(`
	<html>
	<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
		<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
			%s
			<br><br>
			<div style="border-top: 1px solid #eee; padding-top: 20px; margin-top: 20px;">
				<p style="font-size: 12px; color: #666;">
					This message was sent by our Customer Experience team to ensure
					your issue is resolved quickly. If you need further assistance,
					please contact our support team.
				</p>
			</div>
		</div>
	</body>
	</html>
	`, htmlBody)
}

// SMSClient sends short notifications through a Twilio-compatible endpoint.
type SMSClient struct {
	baseURL    string
	accountSID string
	fromNumber string
	maxLength  int
	httpClient *http.Client
	authToken  *cachedSecret
}

// NewSMSClient creates an SMS sender. maxLength bounds the message body;
// longer bodies are truncated with an ellipsis.
func NewSMSClient(baseURL, accountSID, fromNumber string, maxLength int, secrets SecretSource, timeout time.Duration) *SMSClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxLength <= 0 {
		maxLength = 160
	}
	return &SMSClient{
		baseURL:    baseURL,
		accountSID: accountSID,
		fromNumber: fromNumber,
		maxLength:  maxLength,
		httpClient: &http.Client{Timeout: timeout},
		authToken:  newCachedSecret(secrets, SecretTwilioAuthToken),
	}
}

// TruncateSMS bounds an SMS body to maxLength characters total, ending in an
// ellipsis when truncation occurred.
func TruncateSMS(body string, maxLength int) string {
	if maxLength <= 3 || len(body) <= maxLength {
		return body
	}
	return body[:maxLength-3] + "..."
}

// SendSMS sends a short message to the recipient (E.164 format).
func (c *SMSClient) SendSMS(ctx context.Context, recipient, body string) (*SendReceipt, error) {
	token, err := c.authToken.get()
	if err != nil {
		return nil, err
	}

	body = TruncateSMS(body, c.maxLength)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.accountSID + ":" + token))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logging.Tools("[SMS] Sending SMS to %s (%d chars)", recipient, len(body))

	var resp struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := doJSON(c.httpClient, req, &resp); err != nil {
		return nil, err
	}

	return &SendReceipt{
		Recipient: recipient,
		MessageID: resp.SID,
		Status:    resp.Status,
	}, nil
}
