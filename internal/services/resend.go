package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const resendBaseURL = "https://api.resend.com"

// ResendService sends transactional email through the Resend API. It backs
// the access-request signup notification.
type ResendService struct {
	apiKey     string
	from       string
	adminEmail string
	baseURL    string
	httpClient *http.Client
}

func NewResendService(apiKey, from, adminEmail string, httpClient *http.Client, baseURL string) *ResendService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = resendBaseURL
	}

	return &ResendService{
		apiKey:     apiKey,
		from:       from,
		adminEmail: adminEmail,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// NotifySignup emails the configured admin about a new access request.
func (r *ResendService) NotifySignup(ctx context.Context, email, name string) error {
	if r.apiKey == "" || r.adminEmail == "" {
		return fmt.Errorf("resend not configured")
	}

	displayName := name
	if displayName == "" {
		displayName = "(not provided)"
	}

	payload := map[string]any{
		"from":    r.from,
		"to":      []string{r.adminEmail},
		"subject": "New access request",
		"html": fmt.Sprintf(
			"<p>A new user requested access.</p><p>Email: %s<br>Name: %s</p>",
			email, displayName,
		),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resend api returned status %d", resp.StatusCode)
	}

	return nil
}
