// Package provider is the HTTP client for the Bhutan NDI verifier API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
)

const (
	defaultAuthURL = "https://staging.bhutanndi.com/authentication/v1/authenticate"
	defaultBaseURL = "https://demo-client.bhutanndi.com"

	// foundationalIDSchema restricts requested attributes to the
	// foundational national ID credential.
	foundationalIDSchema = "https://dev-schema.ngotag.com/schemas/c7952a0a-e9b5-4a4b-a714-1e5d0a1ae076"

	// DefaultChallengeTTL is how long the provider accepts a proof for an
	// issued challenge. Flow timeouts are derived from it.
	DefaultChallengeTTL = 5 * time.Minute
)

// Config carries provider credentials and endpoints.
type Config struct {
	AuthURL      string
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	WebhookURL   string
	WebhookToken string
	ChallengeTTL time.Duration
}

// Client issues proof challenges against the NDI provider. It performs no
// internal retries; a failed Issue is retried by the caller with a fresh
// challenge.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ ports.ProofIssuer = (*Client)(nil)

// NewClient creates a provider client with sane endpoint defaults.
func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Issue authenticates with the provider, registers the webhook, creates a
// proof request for the foundational ID attributes, and subscribes the
// webhook to the resulting thread. Webhook registration and subscription
// failures are tolerated; a missing proof URL or thread ID is not.
func (c *Client) Issue(ctx context.Context) (core.Challenge, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return core.Challenge{}, err
	}

	if err := c.registerWebhook(ctx, token); err != nil {
		log.Printf("provider: webhook registration failed, continuing: %v", err)
	}

	body := map[string]any{
		"proofName": "Verify Foundational ID",
		"proofAttributes": []map[string]any{
			{
				"name":         "ID Number",
				"restrictions": []map[string]string{{"schema_name": foundationalIDSchema}},
			},
			{
				"name":         "Full Name",
				"restrictions": []map[string]string{{"schema_name": foundationalIDSchema}},
			},
		},
	}

	var resp struct {
		Data struct {
			ProofRequestURL      string `json:"proofRequestURL"`
			ProofRequestThreadID string `json:"proofRequestThreadId"`
		} `json:"data"`
	}
	if err := c.post(ctx, c.cfg.BaseURL+"/verifier/v1/proof-request", token, body, &resp); err != nil {
		return core.Challenge{}, err
	}

	if resp.Data.ProofRequestURL == "" || resp.Data.ProofRequestThreadID == "" {
		return core.Challenge{}, fmt.Errorf("%w: missing proof request URL or thread ID", core.ErrInvalidProviderResponse)
	}

	if err := c.subscribe(ctx, token, resp.Data.ProofRequestThreadID); err != nil {
		log.Printf("provider: webhook subscription failed, continuing: %v", err)
	}

	now := time.Now()
	return core.Challenge{
		Reference: resp.Data.ProofRequestURL,
		ThreadID:  resp.Data.ProofRequestThreadID,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.cfg.ChallengeTTL),
	}, nil
}

// Status fetches the provider's view of a proof request. The raw body is
// passed through untouched; its shape is provider-controlled.
func (c *Client) Status(ctx context.Context, threadID string) ([]byte, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/verifier/v1/proof-request/%s/status", c.cfg.BaseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status endpoint returned %d", core.ErrProviderUnavailable, res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// authenticate obtains a client-credentials access token.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	body := map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "client_credentials",
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.post(ctx, c.cfg.AuthURL, "", body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in authentication response", core.ErrInvalidProviderResponse)
	}
	return resp.AccessToken, nil
}

func (c *Client) registerWebhook(ctx context.Context, token string) error {
	body := map[string]any{
		"webhookId":  c.cfg.WebhookID,
		"webhookURL": c.cfg.WebhookURL,
		"authentication": map[string]any{
			"type":    "OAuth2",
			"version": "v2",
			"data":    map[string]string{"token": c.cfg.WebhookToken},
		},
	}
	return c.post(ctx, c.cfg.BaseURL+"/webhook/v1/register", token, body, nil)
}

func (c *Client) subscribe(ctx context.Context, token, threadID string) error {
	body := map[string]any{
		"webhookId": c.cfg.WebhookID,
		"threadId":  threadID,
	}
	return c.post(ctx, c.cfg.BaseURL+"/webhook/v1/subscribe", token, body, nil)
}

// post sends a JSON request and optionally decodes a JSON response.
func (c *Client) post(ctx context.Context, url, token string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", core.ErrProviderUnavailable, url, res.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidProviderResponse, err)
	}
	return nil
}
