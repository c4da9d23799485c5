package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CheckoutParams carries the fee and the opaque metadata the processor echoes
// back on the confirmation webhook. The metadata is the only link between an
// external payment and our application row, so every field matters.
type CheckoutParams struct {
	ApplicationID string
	UserID        string
	ListingID     string
	ListingType   string
	Amount        int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// Session is a hosted checkout session created at the processor.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutClient creates hosted checkout sessions.
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (Session, error)
}

// CredentialProvider supplies the processor API key. Credentials may expire
// and must be fetched per use; implementations must not memoize them in
// process-wide state.
type CredentialProvider interface {
	SecretKey(ctx context.Context) (string, error)
}

// EnvCredentials reads the secret key from the environment on every call.
type EnvCredentials struct{}

func (EnvCredentials) SecretKey(ctx context.Context) (string, error) {
	key := strings.TrimSpace(os.Getenv("NOVY_STRIPE_SECRET_KEY"))
	if key == "" {
		return "", errors.New("NOVY_STRIPE_SECRET_KEY not set")
	}
	return key, nil
}

const defaultAPIBase = "https://api.stripe.com"

// Client talks to the processor's checkout API over HTTPS.
type Client struct {
	creds   CredentialProvider
	http    *http.Client
	apiBase string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithAPIBase overrides the processor endpoint (tests, sandboxes).
func WithAPIBase(base string) ClientOption {
	return func(c *Client) {
		if base != "" {
			c.apiBase = strings.TrimSuffix(base, "/")
		}
	}
}

// NewClient constructs a checkout client around a credential provider.
func NewClient(creds CredentialProvider, opts ...ClientOption) (*Client, error) {
	if creds == nil {
		return nil, errors.New("credential provider is required")
	}
	c := &Client{
		creds:   creds,
		http:    &http.Client{Timeout: 15 * time.Second},
		apiBase: defaultAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ CheckoutClient = (*Client)(nil)

// CreateCheckoutSession creates a hosted checkout session carrying the
// application metadata for later reconciliation.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (Session, error) {
	if p.ApplicationID == "" || p.UserID == "" || p.ListingID == "" {
		return Session{}, errors.New("checkout metadata is incomplete")
	}
	if p.Amount <= 0 {
		return Session{}, errors.New("amount must be > 0")
	}

	key, err := c.creds.SecretKey(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("fetch credentials: %w", err)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", p.Currency)
	form.Set("line_items[0][price_data][product_data][name]", "Novy platform fee")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.Amount, 10))
	form.Set("line_items[0][quantity]", "1")
	form.Set("payment_intent_data[metadata][applicationId]", p.ApplicationID)
	form.Set("payment_intent_data[metadata][userId]", p.UserID)
	form.Set("payment_intent_data[metadata][listingId]", p.ListingID)
	form.Set("payment_intent_data[metadata][listingType]", p.ListingType)
	if p.SuccessURL != "" {
		form.Set("success_url", p.SuccessURL)
	}
	if p.CancelURL != "" {
		form.Set("cancel_url", p.CancelURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, fmt.Errorf("checkout session request failed: %s", resp.Status)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return Session{}, fmt.Errorf("decode checkout session: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return Session{}, errors.New("processor returned incomplete session")
	}
	return session, nil
}
