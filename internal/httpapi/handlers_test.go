package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"novy.market/internal/auth"
	"novy.market/internal/email"
	"novy.market/internal/market"
	"novy.market/internal/payment"
	"novy.market/internal/store/memory"
)

const testWebhookSecret = "whsec_test"

type captureMailer struct {
	mu   sync.Mutex
	sent []email.OwnerAuthorizationMail
}

func (m *captureMailer) SendOwnerAuthorization(_ context.Context, mail email.OwnerAuthorizationMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no authorization mail sent")
	}
	url := m.sent[len(m.sent)-1].AuthorizeURL
	return url[strings.LastIndex(url, "/")+1:]
}

type fakeCheckout struct{}

func (fakeCheckout) CreateCheckoutSession(_ context.Context, p payment.CheckoutParams) (payment.Session, error) {
	return payment.Session{ID: "cs_" + p.ApplicationID, URL: "https://checkout.test/cs_" + p.ApplicationID}, nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	mailer  *captureMailer
	store   *memory.Store
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("NOVY_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	mailer := &captureMailer{}
	store := memory.New()
	svc := market.NewService(store,
		market.WithMailer(mailer),
		market.WithCheckout(fakeCheckout{}),
		market.WithBaseURL("https://novy.test"),
	)
	api := New(svc, ReadyProbe{}, testWebhookSecret, "test", WithRateLimit(1000, 1000))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		mailer:  mailer,
		store:   store,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) decode(resp *http.Response, dst any) {
	c.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		c.t.Fatalf("decode response: %v", err)
	}
}

func (c *apiClient) expectStatus(resp *http.Response, want int) {
	c.t.Helper()
	if resp.StatusCode != want {
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		c.t.Fatalf("status = %d, want %d (body: %v)", resp.StatusCode, want, body)
	}
}

func authHdr(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// registerAndLogin creates an account and returns its id and session token.
func (c *apiClient) registerAndLogin(email string) (string, string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email": email, "name": "Test User", "password": "long enough pass",
	}, nil)
	c.expectStatus(resp, http.StatusCreated)
	var u market.User
	c.decode(resp, &u)

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email": email, "password": "long enough pass",
	}, nil)
	c.expectStatus(resp, http.StatusOK)
	var lr struct {
		Token string `json:"token"`
	}
	c.decode(resp, &lr)
	return u.ID, lr.Token
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/healthz", nil, nil)
	c.expectStatus(resp, http.StatusOK)
	var body map[string]any
	c.decode(resp, &body)
	if body["service"] != "novy-api" {
		t.Fatalf("unexpected service name: %v", body["service"])
	}
}

func TestAuthRequired(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/v1/me", nil, nil)
	c.expectStatus(resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/me", nil, authHdr("garbage"))
	c.expectStatus(resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestListingTransferFlow(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()

	_, tenantToken := c.registerAndLogin("tenant@example.com")
	applicantID, applicantToken := c.registerAndLogin("applicant@example.com")

	// Tenant creates a listing; it waits on owner authorization.
	resp := c.do(http.MethodPost, "/v1/listings", map[string]any{
		"type": "residential", "title": "Loft downtown", "address": "9 Main St",
		"city": "Austin", "state": "TX", "zip_code": "78701", "rent": 210000,
		"lease_expiration": time.Now().AddDate(0, 8, 0).Format(time.RFC3339),
		"owner_email":      "owner@example.com", "owner_name": "Pat",
		"tenant_name":      "Sam",
	}, authHdr(tenantToken))
	c.expectStatus(resp, http.StatusCreated)
	var listing market.Listing
	c.decode(resp, &listing)
	if listing.Status != market.ListingPendingAuth {
		t.Fatalf("listing status = %s", listing.Status)
	}

	// The public browse hides it while pending.
	resp = c.do(http.MethodGet, "/v1/listings", nil, nil)
	var page struct {
		Items []market.Listing `json:"items"`
	}
	c.decode(resp, &page)
	if len(page.Items) != 0 {
		t.Fatalf("pending listing should not be browsable, got %d items", len(page.Items))
	}

	// Owner opens the emailed link and approves.
	token := c.mailer.lastToken(t)
	resp = c.do(http.MethodGet, "/v1/authorize/"+token, nil, nil)
	c.expectStatus(resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/authorize/"+token, map[string]any{"approve": true}, nil)
	c.expectStatus(resp, http.StatusOK)
	c.decode(resp, &listing)
	if listing.Status != market.ListingActive {
		t.Fatalf("listing status after approval = %s", listing.Status)
	}

	// Replay of the one-time link conflicts.
	resp = c.do(http.MethodPost, "/v1/authorize/"+token, map[string]any{"approve": true}, nil)
	c.expectStatus(resp, http.StatusConflict)
	resp.Body.Close()

	// Applicant applies with both consents.
	resp = c.do(http.MethodPost, "/v1/applications", map[string]any{
		"listing_id": listing.ID, "cover_letter": "Hi!",
		"accept_tos": true, "accept_disclaimer": true,
	}, authHdr(applicantToken))
	c.expectStatus(resp, http.StatusCreated)
	var app market.Application
	c.decode(resp, &app)

	// Tenant approves the application.
	resp = c.do(http.MethodPost, "/v1/applications/"+app.ID+"/review",
		map[string]any{"status": "approved"}, authHdr(tenantToken))
	c.expectStatus(resp, http.StatusOK)
	resp.Body.Close()

	// Messaging is still gated before payment.
	resp = c.do(http.MethodPost, "/v1/messages", map[string]any{
		"listing_id": listing.ID, "recipient_id": listing.UserID, "content": "hello",
	}, authHdr(applicantToken))
	c.expectStatus(resp, http.StatusForbidden)
	resp.Body.Close()

	// Applicant starts checkout.
	resp = c.do(http.MethodPost, "/v1/applications/"+app.ID+"/checkout", nil, authHdr(applicantToken))
	c.expectStatus(resp, http.StatusCreated)
	var intent struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	c.decode(resp, &intent)
	if intent.Amount != 39900 || intent.Currency != "usd" {
		t.Fatalf("unexpected fee: %d %s", intent.Amount, intent.Currency)
	}

	// Signed success webhook flips payment status.
	payload := webhookPayload("evt_1", payment.EventPaymentSucceeded, "pi_1", intent.Amount, app.ID, applicantID, listing.ID)
	resp = c.postWebhook(payload)
	c.expectStatus(resp, http.StatusOK)
	resp.Body.Close()

	got, err := c.store.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.PaymentStatus != market.PaymentPaid {
		t.Fatalf("payment status = %s", got.PaymentStatus)
	}

	// Replay acknowledges as duplicate.
	resp = c.postWebhook(payload)
	c.expectStatus(resp, http.StatusOK)
	var out struct {
		Outcome string `json:"outcome"`
	}
	c.decode(resp, &out)
	if out.Outcome != market.ReconcileDuplicate {
		t.Fatalf("replay outcome = %s", out.Outcome)
	}

	// Messaging now works.
	resp = c.do(http.MethodPost, "/v1/messages", map[string]any{
		"listing_id": listing.ID, "recipient_id": listing.UserID, "content": "hello again",
	}, authHdr(applicantToken))
	c.expectStatus(resp, http.StatusCreated)
	resp.Body.Close()
}

func (c *apiClient) postWebhook(payload []byte) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/stripe/webhook", bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.SignatureHeader, payment.Sign(payload, testWebhookSecret, time.Now()))
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func webhookPayload(eventID, eventType, intentID string, amount int64, appID, userID, listingID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q, "type": %q,
		"data": {"object": {
			"id": %q, "amount": %d, "currency": "usd",
			"metadata": {"applicationId": %q, "userId": %q, "listingId": %q, "listingType": "residential"}
		}}
	}`, eventID, eventType, intentID, amount, appID, userID, listingID))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	c := newTestAPI(t)
	payload := webhookPayload("evt_1", payment.EventPaymentSucceeded, "pi_1", 39900, "app", "user", "listing")

	// Missing header.
	resp := c.do(http.MethodPost, "/v1/stripe/webhook", json.RawMessage(payload), nil)
	c.expectStatus(resp, http.StatusBadRequest)
	resp.Body.Close()

	// Wrong secret.
	req, _ := http.NewRequest(http.MethodPost, c.baseURL+"/v1/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, payment.Sign(payload, "wrong-secret", time.Now()))
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	c.expectStatus(resp, http.StatusBadRequest)
	resp.Body.Close()

	// Stale timestamp.
	req, _ = http.NewRequest(http.MethodPost, c.baseURL+"/v1/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, payment.Sign(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	resp, err = c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	c.expectStatus(resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	c := newTestAPI(t)
	payload := []byte(`{"not": "an event"}`)
	resp := c.postWebhook(payload)
	c.expectStatus(resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestAdminGate(t *testing.T) {
	c := newTestAPI(t)
	_, token := c.registerAndLogin("user@example.com")

	resp := c.do(http.MethodGet, "/v1/admin/stats", nil, authHdr(token))
	c.expectStatus(resp, http.StatusForbidden)
	resp.Body.Close()

	// A real admin row gets through.
	admin := market.User{
		ID: "admin-1", Email: "admin@example.com", Name: "Admin",
		Role: market.RoleAdmin, PasswordHash: "x",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateUser(context.Background(), &admin); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	adminToken, err := auth.GenerateToken(admin.ID, []string{market.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	resp = c.do(http.MethodGet, "/v1/admin/stats", nil, authHdr(adminToken))
	c.expectStatus(resp, http.StatusOK)
	resp.Body.Close()
}

func TestUnknownAuthorizationToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/v1/authorize/not-a-real-token", nil, nil)
	c.expectStatus(resp, http.StatusNotFound)
	resp.Body.Close()
}
