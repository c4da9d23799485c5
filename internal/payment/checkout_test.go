package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticCredentials string

func (s staticCredentials) SecretKey(context.Context) (string, error) {
	return string(s), nil
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotAuth string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.test/cs_123"}`))
	}))
	defer srv.Close()

	client, err := NewClient(staticCredentials("sk_test_abc"),
		WithAPIBase(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		ApplicationID: "app-1",
		UserID:        "user-1",
		ListingID:     "listing-1",
		ListingType:   "residential",
		Amount:        39900,
		Currency:      "usd",
		SuccessURL:    "https://novy.test/ok",
		CancelURL:     "https://novy.test/cancel",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.ID != "cs_123" || session.URL != "https://checkout.test/cs_123" {
		t.Fatalf("unexpected session: %+v", session)
	}

	if gotAuth != "Bearer sk_test_abc" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotForm["mode"] != "payment" {
		t.Fatalf("mode = %q", gotForm["mode"])
	}
	if gotForm["line_items[0][price_data][unit_amount]"] != "39900" {
		t.Fatalf("unit_amount = %q", gotForm["line_items[0][price_data][unit_amount]"])
	}
	if gotForm["payment_intent_data[metadata][applicationId]"] != "app-1" ||
		gotForm["payment_intent_data[metadata][listingId]"] != "listing-1" {
		t.Fatalf("metadata not forwarded: %v", gotForm)
	}
}

func TestCreateCheckoutSessionRejectsIncompleteMetadata(t *testing.T) {
	client, err := NewClient(staticCredentials("sk"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		ApplicationID: "app-1", Amount: 100,
	}); err == nil {
		t.Fatal("expected error for missing metadata")
	}
}

func TestCreateCheckoutSessionProcessorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client, err := NewClient(staticCredentials("sk"),
		WithAPIBase(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		ApplicationID: "app-1", UserID: "u", ListingID: "l", Amount: 100, Currency: "usd",
	}); err == nil {
		t.Fatal("expected processor error")
	}
}

func TestEnvCredentialsReadPerCall(t *testing.T) {
	t.Setenv("NOVY_STRIPE_SECRET_KEY", "sk_first")
	creds := EnvCredentials{}
	key, err := creds.SecretKey(context.Background())
	if err != nil || key != "sk_first" {
		t.Fatalf("key = %q, err = %v", key, err)
	}

	// Rotation is picked up without process restart.
	t.Setenv("NOVY_STRIPE_SECRET_KEY", "sk_second")
	key, err = creds.SecretKey(context.Background())
	if err != nil || key != "sk_second" {
		t.Fatalf("key = %q, err = %v", key, err)
	}

	t.Setenv("NOVY_STRIPE_SECRET_KEY", "")
	if _, err := creds.SecretKey(context.Background()); err == nil {
		t.Fatal("expected error when key unset")
	}
}
