package payment

import (
	"errors"
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "whsec_test"
	now := time.Now()

	header := Sign(payload, secret, now)
	if err := VerifySignature(payload, header, secret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureRejectsTamper(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Now()
	header := Sign(payload, secret, now)

	cases := map[string]struct {
		payload []byte
		header  string
		secret  string
	}{
		"body changed":   {[]byte(`{"id":"evt_2"}`), header, secret},
		"wrong secret":   {payload, header, "whsec_other"},
		"missing header": {payload, "", secret},
		"garbage header": {payload, "t=abc,v1=zz", secret},
	}
	for name, tc := range cases {
		if err := VerifySignature(tc.payload, tc.header, tc.secret, DefaultTolerance, now); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("%s: expected ErrBadSignature, got %v", name, err)
		}
	}
}

func TestVerifySignatureToleranceWindow(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	signed := time.Now().Add(-10 * time.Minute)

	header := Sign(payload, secret, signed)
	if err := VerifySignature(payload, header, secret, 5*time.Minute, time.Now()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected stale signature rejection, got %v", err)
	}
	if err := VerifySignature(payload, header, secret, 0, time.Now()); err != nil {
		t.Fatalf("tolerance disabled should accept, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_456",
			"amount": 39900,
			"currency": "usd",
			"metadata": {"applicationId": "app-1", "userId": "user-2", "listingId": "lst-3", "listingType": "residential"}
		}}
	}`)
	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.ID != "evt_123" || ev.IntentID != "pi_456" || ev.Amount != 39900 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.ApplicationID != "app-1" || ev.UserID != "user-2" || ev.ListingID != "lst-3" {
		t.Fatalf("metadata not extracted: %+v", ev)
	}
}

func TestParseEventRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"payment_intent.succeeded"}`),
		[]byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"metadata":{}}}}`),
	}
	for i, body := range cases {
		if _, err := ParseEvent(body); !errors.Is(err, ErrBadPayload) {
			t.Fatalf("case %d: expected ErrBadPayload, got %v", i, err)
		}
	}
}

func TestFeeForListingType(t *testing.T) {
	if fee, err := FeeForListingType("residential"); err != nil || fee != 39900 {
		t.Fatalf("residential fee: %d, %v", fee, err)
	}
	if fee, err := FeeForListingType("commercial"); err != nil || fee != 250000 {
		t.Fatalf("commercial fee: %d, %v", fee, err)
	}
	if _, err := FeeForListingType("houseboat"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
