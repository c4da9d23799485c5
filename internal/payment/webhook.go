package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook event types the reconciliation engine reacts to.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// SignatureHeader is the header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how old a signed timestamp may be before the
// delivery is rejected as a potential replay.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrBadSignature means the payload must not be trusted.
	ErrBadSignature = errors.New("payment: webhook signature verification failed")
	// ErrBadPayload means the event body is malformed or missing required fields.
	ErrBadPayload = errors.New("payment: malformed webhook payload")
)

// Event is a strictly validated payment confirmation event. Metadata fields
// are extracted and checked up front; handlers never touch raw JSON.
type Event struct {
	ID       string
	Type     string
	IntentID string
	Amount   int64
	Currency string

	ApplicationID string
	UserID        string
	ListingID     string
	ListingType   string
}

// VerifySignature checks a "t=<unix>,v1=<hex>" signature header against the
// raw request body. The signed string is "<t>.<body>" with HMAC-SHA256.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrBadSignature
	}
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	if tolerance > 0 {
		issued := time.Unix(ts, 0)
		if now.Sub(issued) > tolerance || issued.Sub(now) > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1 {
			return nil
		}
	}
	return ErrBadSignature
}

// Sign produces a signature header for the given payload. Used by tests and
// by local tooling that replays events against a dev server.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, fmt.Errorf("%w: missing signature header", ErrBadSignature)
	}
	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrBadSignature)
			}
			ts = v
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: incomplete signature header", ErrBadSignature)
	}
	return ts, sigs, nil
}

// wire shapes for decoding the event envelope
type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object paymentIntent `json:"object"`
	} `json:"data"`
}

type paymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// ParseEvent decodes and validates an event body. Events of other types are
// returned with Type set so callers can ignore them; succeeded/failed events
// must carry the application metadata or the whole delivery is rejected.
func ParseEvent(payload []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.ID == "" || env.Type == "" {
		return Event{}, fmt.Errorf("%w: id and type are required", ErrBadPayload)
	}

	ev := Event{
		ID:       env.ID,
		Type:     env.Type,
		IntentID: env.Data.Object.ID,
		Amount:   env.Data.Object.Amount,
		Currency: env.Data.Object.Currency,
	}
	meta := env.Data.Object.Metadata
	ev.ApplicationID = strings.TrimSpace(meta["applicationId"])
	ev.UserID = strings.TrimSpace(meta["userId"])
	ev.ListingID = strings.TrimSpace(meta["listingId"])
	ev.ListingType = strings.TrimSpace(meta["listingType"])

	if ev.Type == EventPaymentSucceeded || ev.Type == EventPaymentFailed {
		if ev.IntentID == "" {
			return Event{}, fmt.Errorf("%w: payment intent id missing", ErrBadPayload)
		}
	}
	return ev, nil
}
