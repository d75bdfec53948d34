package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("webhook signature verification failed")
	ErrStaleWebhook = errors.New("webhook timestamp outside tolerance")
)

// DefaultWebhookTolerance bounds how old a signed webhook may be before
// it is rejected as a possible replay.
const DefaultWebhookTolerance = 5 * time.Minute

// WebhookEvent is the inbound notification shape pushed by the payment
// provider. Delivery is at-least-once and may reorder across distinct
// events.
type WebhookEvent struct {
	EventID       string          `json:"event_id"`
	Kind          string          `json:"kind"`
	ReservationID int64           `json:"reservation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Sign computes the signature header value for a payload at time ts.
// Exposed so tests and the fake provider can produce valid deliveries.
func Sign(secret []byte, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature checks the provider's `t=<unix>,v1=<hex>` signature
// header against the raw body. Verification happens strictly before any
// event dispatch; an unverified payload never reaches the processor.
func VerifySignature(secret []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return fmt.Errorf("%w: missing fields", ErrBadSignature)
	}

	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return ErrStaleWebhook
	}

	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}
