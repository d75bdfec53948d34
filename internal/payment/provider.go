package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// idempotencyNamespace seeds deterministic idempotency keys. The same
// (reservation, action) pair always derives the same key, so a retried
// CreateIntent call is safe against the provider.
var idempotencyNamespace = uuid.MustParse("8f9a6b1c-5d3e-4a70-9c42-d18e50b7a2f4")

// IdempotencyKey derives the key for one provider-side action on one
// reservation.
func IdempotencyKey(reservationID int64, action string) string {
	name := fmt.Sprintf("reservation:%d:%s", reservationID, action)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// FakeProvider is the in-process stand-in used by tests and local
// development. It honors idempotency keys the way a real provider
// would: the same key always returns the same intent id.
type FakeProvider struct {
	mu      sync.Mutex
	intents map[string]string
	FailAll bool
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{intents: make(map[string]string)}
}

func (p *FakeProvider) CreateIntent(ctx context.Context, reservationID, amountCents int64, idempotencyKey string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailAll {
		return "", fmt.Errorf("payment provider unavailable")
	}
	if id, ok := p.intents[idempotencyKey]; ok {
		return id, nil
	}
	id := fmt.Sprintf("pi_%s", uuid.NewString()[:24])
	p.intents[idempotencyKey] = id
	return id, nil
}
