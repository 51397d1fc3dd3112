// ABOUTME: Shared test fixtures for broker tests
// ABOUTME: In-memory transport mock and a broker factory over the mock store

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/2389/relay-broker/internal/pairing"
	"github.com/2389/relay-broker/internal/registry"
	"github.com/2389/relay-broker/internal/store"
	"github.com/2389/relay-broker/internal/transport"
)

// sentFrame records one successful delivery.
type sentFrame struct {
	ConnectionID string
	Payload      []byte
}

// mockTransport collects deliveries and can fail per connection id.
type mockTransport struct {
	mu       sync.Mutex
	sent     []sentFrame
	attempts map[string]int
	errFor   map[string]error // permanent error per connection
	failN    map[string]int   // fail the first N sends with ErrThrottled
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		attempts: make(map[string]int),
		errFor:   make(map[string]error),
		failN:    make(map[string]int),
	}
}

func (m *mockTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts[connectionID]++

	if n := m.failN[connectionID]; n > 0 {
		m.failN[connectionID] = n - 1
		return fmt.Errorf("%w: %s", transport.ErrThrottled, connectionID)
	}
	if err := m.errFor[connectionID]; err != nil {
		return err
	}

	m.sent = append(m.sent, sentFrame{ConnectionID: connectionID, Payload: payload})
	return nil
}

func (m *mockTransport) sentTo(connectionID string) []sentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()

	var frames []sentFrame
	for _, f := range m.sent {
		if f.ConnectionID == connectionID {
			frames = append(frames, f)
		}
	}
	return frames
}

func (m *mockTransport) attemptsTo(connectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[connectionID]
}

// newTestBroker builds a broker over the given store and transport with fast
// retries. Callers mutate opts via the optional tweak.
func newTestBroker(t *testing.T, st store.Store, tr transport.Transport, tweak ...func(*Options)) *Broker {
	t.Helper()

	logger := slog.Default()
	opts := Options{
		ConnectionTTL: time.Hour,
		PairingTTL:    time.Hour,
		Cardinality:   CardinalityOneToOne,
		NotifyNoRoute: false,
		Retry:         RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	}
	for _, f := range tweak {
		f(&opts)
	}

	return New(registry.New(st, logger), pairing.New(st, logger), tr, opts, logger)
}
