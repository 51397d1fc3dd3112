// ABOUTME: Integration tests for the self-hosted WebSocket mode
// ABOUTME: Real sockets end to end: pair by name, relay, no-route echo, disconnect cleanup

package server

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-broker/internal/broker"
	"github.com/2389/relay-broker/internal/pairing"
	"github.com/2389/relay-broker/internal/registry"
	"github.com/2389/relay-broker/internal/store"
)

// startTestServer wires a broker over the mock store with the server itself
// as the transport, exactly as server mode runs in production.
func startTestServer(t *testing.T) (*httptest.Server, *store.MockStore) {
	t.Helper()

	logger := slog.Default()
	st := store.NewMockStore()

	srv := New(":0", "/ws", logger)
	b := broker.New(
		registry.New(st, logger),
		pairing.New(st, logger),
		srv,
		broker.Options{
			ConnectionTTL: time.Hour,
			PairingTTL:    time.Hour,
			Cardinality:   broker.CardinalityOneToOne,
			NotifyNoRoute: true,
			Retry:         broker.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		},
		logger,
	)
	srv.SetHandler(b)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func dial(t *testing.T, ts *httptest.Server, role, name string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?role=" + role + "&name=" + name
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	return payload
}

func TestServer_PairsAndRelays(t *testing.T) {
	ts, st := startTestServer(t)

	client := dial(t, ts, "client", "svc-A")
	gatekeeper := dial(t, ts, "gatekeeper", "svc-A")

	require.Eventually(t, func() bool { return st.PairingCount() == 1 },
		5*time.Second, 10*time.Millisecond, "pairing never created")

	require.NoError(t, gatekeeper.WriteMessage(websocket.TextMessage, []byte("challenge")))
	assert.Equal(t, []byte("challenge"), readFrame(t, client))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("response")))
	assert.Equal(t, []byte("response"), readFrame(t, gatekeeper))
}

func TestServer_RejectsUnknownRole(t *testing.T) {
	ts, _ := startTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?role=spectator"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestServer_NoRouteEchoedToLoneSender(t *testing.T) {
	ts, _ := startTestServer(t)

	client := dial(t, ts, "client", "svc-alone")
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("anyone?")))

	assert.JSONEq(t, `{"error":"no_route"}`, string(readFrame(t, client)))
}

func TestServer_DisconnectTearsDownPairing(t *testing.T) {
	ts, st := startTestServer(t)

	client := dial(t, ts, "client", "svc-A")
	gatekeeper := dial(t, ts, "gatekeeper", "svc-A")

	require.Eventually(t, func() bool { return st.PairingCount() == 1 },
		5*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool { return st.PairingCount() == 0 },
		5*time.Second, 10*time.Millisecond, "pairing not removed after disconnect")

	// The surviving gatekeeper now gets a no-route echo
	require.NoError(t, gatekeeper.WriteMessage(websocket.TextMessage, []byte("still there?")))
	assert.JSONEq(t, `{"error":"no_route"}`, string(readFrame(t, gatekeeper)))
}
