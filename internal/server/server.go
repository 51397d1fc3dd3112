// ABOUTME: Self-hosted WebSocket listener for running the broker without API Gateway
// ABOUTME: Terminates connections, assigns ids, feeds broker events, and doubles as the transport

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/relay-broker/internal/broker"
	"github.com/2389/relay-broker/internal/store"
	"github.com/2389/relay-broker/internal/transport"
)

// writeTimeout bounds a single delivery to a local connection.
const writeTimeout = 10 * time.Second

// EventHandler is the slice of the broker the server drives.
type EventHandler interface {
	HandleConnect(ctx context.Context, ev broker.ConnectEvent) error
	HandleDisconnect(ctx context.Context, ev broker.DisconnectEvent) error
	HandleMessage(ctx context.Context, ev broker.MessageEvent) error
}

// conn is one accepted WebSocket. gorilla allows a single concurrent
// writer, so writes serialize on writeMu.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Server terminates WebSocket connections itself, standing in for both the
// external transport and the event dispatcher. Peers connect with
// ?role=client|gatekeeper&name=<correlation-name> on the upgrade request;
// production deployments authenticate those values upstream.
type Server struct {
	addr     string
	path     string
	upgrader websocket.Upgrader
	handler  EventHandler
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

// New creates a Server listening on addr at path.
func New(addr, path string, logger *slog.Logger) *Server {
	return &Server{
		addr:   addr,
		path:   path,
		conns:  make(map[string]*conn),
		logger: logger.With("component", "server"),
	}
}

// SetHandler attaches the broker. Must be called before ListenAndServe;
// it is separate from New because the broker needs the server as its
// transport first.
func (s *Server) SetHandler(h EventHandler) {
	s.handler = h
}

// Send implements transport.Transport against the local connection table.
func (s *Server) Send(ctx context.Context, connectionID string, payload []byte) error {
	s.mu.RLock()
	c, ok := s.conns[connectionID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrGone, connectionID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)

	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		// A failed write means the socket is dead; drop it so the broker's
		// cleanup sees Gone on the next attempt too.
		s.drop(connectionID)
		c.ws.Close()
		return fmt.Errorf("%w: %s: %v", transport.ErrGone, connectionID, err)
	}
	return nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpgrade)
	return mux
}

// ListenAndServe runs the listener until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("server: no event handler attached")
	}

	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", s.addr, "path", s.path)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleUpgrade accepts one WebSocket connection and runs its read loop.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	role := store.Role(r.URL.Query().Get("role"))
	name := r.URL.Query().Get("name")

	if !role.Valid() {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	connectionID := uuid.New().String()

	s.mu.Lock()
	s.conns[connectionID] = &conn{ws: ws}
	s.mu.Unlock()

	ctx := context.Background()
	if err := s.handler.HandleConnect(ctx, broker.ConnectEvent{
		ConnectionID: connectionID,
		Role:         role,
		Name:         name,
	}); err != nil {
		s.logger.Error("connect handling failed",
			"connection_id", connectionID,
			"error", err,
		)
		s.drop(connectionID)
		ws.Close()
		return
	}

	s.readLoop(connectionID, role, ws)
}

// readLoop relays inbound frames until the connection closes, then runs
// disconnect cleanup.
func (s *Server) readLoop(connectionID string, role store.Role, ws *websocket.Conn) {
	defer func() {
		s.drop(connectionID)
		ws.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.handler.HandleDisconnect(ctx, broker.DisconnectEvent{ConnectionID: connectionID}); err != nil {
			s.logger.Error("disconnect handling failed",
				"connection_id", connectionID,
				"error", err,
			)
		}
	}()

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read ended", "connection_id", connectionID, "error", err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = s.handler.HandleMessage(ctx, broker.MessageEvent{
			ConnectionID: connectionID,
			Role:         role,
			Payload:      payload,
		})
		cancel()
		if err != nil {
			s.logger.Error("message handling failed",
				"connection_id", connectionID,
				"error", err,
			)
		}
	}
}

// drop removes a connection from the table.
func (s *Server) drop(connectionID string) {
	s.mu.Lock()
	delete(s.conns, connectionID)
	s.mu.Unlock()
}
