package gameserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/goban/internal/config"
	"github.com/udisondev/goban/internal/db"
)

// Server accepts websocket connections and runs one Session per
// connection. Any number of Server processes can share one store; the
// manager id tells the store which process holds which key.
type Server struct {
	cfg       config.GameServer
	store     *db.Store
	listener  *db.Listener
	managerID string
	upgrader  websocket.Upgrader
}

// ServerOption is a functional option for Server configuration.
type ServerOption func(*Server)

// WithManagerID overrides the minted manager id. An operator restarts
// a process under its predecessor's id to reclaim its keys.
func WithManagerID(id string) ServerOption {
	return func(s *Server) {
		if id != "" {
			s.managerID = id
		}
	}
}

// NewServer creates a game server with a freshly minted manager id.
func NewServer(cfg config.GameServer, database *db.DB, listener *db.Listener, opts ...ServerOption) (*Server, error) {
	managerID, err := db.GenerateManagerID()
	if err != nil {
		return nil, fmt.Errorf("minting manager id: %w", err)
	}
	srv := &Server{
		cfg:       cfg,
		store:     db.NewStore(database),
		listener:  listener,
		managerID: managerID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(srv)
		}
	}
	return srv, nil
}

// ManagerID returns this process's 64-character identifier.
func (s *Server) ManagerID() string {
	return s.managerID
}

// Run listens on the configured address and serves until ctx is
// canceled. The startup cleanup pass reclaims keys orphaned by a
// predecessor when the process was started with that predecessor's
// manager id.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on a ready listener, such as one bound to an
// ephemeral port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if released, err := s.store.Cleanup(ctx, s.managerID); err != nil {
		return fmt.Errorf("startup cleanup: %w", err)
	} else if released > 0 {
		slog.Info("reclaimed orphaned keys", "count", released)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	srv := &http.Server{Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.listener.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("game server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		// Release every key this process still holds so clients can
		// resume against another process.
		if _, err := s.store.Cleanup(shutdownCtx, s.managerID); err != nil {
			slog.Error("shutdown cleanup", "err", err)
		}
		return gctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleWS upgrades one connection and drives its session pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	slog.Info("client connected", "remote", r.RemoteAddr)

	session := NewSession(s.store, s.listener, s.managerID)
	go s.writePump(conn, session)
	s.readPump(r.Context(), conn, session)
}

// readPump handles inbound frames strictly in order until the client
// goes away, then tears the session down.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, session *Session) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		session.Close(closeCtx)
		conn.Close()
	}()

	pongWait := time.Duration(s.cfg.PongTimeoutSecs) * time.Second
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("read error", "err", err)
			}
			return
		}
		session.HandleMessage(ctx, raw)
	}
}

// writePump serializes outbound messages and keeps the connection
// alive with pings.
func (s *Server) writePump(conn *websocket.Conn, session *Session) {
	writeWait := time.Duration(s.cfg.WriteTimeoutSecs) * time.Second
	pingPeriod := time.Duration(s.cfg.PongTimeoutSecs) * time.Second * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-session.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
