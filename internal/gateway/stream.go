package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/stakeboard/arena/internal/obslog"
	"github.com/stakeboard/arena/internal/session"
)

// StreamServer pushes full session states to websocket clients. It runs
// on its own listener; the command surface stays on fasthttp while the
// websocket handshake needs net/http.
type StreamServer struct {
	pub *session.Publisher
	srv *http.Server
}

func NewStreamServer(pub *session.Publisher) *StreamServer {
	s := &StreamServer{pub: pub}
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions/", s.handleStream)
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Listen serves websocket subscriptions until Shutdown.
func (s *StreamServer) Listen(addr string) error {
	s.srv.Addr = addr
	obslog.L().Info("stream_listen", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *StreamServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleStream serves GET /sessions/{id}/stream. The subscriber gets
// the current document first, then every accepted mutation in version
// order, each message a complete state.
func (s *StreamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/"))
	if len(parts) != 3 || parts[0] != "sessions" || parts[2] != "stream" {
		http.NotFound(w, r)
		return
	}
	id := parts[1]

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("stream_accept_error", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	states, err := s.pub.Subscribe(ctx, id)
	if err != nil {
		obslog.L().Warn("stream_subscribe_error", zap.String("session_id", id), zap.Error(err))
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	obslog.L().Info("stream_open", zap.String("session_id", id))
	for st := range states {
		if err := wsjson.Write(ctx, conn, sessionView(st)); err != nil {
			obslog.L().Debug("stream_write_error", zap.String("session_id", id), zap.Error(err))
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
