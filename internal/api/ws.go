package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"pizzeria/internal/events"
	"pizzeria/internal/metrics"
)

const (
	wsBuffer       = 16
	wsPingInterval = 15 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// handleStoreSocket streams status changes. Admin clients must pass the API key.
// GET /ws/store?audience=customer|admin
func (s *HTTPServer) handleStoreSocket(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ws_store")

	topic := events.TopicStatusCustomer
	admin := false
	switch r.URL.Query().Get("audience") {
	case "", "customer":
	case "admin":
		if !s.isAdmin(r) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		topic = events.TopicStatusAdmin
		admin = true
	default:
		writeError(w, http.StatusBadRequest, "audience must be customer or admin")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.config.AllowedOrigins})
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	ctx := conn.CloseRead(r.Context())

	// Slow clients lose messages rather than stall the publisher.
	out := make(chan []byte, wsBuffer)
	unsubscribe := s.bus.Subscribe(topic, func(e events.Event) error {
		select {
		case out <- e.Payload:
		default:
			s.logger.Debug().Str("topic", topic).Msg("websocket client too slow, dropping event")
		}
		return nil
	})
	defer unsubscribe()

	if initial, err := s.initialMessage(ctx, admin); err != nil {
		s.logger.Warn().Err(err).Msg("load initial websocket status")
	} else if err := writeMessage(ctx, conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-out:
			if err := writeMessage(ctx, conn, msg); err != nil {
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *HTTPServer) initialMessage(ctx context.Context, admin bool) ([]byte, error) {
	view, _, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	msg := events.StatusMessage{Reason: "initial", Status: view.Customer()}
	if admin {
		msg.Status = view
	}
	return json.Marshal(msg)
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
