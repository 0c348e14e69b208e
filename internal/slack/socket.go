package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnect backoff for Socket Mode.
const (
	socketMinBackoff = 2 * time.Second
	socketMaxBackoff = 60 * time.Second
)

// socketFrame is a Socket Mode message.
type socketFrame struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Socket receives events over a Socket Mode WebSocket instead of a
// public webhook.
type Socket struct {
	client  *Client
	ingress *Ingress
	dialer  *websocket.Dialer
}

// NewSocket creates a Socket Mode receiver.
func NewSocket(client *Client, in *Ingress) *Socket {
	return &Socket{client: client, ingress: in, dialer: websocket.DefaultDialer}
}

// Run connects and processes frames until ctx is cancelled,
// reconnecting with exponential backoff whenever the connection drops.
func (s *Socket) Run(ctx context.Context) error {
	log := s.ingress.logger
	backoff := socketMinBackoff
	for {
		start := time.Now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(start) > socketMaxBackoff {
			backoff = socketMinBackoff
		}
		log.Warn("socket mode connection ended", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, socketMaxBackoff)
	}
}

// session runs one connection until it fails, Slack asks for a
// reconnect, or ctx is cancelled.
func (s *Socket) session(ctx context.Context) error {
	wsURL, err := s.client.OpenConnection(ctx)
	if err != nil {
		return err
	}
	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket mode: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f socketFrame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		switch f.Type {
		case "hello":
			s.ingress.logger.Info("socket mode connected")
		case "disconnect":
			return fmt.Errorf("server requested disconnect: %s", f.Reason)
		case "events_api":
			if err := conn.WriteJSON(map[string]string{"envelope_id": f.EnvelopeID}); err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
			s.ingress.DispatchJSON(f.Payload)
		default:
			if f.EnvelopeID != "" {
				if err := conn.WriteJSON(map[string]string{"envelope_id": f.EnvelopeID}); err != nil {
					return fmt.Errorf("ack envelope: %w", err)
				}
			}
		}
	}
}

