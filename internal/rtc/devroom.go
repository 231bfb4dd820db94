package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// devFrame is one message on the dev transport. The payload carries the same
// bytes the LiveKit data channel would, base64-encoded by the JSON codec.
type devFrame struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// DevRoom is a Room over a plain WebSocket, for local playgrounds that run
// without a LiveKit deployment. It carries data-channel traffic only; audio
// tracks are accepted and dropped.
type DevRoom struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
	closing bool
}

// NewDevRoom creates an unconnected dev room.
func NewDevRoom() *DevRoom {
	return &DevRoom{}
}

// Connect dials the dev server. The token travels as a bearer header so the
// server can apply the same credential checks as the real deployment.
func (r *DevRoom) Connect(ctx context.Context, url, token string, h Handler) error {
	r.mu.Lock()
	if r.conn != nil {
		r.mu.Unlock()
		return errors.New("room is already connected")
	}
	r.mu.Unlock()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.handler = h
	r.closing = false
	r.mu.Unlock()

	go r.readLoop(conn)
	return nil
}

// PublishMicrophone is a no-op on the dev transport.
func (r *DevRoom) PublishMicrophone() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return errors.New("room is not connected")
	}
	return nil
}

// PublishData sends one frame on the given topic.
func (r *DevRoom) PublishData(payload []byte, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return errors.New("room is not connected")
	}
	if err := r.conn.WriteJSON(devFrame{Topic: topic, Payload: payload}); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Disconnect closes the connection. It does not wait for the read loop,
// which may itself be blocked delivering an event to the caller; late events
// are the handler's problem to ignore.
func (r *DevRoom) Disconnect() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.closing = true
	r.mu.Unlock()

	if conn == nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

func (r *DevRoom) readLoop(conn *websocket.Conn) {
	defer func() {
		r.mu.Lock()
		closing := r.closing
		h := r.handler
		r.conn = nil
		r.closing = true
		r.mu.Unlock()

		if !closing && h.OnDisconnected != nil {
			h.OnDisconnected()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.mu.Lock()
				closing := r.closing
				r.mu.Unlock()
				if !closing {
					log.Printf("dev room read error: %v", err)
				}
			}
			return
		}

		var frame devFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("dev room: dropping malformed frame: %v", err)
			continue
		}

		r.mu.Lock()
		h := r.handler
		r.mu.Unlock()
		if h.OnDataReceived != nil && len(frame.Payload) > 0 {
			h.OnDataReceived(frame.Payload, frame.Topic, "agent")
		}
	}
}
