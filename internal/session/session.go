// Package session owns the lifecycle of one agent conversation: credential
// resolution, room connect/disconnect, the data-channel chat relay, and the
// persona switch protocol. It is the single owner of the connection state
// that the original front ends kept in page-global variables.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aaliyacoding/progrify/internal/agent"
	"github.com/aaliyacoding/progrify/internal/protocol"
	"github.com/aaliyacoding/progrify/internal/rtc"
	"github.com/aaliyacoding/progrify/internal/token"
)

// Status is the session connectivity state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Display messages for the connection-status indicator.
const (
	msgConnecting   = "Connecting..."
	msgConnected    = "Connected"
	msgDisconnected = "Disconnected"
	msgInvalidToken = "Please enter a valid token"
)

// UserLabel is the sender label for the visitor's own messages.
const UserLabel = "You"

// Message is one displayed chat line.
type Message struct {
	Sender string
	Text   string
}

// UI receives the state changes a front end renders. Implementations must be
// cheap and non-blocking; calls may arrive from transport goroutines.
type UI interface {
	// SetStatus updates the connection-status indicator.
	SetStatus(s Status, message string)

	// ShowPersona updates the displayed agent name, role and icon.
	ShowPersona(p agent.Persona)

	// ShowMessage displays one chat message.
	ShowMessage(sender, text string)

	// SetTyping toggles the typing indicator.
	SetTyping(active bool)

	// AttachAudio starts playback of an inbound audio track.
	AttachAudio(sid string)

	// DetachAudio removes an attached audio track.
	DetachAudio(sid string)
}

// Options configures a session.
type Options struct {
	// ServerURL is the real-time server, e.g. ws://localhost:7880.
	ServerURL string

	// TokenClient fetches a credential when Token is empty.
	TokenClient *token.Client

	// Token, when set, is used directly instead of calling the token
	// service. An empty or whitespace value is rejected locally.
	Token string

	// ParticipantName is the display name sent to the token service.
	ParticipantName string

	// ConnectTimeout bounds the whole connect sequence. Zero means 15s.
	ConnectTimeout time.Duration

	// TypingDelay is the simulated typing pause before a switched persona's
	// greeting appears. Zero means 1500ms.
	TypingDelay time.Duration
}

const (
	defaultConnectTimeout = 15 * time.Second
	defaultTypingDelay    = 1500 * time.Millisecond
)

// Session is one agent conversation. Create with New, dispose with Close.
type Session struct {
	opts Options
	room rtc.Room
	ui   UI

	mu         sync.Mutex
	status     Status
	active     string
	cred       *token.Credential
	attached   []string
	transcript []Message
	typingGen  int
}

// New creates a session and renders the initial idle state: home persona,
// greeting, disconnected indicator.
func New(room rtc.Room, ui UI, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.TypingDelay <= 0 {
		opts.TypingDelay = defaultTypingDelay
	}

	s := &Session{
		opts:   opts,
		room:   room,
		ui:     ui,
		status: StatusDisconnected,
		active: agent.DefaultKey,
	}

	home := agent.Default()
	ui.ShowPersona(home)
	ui.ShowMessage(home.Name, home.Greeting)
	ui.SetStatus(StatusDisconnected, msgDisconnected)
	return s
}

// Connect resolves a credential, joins the room and publishes the
// microphone track. Connecting while a session is already active is a no-op.
// Any failure resets the session to disconnected with a visible message;
// nothing is retried.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusDisconnected {
		return nil
	}

	s.status = StatusConnecting
	s.ui.SetStatus(StatusConnecting, msgConnecting)

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	cred, err := s.resolveCredential(ctx)
	if err != nil {
		if err == token.ErrEmptyToken {
			return s.failLocked(msgInvalidToken, err)
		}
		return s.failLocked(fmt.Sprintf("Error: %v", err), err)
	}

	handler := rtc.Handler{
		OnDisconnected:    s.handleRemoteDisconnect,
		OnDataReceived:    s.handleData,
		OnTrackSubscribed: s.handleTrack,
	}
	if err := s.room.Connect(ctx, s.opts.ServerURL, cred.AccessToken, handler); err != nil {
		return s.failLocked(fmt.Sprintf("Failed: %v", err), err)
	}

	// A rejected microphone counts as a connect failure, same as the
	// original front ends where the permission prompt sat inside the
	// connect sequence.
	if err := s.room.PublishMicrophone(); err != nil {
		s.room.Disconnect()
		return s.failLocked(fmt.Sprintf("Failed: %v", err), err)
	}

	s.cred = cred
	s.status = StatusConnected
	s.ui.SetStatus(StatusConnected, msgConnected)

	// Greet on connect with whichever persona is active.
	if p, ok := agent.Lookup(s.active); ok {
		s.ui.ShowPersona(p)
		s.showMessageLocked(p.Name, p.Greeting)
	}
	return nil
}

func (s *Session) resolveCredential(ctx context.Context) (*token.Credential, error) {
	if s.opts.Token != "" || s.opts.TokenClient == nil {
		return token.Inspect(s.opts.Token)
	}
	return s.opts.TokenClient.Fetch(ctx, s.opts.ParticipantName)
}

func (s *Session) failLocked(message string, err error) error {
	s.status = StatusDisconnected
	s.ui.SetStatus(StatusDisconnected, message)
	return err
}

// Disconnect leaves the room and resets the session to its idle state. It is
// safe to call at any time, from any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusDisconnected {
		return
	}
	s.room.Disconnect()
	s.resetLocked()
}

// Close disposes the session. Equivalent to Disconnect; provided so owners
// can defer teardown on every exit path.
func (s *Session) Close() {
	s.Disconnect()
}

// handleRemoteDisconnect reacts to a server-initiated drop.
func (s *Session) handleRemoteDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusDisconnected {
		return
	}
	s.resetLocked()
}

// resetLocked releases local media state, detaches inbound audio and resets
// the persona to home.
func (s *Session) resetLocked() {
	s.typingGen++
	s.ui.SetTyping(false)

	for _, sid := range s.attached {
		s.ui.DetachAudio(sid)
	}
	s.attached = nil
	s.cred = nil

	s.status = StatusDisconnected
	s.ui.SetStatus(StatusDisconnected, msgDisconnected)

	s.active = agent.DefaultKey
	home := agent.Default()
	s.ui.ShowPersona(home)
	s.showMessageLocked(home.Name, home.Greeting)
}

// Send publishes trimmed user text on the data channel and echoes it
// locally. Empty input or a session that is not connected is a silent no-op.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusConnected {
		return nil
	}

	payload, err := protocol.Encode(protocol.UserText(text))
	if err != nil {
		return err
	}
	if err := s.room.PublishData(payload, protocol.TopicUserText); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	s.showMessageLocked(UserLabel, text)
	s.ui.SetTyping(true)
	return nil
}

// Switch activates a different persona. The UI updates optimistically: name,
// role and icon change immediately and the greeting appears after a short
// simulated typing pause. If connected, a switch request is published; no
// acknowledgement is awaited. Switching to the active persona or an unknown
// key does nothing.
func (s *Session) Switch(key string) {
	p, ok := agent.Lookup(key)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.active {
		return
	}

	s.active = key
	s.ui.ShowPersona(p)
	s.ui.SetTyping(true)

	s.typingGen++
	gen := s.typingGen
	time.AfterFunc(s.opts.TypingDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.typingGen != gen {
			return
		}
		s.ui.SetTyping(false)
		s.showMessageLocked(p.Name, p.Greeting)
	})

	if s.status == StatusConnected {
		payload, err := protocol.Encode(protocol.SwitchAgent(key))
		if err != nil {
			log.Printf("switch agent: %v", err)
			return
		}
		if err := s.room.PublishData(payload, protocol.TopicUserText); err != nil {
			log.Printf("switch agent: %v", err)
		}
	}
}

// handleData decodes an inbound data-channel payload and applies it to the
// UI. Malformed payloads are logged and dropped.
func (s *Session) handleData(payload []byte, topic, sender string) {
	if topic != protocol.TopicAgentChat {
		return
	}

	msg, err := protocol.Decode(payload)
	if err != nil {
		log.Printf("dropping malformed payload from %s: %v", sender, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Events racing a teardown can arrive after the transport was told to
	// disconnect; the reset already ran, so drop them.
	if s.status != StatusConnected {
		return
	}

	switch msg.Type {
	case protocol.TypeAgentMessage:
		s.typingGen++
		s.ui.SetTyping(false)
		name := s.active
		if p, ok := agent.Lookup(s.active); ok {
			name = p.Name
		}
		s.showMessageLocked(name, msg.Text)

	case protocol.TypeAgentSpeaking:
		s.ui.SetTyping(true)

	case protocol.TypeAgentUpdate:
		p, ok := agent.Lookup(msg.Agent)
		if !ok || msg.Agent == s.active {
			return
		}
		s.active = msg.Agent
		s.ui.ShowPersona(p)

	default:
		log.Printf("ignoring unknown message type %q from %s", msg.Type, sender)
	}
}

// handleTrack attaches inbound audio for playback.
func (s *Session) handleTrack(t rtc.Track) {
	if t.Kind != "audio" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return
	}
	s.attached = append(s.attached, t.SID)
	s.ui.AttachAudio(t.SID)
}

func (s *Session) showMessageLocked(sender, text string) {
	s.transcript = append(s.transcript, Message{Sender: sender, Text: text})
	s.ui.ShowMessage(sender, text)
}

// Status returns the current connectivity state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ActiveAgent returns the key of the displayed persona.
func (s *Session) ActiveAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Credential returns the credential in use, or nil when disconnected.
func (s *Session) Credential() *token.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

// Transcript returns a copy of the displayed messages in order.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}
