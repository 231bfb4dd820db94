package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaliyacoding/progrify/internal/agent"
	"github.com/aaliyacoding/progrify/internal/protocol"
	"github.com/aaliyacoding/progrify/internal/rtc"
	"github.com/aaliyacoding/progrify/internal/token"
)

// fakeRoom records transport calls and lets tests fire room events.
type fakeRoom struct {
	mu          sync.Mutex
	handler     rtc.Handler
	connectErr  error
	micErr      error
	connects    int
	micCalls    int
	disconnects int
	publishes   []fakePublish
}

type fakePublish struct {
	payload []byte
	topic   string
}

func (f *fakeRoom) Connect(ctx context.Context, url, tok string, h rtc.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.handler = h
	return nil
}

func (f *fakeRoom) PublishMicrophone() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micCalls++
	return f.micErr
}

func (f *fakeRoom) PublishData(payload []byte, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.publishes = append(f.publishes, fakePublish{payload: cp, topic: topic})
	return nil
}

func (f *fakeRoom) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeRoom) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.publishes)
}

func (f *fakeRoom) lastPublish() fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishes[len(f.publishes)-1]
}

// recordUI records every UI mutation.
type recordUI struct {
	mu       sync.Mutex
	statuses []string
	personas []string
	messages []Message
	typing   bool
	attached []string
	detached []string
}

func (u *recordUI) SetStatus(s Status, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses = append(u.statuses, s.String()+": "+message)
}

func (u *recordUI) ShowPersona(p agent.Persona) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.personas = append(u.personas, p.Key)
}

func (u *recordUI) ShowMessage(sender, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.messages = append(u.messages, Message{Sender: sender, Text: text})
}

func (u *recordUI) SetTyping(active bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.typing = active
}

func (u *recordUI) AttachAudio(sid string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.attached = append(u.attached, sid)
}

func (u *recordUI) DetachAudio(sid string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.detached = append(u.detached, sid)
}

func (u *recordUI) lastStatus() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.statuses) == 0 {
		return ""
	}
	return u.statuses[len(u.statuses)-1]
}

func (u *recordUI) lastPersona() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.personas) == 0 {
		return ""
	}
	return u.personas[len(u.personas)-1]
}

func (u *recordUI) lastMessage() Message {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.messages) == 0 {
		return Message{}
	}
	return u.messages[len(u.messages)-1]
}

func (u *recordUI) messageCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.messages)
}

func (u *recordUI) isTyping() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.typing
}

func (u *recordUI) detachedSIDs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.detached))
	copy(out, u.detached)
	return out
}

// tokenServer is a stand-in for the external token service.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(token.Credential{
			AccessToken: "tok-abc",
			Identity:    "webapp-user-1",
			RoomName:    "default_room",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, room rtc.Room, opts Options) (*Session, *recordUI) {
	t.Helper()
	if opts.ServerURL == "" {
		opts.ServerURL = "ws://localhost:7880"
	}
	if opts.TypingDelay == 0 {
		opts.TypingDelay = 5 * time.Millisecond
	}
	ui := &recordUI{}
	return New(room, ui, opts), ui
}

func newConnectedSession(t *testing.T, room *fakeRoom) (*Session, *recordUI) {
	t.Helper()
	srv := tokenServer(t)
	s, ui := newTestSession(t, room, Options{
		TokenClient: token.NewClient(srv.URL, time.Second),
	})
	require.NoError(t, s.Connect(context.Background()))
	require.Equal(t, StatusConnected, s.Status())
	return s, ui
}

func TestInitialState(t *testing.T) {
	s, ui := newTestSession(t, &fakeRoom{}, Options{})

	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Equal(t, agent.DefaultKey, s.ActiveAgent())
	assert.Equal(t, "home", ui.lastPersona())
	assert.Equal(t, agent.Default().Greeting, ui.lastMessage().Text)
	assert.Equal(t, "disconnected: Disconnected", ui.lastStatus())
}

func TestSwitchWhileDisconnected(t *testing.T) {
	for _, key := range agent.Keys() {
		if key == agent.DefaultKey {
			continue
		}
		room := &fakeRoom{}
		s, ui := newTestSession(t, room, Options{})

		s.Switch(key)

		p, _ := agent.Lookup(key)
		assert.Equal(t, key, s.ActiveAgent())
		assert.Equal(t, key, ui.lastPersona())

		// The greeting appears after the simulated typing pause.
		assert.Eventually(t, func() bool {
			return ui.lastMessage().Text == p.Greeting && !ui.isTyping()
		}, time.Second, time.Millisecond)
		assert.Equal(t, p.Name, ui.lastMessage().Sender)

		// Disconnected switches never publish.
		assert.Zero(t, room.publishCount())
	}
}

func TestSwitchToActivePersonaIsNoop(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newTestSession(t, room, Options{})

	before := ui.messageCount()
	s.Switch(agent.DefaultKey)

	assert.Equal(t, agent.DefaultKey, s.ActiveAgent())
	assert.Equal(t, before, ui.messageCount())
	assert.Zero(t, room.publishCount())
	assert.False(t, ui.isTyping())
}

func TestSwitchUnknownKeyIsNoop(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newTestSession(t, room, Options{})

	before := ui.messageCount()
	s.Switch("astrologer")

	assert.Equal(t, agent.DefaultKey, s.ActiveAgent())
	assert.Equal(t, before, ui.messageCount())
	assert.Zero(t, room.publishCount())
}

func TestSwitchWhileConnectedPublishes(t *testing.T) {
	room := &fakeRoom{}
	s, _ := newConnectedSession(t, room)

	before := room.publishCount()
	s.Switch("sales")

	require.Equal(t, before+1, room.publishCount())
	pub := room.lastPublish()
	assert.Equal(t, protocol.TopicUserText, pub.topic)

	msg, err := protocol.Decode(pub.payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeSwitchAgent, msg.Type)
	assert.Equal(t, "sales", msg.Agent)
}

func TestConnectSuccess(t *testing.T) {
	room := &fakeRoom{}
	srv := tokenServer(t)
	s, ui := newTestSession(t, room, Options{
		TokenClient: token.NewClient(srv.URL, time.Second),
	})

	require.NoError(t, s.Connect(context.Background()))

	assert.Equal(t, StatusConnected, s.Status())
	assert.Equal(t, 1, room.connects)
	assert.Equal(t, 1, room.micCalls)
	assert.Equal(t, "connected: Connected", ui.lastStatus())

	// Status went through connecting first.
	assert.Contains(t, ui.statuses, "connecting: Connecting...")

	// Home greeting shown on connect.
	assert.Equal(t, agent.Default().Greeting, ui.lastMessage().Text)

	require.NotNil(t, s.Credential())
	assert.Equal(t, "default_room", s.Credential().RoomName)
}

func TestConnectWhileActiveIsNoop(t *testing.T) {
	room := &fakeRoom{}
	s, _ := newConnectedSession(t, room)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 1, room.connects)
}

func TestConnectEmptyTokenRejectedLocally(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newTestSession(t, room, Options{Token: "   "})

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, token.ErrEmptyToken)

	// No connection attempt was made.
	assert.Zero(t, room.connects)
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Equal(t, "disconnected: Please enter a valid token", ui.lastStatus())
}

func TestConnectTokenFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	room := &fakeRoom{}
	s, ui := newTestSession(t, room, Options{
		TokenClient: token.NewClient(srv.URL, time.Second),
	})

	err := s.Connect(context.Background())
	require.Error(t, err)

	assert.Zero(t, room.connects)
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Contains(t, ui.lastStatus(), "disconnected: Error:")
}

func TestConnectRoomFailure(t *testing.T) {
	room := &fakeRoom{connectErr: errors.New("could not establish signal connection")}
	srv := tokenServer(t)
	s, ui := newTestSession(t, room, Options{
		TokenClient: token.NewClient(srv.URL, time.Second),
	})

	err := s.Connect(context.Background())
	require.Error(t, err)

	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Contains(t, ui.lastStatus(), "could not establish signal connection")
}

func TestConnectMicrophoneFailure(t *testing.T) {
	room := &fakeRoom{micErr: errors.New("microphone rejected")}
	srv := tokenServer(t)
	s, ui := newTestSession(t, room, Options{
		TokenClient: token.NewClient(srv.URL, time.Second),
	})

	err := s.Connect(context.Background())
	require.Error(t, err)

	// The half-open room connection was torn down.
	assert.Equal(t, 1, room.disconnects)
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Contains(t, ui.lastStatus(), "microphone rejected")
}

func TestSendPublishesExactlyOnce(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)

	before := room.publishCount()
	require.NoError(t, s.Send("Hello"))

	require.Equal(t, before+1, room.publishCount())
	pub := room.lastPublish()
	assert.Equal(t, protocol.TopicUserText, pub.topic)

	msg, err := protocol.Decode(pub.payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeUserText, msg.Type)
	assert.Equal(t, "Hello", msg.Text)

	assert.Equal(t, Message{Sender: UserLabel, Text: "Hello"}, ui.lastMessage())
	assert.True(t, ui.isTyping())
}

func TestSendEmptyInputNeverPublishes(t *testing.T) {
	room := &fakeRoom{}
	s, _ := newConnectedSession(t, room)

	before := room.publishCount()
	require.NoError(t, s.Send(""))
	require.NoError(t, s.Send("   \t  "))
	assert.Equal(t, before, room.publishCount())
}

func TestSendWhileDisconnectedIsNoop(t *testing.T) {
	room := &fakeRoom{}
	s, _ := newTestSession(t, room, Options{})

	require.NoError(t, s.Send("Hello"))
	assert.Zero(t, room.publishCount())
}

func TestAgentSpeakingActivatesTyping(t *testing.T) {
	room := &fakeRoom{}
	_, ui := newConnectedSession(t, room)

	before := ui.lastMessage()
	room.handler.OnDataReceived([]byte(`{"type":"agent_speaking"}`), protocol.TopicAgentChat, "agent")

	assert.True(t, ui.isTyping())
	assert.Equal(t, before, ui.lastMessage())
}

func TestAgentMessageClearsTypingAndDisplays(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)
	require.NoError(t, s.Send("Hi"))
	require.True(t, ui.isTyping())

	room.handler.OnDataReceived([]byte(`{"type":"agent_message","text":"Hello back"}`), protocol.TopicAgentChat, "agent")

	assert.False(t, ui.isTyping())
	assert.Equal(t, "Hello back", ui.lastMessage().Text)
	assert.Equal(t, agent.Default().Name, ui.lastMessage().Sender)
}

func TestAgentUpdateSwitchesPersona(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)

	room.handler.OnDataReceived([]byte(`{"type":"agent_update","agent":"coding"}`), protocol.TopicAgentChat, "agent")

	assert.Equal(t, "coding", s.ActiveAgent())
	assert.Equal(t, "coding", ui.lastPersona())
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)

	before := ui.messageCount()
	room.handler.OnDataReceived([]byte{0xff, 0xfe}, protocol.TopicAgentChat, "agent")

	assert.Equal(t, before, ui.messageCount())
	assert.Equal(t, StatusConnected, s.Status())
}

func TestOtherTopicsIgnored(t *testing.T) {
	room := &fakeRoom{}
	_, ui := newConnectedSession(t, room)

	before := ui.messageCount()
	room.handler.OnDataReceived([]byte(`{"type":"agent_message","text":"x"}`), "transcription", "agent")
	assert.Equal(t, before, ui.messageCount())
}

func TestAudioTrackAttached(t *testing.T) {
	room := &fakeRoom{}
	_, ui := newConnectedSession(t, room)

	room.handler.OnTrackSubscribed(rtc.Track{SID: "TR_1", Kind: "audio", Participant: "agent"})
	room.handler.OnTrackSubscribed(rtc.Track{SID: "TR_2", Kind: "video", Participant: "agent"})

	ui.mu.Lock()
	attached := append([]string(nil), ui.attached...)
	ui.mu.Unlock()
	assert.Equal(t, []string{"TR_1"}, attached)
}

func TestDisconnectCleansUp(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)

	room.handler.OnTrackSubscribed(rtc.Track{SID: "TR_1", Kind: "audio", Participant: "agent"})
	s.Switch("prompt")

	s.Disconnect()

	assert.Equal(t, 1, room.disconnects)
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Equal(t, "disconnected: Disconnected", ui.lastStatus())

	// Inbound audio detached, persona reset to home, typing cleared.
	assert.Equal(t, []string{"TR_1"}, ui.detachedSIDs())
	assert.Equal(t, agent.DefaultKey, s.ActiveAgent())
	assert.Equal(t, "home", ui.lastPersona())
	assert.False(t, ui.isTyping())
	assert.Nil(t, s.Credential())
}

func TestDisconnectWhileDisconnectedIsNoop(t *testing.T) {
	room := &fakeRoom{}
	s, _ := newTestSession(t, room, Options{})

	s.Disconnect()
	s.Disconnect()
	assert.Zero(t, room.disconnects)
}

func TestRemoteDropResetsSession(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)
	s.Switch("coding")

	room.handler.OnDisconnected()

	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Equal(t, agent.DefaultKey, s.ActiveAgent())
	assert.Equal(t, "home", ui.lastPersona())

	// The transport dropped on its own; the session does not call back in.
	assert.Zero(t, room.disconnects)
}

func TestEventsAfterDisconnectAreDropped(t *testing.T) {
	room := &fakeRoom{}
	s, ui := newConnectedSession(t, room)
	handler := room.handler

	s.Disconnect()

	before := ui.messageCount()
	handler.OnDataReceived([]byte(`{"type":"agent_message","text":"late"}`), protocol.TopicAgentChat, "agent")
	handler.OnTrackSubscribed(rtc.Track{SID: "TR_9", Kind: "audio", Participant: "agent"})

	assert.Equal(t, before, ui.messageCount())
	ui.mu.Lock()
	attached := len(ui.attached)
	ui.mu.Unlock()
	assert.Zero(t, attached)
}

func TestConnectTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	room := &fakeRoom{}
	s, _ := newTestSession(t, room, Options{
		TokenClient:    token.NewClient(srv.URL, time.Second),
		ConnectTimeout: 20 * time.Millisecond,
	})

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusDisconnected, s.Status())
}
