package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
)

const (
	micTrackName   = "microphone"
	micSampleRate  = 48000
	micNumChannels = 1
)

// LiveKitRoom is the Room implementation backed by the LiveKit SDK.
type LiveKitRoom struct {
	mu      sync.Mutex
	room    *lksdk.Room
	mic     *lkmedia.PCMLocalTrack
	handler Handler
	closing bool
}

// NewLiveKitRoom creates an unconnected LiveKit room.
func NewLiveKitRoom() *LiveKitRoom {
	return &LiveKitRoom{}
}

// Connect joins the room identified by the token. The room name and identity
// are carried in the token claims, so only the server url and token are
// needed here.
func (r *LiveKitRoom) Connect(ctx context.Context, url, token string, h Handler) error {
	r.mu.Lock()
	if r.room != nil {
		r.mu.Unlock()
		return errors.New("room is already connected")
	}
	r.handler = h
	r.closing = false
	r.mu.Unlock()

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.handleTrackSubscribed(track, rp)
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				r.handleDataPacket(data, params)
			},
		},
		OnDisconnected: r.handleDisconnected,
	}

	type connectResult struct {
		room *lksdk.Room
		err  error
	}

	// The SDK connect call has no context parameter, so it runs in a
	// goroutine and the caller's deadline is enforced here. A join that
	// completes after the deadline is torn down immediately.
	resultCh := make(chan connectResult, 1)
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(url, token, cb, lksdk.WithAutoSubscribe(true))
		resultCh <- connectResult{room: room, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-resultCh; res.room != nil {
				res.room.Disconnect()
			}
		}()
		return fmt.Errorf("room connect: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return fmt.Errorf("failed to connect to room: %w", res.err)
		}
		r.mu.Lock()
		r.room = res.room
		r.mu.Unlock()
		return nil
	}
}

// PublishMicrophone creates and publishes the outbound audio track.
func (r *LiveKitRoom) PublishMicrophone() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.room == nil {
		return errors.New("room is not connected")
	}
	if r.mic != nil {
		return nil
	}

	track, err := lkmedia.NewPCMLocalTrack(micSampleRate, micNumChannels, nil)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}

	if _, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   micTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		track.Close()
		return fmt.Errorf("failed to publish audio track: %w", err)
	}

	r.mic = track
	return nil
}

// PublishData sends one reliable data packet on the given topic.
func (r *LiveKitRoom) PublishData(payload []byte, topic string) error {
	r.mu.Lock()
	room := r.room
	r.mu.Unlock()

	if room == nil {
		return errors.New("room is not connected")
	}

	if err := room.LocalParticipant.PublishDataPacket(
		lksdk.UserData(payload),
		lksdk.WithDataPublishReliable(true),
		lksdk.WithDataPublishTopic(topic),
	); err != nil {
		return fmt.Errorf("failed to publish data: %w", err)
	}
	return nil
}

// Disconnect stops the local audio track and leaves the room.
func (r *LiveKitRoom) Disconnect() {
	r.mu.Lock()
	room := r.room
	mic := r.mic
	r.room = nil
	r.mic = nil
	r.closing = true
	r.mu.Unlock()

	if mic != nil {
		mic.Close()
	}
	if room != nil {
		room.Disconnect()
	}
}

func (r *LiveKitRoom) handleTrackSubscribed(track *webrtc.TrackRemote, rp *lksdk.RemoteParticipant) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()

	if h.OnTrackSubscribed == nil {
		return
	}

	kind := "audio"
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = "video"
	}
	h.OnTrackSubscribed(Track{
		SID:         track.ID(),
		Kind:        kind,
		Participant: rp.Identity(),
	})
}

func (r *LiveKitRoom) handleDataPacket(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()

	if h.OnDataReceived == nil {
		return
	}

	user := data.ToProto().GetUser()
	if user == nil || len(user.GetPayload()) == 0 {
		return
	}
	h.OnDataReceived(user.GetPayload(), user.GetTopic(), params.SenderIdentity)
}

func (r *LiveKitRoom) handleDisconnected() {
	r.mu.Lock()
	closing := r.closing
	h := r.handler
	r.closing = true
	r.mu.Unlock()

	// A locally initiated Disconnect already ran its own teardown.
	if closing {
		return
	}
	if h.OnDisconnected != nil {
		h.OnDisconnected()
	}
}
