// Package protocol defines the data-channel message schema between the
// playground client and the remote agent process.
//
// The canonical wire format is a tagged JSON object. Earlier front ends used
// three ad hoc shapes (plain text, bare {"text": ...}, and tagged JSON); the
// decoder accepts the two legacy shapes on the inbound path so the client
// stays compatible with agents that have not migrated yet.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Data-channel topics. The client publishes on TopicUserText and the agent
// replies on TopicAgentChat.
const (
	TopicUserText  = "lk-user-text"
	TopicAgentChat = "lk-agent-chat"
)

// Message types from client to agent
const (
	TypeUserText    = "user_text"
	TypeSwitchAgent = "switch_agent"
)

// Message types from agent to client
const (
	TypeAgentMessage  = "agent_message"
	TypeAgentSpeaking = "agent_speaking"
	TypeAgentUpdate   = "agent_update"
)

// Message is a single data-channel payload.
type Message struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Agent string `json:"agent,omitempty"`
	Ts    int64  `json:"ts,omitempty"`
}

// ErrEmptyPayload is returned when a received payload has no content.
var ErrEmptyPayload = errors.New("empty payload")

// UserText builds a free-text user message.
func UserText(text string) Message {
	return Message{
		Type: TypeUserText,
		Text: text,
		Ts:   time.Now().UnixMilli(),
	}
}

// SwitchAgent builds a request to activate a different persona.
func SwitchAgent(key string) Message {
	return Message{
		Type:  TypeSwitchAgent,
		Agent: key,
		Ts:    time.Now().UnixMilli(),
	}
}

// Encode serializes a message to its wire form.
func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, errors.New("message type is required")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses an inbound payload. Besides the canonical tagged form it
// accepts a bare {"text": ...} object and plain UTF-8 text, both of which
// decode as an agent reply.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return Message{}, ErrEmptyPayload
	}

	var m Message
	if err := json.Unmarshal(payload, &m); err == nil {
		if m.Type != "" {
			return m, nil
		}
		if m.Text != "" {
			m.Type = TypeAgentMessage
			return m, nil
		}
		return Message{}, errors.New("json payload has neither type nor text")
	}

	if !utf8.Valid(payload) {
		return Message{}, errors.New("payload is neither json nor valid utf-8 text")
	}
	return Message{Type: TypeAgentMessage, Text: string(payload)}, nil
}
