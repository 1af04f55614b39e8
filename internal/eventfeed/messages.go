// ABOUTME: Event feed message type definitions
// ABOUTME: JSON envelope, handshake, player events and remote commands
package eventfeed

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is sent in both hello messages
const ProtocolVersion = 1

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeServerError = "server/error"
	TypeOpened      = "player/opened"
	TypeStatus      = "player/status"
	TypeProgress    = "player/progress"
	TypeCommand     = "player/command"
	TypeResult      = "player/result"
)

// Remote commands
const (
	CommandPlay    = "play"
	CommandPause   = "pause"
	CommandResume  = "resume"
	CommandStop    = "stop"
	CommandSeekTo  = "seek_to"
	CommandSeek    = "seek"
	CommandGain    = "gain"
	CommandMute    = "mute"
	CommandPan     = "pan"
	CommandBalance = "balance"
)

// Commands lists every command the server accepts
func Commands() []string {
	return []string{
		CommandPlay, CommandPause, CommandResume, CommandStop, CommandSeekTo,
		CommandSeek, CommandGain, CommandMute, CommandPan, CommandBalance,
	}
}

// Message is the top-level wrapper for all feed messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into a message of the given type
func NewMessage(msgType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: data}, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string   `json:"server_id"`
	Name     string   `json:"name"`
	Version  int      `json:"version"`
	Status   string   `json:"status"`
	Commands []string `json:"commands"`
}

// ServerError is sent before the server drops a connection
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Opened carries the properties of a newly opened source
type Opened struct {
	Origin     string         `json:"origin"`
	Properties map[string]any `json:"properties"`
}

// Status mirrors a player status event
type Status struct {
	Status      string `json:"status"`
	Position    int64  `json:"position"`
	Description string `json:"description,omitempty"`
}

// Progress reports playback position, throttled by the server
type Progress struct {
	EncodedBytes int64 `json:"encoded_bytes"`
	Microseconds int64 `json:"microseconds"`
}

// Command is a remote control request. Value holds seconds for seeks, a
// linear gain, or a pan/balance position.
type Command struct {
	Command string  `json:"command"`
	Value   float64 `json:"value,omitempty"`
	Mute    bool    `json:"mute,omitempty"`
}

// Result answers a command. Error is empty on success.
type Result struct {
	Command  string `json:"command"`
	Position int64  `json:"position,omitempty"`
	Error    string `json:"error,omitempty"`
}
