package wire

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is sent in the hello frame and must match what the
// operator console expects.
const ProtocolVersion = "1.0"

// DefaultClientName identifies this client to the console when no name is
// configured.
const DefaultClientName = "miniagent-go"

// Frame type tags. One JSON object per line, dispatched on "type".
const (
	TypeHello             = "hello"
	TypeHelloAck          = "hello_ack"
	TypeError             = "error"
	TypeSupportRequest    = "support_request"
	TypeSupportRequestAck = "support_request_ack"
	TypeSupportCancelled  = "support_cancelled"
	TypePing              = "ping"
	TypePong              = "pong"
)

// Server-pushed error codes.
const (
	CodeBadAuth = "BAD_AUTH"
	CodeNoUser  = "NO_USER"
)

// Envelope is the on-wire shape of every frame: the type tag plus the union
// of top-level fields the protocol uses. Outbound frames are built with the
// constructors below; inbound frames are decoded into an Envelope and
// dispatched on Type, with Payload left raw until the handler knows what it
// holds.
type Envelope struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Client    string          `json:"client,omitempty"`
	Version   string          `json:"version,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ResumeEndpoint tells the operator console where the held process accepts
// an authenticated resume call.
type ResumeEndpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ControlTarget describes where the operator should attach: browser family,
// debug port, and optional substrings that identify the tab.
type ControlTarget struct {
	Browser        string          `json:"browser"`
	DebugPort      int             `json:"debugPort,omitempty"`
	TargetID       string          `json:"targetId,omitempty"`
	URLContains    string          `json:"urlContains,omitempty"`
	TitleContains  string          `json:"titleContains,omitempty"`
	ResumeEndpoint *ResumeEndpoint `json:"resumeEndpoint,omitempty"`
}

// DetectionHints are selectors the operator should watch for or try to
// produce, derived from the failing call.
type DetectionHints struct {
	SuccessSelector string `json:"successSelector,omitempty"`
	FailureSelector string `json:"failureSelector,omitempty"`
}

// Meta identifies the run that escalated.
type Meta struct {
	RunID     string `json:"runId"`
	PID       int    `json:"pid"`
	Reason    string `json:"reason"`
	Timestamp string `json:"ts"`
}

// EscalationPayload is the body of a support_request. Immutable once built.
type EscalationPayload struct {
	Description   string          `json:"description"`
	ControlTarget *ControlTarget  `json:"controlTarget,omitempty"`
	Detection     *DetectionHints `json:"detection,omitempty"`
	Meta          Meta            `json:"meta"`
}

// CancelPayload is the body of a support_cancelled.
type CancelPayload struct {
	RunID     string `json:"runId"`
	Reason    string `json:"reason"`
	Timestamp string `json:"ts"`
}

// Hello builds the auth handshake frame.
func Hello(token, client string) Envelope {
	if client == "" {
		client = DefaultClientName
	}
	return Envelope{
		Type:    TypeHello,
		Token:   token,
		Client:  client,
		Version: ProtocolVersion,
	}
}

// SupportRequest wraps an escalation payload into a frame.
func SupportRequest(p EscalationPayload) (Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal support request payload: %w", err)
	}
	return Envelope{Type: TypeSupportRequest, Payload: raw}, nil
}

// SupportCancelled wraps a cancellation payload into a frame.
func SupportCancelled(p CancelPayload) (Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal cancellation payload: %w", err)
	}
	return Envelope{Type: TypeSupportCancelled, Payload: raw}, nil
}

// Ping builds a keepalive frame.
func Ping() Envelope {
	return Envelope{Type: TypePing}
}
