package websocket

import (
	"time"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/application"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/fanout"
)

// Client commands.
const (
	CommandConnect     = "CONNECT"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandSend        = "SEND"
	CommandDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CommandConnected = "CONNECTED"
	CommandMessage   = "MESSAGE"
	CommandReceipt   = "RECEIPT"
	CommandError     = "ERROR"
)

// Frame is the JSON envelope exchanged in both directions.
type Frame struct {
	Command     string `json:"command"`
	Destination string `json:"destination,omitempty"`
	ID          string `json:"id,omitempty"`
	Receipt     string `json:"receipt,omitempty"`
	Message     string `json:"message,omitempty"`
	Body        any    `json:"body,omitempty"`
}

type eventBody struct {
	EventID    string                     `json:"event_id"`
	EventType  string                     `json:"event_type"`
	OccurredAt time.Time                  `json:"occurred_at"`
	Submission application.SubmissionView `json:"submission"`
}

func messageFrame(m fanout.Message) Frame {
	return Frame{
		Command:     CommandMessage,
		Destination: m.Destination,
		ID:          m.SubscriptionID,
		Body: eventBody{
			EventID:    m.Event.EventID.String(),
			EventType:  string(m.Event.Type),
			OccurredAt: m.Event.OccurredAt,
			Submission: application.ToSubmissionView(m.Event.Submission),
		},
	}
}

func errorFrame(receipt, message string) Frame {
	return Frame{Command: CommandError, Receipt: receipt, Message: message}
}
