// Inbound event types delivered by messaging transports.

package models

// EventKind classifies an inbound interaction.
type EventKind string

// Event kind constants.
const (
	// EventCommand is a slash command such as /start; Text holds the command name without the slash.
	EventCommand EventKind = "command"
	// EventButton is an inline choice press; Text holds the choice code.
	EventButton EventKind = "button"
	// EventText is a free-text message (reply-keyboard presses arrive as text too).
	EventText EventKind = "text"
)

// Event is one inbound user interaction.
type Event struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	MessageID string    `json:"message_id,omitempty"` // transport reference of the message a button belongs to
	Time      int64     `json:"time"`
}
