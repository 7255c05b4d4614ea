// Package message defines the immutable message variants exchanged by the
// relay and the history stores that retain public messages per room.
package message

import "time"

// StatusType describes what a status message announces.
type StatusType string

const (
	StatusJoin  StatusType = "join"
	StatusLeave StatusType = "leave"
)

// Status is a room announcement emitted when a user joins or leaves.
type Status struct {
	Text      string     `json:"text"`
	Type      StatusType `json:"type"`
	Timestamp string     `json:"timestamp"`
}

// Public is a message broadcast to every member of a room.
type Public struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

// Private is a message delivered to a single recipient.
type Private struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Timestamp string `json:"timestamp"`
}

// NewStatus builds a status message stamped with the current time.
func NewStatus(text string, typ StatusType) *Status {
	return &Status{Text: text, Type: typ, Timestamp: now()}
}

// NewPublic builds a public room message stamped with the current time.
func NewPublic(text, username, room string) *Public {
	return &Public{Text: text, Username: username, Room: room, Timestamp: now()}
}

// NewPrivate builds a private message stamped with the current time.
func NewPrivate(text, sender, receiver string) *Private {
	return &Private{Text: text, Sender: sender, Receiver: receiver, Timestamp: now()}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
