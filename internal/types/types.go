package types

import (
	"time"
)

type Role string

const (
	RoleUser     Role = "USER"
	RoleOperator Role = "OPERATOR"
)

// Session identifies the authenticated party on whose behalf the chat
// connection runs. It is produced by the auth collaborator and read-only
// here.
type Session struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	Token  string `json:"-"`
}

type Visibility string

const (
	VisibilityActive Visibility = "ACTIVE"
	VisibilityHidden Visibility = "HIDDEN"
)

// Room is one conversation between a user and a shelter operator,
// scoped to a single animal listing.
type Room struct {
	ID              string     `json:"id"`
	SubjectRef      string     `json:"subject_ref"`
	CounterpartyRef string     `json:"counterparty_ref"`
	LastMessageAt   time.Time  `json:"last_message_at"`
	UnreadCount     int        `json:"unread_count"`
	Visibility      Visibility `json:"visibility"`
}

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "PENDING"
	DeliveryConfirmed DeliveryState = "CONFIRMED"
	DeliveryFailed    DeliveryState = "FAILED"
)

// Message is one chat message. ID is assigned by the server and empty
// while the message is still pending. LocalID identifies an optimistic
// send for its whole lifetime; CorrelationID is echoed back by the
// server and makes reconciliation unambiguous.
type Message struct {
	ID            string        `json:"id,omitempty"`
	LocalID       string        `json:"-"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	RoomID        string        `json:"room_id"`
	SenderID      string        `json:"sender_id"`
	Content       string        `json:"content"`
	SentAt        time.Time     `json:"sent_at"`
	DeliveryState DeliveryState `json:"-"`
}

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// RoomEventKind tags an incremental room-list update.
type RoomEventKind string

const (
	RoomEventMessage  RoomEventKind = "message"
	RoomEventHidden   RoomEventKind = "hidden"
	RoomEventRestored RoomEventKind = "restored"
)

// RoomEvent is pushed on the account-scoped room-list channel.
type RoomEvent struct {
	Kind          RoomEventKind `json:"kind"`
	RoomID        string        `json:"room_id"`
	LastMessageAt time.Time     `json:"last_message_at,omitempty"`
	UnreadCount   int           `json:"unread_count"`
}
