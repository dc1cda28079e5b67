package chat

import (
	"encoding/json"
	"fmt"

	"github.com/pawhaven/chatkit/internal/types"
)

// Channel addressing on the push transport. Room channels are scoped by
// room id, the rest are account-scoped.
const (
	roomChannelPrefix  = "room/"
	roomListChannel    = "account/rooms"
	unreadTotalChannel = "account/unread"
)

func roomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// UnreadFrame carries the authoritative global unread total.
type UnreadFrame struct {
	Total int `json:"total"`
}

// ServerFrame is the tagged envelope for inbound push frames. Exactly
// one variant is set; anything else is rejected at ingress.
type ServerFrame struct {
	Message   *types.Message   `json:"message,omitempty"`
	RoomEvent *types.RoomEvent `json:"room_event,omitempty"`
	Unread    *UnreadFrame     `json:"unread,omitempty"`
}

func decodeServerFrame(raw []byte) (*ServerFrame, error) {
	var frame ServerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	variants := 0
	if frame.Message != nil {
		variants++
	}
	if frame.RoomEvent != nil {
		variants++
	}
	if frame.Unread != nil {
		variants++
	}
	if variants != 1 {
		return nil, fmt.Errorf("frame must carry exactly one variant, got %d", variants)
	}

	return &frame, nil
}

// ClientFrame is the outbound envelope: subscription control or a
// message publish. The server assigns message ids and timestamps.
type ClientFrame struct {
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	Publish     *Publish     `json:"publish,omitempty"`
}

type Subscribe struct {
	Channel string `json:"channel"`
}

type Unsubscribe struct {
	Channel string `json:"channel"`
}

type Publish struct {
	RoomID        string `json:"room_id"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id"`
}

func encodeClientFrame(frame *ClientFrame) ([]byte, error) {
	return json.Marshal(frame)
}
