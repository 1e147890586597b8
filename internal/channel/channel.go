package channel

import (
	"context"
	"time"
)

// InboundMessage is a message received from a channel. Voice messages arrive
// already transcribed; Voice records that the sender spoke rather than typed.
type InboundMessage struct {
	ChannelName string
	SenderID    string
	SenderName  string
	RoomID      string
	Text        string
	Voice       bool
	Timestamp   time.Time
}

// OutboundMessage is a message to send through a channel. When Voice is set
// and the channel can synthesize speech, the reply goes out as audio.
type OutboundMessage struct {
	RoomID string
	Text   string
	Voice  bool
}

// Channel is the interface for messaging integrations.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	OnMessage(handler func(InboundMessage))
	IsRunning() bool
}
