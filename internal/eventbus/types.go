package eventbus

import "time"

// Topic represents an event topic.
type Topic string

const (
	TopicInboundMessage    Topic = "inbound_message"
	TopicOutboundMessage   Topic = "outbound_message"
	TopicTurnStarted       Topic = "turn_started"
	TopicTurnCompleted     Topic = "turn_completed"
	TopicPipelineSubmitted Topic = "pipeline_submitted"
	TopicStepCompleted     Topic = "step_completed"
	TopicSummaryUpdated    Topic = "summary_updated"
	TopicError             Topic = "error"
)

// Event is what subscribers receive.
type Event struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

// Handler processes a published event.
type Handler func(Event)

// StepOutcome is the payload published when a pipeline step commits.
type StepOutcome struct {
	RunID string
	Step  string
}

// TurnOutcome is the payload published when a synchronous turn finishes.
type TurnOutcome struct {
	RoomID string
	TurnID string
	Text   string
}
