package websocket

import (
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/testrun"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Test progress messages
	MessageTypeStepChanged      MessageType = "step_changed"
	MessageTypeChannelCompleted MessageType = "channel_completed"
	MessageTypeBatchCompleted   MessageType = "batch_completed"

	// PLC connection messages
	MessageTypePlcConnection MessageType = "plc_connection"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StepChangedData announces a batch entering a ramp step or phase.
type StepChangedData struct {
	BatchID string `json:"batch_id"`
	Step    int    `json:"step"`
	Phase   string `json:"phase"`
}

// BatchCompletedData announces the end of a batch run.
type BatchCompletedData struct {
	BatchID string `json:"batch_id"`
	Phase   string `json:"phase"`
}

// PlcConnectionData reports a facade connection transition.
type PlcConnectionData struct {
	Facade    string `json:"facade"`
	Connected bool   `json:"connected"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewStepChangedMessage(batchID string, step int, phase testrun.BatchPhase) Message {
	return NewMessage(MessageTypeStepChanged, StepChangedData{
		BatchID: batchID,
		Step:    step,
		Phase:   string(phase),
	})
}

func NewChannelCompletedMessage(snapshot testrun.StateSnapshot) Message {
	return NewMessage(MessageTypeChannelCompleted, snapshot)
}

func NewBatchCompletedMessage(batchID string, phase testrun.BatchPhase) Message {
	return NewMessage(MessageTypeBatchCompleted, BatchCompletedData{
		BatchID: batchID,
		Phase:   string(phase),
	})
}

func NewPlcConnectionMessage(facade string, connected bool) Message {
	return NewMessage(MessageTypePlcConnection, PlcConnectionData{
		Facade:    facade,
		Connected: connected,
	})
}
