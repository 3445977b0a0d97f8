// Package events defines the typed event stream a turn emits and the
// callback plumbing used to deliver it. Consumers can reconstruct the
// full reply from the concatenation of delta events alone; tool events
// are out-of-band annotations.
package events

import (
	"log/slog"
	"runtime/debug"
)

// Event types, in the order a single-shot turn emits them.
const (
	// TypeClassification reports the chosen backend class.
	TypeClassification = "classification"
	// TypeDelta carries one chunk of reply text.
	TypeDelta = "delta"
	// TypeToolStart reports that a tool execution began.
	TypeToolStart = "tool_start"
	// TypeToolResult reports the outcome of a tool execution.
	TypeToolResult = "tool_result"
	// TypeSubtaskStart and TypeSubtaskEnd bracket one decomposed subtask.
	TypeSubtaskStart = "subtask_start"
	TypeSubtaskEnd   = "subtask_end"
	// TypeDone is terminal and carries the final assembled text.
	TypeDone = "done"
)

// ClassificationEvent is the payload of TypeClassification.
type ClassificationEvent struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}

// DeltaEvent is the payload of TypeDelta.
type DeltaEvent struct {
	Text string `json:"text"`
}

// ToolStartEvent is the payload of TypeToolStart.
type ToolStartEvent struct {
	Tool   string `json:"tool"`
	Source string `json:"source"`
}

// ToolResultEvent is the payload of TypeToolResult.
type ToolResultEvent struct {
	Tool      string `json:"tool"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// SubtaskEvent is the payload of TypeSubtaskStart and TypeSubtaskEnd.
type SubtaskEvent struct {
	ID       string `json:"id"`
	Fragment string `json:"fragment"`
	Status   string `json:"status,omitempty"`
}

// DoneEvent is the payload of TypeDone.
type DoneEvent struct {
	Reply      string           `json:"reply"`
	Decomposed bool             `json:"decomposed"`
	Timings    map[string]int64 `json:"timings_ms,omitempty"`
}

// Callback is the unified event callback type.
type Callback func(eventType string, eventData any) error

// SafeCallback is a callback variant that does not propagate errors.
// Errors are logged internally instead of being returned to callers.
type SafeCallback func(eventType string, eventData any)

// NoopCallback is a callback that does nothing.
var NoopCallback Callback = func(string, any) error { return nil }

// WrapSafe converts a Callback to a SafeCallback.
// Errors from the original callback are logged but not propagated.
// Returns nil if the input callback is nil.
func WrapSafe(cb Callback) SafeCallback {
	if cb == nil {
		return nil
	}
	return func(eventType string, eventData any) {
		if err := cb(eventType, eventData); err != nil {
			slog.Warn("event callback error (swallowed)",
				"event_type", eventType,
				"error", err,
				"stack", string(debug.Stack()))
		}
	}
}
