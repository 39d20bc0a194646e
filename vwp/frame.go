// Package vwp implements the Video Worker Protocol — the message-based
// contract between the orchestrator and generation workers, transported
// over WebSocket. The orchestrator sends a generate request and the
// worker streams progress events back until exactly one terminal event
// (result or error) closes the exchange.
package vwp

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest FrameType = "request"
	FrameEvent   FrameType = "event"
	FrameErr     FrameType = "error"
	FramePing    FrameType = "ping"
	FramePong    FrameType = "pong"
)

// Frame is the protocol envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames and the event kind
	// for event frames.
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links an event or error back to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes a protocol-level error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ── Well-known methods ──────────────────────────────

const (
	// MethodGenerate asks the worker to run one generation attempt.
	MethodGenerate = "generate"
	// MethodCancel tells the worker to abandon a running attempt.
	MethodCancel = "generate.cancel"

	// Event methods streamed back by the worker.
	EventProgress = "generate.progress"
	EventResult   = "generate.result"
	EventError    = "generate.error"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeMethodNotFound = 405
	ErrCodeInternal       = 500
)

// ── Request payloads ────────────────────────────────

// GenerateRequest asks the worker to run one attempt of a job. The
// lease expiry bounds the attempt; the worker must stop past it.
type GenerateRequest struct {
	JobID          id.JobID   `json:"job_id"`
	Attempt        int        `json:"attempt"`
	Params         job.Params `json:"params"`
	LeaseExpiresAt time.Time  `json:"lease_expires_at"`
}

// CancelRequest tells the worker to abandon a running attempt.
// Best-effort: the orchestrator does not wait for confirmation.
type CancelRequest struct {
	JobID   id.JobID `json:"job_id"`
	Attempt int      `json:"attempt"`
}

// ── Streamed events ─────────────────────────────────

// Event is the union delivered to the orchestrator while an attempt
// runs. Exactly one of the fields is set; Result and Failure are
// terminal.
type Event struct {
	Progress *event.Progress
	Result   *event.Artifact
	Failure  *event.Failure
}

// Terminal reports whether this event ends the attempt.
func (e Event) Terminal() bool { return e.Result != nil || e.Failure != nil }

// ── Frame constructors ──────────────────────────────

// NewRequestFrame creates a new request frame.
func NewRequestFrame(frameID, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        frameID,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewEventFrame creates an event frame correlated to a request.
func NewEventFrame(correlID, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameEvent,
		Method:    method,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       GenerateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

var frameSeq atomic.Uint64

// GenerateFrameID returns a new unique frame ID.
// Uses a simple timestamp + counter approach for performance. The
// counter keeps concurrent callers from colliding on one timestamp;
// frames multiplex over a shared connection keyed by this ID.
func GenerateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000") +
		"-" + strconv.FormatUint(frameSeq.Add(1), 10)
}
