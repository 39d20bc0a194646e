package vwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
)

// ErrStreamLost reports that the worker connection dropped mid-attempt.
// The attempt's outcome is unknown; callers treat it as a transient
// transport fault, never as a terminal result.
var ErrStreamLost = errors.New("vwp: stream lost")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClientCodec sets the frame codec. Defaults to JSON.
func WithClientCodec(codec Codec) ClientOption {
	return func(c *Client) { c.codec = codec }
}

// WithDialBackoff sets the initial and maximum reconnect delays.
func WithDialBackoff(initial, maxDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.dialBackoff = initial
		c.maxBackoff = maxDelay
	}
}

// Client is the orchestrator-side worker connection. It keeps one
// WebSocket to the worker, multiplexes concurrent generate requests over
// it by frame correlation, and redials with doubling backoff when the
// connection is down.
type Client struct {
	url    string
	codec  Codec
	logger *slog.Logger

	dialBackoff time.Duration
	maxBackoff  time.Duration

	// mu guards conn and serializes frame writes.
	mu   sync.Mutex
	conn net.Conn

	// pending routes incoming frames to in-flight requests by CorrelID.
	pending sync.Map // frame ID → *pendingReq
}

// pendingReq is one in-flight request's event route. done closes when
// the requester stops consuming, so a blocked terminal send never
// wedges the read loop.
type pendingReq struct {
	ch   chan *Frame
	done chan struct{}
}

// NewClient creates a client for the worker at the given WebSocket URL.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:         url,
		codec:       &JSONCodec{},
		logger:      slog.Default(),
		dialBackoff: 2 * time.Second,
		maxBackoff:  60 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Generate runs one attempt on the worker, invoking handle for each
// streamed event in order. It returns nil once a terminal event was
// delivered, ErrStreamLost if the connection dropped first, or the
// context error if ctx ended (after a best-effort cancel to the worker).
func (c *Client) Generate(ctx context.Context, req GenerateRequest, handle func(Event)) error {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}

	frame, err := NewRequestFrame(GenerateFrameID(), MethodGenerate, req)
	if err != nil {
		return fmt.Errorf("vwp: marshal request: %w", err)
	}

	pr := &pendingReq{ch: make(chan *Frame, 16), done: make(chan struct{})}
	c.pending.Store(frame.ID, pr)
	defer func() {
		c.pending.Delete(frame.ID)
		close(pr.done)
	}()

	if err := c.writeFrame(conn, frame); err != nil {
		return fmt.Errorf("vwp: write request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.sendCancel(conn, req.JobID, req.Attempt)
			return ctx.Err()
		case f, ok := <-pr.ch:
			if !ok {
				return ErrStreamLost
			}
			ev, evErr := decodeEvent(f)
			if evErr != nil {
				return evErr
			}
			handle(ev)
			if ev.Terminal() {
				return nil
			}
		}
	}
}

// Cancel tells the worker to abandon an attempt. Best-effort: a closed
// connection means there is nothing left to cancel.
func (c *Client) Cancel(ctx context.Context, jobID id.JobID, attempt int) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	frame, err := NewRequestFrame(GenerateFrameID(), MethodCancel, CancelRequest{
		JobID:   jobID,
		Attempt: attempt,
	})
	if err != nil {
		return fmt.Errorf("vwp: marshal cancel: %w", err)
	}
	return c.writeFrame(conn, frame)
}

// Close tears down the connection. In-flight requests fail with
// ErrStreamLost.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ── connection management ──

// ensureConn returns the live connection, dialing with doubling backoff
// until connected or ctx ends.
func (c *Client) ensureConn(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	delay := c.dialBackoff
	for {
		conn, _, _, err := ws.Dial(ctx, c.url)
		if err == nil {
			c.mu.Lock()
			if c.conn != nil {
				// Lost the dial race; keep the existing connection.
				existing := c.conn
				c.mu.Unlock()
				conn.Close()
				return existing, nil
			}
			c.conn = conn
			c.mu.Unlock()

			go c.readLoop(conn)
			return conn, nil
		}

		c.logger.Warn("worker dial failed",
			slog.String("url", c.url),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxBackoff)
	}
}

func (c *Client) readLoop(conn net.Conn) {
	for {
		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			c.dropConn(conn, err)
			return
		}

		frame, decErr := c.codec.Decode(data)
		if decErr != nil {
			continue
		}

		switch frame.Type {
		case FrameEvent, FrameErr:
			val, ok := c.pending.Load(frame.CorrelID)
			if !ok {
				break
			}
			pr := val.(*pendingReq) //nolint:errcheck // pending always stores *pendingReq
			if terminalFrame(frame) {
				// The terminal frame decides the attempt; it must not be
				// dropped. Block until the requester takes it or gives up.
				select {
				case pr.ch <- frame:
				case <-pr.done:
				}
				break
			}
			select {
			case pr.ch <- frame:
			default:
				// A wedged receiver loses a progress report, not the outcome.
			}
		case FramePong:
		}
	}
}

// dropConn clears the connection and fails all in-flight requests.
// Only the owning read loop closes pending channels, so sends and
// closes never race.
func (c *Client) dropConn(conn net.Conn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	c.logger.Warn("worker connection lost", slog.String("error", err.Error()))

	c.pending.Range(func(key, val any) bool {
		c.pending.Delete(key)
		close(val.(*pendingReq).ch) //nolint:errcheck // pending always stores *pendingReq
		return true
	})
}

// terminalFrame reports whether a frame ends its request: a protocol
// error frame or a result/error event.
func terminalFrame(f *Frame) bool {
	return f.Type == FrameErr || f.Method == EventResult || f.Method == EventError
}

// ── frame plumbing ──

func (c *Client) writeFrame(conn net.Conn, f *Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}
	op := ws.OpText
	if c.codec.Name() == CodecNameMsgpack {
		op = ws.OpBinary
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteClientMessage(conn, op, data)
}

func (c *Client) sendCancel(conn net.Conn, jobID id.JobID, attempt int) {
	frame, err := NewRequestFrame(GenerateFrameID(), MethodCancel, CancelRequest{
		JobID:   jobID,
		Attempt: attempt,
	})
	if err != nil {
		return
	}
	if writeErr := c.writeFrame(conn, frame); writeErr != nil {
		c.logger.Debug("cancel write failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", writeErr.Error()),
		)
	}
}

func decodeEvent(f *Frame) (Event, error) {
	if f.Type == FrameErr {
		code, msg := ErrCodeInternal, "unknown error"
		if f.Error != nil {
			code, msg = f.Error.Code, f.Error.Message
		}
		return Event{}, fmt.Errorf("vwp: worker error %d: %s", code, msg)
	}

	switch f.Method {
	case EventProgress:
		var p event.Progress
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Event{}, fmt.Errorf("vwp: decode progress: %w", err)
		}
		return Event{Progress: &p}, nil
	case EventResult:
		var a event.Artifact
		if err := json.Unmarshal(f.Data, &a); err != nil {
			return Event{}, fmt.Errorf("vwp: decode result: %w", err)
		}
		return Event{Result: &a}, nil
	case EventError:
		var fl event.Failure
		if err := json.Unmarshal(f.Data, &fl); err != nil {
			return Event{}, fmt.Errorf("vwp: decode failure: %w", err)
		}
		return Event{Failure: &fl}, nil
	default:
		return Event{}, fmt.Errorf("vwp: unexpected event method %q", f.Method)
	}
}
