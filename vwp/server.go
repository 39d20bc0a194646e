package vwp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/keerthanap8898/TextToVideoAPI/event"
	"github.com/keerthanap8898/TextToVideoAPI/id"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// GenerateHandler runs one generation attempt on the worker side,
// streaming events through the emitter. The handler owns terminality:
// it must emit exactly one Result or Fail before returning, and must
// stop promptly when ctx is cancelled.
type GenerateHandler interface {
	Generate(ctx context.Context, req GenerateRequest, emit Emitter)
}

// Emitter streams events for one attempt back to the orchestrator.
type Emitter interface {
	// Progress reports generation progress for the current attempt.
	Progress(step, totalSteps int) error
	// Result reports the produced artifact. Terminal.
	Result(a event.Artifact) error
	// Fail reports that the attempt produced no artifact. Terminal.
	Fail(kind job.ErrorKind, message string) error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets a custom logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithServerCodec sets the frame codec. Defaults to JSON.
func WithServerCodec(codec Codec) ServerOption {
	return func(s *Server) { s.codec = codec }
}

// Server is the worker-side protocol endpoint. It upgrades HTTP
// requests to WebSocket and serves generate requests, one goroutine per
// attempt, with cancel frames routed to the matching attempt.
type Server struct {
	handler GenerateHandler
	codec   Codec
	logger  *slog.Logger
}

// NewServer creates a protocol server around a generate handler.
func NewServer(handler GenerateHandler, opts ...ServerOption) *Server {
	s := &Server{
		handler: handler,
		codec:   &JSONCodec{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeHTTP upgrades the request to a WebSocket and serves frames on it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	go s.serveConn(conn)
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	ctx, cancelAll := context.WithCancel(context.Background())
	defer cancelAll()

	var (
		writeMu  sync.Mutex
		activeMu sync.Mutex
		active   = make(map[string]context.CancelFunc)
		wg       sync.WaitGroup
	)
	defer wg.Wait()

	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}

		frame, decErr := s.codec.Decode(data)
		if decErr != nil {
			s.logger.Warn("undecodable frame", slog.String("error", decErr.Error()))
			continue
		}

		switch frame.Type {
		case FramePing:
			s.write(conn, &writeMu, &Frame{
				ID:        GenerateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: time.Now().UTC(),
			})
		case FrameRequest:
			s.handleRequest(ctx, conn, &writeMu, &activeMu, active, &wg, frame)
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, writeMu, activeMu *sync.Mutex, active map[string]context.CancelFunc, wg *sync.WaitGroup, frame *Frame) {
	switch frame.Method {
	case MethodGenerate:
		var req GenerateRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.write(conn, writeMu, NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid generate request: "+err.Error()))
			return
		}

		genCtx, cancel := context.WithCancel(ctx)
		key := attemptKey(req.JobID, req.Attempt)
		activeMu.Lock()
		active[key] = cancel
		activeMu.Unlock()

		emit := &connEmitter{
			srv:      s,
			conn:     conn,
			writeMu:  writeMu,
			correlID: frame.ID,
			jobID:    req.JobID,
			attempt:  req.Attempt,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				cancel()
				activeMu.Lock()
				delete(active, key)
				activeMu.Unlock()
			}()
			s.handler.Generate(genCtx, req, emit)
		}()

	case MethodCancel:
		var req CancelRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		activeMu.Lock()
		if cancel, ok := active[attemptKey(req.JobID, req.Attempt)]; ok {
			cancel()
		}
		activeMu.Unlock()

	default:
		s.write(conn, writeMu, NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method "+frame.Method))
	}
}

func (s *Server) write(conn net.Conn, writeMu *sync.Mutex, f *Frame) {
	data, err := s.codec.Encode(f)
	if err != nil {
		s.logger.Error("frame encode failed", slog.String("error", err.Error()))
		return
	}
	op := ws.OpText
	if s.codec.Name() == CodecNameMsgpack {
		op = ws.OpBinary
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if writeErr := wsutil.WriteServerMessage(conn, op, data); writeErr != nil {
		s.logger.Warn("frame write failed", slog.String("error", writeErr.Error()))
	}
}

func attemptKey(jobID id.JobID, attempt int) string {
	return jobID.String() + "/" + strconv.Itoa(attempt)
}

// ── Emitter ─────────────────────────────────────────

// connEmitter is the WebSocket-backed Emitter. Safe for use from the
// single goroutine running the handler.
type connEmitter struct {
	srv      *Server
	conn     net.Conn
	writeMu  *sync.Mutex
	correlID string
	jobID    id.JobID
	attempt  int
}

var _ Emitter = (*connEmitter)(nil)

func (e *connEmitter) Progress(step, totalSteps int) error {
	f, err := NewEventFrame(e.correlID, EventProgress, event.Progress{
		JobID:      e.jobID,
		Attempt:    e.attempt,
		Step:       step,
		TotalSteps: totalSteps,
	})
	if err != nil {
		return err
	}
	e.srv.write(e.conn, e.writeMu, f)
	return nil
}

func (e *connEmitter) Result(a event.Artifact) error {
	f, err := NewEventFrame(e.correlID, EventResult, a)
	if err != nil {
		return err
	}
	e.srv.write(e.conn, e.writeMu, f)
	return nil
}

func (e *connEmitter) Fail(kind job.ErrorKind, message string) error {
	f, err := NewEventFrame(e.correlID, EventError, event.Failure{
		Kind:    kind,
		Message: message,
	})
	if err != nil {
		return err
	}
	e.srv.write(e.conn, e.writeMu, f)
	return nil
}
