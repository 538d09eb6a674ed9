package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/SAP-F-2025/exam-attempt-service/internal/models"
	"github.com/SAP-F-2025/exam-attempt-service/internal/proctoring"
	"github.com/SAP-F-2025/exam-attempt-service/internal/services"
	"github.com/SAP-F-2025/exam-attempt-service/internal/utils"
)

// Action is a client to server message on the exam stream.
type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSignal   Action = "signal"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Event is a server to client message on the exam stream.
type Event string

const (
	EventSaved     Event = "saved"
	EventSignal    Event = "signal"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
	EventError     Event = "error"
)

type StreamRequest struct {
	Action  Action                 `json:"action"`
	Answers []services.AnswerInput `json:"answers,omitempty"`
	Signal  *proctoring.Signal     `json:"signal,omitempty"`
}

type StreamResponse struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	Error interface{} `json:"error,omitempty"`
}

const (
	streamReadTimeout  = 5 * time.Minute
	streamWriteTimeout = 10 * time.Second
	signalQueueSize    = 32
)

// buildUpgrader accepts any origin when allowedOrigins is empty.
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler serves the live exam connection: autosave pushes,
// proctoring signals, submit and keepalive over one websocket.
type StreamHandler struct {
	BaseHandler
	attemptService services.AttemptService
	upgrader       websocket.Upgrader
}

func NewStreamHandler(attemptService services.AttemptService, logger utils.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		BaseHandler:    NewBaseHandler(logger.With("component", "stream_handler")),
		attemptService: attemptService,
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// streamConn serialises writes; gorilla allows one concurrent writer.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *streamConn) write(resp StreamResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return s.conn.WriteJSON(resp)
}

func (s *streamConn) writeError(err error) error {
	_, body := errorResponseFor(err)
	return s.write(StreamResponse{Event: EventError, Error: body})
}

func (s *streamConn) read(v interface{}) error {
	s.conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	return s.conn.ReadJSON(v)
}

// AttemptStream godoc
// WS /ws/v1/attempts/:id/stream
func (h *StreamHandler) AttemptStream(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	caller, ok := requireIdentity(c)
	if !ok {
		return
	}

	// Ownership and state are checked before upgrading so failures are plain HTTP.
	attempt, err := h.attemptService.Get(c.Request.Context(), attemptID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if attempt.UserID != caller.UserID {
		h.RespondWithError(c, http.StatusForbidden, "Only the attempt owner can open the exam stream", nil)
		return
	}
	if attempt.Status != models.AttemptInProgress {
		h.RespondWithError(c, http.StatusConflict, "Attempt is no longer in progress", nil)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.LogError(c, err, "WebSocket upgrade failed")
		return
	}
	conn := &streamConn{conn: ws}
	defer ws.Close()

	logger := h.logger.With("attempt_id", attemptID, "user_id", caller.UserID)
	logger.Info("Exam stream connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan proctoring.Signal, signalQueueSize)
	outcomes := make(chan proctoring.Outcome)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(outcomes)
		h.attemptService.Monitor().Run(ctx, attemptID, attempt.Proctoring, signals, outcomes)
	}()
	go func() {
		defer wg.Done()
		for out := range outcomes {
			if err := conn.write(StreamResponse{Event: EventSignal, Data: out}); err != nil {
				logger.Debug("Dropping signal outcome", "error", err)
			}
		}
	}()
	defer func() {
		close(signals)
		wg.Wait()
	}()

	for {
		var msg StreamRequest
		if err := conn.read(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Unexpected close", "error", err)
			} else {
				logger.Debug("Exam stream closed")
			}
			return
		}

		done := h.dispatch(ctx, conn, logger, attemptID, caller, signals, &msg)
		if done {
			return
		}
	}
}

// dispatch handles one client message and reports whether the stream should end.
// A failed write ends the stream; the peer is gone.
func (h *StreamHandler) dispatch(
	ctx context.Context,
	conn *streamConn,
	logger utils.Logger,
	attemptID string,
	caller models.Identity,
	signals chan<- proctoring.Signal,
	msg *StreamRequest,
) bool {
	send := func(resp StreamResponse) bool {
		if err := conn.write(resp); err != nil {
			logger.Debug("Failed to write stream response", "event", resp.Event, "error", err)
			return false
		}
		return true
	}
	sendError := func(err error) bool {
		if werr := conn.writeError(err); werr != nil {
			logger.Debug("Failed to write stream error", "error", werr, "cause", err)
			return false
		}
		return true
	}

	switch msg.Action {
	case ActionAutosave:
		err := h.attemptService.SaveAnswers(ctx, attemptID, &services.SaveAnswersRequest{Answers: msg.Answers}, caller)
		if err != nil {
			return !sendError(err)
		}
		return !send(StreamResponse{Event: EventSaved, Data: map[string]int{"saved": len(msg.Answers)}})

	case ActionSignal:
		if msg.Signal == nil || !msg.Signal.Type.IsValid() {
			return !sendError(services.NewValidationError("signal.type", "unknown signal type", msg.Signal))
		}
		select {
		case signals <- *msg.Signal:
		case <-ctx.Done():
			return true
		}

	case ActionSubmit:
		attempt, err := h.attemptService.Submit(ctx, attemptID, caller)
		if err != nil {
			return !sendError(err)
		}
		send(StreamResponse{Event: EventSubmitted, Data: attempt})
		logger.Info("Attempt submitted over stream")
		return true

	case ActionPing:
		remaining, err := h.attemptService.TimeRemaining(ctx, attemptID, caller)
		if err != nil {
			return !sendError(err)
		}
		return !send(StreamResponse{Event: EventPong, Data: remaining})

	default:
		logger.Warn("Unknown stream action", "action", msg.Action)
		return !sendError(services.NewValidationError("action", "unknown action", msg.Action))
	}
	return false
}
