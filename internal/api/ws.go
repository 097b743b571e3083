package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fairrate/internal/query"
)

// WebSocket timing.
const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 64 << 10
)

// EquivalenceMessage is one server reply on /ws/equivalence. Exactly one
// of Answer and Error is set; ID echoes the request ID.
type EquivalenceMessage struct {
	ID     string         `json:"id,omitempty"`
	Answer *query.Answer  `json:"answer,omitempty"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// serveWS answers equivalence requests sent as JSON text messages until the
// client disconnects. Requests are answered in order.
func (h *Handler) serveWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(messageType, data)
	}

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, write)
	}()
	defer wg.Wait()
	defer cancel()

	h.log.WithField("remote", c.Request.RemoteAddr).Debug("websocket client connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.WithError(err).Warn("websocket read failed")
			}
			return
		}

		reply := h.answer(ctx, data)
		out, err := json.Marshal(reply)
		if err != nil {
			h.log.WithError(err).Error("encode websocket reply")
			return
		}
		if err := write(websocket.TextMessage, out); err != nil {
			h.log.WithError(err).Warn("websocket write failed")
			return
		}
	}
}

func (h *Handler) answer(ctx context.Context, data []byte) EquivalenceMessage {
	var req EquivalenceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return EquivalenceMessage{Error: h.errorBody(fmt.Errorf("%w: %v", errBadRequest, err))}
	}
	date, q, err := req.parse()
	if err != nil {
		return EquivalenceMessage{ID: req.ID, Error: h.errorBody(err)}
	}
	answer, err := h.svc.Compute(ctx, date, q)
	if err != nil {
		return EquivalenceMessage{ID: req.ID, Error: h.errorBody(err)}
	}
	return EquivalenceMessage{ID: req.ID, Answer: answer}
}

func (h *Handler) errorBody(err error) *ErrorResponse {
	status, code := statusFor(err)
	if status >= 500 {
		h.log.WithError(err).Error("websocket query failed")
		return &ErrorResponse{Error: "internal error", Code: code}
	}
	return &ErrorResponse{Error: err.Error(), Code: code}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (h *Handler) pingLoop(ctx context.Context, write func(int, []byte) error) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
