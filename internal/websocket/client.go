package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"filings-rag-be/internal/dto"
	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/service"
	"filings-rag-be/pkg/graph"
)

const (
	module         = "websocket"
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 64

	errBusy = "a question is already running on this stream"
)

// Client streams workflow progress for the questions sent on one connection.
// Only one question runs at a time; frames arriving meanwhile are refused.
type Client struct {
	Conn   *websocket.Conn
	UserID string

	queries service.IQueryService
	logger  logger.ILogger

	// Buffered channel of outbound frames.
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	slot   chan struct{}
	done   chan struct{}
}

// readPump hands each request to dispatch so pongs keep being read while a
// question is answered.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.wg.Wait()
		close(c.send)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn(module, "stream closed unexpectedly", map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				})
			}
			return
		}

		c.dispatch(raw)
	}
}

// dispatch starts answering raw in the background. While another question is
// running it emits a busy error instead and returns false.
func (c *Client) dispatch(raw []byte) bool {
	select {
	case c.slot <- struct{}{}:
	default:
		c.emit(dto.StreamFrame{Type: dto.FrameError, Error: errBusy})
		return false
	}

	c.wg.Add(1)
	go func() {
		defer func() {
			<-c.slot
			c.wg.Done()
		}()
		c.handle(c.ctx, raw, c.emit)
	}()
	return true
}

// handle answers one raw request, reporting node progress and the final
// result or error through emit.
func (c *Client) handle(ctx context.Context, raw []byte, emit func(dto.StreamFrame)) {
	var req dto.AskRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		emit(dto.StreamFrame{Type: dto.FrameError, Error: "malformed request"})
		return
	}

	progress := graph.WithObserver(func(ev graph.Event) {
		emit(dto.StreamFrame{
			Type:       dto.FrameNode,
			Node:       ev.Node,
			Step:       ev.Step,
			DurationMS: ev.Duration.Milliseconds(),
		})
	})

	res, err := c.queries.Ask(ctx, c.UserID, &req, progress)
	if err != nil {
		emit(dto.StreamFrame{Type: dto.FrameError, Error: err.Error()})
		return
	}
	emit(dto.StreamFrame{Type: dto.FrameResult, Result: res})
}

// emit queues a frame, dropping it once the connection is gone.
func (c *Client) emit(frame dto.StreamFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error(module, "encode frame failed", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

// writePump pumps frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}
