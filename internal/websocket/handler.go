package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"

	"filings-rag-be/internal/pkg/logger"
	"filings-rag-be/internal/service"
)

// ServeStream handles one query stream connection until the peer goes away.
func ServeStream(c *websocket.Conn, queries service.IQueryService, userID string, log logger.ILogger) {
	client := newClient(c, queries, userID, log)
	client.logger.Debug(module, "stream opened", map[string]interface{}{"user_id": userID})

	go client.writePump()
	client.readPump()
	// The connection is released when this handler returns.
	<-client.done
}

func newClient(c *websocket.Conn, queries service.IQueryService, userID string, log logger.ILogger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		Conn:    c,
		UserID:  userID,
		queries: queries,
		logger:  log,
		send:    make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		slot:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}
