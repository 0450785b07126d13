package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/realtime"
)

// SnapshotFunc receives the full current rows of a table as raw JSON.
type SnapshotFunc func(table string, rows json.RawMessage)

// Subscribe opens the realtime socket, subscribes to tables and calls fn for
// every snapshot pushed, starting with the current contents. It blocks until
// ctx ends (returning nil) or the connection fails.
func (c *Client) Subscribe(ctx context.Context, tables []string, fn SnapshotFunc) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/realtime"
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return decodeError(resp)
		}
		return apperr.Wrap(apperr.Unavailable, err, "realtime connection failed")
	}
	defer conn.Close()

	if err := conn.WriteJSON(realtime.Message{Type: realtime.TypeSubscribe, Tables: tables}); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "subscribe failed")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return apperr.Wrap(apperr.Unavailable, err, "realtime connection lost")
		}
		switch msg.Type {
		case realtime.TypeSnapshot:
			fn(msg.Table, msg.Data)
		case realtime.TypeError:
			if msg.Error != nil {
				logger.Warn("realtime error", "table", msg.Table, "code", msg.Error.Code, "message", msg.Error.Message)
			}
		}
	}
}
