package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the server
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the server
	pongWait = 60 * time.Second

	// Send pings to the server with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size accepted from the server
	maxMessageSize = 4 << 20
)

// ErrStreamClosed is returned when the server ends the subscription
var ErrStreamClosed = errors.New("ledger: stream closed")

// Handler receives transactions in arrival order on a single goroutine
type Handler func(Transaction)

// Stream subscribes to account transactions on a ledger server
type Stream struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewStream creates a stream for the given websocket URL
func NewStream(url string, logger *zap.Logger) *Stream {
	return &Stream{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

type subscribeCommand struct {
	ID       int      `json:"id"`
	Command  string   `json:"command"`
	Accounts []string `json:"accounts"`
}

type envelope struct {
	Type   string          `json:"type"`
	Status string          `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Subscribe connects, subscribes to the accounts and delivers transactions
// to handle until ctx is cancelled or the connection fails. The connection
// is not re-established.
func (s *Stream) Subscribe(ctx context.Context, accounts []string, handle Handler) error {
	if len(accounts) == 0 {
		return fmt.Errorf("ledger: no accounts to subscribe")
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to ledger stream: %w", err)
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { conn.Close() })
	}
	defer closeConn()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{ID: 1, Command: "subscribe", Accounts: accounts}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.logger.Info("subscribed to ledger accounts", zap.Int("accounts", len(accounts)))

	done := make(chan struct{})
	defer close(done)
	var writeMu sync.Mutex

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				writeMu.Unlock()
				closeConn()
				return
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}
			return fmt.Errorf("ledger stream read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn("error parsing ledger message", zap.Error(err))
			continue
		}

		switch env.Type {
		case "transaction":
			var tx Transaction
			if err := json.Unmarshal(message, &tx); err != nil {
				s.logger.Warn("error parsing ledger transaction", zap.Error(err))
				continue
			}
			handle(tx)
		case "response":
			if env.Status != "success" {
				return fmt.Errorf("ledger subscribe rejected: %s", env.Error)
			}
		default:
			s.logger.Debug("ignoring ledger message", zap.String("type", env.Type))
		}
	}
}
