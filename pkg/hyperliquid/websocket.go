package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/models"
)

// TickerSink receives streamed ticker updates.
type TickerSink func(ticker *models.Ticker)

// Feed streams live market data over a websocket and hands ticker
// updates to a sink, typically one that warms the read cache so polled
// lookups hit fresh entries.
type Feed struct {
	url    string
	conn   *websocket.Conn
	logger *logrus.Logger

	mu            sync.Mutex
	connected     bool
	subscriptions map[string]bool
	sink          TickerSink
}

type wsMessage struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
}

type wsSubscribe struct {
	Method  string   `json:"method"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

func NewFeed(url string, sink TickerSink, logger *logrus.Logger) *Feed {
	return &Feed{
		url:           url,
		logger:        logger,
		subscriptions: make(map[string]bool),
		sink:          sink,
	}
}

func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	f.conn = conn
	f.connected = true

	go f.readLoop(ctx)
	go f.keepAlive(ctx)

	return nil
}

func (f *Feed) Subscribe(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return fmt.Errorf("websocket not connected")
	}

	for _, s := range symbols {
		f.subscriptions[s] = true
	}
	return f.conn.WriteJSON(wsSubscribe{
		Method:  "subscribe",
		Channel: "ticker",
		Symbols: symbols,
	})
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg wsMessage
			if err := f.conn.ReadJSON(&msg); err != nil {
				f.logger.WithError(err).Error("Failed to read websocket message")
				f.handleDisconnect()
				return
			}
			if msg.Channel != "ticker" {
				continue
			}

			var payload tickerPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				f.logger.WithError(err).Warn("Malformed ticker update")
				continue
			}
			if f.sink != nil {
				f.sink(&models.Ticker{
					Symbol:    msg.Symbol,
					BidPrice:  payload.Bid,
					AskPrice:  payload.Ask,
					LastPrice: payload.Last,
					Volume24h: payload.Volume24h,
					Timestamp: time.UnixMilli(payload.Time),
				})
			}
		}
	}
}

func (f *Feed) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.connected {
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.logger.WithError(err).Error("Failed to send ping")
					f.mu.Unlock()
					f.handleDisconnect()
					continue
				}
			}
			f.mu.Unlock()
		}
	}
}

func (f *Feed) handleDisconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
	if f.conn != nil {
		f.conn.Close()
	}
}

// Connected reports the current connection state.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
