package alpaca

// stream.go — websocket consumers for the two push feeds.
//
// Each stream owns its connection and a read-loop goroutine; closing the
// stream closes the connection, which unblocks the reader and closes the
// outbound channel, so the consumer always observes end-of-stream.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/shopspring/decimal"
)

type stream struct {
	conn *websocket.Conn
	once sync.Once
}

func (s *stream) close() {
	s.once.Do(func() {
		s.conn.Close()
	})
}

// dialTradeStream connects to the trading host's stream, authenticates, and
// listens for trade_updates. Only terminal events are forwarded.
func dialTradeStream(ctx context.Context, wsURL string, creds domain.Credentials) (*stream, <-chan domain.TradeUpdate, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	auth := map[string]any{
		"action": "authenticate",
		"data":   map[string]string{"key_id": creds.Key, "secret_key": creds.Secret},
	}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}
	listen := map[string]any{
		"action": "listen",
		"data":   map[string][]string{"streams": {"trade_updates"}},
	}
	if err := conn.WriteJSON(listen); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("listen trade_updates: %w", err)
	}

	s := &stream{conn: conn}
	ch := make(chan domain.TradeUpdate, 16)

	go func() {
		defer close(ch)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				slog.Debug("trade stream closed", "err", err)
				return
			}
			var env streamEnvelope
			if err := json.Unmarshal(msg, &env); err != nil || env.Stream != "trade_updates" {
				continue
			}
			event := mapTradeEvent(env.Data.Event)
			if !event.Terminal() {
				continue
			}
			ch <- domain.TradeUpdate{OrderID: env.Data.Order.ID, Event: event}
		}
	}()

	return s, ch, nil
}

// dialBarStream connects to the data host's stream, authenticates, and
// subscribes to the symbol's minute bars.
func dialBarStream(ctx context.Context, wsURL string, creds domain.Credentials, symbol string) (*stream, <-chan domain.Bar, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	auth := map[string]string{"action": "auth", "key": creds.Key, "secret": creds.Secret}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}
	sub := map[string]any{"action": "subscribe", "bars": []string{symbol}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("subscribe bars: %w", err)
	}

	s := &stream{conn: conn}
	ch := make(chan domain.Bar, 16)

	go func() {
		defer close(ch)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				slog.Debug("bar stream closed", "err", err)
				return
			}
			// Data messages arrive as arrays; control messages as objects.
			var batch []streamBarMessage
			if err := json.Unmarshal(msg, &batch); err != nil {
				continue
			}
			for _, m := range batch {
				if m.Type != "b" || m.Symbol != symbol {
					continue
				}
				ch <- domain.Bar{
					Symbol: m.Symbol,
					Time:   m.Time,
					Close:  decimal.NewFromFloat(m.Close),
				}
			}
		}
	}()

	return s, ch, nil
}
