package futures

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"futures-core/pkg/exchanges/common"
)

// streamHandle wraps one websocket subscription. Alive flips to false as
// soon as the read loop exits for any reason.
type streamHandle struct {
	conn      *websocket.Conn
	listenKey string
	alive     atomic.Bool
	closeOnce sync.Once
}

func (h *streamHandle) Alive() bool {
	return h.alive.Load()
}

func (h *streamHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.alive.Store(false)
		_ = h.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = h.conn.Close()
	})
	return err
}

// ListenKey exposes the session token bound to an account stream handle.
func (h *streamHandle) ListenKey() string {
	return h.listenKey
}

func (c *Client) dialStream(ctx context.Context, path string) (*websocket.Conn, error) {
	u := url.URL{Scheme: "wss", Host: c.streamHost, Path: path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, common.NewTransportError("ws dial "+path, err)
	}
	return conn, nil
}

// OpenKlineStream subscribes to the kline stream for symbol/interval and
// invokes onEvent for every update. onEvent runs on the read goroutine and
// must not block.
func (c *Client) OpenKlineStream(ctx context.Context, symbol, interval string, onEvent func(common.Kline)) (common.Handle, error) {
	path := fmt.Sprintf("/ws/%s@kline_%s", strings.ToLower(symbol), interval)
	conn, err := c.dialStream(ctx, path)
	if err != nil {
		return nil, err
	}
	h := &streamHandle{conn: conn}
	h.alive.Store(true)

	go func() {
		defer h.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !isExpectedClose(err) {
					log.Printf("kline stream read error: %v", err)
				}
				return
			}
			k, err := parseKlineMessage(msg)
			if err != nil {
				log.Printf("kline stream parse error: %v", err)
				continue
			}
			onEvent(k)
		}
	}()
	return h, nil
}

// OpenAccountStream creates a listen key, subscribes to the user-data
// stream, and invokes onEvent for every normalized event. Keepalive of the
// session token is the caller's responsibility (see KeepAliveListenKey).
func (c *Client) OpenAccountStream(ctx context.Context, onEvent func(common.AccountEvent)) (common.Handle, error) {
	listenKey, err := c.CreateListenKey(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := c.dialStream(ctx, "/ws/"+listenKey)
	if err != nil {
		return nil, err
	}
	h := &streamHandle{conn: conn, listenKey: listenKey}
	h.alive.Store(true)

	go func() {
		defer h.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !isExpectedClose(err) {
					log.Printf("account stream read error: %v", err)
				}
				return
			}
			ev, ok := parseAccountMessage(msg)
			if !ok {
				continue
			}
			onEvent(ev)
		}
	}()
	return h, nil
}

// RenewAccountStream extends the session token bound to handle.
func (c *Client) RenewAccountStream(ctx context.Context, handle common.Handle) error {
	if _, ok := handle.(*streamHandle); !ok {
		return common.NewTransportError("listenKey keepalive", fmt.Errorf("handle is not an account stream"))
	}
	return c.KeepAliveListenKey(ctx)
}

// CloseStream tears a handle down; safe to call more than once.
func (c *Client) CloseStream(handle common.Handle) {
	if handle == nil {
		return
	}
	_ = handle.Close()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

// parseKlineMessage decodes only the fields we need.
func parseKlineMessage(msg []byte) (common.Kline, error) {
	var raw struct {
		Data struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return common.Kline{}, err
	}
	return common.Kline{
		Symbol:    raw.Data.Symbol,
		OpenTime:  raw.Data.StartTime,
		CloseTime: raw.Data.CloseTime,
		Open:      toFloat(raw.Data.Open),
		High:      toFloat(raw.Data.High),
		Low:       toFloat(raw.Data.Low),
		Close:     toFloat(raw.Data.Close),
		Volume:    toFloat(raw.Data.Volume),
	}, nil
}

// parseAccountMessage normalizes a user-data stream payload. The second
// return value is false for event kinds the engine does not consume.
func parseAccountMessage(msg []byte) (common.AccountEvent, bool) {
	var head struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		log.Printf("account stream parse error: %v", err)
		return common.AccountEvent{}, false
	}

	switch head.EventType {
	case "ORDER_TRADE_UPDATE":
		return parseOrderTradeUpdate(msg, head.EventTime)
	case "ACCOUNT_UPDATE":
		return parseAccountUpdate(msg, head.EventTime)
	case "listenKeyExpired":
		return common.AccountEvent{Kind: common.EventKindListenKeyExpired, Time: head.EventTime}, true
	case "MARGIN_CALL":
		return common.AccountEvent{Kind: common.EventKindMarginCall, Time: head.EventTime}, true
	default:
		return common.AccountEvent{}, false
	}
}

func parseOrderTradeUpdate(msg []byte, eventTime int64) (common.AccountEvent, bool) {
	var wrap struct {
		Data struct {
			Symbol        string `json:"s"`
			Side          string `json:"S"`
			OrderType     string `json:"o"`
			Status        string `json:"X"`
			ClientOrderID string `json:"c"`
			LastPrice     string `json:"L"`
			LastQty       string `json:"l"`
			AvgPrice      string `json:"ap"`
			CumQty        string `json:"z"`
			CumQuote      string `json:"Z"`
		} `json:"o"`
	}
	if err := json.Unmarshal(msg, &wrap); err != nil {
		log.Printf("account stream: order update parse error: %v", err)
		return common.AccountEvent{}, false
	}
	report := &common.ExecutionReport{
		ClientID:    wrap.Data.ClientOrderID,
		Symbol:      wrap.Data.Symbol,
		Side:        common.Side(wrap.Data.Side),
		Type:        common.OrderType(wrap.Data.OrderType),
		Status:      mapStatus(strings.ToUpper(wrap.Data.Status)),
		LastPrice:   toFloat(wrap.Data.LastPrice),
		LastQty:     toFloat(wrap.Data.LastQty),
		AvgPrice:    toFloat(wrap.Data.AvgPrice),
		ExecutedQty: toFloat(wrap.Data.CumQty),
		CumQuote:    toFloat(wrap.Data.CumQuote),
		EventTime:   eventTime,
	}
	return common.AccountEvent{Kind: common.EventKindExecutionReport, Report: report, Time: eventTime}, true
}

func parseAccountUpdate(msg []byte, eventTime int64) (common.AccountEvent, bool) {
	var wrap struct {
		Data struct {
			Balances []struct {
				Asset         string `json:"a"`
				BalanceChange string `json:"bc"`
			} `json:"B"`
		} `json:"a"`
	}
	if err := json.Unmarshal(msg, &wrap); err != nil {
		log.Printf("account stream: account update parse error: %v", err)
		return common.AccountEvent{}, false
	}
	deltas := make([]common.BalanceDelta, 0, len(wrap.Data.Balances))
	for _, b := range wrap.Data.Balances {
		deltas = append(deltas, common.BalanceDelta{Asset: b.Asset, Delta: toFloat(b.BalanceChange)})
	}
	return common.AccountEvent{Kind: common.EventKindBalanceUpdate, Balances: deltas, Time: eventTime}, true
}

// KeepAliveInterval is how often callers should renew a listen key; Binance
// expires them after 60 minutes of silence.
const KeepAliveInterval = 30 * time.Minute
