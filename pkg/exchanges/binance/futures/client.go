// Package futures implements the Binance USDT-M futures REST and stream
// client used by the trading engine.
package futures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"futures-core/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials and request defaults.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
	TimeOffset int64 // ms added to request timestamps to absorb clock skew
}

// Client handles Binance USDT-M futures.
type Client struct {
	cfg        Config
	baseURL    string
	streamHost string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
	base := "https://fapi.binance.com"
	streamHost := "fstream.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
		streamHost = "stream.binancefuture.com"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.TimeOffset == 0 {
		cfg.TimeOffset = 500
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		streamHost: streamHost,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// 2400 request weight per minute on fapi; stay well below it.
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

// SymbolFilters fetches price/quantity precision and tick size for symbol.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (common.SymbolFilters, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return common.SymbolFilters{}, err
	}
	var info struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return common.SymbolFilters{}, common.NewTransportError("exchangeInfo decode", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		f := common.SymbolFilters{
			Symbol:         symbol,
			PricePrecision: s.PricePrecision,
			QtyPrecision:   s.QuantityPrecision,
		}
		for _, filter := range s.Filters {
			if filter.FilterType == "PRICE_FILTER" {
				f.TickSize = toFloat(filter.TickSize)
			}
		}
		return f, nil
	}
	return common.SymbolFilters{}, common.NewTransportError("exchangeInfo", fmt.Errorf("symbol %s not listed", symbol))
}

// Klines returns up to limit historical bars, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doPublic(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, common.NewTransportError("klines decode", err)
	}
	klines := make([]common.Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		klines = append(klines, common.Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(row[0]),
			Open:      toFloat(row[1]),
			High:      toFloat(row[2]),
			Low:       toFloat(row[3]),
			Close:     toFloat(row[4]),
			Volume:    toFloat(row[5]),
			CloseTime: toInt64(row[6]),
		})
	}
	return klines, nil
}

// Balances returns asset -> wallet balance for the futures account.
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, common.NewTransportError("balance decode", err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Asset] = toFloat(r.Balance)
	}
	return out, nil
}

// Positions returns open positions with signed quantities; zero positions
// are filtered out.
func (c *Client) Positions(ctx context.Context, symbol string) ([]common.Position, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, common.NewTransportError("positionRisk decode", err)
	}
	var out []common.Position
	for _, r := range rows {
		qty := toFloat(r.PositionAmt)
		if qty == 0 {
			continue
		}
		out = append(out, common.Position{Symbol: r.Symbol, Quantity: qty, Entry: toFloat(r.EntryPrice)})
	}
	return out, nil
}

// SubmitOrder places an order. Numeric fields in req are pre-formatted
// strings and are sent verbatim.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, common.NewTransportError("order", errors.New("API key/secret required"))
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	if req.Quantity != "" {
		params.Set("quantity", req.Quantity)
	}
	if req.Price != "" {
		params.Set("price", req.Price)
	}
	if req.StopPrice != "" {
		params.Set("stopPrice", req.StopPrice)
	}
	if req.ActivationPrice != "" {
		params.Set("activationPrice", req.ActivationPrice)
	}
	if req.CallbackRate > 0 {
		params.Set("callbackRate", strconv.FormatFloat(req.CallbackRate, 'f', 1, 64))
	}
	if req.TimeInForce != "" {
		params.Set("timeInForce", string(req.TimeInForce))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, common.NewTransportError("order decode", err)
	}
	return common.OrderResult{
		ExchangeOrderID: resp.OrderID,
		ClientID:        resp.ClientOrderID,
		Status:          mapStatus(resp.Status),
	}, nil
}

// CancelOrder cancels one order by its client id.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

// CancelAllOpenOrders cancels every open order for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params)
	return err
}

// OrderStatus fetches the current exchange view of an order.
func (c *Client) OrderStatus(ctx context.Context, symbol, clientID string) (common.OrderSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderSnapshot{}, err
	}
	var resp struct {
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Type          string `json:"type"`
		Status        string `json:"status"`
		Price         string `json:"price"`
		AvgPrice      string `json:"avgPrice"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderSnapshot{}, common.NewTransportError("order status decode", err)
	}
	return common.OrderSnapshot{
		ClientID:    resp.ClientOrderID,
		Symbol:      resp.Symbol,
		Side:        common.Side(resp.Side),
		Type:        common.OrderType(resp.Type),
		Status:      mapStatus(resp.Status),
		Price:       toFloat(resp.Price),
		AvgPrice:    toFloat(resp.AvgPrice),
		OrigQty:     toFloat(resp.OrigQty),
		ExecutedQty: toFloat(resp.ExecutedQty),
	}, nil
}

// CreateListenKey opens a user-data stream session token.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	body, err := c.doKeyed(ctx, http.MethodPost, "/fapi/v1/listenKey")
	if err != nil {
		return "", err
	}
	var out struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", common.NewTransportError("listenKey decode", err)
	}
	return out.ListenKey, nil
}

// KeepAliveListenKey extends the session token before its TTL elapses.
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	_, err := c.doKeyed(ctx, http.MethodPut, "/fapi/v1/listenKey")
	return err
}

// timestamp returns the request timestamp with the configured skew offset.
func (c *Client) timestamp() int64 {
	return time.Now().UnixMilli() + c.cfg.TimeOffset
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, common.NewTransportError(path, err)
	}
	return c.send(req, path)
}

// doKeyed sends an API-key authenticated (but unsigned) request.
func (c *Client) doKeyed(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, common.NewTransportError(path, err)
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.send(req, path)
}

// doSigned handles signing and sending authenticated requests.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	// Signature covers the encoded payload and must come last.
	payload := params.Encode()
	encoded := payload + "&signature=" + sign(payload, c.cfg.APISecret)
	endpoint := c.baseURL + path
	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, common.NewTransportError(path, err)
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.send(req, path)
}

func (c *Client) send(req *http.Request, path string) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, common.NewTransportError(path, err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.NewTransportError(path, err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, common.NewTransportError(path, fmt.Errorf("status %d: %s", res.StatusCode, string(body)))
	}
	return body, nil
}
