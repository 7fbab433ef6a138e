package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultGatewayURL = "ws://127.0.0.1:8222/terminal"

type gatewayRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type gatewayResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type loginParams struct {
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type historyParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type dealWire struct {
	Ticket     int64           `json:"ticket"`
	Order      int64           `json:"order"`
	Time       int64           `json:"time"`
	Type       int             `json:"type"`
	Entry      int             `json:"entry"`
	Magic      int64           `json:"magic"`
	PositionID int64           `json:"position_id"`
	Reason     int             `json:"reason"`
	Volume     decimal.Decimal `json:"volume"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Swap       decimal.Decimal `json:"swap"`
	Profit     decimal.Decimal `json:"profit"`
	Fee        decimal.Decimal `json:"fee"`
	Symbol     string          `json:"symbol"`
	Comment    string          `json:"comment"`
	ExternalID string          `json:"external_id"`
}

type accountInfoWire struct {
	Login       int64           `json:"login"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Profit      decimal.Decimal `json:"profit"`
	Margin      decimal.Decimal `json:"margin"`
	MarginFree  decimal.Decimal `json:"margin_free"`
	MarginLevel decimal.Decimal `json:"margin_level"`
	Currency    string          `json:"currency"`
	Leverage    int64           `json:"leverage"`
}

// GatewayClient speaks a JSON request/response protocol over a websocket
// to the terminal gateway sidecar that hosts the actual MT5 terminal.
// Calls are serialized by the session manager above; the internal mutex
// only protects connection replacement.
type GatewayClient struct {
	url    string
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

func NewGatewayClient(url string, logger *zap.Logger) *GatewayClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultGatewayURL
	}
	return &GatewayClient{url: url, logger: logger}
}

func (c *GatewayClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway %s: %w", c.url, err)
	}
	// History responses for a month of deals can be large.
	conn.SetReadLimit(8 << 20)
	c.conn = conn
	if c.logger != nil {
		c.logger.Info("terminal gateway connected", zap.String("url", c.url))
	}
	return nil
}

func (c *GatewayClient) Login(ctx context.Context, login int64, password, server string) error {
	_, err := c.call(ctx, "login", loginParams{Login: login, Password: password, Server: server})
	return err
}

func (c *GatewayClient) AccountInfo(ctx context.Context) (AccountInfo, error) {
	result, err := c.call(ctx, "account_info", nil)
	if err != nil {
		return AccountInfo{}, err
	}
	var wire accountInfoWire
	if err := json.Unmarshal(result, &wire); err != nil {
		return AccountInfo{}, fmt.Errorf("decode account info: %w", err)
	}
	return AccountInfo{
		Login:       wire.Login,
		Balance:     wire.Balance,
		Equity:      wire.Equity,
		Profit:      wire.Profit,
		Margin:      wire.Margin,
		MarginFree:  wire.MarginFree,
		MarginLevel: wire.MarginLevel,
		Currency:    wire.Currency,
		Leverage:    wire.Leverage,
	}, nil
}

func (c *GatewayClient) HistoryDeals(ctx context.Context, from, to time.Time) ([]DealRecord, error) {
	result, err := c.call(ctx, "history_deals", historyParams{From: from.Unix(), To: to.Unix()})
	if err != nil {
		return nil, err
	}
	var wires []dealWire
	if err := json.Unmarshal(result, &wires); err != nil {
		return nil, fmt.Errorf("decode history deals: %w", err)
	}
	deals := make([]DealRecord, 0, len(wires))
	for _, w := range wires {
		deals = append(deals, DealRecord{
			Ticket:     w.Ticket,
			Order:      w.Order,
			Time:       time.Unix(w.Time, 0).UTC(),
			Type:       w.Type,
			Entry:      w.Entry,
			Magic:      w.Magic,
			PositionID: w.PositionID,
			Reason:     w.Reason,
			Volume:     w.Volume,
			Price:      w.Price,
			Commission: w.Commission,
			Swap:       w.Swap,
			Profit:     w.Profit,
			Fee:        w.Fee,
			Symbol:     w.Symbol,
			Comment:    w.Comment,
			ExternalID: w.ExternalID,
		})
	}
	return deals, nil
}

func (c *GatewayClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "shutdown")
	c.conn = nil
	return err
}

func (c *GatewayClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("gateway not connected")
	}

	req := gatewayRequest{ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("gateway write %s: %w", method, err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway read %s: %w", method, err)
	}
	var resp gatewayResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("gateway %s: %s", method, resp.Error)
	}
	return resp.Result, nil
}
