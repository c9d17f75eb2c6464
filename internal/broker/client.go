// Package broker wraps the execution venue's REST API. Reads retry with a
// bounded backoff; order submission never retries, the idempotency token is
// the only replay protection.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"tradesignal/internal/config"
	"tradesignal/internal/trading"
)

type OrderRequest struct {
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Qty              int64           `json:"qty"`
	LimitPrice       decimal.Decimal `json:"limit_price"`
	IdempotencyToken string          `json:"-"`
}

type OrderStatus struct {
	BrokerOrderID string          `json:"order_id"`
	Status        string          `json:"status"`
	FilledQty     int64           `json:"filled_qty"`
	AvgFillPrice  decimal.Decimal `json:"avg_fill_price"`
	// RealizedPnL is reported by the venue once the round trip closes; nil
	// means no realized result yet.
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
}

type Account struct {
	Equity        decimal.Decimal `json:"equity"`
	Cash          decimal.Decimal `json:"cash"`
	OpenPositions int             `json:"open_positions"`
	KYCApproved   bool            `json:"kyc_approved"`
	TradingHalted bool            `json:"trading_halted"`
}

type Client struct {
	// submit has retries disabled; read keeps a bounded retry budget.
	submit *resty.Client
	read   *resty.Client
}

func NewClient(cfg config.BrokerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.ReadRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)

	submit := resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(timeout)
	read := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(backoff * 8)
	if apiKey != "" {
		submit.SetHeader("Authorization", "Bearer "+apiKey)
		read.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Client{submit: submit, read: read}
}

// SubmitOrder forwards one order. It is called exactly once per engine order;
// a transport error after the request left the socket is surfaced as
// ErrBrokerUnavailable and reconciled later via GetOrder with the same token.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderStatus, error) {
	if c == nil || c.submit == nil {
		return nil, trading.ErrBrokerUnavailable
	}
	var out OrderStatus
	resp, err := c.submit.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyToken).
		SetBody(req).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("%w: submit %s: %v", trading.ErrBrokerUnavailable, req.Symbol, err)
	}
	if resp.StatusCode() == http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("%w: submit %s: rejected by venue", trading.ErrGuardrailRejected, req.Symbol)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: submit %s: status %d", trading.ErrBrokerUnavailable, req.Symbol, resp.StatusCode())
	}
	return &out, nil
}

func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if c == nil || c.submit == nil {
		return trading.ErrBrokerUnavailable
	}
	resp, err := c.submit.R().
		SetContext(ctx).
		Delete("/v1/orders/" + brokerOrderID)
	if err != nil {
		return fmt.Errorf("%w: cancel %s: %v", trading.ErrBrokerUnavailable, brokerOrderID, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("%w: cancel %s: status %d", trading.ErrBrokerUnavailable, brokerOrderID, resp.StatusCode())
	}
	return nil
}

func (c *Client) GetOrder(ctx context.Context, brokerOrderID string) (*OrderStatus, error) {
	if c == nil || c.read == nil {
		return nil, trading.ErrBrokerUnavailable
	}
	var out OrderStatus
	resp, err := c.read.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/orders/" + brokerOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %v", trading.ErrBrokerUnavailable, brokerOrderID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: order %s", trading.ErrNotFound, brokerOrderID)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: order %s: status %d", trading.ErrBrokerUnavailable, brokerOrderID, resp.StatusCode())
	}
	return &out, nil
}

func (c *Client) GetAccount(ctx context.Context, userID uint64) (*Account, error) {
	if c == nil || c.read == nil {
		return nil, trading.ErrBrokerUnavailable
	}
	var out Account
	resp, err := c.read.R().
		SetContext(ctx).
		SetQueryParam("user_id", fmt.Sprintf("%d", userID)).
		SetResult(&out).
		Get("/v1/account")
	if err != nil {
		return nil, fmt.Errorf("%w: account %d: %v", trading.ErrBrokerUnavailable, userID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: account %d: status %d", trading.ErrBrokerUnavailable, userID, resp.StatusCode())
	}
	return &out, nil
}
