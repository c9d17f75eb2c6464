package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesignal/internal/broker"
	"tradesignal/internal/config"
	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/risk"
	"tradesignal/internal/trading"
)

// Broker is the slice of the venue client the order paths need.
type Broker interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderStatus, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOrder(ctx context.Context, brokerOrderID string) (*broker.OrderStatus, error)
	GetAccount(ctx context.Context, userID uint64) (*broker.Account, error)
}

// OrderRouter is the single path an order takes to the venue: idempotent
// record, guardrail chain, atomic budget consumption, broker submit. Every
// rejection is persisted with the failing check so the audit trail is
// complete.
type OrderRouter struct {
	Repo   repository.Repository
	Broker Broker
	Logger *zap.Logger
	Risk   config.RiskConfig
	DryRun bool
}

type SubmitOrderInput struct {
	UserID           uint64
	SignalID         *uint64
	Symbol           string
	Side             string
	Qty              int64
	Price            decimal.Decimal
	IdempotencyToken string
	Confidence       float64
	AutoTrade        bool
}

func (s *OrderRouter) Submit(ctx context.Context, in SubmitOrderInput) (*models.Order, error) {
	if s == nil || s.Repo == nil || s.Broker == nil {
		return nil, trading.ErrBrokerUnavailable
	}
	if in.UserID == 0 || in.Qty <= 0 || in.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: user, qty and price are required", trading.ErrInvalidParameters)
	}
	if strings.TrimSpace(in.IdempotencyToken) == "" {
		return nil, fmt.Errorf("%w: idempotency token is required", trading.ErrInvalidParameters)
	}

	notional := in.Price.Mul(decimal.NewFromInt(in.Qty))
	order, created, err := s.Repo.CreateOrderIdempotent(ctx, &models.Order{
		UserID:           in.UserID,
		SignalID:         in.SignalID,
		Symbol:           strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Side:             in.Side,
		Qty:              in.Qty,
		Price:            in.Price,
		Notional:         notional,
		IdempotencyToken: in.IdempotencyToken,
		Status:           models.OrderPending,
	})
	if err != nil {
		return nil, err
	}
	// A replayed token returns the original outcome without touching the
	// guardrails or the budget again.
	if !created {
		return order, nil
	}

	if rej := s.runGuardrails(ctx, in, notional); rej != nil {
		s.reject(ctx, order, rej.Error())
		return order, rej
	}

	day := time.Now().UTC()
	dailyCap := decimal.NewFromFloat(s.Risk.DailyNotionalCap)
	consumed, err := s.Repo.ConsumeDailyNotional(ctx, in.UserID, day, notional, dailyCap, in.AutoTrade)
	if err != nil {
		s.reject(ctx, order, "daily budget check failed: "+err.Error())
		return order, err
	}
	if !consumed {
		rej := &risk.Rejection{Check: risk.CheckDailyNotional, Reason: "daily notional cap exhausted"}
		s.reject(ctx, order, rej.Error())
		return order, rej
	}

	if s.DryRun {
		s.log().Info("dry run order accepted",
			zap.Uint64("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.Int64("qty", order.Qty))
		now := time.Now().UTC()
		_ = s.Repo.UpdateOrderStatus(ctx, order.ID, models.OrderSubmitted, map[string]any{"submitted_at": now})
		order.Status = models.OrderSubmitted
		order.SubmittedAt = &now
		return order, nil
	}

	status, err := s.Broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:           order.Symbol,
		Side:             order.Side,
		Qty:              order.Qty,
		LimitPrice:       order.Price,
		IdempotencyToken: order.IdempotencyToken,
	})
	if err != nil {
		// The consumed budget is handed back; the order row stays as the
		// audit record of the attempt.
		if relErr := s.Repo.ReleaseDailyNotional(ctx, in.UserID, day, notional); relErr != nil {
			s.log().Error("daily budget release failed",
				zap.Uint64("order_id", order.ID), zap.Error(relErr))
		}
		reason := "broker submit failed: " + err.Error()
		if errors.Is(err, trading.ErrGuardrailRejected) {
			reason = err.Error()
		}
		s.reject(ctx, order, reason)
		return order, err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"submitted_at":    now,
		"broker_order_id": status.BrokerOrderID,
	}
	if err := s.Repo.UpdateOrderStatus(ctx, order.ID, models.OrderSubmitted, updates); err != nil {
		s.log().Error("order status update failed", zap.Uint64("order_id", order.ID), zap.Error(err))
	}
	order.Status = models.OrderSubmitted
	order.SubmittedAt = &now
	order.BrokerOrderID = &status.BrokerOrderID

	if in.SignalID != nil {
		if err := s.Repo.AttachBrokerOrder(ctx, *in.SignalID, status.BrokerOrderID); err != nil {
			s.log().Warn("signal broker-order link failed",
				zap.Uint64("signal_id", *in.SignalID), zap.Error(err))
		}
	}

	s.log().Info("order submitted",
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("broker_order_id", status.BrokerOrderID))
	return order, nil
}

func (s *OrderRouter) runGuardrails(ctx context.Context, in SubmitOrderInput, notional decimal.Decimal) *risk.Rejection {
	account, err := s.Broker.GetAccount(ctx, in.UserID)
	if err != nil {
		return &risk.Rejection{Check: risk.CheckKYC, Reason: "account state unavailable"}
	}

	settings, err := s.Repo.GetAutoTradingSettings(ctx, in.UserID)
	if err != nil {
		return &risk.Rejection{Check: risk.CheckKYC, Reason: "settings unavailable"}
	}

	usage, err := s.Repo.GetDailyRiskUsage(ctx, in.UserID, time.Now().UTC())
	if err != nil {
		return &risk.Rejection{Check: risk.CheckDailyNotional, Reason: "usage unavailable"}
	}

	openOrders, err := s.Repo.CountOpenOrders(ctx, in.UserID)
	if err != nil {
		return &risk.Rejection{Check: risk.CheckConcurrent, Reason: "open order count unavailable"}
	}

	st := risk.AccountState{
		KYCApproved:      account.KYCApproved && !account.TradingHalted,
		MaxTradeNotional: s.Risk.MaxTradeNotional,
		DailyNotionalCap: s.Risk.DailyNotionalCap,
		OpenPositions:    account.OpenPositions + int(openOrders),
		MinuteOfDay:      easternMinuteOfDay(time.Now()),
		OpenMinute:       s.Risk.MarketOpenMinute,
		CloseMinute:      s.Risk.MarketCloseMinute,
	}
	if usage != nil {
		used, _ := usage.UsedNotional.Float64()
		st.UsedDailyNotional = used
		st.CircuitBroken = usage.CircuitBroken
	}
	if settings != nil {
		st.AllowedSymbols = decodeSymbolList(settings.AllowedSymbols)
		st.BlockedSymbols = decodeSymbolList(settings.BlockedSymbols)
		st.MarketHoursOnly = settings.MarketHoursOnly
		st.MaxConcurrentPositions = settings.MaxConcurrentPositions
		st.MinConfidence = settings.MinConfidence
	}

	nf, _ := notional.Float64()
	pf, _ := in.Price.Float64()
	return risk.CheckOrder(risk.ProposedOrder{
		UserID:     in.UserID,
		Symbol:     in.Symbol,
		Side:       in.Side,
		Qty:        in.Qty,
		Price:      pf,
		Notional:   nf,
		Confidence: in.Confidence,
		AutoTrade:  in.AutoTrade,
	}, st)
}

func (s *OrderRouter) reject(ctx context.Context, order *models.Order, reason string) {
	order.Status = models.OrderRejected
	order.RejectReason = reason
	if err := s.Repo.UpdateOrderStatus(ctx, order.ID, models.OrderRejected, map[string]any{
		"reject_reason": reason,
	}); err != nil {
		s.log().Error("order rejection persist failed", zap.Uint64("order_id", order.ID), zap.Error(err))
	}
	s.log().Info("order rejected",
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("reason", reason))
}

func decodeSymbolList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func easternMinuteOfDay(t time.Time) int {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

func (s *OrderRouter) log() *zap.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
