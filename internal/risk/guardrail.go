package risk

import (
	"fmt"
	"strings"

	"tradesignal/internal/trading"
)

// Guardrail check names, in evaluation order. The first failure wins; later
// checks are never evaluated.
const (
	CheckSymbolList      = "symbol_list"
	CheckMarketHours     = "market_hours"
	CheckKYC             = "kyc_approved"
	CheckTradeNotional   = "per_trade_notional_cap"
	CheckDailyNotional   = "daily_notional_cap"
	CheckDailyLossCircut = "daily_loss_circuit"
	CheckConcurrent      = "concurrent_positions"
	CheckConfidence      = "min_confidence"
)

type ProposedOrder struct {
	UserID     uint64
	Symbol     string
	Side       string
	Qty        int64
	Price      float64
	Notional   float64
	Confidence float64
	// AutoTrade marks orders from the auto-trading path; the confidence
	// threshold applies only there.
	AutoTrade bool
}

// AccountState is a point-in-time snapshot assembled by the router. The daily
// notional figure here is advisory; the authoritative consumption happens in
// the row-locked repository update.
type AccountState struct {
	KYCApproved bool

	AllowedSymbols []string
	BlockedSymbols []string

	MarketHoursOnly bool
	MinuteOfDay     int
	OpenMinute      int
	CloseMinute     int

	MaxTradeNotional  float64
	DailyNotionalCap  float64
	UsedDailyNotional float64
	CircuitBroken     bool

	OpenPositions          int
	MaxConcurrentPositions int

	MinConfidence float64
}

// Rejection names the single failing check; it satisfies error and unwraps to
// trading.ErrGuardrailRejected.
type Rejection struct {
	Check  string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("guardrail rejected (%s): %s", r.Check, r.Reason)
}

func (r *Rejection) Unwrap() error { return trading.ErrGuardrailRejected }

// CheckOrder runs the guardrail chain in fixed order and returns the first
// failure, or nil when the order may proceed to budget consumption.
func CheckOrder(o ProposedOrder, st AccountState) *Rejection {
	symbol := strings.ToUpper(strings.TrimSpace(o.Symbol))

	for _, blocked := range st.BlockedSymbols {
		if strings.EqualFold(blocked, symbol) {
			return &Rejection{Check: CheckSymbolList, Reason: fmt.Sprintf("symbol %s is blocked", symbol)}
		}
	}
	if len(st.AllowedSymbols) > 0 {
		allowed := false
		for _, a := range st.AllowedSymbols {
			if strings.EqualFold(a, symbol) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &Rejection{Check: CheckSymbolList, Reason: fmt.Sprintf("symbol %s is not on the allow list", symbol)}
		}
	}

	if st.MarketHoursOnly {
		if st.MinuteOfDay < st.OpenMinute || st.MinuteOfDay >= st.CloseMinute {
			return &Rejection{Check: CheckMarketHours, Reason: "outside regular market hours"}
		}
	}

	if !st.KYCApproved {
		return &Rejection{Check: CheckKYC, Reason: "account is not KYC approved"}
	}

	if st.MaxTradeNotional > 0 && o.Notional > st.MaxTradeNotional {
		return &Rejection{
			Check:  CheckTradeNotional,
			Reason: fmt.Sprintf("order notional %.2f exceeds per-trade cap %.2f", o.Notional, st.MaxTradeNotional),
		}
	}

	if st.DailyNotionalCap > 0 && st.UsedDailyNotional+o.Notional > st.DailyNotionalCap {
		return &Rejection{
			Check: CheckDailyNotional,
			Reason: fmt.Sprintf("order notional %.2f exceeds remaining daily budget %.2f",
				o.Notional, st.DailyNotionalCap-st.UsedDailyNotional),
		}
	}

	if o.AutoTrade && st.CircuitBroken {
		return &Rejection{Check: CheckDailyLossCircut, Reason: "daily loss circuit breaker tripped"}
	}

	if st.MaxConcurrentPositions > 0 && st.OpenPositions >= st.MaxConcurrentPositions {
		return &Rejection{
			Check:  CheckConcurrent,
			Reason: fmt.Sprintf("open positions %d at limit %d", st.OpenPositions, st.MaxConcurrentPositions),
		}
	}

	if o.AutoTrade && st.MinConfidence > 0 && o.Confidence < st.MinConfidence {
		return &Rejection{
			Check:  CheckConfidence,
			Reason: fmt.Sprintf("confidence %.2f below threshold %.2f", o.Confidence, st.MinConfidence),
		}
	}

	return nil
}
