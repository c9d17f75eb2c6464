package risk

import (
	"errors"
	"testing"

	"tradesignal/internal/trading"
)

func passingState() AccountState {
	return AccountState{
		KYCApproved:            true,
		MarketHoursOnly:        true,
		MinuteOfDay:            600,
		OpenMinute:             570,
		CloseMinute:            960,
		MaxTradeNotional:       25_000,
		DailyNotionalCap:       100_000,
		MaxConcurrentPositions: 5,
		MinConfidence:          0.5,
	}
}

func proposed() ProposedOrder {
	return ProposedOrder{
		UserID:     1,
		Symbol:     "AAPL",
		Side:       LongSide,
		Qty:        10,
		Price:      100,
		Notional:   1000,
		Confidence: 0.8,
		AutoTrade:  true,
	}
}

func TestCheckOrder_Passes(t *testing.T) {
	if rej := CheckOrder(proposed(), passingState()); rej != nil {
		t.Fatalf("rejection=%v want=nil", rej)
	}
}

func TestCheckOrder_BlockedSymbol(t *testing.T) {
	st := passingState()
	st.BlockedSymbols = []string{"aapl"}
	rej := CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckSymbolList {
		t.Fatalf("rejection=%v want check=%s", rej, CheckSymbolList)
	}
}

func TestCheckOrder_AllowListMiss(t *testing.T) {
	st := passingState()
	st.AllowedSymbols = []string{"MSFT", "NVDA"}
	rej := CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckSymbolList {
		t.Fatalf("rejection=%v want check=%s", rej, CheckSymbolList)
	}
}

func TestCheckOrder_MarketHours(t *testing.T) {
	st := passingState()
	st.MinuteOfDay = 400
	rej := CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckMarketHours {
		t.Fatalf("rejection=%v want check=%s", rej, CheckMarketHours)
	}

	// Close minute is exclusive.
	st.MinuteOfDay = 960
	rej = CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckMarketHours {
		t.Fatalf("rejection=%v want check=%s", rej, CheckMarketHours)
	}
}

func TestCheckOrder_KYC(t *testing.T) {
	st := passingState()
	st.KYCApproved = false
	rej := CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckKYC {
		t.Fatalf("rejection=%v want check=%s", rej, CheckKYC)
	}
}

func TestCheckOrder_PerTradeCap(t *testing.T) {
	st := passingState()
	o := proposed()
	o.Notional = 30_000
	rej := CheckOrder(o, st)
	if rej == nil || rej.Check != CheckTradeNotional {
		t.Fatalf("rejection=%v want check=%s", rej, CheckTradeNotional)
	}
}

func TestCheckOrder_DailyCap(t *testing.T) {
	st := passingState()
	st.DailyNotionalCap = 5000
	st.UsedDailyNotional = 3000
	o := proposed()
	o.Notional = 3000
	rej := CheckOrder(o, st)
	if rej == nil || rej.Check != CheckDailyNotional {
		t.Fatalf("rejection=%v want check=%s", rej, CheckDailyNotional)
	}

	// Exactly consuming the remainder is allowed.
	o.Notional = 2000
	if rej := CheckOrder(o, st); rej != nil {
		t.Fatalf("rejection=%v want=nil", rej)
	}
}

func TestCheckOrder_LossCircuitAutoTradeOnly(t *testing.T) {
	st := passingState()
	st.CircuitBroken = true

	o := proposed()
	rej := CheckOrder(o, st)
	if rej == nil || rej.Check != CheckDailyLossCircut {
		t.Fatalf("rejection=%v want check=%s", rej, CheckDailyLossCircut)
	}

	// Manual orders are not gated by the circuit breaker.
	o.AutoTrade = false
	if rej := CheckOrder(o, st); rej != nil {
		t.Fatalf("rejection=%v want=nil", rej)
	}
}

func TestCheckOrder_ConcurrentPositions(t *testing.T) {
	st := passingState()
	st.OpenPositions = 5
	rej := CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckConcurrent {
		t.Fatalf("rejection=%v want check=%s", rej, CheckConcurrent)
	}
}

func TestCheckOrder_ConfidenceAutoTradeOnly(t *testing.T) {
	st := passingState()
	o := proposed()
	o.Confidence = 0.3
	rej := CheckOrder(o, st)
	if rej == nil || rej.Check != CheckConfidence {
		t.Fatalf("rejection=%v want check=%s", rej, CheckConfidence)
	}

	o.AutoTrade = false
	if rej := CheckOrder(o, st); rej != nil {
		t.Fatalf("rejection=%v want=nil", rej)
	}
}

func TestCheckOrder_FirstFailureWins(t *testing.T) {
	// Multiple violations: symbol list is evaluated first.
	st := passingState()
	st.BlockedSymbols = []string{"AAPL"}
	st.KYCApproved = false
	st.CircuitBroken = true
	rej := CheckOrder(proposed(), st)
	if rej == nil || rej.Check != CheckSymbolList {
		t.Fatalf("rejection=%v want check=%s", rej, CheckSymbolList)
	}
}

func TestRejection_UnwrapsToSentinel(t *testing.T) {
	var err error = &Rejection{Check: CheckKYC, Reason: "x"}
	if !errors.Is(err, trading.ErrGuardrailRejected) {
		t.Fatalf("errors.Is(ErrGuardrailRejected)=false want=true")
	}
}
