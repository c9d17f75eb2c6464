package backtest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFailReason_CancelCollapsesToMarker(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, baseInput(bars, &stubGen{}))
	if err == nil {
		t.Fatalf("err=nil want cancellation error")
	}
	if got := failReason(err); got != "cancelled" {
		t.Fatalf("reason=%q want=%q", got, "cancelled")
	}
}

func TestFailReason_OtherErrorsKeepDetail(t *testing.T) {
	err := errors.New("symbol feed gap")
	if got := failReason(err); got != "symbol feed gap" {
		t.Fatalf("reason=%q want underlying message", got)
	}
}
