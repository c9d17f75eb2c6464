package risk

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDynamicStop_ATRLong(t *testing.T) {
	levels := DynamicStop(100, 2, 1.5, 0.05, 0, LongSide, StopMethodATR)
	if !almostEqual(levels.Stop, 97) {
		t.Fatalf("stop=%.4f want=97", levels.Stop)
	}
	if !almostEqual(levels.StopDistance, 3) {
		t.Fatalf("stopDistance=%.4f want=3", levels.StopDistance)
	}
	if !almostEqual(levels.RiskPct, 3) {
		t.Fatalf("riskPct=%.4f want=3", levels.RiskPct)
	}
}

func TestDynamicStop_ATRShort(t *testing.T) {
	levels := DynamicStop(100, 2, 1.5, 0.05, 0, ShortSide, StopMethodATR)
	if !almostEqual(levels.Stop, 103) {
		t.Fatalf("stop=%.4f want=103", levels.Stop)
	}
	if !almostEqual(levels.StopDistance, 3) {
		t.Fatalf("stopDistance=%.4f want=3", levels.StopDistance)
	}
}

func TestDynamicStop_PercentLong(t *testing.T) {
	levels := DynamicStop(200, 2, 1.5, 0.05, 0, LongSide, StopMethodPercent)
	if !almostEqual(levels.Stop, 190) {
		t.Fatalf("stop=%.4f want=190", levels.Stop)
	}
}

func TestDynamicStop_SRFallsBackToATR(t *testing.T) {
	levels := DynamicStop(100, 2, 1.5, 0.05, 0, LongSide, StopMethodSR)
	if levels.Method != StopMethodATR {
		t.Fatalf("method=%s want=%s", levels.Method, StopMethodATR)
	}
	if !almostEqual(levels.Stop, 97) {
		t.Fatalf("stop=%.4f want=97", levels.Stop)
	}
}

func TestDynamicStop_SRLong(t *testing.T) {
	levels := DynamicStop(100, 2, 1.5, 0.05, 95, LongSide, StopMethodSR)
	if !almostEqual(levels.Stop, 95*0.99) {
		t.Fatalf("stop=%.4f want=%.4f", levels.Stop, 95*0.99)
	}
}

func TestDynamicStop_UnknownMethodConservative(t *testing.T) {
	// Long: conservative means the highest stop below entry. ATR stop 97
	// beats percent stop 95.
	levels := DynamicStop(100, 2, 1.5, 0.05, 0, LongSide, "bogus")
	if levels.Method != "conservative" {
		t.Fatalf("method=%s want=conservative", levels.Method)
	}
	if !almostEqual(levels.Stop, 97) {
		t.Fatalf("stop=%.4f want=97", levels.Stop)
	}
}

func TestTargetPrice_Long(t *testing.T) {
	if got := TargetPrice(100, 97, 2, 0, LongSide); !almostEqual(got, 106) {
		t.Fatalf("got=%.4f want=106", got)
	}
}

func TestTargetPrice_LongClampedByResistance(t *testing.T) {
	got := TargetPrice(100, 97, 2, 104, LongSide)
	if !almostEqual(got, 104*0.99) {
		t.Fatalf("got=%.4f want=%.4f", got, 104*0.99)
	}
}

func TestTargetPrice_Short(t *testing.T) {
	if got := TargetPrice(100, 103, 2, 0, ShortSide); !almostEqual(got, 94) {
		t.Fatalf("got=%.4f want=94", got)
	}
}

func TestTargetPrice_DegenerateDistance(t *testing.T) {
	if got := TargetPrice(100, 100, 2, 0, LongSide); got != 0 {
		t.Fatalf("got=%.4f want=0", got)
	}
	if got := TargetPrice(100, 101, 2, 0, LongSide); got != 0 {
		t.Fatalf("got=%.4f want=0", got)
	}
}
