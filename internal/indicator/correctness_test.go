package indicator

import (
	"math"
	"math/rand"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := 2000.0
	for i := range out {
		price += rng.NormFloat64() * 2
		out[i] = price
	}
	return out
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// α = 2/(3+1) = 0.5
	// ema[0] = 1
	// ema[1] = 1 + 0.5·(2−1) = 1.5
	// ema[2] = 1.5 + 0.5·(3−1.5) = 2.25
	got := ComputeEMA([]float64{1, 2, 3}, 3)
	want := []float64{1, 1.5, 2.25}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-9)
	}
}

func TestEMA_LengthMatchesInput(t *testing.T) {
	for _, n := range []int{1, 2, 30, 500} {
		series := randomWalk(n, int64(n))
		if got := ComputeEMA(series, 8); len(got) != n {
			t.Errorf("n=%d: EMA length %d", n, len(got))
		}
	}
}

func TestEMA_PeriodOneIsIdentity(t *testing.T) {
	series := randomWalk(50, 7)
	got := ComputeEMA(series, 1)
	for i := range series {
		if got[i] != series[i] {
			t.Fatalf("index %d: EMA(1)=%v, series=%v", i, got[i], series[i])
		}
	}
}

func TestEMA_Reset(t *testing.T) {
	e := NewEMA(5)
	e.Update(10)
	e.Update(20)
	e.Reset()
	e.Update(42)
	assertClose(t, "EMA after reset", e.Value(), 42, 1e-12)
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_Correctness(t *testing.T) {
	// fast=1 tracks price, slow=2 has α=2/3, signal=1 tracks the line.
	// slow: 1, 1+2/3·(2−1) = 1.666667
	// line: 0, 0.333333 ; hist: 0, 0
	res := ComputeMACD([]float64{1, 2}, 1, 2, 1)
	assertClose(t, "line[0]", res.Line[0], 0, 1e-9)
	assertClose(t, "line[1]", res.Line[1], 1.0/3.0, 1e-9)
	assertClose(t, "signal[1]", res.Signal[1], 1.0/3.0, 1e-9)
	assertClose(t, "hist[1]", res.Hist[1], 0, 1e-9)
}

func TestMACD_MatchesEMAComposition(t *testing.T) {
	closes := randomWalk(120, 3)
	res := ComputeMACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)

	line := Sub(ComputeEMA(closes, DefaultMACDFast), ComputeEMA(closes, DefaultMACDSlow))
	signal := ComputeEMA(line, DefaultMACDSignal)
	hist := Sub(line, signal)

	for i := range closes {
		assertClose(t, "line", res.Line[i], line[i], 1e-9)
		assertClose(t, "signal", res.Signal[i], signal[i], 1e-9)
		assertClose(t, "hist", res.Hist[i], hist[i], 1e-9)
	}
}

func TestMACD_Name(t *testing.T) {
	if got := NewMACD(3, 8, 3).Name(); got != "MACD_3_8_3" {
		t.Errorf("name=%s", got)
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period2(t *testing.T) {
	// α = 1/2
	// i=0: no delta → avgGain=0, avgLoss=0 → RSI=0
	// i=1: +1 → avgGain=0.5, avgLoss=0 → RSI≈100
	// i=2: −1 → avgGain=0.25, avgLoss=0.5 → RS=0.5 → RSI=33.3333
	got := ComputeRSI([]float64{1, 2, 1}, 2)
	assertClose(t, "RSI[0]", got[0], 0, 1e-9)
	assertClose(t, "RSI[1]", got[1], 100, 1e-6)
	assertClose(t, "RSI[2]", got[2], 100.0/3.0, 1e-6)
}

func TestRSI_BoundedForRandomSeries(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		for _, v := range ComputeRSI(randomWalk(300, seed), DefaultRSIPeriod) {
			if v < 0 || v > 100 || math.IsNaN(v) {
				t.Fatalf("seed %d: RSI out of range: %v", seed, v)
			}
		}
	}
}

func TestRSI_AllGainsApproaches100(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	if got := ComputeRSI(series, 7).Last(); got < 99.9 {
		t.Errorf("monotonic rise RSI=%.4f, want ~100", got)
	}
}

func TestRSI_Name(t *testing.T) {
	if got := NewRSI(7).Name(); got != "RSI_7" {
		t.Errorf("name=%s", got)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_ClippedWindow(t *testing.T) {
	// period=2, k=2
	// i=0: window [1]   mean=1 std=0 → 1, 1
	// i=1: window [1,3] mean=2 std=1 → 4, 0
	// i=2: window [3,5] mean=4 std=1 → 6, 2
	res := ComputeBollinger([]float64{1, 3, 5}, 2, 2)
	wantUpper := []float64{1, 4, 6}
	wantMiddle := []float64{1, 2, 4}
	wantLower := []float64{1, 0, 2}
	for i := range wantUpper {
		assertClose(t, "upper", res.Upper[i], wantUpper[i], 1e-9)
		assertClose(t, "middle", res.Middle[i], wantMiddle[i], 1e-9)
		assertClose(t, "lower", res.Lower[i], wantLower[i], 1e-9)
	}
}

func TestRollingStd_PopulationDeviation(t *testing.T) {
	// [2,4,4,4,5,5,7,9] has population std 2 over the full window.
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	std := RollingStd(series, 8)
	assertClose(t, "std", std.Last(), 2, 1e-9)
	mean := RollingMean(series, 8)
	assertClose(t, "mean", mean.Last(), 5, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Series helpers
// ────────────────────────────────────────────────────────────

func TestSeries_LastPrev(t *testing.T) {
	s := Series{1, 2, 3}
	if s.Last() != 3 || s.Prev() != 2 {
		t.Errorf("Last=%v Prev=%v", s.Last(), s.Prev())
	}
	var empty Series
	if empty.Last() != 0 || empty.Prev() != 0 {
		t.Error("empty series should report zeros")
	}
}

func TestSub_ShorterPrefix(t *testing.T) {
	got := Sub(Series{5, 6, 7}, Series{1, 1})
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("Sub=%v", got)
	}
}
