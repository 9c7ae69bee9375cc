package validator_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/validator"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

func newValidator(t *testing.T) (*validator.Validator, *store.MemoryStore, *market.State) {
	t.Helper()
	st := store.NewMemoryStore(zap.NewNop())
	ms := market.NewState()
	v := validator.New(zap.NewNop(), st, ms, ms, decision.NewLogger(st, zap.NewNop()), nil)
	return v, st, ms
}

func activeSignal(snapshot map[string]types.IndicatorValue) *types.Signal {
	return &types.Signal{
		ID:         "sig-1",
		Account:    "acct1",
		Symbol:     "EURUSD",
		Timeframe:  types.TimeframeH1,
		Direction:  types.DirectionBuy,
		Confidence: 75,
		Entry:      decimal.NewFromFloat(1.1000),
		StopLoss:   decimal.NewFromFloat(1.0950),
		TakeProfit: decimal.NewFromFloat(1.1100),
		Status:     types.SignalStatusActive,
		CreatedAt:  time.Now(),
		Snapshot:   snapshot,
	}
}

func signalStatus(t *testing.T, st *store.MemoryStore, id string) types.SignalStatus {
	t.Helper()
	sig, err := st.GetSignal(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSignal failed: %v", err)
	}
	return sig.Status
}

func TestRSIFlipInvalidatesBuySignal(t *testing.T) {
	v, st, ms := newValidator(t)
	ctx := context.Background()

	sig := activeSignal(map[string]types.IndicatorValue{
		"RSI": {Value: 25}, // oversold at creation
	})
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}
	ms.SetIndicator("EURUSD", types.TimeframeH1, "RSI", types.IndicatorValue{Value: 75})

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusExpired {
		t.Fatalf("Expected expired signal, got %s", got)
	}
	decisions := st.Decisions()
	if len(decisions) == 0 {
		t.Fatal("Expected an invalidation decision entry")
	}
	if !strings.Contains(decisions[len(decisions)-1].PrimaryReason, "RSI") {
		t.Errorf("Reason should reference RSI: %q", decisions[len(decisions)-1].PrimaryReason)
	}
}

func TestUnchangedIndicatorsKeepSignalActive(t *testing.T) {
	v, st, ms := newValidator(t)
	ctx := context.Background()

	sig := activeSignal(map[string]types.IndicatorValue{
		"RSI":  {Value: 25},
		"MACD": {Value: 0.4},
	})
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}
	ms.SetIndicator("EURUSD", types.TimeframeH1, "RSI", types.IndicatorValue{Value: 45})
	ms.SetIndicator("EURUSD", types.TimeframeH1, "MACD", types.IndicatorValue{Value: 0.2})

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusActive {
		t.Errorf("Signal should survive unchanged indicators, got %s", got)
	}
}

func TestTransientErrorDefersInvalidation(t *testing.T) {
	v, st, _ := newValidator(t)
	ctx := context.Background()

	// No live RSI reading pushed: evaluation errors are transient and
	// must not expire the signal.
	sig := activeSignal(map[string]types.IndicatorValue{
		"RSI": {Value: 25},
	})
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusActive {
		t.Errorf("Transient error must defer, got %s", got)
	}
}

func TestClosedMarketInvalidatesImmediately(t *testing.T) {
	v, st, ms := newValidator(t)
	ctx := context.Background()

	sig := activeSignal(map[string]types.IndicatorValue{
		"RSI": {Value: 25},
	})
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}
	ms.SetMarketClosed("EURUSD", true)

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusExpired {
		t.Errorf("Closed market must invalidate, got %s", got)
	}
}

func TestMACDHistogramFlipAgainstDirection(t *testing.T) {
	v, st, ms := newValidator(t)
	ctx := context.Background()

	sig := activeSignal(map[string]types.IndicatorValue{
		"MACD": {Value: 0.4}, // positive histogram at creation
	})
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}
	ms.SetIndicator("EURUSD", types.TimeframeH1, "MACD", types.IndicatorValue{Value: -0.2})

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusExpired {
		t.Errorf("MACD sign flip against BUY must invalidate, got %s", got)
	}
}

func TestLabelIndicatorFlip(t *testing.T) {
	v, st, ms := newValidator(t)
	ctx := context.Background()

	sig := activeSignal(map[string]types.IndicatorValue{
		"SUPERTREND": {Label: "bullish"},
	})
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}
	ms.SetIndicator("EURUSD", types.TimeframeH1, "SUPERTREND", types.IndicatorValue{Label: "bearish"})

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusExpired {
		t.Errorf("SuperTrend label flip must invalidate, got %s", got)
	}
}

func TestSignalWithoutSnapshotIsSkipped(t *testing.T) {
	v, st, _ := newValidator(t)
	ctx := context.Background()

	sig := activeSignal(nil)
	if err := st.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("InsertSignal failed: %v", err)
	}

	v.RunOnce(ctx)

	if got := signalStatus(t, st, sig.ID); got != types.SignalStatusActive {
		t.Errorf("Snapshot-less signal must be left alone, got %s", got)
	}
}
