package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesignal/internal/config"
	"tradesignal/internal/marketdata"
	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/strategy"
)

// BarSource lets tests feed canned history instead of the provider.
type BarSource interface {
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]marketdata.Bar, error)
}

// Pool claims pending runs from the database and executes them. Claims go
// through a row-locked repository operation, so multiple engine instances can
// run pools against the same table without double-claiming.
type Pool struct {
	Repo     repository.Repository
	Bars     BarSource
	Registry *strategy.Registry
	Log      *zap.Logger
	Cfg      config.BacktestConfig
	RiskCfg  config.RiskConfig

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
}

func (p *Pool) Start(ctx context.Context) {
	if p == nil || p.Repo == nil || p.Bars == nil || p.Registry == nil {
		return
	}
	workers := p.Cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	interval := p.Cfg.ClaimInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for i := 0; i < workers; i++ {
		go p.workerLoop(ctx, interval)
	}
}

func (p *Pool) workerLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		run, err := p.Repo.ClaimPendingBacktest(ctx)
		if err != nil {
			p.log().Warn("backtest claim failed", zap.Error(err))
			continue
		}
		if run == nil {
			continue
		}
		p.execute(ctx, run)
	}
}

// Cancel interrupts a running run owned by this process. Pending runs are
// cancelled straight in the database by the service layer.
func (p *Pool) Cancel(runID uint64) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	cancel, ok := p.cancels[runID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *Pool) track(runID uint64, cancel context.CancelFunc) {
	p.mu.Lock()
	if p.cancels == nil {
		p.cancels = map[uint64]context.CancelFunc{}
	}
	p.cancels[runID] = cancel
	p.mu.Unlock()
}

func (p *Pool) untrack(runID uint64) {
	p.mu.Lock()
	delete(p.cancels, runID)
	p.mu.Unlock()
}

func (p *Pool) execute(ctx context.Context, run *models.BacktestRun) {
	runCtx, cancel := context.WithCancel(ctx)
	p.track(run.ID, cancel)
	defer func() {
		cancel()
		p.untrack(run.ID)
	}()

	version, err := p.Repo.GetStrategyVersion(runCtx, run.StrategyVersionID)
	if err == nil && version == nil {
		err = errors.New("strategy version not found")
	}
	if err != nil {
		p.fail(ctx, run.ID, "strategy version unavailable: "+err.Error())
		return
	}
	gen, err := p.Registry.Resolve(version.LogicKey)
	if err != nil {
		p.fail(ctx, run.ID, err.Error())
		return
	}

	params := json.RawMessage(run.Params)
	if len(params) == 0 {
		params = json.RawMessage(version.Params)
	}

	bars, err := p.Bars.GetBars(runCtx, run.Symbol, run.Timeframe, run.StartDate, run.EndDate)
	if err != nil {
		p.fail(ctx, run.ID, err.Error())
		return
	}

	capital, _ := run.StartingCapital.Float64()
	if capital <= 0 {
		capital = p.Cfg.StartingCapital
	}
	result, runErr := Run(runCtx, Input{
		Symbol:            run.Symbol,
		Timeframe:         run.Timeframe,
		Start:             run.StartDate,
		End:               run.EndDate,
		Bars:              bars,
		Generator:         gen,
		StrategyVersionID: version.ID,
		Params:            params,
		Rules:             json.RawMessage(version.CustomRules),
		StartingCapital:   capital,
		SlippageBps:       p.Cfg.SlippageBps,
		TimeStopBars:      p.Cfg.TimeStopBars,
		RiskPerTradePct:   p.RiskCfg.RiskPerTradePct,
		MaxPositionPct:    p.RiskCfg.MaxPositionPct,
	})

	// Partial output is kept even on failure: the artifact row is written
	// before the terminal status.
	p.saveArtifact(ctx, run.ID, result)

	if runErr != nil {
		p.fail(ctx, run.ID, failReason(runErr))
		return
	}

	summary, err := json.Marshal(result.Summary)
	if err != nil {
		p.fail(ctx, run.ID, "marshal metrics: "+err.Error())
		return
	}
	ok, err := p.Repo.TransitionBacktest(ctx, run.ID, models.BacktestRunning, models.BacktestCompleted, "", summary)
	if err != nil || !ok {
		p.log().Warn("backtest completion transition refused",
			zap.Uint64("run_id", run.ID), zap.Error(err))
		return
	}
	p.log().Info("backtest completed",
		zap.Uint64("run_id", run.ID),
		zap.String("symbol", run.Symbol),
		zap.Int("trades", result.Summary.Trades))
}

func (p *Pool) saveArtifact(ctx context.Context, runID uint64, result Result) {
	curve, _ := json.Marshal(result.Curve)
	trades, _ := json.Marshal(result.Trades)
	if err := p.Repo.SaveBacktestArtifact(ctx, &models.BacktestArtifact{
		RunID:       runID,
		EquityCurve: datatypes.JSON(curve),
		TradeLog:    datatypes.JSON(trades),
	}); err != nil {
		p.log().Warn("backtest artifact save failed", zap.Uint64("run_id", runID), zap.Error(err))
	}
}

// failReason collapses a cooperative cancel to the bare "cancelled" marker;
// every other failure keeps its wrapped detail.
func failReason(err error) string {
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}

func (p *Pool) fail(ctx context.Context, runID uint64, reason string) {
	ok, err := p.Repo.TransitionBacktest(ctx, runID, models.BacktestRunning, models.BacktestFailed, reason, nil)
	if err != nil || !ok {
		p.log().Warn("backtest failure transition refused",
			zap.Uint64("run_id", runID), zap.String("reason", reason), zap.Error(err))
		return
	}
	p.log().Info("backtest failed", zap.Uint64("run_id", runID), zap.String("reason", reason))
}

func (p *Pool) log() *zap.Logger {
	if p.Log != nil {
		return p.Log
	}
	return zap.NewNop()
}
