package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesignal/internal/backtest"
	"tradesignal/internal/config"
	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/strategy"
	"tradesignal/internal/trading"
)

// BacktestService validates and enqueues runs; the pool does the work. Create
// returns immediately with the run id.
type BacktestService struct {
	Repo     repository.Repository
	Registry *strategy.Registry
	Pool     *backtest.Pool
	Logger   *zap.Logger
	Cfg      config.BacktestConfig
}

type CreateBacktestInput struct {
	StrategyVersionID uint64
	Symbol            string
	Timeframe         string
	Start             time.Time
	End               time.Time
	Params            json.RawMessage
	StartingCapital   float64
}

func (s *BacktestService) Create(ctx context.Context, in CreateBacktestInput) (*models.BacktestRun, error) {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return nil, trading.ErrInvalidParameters
	}
	if in.Symbol == "" || in.Timeframe == "" {
		return nil, fmt.Errorf("%w: symbol and timeframe are required", trading.ErrInvalidParameters)
	}
	if !in.End.After(in.Start) {
		return nil, fmt.Errorf("%w: end must be after start", trading.ErrInvalidParameters)
	}

	version, err := s.Repo.GetStrategyVersion(ctx, in.StrategyVersionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("%w: strategy version %d", trading.ErrNotFound, in.StrategyVersionID)
	}

	params := in.Params
	if len(params) == 0 {
		params = json.RawMessage(version.Params)
	}
	gen, err := s.Registry.Resolve(version.LogicKey)
	if err != nil {
		return nil, err
	}
	if err := gen.ValidateParams(params); err != nil {
		return nil, err
	}

	capital := in.StartingCapital
	if capital <= 0 {
		capital = s.Cfg.StartingCapital
	}
	run := &models.BacktestRun{
		StrategyVersionID: version.ID,
		Symbol:            in.Symbol,
		Timeframe:         in.Timeframe,
		StartDate:         in.Start.UTC(),
		EndDate:           in.End.UTC(),
		Params:            datatypes.JSON(params),
		StartingCapital:   decimal.NewFromFloat(capital),
		Status:            models.BacktestPending,
	}
	if err := s.Repo.CreateBacktestRun(ctx, run); err != nil {
		return nil, err
	}
	s.log().Info("backtest enqueued",
		zap.Uint64("run_id", run.ID),
		zap.String("symbol", run.Symbol),
		zap.Uint64("version_id", version.ID))
	return run, nil
}

// Cancel flips a pending run straight to failed; a running run is interrupted
// through the pool and fails between bars, keeping its partial curve.
func (s *BacktestService) Cancel(ctx context.Context, runID uint64) error {
	if s == nil || s.Repo == nil {
		return trading.ErrInvalidParameters
	}
	run, err := s.Repo.GetBacktestRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: backtest %d", trading.ErrNotFound, runID)
	}
	switch run.Status {
	case models.BacktestPending:
		ok, err := s.Repo.TransitionBacktest(ctx, runID, models.BacktestPending, models.BacktestFailed, "cancelled", nil)
		if err != nil {
			return err
		}
		if !ok {
			// Raced with a worker claim; fall through to the running path.
			if s.Pool != nil && s.Pool.Cancel(runID) {
				return nil
			}
			return fmt.Errorf("%w: backtest %d already claimed", trading.ErrInvalidParameters, runID)
		}
		return nil
	case models.BacktestRunning:
		if s.Pool != nil && s.Pool.Cancel(runID) {
			return nil
		}
		return fmt.Errorf("%w: backtest %d is running elsewhere", trading.ErrInvalidParameters, runID)
	default:
		return fmt.Errorf("%w: backtest %d is %s", trading.ErrInvalidParameters, runID, run.Status)
	}
}

func (s *BacktestService) Get(ctx context.Context, runID uint64) (*models.BacktestRun, error) {
	if s == nil || s.Repo == nil {
		return nil, trading.ErrInvalidParameters
	}
	run, err := s.Repo.GetBacktestRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: backtest %d", trading.ErrNotFound, runID)
	}
	return run, nil
}

// Artifact returns the heavy per-run payload (equity curve, trade log). It is
// stored apart from the run row so list and detail reads stay cheap.
func (s *BacktestService) Artifact(ctx context.Context, runID uint64) (*models.BacktestArtifact, error) {
	if s == nil || s.Repo == nil {
		return nil, trading.ErrInvalidParameters
	}
	run, err := s.Repo.GetBacktestRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: backtest %d", trading.ErrNotFound, runID)
	}
	artifact, err := s.Repo.GetBacktestArtifact(ctx, runID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: backtest %d has no artifact", trading.ErrNotFound, runID)
	}
	return artifact, nil
}

func (s *BacktestService) log() *zap.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
