package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesignal/internal/config"
	"tradesignal/internal/features"
	"tradesignal/internal/marketdata"
	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/screener"
	"tradesignal/internal/strategy"
)

// MarketData is the slice of the provider the scanner needs.
type MarketData interface {
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]marketdata.Bar, error)
	GetQuote(ctx context.Context, symbol string) (marketdata.Quote, error)
	GetDepth(ctx context.Context, symbol string) (marketdata.DepthSnapshot, error)
}

// SignalBroadcaster pushes freshly persisted signals to live subscribers.
type SignalBroadcaster interface {
	BroadcastSignal(sig models.Signal)
}

// ScanService runs the screener funnel and signal generation. Symbols are
// processed concurrently with no shared mutable state; a symbol that fails
// annotates the result and never aborts the batch.
type ScanService struct {
	Repo      repository.Repository
	Market    MarketData
	Registry  *strategy.Registry
	Broadcast SignalBroadcaster
	Logger    *zap.Logger

	ScreenerCfg config.ScreenerConfig
	Defaults    map[string]any
	SignalTTL   time.Duration
}

func (s *ScanService) ScanOnce(ctx context.Context) (*screener.Result, error) {
	if s == nil || s.Repo == nil || s.Market == nil || s.Registry == nil {
		return nil, nil
	}
	universe := s.ScreenerCfg.Universe
	if len(universe) == 0 {
		return &screener.Result{}, nil
	}

	cands := s.collect(ctx, universe)
	result := screener.Screen(cands, s.ScreenerCfg)

	if err := s.persistFunnel(ctx, result); err != nil {
		s.log().Warn("funnel snapshot persist failed", zap.Error(err))
	}

	bySymbol := make(map[string]*features.FeatureSet, len(cands))
	for _, c := range cands {
		if c.Err == nil && c.Features != nil {
			bySymbol[c.Symbol] = c.Features
		}
	}
	if err := s.generate(ctx, result.Scored, bySymbol); err != nil {
		return &result, err
	}
	return &result, nil
}

// collect fetches and extracts features for every symbol, bounded by the
// configured concurrency.
func (s *ScanService) collect(ctx context.Context, universe []string) []screener.Candidate {
	workers := s.ScreenerCfg.MaxConcurrentScans
	if workers <= 0 {
		workers = 8
	}
	lookback := s.ScreenerCfg.LookbackBars
	if lookback <= 0 {
		lookback = 120
	}
	timeframe := s.ScreenerCfg.Timeframe
	if timeframe == "" {
		timeframe = "5m"
	}

	out := make([]screener.Candidate, len(universe))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, symbol := range universe {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = s.scanSymbol(ctx, symbol, timeframe, lookback)
		}(i, symbol)
	}
	wg.Wait()
	return out
}

func (s *ScanService) scanSymbol(ctx context.Context, symbol, timeframe string, lookback int) screener.Candidate {
	period := marketdata.TimeframeDuration(timeframe)
	if period <= 0 {
		period = 5 * time.Minute
	}
	end := time.Now().UTC()
	// Triple the nominal window so market closures do not starve the
	// indicator warmup.
	start := end.Add(-time.Duration(lookback) * period * 3)
	bars, err := s.Market.GetBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return screener.Candidate{Symbol: symbol, Err: err}
	}

	var quotePtr *marketdata.Quote
	var depthPtr *marketdata.DepthSnapshot
	if quote, err := s.Market.GetQuote(ctx, symbol); err == nil {
		quotePtr = &quote
	}
	if depth, err := s.Market.GetDepth(ctx, symbol); err == nil {
		depthPtr = &depth
	}

	fs, err := features.Extract(symbol, bars, quotePtr, depthPtr, s.ScreenerCfg.MinBars)
	if err != nil {
		return screener.Candidate{Symbol: symbol, Err: err}
	}
	return screener.Candidate{Symbol: symbol, Features: &fs}
}

func (s *ScanService) persistFunnel(ctx context.Context, result screener.Result) error {
	scored, _ := json.Marshal(result.Scored)
	return s.Repo.InsertFunnelSnapshot(ctx, &models.FunnelSnapshot{
		UniverseSize:    result.Funnel.UniverseSize,
		FailedData:      result.Funnel.FailedData,
		FailedLiquidity: result.Funnel.FailedLiquidity,
		FailedMomentum:  result.Funnel.FailedMomentum,
		FailedVol:       result.Funnel.FailedVol,
		FailedMicro:     result.Funnel.FailedMicro,
		BelowThreshold:  result.Funnel.BelowThreshold,
		Passed:          result.Funnel.Passed,
		Scored:          datatypes.JSON(scored),
	})
}

// generate runs every enabled default version over the scored survivors.
func (s *ScanService) generate(ctx context.Context, scored []screener.ScoredSymbol, bySymbol map[string]*features.FeatureSet) error {
	if len(scored) == 0 {
		return nil
	}
	versions, err := s.Repo.ListEnabledDefaultVersions(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return nil
	}

	timeframe := s.ScreenerCfg.Timeframe
	if timeframe == "" {
		timeframe = "5m"
	}

	var batch []models.Signal
	for _, version := range versions {
		gen, err := s.Registry.Resolve(version.LogicKey)
		if err != nil {
			s.log().Warn("skipping version with unknown logic key",
				zap.Uint64("version_id", version.ID), zap.String("logic_key", version.LogicKey))
			continue
		}
		params, err := strategy.BindParams(gen, s.Defaults, json.RawMessage(version.Params), nil)
		if err != nil {
			s.log().Warn("skipping version with unbindable params",
				zap.Uint64("version_id", version.ID), zap.Error(err))
			continue
		}
		for _, sc := range scored {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fs, ok := bySymbol[sc.Symbol]
			if !ok {
				continue
			}
			asOf := fs.AsOf
			signals, err := gen.Generate(strategy.GenInput{
				StrategyVersionID: version.ID,
				Symbol:            sc.Symbol,
				Timeframe:         timeframe,
				AsOf:              asOf,
				Features:          *fs,
				Params:            params,
				Rules:             json.RawMessage(version.CustomRules),
			})
			if err != nil {
				s.log().Warn("signal generation failed",
					zap.String("symbol", sc.Symbol),
					zap.Uint64("version_id", version.ID),
					zap.Error(err))
				continue
			}
			for i := range signals {
				if s.SignalTTL > 0 {
					expiry := asOf.Add(s.SignalTTL)
					signals[i].ExpiresAt = &expiry
				}
				batch = append(batch, signals[i])
			}
		}
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.Repo.InsertSignals(ctx, batch); err != nil {
		return err
	}
	if s.Broadcast != nil {
		for _, sig := range batch {
			s.Broadcast.BroadcastSignal(sig)
		}
	}
	s.log().Info("scan produced signals",
		zap.Int("scored", len(scored)),
		zap.Int("versions", len(versions)),
		zap.Int("signals", len(batch)))
	return nil
}

func (s *ScanService) CleanupExpiredSignals(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	n, err := s.Repo.DeleteExpiredSignals(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		s.log().Info("expired signals removed", zap.Int64("count", n))
	}
	return nil
}

func (s *ScanService) log() *zap.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
