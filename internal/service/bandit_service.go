package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/trading"
)

// BanditService exposes arm state and the two mutations: reward and operator
// reset. Malformed rewards are logged and dropped, never partially applied.
type BanditService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *BanditService) List(ctx context.Context) ([]models.BanditArm, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListBanditArms(ctx)
}

func (s *BanditService) Reward(ctx context.Context, family string, pnl float64) (*models.BanditArm, error) {
	if s == nil || s.Repo == nil {
		return nil, trading.ErrBanditUpdate
	}
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		s.log().Warn("dropping malformed bandit reward", zap.String("family", family))
		return nil, fmt.Errorf("%w: reward is not finite", trading.ErrBanditUpdate)
	}
	arm, err := s.Repo.RewardArm(ctx, family, pnl)
	if err != nil {
		if errors.Is(err, trading.ErrBanditUpdate) {
			s.log().Warn("dropping malformed bandit reward",
				zap.String("family", family), zap.Error(err))
			return nil, err
		}
		return nil, err
	}
	if arm == nil {
		return nil, fmt.Errorf("%w: arm %s", trading.ErrNotFound, family)
	}
	return arm, nil
}

func (s *BanditService) Reset(ctx context.Context, family string) (*models.BanditArm, error) {
	if s == nil || s.Repo == nil {
		return nil, trading.ErrBanditUpdate
	}
	arm, err := s.Repo.ResetArm(ctx, family)
	if err != nil {
		return nil, err
	}
	if arm == nil {
		return nil, fmt.Errorf("%w: arm %s", trading.ErrNotFound, family)
	}
	s.log().Info("bandit arm reset", zap.String("family", family))
	return arm, nil
}

func (s *BanditService) log() *zap.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
