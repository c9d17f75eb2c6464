package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/strategy"
	"tradesignal/internal/trading"
)

// RegistryService owns strategy and version lifecycle. Validation is
// synchronous: a version that fails schema or rule checks never reaches the
// database, so the scan loop can trust what it loads.
type RegistryService struct {
	Repo     repository.Repository
	Registry *strategy.Registry
	Logger   *zap.Logger
}

type CreateStrategyInput struct {
	Slug        string
	Name        string
	Description string
	Category    string
	MarketType  string
	UserID      *uint64
	Timeframes  []string
	LogicKey    string
	Params      json.RawMessage
	CustomRules json.RawMessage
}

func (s *RegistryService) CreateStrategy(ctx context.Context, in CreateStrategyInput) (*models.Strategy, *models.StrategyVersion, error) {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return nil, nil, trading.ErrInvalidParameters
	}
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug == "" || strings.TrimSpace(in.Name) == "" {
		return nil, nil, fmt.Errorf("%w: slug and name are required", trading.ErrInvalidParameters)
	}
	if err := s.Registry.Validate(in.LogicKey, in.Params, in.CustomRules); err != nil {
		return nil, nil, err
	}
	if existing, err := s.Repo.GetStrategyBySlug(ctx, slug); err != nil {
		return nil, nil, err
	} else if existing != nil {
		return nil, nil, fmt.Errorf("%w: slug %s already exists", trading.ErrInvalidParameters, slug)
	}

	marketType := strings.TrimSpace(in.MarketType)
	if marketType == "" {
		marketType = "equity"
	}
	timeframes, _ := json.Marshal(in.Timeframes)
	item := &models.Strategy{
		Slug:        slug,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		MarketType:  marketType,
		UserID:      in.UserID,
		Timeframes:  datatypes.JSON(timeframes),
	}
	if err := s.Repo.CreateStrategy(ctx, item); err != nil {
		return nil, nil, err
	}

	version := &models.StrategyVersion{
		StrategyID:  item.ID,
		LogicKey:    strings.TrimSpace(in.LogicKey),
		Params:      datatypes.JSON(in.Params),
		CustomRules: datatypes.JSON(in.CustomRules),
	}
	if err := s.Repo.CreateStrategyVersion(ctx, version, true); err != nil {
		return nil, nil, err
	}
	if err := s.Repo.EnsureBanditArm(ctx, version.LogicKey); err != nil {
		s.log().Warn("bandit arm ensure failed", zap.String("family", version.LogicKey), zap.Error(err))
	}
	s.log().Info("strategy created",
		zap.String("slug", slug),
		zap.String("logic_key", version.LogicKey),
		zap.Uint64("version_id", version.ID))
	return item, version, nil
}

type CreateVersionInput struct {
	StrategyID  uint64
	LogicKey    string
	Params      json.RawMessage
	CustomRules json.RawMessage
	MakeDefault bool
}

func (s *RegistryService) CreateVersion(ctx context.Context, in CreateVersionInput) (*models.StrategyVersion, error) {
	if s == nil || s.Repo == nil || s.Registry == nil {
		return nil, trading.ErrInvalidParameters
	}
	parent, err := s.Repo.GetStrategyByID(ctx, in.StrategyID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: strategy %d", trading.ErrNotFound, in.StrategyID)
	}
	if err := s.Registry.Validate(in.LogicKey, in.Params, in.CustomRules); err != nil {
		return nil, err
	}
	version := &models.StrategyVersion{
		StrategyID:  in.StrategyID,
		LogicKey:    strings.TrimSpace(in.LogicKey),
		Params:      datatypes.JSON(in.Params),
		CustomRules: datatypes.JSON(in.CustomRules),
	}
	if err := s.Repo.CreateStrategyVersion(ctx, version, in.MakeDefault); err != nil {
		return nil, err
	}
	if err := s.Repo.EnsureBanditArm(ctx, version.LogicKey); err != nil {
		s.log().Warn("bandit arm ensure failed", zap.String("family", version.LogicKey), zap.Error(err))
	}
	return version, nil
}

// SetEnabled re-validates the default version before enabling: a strategy
// whose stored params have gone stale against the registry cannot be turned
// on.
func (s *RegistryService) SetEnabled(ctx context.Context, strategyID uint64, enabled bool) error {
	if s == nil || s.Repo == nil {
		return trading.ErrInvalidParameters
	}
	item, err := s.Repo.GetStrategyByID(ctx, strategyID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: strategy %d", trading.ErrNotFound, strategyID)
	}
	if enabled {
		version, err := s.Repo.GetDefaultVersion(ctx, strategyID)
		if err != nil {
			return err
		}
		if version == nil {
			return fmt.Errorf("%w: strategy %d has no default version", trading.ErrInvalidParameters, strategyID)
		}
		if err := s.Registry.Validate(version.LogicKey, json.RawMessage(version.Params), json.RawMessage(version.CustomRules)); err != nil {
			return err
		}
	}
	return s.Repo.SetStrategyEnabled(ctx, strategyID, enabled)
}

func (s *RegistryService) SetDefaultVersion(ctx context.Context, strategyID, versionID uint64) error {
	if s == nil || s.Repo == nil {
		return trading.ErrInvalidParameters
	}
	version, err := s.Repo.GetStrategyVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if version == nil || version.StrategyID != strategyID {
		return fmt.Errorf("%w: version %d for strategy %d", trading.ErrNotFound, versionID, strategyID)
	}
	return s.Repo.SetDefaultVersion(ctx, strategyID, versionID)
}

// UpsertUserSettings validates param overrides against the version's
// generator before persisting.
func (s *RegistryService) UpsertUserSettings(ctx context.Context, item *models.UserStrategySettings) error {
	if s == nil || s.Repo == nil || item == nil {
		return trading.ErrInvalidParameters
	}
	version, err := s.Repo.GetStrategyVersion(ctx, item.StrategyVersionID)
	if err != nil {
		return err
	}
	if version == nil {
		return fmt.Errorf("%w: version %d", trading.ErrNotFound, item.StrategyVersionID)
	}
	if len(item.ParamOverrides) > 0 {
		gen, err := s.Registry.Resolve(version.LogicKey)
		if err != nil {
			return err
		}
		if _, err := strategy.BindParams(gen, nil, json.RawMessage(version.Params), json.RawMessage(item.ParamOverrides)); err != nil {
			return err
		}
	}
	return s.Repo.UpsertUserStrategySettings(ctx, item)
}

func (s *RegistryService) log() *zap.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
