package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/convoflow/flowmigrate/internal/cache"
	"github.com/convoflow/flowmigrate/migration"
	"github.com/convoflow/flowmigrate/types"
)

// DefaultCacheTTL bounds how long cached scenarios and plans may lag the
// database.
const DefaultCacheTTL = 5 * time.Minute

// ScenarioStore is the GORM-backed scenario and migration-plan store.
type ScenarioStore struct {
	db       *gorm.DB
	cache    *cache.Manager
	cacheTTL time.Duration
	logger   *zap.Logger
}

// ScenarioStoreOption configures a ScenarioStore.
type ScenarioStoreOption func(*ScenarioStore)

// WithCache fronts scenario and plan reads with the given cache manager.
func WithCache(m *cache.Manager) ScenarioStoreOption {
	return func(s *ScenarioStore) { s.cache = m }
}

// WithCacheTTL overrides the cache entry lifetime.
func WithCacheTTL(ttl time.Duration) ScenarioStoreOption {
	return func(s *ScenarioStore) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// NewScenarioStore creates a scenario store on db. A nil logger is
// replaced with a noop.
func NewScenarioStore(db *gorm.DB, logger *zap.Logger, opts ...ScenarioStoreOption) *ScenarioStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ScenarioStore{
		db:       db,
		cacheTTL: DefaultCacheTTL,
		logger:   logger.With(zap.String("component", "scenario_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Scenarios
// =============================================================================

// PublishScenario stores the scenario as the current version of its id.
// The previous current row stays as an archived version.
func (s *ScenarioStore) PublishScenario(ctx context.Context, scenario *types.Scenario) error {
	record, err := toScenarioRecord(scenario, true)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&scenarioRecord{}).
			Where("tenant_id = ? AND scenario_id = ? AND version <> ?",
				scenario.TenantID, scenario.ID, scenario.Version).
			Update("is_current", false).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "scenario_id"}, {Name: "version"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "entry_step_id", "steps", "checksum", "is_current", "updated_at"}),
		}).Create(record).Error
	})
	if err != nil {
		return fmt.Errorf("publishing scenario %s v%d: %w", scenario.ID, scenario.Version, err)
	}

	s.cacheScenario(ctx, scenario, true)
	s.logger.Info("scenario published",
		zap.String("scenario_id", scenario.ID),
		zap.Int("version", scenario.Version),
	)
	return nil
}

// GetScenario returns the current version of a scenario.
func (s *ScenarioStore) GetScenario(ctx context.Context, tenantID, scenarioID string) (*types.Scenario, error) {
	if scenario, ok := s.cachedScenario(ctx, cache.ScenarioKey(tenantID, scenarioID)); ok {
		return scenario, nil
	}

	var record scenarioRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND scenario_id = ? AND is_current = ?", tenantID, scenarioID, true).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrScenarioNotFound, "scenario %s not found for tenant %s", scenarioID, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s: %w", scenarioID, err)
	}

	scenario, err := s.fromScenarioRecord(&record)
	if err != nil {
		return nil, err
	}
	s.cacheScenario(ctx, scenario, true)
	return scenario, nil
}

// GetScenarioVersion returns a specific (possibly archived) version.
func (s *ScenarioStore) GetScenarioVersion(ctx context.Context, tenantID, scenarioID string, version int) (*types.Scenario, error) {
	if scenario, ok := s.cachedScenario(ctx, cache.ScenarioVersionKey(tenantID, scenarioID, version)); ok {
		return scenario, nil
	}

	var record scenarioRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND scenario_id = ? AND version = ?", tenantID, scenarioID, version).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrScenarioNotFound,
			"scenario %s version %d not found for tenant %s", scenarioID, version, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading scenario %s v%d: %w", scenarioID, version, err)
	}

	scenario, err := s.fromScenarioRecord(&record)
	if err != nil {
		return nil, err
	}
	s.cacheScenario(ctx, scenario, false)
	return scenario, nil
}

// ArchiveScenarioVersion upserts a version row without touching the
// current flag.
func (s *ScenarioStore) ArchiveScenarioVersion(ctx context.Context, scenario *types.Scenario) error {
	record, err := toScenarioRecord(scenario, false)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "scenario_id"}, {Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "entry_step_id", "steps", "checksum", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("archiving scenario %s v%d: %w", scenario.ID, scenario.Version, err)
	}

	s.cacheScenario(ctx, scenario, false)
	return nil
}

// =============================================================================
// Migration plans
// =============================================================================

// SaveMigrationPlan creates or updates a plan.
func (s *ScenarioStore) SaveMigrationPlan(ctx context.Context, plan *types.MigrationPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshaling plan %s: %w", plan.ID, err)
	}

	record := &planRecord{
		PlanID:      plan.ID,
		TenantID:    plan.TenantID,
		ScenarioID:  plan.ScenarioID,
		FromVersion: plan.FromVersion,
		ToVersion:   plan.ToVersion,
		Status:      string(plan.Status),
		Payload:     string(payload),
		CreatedAt:   plan.CreatedAt,
		DeployedAt:  plan.DeployedAt,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "plan_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payload", "deployed_at", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("saving plan %s: %w", plan.ID, err)
	}

	s.invalidate(ctx, cache.PlanKey(plan.TenantID, plan.ID))
	return nil
}

// GetMigrationPlan returns a plan by id.
func (s *ScenarioStore) GetMigrationPlan(ctx context.Context, tenantID, planID string) (*types.MigrationPlan, error) {
	if s.cache != nil {
		var plan types.MigrationPlan
		if err := s.cache.GetJSON(ctx, cache.PlanKey(tenantID, planID), &plan); err == nil {
			return &plan, nil
		}
	}

	var record planRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ?", tenantID, planID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrPlanNotFound, "plan %s not found for tenant %s", planID, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", planID, err)
	}

	plan, err := fromPlanRecord(&record)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cache.PlanKey(tenantID, planID), plan, s.cacheTTL); err != nil {
			s.logger.Warn("caching plan failed", zap.String("plan_id", planID), zap.Error(err))
		}
	}
	return plan, nil
}

// ListMigrationPlans returns all plans for a tenant, optionally narrowed
// to one scenario, ordered by creation time.
func (s *ScenarioStore) ListMigrationPlans(ctx context.Context, tenantID, scenarioID string) ([]*types.MigrationPlan, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if scenarioID != "" {
		query = query.Where("scenario_id = ?", scenarioID)
	}

	var records []planRecord
	if err := query.Order("created_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}

	plans := make([]*types.MigrationPlan, 0, len(records))
	for i := range records {
		plan, err := fromPlanRecord(&records[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// GetMigrationPlanForVersions returns the most recent plan for an exact
// version pair, or (nil, nil) when none exists.
func (s *ScenarioStore) GetMigrationPlanForVersions(ctx context.Context, tenantID, scenarioID string, fromVersion, toVersion int) (*types.MigrationPlan, error) {
	var record planRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND scenario_id = ? AND from_version = ? AND to_version = ?",
			tenantID, scenarioID, fromVersion, toVersion).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading plan for versions %d->%d: %w", fromVersion, toVersion, err)
	}
	return fromPlanRecord(&record)
}

// DeleteMigrationPlan removes a plan. Deleting an unknown plan is a no-op.
func (s *ScenarioStore) DeleteMigrationPlan(ctx context.Context, tenantID, planID string) error {
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_id = ?", tenantID, planID).
		Delete(&planRecord{}).Error
	if err != nil {
		return fmt.Errorf("deleting plan %s: %w", planID, err)
	}
	s.invalidate(ctx, cache.PlanKey(tenantID, planID))
	return nil
}

// =============================================================================
// Record mapping
// =============================================================================

func toScenarioRecord(scenario *types.Scenario, current bool) (*scenarioRecord, error) {
	steps, err := json.Marshal(scenario.Steps)
	if err != nil {
		return nil, fmt.Errorf("marshaling steps of %s: %w", scenario.ID, err)
	}
	return &scenarioRecord{
		TenantID:    scenario.TenantID,
		ScenarioID:  scenario.ID,
		Version:     scenario.Version,
		Name:        scenario.Name,
		EntryStepID: scenario.EntryStepID,
		Steps:       string(steps),
		Checksum:    string(migration.HashScenario(scenario)),
		IsCurrent:   current,
	}, nil
}

// fromScenarioRecord rebuilds the scenario and verifies its checksum
// against the value recorded at write time.
func (s *ScenarioStore) fromScenarioRecord(record *scenarioRecord) (*types.Scenario, error) {
	scenario := &types.Scenario{
		ID:          record.ScenarioID,
		TenantID:    record.TenantID,
		Name:        record.Name,
		Version:     record.Version,
		EntryStepID: record.EntryStepID,
	}
	if err := json.Unmarshal([]byte(record.Steps), &scenario.Steps); err != nil {
		return nil, types.NewErrorf(types.ErrChecksumMismatch,
			"scenario %s v%d steps are unreadable: %v", record.ScenarioID, record.Version, err)
	}

	if got := string(migration.HashScenario(scenario)); got != record.Checksum {
		s.logger.Error("scenario checksum mismatch",
			zap.String("scenario_id", record.ScenarioID),
			zap.Int("version", record.Version),
			zap.String("stored", record.Checksum),
			zap.String("computed", got),
		)
		return nil, types.NewErrorf(types.ErrChecksumMismatch,
			"scenario %s v%d failed checksum validation", record.ScenarioID, record.Version)
	}
	return scenario, nil
}

func fromPlanRecord(record *planRecord) (*types.MigrationPlan, error) {
	var plan types.MigrationPlan
	if err := json.Unmarshal([]byte(record.Payload), &plan); err != nil {
		return nil, fmt.Errorf("unmarshaling plan %s: %w", record.PlanID, err)
	}
	return &plan, nil
}

// =============================================================================
// Cache helpers
// =============================================================================

func (s *ScenarioStore) cachedScenario(ctx context.Context, key string) (*types.Scenario, bool) {
	if s.cache == nil {
		return nil, false
	}
	var scenario types.Scenario
	if err := s.cache.GetJSON(ctx, key, &scenario); err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("scenario cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &scenario, true
}

func (s *ScenarioStore) cacheScenario(ctx context.Context, scenario *types.Scenario, current bool) {
	if s.cache == nil {
		return
	}
	keys := []string{cache.ScenarioVersionKey(scenario.TenantID, scenario.ID, scenario.Version)}
	if current {
		keys = append(keys, cache.ScenarioKey(scenario.TenantID, scenario.ID))
	}
	for _, key := range keys {
		if err := s.cache.SetJSON(ctx, key, scenario, s.cacheTTL); err != nil {
			s.logger.Warn("caching scenario failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *ScenarioStore) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
