package gormstore

import (
	"time"

	"gorm.io/gorm"
)

// scenarioRecord is one published or archived scenario version. The graph
// itself lives in the Steps JSON column; the indexed columns exist for
// lookups only. Checksum is the graph checksum computed at write time and
// verified on every load.
type scenarioRecord struct {
	ID uint `gorm:"primaryKey"`

	TenantID   string `gorm:"size:64;uniqueIndex:idx_scenario_version,priority:1;index:idx_scenario_current,priority:1"`
	ScenarioID string `gorm:"size:128;uniqueIndex:idx_scenario_version,priority:2;index:idx_scenario_current,priority:2"`
	Version    int    `gorm:"uniqueIndex:idx_scenario_version,priority:3"`

	Name        string `gorm:"size:255"`
	EntryStepID string `gorm:"size:128"`
	Steps       string `gorm:"type:text"`
	Checksum    string `gorm:"size:16"`
	IsCurrent   bool   `gorm:"index:idx_scenario_current,priority:3"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (scenarioRecord) TableName() string { return "scenarios" }

// planRecord is a persisted migration plan. The transformation map,
// policies, and summary ride in the Payload JSON column; status and the
// version pair are indexed for the planner's duplicate guard and the
// composite mapper's chain walk.
type planRecord struct {
	ID uint `gorm:"primaryKey"`

	PlanID     string `gorm:"size:36;uniqueIndex:idx_plan_tenant,priority:2"`
	TenantID   string `gorm:"size:64;uniqueIndex:idx_plan_tenant,priority:1;index:idx_plan_versions,priority:1"`
	ScenarioID string `gorm:"size:128;index:idx_plan_versions,priority:2"`

	FromVersion int    `gorm:"index:idx_plan_versions,priority:3"`
	ToVersion   int    `gorm:"index:idx_plan_versions,priority:4"`
	Status      string `gorm:"size:16;index"`

	Payload string `gorm:"type:text"`

	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeployedAt *time.Time
}

func (planRecord) TableName() string { return "migration_plans" }

// sessionRecord is a live session. StepHash is the denormalized content
// hash of the active step so deployment can select sessions sitting at an
// anchor with one indexed query instead of loading scenario graphs.
type sessionRecord struct {
	ID uint `gorm:"primaryKey"`

	SessionID string `gorm:"size:64;uniqueIndex"`
	TenantID  string `gorm:"size:64;index:idx_session_anchor,priority:1"`
	Channel   string `gorm:"size:32"`

	ScenarioID string `gorm:"size:128;index:idx_session_anchor,priority:2"`
	Version    int    `gorm:"index:idx_session_anchor,priority:3"`
	StepHash   string `gorm:"size:16;index:idx_session_anchor,priority:4"`

	Payload string `gorm:"type:text"`

	// Timestamps mirror the session's own activity times; deployment's
	// age filter cuts on updated_at, so GORM must not touch them.
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (sessionRecord) TableName() string { return "sessions" }

// AutoMigrate creates or updates the store's tables. Production Postgres
// deployments run the versioned SQL migrations instead; this path serves
// SQLite and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&scenarioRecord{}, &planRecord{}, &sessionRecord{})
}
