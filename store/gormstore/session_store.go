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

	"github.com/convoflow/flowmigrate/types"
)

// SessionStore is the GORM-backed session store.
type SessionStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionStore creates a session store on db. A nil logger is replaced
// with a noop.
func NewSessionStore(db *gorm.DB, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		db:     db,
		logger: logger.With(zap.String("component", "session_store")),
		now:    time.Now,
	}
}

// GetSession returns a session by id.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var record sessionRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewErrorf(types.ErrSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	return fromSessionRecord(&record)
}

// SaveSession upserts the session, refreshing the indexed columns from
// the payload so anchor queries never see stale positions.
func (s *SessionStore) SaveSession(ctx context.Context, session *types.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", session.ID, err)
	}

	record := &sessionRecord{
		SessionID:  session.ID,
		TenantID:   session.TenantID,
		Channel:    session.Channel,
		ScenarioID: session.ActiveScenarioID,
		Version:    session.ActiveScenarioVersion,
		StepHash:   string(session.ActiveStepHash),
		Payload:    string(payload),
		CreatedAt:  session.CreatedAt,
		UpdatedAt:  session.UpdatedAt,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"channel", "scenario_id", "version", "step_hash", "payload", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

// FindSessionsByStepHash returns the sessions sitting at a step with the
// given content hash in the given scenario version. The scope filter is
// pushed into the query: channels as an IN clause, session age as an
// updated_at cutoff.
func (s *SessionStore) FindSessionsByStepHash(ctx context.Context, tenantID, scenarioID string, version int, hash types.ContentHash, filter types.ScopeFilter) ([]*types.Session, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND scenario_id = ? AND version = ? AND step_hash = ?",
			tenantID, scenarioID, version, string(hash))

	if len(filter.Channels) > 0 {
		query = query.Where("channel IN ?", filter.Channels)
	}
	if filter.MaxSessionAge > 0 {
		query = query.Where("updated_at >= ?", s.now().Add(-filter.MaxSessionAge))
	}

	var records []sessionRecord
	if err := query.Order("session_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("finding sessions at anchor %s: %w", hash, err)
	}

	sessions := make([]*types.Session, 0, len(records))
	for i := range records {
		session, err := fromSessionRecord(&records[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func fromSessionRecord(record *sessionRecord) (*types.Session, error) {
	var session types.Session
	if err := json.Unmarshal([]byte(record.Payload), &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session %s: %w", record.SessionID, err)
	}
	return &session, nil
}
