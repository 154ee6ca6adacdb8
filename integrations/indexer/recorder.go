// Package indexer records staking events in a SQL database so they can be
// queried per account after the fact.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"deltastake/core/events"
	"deltastake/observability"
)

// DefaultLimit caps query results when the caller does not.
const DefaultLimit = 100

// accountKeys lists, in priority order, the attributes naming the account an
// event belongs to.
var accountKeys = []string{"staker", "owner", "to"}

// Open connects to the configured database. Supported drivers are "sqlite"
// and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Recorder implements events.Emitter by persisting every renderable event.
// Failures are logged and counted; they never reach the emitting engine.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewRecorder resumes numbering after the highest stored sequence.
func NewRecorder(db *gorm.DB, logger *slog.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var last struct{ Max uint64 }
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(sequence), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Recorder{db: db, logger: logger, nowFn: time.Now, seq: last.Max}, nil
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	rendered, ok := events.Render(evt)
	if !ok {
		return
	}
	if err := r.record(rendered.Type, rendered.Attributes); err != nil {
		observability.Events().RecordFailure(rendered.Type)
		r.logger.Error("indexer: record event failed", "type", rendered.Type, "error", err)
		return
	}
	observability.Events().RecordEvent(rendered.Type)
}

func (r *Recorder) record(eventType string, attrs map[string]string) error {
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := EventRecord{
		ID:         uuid.New(),
		Sequence:   r.seq + 1,
		Type:       eventType,
		Account:    accountOf(attrs),
		Attributes: string(encoded),
		CreatedAt:  r.nowFn().UTC(),
	}
	if err := r.db.Create(&rec).Error; err != nil {
		return err
	}
	r.seq = rec.Sequence
	return nil
}

// Event is the query view of a stored record.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// ByAccount returns the most recent events of account, newest first.
func (r *Recorder) ByAccount(ctx context.Context, account string, limit int) ([]Event, error) {
	return r.query(ctx, "account = ?", strings.ToLower(strings.TrimSpace(account)), limit)
}

// ByType returns the most recent events of the given type, newest first.
func (r *Recorder) ByType(ctx context.Context, eventType string, limit int) ([]Event, error) {
	return r.query(ctx, "type = ?", eventType, limit)
}

func (r *Recorder) query(ctx context.Context, where string, arg any, limit int) ([]Event, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	var records []EventRecord
	err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("sequence DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("indexer: decode event %d: %w", rec.Sequence, err)
		}
		out = append(out, Event{Sequence: rec.Sequence, Type: rec.Type, Attributes: attrs, CreatedAt: rec.CreatedAt})
	}
	return out, nil
}

func accountOf(attrs map[string]string) string {
	for _, key := range accountKeys {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}
