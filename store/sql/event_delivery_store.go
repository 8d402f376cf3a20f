package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-slack/core"
)

const defaultClaimLease = 30 * time.Second

// EventDeliveryStore is a core.DeliveryLedger shared by every process that
// receives events for the same app.
type EventDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*eventDeliveryRecord]
	now  func() time.Time
}

func NewEventDeliveryStore(db *bun.DB) (*EventDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventDeliveryRecord](db, eventDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event delivery repository wiring: %w", err)
		}
	}
	return &EventDeliveryStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithClock replaces the clock used for leases and timestamps.
func (s *EventDeliveryStore) WithClock(now func() time.Time) *EventDeliveryStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *EventDeliveryStore) Claim(
	ctx context.Context,
	eventID string,
	lease time.Duration,
) (core.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: event delivery store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.DeliveryRecord{}, false, core.NewBadInputError("sqlstore: event id is required", nil)
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := s.clock()
	expires := now.Add(lease)

	record := &eventDeliveryRecord{
		ID:             uuid.NewString(),
		EventID:        eventID,
		ClaimID:        uuid.NewString(),
		Status:         core.DeliveryStatusProcessing,
		Attempts:       1,
		LeaseExpiresAt: &expires,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err == nil {
		return eventDeliveryToDomain(record), true, nil
	} else if !isUniqueViolation(err) {
		return core.DeliveryRecord{}, false, err
	}

	claimID := uuid.NewString()
	res, err := s.db.NewUpdate().
		Model((*eventDeliveryRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", core.DeliveryStatusProcessing).
		Set("attempts = attempts + 1").
		Set("lease_expires_at = ?", expires).
		Set("last_error = NULL").
		Set("updated_at = ?", now).
		Where("event_id = ?", eventID).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("status = ?", core.DeliveryStatusRetryReady).
				WhereGroup(" OR ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
					return q.
						Where("status = ?", core.DeliveryStatusProcessing).
						Where("lease_expires_at < ?", now)
				})
		}).
		Exec(ctx)
	if err != nil {
		return core.DeliveryRecord{}, false, err
	}
	existing, err := s.Get(ctx, eventID)
	if err != nil {
		return core.DeliveryRecord{}, false, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return existing, true, nil
	}
	return existing, false, nil
}

func (s *EventDeliveryStore) Complete(ctx context.Context, claimID string) error {
	return s.release(ctx, claimID, core.DeliveryStatusProcessed, nil)
}

func (s *EventDeliveryStore) Fail(ctx context.Context, claimID string, cause error) error {
	return s.release(ctx, claimID, core.DeliveryStatusRetryReady, cause)
}

func (s *EventDeliveryStore) Get(ctx context.Context, eventID string) (core.DeliveryRecord, error) {
	record, found, err := s.GetDelivery(ctx, eventID)
	if err != nil {
		return core.DeliveryRecord{}, err
	}
	if !found {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: event delivery not found for event %q", eventID)
	}
	return record, nil
}

func (s *EventDeliveryStore) GetDelivery(ctx context.Context, eventID string) (core.DeliveryRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: event delivery store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("event_id", "=", strings.TrimSpace(eventID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.DeliveryRecord{}, false, err
	}
	if len(records) == 0 {
		return core.DeliveryRecord{}, false, nil
	}
	return eventDeliveryToDomain(records[0]), true, nil
}

// Purge removes processed records last updated before cutoff.
func (s *EventDeliveryStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event delivery store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*eventDeliveryRecord)(nil)).
		Where("status = ?", core.DeliveryStatusProcessed).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EventDeliveryStore) release(ctx context.Context, claimID string, status string, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.NewBadInputError("sqlstore: claim id is required", nil)
	}
	query := s.db.NewUpdate().
		Model((*eventDeliveryRecord)(nil)).
		Set("status = ?", status).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", s.clock())
	if cause != nil {
		query = query.Set("last_error = ?", truncate(cause.Error(), 1024))
	}
	_, err := query.
		Where("claim_id = ?", claimID).
		Where("status = ?", core.DeliveryStatusProcessing).
		Exec(ctx)
	return err
}

func (s *EventDeliveryStore) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func eventDeliveryToDomain(record *eventDeliveryRecord) core.DeliveryRecord {
	if record == nil {
		return core.DeliveryRecord{}
	}
	return core.DeliveryRecord{
		ID:        record.ID,
		ClaimID:   record.ClaimID,
		EventID:   record.EventID,
		Status:    record.Status,
		Attempts:  record.Attempts,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
