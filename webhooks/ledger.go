package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-slack/core"
)

const (
	DefaultClaimLease = 30 * time.Second
	// DefaultRetention covers the platform redelivery schedule.
	DefaultRetention = time.Hour
)

type ledgerEntry struct {
	record    core.DeliveryRecord
	expiresAt time.Time
}

// MemoryLedger is a process local core.DeliveryLedger keyed by event id.
type MemoryLedger struct {
	Retention time.Duration
	Now       func() time.Time

	mu      sync.Mutex
	entries map[string]ledgerEntry
	claims  map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		Retention: DefaultRetention,
		entries:   map[string]ledgerEntry{},
		claims:    map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Claim(
	_ context.Context,
	eventID string,
	lease time.Duration,
) (core.DeliveryRecord, bool, error) {
	if l == nil {
		return core.DeliveryRecord{}, false, core.NewInternalError("webhooks: delivery ledger is nil", nil)
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.DeliveryRecord{}, false, core.NewBadInputError("webhooks: event id is required", nil)
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLocked()
	l.evictExpiredLocked(now)

	entry, exists := l.entries[eventID]
	if exists {
		switch entry.record.Status {
		case core.DeliveryStatusProcessed:
			return entry.record, false, nil
		case core.DeliveryStatusProcessing:
			if now.Before(entry.expiresAt) {
				return entry.record, false, nil
			}
		}
		delete(l.claims, entry.record.ClaimID)
	} else {
		entry.record = core.DeliveryRecord{
			ID:        uuid.NewString(),
			EventID:   eventID,
			CreatedAt: now,
		}
	}

	entry.record.ClaimID = uuid.NewString()
	entry.record.Status = core.DeliveryStatusProcessing
	entry.record.Attempts++
	entry.record.UpdatedAt = now
	entry.expiresAt = now.Add(lease)
	l.entries[eventID] = entry
	l.claims[entry.record.ClaimID] = eventID
	return entry.record, true, nil
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string) error {
	return l.release(claimID, core.DeliveryStatusProcessed)
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, _ error) error {
	return l.release(claimID, core.DeliveryStatusRetryReady)
}

// Get returns the record for eventID, if any.
func (l *MemoryLedger) Get(eventID string) (core.DeliveryRecord, bool) {
	if l == nil {
		return core.DeliveryRecord{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[strings.TrimSpace(eventID)]
	return entry.record, ok
}

func (l *MemoryLedger) GetDelivery(_ context.Context, eventID string) (core.DeliveryRecord, bool, error) {
	record, ok := l.Get(eventID)
	return record, ok, nil
}

func (l *MemoryLedger) release(claimID string, status string) error {
	if l == nil {
		return core.NewInternalError("webhooks: delivery ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.NewBadInputError("webhooks: claim id is required", nil)
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLocked()
	eventID, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	delete(l.claims, claimID)
	entry, exists := l.entries[eventID]
	if !exists || entry.record.ClaimID != claimID || entry.record.Status != core.DeliveryStatusProcessing {
		return nil
	}
	entry.record.Status = status
	entry.record.UpdatedAt = now
	if status == core.DeliveryStatusProcessed {
		entry.expiresAt = now.Add(l.retention())
	} else {
		entry.expiresAt = now
	}
	l.entries[eventID] = entry
	return nil
}

func (l *MemoryLedger) ensureLocked() {
	if l.entries == nil {
		l.entries = map[string]ledgerEntry{}
	}
	if l.claims == nil {
		l.claims = map[string]string{}
	}
}

func (l *MemoryLedger) evictExpiredLocked(now time.Time) {
	for eventID, entry := range l.entries {
		if entry.record.Status != core.DeliveryStatusProcessed {
			continue
		}
		if !now.Before(entry.expiresAt) {
			delete(l.entries, eventID)
		}
	}
}

func (l *MemoryLedger) retention() time.Duration {
	if l.Retention > 0 {
		return l.Retention
	}
	return DefaultRetention
}

func (l *MemoryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
