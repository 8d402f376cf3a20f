package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type eventDeliveryRecord struct {
	bun.BaseModel `bun:"table:slack_event_deliveries,alias:sed"`

	ID             string     `bun:"id,pk"`
	EventID        string     `bun:"event_id,notnull"`
	ClaimID        string     `bun:"claim_id,nullzero"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	LastError      string     `bun:"last_error,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
