package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-slack/core"
	slackmigrations "github.com/goliatone/go-slack/migrations"
	sqlstore "github.com/goliatone/go-slack/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func TestEventDeliveryStore_ClaimLifecycle(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := sqlstore.NewEventDeliveryStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new event delivery store: %v", err)
	}
	store.WithClock(func() time.Time { return now })
	ctx := context.Background()

	first, claimed, err := store.Claim(ctx, "Ev1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got claimed=%v err=%v", claimed, err)
	}
	if first.Status != core.DeliveryStatusProcessing || first.Attempts != 1 || first.ClaimID == "" {
		t.Fatalf("unexpected first record %+v", first)
	}

	if _, claimed, err := store.Claim(ctx, "Ev1", time.Minute); err != nil || claimed {
		t.Fatalf("expected in-flight event to be skipped, got claimed=%v err=%v", claimed, err)
	}

	if err := store.Fail(ctx, first.ClaimID, errors.New("consumer unavailable")); err != nil {
		t.Fatalf("fail claim: %v", err)
	}
	retry, err := store.Get(ctx, "Ev1")
	if err != nil {
		t.Fatalf("get after fail: %v", err)
	}
	if retry.Status != core.DeliveryStatusRetryReady {
		t.Fatalf("expected retry_ready, got %q", retry.Status)
	}

	second, claimed, err := store.Claim(ctx, "Ev1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected retry_ready event to be reclaimed, got claimed=%v err=%v", claimed, err)
	}
	if second.Attempts != 2 || second.ClaimID == first.ClaimID {
		t.Fatalf("unexpected reclaim record %+v", second)
	}

	if err := store.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("complete stale claim: %v", err)
	}
	if current, _ := store.Get(ctx, "Ev1"); current.Status != core.DeliveryStatusProcessing {
		t.Fatalf("expected stale claim to be ignored, got %q", current.Status)
	}

	if err := store.Complete(ctx, second.ClaimID); err != nil {
		t.Fatalf("complete claim: %v", err)
	}
	if _, claimed, err := store.Claim(ctx, "Ev1", time.Minute); err != nil || claimed {
		t.Fatalf("expected processed event to stay deduped, got claimed=%v err=%v", claimed, err)
	}

	now = now.Add(2 * time.Hour)
	purged, err := store.Purge(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged record, got %d", purged)
	}
	if _, found, err := store.GetDelivery(ctx, "Ev1"); err != nil || found {
		t.Fatalf("expected purged record to be gone, got found=%v err=%v", found, err)
	}
	if _, err := store.Get(ctx, "Ev1"); err == nil {
		t.Fatal("expected get of purged record to fail")
	}
}

func TestEventDeliveryStore_ExpiredLeaseIsReclaimable(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := sqlstore.NewEventDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new event delivery store: %v", err)
	}
	store.WithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, claimed, err := store.Claim(ctx, "Ev2", 10*time.Second); err != nil || !claimed {
		t.Fatalf("expected claim, got claimed=%v err=%v", claimed, err)
	}
	now = now.Add(time.Minute)
	record, claimed, err := store.Claim(ctx, "Ev2", 10*time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected expired lease to be reclaimable, got claimed=%v err=%v", claimed, err)
	}
	if record.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", record.Attempts)
	}
}

func TestEventDeliveryStore_Validation(t *testing.T) {
	if _, err := sqlstore.NewEventDeliveryStore(nil); err == nil {
		t.Fatalf("expected nil db error")
	}
	if _, err := sqlstore.NewEventDeliveryStoreFromPersistence("not a client"); err == nil {
		t.Fatalf("expected unsupported client error")
	}
	if _, err := sqlstore.Dialect("oracle"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	for _, driver := range []string{"postgres", "pg", "sqlite3"} {
		if _, err := sqlstore.Dialect(driver); err != nil {
			t.Fatalf("expected dialect for %s: %v", driver, err)
		}
	}

	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store, err := sqlstore.NewEventDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new event delivery store: %v", err)
	}
	if _, _, err := store.Claim(context.Background(), "", time.Minute); err == nil {
		t.Fatalf("expected event id required error")
	}
	if err := store.Complete(context.Background(), " "); err == nil {
		t.Fatalf("expected claim id required error")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:slack-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = slackmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, "sqlite3")
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
