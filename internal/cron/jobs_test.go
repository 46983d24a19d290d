package cron

import (
	"context"
	"testing"
	"time"

	"github.com/addismart/marketplace-backend/pkg/logger"
	"github.com/rs/zerolog"
)

type fakeExpirer struct {
	ttl     time.Duration
	expired int
}

func (f *fakeExpirer) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	f.ttl = olderThan
	return f.expired, nil
}

func TestOrderTTLJobUsesConfiguredTTL(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
		Orders:     expirer,
		PendingTTL: 6 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewOrderTTLJob: %v", err)
	}
	if job.Name() != "order-ttl" {
		t.Fatalf("unexpected job name: %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.ttl != 6*time.Hour {
		t.Fatalf("expected 6h ttl, got %s", expirer.ttl)
	}
}

type fakePruner struct {
	cutoff  time.Time
	deleted int64
}

func (f *fakePruner) DeletePublishedBefore(cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

func TestOutboxRetentionJobPrunesOldRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{deleted: 12}
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
		Repository: pruner,
		Retention:  72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.Add(-72 * time.Hour)
	if !pruner.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, pruner.cutoff)
	}
}
