package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/addismart/marketplace-backend/pkg/logger"
	"github.com/rs/zerolog"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	l.acquires++
	return !l.held, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.releases++
	return nil
}

type recordingJob struct {
	name string
	err  error
	runs int
}

func (j *recordingJob) Name() string { return j.name }

func (j *recordingJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunCycleExecutesAllJobs(t *testing.T) {
	first := &recordingJob{name: "first"}
	second := &recordingJob{name: "second"}
	lock := &fakeLock{}
	svc := newTestService(t, lock, first, second)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", first.runs, second.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock release, got %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &recordingJob{name: "skipped"}
	lock := &fakeLock{held: true}
	svc := newTestService(t, lock, job)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d times", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("expected no release on skipped cycle, got %d", lock.releases)
	}
}

func TestJobFailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingJob{name: "failing", err: errors.New("boom")}
	healthy := &recordingJob{name: "healthy"}
	svc := newTestService(t, &fakeLock{}, failing, healthy)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if healthy.runs != 1 {
		t.Fatalf("expected healthy job to run after a failure, ran %d times", healthy.runs)
	}
}

func TestRegistryIgnoresNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &recordingJob{name: "real"})
	registry.Register(nil)
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}
