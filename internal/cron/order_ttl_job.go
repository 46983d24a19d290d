package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/addismart/marketplace-backend/pkg/logger"
)

const defaultPendingTTL = 24 * time.Hour

// pendingExpirer cancels and restocks pending orders older than the cutoff.
type pendingExpirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// OrderTTLJobParams configure the stale-order expiry job.
type OrderTTLJobParams struct {
	Logger     *logger.Logger
	Orders     pendingExpirer
	PendingTTL time.Duration
}

// NewOrderTTLJob builds the cron job that expires stale pending orders.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders pendingExpirer
	ttl    time.Duration
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run cancels pending orders older than the TTL. Each cancellation restocks
// its lines and emits order.cancelled through the expiry path.
func (j *orderTTLJob) Run(ctx context.Context) error {
	expired, err := j.orders.ExpirePending(ctx, j.ttl)
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"count":       expired,
		"pending_ttl": j.ttl.String(),
	})
	j.logg.Info(logCtx, "order expiration loop complete")
	return nil
}
