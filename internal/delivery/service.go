package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/internal/orders"
	dbpkg "github.com/addismart/marketplace-backend/pkg/db"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/outbox"
	"github.com/addismart/marketplace-backend/pkg/outbox/payloads"
)

// liveDeliveryConstraint names the partial unique index enforcing one
// non-terminal delivery per order.
const liveDeliveryConstraint = "ux_deliveries_order_live"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderCompleter interface {
	MarkDeliveredTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// AssignInput captures an admin dispatching an order to an agent.
type AssignInput struct {
	OrderID    uuid.UUID
	AgentID    uuid.UUID
	AssignedBy uuid.UUID
}

// UpdateStatusInput advances a delivery along the handoff chain.
type UpdateStatusInput struct {
	DeliveryID uuid.UUID
	AgentID    uuid.UUID
	NewStatus  enums.DeliveryStatus
	Code       string
	Notes      *string
}

// Service manages delivery assignment and the code-verified handoff chain.
type Service interface {
	Assign(ctx context.Context, input AssignInput) (*models.Delivery, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Delivery, error)
	ListAssigned(ctx context.Context, agentID uuid.UUID) ([]models.Delivery, error)
	Get(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error)
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	completer orderCompleter
	tx        txRunner
	outbox    outboxPublisher
}

// NewService builds a delivery service with the required dependencies.
func NewService(repo Repository, orderRepo orders.Repository, completer orderCompleter, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if completer == nil {
		return nil, fmt.Errorf("order completer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      repo,
		orderRepo: orderRepo,
		completer: completer,
		tx:        tx,
		outbox:    outboxSvc,
	}, nil
}

// Assign dispatches a paid order to an agent. The partial unique index on
// deliveries(order_id) rejects a second live assignment; the insert is the
// race arbiter, not a pre-read.
func (s *service) Assign(ctx context.Context, input AssignInput) (*models.Delivery, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}

	var created *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		repo := s.repo.WithTx(tx)

		order, err := orderRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.IsDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already delivered")
		}
		if order.Status != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot assign delivery for %s order", order.Status))
		}

		now := time.Now()
		row := &models.Delivery{
			ID:         uuid.New(),
			OrderID:    order.ID,
			AgentID:    input.AgentID,
			AssignedBy: input.AssignedBy,
			Status:     enums.DeliveryStatusAssigned,
			AssignedAt: now,
		}
		if err := repo.Create(ctx, row); err != nil {
			if dbpkg.IsUniqueViolation(err, liveDeliveryConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active delivery")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
		}

		created = row
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryAssigned,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   row.ID,
			Actor:         &outbox.ActorRef{UserID: input.AssignedBy, Role: enums.MemberRoleAdmin.String()},
			Data: payloads.DeliveryAssigned{
				DeliveryID: row.ID,
				OrderID:    row.OrderID,
				AgentID:    row.AgentID,
				AssignedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateStatus moves the delivery along assigned -> picked_up -> in_transit ->
// delivered (failed from any pre-terminal state). Completing a handoff burns
// the order's confirmation code and marks the order delivered in the same
// transaction.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Delivery, error) {
	if input.DeliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	if !input.NewStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status")
	}
	if input.NewStatus == enums.DeliveryStatusAssigned {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot move a delivery back to assigned")
	}

	var result *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orderRepo.WithTx(tx)

		row, err := repo.FindByID(ctx, input.DeliveryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
		}
		if input.AgentID != uuid.Nil && row.AgentID != input.AgentID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "delivery not assigned to agent")
		}
		if !row.Status.CanTransitionTo(input.NewStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move delivery from %s to %s", row.Status, input.NewStatus))
		}

		now := time.Now()
		updates := map[string]any{"status": input.NewStatus}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
		}
		switch input.NewStatus {
		case enums.DeliveryStatusPickedUp:
			updates["picked_up_at"] = now
		case enums.DeliveryStatusDelivered:
			updates["delivered_at"] = now
		case enums.DeliveryStatusFailed:
			updates["failed_at"] = now
		}

		if input.NewStatus == enums.DeliveryStatusDelivered {
			code := strings.TrimSpace(input.Code)
			if code == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "confirmation code required")
			}
			consumed, err := orderRepo.ConsumeDeliveryCode(ctx, row.OrderID, code)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume confirmation code")
			}
			if !consumed {
				return pkgerrors.New(pkgerrors.CodeForbidden, "invalid confirmation code")
			}
		}

		ok, err := repo.UpdateStatusIf(ctx, row.ID, row.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery changed state concurrently")
		}

		if input.NewStatus == enums.DeliveryStatusDelivered {
			if err := s.completer.MarkDeliveredTx(ctx, tx, row.OrderID); err != nil {
				return err
			}
		}

		from := row.Status
		row.Status = input.NewStatus
		if input.Notes != nil {
			row.Notes = input.Notes
		}
		switch input.NewStatus {
		case enums.DeliveryStatusPickedUp:
			row.PickedUpAt = &now
		case enums.DeliveryStatusDelivered:
			row.DeliveredAt = &now
		case enums.DeliveryStatusFailed:
			row.FailedAt = &now
		}
		result = row

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventTypeFor(input.NewStatus),
			AggregateType: enums.AggregateDelivery,
			AggregateID:   row.ID,
			Actor:         &outbox.ActorRef{UserID: row.AgentID, Role: enums.MemberRoleAgent.String()},
			Data: payloads.DeliveryStatusChanged{
				DeliveryID: row.ID,
				OrderID:    row.OrderID,
				AgentID:    row.AgentID,
				FromStatus: from,
				ToStatus:   input.NewStatus,
				OccurredAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListAssigned(ctx context.Context, agentID uuid.UUID) ([]models.Delivery, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListActiveByAgent(ctx, agentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agent deliveries")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	row, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
	}
	return row, nil
}

func eventTypeFor(status enums.DeliveryStatus) enums.OutboxEventType {
	switch status {
	case enums.DeliveryStatusPickedUp:
		return enums.EventDeliveryPickedUp
	case enums.DeliveryStatusInTransit:
		return enums.EventDeliveryInTransit
	case enums.DeliveryStatusDelivered:
		return enums.EventDeliveryDelivered
	case enums.DeliveryStatusFailed:
		return enums.EventDeliveryFailed
	default:
		return enums.EventDeliveryAssigned
	}
}
