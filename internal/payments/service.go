package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/internal/orders"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/logger"
)

// orderPayer is the idempotent paid-transition entry point.
type orderPayer interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentReference string) (*models.Order, error)
}

// CallbackInput is a gateway confirmation callback, delivered at least once.
type CallbackInput struct {
	Method    enums.PaymentMethod
	Reference string
}

// Service fronts the payment rails: it opens charges for fresh orders and
// turns gateway callbacks into paid transitions. It never invents a
// confirmation, every paid transition traces back to a gateway answer.
type Service interface {
	Initiate(ctx context.Context, order *models.Order) (*InitiateResult, error)
	HandleCallback(ctx context.Context, input CallbackInput) (*models.Order, error)
}

type service struct {
	registry *Registry
	repo     orders.Repository
	payer    orderPayer
	logger   *logger.Logger
}

// NewService builds a payments service with the required dependencies.
func NewService(registry *Registry, repo orders.Repository, payer orderPayer, logg *logger.Logger) (Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if payer == nil {
		return nil, fmt.Errorf("order payer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		registry: registry,
		repo:     repo,
		payer:    payer,
		logger:   logg,
	}, nil
}

// Initiate opens a charge on the order's rail and records the gateway
// reference on the payment intent. A failed initiation leaves the order
// pending so the buyer can retry.
func (s *service) Initiate(ctx context.Context, order *models.Order) (*InitiateResult, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}

	gw, err := s.registry.For(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithOrderID(ctx, order.ID.String())
	result, err := gw.Initiate(ctx, order)
	if err != nil {
		s.logger.Error(ctx, fmt.Sprintf("payment initiation failed on %s", order.PaymentMethod), err)
		return nil, err
	}

	if err := s.repo.UpdatePaymentIntentByOrder(ctx, order.ID, map[string]any{
		"gateway_reference": result.Reference,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway reference")
	}

	// cash has no external rail and no callback: confirm and settle now so
	// the order is paid before the courier is ever assigned
	if order.PaymentMethod == enums.PaymentMethodCashOnDelivery {
		status, err := gw.Confirm(ctx, result.Reference)
		if err != nil {
			return nil, err
		}
		if status == enums.PaymentStatusSucceeded {
			paid, err := s.payer.MarkPaid(ctx, order.ID, result.Reference)
			if err != nil {
				return nil, err
			}
			result.Order = paid
		}
	}

	s.logger.Info(s.logger.WithField(ctx, "gateway_reference", result.Reference), "payment initiated")
	return result, nil
}

// HandleCallback resolves the order behind a gateway reference, asks the rail
// for the authoritative outcome, and applies it. Safe to replay: MarkPaid is
// idempotent per reference and a still-pending answer errors out so the
// gateway retries later.
func (s *service) HandleCallback(ctx context.Context, input CallbackInput) (*models.Order, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	intent, err := s.repo.FindPaymentIntentByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment reference")
	}
	if input.Method != "" && input.Method != intent.Method {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method mismatch")
	}

	gw, err := s.registry.For(intent.Method)
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithOrderID(ctx, intent.OrderID.String())
	status, err := gw.Confirm(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch status {
	case enums.PaymentStatusSucceeded:
		return s.payer.MarkPaid(ctx, intent.OrderID, reference)
	case enums.PaymentStatusFailed:
		reason := "gateway reported failure"
		if err := s.repo.UpdatePaymentIntentByOrder(ctx, intent.OrderID, map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure")
		}
		s.logger.Warn(ctx, "payment failed at gateway")
		order, err := s.repo.FindByID(ctx, intent.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return order, nil
	default:
		// not settled yet; non-2xx makes the gateway redeliver
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment not settled at gateway")
	}
}
