package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/internal/cart"
	"github.com/addismart/marketplace-backend/internal/catalog"
	dbpkg "github.com/addismart/marketplace-backend/pkg/db"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/outbox"
	"github.com/addismart/marketplace-backend/pkg/outbox/payloads"
	"github.com/addismart/marketplace-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the order lifecycle state machine. Every transition is a
// guarded conditional update inside a transaction; an illegal transition never
// touches the row.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentReference string) (*models.Order, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkDeliveredTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetForBuyer(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type service struct {
	repo     Repository
	carts    cart.Repository
	products catalog.Repository
	tx       txRunner
	outbox   outboxPublisher
	codeLen  int
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, carts cart.Repository, products catalog.Repository, tx txRunner, outboxSvc outboxPublisher, codeLength int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if codeLength <= 0 {
		codeLength = defaultCodeLength
	}
	return &service{
		repo:     repo,
		carts:    carts,
		products: products,
		tx:       tx,
		outbox:   outboxSvc,
		codeLen:  codeLength,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.CartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.ShippingAddress != nil {
		if err := input.ShippingAddress.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
		}
	}

	code, err := generateDeliveryCode(s.codeLen)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirmation code")
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		products := s.products.WithTx(tx)
		repo := s.repo.WithTx(tx)

		record, err := carts.FindActiveByIDAndBuyer(ctx, input.CartID, input.BuyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		orderID := uuid.New()
		items := make([]models.OrderItem, 0, len(record.Items))
		subtotal := 0
		for _, line := range record.Items {
			product, err := products.FindByID(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeValidation, "cart references an unknown product")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if !product.Active {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is no longer available", product.Name))
			}

			ok, err := products.DecrementStock(ctx, product.ID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("insufficient stock for %s", product.Name)).
					WithDetails(InsufficientStockDetails{
						ProductID:   product.ID,
						ProductName: product.Name,
						Requested:   line.Quantity,
					})
			}

			lineTotal := product.UnitPriceCents * line.Quantity
			subtotal += lineTotal
			items = append(items, models.OrderItem{
				ID:             uuid.New(),
				OrderID:        orderID,
				ProductID:      product.ID,
				ProductName:    product.Name,
				Quantity:       line.Quantity,
				UnitPriceCents: product.UnitPriceCents,
				TotalCents:     lineTotal,
			})
		}

		order := &models.Order{
			ID:              orderID,
			BuyerID:         input.BuyerID,
			ShopID:          record.ShopID,
			CartID:          record.ID,
			Status:          enums.OrderStatusPending,
			PaymentMethod:   input.PaymentMethod,
			SubtotalCents:   subtotal,
			TotalCents:      subtotal,
			ShippingAddress: input.ShippingAddress,
			DeliveryCode:    code,
			Items:           items,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		intent := &models.PaymentIntent{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Method:      input.PaymentMethod,
			Status:      enums.PaymentStatusPending,
			AmountCents: order.TotalCents,
		}
		if err := repo.CreatePaymentIntent(ctx, intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
		}

		if err := carts.MarkConverted(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
		}

		created = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: enums.MemberRoleBuyer.String()},
			Data: payloads.OrderCreated{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				ShopID:        order.ShopID,
				TotalCents:    order.TotalCents,
				PaymentMethod: order.PaymentMethod,
				ItemCount:     len(order.Items),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MarkPaid confirms payment for a pending order. Replays with the same
// reference return the paid order unchanged; a different reference on a paid
// order is a conflict.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentReference string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if paymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status == enums.OrderStatusPaid ||
			order.Status == enums.OrderStatusShipped ||
			order.Status == enums.OrderStatusDelivered {
			if order.PaymentReference != nil && *order.PaymentReference == paymentReference {
				result = order
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "order already paid with a different reference")
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusPaid) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot mark %s order as paid", order.Status))
		}

		now := time.Now()
		ok, err := repo.UpdateStatusIf(ctx, order.ID, enums.OrderStatusPending, map[string]any{
			"status":            enums.OrderStatusPaid,
			"payment_reference": paymentReference,
			"paid_at":           now,
		})
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_orders_payment_reference") {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment reference already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during payment confirmation")
		}

		if err := repo.UpdatePaymentIntentByOrder(ctx, order.ID, map[string]any{
			"status":            enums.PaymentStatusSucceeded,
			"gateway_reference": paymentReference,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment intent")
		}

		order.Status = enums.OrderStatusPaid
		order.PaymentReference = &paymentReference
		order.PaidAt = &now
		result = order

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaid{
				OrderID:          order.ID,
				BuyerID:          order.BuyerID,
				PaymentReference: paymentReference,
				PaidAt:           now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		switch actor.Role {
		case enums.MemberRoleSeller:
			if actor.ShopID == nil || *actor.ShopID != order.ShopID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to shop")
			}
		case enums.MemberRoleAdmin:
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the selling shop may ship an order")
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusShipped) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot ship %s order", order.Status))
		}

		now := time.Now()
		ok, err := repo.UpdateStatusIf(ctx, order.ID, order.Status, map[string]any{
			"status":     enums.OrderStatusShipped,
			"shipped_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during shipping")
		}

		from := order.Status
		order.Status = enums.OrderStatusShipped
		order.ShippedAt = &now
		result = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderStatusChanged{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromStatus: from,
				ToStatus:   enums.OrderStatusShipped,
				OccurredAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.MarkDeliveredTx(ctx, tx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// MarkDeliveredTx completes the order inside the caller's transaction so the
// delivery handoff and the order transition commit atomically. Already
// delivered orders are a no-op.
func (s *service) MarkDeliveredTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusDelivered {
		return nil
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusDelivered) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot deliver %s order", order.Status))
	}

	now := time.Now()
	ok, err := repo.UpdateStatusIf(ctx, order.ID, order.Status, map[string]any{
		"status":       enums.OrderStatusDelivered,
		"is_delivered": true,
		"delivered_at": now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during delivery")
	}

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderDelivered,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderStatusChanged{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			FromStatus: order.Status,
			ToStatus:   enums.OrderStatusDelivered,
			OccurredAt: now,
		},
	})
}

// Cancel terminates a pending or paid order and returns every non-cancelled
// line's quantity to stock.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		products := s.products.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		switch actor.Role {
		case enums.MemberRoleBuyer:
			if order.BuyerID != actor.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
			}
		case enums.MemberRoleSeller:
			if actor.ShopID == nil || *actor.ShopID != order.ShopID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to shop")
			}
		case enums.MemberRoleAdmin:
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "role may not cancel orders")
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot cancel %s order", order.Status))
		}

		now := time.Now()
		ok, err := repo.UpdateStatusIf(ctx, order.ID, order.Status, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed state during cancellation")
		}

		for _, item := range order.Items {
			if item.Cancelled {
				continue
			}
			if err := products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		from := order.Status
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		result = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderStatusChanged{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromStatus: from,
				ToStatus:   enums.OrderStatusCancelled,
				OccurredAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetForBuyer(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	return order, nil
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	list, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return list, nil
}

// ExpirePending cancels pending orders older than the TTL, restocking their
// lines. Each order gets its own transaction so one failure does not block
// the sweep.
func (s *service) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stale, err := s.repo.FindPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale pending orders")
	}

	expired := 0
	var errs []error
	for _, order := range stale {
		_, err := s.Cancel(ctx, order.ID, Actor{Role: enums.MemberRoleAdmin})
		if err != nil {
			// a concurrent payment or cancel already moved the order on
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}
	return expired, multierr.Combine(errs...)
}
