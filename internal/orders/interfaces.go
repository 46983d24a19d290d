package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	"github.com/addismart/marketplace-backend/pkg/pagination"
)

// OrderList is a cursor-paginated page of orders.
type OrderList struct {
	Orders     []models.Order
	NextCursor *string
}

// Repository defines persistence operations for orders and their children.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindPaymentIntentByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	FindPaymentIntentByReference(ctx context.Context, reference string) (*models.PaymentIntent, error)
	UpdateStatusIf(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	UpdatePaymentIntentByOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	ConsumeDeliveryCode(ctx context.Context, orderID uuid.UUID, code string) (bool, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}
