package delivery

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
)

// Repository defines persistence operations for delivery handoffs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.Delivery) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	UpdateStatusIf(ctx context.Context, deliveryID uuid.UUID, from enums.DeliveryStatus, updates map[string]any) (bool, error)
	ListActiveByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Delivery, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a delivery repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, delivery *models.Delivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var row models.Delivery
	err := r.db.WithContext(ctx).
		Preload("Order").
		Preload("Order.Items").
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateStatusIf applies updates only while the delivery still sits in the
// expected source status.
func (r *repository) UpdateStatusIf(ctx context.Context, deliveryID uuid.UUID, from enums.DeliveryStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ? AND status = ?", deliveryID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListActiveByAgent returns the agent's live deliveries, oldest assignment
// first, so agents work a FIFO queue.
func (r *repository) ListActiveByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Delivery, error) {
	var rows []models.Delivery
	err := r.db.WithContext(ctx).
		Preload("Order").
		Where("agent_id = ? AND status NOT IN ?", agentID, []enums.DeliveryStatus{
			enums.DeliveryStatusDelivered,
			enums.DeliveryStatusFailed,
		}).
		Order("assigned_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
