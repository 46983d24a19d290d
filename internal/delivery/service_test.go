package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/internal/cart"
	"github.com/addismart/marketplace-backend/internal/catalog"
	"github.com/addismart/marketplace-backend/internal/orders"
	"github.com/addismart/marketplace-backend/internal/payments"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/logger"
	"github.com/addismart/marketplace-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:delivery_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Shop{},
		&models.Product{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentIntent{},
		&models.Delivery{},
		&models.OutboxEvent{},
	))
	// partial unique index: one live delivery per order
	require.NoError(t, conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS ux_deliveries_order_live
		ON deliveries(order_id)
		WHERE status NOT IN ('delivered', 'failed')
	`).Error)
	t.Cleanup(func() {
		for _, table := range []string{
			"outbox_events", "deliveries", "payment_intents", "order_items",
			"orders", "cart_items", "cart_records", "products", "shops",
		} {
			conn.Exec("DELETE FROM " + table)
		}
	})
	return conn
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	orderSvc orders.Service
	buyerID  uuid.UUID
	agentID  uuid.UUID
	adminID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := newTestDB(t)
	tx := testTxRunner{db: conn}
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)

	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orderRepo, cart.NewRepository(conn), catalog.NewRepository(conn), tx, outboxSvc, 8)
	require.NoError(t, err)

	svc, err := NewService(NewRepository(conn), orderRepo, orderSvc, tx, outboxSvc)
	require.NoError(t, err)

	return &fixture{
		conn:     conn,
		svc:      svc,
		orderSvc: orderSvc,
		buyerID:  uuid.New(),
		agentID:  uuid.New(),
		adminID:  uuid.New(),
	}
}

// seedOrder creates a pending order through the checkout path.
func (f *fixture) seedOrder(t *testing.T) *models.Order {
	t.Helper()
	shopID := uuid.New()
	product := models.Product{
		ID:             uuid.New(),
		ShopID:         shopID,
		Name:           "Injera Pack",
		UnitPriceCents: 12000,
		Stock:          20,
		Active:         true,
	}
	require.NoError(t, f.conn.Create(&product).Error)

	record := models.CartRecord{
		ID:      uuid.New(),
		BuyerID: f.buyerID,
		ShopID:  shopID,
		Status:  enums.CartStatusActive,
	}
	require.NoError(t, f.conn.Create(&record).Error)
	item := models.CartItem{
		ID:             uuid.New(),
		CartID:         record.ID,
		ProductID:      product.ID,
		Quantity:       2,
		UnitPriceCents: 12000,
	}
	require.NoError(t, f.conn.Create(&item).Error)

	order, err := f.orderSvc.Create(context.Background(), orders.CreateInput{
		BuyerID:       f.buyerID,
		CartID:        record.ID,
		PaymentMethod: enums.PaymentMethodCashOnDelivery,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) seedPaidOrder(t *testing.T) *models.Order {
	t.Helper()
	order := f.seedOrder(t)
	paid, err := f.orderSvc.MarkPaid(context.Background(), order.ID, "ref-"+order.ID.String()[:8])
	require.NoError(t, err)
	paid.DeliveryCode = order.DeliveryCode
	return paid
}

func TestAssignRequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t)

	_, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAssignCashOrderAfterCheckout(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t)

	// the cash rail settles at initiation, so the order must be
	// assignable as soon as checkout returns
	registry, err := payments.NewRegistry(payments.NewCashGateway())
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
	paySvc, err := payments.NewService(registry, orders.NewRepository(f.conn), f.orderSvc, logg)
	require.NoError(t, err)

	_, err = paySvc.Initiate(context.Background(), order)
	require.NoError(t, err)

	row, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusAssigned, row.Status)
}

func TestAssignSecondLiveDeliveryConflicts(t *testing.T) {
	f := newFixture(t)
	order := f.seedPaidOrder(t)

	first, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusAssigned, first.Status)

	_, err = f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    uuid.New(),
		AssignedBy: f.adminID,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestAssignAgainAfterFailure(t *testing.T) {
	f := newFixture(t)
	order := f.seedPaidOrder(t)

	first, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		DeliveryID: first.ID,
		AgentID:    f.agentID,
		NewStatus:  enums.DeliveryStatusFailed,
	})
	require.NoError(t, err)

	second, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    uuid.New(),
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestHandoffChainWithCode(t *testing.T) {
	f := newFixture(t)
	order := f.seedPaidOrder(t)

	row, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)

	for _, status := range []enums.DeliveryStatus{
		enums.DeliveryStatusPickedUp,
		enums.DeliveryStatusInTransit,
	} {
		row, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
			DeliveryID: row.ID,
			AgentID:    f.agentID,
			NewStatus:  status,
		})
		require.NoError(t, err)
		require.Equal(t, status, row.Status)
	}

	row, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		DeliveryID: row.ID,
		AgentID:    f.agentID,
		NewStatus:  enums.DeliveryStatusDelivered,
		Code:       order.DeliveryCode,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusDelivered, row.Status)
	require.NotNil(t, row.DeliveredAt)

	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusDelivered, reloaded.Status)
	require.True(t, reloaded.IsDelivered)
	require.NotNil(t, reloaded.DeliveryCodeConsumedAt)
}

func TestDeliverRejectsWrongCode(t *testing.T) {
	f := newFixture(t)
	order := f.seedPaidOrder(t)

	row, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)

	for _, status := range []enums.DeliveryStatus{
		enums.DeliveryStatusPickedUp,
		enums.DeliveryStatusInTransit,
	} {
		row, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
			DeliveryID: row.ID,
			AgentID:    f.agentID,
			NewStatus:  status,
		})
		require.NoError(t, err)
	}

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		DeliveryID: row.ID,
		AgentID:    f.agentID,
		NewStatus:  enums.DeliveryStatusDelivered,
		Code:       "WRONG999",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	// the failed attempt must not advance the delivery or the order
	reloadedDelivery, err := f.svc.Get(context.Background(), row.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryStatusInTransit, reloadedDelivery.Status)

	var reloadedOrder models.Order
	require.NoError(t, f.conn.First(&reloadedOrder, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, reloadedOrder.Status)
	require.Nil(t, reloadedOrder.DeliveryCodeConsumedAt)
}

func TestSkippingChainStepRejected(t *testing.T) {
	f := newFixture(t)
	order := f.seedPaidOrder(t)

	row, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		DeliveryID: row.ID,
		AgentID:    f.agentID,
		NewStatus:  enums.DeliveryStatusDelivered,
		Code:       order.DeliveryCode,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	// the code survives the rejected attempt
	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Nil(t, reloaded.DeliveryCodeConsumedAt)
}

func TestForeignAgentForbidden(t *testing.T) {
	f := newFixture(t)
	order := f.seedPaidOrder(t)

	row, err := f.svc.Assign(context.Background(), AssignInput{
		OrderID:    order.ID,
		AgentID:    f.agentID,
		AssignedBy: f.adminID,
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		DeliveryID: row.ID,
		AgentID:    uuid.New(),
		NewStatus:  enums.DeliveryStatusPickedUp,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestListAssignedFIFO(t *testing.T) {
	f := newFixture(t)

	var deliveries []*models.Delivery
	for i := 0; i < 3; i++ {
		order := f.seedPaidOrder(t)
		row, err := f.svc.Assign(context.Background(), AssignInput{
			OrderID:    order.ID,
			AgentID:    f.agentID,
			AssignedBy: f.adminID,
		})
		require.NoError(t, err)
		// spread assignment times so ordering is deterministic
		assignedAt := time.Now().Add(time.Duration(i-3) * time.Minute)
		require.NoError(t, f.conn.Model(&models.Delivery{}).Where("id = ?", row.ID).Update("assigned_at", assignedAt).Error)
		deliveries = append(deliveries, row)
	}

	rows, err := f.svc.ListAssigned(context.Background(), f.agentID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, deliveries[0].ID, rows[0].ID)
	require.Equal(t, deliveries[1].ID, rows[1].ID)
	require.Equal(t, deliveries[2].ID, rows[2].ID)

	// terminal deliveries drop out of the queue
	_, err = f.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		DeliveryID: rows[0].ID,
		AgentID:    f.agentID,
		NewStatus:  enums.DeliveryStatusFailed,
	})
	require.NoError(t, err)

	rows, err = f.svc.ListAssigned(context.Background(), f.agentID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
