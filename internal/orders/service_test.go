package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/addismart/marketplace-backend/internal/cart"
	"github.com/addismart/marketplace-backend/internal/catalog"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
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
	conn, err := gorm.Open(sqlite.Open("file:orders_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Shop{},
		&models.Product{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentIntent{},
		&models.OutboxEvent{},
	))
	t.Cleanup(func() {
		for _, table := range []string{
			"outbox_events", "payment_intents", "order_items", "orders",
			"cart_items", "cart_records", "products", "shops",
		} {
			conn.Exec("DELETE FROM " + table)
		}
	})
	return conn
}

type fixture struct {
	conn    *gorm.DB
	svc     Service
	repo    Repository
	buyerID uuid.UUID
	shopID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(repo, cart.NewRepository(conn), catalog.NewRepository(conn), testTxRunner{db: conn}, outboxSvc, 8)
	require.NoError(t, err)
	return &fixture{
		conn:    conn,
		svc:     svc,
		repo:    repo,
		buyerID: uuid.New(),
		shopID:  uuid.New(),
	}
}

func (f *fixture) seedProduct(t *testing.T, name string, priceCents, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:             uuid.New(),
		ShopID:         f.shopID,
		Name:           name,
		UnitPriceCents: priceCents,
		Stock:          stock,
		Active:         true,
	}
	require.NoError(t, f.conn.Create(&product).Error)
	return product
}

func (f *fixture) seedCart(t *testing.T, lines ...models.CartItem) models.CartRecord {
	t.Helper()
	record := models.CartRecord{
		ID:      uuid.New(),
		BuyerID: f.buyerID,
		ShopID:  f.shopID,
		Status:  enums.CartStatusActive,
	}
	require.NoError(t, f.conn.Create(&record).Error)
	for i := range lines {
		lines[i].ID = uuid.New()
		lines[i].CartID = record.ID
		require.NoError(t, f.conn.Create(&lines[i]).Error)
	}
	return record
}

func (f *fixture) createOrder(t *testing.T, cartID uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), CreateInput{
		BuyerID:       f.buyerID,
		CartID:        cartID,
		PaymentMethod: enums.PaymentMethodMobileMoney,
	})
	require.NoError(t, err)
	return order
}

func TestCreateFreezesTotalsAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	honey := f.seedProduct(t, "Forest Honey 1kg", 80000, 5)
	record := f.seedCart(t,
		models.CartItem{ProductID: coffee.ID, Quantity: 2, UnitPriceCents: 45000},
		models.CartItem{ProductID: honey.ID, Quantity: 1, UnitPriceCents: 80000},
	)

	order := f.createOrder(t, record.ID)

	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Equal(t, 2*45000+80000, order.TotalCents)
	require.Len(t, order.Items, 2)
	require.Len(t, order.DeliveryCode, 8)

	// catalog price changes must not touch the frozen order
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", coffee.ID).Update("unit_price_cents", 99999).Error)
	reloaded, err := f.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, 2*45000+80000, reloaded.TotalCents)

	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", coffee.ID).Error)
	require.Equal(t, 8, product.Stock)

	var cartRow models.CartRecord
	require.NoError(t, f.conn.First(&cartRow, "id = ?", record.ID).Error)
	require.Equal(t, enums.CartStatusConverted, cartRow.Status)

	var intent models.PaymentIntent
	require.NoError(t, f.conn.First(&intent, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, intent.Status)
	require.Equal(t, order.TotalCents, intent.AmountCents)

	var eventCount int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderCreated, order.ID).
		Count(&eventCount).Error)
	require.EqualValues(t, 1, eventCount)
}

func TestCreateEmptyCart(t *testing.T) {
	f := newFixture(t)
	record := f.seedCart(t)

	_, err := f.svc.Create(context.Background(), CreateInput{
		BuyerID:       f.buyerID,
		CartID:        record.ID,
		PaymentMethod: enums.PaymentMethodCashOnDelivery,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	spice := f.seedProduct(t, "Berbere 250g", 20000, 1)
	record := f.seedCart(t,
		models.CartItem{ProductID: coffee.ID, Quantity: 2, UnitPriceCents: 45000},
		models.CartItem{ProductID: spice.ID, Quantity: 3, UnitPriceCents: 20000},
	)

	_, err := f.svc.Create(context.Background(), CreateInput{
		BuyerID:       f.buyerID,
		CartID:        record.ID,
		PaymentMethod: enums.PaymentMethodMobileMoney,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	// the earlier line's decrement must roll back with the failed one
	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", coffee.ID).Error)
	require.Equal(t, 10, product.Stock)

	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	require.EqualValues(t, 0, orderCount)

	var cartRow models.CartRecord
	require.NoError(t, f.conn.First(&cartRow, "id = ?", record.ID).Error)
	require.Equal(t, enums.CartStatusActive, cartRow.Status)
}

func TestCreateLastUnitGoesToFirstCheckout(t *testing.T) {
	f := newFixture(t)
	honey := f.seedProduct(t, "Forest Honey 1kg", 80000, 1)
	first := f.seedCart(t, models.CartItem{ProductID: honey.ID, Quantity: 1, UnitPriceCents: 80000})

	rivalBuyer := uuid.New()
	rival := models.CartRecord{
		ID:      uuid.New(),
		BuyerID: rivalBuyer,
		ShopID:  f.shopID,
		Status:  enums.CartStatusActive,
	}
	require.NoError(t, f.conn.Create(&rival).Error)
	require.NoError(t, f.conn.Create(&models.CartItem{
		ID:             uuid.New(),
		CartID:         rival.ID,
		ProductID:      honey.ID,
		Quantity:       1,
		UnitPriceCents: 80000,
	}).Error)

	order := f.createOrder(t, first.ID)
	require.Equal(t, enums.OrderStatusPending, order.Status)

	// the conditional decrement already spent the last unit
	_, err := f.svc.Create(context.Background(), CreateInput{
		BuyerID:       rivalBuyer,
		CartID:        rival.ID,
		PaymentMethod: enums.PaymentMethodMobileMoney,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", honey.ID).Error)
	require.Equal(t, 0, product.Stock)

	var rivalCart models.CartRecord
	require.NoError(t, f.conn.First(&rivalCart, "id = ?", rival.ID).Error)
	require.Equal(t, enums.CartStatusActive, rivalCart.Status)

	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	require.EqualValues(t, 1, orderCount)
}

func TestMarkPaidIdempotentByReference(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	paid, err := f.svc.MarkPaid(context.Background(), order.ID, "tb-001")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// replay with the same reference is a no-op
	replayed, err := f.svc.MarkPaid(context.Background(), order.ID, "tb-001")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, replayed.Status)

	var eventCount int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderPaid, order.ID).
		Count(&eventCount).Error)
	require.EqualValues(t, 1, eventCount)

	// a different reference is a conflict
	_, err = f.svc.MarkPaid(context.Background(), order.ID, "tb-002")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestMarkShippedRequiresPaid(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	seller := Actor{UserID: uuid.New(), Role: enums.MemberRoleSeller, ShopID: &f.shopID}

	_, err := f.svc.MarkShipped(context.Background(), order.ID, seller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, reloaded.Status)

	_, err = f.svc.MarkPaid(context.Background(), order.ID, "tb-003")
	require.NoError(t, err)

	shipped, err := f.svc.MarkShipped(context.Background(), order.ID, seller)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, shipped.Status)
}

func TestMarkShippedForeignShopForbidden(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)
	_, err := f.svc.MarkPaid(context.Background(), order.ID, "tb-004")
	require.NoError(t, err)

	otherShop := uuid.New()
	_, err = f.svc.MarkShipped(context.Background(), order.ID, Actor{
		UserID: uuid.New(),
		Role:   enums.MemberRoleSeller,
		ShopID: &otherShop,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestMarkShippedBuyerForbidden(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)
	_, err := f.svc.MarkPaid(context.Background(), order.ID, "tb-010")
	require.NoError(t, err)

	// even the order's own buyer cannot push it to shipped
	_, err = f.svc.MarkShipped(context.Background(), order.ID, Actor{
		UserID: f.buyerID,
		Role:   enums.MemberRoleBuyer,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPaid, reloaded.Status)
}

func TestCancelRestocksLines(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 4, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", coffee.ID).Error)
	require.Equal(t, 6, product.Stock)

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, Actor{UserID: f.buyerID, Role: enums.MemberRoleBuyer})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	require.NoError(t, f.conn.First(&product, "id = ?", coffee.ID).Error)
	require.Equal(t, 10, product.Stock)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	_, err := f.svc.MarkPaid(context.Background(), order.ID, "tb-005")
	require.NoError(t, err)
	_, err = f.svc.MarkDelivered(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), order.ID, Actor{UserID: f.buyerID, Role: enums.MemberRoleBuyer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelForeignBuyerForbidden(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	_, err := f.svc.Cancel(context.Background(), order.ID, Actor{UserID: uuid.New(), Role: enums.MemberRoleBuyer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestCancelForeignSellerForbidden(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 3, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	otherShop := uuid.New()
	_, err := f.svc.Cancel(context.Background(), order.ID, Actor{
		UserID: uuid.New(),
		Role:   enums.MemberRoleSeller,
		ShopID: &otherShop,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Cancel(context.Background(), order.ID, Actor{
		UserID: uuid.New(),
		Role:   enums.MemberRoleAgent,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	// no restock happened
	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", coffee.ID).Error)
	require.Equal(t, 7, product.Stock)

	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, reloaded.Status)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	_, err := f.svc.MarkPaid(context.Background(), order.ID, "tb-006")
	require.NoError(t, err)

	first, err := f.svc.MarkDelivered(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, first.IsDelivered)

	second, err := f.svc.MarkDelivered(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, second.Status)
}

func TestConsumeDeliveryCodeSingleUse(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 1, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	ok, err := f.repo.ConsumeDeliveryCode(context.Background(), order.ID, "WRONG123")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.repo.ConsumeDeliveryCode(context.Background(), order.ID, order.DeliveryCode)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.repo.ConsumeDeliveryCode(context.Background(), order.ID, order.DeliveryCode)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExpirePendingCancelsStaleOrders(t *testing.T) {
	f := newFixture(t)
	coffee := f.seedProduct(t, "Roasted Coffee 500g", 45000, 10)
	record := f.seedCart(t, models.CartItem{ProductID: coffee.ID, Quantity: 2, UnitPriceCents: 45000})
	order := f.createOrder(t, record.ID)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("created_at", past).Error)

	expired, err := f.svc.ExpirePending(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusCancelled, reloaded.Status)

	var product models.Product
	require.NoError(t, f.conn.First(&product, "id = ?", coffee.ID).Error)
	require.Equal(t, 10, product.Stock)
}
