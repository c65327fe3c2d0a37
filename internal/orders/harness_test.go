package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/ordercore/internal/inventory"
	"github.com/angelmondragon/ordercore/internal/products"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/db/dbtest"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/angelmondragon/ordercore/pkg/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	testCustomerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	customer       = Actor{UserID: testCustomerID, Email: "buyer@example.com", Role: enums.ActorRoleCustomer}
	stranger       = Actor{UserID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Role: enums.ActorRoleCustomer}
	admin          = Actor{UserID: uuid.MustParse("33333333-3333-3333-3333-333333333333"), Role: enums.ActorRoleAdmin}
)

// stepClock advances one second on every reading so rows get distinct timestamps.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	db      *gorm.DB
	svc     Service
	impl    *service
	repo    Repository
	ledger  *inventory.Ledger
	catalog products.Catalog
	reg     *prometheus.Registry
	clock   *stepClock
}

type harnessOption func(*Dependencies)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	conn := dbtest.Open(t,
		&models.Product{},
		&models.InventoryItem{},
		&models.Order{},
		&models.OrderReturnRef{},
		&models.OutboxEvent{},
	)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client := db.NewFromConn(conn)
	ledger := inventory.NewLedger(conn)
	catalog, err := products.NewService(products.NewRepository(conn), client, ledger, logg)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewOrderMetrics(reg)
	rec, err := inventory.NewReconciler(ledger, logg, m)
	require.NoError(t, err)

	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := NewRepository(conn)
	deps := Dependencies{
		Repo:       repo,
		Tx:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Catalog:    catalog,
		Stock:      ledger,
		Reconciler: rec,
		Numbers:    NewSequenceNumberGenerator("ORD", 1, clock.Now),
		Logger:     logg,
		Metrics:    m,
		BulkMax:    5,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewService(deps)
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = clock.Now

	return &harness{db: conn, svc: svc, impl: impl, repo: repo, ledger: ledger, catalog: catalog, reg: reg, clock: clock}
}

func (h *harness) product(t *testing.T, priceCents int64, taxBps, available int, tracked bool) uuid.UUID {
	t.Helper()
	product, err := h.catalog.CreateProduct(context.Background(), products.CreateProductInput{
		SKU:          "SKU-" + uuid.NewString()[:8],
		Name:         "Product " + uuid.NewString()[:4],
		PriceCents:   priceCents,
		TaxRateBps:   taxBps,
		IsActive:     true,
		Tracked:      tracked,
		AvailableQty: available,
	})
	require.NoError(t, err)
	return product.ID
}

func (h *harness) available(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	item, err := h.ledger.Get(context.Background(), nil, productID)
	require.NoError(t, err)
	return item.AvailableQty
}

func (h *harness) reload(t *testing.T, orderID uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.repo.FindByID(context.Background(), orderID, false)
	require.NoError(t, err)
	return order
}

func (h *harness) eventCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (h *harness) createOrder(t *testing.T, items ...CreateItemInput) *models.Order {
	t.Helper()
	userID := testCustomerID
	order, err := h.svc.Create(context.Background(), CreateOrderInput{
		Items:           items,
		ShippingAddress: testAddress(),
		UserID:          &userID,
		Actor:           customer,
	})
	require.NoError(t, err)
	return order
}

// forceStatus writes a status directly, bypassing the state machine, to set
// up fixtures such as delivered orders.
func (h *harness) forceStatus(t *testing.T, orderID uuid.UUID, status enums.OrderStatus) {
	t.Helper()
	require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status).Error)
}

func testAddress() types.Address {
	return types.Address{
		Name:       "Ada Buyer",
		Line1:      "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "us",
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, label := range metric.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want == label.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
