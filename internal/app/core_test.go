package app

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/internal/products"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/db/dbtest"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoreWiresServices(t *testing.T) {
	conn := dbtest.Open(t,
		&models.Product{},
		&models.InventoryItem{},
		&models.Order{},
		&models.OrderReturnRef{},
		&models.OutboxEvent{},
	)
	cfg := &config.Config{Orders: config.OrdersConfig{NumberPrefix: "web", BulkMax: 10}}
	core, err := NewCore(Params{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard}),
		DB:       db.NewFromConn(conn),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NotNil(t, core.Metrics)

	ctx := context.Background()
	product, err := core.Catalog.CreateProduct(ctx, products.CreateProductInput{
		SKU:          "KETTLE-1",
		Name:         "Kettle",
		PriceCents:   2500,
		IsActive:     true,
		Tracked:      true,
		AvailableQty: 4,
	})
	require.NoError(t, err)

	userID := uuid.New()
	order, err := core.Orders.Create(ctx, orders.CreateOrderInput{
		UserID: &userID,
		Items:  []orders.CreateItemInput{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: types.Address{
			Line1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
		},
		Actor: orders.Actor{UserID: userID, Role: enums.ActorRoleCustomer},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "WEB-"), order.OrderNumber)
}

func TestNewCoreRequiresDependencies(t *testing.T) {
	_, err := NewCore(Params{})
	assert.Error(t, err)
}
