// Package app assembles the order services shared by the binaries.
package app

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/ordercore/internal/inventory"
	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/internal/products"
	"github.com/angelmondragon/ordercore/internal/returns"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/angelmondragon/ordercore/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

// Core is the wired service graph.
type Core struct {
	Orders  orders.Service
	Returns returns.Service
	Catalog products.Catalog
	Stock   *inventory.Checker
	Metrics *metrics.OrderMetrics
}

type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Counter  redis.Counter
	Registry prometheus.Registerer
}

// NewCore builds every service over one database client. Without a Redis
// counter, order numbers come from an in-process sequence, which is only
// safe for a single replica.
func NewCore(p Params) (*Core, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, errors.New("config, logger and database are required")
	}
	conn := p.DB.DB()
	m := metrics.NewOrderMetrics(p.Registry)

	ledger := inventory.NewLedger(conn)
	catalog, err := products.NewService(products.NewRepository(conn), p.DB, ledger, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	reconciler, err := inventory.NewReconciler(ledger, p.Logger, m)
	if err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}
	checker, err := inventory.NewChecker(catalog, ledger)
	if err != nil {
		return nil, fmt.Errorf("stock checker: %w", err)
	}

	numbers, err := numberGenerator(p)
	if err != nil {
		return nil, err
	}

	box := outbox.NewService(outbox.NewRepository(conn), p.Logger)
	repo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.Dependencies{
		Repo:       repo,
		Tx:         p.DB,
		Outbox:     box,
		Catalog:    catalog,
		Stock:      ledger,
		Reconciler: reconciler,
		Numbers:    numbers,
		Logger:     p.Logger,
		Metrics:    m,
		BulkMax:    p.Config.Orders.BulkMax,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	returnSvc, err := returns.NewService(returns.Dependencies{
		Repo:         repo,
		Tx:           p.DB,
		Orders:       orderSvc,
		Outbox:       box,
		Logger:       p.Logger,
		ReturnWindow: p.Config.Orders.ReturnWindow(),
	})
	if err != nil {
		return nil, fmt.Errorf("returns: %w", err)
	}

	return &Core{
		Orders:  orderSvc,
		Returns: returnSvc,
		Catalog: catalog,
		Stock:   checker,
		Metrics: m,
	}, nil
}

func numberGenerator(p Params) (orders.NumberGenerator, error) {
	if p.Counter == nil {
		return orders.NewSequenceNumberGenerator(p.Config.Orders.NumberPrefix, 1, nil), nil
	}
	gen, err := orders.NewRedisNumberGenerator(p.Counter, p.Config.Orders.NumberPrefix)
	if err != nil {
		return nil, fmt.Errorf("order numbers: %w", err)
	}
	return gen, nil
}
