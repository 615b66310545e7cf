// Package app contains the application setup for the storefront service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/armorline/storefront/internal/cart"
	"github.com/armorline/storefront/internal/cart/storage"
	"github.com/armorline/storefront/internal/catalog"
	"github.com/armorline/storefront/internal/checkout"
	"github.com/armorline/storefront/internal/config"
	"github.com/armorline/storefront/internal/identity"
	"github.com/armorline/storefront/internal/order/service"
	"github.com/armorline/storefront/internal/order/store"
	"github.com/armorline/storefront/internal/transport/rest"
	"github.com/armorline/storefront/pkg/messaging"
	"github.com/armorline/storefront/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Carts        *cart.Service
	CartBus      *cart.Bus
	Catalog      catalog.Provider
	OrderService service.OrderService
	Logger       *slog.Logger
}

func SetupDependencies(cfg *config.Config, dbPool *pgxpool.Pool, redisClient *redis.Client, publisher messaging.Publisher, logger *slog.Logger) *Dependencies {
	cartStore := storage.NewRedisStore(redisClient)
	bus := cart.NewBus()
	carts := cart.NewService(cartStore, bus, cfg.Cart.PollInterval, logger)

	catalogProvider := catalog.NewPgStore(dbPool)
	builder := checkout.NewBuilder(catalogProvider, cfg.Checkout.StoreID, cfg.Checkout.ShippingFee, logger)
	resolver := identity.NewResolver(identity.ContextSession{}, cartStore, logger)

	orders := service.NewService(store.NewPgStore(dbPool), builder, carts, resolver,
		publisher, cfg.Orders.StrictTransitions, logger)

	return &Dependencies{
		Carts:        carts,
		CartBus:      bus,
		Catalog:      catalogProvider,
		OrderService: orders,
		Logger:       logger,
	}
}

// SetupHttpHandler initializes the HTTP routes for the storefront application.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the storefront application.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	storefrontHandler := rest.NewHandler(deps.Carts, deps.Catalog, deps.OrderService, deps.Logger)
	storefrontHandler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures an HTTP server for the storefront application.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {

	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
