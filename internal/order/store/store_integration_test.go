package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/armorline/storefront/internal/order"
	ordererrors "github.com/armorline/storefront/internal/order/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const skipIntegrationTests = "STOREFRONT_SKIP_INTEGRATION_TESTS"

// OrderStoreSuite is a test suite for the OrderStore implementation.
type OrderStoreSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	store       OrderStore
	logger      *slog.Logger
	ctx         context.Context
}

// SetupSuite starts a PostgreSQL container, applies migrations and wires the store.
func (s *OrderStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dbName := "storefront_db"
	dbUser := "user"
	dbPassword := "password"

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")

	for i := range 10 {
		s.logger.Info("Pinging PostgreSQL database", "attempt", i+1)
		err = s.dbPool.Ping(s.ctx)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	wd, _ := os.Getwd()
	migrationsPath := filepath.Join(wd, "../../../db/migrations")
	sourceURL := "file://" + migrationsPath
	m, err := migrate.New(sourceURL, connStr)
	require.NoError(s.T(), err, "Failed to create migrate instance")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		require.NoError(s.T(), err, "Failed to apply migrations")
	}
	s.logger.Info("Migrations applied for integration tests")

	s.store = NewPgStore(s.dbPool)
}

// TearDownSuite cleans up resources after all tests in the suite have run.
func (s *OrderStoreSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

// SetupTest truncates the orders table before each test.
func (s *OrderStoreSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE orders RESTART IDENTITY CASCADE")
	require.NoError(s.T(), err, "Failed to truncate orders table")
}

func TestOrderStoreIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(OrderStoreSuite))
}

// newTestOrder builds a valid order header with one item.
func newTestOrder(userID uuid.UUID, idempotencyKey string) *order.Order {
	return &order.Order{
		StoreID:        "armorline-main",
		UserID:         userID,
		OrderNumber:    "ORD-20260314092653-AB12CD",
		Status:         order.StatusPending,
		PaymentMethod:  order.PaymentCashOnDelivery,
		PaymentStatus:  order.PaymentPending,
		TotalAmount:    18197,
		IdempotencyKey: idempotencyKey,
		Metadata:       map[string]string{"delivery_address": "12 Mill Road"},
		Items: []order.Item{{
			ProductID:  "p1",
			Quantity:   2,
			UnitPrice:  8999,
			TotalPrice: 17998,
		}},
	}
}

func (s *OrderStoreSuite) createTestOrder(o *order.Order) *order.Order {
	s.T().Helper()
	created, err := s.store.CreateOrder(s.ctx, o)
	require.NoError(s.T(), err, "createTestOrder helper failed to create order")
	return created
}

func (s *OrderStoreSuite) TestCreate() {
	s.SetupTest()
	// given
	toCreate := newTestOrder(uuid.New(), uuid.NewString())

	// when
	created := s.createTestOrder(toCreate)

	// then
	require.NotEqual(s.T(), uuid.Nil, created.ID)
	require.Equal(s.T(), toCreate.UserID, created.UserID)
	require.Equal(s.T(), order.StatusPending, created.Status)
	require.Equal(s.T(), order.PaymentPending, created.PaymentStatus)
	require.NotZero(s.T(), created.CreatedAt)
	require.NotZero(s.T(), created.UpdatedAt)

	require.Len(s.T(), created.Items, 1)
	require.Equal(s.T(), created.ID, created.Items[0].OrderID)
	require.Equal(s.T(), "p1", created.Items[0].ProductID)
	require.Equal(s.T(), int64(8999), created.Items[0].UnitPrice)
	require.Equal(s.T(), int64(17998), created.Items[0].TotalPrice)
}

func (s *OrderStoreSuite) TestCreate_DuplicateIdempotencyKey() {
	s.SetupTest()
	// given
	key := uuid.NewString()
	s.createTestOrder(newTestOrder(uuid.New(), key))

	// when
	_, err := s.store.CreateOrder(s.ctx, newTestOrder(uuid.New(), key))

	// then
	require.ErrorIs(s.T(), err, ordererrors.ErrDuplicateIdempotencyKey)

	// the rejected write must leave no orphaned items behind
	var count int
	err = s.dbPool.QueryRow(s.ctx, "SELECT count(*) FROM order_items").Scan(&count)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, count)
}

func (s *OrderStoreSuite) TestFindByID() {
	s.SetupTest()
	// given
	created := s.createTestOrder(newTestOrder(uuid.New(), uuid.NewString()))

	// when
	found, err := s.store.FindByID(s.ctx, created.ID)

	// then
	require.NoError(s.T(), err)
	require.Equal(s.T(), created.ID, found.ID)
	require.Equal(s.T(), created.OrderNumber, found.OrderNumber)
	require.Equal(s.T(), "12 Mill Road", found.Metadata["delivery_address"])
	require.Len(s.T(), found.Items, 1)
}

func (s *OrderStoreSuite) TestFindByID_NotFound() {
	s.SetupTest()
	_, err := s.store.FindByID(s.ctx, uuid.New())
	require.ErrorIs(s.T(), err, ordererrors.ErrOrderNotFound)
}

func (s *OrderStoreSuite) TestFindByIdempotencyKey() {
	s.SetupTest()
	// given
	key := uuid.NewString()
	created := s.createTestOrder(newTestOrder(uuid.New(), key))

	// when
	found, err := s.store.FindByIdempotencyKey(s.ctx, key)

	// then
	require.NoError(s.T(), err)
	require.Equal(s.T(), created.ID, found.ID)
	require.Len(s.T(), found.Items, 1)

	_, err = s.store.FindByIdempotencyKey(s.ctx, uuid.NewString())
	require.ErrorIs(s.T(), err, ordererrors.ErrOrderNotFound)
}

func (s *OrderStoreSuite) TestFindOrdersByUserID() {
	s.SetupTest()
	// given
	userID := uuid.New()
	first := s.createTestOrder(newTestOrder(userID, uuid.NewString()))
	time.Sleep(10 * time.Millisecond)
	second := s.createTestOrder(newTestOrder(userID, uuid.NewString()))
	s.createTestOrder(newTestOrder(uuid.New(), uuid.NewString())) // someone else's

	// when
	orders, err := s.store.FindOrdersByUserID(s.ctx, userID, 0, 20)

	// then
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 2)
	require.Equal(s.T(), second.ID, orders[0].ID, "newest order first")
	require.Equal(s.T(), first.ID, orders[1].ID)
	require.Len(s.T(), orders[0].Items, 1)

	// pagination
	page, err := s.store.FindOrdersByUserID(s.ctx, userID, 1, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), page, 1)
	require.Equal(s.T(), first.ID, page[0].ID)
}

func (s *OrderStoreSuite) TestFindOrdersByUserID_Empty() {
	s.SetupTest()
	orders, err := s.store.FindOrdersByUserID(s.ctx, uuid.New(), 0, 20)
	require.NoError(s.T(), err)
	require.Empty(s.T(), orders)
}

func (s *OrderStoreSuite) TestUpdateStatus() {
	s.SetupTest()
	// given
	created := s.createTestOrder(newTestOrder(uuid.New(), uuid.NewString()))

	// when
	updated, err := s.store.UpdateStatus(s.ctx, created.ID, order.StatusProcessing, order.PaymentPaid)

	// then
	require.NoError(s.T(), err)
	require.Equal(s.T(), order.StatusProcessing, updated.Status)
	require.Equal(s.T(), order.PaymentPaid, updated.PaymentStatus)
	require.Equal(s.T(), created.TotalAmount, updated.TotalAmount, "totals are immutable")
	require.True(s.T(), updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
	require.Len(s.T(), updated.Items, 1)
}

func (s *OrderStoreSuite) TestUpdateStatus_NotFound() {
	s.SetupTest()
	_, err := s.store.UpdateStatus(s.ctx, uuid.New(), order.StatusProcessing, order.PaymentPending)
	require.ErrorIs(s.T(), err, ordererrors.ErrOrderNotFound)
}
