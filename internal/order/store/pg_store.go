package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/armorline/storefront/internal/order"
	ordererrors "github.com/armorline/storefront/internal/order/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of OrderStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

func (p *PgStore) CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	created := *o
	created.ID = uuid.New()

	// Header and items are written in one transaction so a failed item
	// insert never leaves an orphaned header behind.
	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		metadata, err := json.Marshal(o.Metadata)
		if err != nil {
			return ordererrors.ErrCreateOrder
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO orders
			   (id, store_id, user_id, order_number, status, payment_method,
			    payment_status, total_amount, idempotency_key, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING created_at, updated_at`,
			created.ID, o.StoreID, o.UserID, o.OrderNumber, o.Status, o.PaymentMethod,
			o.PaymentStatus, o.TotalAmount, o.IdempotencyKey, metadata)
		if err := row.Scan(&created.CreatedAt, &created.UpdatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ordererrors.ErrDuplicateIdempotencyKey
			}
			return ordererrors.ErrCreateOrder
		}

		created.Items = make([]order.Item, 0, len(o.Items))
		for _, item := range o.Items {
			item.OrderID = created.ID
			_, err := tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price)
				 VALUES ($1, $2, $3, $4, $5)`,
				item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice)
			if err != nil {
				return ordererrors.ErrCreateOrderItem
			}
			created.Items = append(created.Items, item)
		}
		return nil
	})

	if txErr != nil {
		return nil, txErr
	}
	return &created, nil
}

func (p *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return p.findOne(ctx, `WHERE id = $1`, id)
}

func (p *PgStore) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return p.findOne(ctx, `WHERE idempotency_key = $1`, key)
}

func (p *PgStore) findOne(ctx context.Context, where string, arg any) (*order.Order, error) {
	var found *order.Order

	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT id, store_id, user_id, order_number, status, payment_method,
			        payment_status, total_amount, idempotency_key, metadata, created_at, updated_at
			 FROM orders `+where, arg)
		o, err := scanOrder(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrOrderNotFound
			}
			return ordererrors.ErrFailedToFindOrder
		}
		items, err := p.itemsFor(ctx, tx, o.ID)
		if err != nil {
			return ordererrors.ErrFailedToFindOrderItems
		}
		o.Items = items
		found = o
		return nil
	})

	if txErr != nil {
		return nil, txErr
	}
	return found, nil
}

func (p *PgStore) FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]order.Order, error) {
	var orders []order.Order

	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, store_id, user_id, order_number, status, payment_method,
			        payment_status, total_amount, idempotency_key, metadata, created_at, updated_at
			 FROM orders WHERE user_id = $1
			 ORDER BY created_at DESC
			 OFFSET $2 LIMIT $3`, userID, offset, limit)
		if err != nil {
			return ordererrors.ErrFailedToFindUserOrders
		}
		defer rows.Close()

		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return ordererrors.ErrFailedToFindUserOrders
			}
			orders = append(orders, *o)
		}
		if err := rows.Err(); err != nil {
			return ordererrors.ErrFailedToFindUserOrders
		}
		rows.Close()

		for i := range orders {
			items, err := p.itemsFor(ctx, tx, orders[i].ID)
			if err != nil {
				return ordererrors.ErrFailedToFindOrderItems
			}
			orders[i].Items = items
		}
		return nil
	})

	if txErr != nil {
		return nil, txErr
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return orders, nil
}

func (p *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status, paymentStatus order.PaymentStatus) (*order.Order, error) {
	var updated *order.Order

	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE orders SET status = $2, payment_status = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING id, store_id, user_id, order_number, status, payment_method,
			           payment_status, total_amount, idempotency_key, metadata, created_at, updated_at`,
			id, status, paymentStatus)
		o, err := scanOrder(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrOrderNotFound
			}
			return ordererrors.ErrUpdateOrder
		}
		items, err := p.itemsFor(ctx, tx, o.ID)
		if err != nil {
			return ordererrors.ErrFailedToFindOrderItems
		}
		o.Items = items
		updated = o
		return nil
	})

	if txErr != nil {
		return nil, txErr
	}
	return updated, nil
}

func (p *PgStore) itemsFor(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := tx.Query(ctx,
		`SELECT order_id, product_id, quantity, unit_price, total_price
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var item order.Item
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	var metadata []byte
	err := row.Scan(&o.ID, &o.StoreID, &o.UserID, &o.OrderNumber, &o.Status, &o.PaymentMethod,
		&o.PaymentStatus, &o.TotalAmount, &o.IdempotencyKey, &metadata, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func (p *PgStore) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return ordererrors.ErrTransactionBegin
	}

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return ordererrors.ErrTransactionRollback
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return ordererrors.ErrTransactionCommit
	}

	return nil
}
