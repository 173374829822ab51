package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	orderColumns = `
		internal_id, order_id, external_order_id, owner_id, product, quantity,
		unit_price, total_price, status, version, expiration_date, created_at, updated_at`
)

type orderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.InternalID, &order.OrderID, &order.ExternalOrderID, &order.OwnerID,
		&order.Product, &order.Quantity, &order.UnitPrice, &order.TotalPrice,
		&status, &order.Version, &order.ExpirationDate, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.ExpirationDate = order.ExpirationDate.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	// alive всегда выводится из статуса. Возвращается строка в том виде,
	// в каком её сохранила база.
	created, err := scanOrder(r.db.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_id, external_order_id, owner_id, product, quantity,
			unit_price, total_price, status, alive, version,
			expiration_date, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+orderColumns,
		order.OrderID, order.ExternalOrderID, order.OwnerID, order.Product, order.Quantity,
		order.UnitPrice, order.TotalPrice, string(order.Status), order.Alive(), order.Version,
		order.ExpirationDate, order.CreatedAt, order.UpdatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrOrderAlreadyExists
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	return created, nil
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) ExistsByExternalID(ctx context.Context, externalOrderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE external_order_id = $1)
	`, externalOrderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check external order id: %w", err)
	}
	return exists, nil
}

func (r *orderRepository) List(ctx context.Context, page domain.PageRequest) ([]domain.Order, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page = page.Normalize()

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY internal_id ASC
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, page.Size)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, total, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	saved, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders
		SET product = $1,
		    quantity = $2,
		    unit_price = $3,
		    total_price = $4,
		    status = $5,
		    alive = $6,
		    version = version + 1,
		    updated_at = $7
		WHERE order_id = $8
		  AND version = $9
		RETURNING `+orderColumns,
		order.Product,
		order.Quantity,
		order.UnitPrice,
		order.TotalPrice,
		string(order.Status),
		order.Alive(),
		r.now(),
		order.OrderID,
		order.Version,
	))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("update order: %w", err)
		}
		exists, existsErr := r.orderExistsTx(ctx, tx, order.OrderID)
		if existsErr != nil {
			err = existsErr
			return domain.Order{}, err
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit save order: %w", err)
	}

	return saved, nil
}

func (r *orderRepository) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete orders by owner: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *orderRepository) orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT internal_id FROM orders WHERE order_id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
