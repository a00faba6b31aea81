package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/order-trigger-service/internal/entity"
)

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(order.TableName()).
		Columns(
			"user_id",
			"kind",
			"trigger_price",
			"status",
			"created_at",
			"updated_at",
		).
		Values(
			order.UserID,
			order.Kind,
			order.TriggerPrice,
			order.Status,
			order.CreatedAt,
			order.UpdatedAt,
		).
		Suffix("RETURNING id")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	order.ID = id

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	var order entity.Order
	err := r.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]entity.Order, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From("orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id asc")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	orders := []entity.Order{}
	err = r.db.SelectContext(ctx, &orders, query, args...)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *OrderRepository) ListByStatus(ctx context.Context, statuses []entity.OrderStatus) ([]entity.Order, error) {
	if len(statuses) == 0 {
		return []entity.Order{}, nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From("orders").
		Where(sq.Eq{"status": statuses}).
		OrderBy("id asc")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	orders := []entity.Order{}
	err = r.db.SelectContext(ctx, &orders, query, args...)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// UpdateStatus performs the conditional transition: the row is updated only
// when its stored status still equals expected. sql.ErrNoRows means the
// caller lost the race (or the order does not exist).
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, expected, next entity.OrderStatus) (*entity.Order, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("orders").
		Set("status", next).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": expected}).
		Suffix("RETURNING *")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var order entity.Order
	err = r.db.QueryRowxContext(ctx, query, args...).StructScan(&order)
	if err != nil {
		return nil, err
	}

	return &order, nil
}
