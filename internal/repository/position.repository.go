package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/shopspring/decimal"
)

type PositionRepository struct {
	db *sqlx.DB
}

func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) GetByUserID(ctx context.Context, userID int64) (*entity.Position, error) {
	var position entity.Position
	err := r.db.GetContext(ctx, &position, "SELECT * FROM positions WHERE user_id = $1 ORDER BY id ASC LIMIT 1", userID)
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// Close zeroes the position quantity. The row is kept for the audit trail.
func (r *PositionRepository) Close(ctx context.Context, id int64) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update("positions").
		Set("quantity", decimal.Zero).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
