package position

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/krobus00/order-trigger-service/internal/service/pricecache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrPositionNotFound    = errors.New("position not found")
	ErrInvalidPositionData = errors.New("invalid position data")
)

type PositionRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*entity.Position, error)
	Close(ctx context.Context, id int64) error
}

type Service struct {
	positionRepo PositionRepository
	priceCache   pricecache.Store
}

func NewService(positionRepo PositionRepository, priceCache pricecache.Store) *Service {
	return &Service{
		positionRepo: positionRepo,
		priceCache:   priceCache,
	}
}

func (s *Service) PositionForUser(ctx context.Context, userID int64) (*entity.Position, error) {
	position, err := s.positionRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	if strings.TrimSpace(position.Token) == "" || position.Quantity.IsNegative() {
		logrus.WithFields(logrus.Fields{
			"user_id":  userID,
			"token":    position.Token,
			"quantity": position.Quantity.String(),
		}).Error("invalid data in position row")
		return nil, ErrInvalidPositionData
	}

	return position, nil
}

// PriceForUser resolves the current reference price for the user's position:
// the last cached feed observation for the position token, falling back to
// the position entry price before any tick has been observed.
func (s *Service) PriceForUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	position, err := s.PositionForUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	observation, found, err := s.priceCache.Load(ctx, position.Token)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return position.EntryPrice, nil
	}

	return observation.Price, nil
}

func (s *Service) ClosePosition(ctx context.Context, position *entity.Position) error {
	logrus.WithFields(logrus.Fields{
		"user_id": position.UserID,
		"token":   position.Token,
	}).Info("closing position")

	return s.positionRepo.Close(ctx, position.ID)
}
