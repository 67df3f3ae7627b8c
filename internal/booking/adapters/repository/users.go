package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
)

type userStore struct {
	pool *pgxpool.Pool
}

// NewUserStore reads identity, role, and last saved coordinates from the
// external user/merchant tables.
func NewUserStore(pool *pgxpool.Pool) domain.UserStore {
	return &userStore{pool: pool}
}

func (s *userStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT id, role, lat, lng FROM users WHERE id = $1`
	var u domain.User
	err := s.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Role, &u.Lat, &u.Lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, classify(err)
	}
	return &u, nil
}
