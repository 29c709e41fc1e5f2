package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neuro-mcq/backend/internal/models"
)

var ErrNotFound = errors.New("user not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(ctx context.Context, email, name, hashedPassword string) (*models.User, error) {
	var u models.User
	now := time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name, password, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING id, email, name, is_staff, account_expires_at, created_at, updated_at`,
		email, name, hashedPassword, now,
	).Scan(&u.ID, &u.Email, &u.Name, &u.IsStaff, &u.AccountExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanOne(ctx,
		`SELECT id, email, name, password, is_staff, account_expires_at, created_at, updated_at
		 FROM users WHERE email = $1`, email)
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return s.scanOne(ctx,
		`SELECT id, email, name, password, is_staff, account_expires_at, created_at, updated_at
		 FROM users WHERE id = $1`, id)
}

func (s *Store) scanOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Password, &u.IsStaff, &u.AccountExpiresAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// IsStaff satisfies middleware.StaffChecker.
func (s *Store) IsStaff(ctx context.Context, userID int64) (bool, error) {
	var staff bool
	err := s.db.QueryRowContext(ctx, `SELECT is_staff FROM users WHERE id = $1`, userID).Scan(&staff)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query staff flag: %w", err)
	}
	return staff, nil
}

// SetStaff grants or revokes staff access by email.
func (s *Store) SetStaff(ctx context.Context, email string, staff bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_staff = $1, updated_at = NOW() WHERE email = $2`,
		staff, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("update staff flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
