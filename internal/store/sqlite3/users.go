package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/flowloom/loom/internal/service"
	"github.com/oklog/ulid/v2"
)

// ─── User CRUD ───

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    string `db:"created_at"`
}

func (s *SQLite) GetUser(ctx context.Context, id string) (*service.User, error) {
	query, _, err := s.goqu.From(s.tableUsers).
		Select("id", "username", "password_hash", "created_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user query: %w", err)
	}

	var row userRow
	err = s.db.QueryRowContext(ctx, query).Scan(&row.ID, &row.Username, &row.PasswordHash, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", id, err)
	}

	return userRowToRecord(row), nil
}

func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (*service.User, error) {
	query, _, err := s.goqu.From(s.tableUsers).
		Select("id", "username", "password_hash", "created_at").
		Where(goqu.I("username").Eq(username)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user by username query: %w", err)
	}

	var row userRow
	err = s.db.QueryRowContext(ctx, query).Scan(&row.ID, &row.Username, &row.PasswordHash, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username %q: %w", username, err)
	}

	return userRowToRecord(row), nil
}

func (s *SQLite) CreateUser(ctx context.Context, u service.User) (*service.User, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := s.goqu.Insert(s.tableUsers).Rows(
		goqu.Record{
			"id":            id,
			"username":      u.Username,
			"password_hash": u.PasswordHash,
			"created_at":    now.Format(time.RFC3339),
		},
	).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert user query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("create user %q: %w", u.Username, err)
	}

	return &service.User{
		ID:           id,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    now.Format(time.RFC3339),
	}, nil
}

func userRowToRecord(row userRow) *service.User {
	return &service.User{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
	}
}
