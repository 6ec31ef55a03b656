package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nft-gate/backend/internal/models"
)

// PostgresUserStore keeps one row per user with the wallets as JSONB.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

func (r *PostgresUserStore) GetUser(ctx context.Context, id string) (*models.UserAccount, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, wallets, created_at, updated_at
		FROM verification_users WHERE user_id = $1
	`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresUserStore) SaveUser(ctx context.Context, user *models.UserAccount) error {
	wallets := user.Wallets
	if wallets == nil {
		wallets = []models.WalletRecord{}
	}
	data, err := json.Marshal(wallets)
	if err != nil {
		return fmt.Errorf("marshal wallets: %w", err)
	}

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := user.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO verification_users (user_id, wallets, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			wallets = EXCLUDED.wallets,
			updated_at = EXCLUDED.updated_at
	`, user.ID, string(data), createdAt, updatedAt)
	return err
}

func (r *PostgresUserStore) FindVerifiedOwners(ctx context.Context, address string) ([]string, error) {
	filter, err := json.Marshal([]map[string]any{{"address": strings.ToLower(address), "verified": true}})
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM verification_users WHERE wallets @> $1::jsonb
	`, string(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresUserStore) ListUsersWithPending(ctx context.Context) ([]*models.UserAccount, error) {
	return r.list(ctx, `
		SELECT user_id, wallets, created_at, updated_at
		FROM verification_users WHERE wallets @> '[{"status":"pending"}]'::jsonb
		ORDER BY user_id
	`)
}

func (r *PostgresUserStore) ListUsers(ctx context.Context) ([]*models.UserAccount, error) {
	return r.list(ctx, `
		SELECT user_id, wallets, created_at, updated_at
		FROM verification_users ORDER BY user_id
	`)
}

func (r *PostgresUserStore) list(ctx context.Context, query string) ([]*models.UserAccount, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.UserAccount
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*models.UserAccount, error) {
	var u models.UserAccount
	var raw []byte
	if err := row.Scan(&u.ID, &raw, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &u.Wallets); err != nil {
			return nil, fmt.Errorf("decode wallets of %s: %w", u.ID, err)
		}
	}
	return &u, nil
}
