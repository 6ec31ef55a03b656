package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nft-gate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database only when TEST_DB_URL is set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS verification_users (
			user_id    TEXT PRIMARY KEY,
			wallets    JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE verification_users`)
	require.NoError(t, err)
	return pool
}

func TestPostgresUserStore(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	s := NewPostgresUserStore(pool)
	now := time.Now().UTC().Truncate(time.Millisecond)
	addr := "0xabc0000000000000000000000000000000000001"

	missing, err := s.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	w := models.NewPendingWallet(addr, "0.001234", now)
	u := &models.UserAccount{ID: "u1", Wallets: []models.WalletRecord{w}, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.SaveUser(ctx, u))

	pending, err := s.ListUsersWithPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, w.ID, pending[0].Wallets[0].ID)

	require.NoError(t, u.Wallets[0].Transition(models.VerificationStatusVerified, now))
	require.NoError(t, s.SaveUser(ctx, u))

	owners, err := s.FindVerifiedOwners(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, owners)

	pending, err = s.ListUsersWithPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Wallets, 1)
	assert.True(t, got.Wallets[0].Verified)
	assert.Equal(t, "0.001234", got.Wallets[0].VerificationAmount)
}
