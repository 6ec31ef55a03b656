package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = errors.New("connection refused")

// flakyStore wraps a memory store and fails while down is set.
type flakyStore struct {
	*repositories.MemoryUserStore
	mu       sync.Mutex
	down     bool
	failSave map[string]bool
	saves    int
}

func newFlaky() *flakyStore {
	return &flakyStore{MemoryUserStore: repositories.NewMemoryUserStore(), failSave: map[string]bool{}}
}

func (f *flakyStore) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *flakyStore) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyStore) GetUser(ctx context.Context, id string) (*models.UserAccount, error) {
	if f.isDown() {
		return nil, errDown
	}
	return f.MemoryUserStore.GetUser(ctx, id)
}

func (f *flakyStore) SaveUser(ctx context.Context, u *models.UserAccount) error {
	f.mu.Lock()
	down, fail := f.down, f.failSave[u.ID]
	f.saves++
	f.mu.Unlock()
	if down || fail {
		return errDown
	}
	return f.MemoryUserStore.SaveUser(ctx, u)
}

func (f *flakyStore) FindVerifiedOwners(ctx context.Context, address string) ([]string, error) {
	if f.isDown() {
		return nil, errDown
	}
	return f.MemoryUserStore.FindVerifiedOwners(ctx, address)
}

func (f *flakyStore) ListUsers(ctx context.Context) ([]*models.UserAccount, error) {
	if f.isDown() {
		return nil, errDown
	}
	return f.MemoryUserStore.ListUsers(ctx)
}

func (f *flakyStore) ListUsersWithPending(ctx context.Context) ([]*models.UserAccount, error) {
	if f.isDown() {
		return nil, errDown
	}
	return f.MemoryUserStore.ListUsersWithPending(ctx)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if f.isDown() {
		return errDown
	}
	return nil
}

func user(id string) *models.UserAccount {
	return &models.UserAccount{ID: id, Wallets: []models.WalletRecord{
		models.NewPendingWallet("0xabc0000000000000000000000000000000000001", "0.001234", time.Now()),
	}}
}

func TestStoreFailsOverAndStaysInMemory(t *testing.T) {
	ctx := context.Background()
	durable := newFlaky()
	var changes []Mode
	s := NewStore(durable, nil, Config{OnModeChange: func(from, to Mode, reason string) {
		changes = append(changes, to)
	}}, zap.NewNop())

	require.NoError(t, s.SaveUser(ctx, user("u1")))
	assert.Equal(t, ModeDurable, s.Mode())

	durable.setDown(true)
	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got, "mirror should have been warmed by the earlier write")
	assert.Equal(t, ModeMemory, s.Mode())
	assert.Equal(t, []Mode{ModeMemory}, changes)

	// later operations never touch the durable store, even once it is back
	durable.setDown(false)
	require.NoError(t, s.SaveUser(ctx, user("u2")))
	missing, err := durable.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, ModeMemory, s.Mode())
}

func TestStoreWriteFallsBackWithoutError(t *testing.T) {
	ctx := context.Background()
	durable := newFlaky()
	durable.setDown(true)
	s := NewStore(durable, nil, Config{}, zap.NewNop())

	require.NoError(t, s.SaveUser(ctx, user("u1")))
	assert.Equal(t, ModeMemory, s.Mode())

	owners, err := s.FindVerifiedOwners(ctx, "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestStoreCanceledContextDoesNotTrip(t *testing.T) {
	durable := newFlaky()
	durable.setDown(true)
	s := NewStore(durable, nil, Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ModeDurable, s.Mode())
}

func TestResyncMergesAndRestores(t *testing.T) {
	ctx := context.Background()
	durable := newFlaky()
	require.NoError(t, durable.MemoryUserStore.SaveUser(ctx, user("only-durable")))

	stale := user("both")
	require.NoError(t, durable.MemoryUserStore.SaveUser(ctx, stale))

	s := NewStore(durable, nil, Config{StartInMemory: true}, zap.NewNop())
	fresh := stale.Clone()
	require.NoError(t, fresh.Wallets[0].Transition(models.VerificationStatusVerified, time.Now()))
	require.NoError(t, s.SaveUser(ctx, fresh))
	require.NoError(t, s.SaveUser(ctx, user("only-memory")))

	res, err := s.Resync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Durable)
	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, 3, res.Pushed)
	assert.Equal(t, ModeDurable, s.Mode())

	got, err := durable.GetUser(ctx, "both")
	require.NoError(t, err)
	assert.True(t, got.Wallets[0].Verified, "memory copy must win over the stale durable row")

	got, err = durable.GetUser(ctx, "only-memory")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestResyncPartialKeepsMemoryMode(t *testing.T) {
	ctx := context.Background()
	durable := newFlaky()
	durable.failSave["u2"] = true

	s := NewStore(durable, nil, Config{StartInMemory: true}, zap.NewNop())
	require.NoError(t, s.SaveUser(ctx, user("u1")))
	require.NoError(t, s.SaveUser(ctx, user("u2")))

	res, err := s.Resync(ctx)
	require.ErrorIs(t, err, ErrResyncIncomplete)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, ModeMemory, s.Mode())
}

func TestWatcherResyncsWhenReachable(t *testing.T) {
	durable := newFlaky()
	durable.setDown(true)
	s := NewStore(durable, nil, Config{StartInMemory: true}, zap.NewNop())
	require.NoError(t, s.SaveUser(context.Background(), user("u1")))

	w := NewWatcher(s, durable, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, ModeMemory, s.Mode())

	durable.setDown(false)
	require.Eventually(t, func() bool { return s.Mode() == ModeDurable }, time.Second, 10*time.Millisecond)

	got, err := durable.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestResyncInDurableModeKeepsDurableRows(t *testing.T) {
	ctx := context.Background()
	durable := newFlaky()
	holder := user("u1")
	require.NoError(t, holder.Wallets[0].Transition(models.VerificationStatusVerified, time.Now()))
	holder.Wallets[0].HasNFT = true
	require.NoError(t, durable.MemoryUserStore.SaveUser(ctx, holder))

	s := NewStore(durable, nil, Config{}, zap.NewNop())
	_, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)

	// another process (the audit) updates the row behind the mirror
	sold := holder.Clone()
	sold.Wallets[0].HasNFT = false
	require.NoError(t, durable.MemoryUserStore.SaveUser(ctx, sold))
	savesBefore := durable.saves

	res, err := s.Resync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Durable)
	assert.Equal(t, 1, res.Loaded)
	assert.Zero(t, res.Pushed)
	assert.Equal(t, savesBefore, durable.saves, "nothing is pushed in durable mode")
	assert.Equal(t, ModeDurable, s.Mode())

	got, err := durable.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Wallets[0].HasNFT)

	// the mirror now carries the durable value for a later failover
	durable.setDown(true)
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ModeMemory, s.Mode())
	assert.False(t, got.Wallets[0].HasNFT)
}
