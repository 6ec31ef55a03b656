package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nft-gate/backend/internal/failover"
	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	mixedAddr = "0xABCDEF0000000000000000000000000000000001"
	lowerAddr = "0xabcdef0000000000000000000000000000000001"
	otherAddr = "0x2222222222222222222222222222222222222222"
)

type fixture struct {
	svc      *VerificationService
	store    repositories.UserStore
	txs      *mockTxChecker
	holdings *mockHoldings
	clock    *testClock
}

func newFixture(t *testing.T, store repositories.UserStore) *fixture {
	t.Helper()
	if store == nil {
		store = repositories.NewMemoryUserStore()
	}
	f := &fixture{
		store:    store,
		txs:      &mockTxChecker{},
		holdings: &mockHoldings{},
		clock:    newTestClock(),
	}
	f.svc = NewVerificationService(store, f.txs, f.holdings, nil, nil, VerificationConfig{
		Window:         10 * time.Minute,
		RefreshRetries: 3,
		Now:            f.clock.Now,
	}, zap.NewNop())
	return f
}

// verify drives a fresh verification for userID to the verified state.
func (f *fixture) verify(t *testing.T, userID, address string, hasNFT bool) *StartResult {
	t.Helper()
	start, err := f.svc.Start(context.Background(), userID, address)
	require.NoError(t, err)
	f.txs.On("HasSelfTransfer", start.Address, start.Amount).Return(true, nil).Once()
	f.holdings.On("HasCollection", start.Address).Return(hasNFT, nil).Once()

	res, err := f.svc.CheckByID(context.Background(), userID, start.WalletID)
	require.NoError(t, err)
	require.Equal(t, models.VerificationStatusVerified, res.Status)
	return start
}

func TestStartNormalizesAddress(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Start(context.Background(), "u1", mixedAddr)
	require.NoError(t, err)
	assert.Equal(t, lowerAddr, res.Address)
	assert.Equal(t, 0, res.Index)

	amount, err := models.ParseAmountToWei(res.Amount)
	require.NoError(t, err)
	assert.Positive(t, amount.Sign())

	user, err := f.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, user.Wallets, 1)
	assert.Equal(t, lowerAddr, user.Wallets[0].Address)
	assert.Equal(t, models.VerificationStatusPending, user.Wallets[0].Status)
}

func TestStartRejectsInvalidAddress(t *testing.T) {
	f := newFixture(t, nil)
	for _, addr := range []string{"", "0x123", "abcdef0000000000000000000000000000000001", "0xZZcdef0000000000000000000000000000000001"} {
		_, err := f.svc.Start(context.Background(), "u1", addr)
		assert.ErrorIs(t, err, models.ErrInvalidAddress, addr)
	}
}

func TestStartConflicts(t *testing.T) {
	f := newFixture(t, nil)
	f.verify(t, "u1", mixedAddr, true)

	_, err := f.svc.Start(context.Background(), "u1", lowerAddr)
	assert.ErrorIs(t, err, models.ErrAlreadyVerified)

	_, err = f.svc.Start(context.Background(), "u2", mixedAddr)
	assert.ErrorIs(t, err, models.ErrAddressTaken)
}

func TestCheckVerifiesAndShortCircuits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)

	f.txs.On("HasSelfTransfer", lowerAddr, start.Amount).Return(false, nil).Once()
	res, err := f.svc.Check(ctx, "u", start.Index)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusPending, res.Status)
	assert.Equal(t, 10*time.Minute, res.TimeRemaining)

	f.clock.Advance(3 * time.Minute)
	f.txs.On("HasSelfTransfer", lowerAddr, start.Amount).Return(true, nil).Once()
	f.holdings.On("HasCollection", lowerAddr).Return(true, nil).Once()

	first, err := f.svc.Check(ctx, "u", start.Index)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusVerified, first.Status)
	assert.True(t, first.HasNFT)

	second, err := f.svc.Check(ctx, "u", start.Index)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	f.txs.AssertNumberOfCalls(t, "HasSelfTransfer", 2)
	f.holdings.AssertNumberOfCalls(t, "HasCollection", 1)
}

func TestCheckExpiresRegardlessOfMatcher(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	res, err := f.svc.Check(ctx, "u", start.Index)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusExpired, res.Status)
	f.txs.AssertNotCalled(t, "HasSelfTransfer", mock.Anything, mock.Anything)

	user, _ := f.store.GetUser(ctx, "u")
	assert.False(t, user.Wallets[0].Verified)
	assert.NotNil(t, user.Wallets[0].ResolvedAt)
}

func TestCheckHoldingsFailureStillVerifies(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)
	f.txs.On("HasSelfTransfer", lowerAddr, start.Amount).Return(true, nil)
	f.holdings.On("HasCollection", lowerAddr).Return(false, errors.New("indexer down"))

	res, err := f.svc.CheckByID(ctx, "u", start.WalletID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusVerified, res.Status)
	assert.False(t, res.HasNFT)
}

func TestCheckTransactionErrorStaysPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)
	f.txs.On("HasSelfTransfer", lowerAddr, start.Amount).Return(false, errors.New("timeout"))

	res, err := f.svc.CheckByID(ctx, "u", start.WalletID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusPending, res.Status)
	assert.False(t, res.Error)
}

func TestCheckNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Check(ctx, "ghost", 0)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)
	_, err = f.svc.Check(ctx, "u", 5)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOnlyOneOwnerPerAddress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.Start(ctx, "u1", mixedAddr)
	require.NoError(t, err)
	b, err := f.svc.Start(ctx, "u2", mixedAddr)
	require.NoError(t, err)

	f.txs.On("HasSelfTransfer", lowerAddr, mock.Anything).Return(true, nil)
	f.holdings.On("HasCollection", lowerAddr).Return(true, nil)

	ra, err := f.svc.CheckByID(ctx, "u1", a.WalletID)
	require.NoError(t, err)
	rb, err := f.svc.CheckByID(ctx, "u2", b.WalletID)
	require.NoError(t, err)

	assert.Equal(t, models.VerificationStatusVerified, ra.Status)
	assert.Equal(t, models.VerificationStatusFailed, rb.Status)

	owners, err := f.store.FindVerifiedOwners(ctx, lowerAddr)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, owners)
}

func TestConcurrentChecksResolveOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)
	f.txs.On("HasSelfTransfer", lowerAddr, start.Amount).Return(true, nil)
	f.holdings.On("HasCollection", lowerAddr).Return(true, nil)

	results := make(chan CheckResult, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := f.svc.CheckByID(ctx, "u", start.WalletID)
			assert.NoError(t, err)
			results <- res
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, models.VerificationStatusVerified, (<-results).Status)
	}

	user, _ := f.store.GetUser(ctx, "u")
	require.Len(t, user.Wallets, 1)
	assert.True(t, user.Wallets[0].Verified)
}

func TestVerifiedWalletsAndRemove(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	wallets, err := f.svc.VerifiedWallets(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, wallets)

	f.verify(t, "u", mixedAddr, true)
	_, err = f.svc.Start(ctx, "u", otherAddr)
	require.NoError(t, err)

	wallets, err = f.svc.VerifiedWallets(ctx, "u")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, lowerAddr, wallets[0].Address)
	assert.True(t, wallets[0].HasNFT)

	_, err = f.svc.RemoveWallet(ctx, "u", otherAddr)
	assert.ErrorIs(t, err, models.ErrNotFound, "pending records cannot be removed")
	_, err = f.svc.RemoveWallet(ctx, "ghost", lowerAddr)
	assert.ErrorIs(t, err, models.ErrNotFound)

	removed, err := f.svc.RemoveWallet(ctx, "u", mixedAddr)
	require.NoError(t, err)
	assert.Equal(t, lowerAddr, removed.Address)

	user, _ := f.store.GetUser(ctx, "u")
	require.Len(t, user.Wallets, 1)
	assert.Equal(t, otherAddr, user.Wallets[0].Address)

	// address is free again for another member
	_, err = f.svc.Start(ctx, "u2", lowerAddr)
	assert.NoError(t, err)
}

func TestRefreshHoldingsPreservesOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.verify(t, "u", mixedAddr, true)
	f.verify(t, "u", otherAddr, false)

	f.holdings.On("HasCollection", mock.Anything).Return(false, errors.New("indexer down"))

	res, err := f.svc.RefreshHoldings(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.ChecksFailed)
	assert.True(t, res.HasAnyNFT)
	assert.Empty(t, res.SoldNFTs)
	require.Len(t, res.Wallets, 2)
	assert.True(t, res.Wallets[0].HasNFT)
	assert.False(t, res.Wallets[0].Checked)
	assert.False(t, res.Wallets[1].HasNFT)

	// two wallets from verify() plus one attempt and three retries each
	f.holdings.AssertNumberOfCalls(t, "HasCollection", 2+2*4)

	user, _ := f.store.GetUser(ctx, "u")
	assert.True(t, user.Wallets[0].HasNFT)
}

func TestRefreshHoldingsSucceedsOnLastRetry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.verify(t, "u", mixedAddr, false)

	f.holdings.On("HasCollection", lowerAddr).Return(false, errors.New("indexer down")).Times(3)
	f.holdings.On("HasCollection", lowerAddr).Return(true, nil).Once()

	res, err := f.svc.RefreshHoldings(ctx, "u")
	require.NoError(t, err)
	assert.False(t, res.ChecksFailed)
	require.Len(t, res.Wallets, 1)
	assert.True(t, res.Wallets[0].Checked)
	assert.True(t, res.Wallets[0].HasNFT)
	f.holdings.AssertNumberOfCalls(t, "HasCollection", 1+4)
}

func TestRefreshHoldingsDetectsSold(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.verify(t, "u", mixedAddr, true)
	f.verify(t, "u", otherAddr, false)

	f.holdings.On("HasCollection", lowerAddr).Return(false, nil).Once()
	f.holdings.On("HasCollection", otherAddr).Return(false, errors.New("flaky")).Once()
	f.holdings.On("HasCollection", otherAddr).Return(true, nil).Once()

	res, err := f.svc.RefreshHoldings(ctx, "u")
	require.NoError(t, err)
	assert.False(t, res.ChecksFailed)
	assert.True(t, res.HasAnyNFT)
	assert.Equal(t, []string{lowerAddr}, res.SoldNFTs)

	user, _ := f.store.GetUser(ctx, "u")
	assert.False(t, user.Wallets[0].HasNFT)
	assert.True(t, user.Wallets[1].HasNFT)
}

func TestRefreshHoldingsErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RefreshHoldings(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)
	_, err = f.svc.RefreshHoldings(ctx, "u")
	assert.ErrorIs(t, err, models.ErrNoVerifiedWallets)
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.verify(t, "u1", mixedAddr, true)
	f.verify(t, "u2", otherAddr, false)
	_, err := f.svc.Start(ctx, "u2", "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{
		TotalUsers:           2,
		TotalWallets:         3,
		VerifiedWallets:      2,
		PendingVerifications: 1,
		NFTHolders:           1,
	}, st)
}

// brokenStore fails every call like a dead database.
type brokenStore struct{}

var errConnRefused = errors.New("dial tcp: connection refused")

func (brokenStore) GetUser(context.Context, string) (*models.UserAccount, error) {
	return nil, errConnRefused
}
func (brokenStore) SaveUser(context.Context, *models.UserAccount) error { return errConnRefused }
func (brokenStore) FindVerifiedOwners(context.Context, string) ([]string, error) {
	return nil, errConnRefused
}
func (brokenStore) ListUsersWithPending(context.Context) ([]*models.UserAccount, error) {
	return nil, errConnRefused
}
func (brokenStore) ListUsers(context.Context) ([]*models.UserAccount, error) {
	return nil, errConnRefused
}

func TestFailoverIsInvisibleToCallers(t *testing.T) {
	store := failover.NewStore(brokenStore{}, nil, failover.Config{}, zap.NewNop())
	f := newFixture(t, store)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "u", mixedAddr)
	require.NoError(t, err)
	assert.Equal(t, failover.ModeMemory, store.Mode())

	f.txs.On("HasSelfTransfer", lowerAddr, start.Amount).Return(true, nil)
	f.holdings.On("HasCollection", lowerAddr).Return(false, nil)

	res, err := f.svc.Check(ctx, "u", start.Index)
	require.NoError(t, err)
	assert.False(t, res.Error)
	assert.Equal(t, models.VerificationStatusVerified, res.Status)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", st.StorageMode)
}

// unavailableStore models both backends failing.
type unavailableStore struct{ brokenStore }

func (unavailableStore) GetUser(context.Context, string) (*models.UserAccount, error) {
	return nil, fmt.Errorf("get_user: %w", repositories.ErrStoreUnavailable)
}

func TestCheckDegradedWhenStoreUnavailable(t *testing.T) {
	f := newFixture(t, unavailableStore{})

	res, err := f.svc.Check(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.True(t, res.Error)
}
