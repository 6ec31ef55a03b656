package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/metrics"
	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/repositories"
	"go.uber.org/zap"
)

type TransactionChecker interface {
	HasSelfTransfer(ctx context.Context, address, amount string) (bool, error)
}

type HoldingsChecker interface {
	HasCollection(ctx context.Context, address string) (bool, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// StorageStatus reports which storage backend is serving requests.
type StorageStatus interface {
	StorageMode() string
}

type VerificationConfig struct {
	Window time.Duration
	// RefreshRetries is the number of retries after the first failed
	// holdings check of a wallet during refresh.
	RefreshRetries int
	RefreshBackoff time.Duration
	Now            func() time.Time
}

// VerificationService owns the wallet verification state machine.
type VerificationService struct {
	store     repositories.UserStore
	txs       TransactionChecker
	holdings  HoldingsChecker
	audit     AuditLogger
	publisher events.Publisher
	cfg       VerificationConfig

	addrLocks *keyedLocks
	userLocks *keyedLocks

	log *zap.Logger
}

func NewVerificationService(
	store repositories.UserStore,
	txs TransactionChecker,
	holdings HoldingsChecker,
	audit AuditLogger,
	publisher events.Publisher,
	cfg VerificationConfig,
	log *zap.Logger,
) *VerificationService {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.RefreshRetries <= 0 {
		cfg.RefreshRetries = 3
	}
	if cfg.RefreshBackoff < 0 {
		cfg.RefreshBackoff = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &VerificationService{
		store:     store,
		txs:       txs,
		holdings:  holdings,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		addrLocks: newKeyedLocks(),
		userLocks: newKeyedLocks(),
		log:       log,
	}
}

func (s *VerificationService) Window() time.Duration {
	return s.cfg.Window
}

type StartResult struct {
	WalletID uuid.UUID
	Address  string
	Amount   string
	Index    int
}

// Start creates a pending verification attempt. The ownership checks and
// the append happen under the address lock, so two users cannot both get
// past them for the same address.
func (s *VerificationService) Start(ctx context.Context, userID, rawAddress string) (*StartResult, error) {
	address, err := models.NormalizeAddress(rawAddress)
	if err != nil {
		return nil, err
	}

	unlockAddr := s.addrLocks.Lock(address)
	defer unlockAddr()
	unlockUser := s.userLocks.Lock(userID)
	defer unlockUser()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user != nil && user.HasVerified(address) {
		return nil, models.ErrAlreadyVerified
	}

	owners, err := s.store.FindVerifiedOwners(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to check address owners: %w", err)
	}
	for _, owner := range owners {
		if owner != userID {
			return nil, models.ErrAddressTaken
		}
	}

	now := s.cfg.Now()
	if user == nil {
		user = &models.UserAccount{ID: userID, CreatedAt: now}
	}
	wallet := models.NewPendingWallet(address, models.RandomVerificationAmount(), now)
	user.Wallets = append(user.Wallets, wallet)
	user.UpdatedAt = now

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save verification: %w", err)
	}

	metrics.VerificationsStarted.Inc()
	s.logAudit(ctx, userID, models.AuditVerificationStarted, &wallet.ID, map[string]any{
		"address": address, "amount": wallet.VerificationAmount,
	})
	_ = s.publisher.Publish(ctx, events.StreamVerification, events.Event{
		Type: events.EventVerificationStarted,
		Payload: map[string]any{
			"user_id":   userID,
			"wallet_id": wallet.ID.String(),
			"address":   address,
			"amount":    wallet.VerificationAmount,
		},
	})

	s.log.Info("verification started",
		zap.String("user_id", userID),
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("address", address),
		zap.String("amount", wallet.VerificationAmount),
	)

	return &StartResult{
		WalletID: wallet.ID,
		Address:  address,
		Amount:   wallet.VerificationAmount,
		Index:    len(user.Wallets) - 1,
	}, nil
}

// CheckResult is the outcome of one status check. Error is set when the
// store could not be reached at all; the caller should retry later.
type CheckResult struct {
	WalletID      uuid.UUID
	Index         int
	Status        string
	Address       string
	Amount        string
	HasNFT        bool
	TimeRemaining time.Duration
	Error         bool
}

func (r CheckResult) Resolved() bool {
	return models.IsTerminalVerificationStatus(r.Status)
}

// Check advances the verification at a presentation index.
func (s *VerificationService) Check(ctx context.Context, userID string, index int) (CheckResult, error) {
	walletID, err := s.WalletID(ctx, userID, index)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return CheckResult{}, err
		}
		return s.degraded(userID, err)
	}
	return s.CheckByID(ctx, userID, walletID)
}

// WalletID resolves a presentation index to the wallet's stable id.
func (s *VerificationService) WalletID(ctx context.Context, userID string, index int) (uuid.UUID, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if user == nil {
		return uuid.Nil, models.ErrNotFound
	}
	w := user.WalletAt(index)
	if w == nil {
		return uuid.Nil, models.ErrNotFound
	}
	return w.ID, nil
}

// CheckByID advances the verification identified by its wallet id.
// Resolved records are answered from the store without touching the chain.
func (s *VerificationService) CheckByID(ctx context.Context, userID string, walletID uuid.UUID) (CheckResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return s.degraded(userID, err)
	}
	if user == nil {
		return CheckResult{}, models.ErrNotFound
	}
	idx, w := user.WalletByID(walletID)
	if w == nil {
		return CheckResult{}, models.ErrNotFound
	}

	if w.Status != models.VerificationStatusPending {
		return s.result(idx, w), nil
	}

	now := s.cfg.Now()
	if w.Expired(now, s.cfg.Window) {
		return s.commit(ctx, userID, walletID, func(w *models.WalletRecord, _ []string) (string, bool) {
			return models.VerificationStatusExpired, false
		})
	}

	matched, err := s.txs.HasSelfTransfer(ctx, w.Address, w.VerificationAmount)
	if err != nil {
		s.log.Warn("transaction check failed, still pending",
			zap.String("user_id", userID), zap.String("wallet_id", walletID.String()), zap.Error(err))
		return s.result(idx, w), nil
	}
	if !matched {
		return s.result(idx, w), nil
	}

	hasNFT, err := s.holdings.HasCollection(ctx, w.Address)
	if err != nil {
		s.log.Warn("holdings check failed during verification, assuming no NFT",
			zap.String("user_id", userID), zap.String("address", w.Address), zap.Error(err))
		hasNFT = false
	}

	return s.commit(ctx, userID, walletID, func(w *models.WalletRecord, owners []string) (string, bool) {
		for _, owner := range owners {
			if owner != userID {
				return models.VerificationStatusFailed, false
			}
		}
		return models.VerificationStatusVerified, hasNFT
	})
}

// commit resolves a pending record. decide runs under the address and
// user locks against freshly loaded state.
func (s *VerificationService) commit(
	ctx context.Context,
	userID string,
	walletID uuid.UUID,
	decide func(w *models.WalletRecord, owners []string) (status string, hasNFT bool),
) (CheckResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return s.degraded(userID, err)
	}
	if user == nil {
		return CheckResult{}, models.ErrNotFound
	}
	_, w := user.WalletByID(walletID)
	if w == nil {
		return CheckResult{}, models.ErrNotFound
	}

	unlockAddr := s.addrLocks.Lock(w.Address)
	defer unlockAddr()
	unlockUser := s.userLocks.Lock(userID)
	defer unlockUser()

	user, err = s.store.GetUser(ctx, userID)
	if err != nil {
		return s.degraded(userID, err)
	}
	if user == nil {
		return CheckResult{}, models.ErrNotFound
	}
	idx, w := user.WalletByID(walletID)
	if w == nil {
		return CheckResult{}, models.ErrNotFound
	}
	if w.Status != models.VerificationStatusPending {
		return s.result(idx, w), nil
	}

	owners, err := s.store.FindVerifiedOwners(ctx, w.Address)
	if err != nil {
		return s.degraded(userID, err)
	}

	status, hasNFT := decide(w, owners)
	now := s.cfg.Now()
	if err := w.Transition(status, now); err != nil {
		return CheckResult{}, err
	}
	w.HasNFT = hasNFT
	user.UpdatedAt = now

	if err := s.store.SaveUser(ctx, user); err != nil {
		return s.degraded(userID, err)
	}

	metrics.VerificationTransitions.WithLabelValues(status).Inc()
	if status == models.VerificationStatusVerified {
		s.logAudit(ctx, userID, models.AuditWalletVerified, &w.ID, map[string]any{
			"address": w.Address, "has_nft": hasNFT,
		})
	}
	_ = s.publisher.Publish(ctx, events.StreamVerification, events.Event{
		Type: events.EventVerificationResolved,
		Payload: map[string]any{
			"user_id":   userID,
			"wallet_id": w.ID.String(),
			"address":   w.Address,
			"status":    status,
			"has_nft":   hasNFT,
			"text":      outcomeText(w.Address, status, hasNFT),
		},
	})

	s.log.Info("verification resolved",
		zap.String("user_id", userID),
		zap.String("wallet_id", w.ID.String()),
		zap.String("address", w.Address),
		zap.String("status", status),
		zap.Bool("has_nft", hasNFT),
	)
	return s.result(idx, w), nil
}

func (s *VerificationService) result(idx int, w *models.WalletRecord) CheckResult {
	r := CheckResult{
		WalletID: w.ID,
		Index:    idx,
		Status:   w.Status,
		Address:  w.Address,
		Amount:   w.VerificationAmount,
		HasNFT:   w.HasNFT,
	}
	if w.Status == models.VerificationStatusPending {
		r.TimeRemaining = w.TimeRemaining(s.cfg.Now(), s.cfg.Window)
	}
	return r
}

func (s *VerificationService) degraded(userID string, err error) (CheckResult, error) {
	if !errors.Is(err, repositories.ErrStoreUnavailable) {
		return CheckResult{}, err
	}
	s.log.Error("verification store unavailable", zap.String("user_id", userID), zap.Error(err))
	return CheckResult{Error: true}, nil
}

// VerifiedWallets returns the user's verified wallets; unknown users have none.
func (s *VerificationService) VerifiedWallets(ctx context.Context, userID string) ([]models.WalletRecord, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return []models.WalletRecord{}, nil
	}
	wallets := user.VerifiedWallets()
	if wallets == nil {
		wallets = []models.WalletRecord{}
	}
	return wallets, nil
}

// RemoveWallet deletes the user's verified record for address.
func (s *VerificationService) RemoveWallet(ctx context.Context, userID, rawAddress string) (*models.WalletRecord, error) {
	address := strings.ToLower(strings.TrimSpace(rawAddress))

	unlockAddr := s.addrLocks.Lock(address)
	defer unlockAddr()
	unlockUser := s.userLocks.Lock(userID)
	defer unlockUser()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, models.ErrNotFound
	}

	idx := -1
	for i, w := range user.Wallets {
		if w.Verified && strings.EqualFold(w.Address, address) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, models.ErrNotFound
	}

	removed := user.Wallets[idx]
	user.Wallets = append(user.Wallets[:idx], user.Wallets[idx+1:]...)
	user.UpdatedAt = s.cfg.Now()

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.logAudit(ctx, userID, models.AuditWalletRemoved, &removed.ID, map[string]any{"address": removed.Address})
	s.log.Info("wallet removed", zap.String("user_id", userID), zap.String("address", removed.Address))
	return &removed, nil
}

type WalletHolding struct {
	WalletID uuid.UUID
	Address  string
	HasNFT   bool
	// Checked is false when every lookup attempt failed and HasNFT is the
	// previously stored value.
	Checked bool
}

type RefreshResult struct {
	Wallets   []WalletHolding
	HasAnyNFT bool
	SoldNFTs  []string
	// ChecksFailed means no wallet could be checked; the result must not
	// be used to revoke anything.
	ChecksFailed bool
}

// RefreshHoldings re-checks NFT holdings of every verified wallet.
func (s *VerificationService) RefreshHoldings(ctx context.Context, userID string) (*RefreshResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, models.ErrNotFound
	}
	verified := user.VerifiedWallets()
	if len(verified) == 0 {
		return nil, models.ErrNoVerifiedWallets
	}

	res := &RefreshResult{}
	failed := 0
	for _, w := range verified {
		h := WalletHolding{WalletID: w.ID, Address: w.Address, HasNFT: w.HasNFT}
		has, err := s.checkHoldingsWithRetry(ctx, w.Address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			s.log.Warn("holdings refresh exhausted, keeping previous value",
				zap.String("user_id", userID), zap.String("address", w.Address),
				zap.Bool("has_nft", w.HasNFT), zap.Error(err))
		} else {
			h.HasNFT = has
			h.Checked = true
			if w.HasNFT && !has {
				res.SoldNFTs = append(res.SoldNFTs, w.Address)
			}
		}
		if h.HasNFT {
			res.HasAnyNFT = true
		}
		res.Wallets = append(res.Wallets, h)
	}
	res.ChecksFailed = failed == len(verified)

	if err := s.applyHoldings(ctx, userID, res.Wallets); err != nil {
		return nil, err
	}

	s.logAudit(ctx, userID, models.AuditHoldingsRefreshed, nil, map[string]any{
		"has_any_nft": res.HasAnyNFT, "sold": res.SoldNFTs, "checks_failed": res.ChecksFailed,
	})
	for _, addr := range res.SoldNFTs {
		_ = s.publisher.Publish(ctx, events.StreamRoles, events.Event{
			Type: events.EventNFTSold,
			Payload: map[string]any{
				"user_id": userID,
				"address": addr,
				"text":    fmt.Sprintf("No NFT from the collection was found in wallet %s anymore.", addr),
			},
		})
	}

	s.log.Info("holdings refreshed",
		zap.String("user_id", userID),
		zap.Int("wallets", len(res.Wallets)),
		zap.Bool("has_any_nft", res.HasAnyNFT),
		zap.Int("sold", len(res.SoldNFTs)),
		zap.Bool("checks_failed", res.ChecksFailed),
	)
	return res, nil
}

func (s *VerificationService) checkHoldingsWithRetry(ctx context.Context, address string) (bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RefreshBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.RefreshRetries)), ctx)

	var has bool
	err := backoff.RetryNotify(func() error {
		h, err := s.holdings.HasCollection(ctx, address)
		if err != nil {
			return err
		}
		has = h
		return nil
	}, policy, func(err error, wait time.Duration) {
		s.log.Debug("holdings check failed, retrying",
			zap.String("address", address), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return false, err
	}
	return has, nil
}

// applyHoldings writes refreshed values back by wallet id, so wallets
// added or removed meanwhile are left alone.
func (s *VerificationService) applyHoldings(ctx context.Context, userID string, holdings []WalletHolding) error {
	unlock := s.userLocks.Lock(userID)
	defer unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return models.ErrNotFound
	}

	changed := false
	for _, h := range holdings {
		if !h.Checked {
			continue
		}
		if _, w := user.WalletByID(h.WalletID); w != nil && w.HasNFT != h.HasNFT {
			w.HasNFT = h.HasNFT
			changed = true
		}
	}
	if !changed {
		return nil
	}
	user.UpdatedAt = s.cfg.Now()
	if err := s.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("failed to save holdings: %w", err)
	}
	return nil
}

type Stats struct {
	TotalUsers           int    `json:"total_users"`
	TotalWallets         int    `json:"total_wallets"`
	VerifiedWallets      int    `json:"verified_wallets"`
	PendingVerifications int    `json:"pending_verifications"`
	NFTHolders           int    `json:"nft_holders"`
	StorageMode          string `json:"storage_mode,omitempty"`
}

func (s *VerificationService) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	st := &Stats{TotalUsers: len(users)}
	for _, u := range users {
		holder := false
		for _, w := range u.Wallets {
			st.TotalWallets++
			switch {
			case w.Verified:
				st.VerifiedWallets++
				if w.HasNFT {
					holder = true
				}
			case w.Status == models.VerificationStatusPending:
				st.PendingVerifications++
			}
		}
		if holder {
			st.NFTHolders++
		}
	}
	if ss, ok := s.store.(StorageStatus); ok {
		st.StorageMode = ss.StorageMode()
	}
	return st, nil
}

func (s *VerificationService) logAudit(ctx context.Context, userID, action string, walletID *uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorType: "system",
		UserID:    userID,
		Action:    action,
		WalletID:  walletID,
		Meta:      meta,
	}); err != nil {
		s.log.Debug("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func outcomeText(address, status string, hasNFT bool) string {
	switch {
	case status == models.VerificationStatusVerified && hasNFT:
		return fmt.Sprintf("Wallet %s is verified and holds an NFT from the collection.", address)
	case status == models.VerificationStatusVerified:
		return fmt.Sprintf("Wallet %s is verified, but no NFT from the collection was found.", address)
	case status == models.VerificationStatusExpired:
		return fmt.Sprintf("Verification of wallet %s expired. Start again to get a new amount.", address)
	default:
		return fmt.Sprintf("Verification of wallet %s failed: the address was verified by another member first.", address)
	}
}
