package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nft-gate/backend/internal/metrics"
	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/repositories"
	"go.uber.org/zap"
)

// Checker is the part of VerificationService the poller drives.
type Checker interface {
	CheckByID(ctx context.Context, userID string, walletID uuid.UUID) (CheckResult, error)
}

type handle struct {
	userID     string
	index      int
	walletID   uuid.UUID
	lastStatus string
}

type completedHandle struct {
	result CheckResult
	at     time.Time
}

type PollerConfig struct {
	Interval     time.Duration
	CompletedTTL time.Duration
	Window       time.Duration
	Now          func() time.Time
}

// Poller periodically advances every in-flight verification and fires the
// role grant when one becomes verified with an NFT.
type Poller struct {
	checker Checker
	roles   *RoleService
	store   repositories.UserStore
	cfg     PollerConfig

	// Both maps are keyed by wallet id; the index is only a display label
	// since removals shift positions.
	mu        sync.Mutex
	inflight  map[uuid.UUID]*handle
	completed map[uuid.UUID]completedHandle

	log *zap.Logger
}

func NewPoller(checker Checker, roles *RoleService, store repositories.UserStore, cfg PollerConfig, log *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = 20 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		checker:   checker,
		roles:     roles,
		store:     store,
		cfg:       cfg,
		inflight:  make(map[uuid.UUID]*handle),
		completed: make(map[uuid.UUID]completedHandle),
		log:       log,
	}
}

// HandleKey is the userId_index label used in logs.
func HandleKey(userID string, index int) string {
	return fmt.Sprintf("%s_%d", userID, index)
}

// Track starts following a pending verification.
func (p *Poller) Track(userID string, index int, walletID uuid.UUID) {
	p.mu.Lock()
	p.inflight[walletID] = &handle{
		userID:     userID,
		index:      index,
		walletID:   walletID,
		lastStatus: models.VerificationStatusPending,
	}
	delete(p.completed, walletID)
	n := len(p.inflight)
	p.mu.Unlock()

	metrics.PollerInflight.Set(float64(n))
}

// Restore re-tracks pending records still inside the window, e.g. after
// a restart.
func (p *Poller) Restore(ctx context.Context) (int, error) {
	users, err := p.store.ListUsersWithPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending verifications: %w", err)
	}

	now := p.cfg.Now()
	n := 0
	for _, u := range users {
		for i, w := range u.Wallets {
			if w.Status != models.VerificationStatusPending || w.Expired(now, p.cfg.Window) {
				continue
			}
			p.Track(u.ID, i, w.ID)
			n++
		}
	}
	p.log.Info("restored pending verifications", zap.Int("count", n))
	return n, nil
}

// Completed returns a recently verified result for the wallet, if any.
func (p *Poller) Completed(walletID uuid.UUID) (CheckResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.completed[walletID]
	return c.result, ok
}

func (p *Poller) Inflight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Info("verification poller started", zap.Duration("interval", p.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("verification poller stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick checks every tracked handle once, sequentially.
func (p *Poller) Tick(ctx context.Context) {
	p.mu.Lock()
	handles := make([]handle, 0, len(p.inflight))
	for _, h := range p.inflight {
		handles = append(handles, *h)
	}
	p.mu.Unlock()

	for _, h := range handles {
		if ctx.Err() != nil {
			return
		}
		p.process(ctx, h)
	}
	p.prune()
}

func (p *Poller) process(ctx context.Context, h handle) {
	key := HandleKey(h.userID, h.index)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("verification check panicked", zap.String("handle", key), zap.Any("panic", r))
		}
	}()

	res, err := p.checker.CheckByID(ctx, h.userID, h.walletID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			p.log.Info("tracked verification disappeared", zap.String("handle", key))
			p.drop(h.walletID)
			return
		}
		p.log.Warn("verification check failed, will retry", zap.String("handle", key), zap.Error(err))
		return
	}
	if res.Error {
		return
	}

	if h.lastStatus == models.VerificationStatusPending && res.Status == models.VerificationStatusVerified {
		if res.HasNFT && p.roles != nil {
			if err := p.roles.Grant(ctx, h.userID, "wallet verified"); err != nil {
				p.log.Error("role grant failed", zap.String("user_id", h.userID), zap.Error(err))
			}
		}
		p.mu.Lock()
		p.completed[h.walletID] = completedHandle{result: res, at: p.cfg.Now()}
		p.mu.Unlock()
	}

	if res.Status != models.VerificationStatusPending {
		p.drop(h.walletID)
		return
	}

	p.mu.Lock()
	if cur, ok := p.inflight[h.walletID]; ok {
		cur.lastStatus = res.Status
	}
	p.mu.Unlock()
}

func (p *Poller) drop(walletID uuid.UUID) {
	p.mu.Lock()
	delete(p.inflight, walletID)
	n := len(p.inflight)
	p.mu.Unlock()
	metrics.PollerInflight.Set(float64(n))
}

func (p *Poller) prune() {
	cutoff := p.cfg.Now().Add(-p.cfg.CompletedTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.completed {
		if c.at.Before(cutoff) {
			delete(p.completed, k)
		}
	}
}
