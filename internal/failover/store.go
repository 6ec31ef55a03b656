package failover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nft-gate/backend/internal/metrics"
	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/repositories"
	"go.uber.org/zap"
)

// Mode tells which backend currently serves operations.
type Mode int

const (
	ModeDurable Mode = iota // durable store, mirror kept warm
	ModeMemory              // in-memory mirror only, until a resync succeeds
)

func (m Mode) String() string {
	switch m {
	case ModeDurable:
		return "durable"
	case ModeMemory:
		return "memory"
	default:
		return "unknown"
	}
}

type Config struct {
	// StartInMemory is set when the durable store was unreachable at boot.
	StartInMemory bool
	OnModeChange  func(from, to Mode, reason string)
}

// Store is a repositories.UserStore that serves from the durable backend
// until it fails once, then from the in-memory mirror until Resync
// succeeds. Successful durable reads and writes are copied into the mirror.
type Store struct {
	durable repositories.UserStore
	memory  *repositories.MemoryUserStore

	// gate is held exclusively by Resync so no write lands in the mirror
	// after it has been snapshotted.
	gate sync.RWMutex

	mu           sync.Mutex
	mode         Mode
	onModeChange func(from, to Mode, reason string)
	resyncMu     sync.Mutex

	log *zap.Logger
}

func NewStore(durable repositories.UserStore, memory *repositories.MemoryUserStore, cfg Config, log *zap.Logger) *Store {
	if memory == nil {
		memory = repositories.NewMemoryUserStore()
	}
	s := &Store{
		durable:      durable,
		memory:       memory,
		mode:         ModeDurable,
		onModeChange: cfg.OnModeChange,
		log:          log,
	}
	if cfg.StartInMemory || durable == nil {
		s.mode = ModeMemory
		metrics.StorageMemoryMode.Set(1)
	}
	return s
}

func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Trip switches to the in-memory mirror.
func (s *Store) Trip(reason string) {
	s.setMode(ModeMemory, reason)
}

func (s *Store) setMode(to Mode, reason string) {
	s.mu.Lock()
	from := s.mode
	if from == to {
		s.mu.Unlock()
		return
	}
	s.mode = to
	cb := s.onModeChange
	s.mu.Unlock()

	if to == ModeMemory {
		metrics.StorageFailovers.Inc()
		metrics.StorageMemoryMode.Set(1)
		s.log.Warn("durable store failed, switching to in-memory storage", zap.String("reason", reason))
	} else {
		metrics.StorageMemoryMode.Set(0)
		s.log.Info("durable store restored", zap.String("reason", reason))
	}
	if cb != nil {
		cb(from, to, reason)
	}
}

// run executes fn against the durable store while in durable mode and
// falls back to the mirror on any infrastructure error.
func run[T any](ctx context.Context, s *Store, op string, fn func(st repositories.UserStore, durable bool) (T, error)) (T, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.Mode() == ModeDurable {
		v, err := fn(s.durable, true)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		s.log.Error("durable store operation failed", zap.String("op", op), zap.Error(err))
		s.Trip(fmt.Sprintf("%s: %v", op, err))
	}

	v, err := fn(s.memory, false)
	if err != nil {
		return v, fmt.Errorf("%s: %w: %v", op, repositories.ErrStoreUnavailable, err)
	}
	return v, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.UserAccount, error) {
	return run(ctx, s, "get_user", func(st repositories.UserStore, durable bool) (*models.UserAccount, error) {
		u, err := st.GetUser(ctx, id)
		if err == nil && u != nil && durable {
			_ = s.memory.SaveUser(ctx, u)
		}
		return u, err
	})
}

func (s *Store) SaveUser(ctx context.Context, user *models.UserAccount) error {
	_, err := run(ctx, s, "save_user", func(st repositories.UserStore, durable bool) (struct{}, error) {
		if err := st.SaveUser(ctx, user); err != nil {
			return struct{}{}, err
		}
		if durable {
			_ = s.memory.SaveUser(ctx, user)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) FindVerifiedOwners(ctx context.Context, address string) ([]string, error) {
	return run(ctx, s, "find_verified_owners", func(st repositories.UserStore, durable bool) ([]string, error) {
		return st.FindVerifiedOwners(ctx, address)
	})
}

func (s *Store) ListUsersWithPending(ctx context.Context) ([]*models.UserAccount, error) {
	return run(ctx, s, "list_pending", func(st repositories.UserStore, durable bool) ([]*models.UserAccount, error) {
		users, err := st.ListUsersWithPending(ctx)
		if err == nil && durable {
			s.warm(ctx, users)
		}
		return users, err
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.UserAccount, error) {
	return run(ctx, s, "list_users", func(st repositories.UserStore, durable bool) ([]*models.UserAccount, error) {
		users, err := st.ListUsers(ctx)
		if err == nil && durable {
			s.warm(ctx, users)
		}
		return users, err
	})
}

func (s *Store) warm(ctx context.Context, users []*models.UserAccount) {
	for _, u := range users {
		_ = s.memory.SaveUser(ctx, u)
	}
}

// ResyncResult summarizes one resync pass.
type ResyncResult struct {
	Loaded  int  `json:"loaded"`
	Pushed  int  `json:"pushed"`
	Failed  int  `json:"failed"`
	Durable bool `json:"durable"`
}

var ErrResyncIncomplete = errors.New("resync incomplete")

// Resync recovers from memory mode: durable users missing from the mirror
// are copied into it, then every mirror user is pushed back to the durable
// store. Durable mode is restored only if every push succeeded.
//
// In durable mode the mirror is only a partial cache, so the durable store
// wins: the mirror is reloaded from it and nothing is pushed.
func (s *Store) Resync(ctx context.Context) (ResyncResult, error) {
	s.resyncMu.Lock()
	defer s.resyncMu.Unlock()

	var res ResyncResult
	if s.durable == nil {
		return res, fmt.Errorf("%w: no durable store configured", ErrResyncIncomplete)
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	if s.Mode() == ModeDurable {
		return s.reloadMirror(ctx)
	}

	durableUsers, err := s.durable.ListUsers(ctx)
	if err != nil {
		metrics.StorageResyncs.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("load durable users: %w", err)
	}
	for _, u := range durableUsers {
		if s.memory.SaveIfAbsent(ctx, u) {
			res.Loaded++
		}
	}

	memUsers, _ := s.memory.ListUsers(ctx)
	for _, u := range memUsers {
		if err := s.durable.SaveUser(ctx, u); err != nil {
			res.Failed++
			s.log.Warn("resync push failed", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		res.Pushed++
	}

	if res.Failed > 0 {
		metrics.StorageResyncs.WithLabelValues("partial").Inc()
		return res, fmt.Errorf("%w: %d of %d users not synced", ErrResyncIncomplete, res.Failed, len(memUsers))
	}

	metrics.StorageResyncs.WithLabelValues("ok").Inc()
	s.setMode(ModeDurable, "resync complete")
	res.Durable = true
	s.log.Info("storage resync complete",
		zap.Int("loaded", res.Loaded), zap.Int("pushed", res.Pushed))
	return res, nil
}

// reloadMirror overwrites the mirror with the durable contents. The caller
// holds the gate.
func (s *Store) reloadMirror(ctx context.Context) (ResyncResult, error) {
	res := ResyncResult{Durable: true}
	users, err := s.durable.ListUsers(ctx)
	if err != nil {
		metrics.StorageResyncs.WithLabelValues("failed").Inc()
		return ResyncResult{}, fmt.Errorf("load durable users: %w", err)
	}
	for _, u := range users {
		if err := s.memory.SaveUser(ctx, u); err != nil {
			return res, fmt.Errorf("refresh mirror: %w", err)
		}
		res.Loaded++
	}
	metrics.StorageResyncs.WithLabelValues("reload").Inc()
	s.log.Info("mirror reloaded from durable store", zap.Int("loaded", res.Loaded))
	return res, nil
}

func (s *Store) StorageMode() string {
	return s.Mode().String()
}
