package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nft-gate/backend/internal/models"
)

// MemoryUserStore is the process-local mirror. Values are cloned on the way
// in and out so callers never share state with the map.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.UserAccount
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.UserAccount)}
}

func (s *MemoryUserStore) GetUser(_ context.Context, id string) (*models.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id].Clone(), nil
}

func (s *MemoryUserStore) SaveUser(_ context.Context, user *models.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user.Clone()
	return nil
}

// SaveIfAbsent stores user unless an entry with the same id exists.
func (s *MemoryUserStore) SaveIfAbsent(_ context.Context, user *models.UserAccount) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return false
	}
	s.users[user.ID] = user.Clone()
	return true
}

func (s *MemoryUserStore) FindVerifiedOwners(_ context.Context, address string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, u := range s.users {
		for _, w := range u.Wallets {
			if w.Verified && strings.EqualFold(w.Address, address) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryUserStore) ListUsersWithPending(_ context.Context) ([]*models.UserAccount, error) {
	return s.collect(func(u *models.UserAccount) bool { return u.HasPending() }), nil
}

func (s *MemoryUserStore) ListUsers(_ context.Context) ([]*models.UserAccount, error) {
	return s.collect(func(*models.UserAccount) bool { return true }), nil
}

func (s *MemoryUserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *MemoryUserStore) collect(keep func(*models.UserAccount) bool) []*models.UserAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
