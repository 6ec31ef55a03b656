package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserAccount holds every wallet attempt of one community member.
// Wallets keep insertion order; the position is the presentation index.
type UserAccount struct {
	ID        string         `json:"id"`
	Wallets   []WalletRecord `json:"wallets"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (u *UserAccount) WalletByID(id uuid.UUID) (int, *WalletRecord) {
	for i := range u.Wallets {
		if u.Wallets[i].ID == id {
			return i, &u.Wallets[i]
		}
	}
	return -1, nil
}

func (u *UserAccount) WalletAt(index int) *WalletRecord {
	if index < 0 || index >= len(u.Wallets) {
		return nil
	}
	return &u.Wallets[index]
}

func (u *UserAccount) HasVerified(address string) bool {
	for _, w := range u.Wallets {
		if w.Verified && strings.EqualFold(w.Address, address) {
			return true
		}
	}
	return false
}

func (u *UserAccount) VerifiedWallets() []WalletRecord {
	var out []WalletRecord
	for _, w := range u.Wallets {
		if w.Verified {
			out = append(out, w)
		}
	}
	return out
}

func (u *UserAccount) HasPending() bool {
	for _, w := range u.Wallets {
		if w.Status == VerificationStatusPending {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (u *UserAccount) Clone() *UserAccount {
	if u == nil {
		return nil
	}
	c := *u
	c.Wallets = make([]WalletRecord, len(u.Wallets))
	for i, w := range u.Wallets {
		if w.ResolvedAt != nil {
			t := *w.ResolvedAt
			w.ResolvedAt = &t
		}
		c.Wallets[i] = w
	}
	return &c
}
