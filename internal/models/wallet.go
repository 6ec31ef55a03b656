package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification statuses
const (
	VerificationStatusPending  = "pending"
	VerificationStatusVerified = "verified"
	VerificationStatusExpired  = "expired"
	VerificationStatusFailed   = "failed"
)

// Valid state transitions: from -> []to
var ValidVerificationTransitions = map[string][]string{
	VerificationStatusPending:  {VerificationStatusVerified, VerificationStatusExpired, VerificationStatusFailed},
	VerificationStatusVerified: {},
	VerificationStatusExpired:  {},
	VerificationStatusFailed:   {},
}

func IsValidVerificationTransition(from, to string) bool {
	allowed, ok := ValidVerificationTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalVerificationStatus(status string) bool {
	allowed, ok := ValidVerificationTransitions[status]
	return ok && len(allowed) == 0
}

// WalletRecord is one attempt to link an address to a member.
type WalletRecord struct {
	ID                    uuid.UUID  `json:"id"`
	Address               string     `json:"address"` // lowercase 0x...
	VerificationAmount    string     `json:"verification_amount"`
	VerificationStartTime time.Time  `json:"verification_start_time"`
	Status                string     `json:"status"`
	Verified              bool       `json:"verified"`
	HasNFT                bool       `json:"has_nft"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
}

func NewPendingWallet(address, amount string, now time.Time) WalletRecord {
	return WalletRecord{
		ID:                    uuid.New(),
		Address:               address,
		VerificationAmount:    amount,
		VerificationStartTime: now,
		Status:                VerificationStatusPending,
	}
}

// Expired reports whether a pending record has outlived the window.
func (w *WalletRecord) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.VerificationStartTime) > window
}

// TimeRemaining is zero once the window has elapsed.
func (w *WalletRecord) TimeRemaining(now time.Time, window time.Duration) time.Duration {
	left := window - now.Sub(w.VerificationStartTime)
	if left < 0 {
		return 0
	}
	return left
}

// Transition moves the record to a new status, keeping Verified in sync.
func (w *WalletRecord) Transition(to string, now time.Time) error {
	if !IsValidVerificationTransition(w.Status, to) {
		return ErrInvalidTransition
	}
	w.Status = to
	w.Verified = to == VerificationStatusVerified
	resolved := now
	w.ResolvedAt = &resolved
	return nil
}
