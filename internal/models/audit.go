package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditVerificationStarted = "verification_started"
	AuditWalletVerified      = "wallet_verified"
	AuditWalletRemoved       = "wallet_removed"
	AuditHoldingsRefreshed   = "holdings_refreshed"
	AuditRoleGranted         = "role_granted"
	AuditRoleRevoked         = "role_revoked"
)

type AuditLog struct {
	ID        uuid.UUID  `json:"id"`
	ActorType string     `json:"actor_type"` // bot/admin/system
	UserID    string     `json:"user_id"`
	Action    string     `json:"action"`
	WalletID  *uuid.UUID `json:"wallet_id,omitempty"`
	Meta      any        `json:"meta,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
