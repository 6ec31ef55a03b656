package services

import (
	"context"
	"fmt"

	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/metrics"
	"github.com/nft-gate/backend/internal/models"
	"go.uber.org/zap"
)

// RoleSink performs role changes on the chat platform.
type RoleSink interface {
	GrantRole(ctx context.Context, userID, reason string) error
	RevokeRole(ctx context.Context, userID, reason string) error
}

// Role actions
const (
	RoleActionGranted = "granted"
	RoleActionRevoked = "revoked"
	RoleActionNone    = "none"
)

type RoleService struct {
	sink      RoleSink
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewRoleService(sink RoleSink, audit AuditLogger, publisher events.Publisher, log *zap.Logger) *RoleService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RoleService{sink: sink, audit: audit, publisher: publisher, log: log}
}

func (r *RoleService) Grant(ctx context.Context, userID, reason string) error {
	if err := r.sink.GrantRole(ctx, userID, reason); err != nil {
		metrics.RoleActions.WithLabelValues("grant_failed").Inc()
		return fmt.Errorf("failed to grant role: %w", err)
	}
	metrics.RoleActions.WithLabelValues("grant").Inc()
	r.record(ctx, userID, models.AuditRoleGranted, events.EventRoleGranted, reason,
		"You now have the holder role.")
	return nil
}

func (r *RoleService) Revoke(ctx context.Context, userID, reason string) error {
	if err := r.sink.RevokeRole(ctx, userID, reason); err != nil {
		metrics.RoleActions.WithLabelValues("revoke_failed").Inc()
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	metrics.RoleActions.WithLabelValues("revoke").Inc()
	r.record(ctx, userID, models.AuditRoleRevoked, events.EventRoleRevoked, reason,
		"The holder role was removed because no NFT from the collection was found in your verified wallets.")
	return nil
}

// ApplyRefresh grants the role when any wallet holds the NFT and revokes
// it only when the refresh result can be trusted.
func (r *RoleService) ApplyRefresh(ctx context.Context, userID string, res *RefreshResult) (string, error) {
	switch {
	case res.HasAnyNFT:
		return RoleActionGranted, r.Grant(ctx, userID, "holdings refresh")
	case res.ChecksFailed:
		r.log.Warn("holdings checks failed, leaving role untouched", zap.String("user_id", userID))
		return RoleActionNone, nil
	default:
		return RoleActionRevoked, r.Revoke(ctx, userID, "holdings refresh")
	}
}

func (r *RoleService) record(ctx context.Context, userID, auditAction, eventType, reason, text string) {
	if r.audit != nil {
		if err := r.audit.Log(ctx, models.AuditLog{
			ActorType: "system",
			UserID:    userID,
			Action:    auditAction,
			Meta:      map[string]any{"reason": reason},
		}); err != nil {
			r.log.Debug("audit log write failed", zap.String("action", auditAction), zap.Error(err))
		}
	}
	_ = r.publisher.Publish(ctx, events.StreamRoles, events.Event{
		Type:    eventType,
		Payload: map[string]any{"user_id": userID, "reason": reason, "text": text},
	})
	r.log.Info("role changed", zap.String("user_id", userID), zap.String("action", auditAction), zap.String("reason", reason))
}
