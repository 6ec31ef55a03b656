package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/models"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// RoleMembers lists who currently holds the gated role.
type RoleMembers interface {
	RoleMembers(ctx context.Context) ([]string, error)
}

// HoldingsRefresher is the part of VerificationService the audit needs.
type HoldingsRefresher interface {
	RefreshHoldings(ctx context.Context, userID string) (*RefreshResult, error)
}

type AuditConfig struct {
	Interval    time.Duration
	Revoke      bool // false: log findings only
	Concurrency int
}

// AuditFinding is a role holder whose holdings no longer justify the role.
type AuditFinding struct {
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
	Revoked bool   `json:"revoked"`
}

type AuditReport struct {
	Members   int            `json:"members"`
	Confirmed int            `json:"confirmed"`
	Skipped   int            `json:"skipped"`
	Errors    int            `json:"errors"`
	Findings  []AuditFinding `json:"findings"`
}

// RoleAuditor re-checks every role holder on a schedule.
type RoleAuditor struct {
	members   RoleMembers
	refresher HoldingsRefresher
	roles     *RoleService
	publisher events.Publisher
	cfg       AuditConfig

	scheduler gocron.Scheduler
	log       *zap.Logger
}

func NewRoleAuditor(
	members RoleMembers,
	refresher HoldingsRefresher,
	roles *RoleService,
	publisher events.Publisher,
	cfg AuditConfig,
	log *zap.Logger,
) *RoleAuditor {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RoleAuditor{
		members:   members,
		refresher: refresher,
		roles:     roles,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// Start schedules RunOnce every Interval. Overlapping runs are skipped.
func (a *RoleAuditor) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(a.cfg.Interval),
		gocron.NewTask(func() {
			if _, err := a.RunOnce(ctx); err != nil {
				a.log.Error("role audit failed", zap.Error(err))
			}
		}),
		gocron.WithName("role-audit"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to register role audit job: %w", err)
	}

	s.Start()
	a.scheduler = s
	a.log.Info("role audit scheduled",
		zap.Duration("interval", a.cfg.Interval), zap.Bool("revoke", a.cfg.Revoke))
	return nil
}

func (a *RoleAuditor) Stop() {
	if a.scheduler == nil {
		return
	}
	if err := a.scheduler.Shutdown(); err != nil {
		a.log.Warn("failed to shutdown scheduler", zap.Error(err))
	}
}

// RunOnce audits every current role holder.
func (a *RoleAuditor) RunOnce(ctx context.Context) (*AuditReport, error) {
	members, err := a.members.RoleMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list role members: %w", err)
	}

	report := &AuditReport{Members: len(members)}
	if len(members) == 0 {
		return report, nil
	}

	pool, err := ants.NewPool(a.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit pool: %w", err)
	}
	defer pool.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, userID := range members {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			a.auditMember(ctx, userID, report, &mu)
		}); err != nil {
			wg.Done()
			mu.Lock()
			report.Errors++
			mu.Unlock()
			a.log.Error("failed to submit audit task", zap.String("user_id", userID), zap.Error(err))
		}
	}
	wg.Wait()

	a.log.Info("role audit finished",
		zap.Int("members", report.Members),
		zap.Int("confirmed", report.Confirmed),
		zap.Int("findings", len(report.Findings)),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (a *RoleAuditor) auditMember(ctx context.Context, userID string, report *AuditReport, mu *sync.Mutex) {
	res, err := a.refresher.RefreshHoldings(ctx, userID)

	var reason string
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoVerifiedWallets):
		reason = "no verified wallets"
	case err != nil:
		a.log.Warn("audit refresh failed", zap.String("user_id", userID), zap.Error(err))
		mu.Lock()
		report.Errors++
		mu.Unlock()
		return
	case res.ChecksFailed:
		mu.Lock()
		report.Skipped++
		mu.Unlock()
		return
	case res.HasAnyNFT:
		mu.Lock()
		report.Confirmed++
		mu.Unlock()
		return
	default:
		reason = "no NFT in verified wallets"
	}

	finding := AuditFinding{UserID: userID, Reason: reason}
	if a.cfg.Revoke {
		if err := a.roles.Revoke(ctx, userID, "audit: "+reason); err != nil {
			a.log.Error("audit revoke failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			finding.Revoked = true
		}
	} else {
		a.log.Warn("role holder failed audit, not revoking",
			zap.String("user_id", userID), zap.String("reason", reason))
	}

	_ = a.publisher.Publish(ctx, events.StreamRoles, events.Event{
		Type: events.EventAuditFinding,
		Payload: map[string]any{
			"user_id": userID,
			"reason":  reason,
			"revoked": finding.Revoked,
		},
	})

	mu.Lock()
	report.Findings = append(report.Findings, finding)
	mu.Unlock()
}
