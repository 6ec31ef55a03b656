package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-gate/backend/internal/failover"
	"github.com/nft-gate/backend/internal/http/dto"
	"github.com/nft-gate/backend/internal/services"
	"go.uber.org/zap"
)

// Resyncer is satisfied by failover.Store.
type Resyncer interface {
	Resync(ctx context.Context) (failover.ResyncResult, error)
}

// AuditRunner is satisfied by services.RoleAuditor.
type AuditRunner interface {
	RunOnce(ctx context.Context) (*services.AuditReport, error)
}

type AdminHandler struct {
	svc     *services.VerificationService
	store   Resyncer
	auditor AuditRunner
	poller  *services.Poller
	log     *zap.Logger
}

func NewAdminHandler(
	svc *services.VerificationService,
	store Resyncer,
	auditor AuditRunner,
	poller *services.Poller,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{svc: svc, store: store, auditor: auditor, poller: poller, log: log}
}

// Status returns aggregate counters and the active storage mode.
// GET /admin/status
func (h *AdminHandler) Status(c *fiber.Ctx) error {
	stats, err := h.svc.Stats(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	inflight := 0
	if h.poller != nil {
		inflight = h.poller.Inflight()
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"stats":           stats,
		"poller_inflight": inflight,
	}})
}

// Resync pushes the in-memory mirror back to the durable store.
// POST /admin/storage/resync
func (h *AdminHandler) Resync(c *fiber.Ctx) error {
	res, err := h.store.Resync(c.UserContext())
	if err != nil {
		h.log.Warn("manual resync failed", zap.Error(err))
		status := fiber.StatusInternalServerError
		if errors.Is(err, failover.ErrResyncIncomplete) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"ok": false, "error": err.Error(), "result": res})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

// RunAudit runs one role audit synchronously.
// POST /admin/audit
func (h *AdminHandler) RunAudit(c *fiber.Ctx) error {
	if h.auditor == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Error: "audit is not configured"})
	}
	report, err := h.auditor.RunOnce(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: report})
}
