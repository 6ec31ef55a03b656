package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-gate/backend/internal/http/dto"
	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/services"
	"go.uber.org/zap"
)

type VerificationHandler struct {
	svc    *services.VerificationService
	poller *services.Poller
	log    *zap.Logger
}

func NewVerificationHandler(svc *services.VerificationService, poller *services.Poller, log *zap.Logger) *VerificationHandler {
	return &VerificationHandler{svc: svc, poller: poller, log: log}
}

// Start creates a pending verification and hands it to the poller.
// POST /verifications
func (h *VerificationHandler) Start(c *fiber.Ctx) error {
	var req dto.StartVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	res, err := h.svc.Start(c.UserContext(), req.UserID, strings.TrimSpace(req.Address))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if h.poller != nil {
		h.poller.Track(req.UserID, res.Index, res.WalletID)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.StartVerificationResponse{
		WalletID:  res.WalletID.String(),
		Address:   res.Address,
		Amount:    res.Amount,
		Index:     res.Index,
		ExpiresAt: time.Now().Add(h.svc.Window()),
	})
}

// Check returns the verification status, advancing it if still pending.
// GET /verifications/:userId/:index
func (h *VerificationHandler) Check(c *fiber.Ctx) error {
	userID := c.Params("userId")
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return badRequest(c, "index must be a non-negative integer")
	}

	walletID, err := h.svc.WalletID(c.UserContext(), userID, index)
	if err != nil {
		return writeError(c, h.log, err)
	}

	if h.poller != nil {
		if res, ok := h.poller.Completed(walletID); ok {
			resp := checkResponse(res)
			resp.Complete = true
			return c.JSON(resp)
		}
	}

	res, err := h.svc.CheckByID(c.UserContext(), userID, walletID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if res.Error {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.CheckVerificationResponse{
			Status:  "error",
			Error:   true,
			Message: msgTryLater,
		})
	}

	resp := checkResponse(res)
	resp.Complete = res.Resolved()
	return c.JSON(resp)
}

func checkResponse(res services.CheckResult) dto.CheckVerificationResponse {
	resp := dto.CheckVerificationResponse{
		WalletID: res.WalletID.String(),
		Status:   res.Status,
		Address:  res.Address,
		Amount:   res.Amount,
	}
	switch res.Status {
	case models.VerificationStatusVerified:
		hasNFT := res.HasNFT
		resp.HasNFT = &hasNFT
	case models.VerificationStatusPending:
		secs := int(res.TimeRemaining.Seconds())
		resp.TimeRemainingSeconds = &secs
	}
	return resp
}
