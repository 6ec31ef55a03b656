package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nft-gate/backend/internal/http/dto"
	"github.com/nft-gate/backend/internal/services"
	"go.uber.org/zap"
)

type WalletHandler struct {
	svc   *services.VerificationService
	roles *services.RoleService
	log   *zap.Logger
}

func NewWalletHandler(svc *services.VerificationService, roles *services.RoleService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{svc: svc, roles: roles, log: log}
}

// List returns a member's verified wallets.
// GET /users/:userId/wallets
func (h *WalletHandler) List(c *fiber.Ctx) error {
	wallets, err := h.svc.VerifiedWallets(c.UserContext(), c.Params("userId"))
	if err != nil {
		return writeError(c, h.log, err)
	}

	out := make([]dto.WalletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, dto.WalletResponse{
			ID:         w.ID.String(),
			Address:    w.Address,
			HasNFT:     w.HasNFT,
			VerifiedAt: w.ResolvedAt,
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

// Remove unlinks a verified wallet. The role is left alone until the next
// refresh or audit.
// DELETE /users/:userId/wallets/:address
func (h *WalletHandler) Remove(c *fiber.Ctx) error {
	removed, err := h.svc.RemoveWallet(c.UserContext(), c.Params("userId"), c.Params("address"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.WalletResponse{
		ID:      removed.ID.String(),
		Address: removed.Address,
		HasNFT:  removed.HasNFT,
	}})
}

// Refresh re-checks holdings and syncs the role with the result.
// POST /users/:userId/refresh
func (h *WalletHandler) Refresh(c *fiber.Ctx) error {
	userID := c.Params("userId")
	res, err := h.svc.RefreshHoldings(c.UserContext(), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	resp := dto.RefreshResponse{
		Wallets:      make([]dto.WalletHoldingResponse, 0, len(res.Wallets)),
		HasAnyNFT:    res.HasAnyNFT,
		SoldNFTs:     res.SoldNFTs,
		ChecksFailed: res.ChecksFailed,
		RoleAction:   services.RoleActionNone,
	}
	if resp.SoldNFTs == nil {
		resp.SoldNFTs = []string{}
	}
	for _, w := range res.Wallets {
		resp.Wallets = append(resp.Wallets, dto.WalletHoldingResponse{
			Address: w.Address,
			HasNFT:  w.HasNFT,
			Checked: w.Checked,
		})
	}

	if h.roles != nil {
		action, err := h.roles.ApplyRefresh(c.UserContext(), userID, res)
		if err != nil {
			h.log.Warn("role sync after refresh failed", zap.String("user_id", userID), zap.Error(err))
			resp.RoleError = "role update failed"
		}
		resp.RoleAction = action
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}
