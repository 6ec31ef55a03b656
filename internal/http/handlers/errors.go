package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nft-gate/backend/internal/http/dto"
	"github.com/nft-gate/backend/internal/middleware"
	"github.com/nft-gate/backend/internal/models"
	"github.com/nft-gate/backend/internal/repositories"
	"go.uber.org/zap"
)

const msgTryLater = "storage is temporarily unavailable, try again later"

// writeError maps domain errors to status codes; anything unknown is a 500.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID := middleware.GetRequestID(c)

	status := fiber.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, models.ErrInvalidAddress), errors.Is(err, models.ErrInvalidAmount):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoVerifiedWallets):
		status, msg = fiber.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrAlreadyVerified), errors.Is(err, models.ErrAddressTaken):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, repositories.ErrStoreUnavailable):
		status, msg = fiber.StatusServiceUnavailable, msgTryLater
	default:
		log.Error("request failed", zap.String("request_id", reqID), zap.Error(err))
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}

func badRequest(c *fiber.Ctx, msg string) error {
	reqID := middleware.GetRequestID(c)
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}
