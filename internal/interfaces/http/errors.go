package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-scan/internal/application/dto"
	"github.com/jhoicas/inventario-scan/internal/domain"
)

// writeError traduce errores de dominio y de transporte a respuestas HTTP.
func writeError(c *fiber.Ctx, err error) error {
	var biz *domain.BusinessError
	var netErr *domain.NetworkError
	var protoErr *domain.ProtocolError

	switch {
	case errors.As(err, &biz):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "BUSINESS", Message: biz.Error()})
	case errors.Is(err, domain.ErrNotAllScanned):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NOT_ALL_SCANNED", Message: err.Error()})
	case errors.Is(err, domain.ErrOrderClosed):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ORDER_CLOSED", Message: err.Error()})
	case errors.Is(err, domain.ErrSessionExists):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "SESSION_EXISTS", Message: err.Error()})
	case errors.Is(err, domain.ErrNothingSelected):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "NOTHING_SELECTED", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptyScan):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.As(err, &protoErr):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "PROTOCOL", Message: domain.UserMessage(err)})
	case errors.As(err, &netErr):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "NETWORK", Message: domain.UserMessage(err)})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "CANCELLED", Message: "operación cancelada"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
