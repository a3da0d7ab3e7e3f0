package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-scan/internal/application/dto"
	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// sessionRegistry lo implementa *scan.Registry.
type sessionRegistry interface {
	Open(ctx context.Context, order entity.OrderContext) (*scan.Session, error)
	Get(orderID string) (*scan.Session, error)
	Close(orderID string) error
}

// OrderHandler maneja las sesiones de escaneo y los comandos sobre una orden (protegido).
type OrderHandler struct {
	sessions sessionRegistry
	log      *logger.Logger
}

// NewOrderHandler construye el handler.
func NewOrderHandler(sessions sessionRegistry, log *logger.Logger) *OrderHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OrderHandler{sessions: sessions, log: log.Component("order_handler")}
}

func (h *OrderHandler) session(c *fiber.Ctx) (*scan.Session, error) {
	return h.sessions.Get(c.Params("id"))
}

// OpenSession godoc
// @Summary      Abrir sesión de escaneo
// @Description  Crea el orquestador de la orden, registra sus adaptadores y carga la vista inicial.
// @Tags         orders
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "ID de la orden"
// @Param        body  body  dto.OpenSessionRequest  true  "flow (inbound|outbound), status"
// @Success      201   {object}  dto.OrderViewDTO
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/sessions [post]
func (h *OrderHandler) OpenSession(c *fiber.Ctx) error {
	var in dto.OpenSessionRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	order := entity.OrderContext{
		OrderID: c.Params("id"),
		Flow:    strings.ToLower(strings.TrimSpace(in.Flow)),
		Status:  in.Status,
	}
	sess, err := h.sessions.Open(c.UserContext(), order)
	if sess == nil {
		return writeError(c, err)
	}
	if err != nil {
		// la sesión queda abierta; la vista lleva el mensaje de la carga fallida
		h.log.Warn().Err(err).Str("order_id", order.OrderID).Msg("carga inicial de la orden")
	}
	h.log.Info().Str("order_id", order.OrderID).Str("user_id", GetUserID(c)).Str("station_id", GetStationID(c)).Msg("sesión abierta")
	return c.Status(fiber.StatusCreated).JSON(dto.FromView(sess.Orchestrator.View()))
}

// CloseSession godoc
// @Summary      Cerrar sesión de escaneo
// @Description  Cancela la orden: descarta reconciliaciones en vuelo y desregistra los adaptadores.
// @Tags         orders
// @Security     Bearer
// @Param        id  path  string  true  "ID de la orden"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/sessions [delete]
func (h *OrderHandler) CloseSession(c *fiber.Ctx) error {
	if err := h.sessions.Close(c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetView godoc
// @Summary      Vista actual de la orden
// @Tags         orders
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.OrderViewDTO
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetView(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromView(sess.Orchestrator.View()))
}

// Scan godoc
// @Summary      Escaneo manual
// @Description  Entrega el código a la superficie de escaneo como lectura manual. El resultado llega por la vista.
// @Tags         orders
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string           true  "ID de la orden"
// @Param        body  body  dto.ScanRequest  true  "code"
// @Success      202   {object}  map[string]string
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/scans [post]
func (h *OrderHandler) Scan(c *fiber.Ctx) error {
	var in dto.ScanRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if strings.TrimSpace(in.Code) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "code es obligatorio"})
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if sess.Orchestrator.View().Closed {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ORDER_CLOSED", Message: "la orden ya está cerrada"})
	}
	if err := sess.Simulate(c.UserContext(), in.Code); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "lectura encolada"})
}

// Refresh godoc
// @Summary      Refrescar la orden
// @Tags         orders
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.OrderViewDTO
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/refresh [post]
func (h *OrderHandler) Refresh(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := sess.Orchestrator.Refresh(c.UserContext()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromView(sess.Orchestrator.View()))
}

// Select godoc
// @Summary      Cambiar selección
// @Description  Marca o desmarca un registro (barcode, detail_id) o todos con all.
// @Tags         orders
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "ID de la orden"
// @Param        body  body  dto.SelectionRequest  true  "barcode, detail_id, selected | all"
// @Success      200   {object}  dto.OrderViewDTO
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/selection [patch]
func (h *OrderHandler) Select(c *fiber.Ctx) error {
	var in dto.SelectionRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	if in.All != nil {
		sess.Orchestrator.SelectAll(*in.All)
		return c.JSON(dto.FromView(sess.Orchestrator.View()))
	}
	if strings.TrimSpace(in.Barcode) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "barcode o all es obligatorio"})
	}
	key := entity.ScanKey{Barcode: in.Barcode}
	if sess.Orchestrator.Identity() == entity.IdentityDetailBarcode {
		key.DetailID = in.DetailID
	}
	if !sess.Orchestrator.SetSelected(key, in.Selected) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "registro no encontrado"})
	}
	return c.JSON(dto.FromView(sess.Orchestrator.View()))
}

// Pass godoc
// @Summary      Confirmar registros seleccionados
// @Tags         orders
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.MessageResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/pass [post]
func (h *OrderHandler) Pass(c *fiber.Ctx) error {
	return h.command(c, func(ctx context.Context, o *scan.Orchestrator) (string, error) {
		return o.PassScans(ctx)
	})
}

// Cancel godoc
// @Summary      Anular registros seleccionados
// @Tags         orders
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.MessageResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	return h.command(c, func(ctx context.Context, o *scan.Orchestrator) (string, error) {
		return o.CancelScans(ctx)
	})
}

// Confirm godoc
// @Summary      Confirmar la orden
// @Description  Falla con NOT_ALL_SCANNED si el servidor reporta cantidades pendientes; en ese caso no se modifica nada.
// @Tags         orders
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.MessageResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/confirm [post]
func (h *OrderHandler) Confirm(c *fiber.Ctx) error {
	return h.command(c, func(ctx context.Context, o *scan.Orchestrator) (string, error) {
		return o.ConfirmOrder(ctx)
	})
}

// UpdateLocation godoc
// @Summary      Corregir ubicación de un detalle
// @Tags         orders
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id        path  string               true  "ID de la orden"
// @Param        detailId  path  string               true  "ID del detalle"
// @Param        body      body  dto.LocationRequest  true  "warehouse, warehouse_code, location"
// @Success      200  {object}  dto.MessageResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/details/{detailId}/location [put]
func (h *OrderHandler) UpdateLocation(c *fiber.Ctx) error {
	var in dto.LocationRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	upd := entity.LocationUpdate{
		DetailID:      c.Params("detailId"),
		Warehouse:     in.Warehouse,
		WarehouseCode: in.WarehouseCode,
		Location:      in.Location,
	}
	return h.command(c, func(ctx context.Context, o *scan.Orchestrator) (string, error) {
		return o.UpdateLocation(ctx, upd)
	})
}

// UpdateQuantity godoc
// @Summary      Corregir cantidad escaneada de un detalle
// @Tags         orders
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id        path  string               true  "ID de la orden"
// @Param        detailId  path  string               true  "ID del detalle"
// @Param        body      body  dto.QuantityRequest  true  "barcode, quantity"
// @Success      200  {object}  dto.MessageResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/orders/{id}/details/{detailId}/quantity [put]
func (h *OrderHandler) UpdateQuantity(c *fiber.Ctx) error {
	var in dto.QuantityRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	upd := entity.QuantityUpdate{
		Barcode:  in.Barcode,
		DetailID: c.Params("detailId"),
		Quantity: in.Quantity,
	}
	return h.command(c, func(ctx context.Context, o *scan.Orchestrator) (string, error) {
		return o.UpdateQuantity(ctx, upd)
	})
}

func (h *OrderHandler) command(c *fiber.Ctx, run func(context.Context, *scan.Orchestrator) (string, error)) error {
	sess, err := h.session(c)
	if err != nil {
		return writeError(c, err)
	}
	msg, err := run(c.UserContext(), sess.Orchestrator)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: msg, View: dto.FromView(sess.Orchestrator.View())})
}
