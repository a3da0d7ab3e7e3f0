package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/internal/domain/repository"
)

// InventoryClient implementa repository.InventoryGateway sobre el cliente resiliente.
// Rutas: /api/<flow>/orders/<orderId>/... y /api/<flow>/details/<detailId>/...
type InventoryClient struct {
	client *Client
	flow   string
}

// NewInventoryClient construye el gateway para un flujo.
func NewInventoryClient(client *Client, flow string) (*InventoryClient, error) {
	if !entity.ValidFlow(flow) {
		return nil, fmt.Errorf("flujo desconocido %q: %w", flow, domain.ErrInvalidInput)
	}
	return &InventoryClient{client: client, flow: flow}, nil
}

// NewGatewayFactory fábrica de gateways por flujo para el registro de sesiones.
func NewGatewayFactory(client *Client) repository.GatewayFactory {
	return func(flow string) (repository.InventoryGateway, error) {
		return NewInventoryClient(client, flow)
	}
}

var _ repository.InventoryGateway = (*InventoryClient)(nil)

func (c *InventoryClient) orderPath(orderID, suffix string) string {
	return "/api/" + c.flow + "/orders/" + url.PathEscape(orderID) + suffix
}

func (c *InventoryClient) detailPath(detailID, suffix string) string {
	return "/api/" + c.flow + "/details/" + url.PathEscape(detailID) + suffix
}

// FetchPending lista de pendientes de la orden.
func (c *InventoryClient) FetchPending(ctx context.Context, orderID string) ([]entity.PendingRecord, error) {
	const op = "fetchPending"
	var dtos []pendingDTO
	if err := c.fetch(ctx, op, c.orderPath(orderID, "/pending"), &dtos); err != nil {
		return nil, err
	}
	out := make([]entity.PendingRecord, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toEntity())
	}
	return out, nil
}

// FetchScanned lista autoritativa de escaneados.
func (c *InventoryClient) FetchScanned(ctx context.Context, orderID string) ([]entity.ScannedRecord, error) {
	const op = "fetchScanned"
	var dtos []scannedDTO
	if err := c.fetch(ctx, op, c.orderPath(orderID, "/scanned"), &dtos); err != nil {
		return nil, err
	}
	out := make([]entity.ScannedRecord, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toEntity())
	}
	return out, nil
}

// JudgeAllScanned pregunta al servidor si toda cantidad pendiente tiene su escaneo confirmado.
func (c *InventoryClient) JudgeAllScanned(ctx context.Context, orderID string) (bool, error) {
	const op = "judgeAllScanned"
	var ok bool
	if err := c.fetch(ctx, op, c.orderPath(orderID, "/judge-all-scanned"), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// ScanByBarcode registra el escaneo de un barcode en el servidor.
func (c *InventoryClient) ScanByBarcode(ctx context.Context, orderID, barcode string) (string, error) {
	return c.command(ctx, "scanByBarcode", http.MethodPost, c.orderPath(orderID, "/scan"), scanRequest{Barcode: barcode})
}

// ConfirmScans confirma ("pasa") los escaneos indicados.
func (c *InventoryClient) ConfirmScans(ctx context.Context, orderID string, items []entity.ScanItem) (string, error) {
	return c.command(ctx, "confirmScans", http.MethodPost, c.orderPath(orderID, "/scans/confirm"),
		scanItemsRequest{Items: toItemDTOs(items)})
}

// CancelScans anula los escaneos indicados.
func (c *InventoryClient) CancelScans(ctx context.Context, orderID string, items []entity.ScanItem) (string, error) {
	return c.command(ctx, "cancelScans", http.MethodPost, c.orderPath(orderID, "/scans/cancel"),
		scanItemsRequest{Items: toItemDTOs(items)})
}

// ConfirmOrder cierra la orden.
func (c *InventoryClient) ConfirmOrder(ctx context.Context, orderID string) (string, error) {
	return c.command(ctx, "confirmOrder", http.MethodPost, c.orderPath(orderID, "/confirm"), struct{}{})
}

// UpdateLocation cambia bodega/ubicación de una línea.
func (c *InventoryClient) UpdateLocation(ctx context.Context, in entity.LocationUpdate) (string, error) {
	return c.command(ctx, "updateLocation", http.MethodPut, c.detailPath(in.DetailID, "/location"), locationRequest{
		OrderID:       in.OrderID,
		Warehouse:     in.Warehouse,
		WarehouseCode: in.WarehouseCode,
		Location:      in.Location,
	})
}

// UpdateQuantity corrige la cantidad escaneada de un barcode.
func (c *InventoryClient) UpdateQuantity(ctx context.Context, in entity.QuantityUpdate) (string, error) {
	return c.command(ctx, "updateQuantity", http.MethodPut, c.detailPath(in.DetailID, "/quantity"), quantityRequest{
		Barcode:  in.Barcode,
		OrderID:  in.OrderID,
		Quantity: in.Quantity,
	})
}

func (c *InventoryClient) fetch(ctx context.Context, op, path string, data any) error {
	var env envelope
	if err := c.client.GetJSON(ctx, op, path, nil, &env); err != nil {
		return err
	}
	if !env.Success {
		return &domain.BusinessError{Op: op, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return &domain.ProtocolError{Op: op, Status: http.StatusOK, ContentType: contentTypeJSON, Snippet: snippet(env.Data), Err: err}
	}
	return nil
}

func (c *InventoryClient) command(ctx context.Context, op, method, path string, body any) (string, error) {
	var env envelope
	if err := c.client.SendJSON(ctx, op, method, path, body, &env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", &domain.BusinessError{Op: op, Message: env.Message}
	}
	return env.Message, nil
}
