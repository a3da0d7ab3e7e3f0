package repository

import (
	"context"

	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// InventoryGateway contrato del servicio remoto de inventario para un flujo (inbound/outbound).
// Las operaciones que cambian estado devuelven el mensaje del servidor; success=false llega como
// *domain.BusinessError.
type InventoryGateway interface {
	FetchPending(ctx context.Context, orderID string) ([]entity.PendingRecord, error)
	FetchScanned(ctx context.Context, orderID string) ([]entity.ScannedRecord, error)
	ScanByBarcode(ctx context.Context, orderID, barcode string) (string, error)
	ConfirmScans(ctx context.Context, orderID string, items []entity.ScanItem) (string, error)
	CancelScans(ctx context.Context, orderID string, items []entity.ScanItem) (string, error)
	JudgeAllScanned(ctx context.Context, orderID string) (bool, error)
	ConfirmOrder(ctx context.Context, orderID string) (string, error)
	UpdateLocation(ctx context.Context, in entity.LocationUpdate) (string, error)
	UpdateQuantity(ctx context.Context, in entity.QuantityUpdate) (string, error)
}

// GatewayFactory entrega el gateway del flujo indicado.
type GatewayFactory func(flow string) (InventoryGateway, error)
