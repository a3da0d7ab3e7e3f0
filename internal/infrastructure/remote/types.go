package remote

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// ── Formato de cable ─────────────────────────────────────────────────────────
// El backend envuelve todo en {success, message, data}. Las cantidades pueden llegar
// como número o texto ("5.000"); se truncan a entero.

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type pendingDTO struct {
	DetailID     string          `json:"detailId"`
	MaterialName string          `json:"materialName"`
	Spec         string          `json:"spec"`
	Location     string          `json:"location"`
	PendingQty   decimal.Decimal `json:"pendingQty"`
	ScannedQty   decimal.Decimal `json:"scannedQty"`
}

func (d pendingDTO) toEntity() entity.PendingRecord {
	return entity.PendingRecord{
		DetailID:     d.DetailID,
		MaterialName: d.MaterialName,
		Spec:         d.Spec,
		Location:     d.Location,
		PendingQty:   int(d.PendingQty.IntPart()),
		ScannedQty:   int(d.ScannedQty.IntPart()),
	}
}

type scannedDTO struct {
	Barcode       string          `json:"barcode"`
	DetailID      string          `json:"detailId"`
	OrderID       string          `json:"orderId"`
	MaterialName  string          `json:"materialName"`
	Spec          string          `json:"spec"`
	Location      string          `json:"location"`
	WarehouseCode string          `json:"warehouseCode"`
	Quantity      decimal.Decimal `json:"quantity"`
	Confirmed     bool            `json:"confirmed"`
}

func (d scannedDTO) toEntity() entity.ScannedRecord {
	return entity.ScannedRecord{
		Barcode:       d.Barcode,
		DetailID:      d.DetailID,
		OrderID:       d.OrderID,
		MaterialName:  d.MaterialName,
		Spec:          d.Spec,
		Location:      d.Location,
		WarehouseCode: d.WarehouseCode,
		Quantity:      int(d.Quantity.IntPart()),
		Confirmed:     d.Confirmed,
	}
}

type scanRequest struct {
	Barcode string `json:"barcode"`
}

type scanItemDTO struct {
	Barcode  string `json:"barcode"`
	DetailID string `json:"detailId"`
}

type scanItemsRequest struct {
	Items []scanItemDTO `json:"items"`
}

func toItemDTOs(items []entity.ScanItem) []scanItemDTO {
	out := make([]scanItemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, scanItemDTO{Barcode: it.Barcode, DetailID: it.DetailID})
	}
	return out
}

type locationRequest struct {
	OrderID       string `json:"orderId"`
	Warehouse     string `json:"warehouse"`
	WarehouseCode string `json:"warehouseCode"`
	Location      string `json:"location"`
}

type quantityRequest struct {
	Barcode  string `json:"barcode"`
	OrderID  string `json:"orderId"`
	Quantity int    `json:"quantity"`
}
