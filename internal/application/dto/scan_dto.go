package dto

import (
	"time"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// OpenSessionRequest body para POST /api/orders/:id/sessions.
type OpenSessionRequest struct {
	Flow   string `json:"flow"`             // inbound | outbound
	Status string `json:"status,omitempty"` // estado de la orden según la capa CRUD
}

// ScanRequest body para POST /api/orders/:id/scans.
type ScanRequest struct {
	Code string `json:"code"`
}

// SelectionRequest body para PATCH /api/orders/:id/selection. Con All se ignoran Barcode/DetailID.
type SelectionRequest struct {
	Barcode  string `json:"barcode,omitempty"`
	DetailID string `json:"detail_id,omitempty"`
	Selected bool   `json:"selected"`
	All      *bool  `json:"all,omitempty"`
}

// LocationRequest body para PUT /api/orders/:id/details/:detailId/location.
type LocationRequest struct {
	Warehouse     string `json:"warehouse"`
	WarehouseCode string `json:"warehouse_code"`
	Location      string `json:"location"`
}

// QuantityRequest body para PUT /api/orders/:id/details/:detailId/quantity.
type QuantityRequest struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

// PendingDTO línea pendiente.
type PendingDTO struct {
	DetailID     string `json:"detail_id"`
	MaterialName string `json:"material_name"`
	Spec         string `json:"spec,omitempty"`
	Location     string `json:"location,omitempty"`
	PendingQty   int    `json:"pending_qty"`
	ScannedQty   int    `json:"scanned_qty"`
}

// ScannedDTO registro escaneado.
type ScannedDTO struct {
	Barcode       string `json:"barcode"`
	DetailID      string `json:"detail_id"`
	MaterialName  string `json:"material_name,omitempty"`
	Spec          string `json:"spec,omitempty"`
	Location      string `json:"location,omitempty"`
	WarehouseCode string `json:"warehouse_code,omitempty"`
	Quantity      int    `json:"quantity"`
	Confirmed     bool   `json:"confirmed"`
	Selected      bool   `json:"selected"`
	Placeholder   bool   `json:"placeholder"` // aún no reconocido por el servidor
}

// OrderViewDTO vista de la orden para la UI.
type OrderViewDTO struct {
	OrderID      string       `json:"order_id"`
	Flow         string       `json:"flow"`
	Status       string       `json:"status,omitempty"`
	State        string       `json:"state"`
	Version      uint64       `json:"version"`
	Closed       bool         `json:"closed"`
	Message      string       `json:"message,omitempty"`
	MessageLevel string       `json:"message_level,omitempty"`
	Pending      []PendingDTO `json:"pending"`
	Scanned      []ScannedDTO `json:"scanned"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty"`
}

// FromView convierte la instantánea del orquestador.
func FromView(v scan.OrderView) OrderViewDTO {
	out := OrderViewDTO{
		OrderID:      v.OrderID,
		Flow:         v.Flow,
		Status:       v.Status,
		State:        v.State.String(),
		Version:      v.Version,
		Closed:       v.Closed,
		Message:      v.Message,
		MessageLevel: v.MessageLevel,
		Pending:      make([]PendingDTO, 0, len(v.Pending)),
		Scanned:      make([]ScannedDTO, 0, len(v.Scanned)),
	}
	if !v.UpdatedAt.IsZero() {
		t := v.UpdatedAt
		out.UpdatedAt = &t
	}
	for _, p := range v.Pending {
		out.Pending = append(out.Pending, PendingDTO{
			DetailID:     p.DetailID,
			MaterialName: p.MaterialName,
			Spec:         p.Spec,
			Location:     p.Location,
			PendingQty:   p.PendingQty,
			ScannedQty:   p.ScannedQty,
		})
	}
	for _, r := range v.Scanned {
		out.Scanned = append(out.Scanned, fromScanned(r))
	}
	return out
}

func fromScanned(r entity.ScannedRecord) ScannedDTO {
	return ScannedDTO{
		Barcode:       r.Barcode,
		DetailID:      r.DetailID,
		MaterialName:  r.MaterialName,
		Spec:          r.Spec,
		Location:      r.Location,
		WarehouseCode: r.WarehouseCode,
		Quantity:      r.Quantity,
		Confirmed:     r.Confirmed,
		Selected:      r.Selected,
		Placeholder:   r.IsPlaceholder(),
	}
}
