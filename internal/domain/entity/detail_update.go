package entity

// LocationUpdate cambio de ubicación/bodega de una línea escaneada.
type LocationUpdate struct {
	DetailID      string
	OrderID       string
	Warehouse     string
	WarehouseCode string
	Location      string
}

// QuantityUpdate corrección manual de la cantidad de un barcode escaneado.
type QuantityUpdate struct {
	Barcode  string
	DetailID string
	OrderID  string
	Quantity int
}
