package entity

// IdentityMode define cómo se identifica un ScannedRecord entre la vista y el servidor.
type IdentityMode int

const (
	// IdentityBarcode el barcode es único dentro de la orden.
	IdentityBarcode IdentityMode = iota
	// IdentityDetailBarcode el mismo barcode puede aparecer en varias líneas (detailId, barcode).
	IdentityDetailBarcode
)

// ParseIdentityMode interpreta el valor de configuración ("barcode" | "detail_barcode").
func ParseIdentityMode(s string) IdentityMode {
	if s == "detail_barcode" {
		return IdentityDetailBarcode
	}
	return IdentityBarcode
}

// ScanKey identidad de un registro escaneado.
type ScanKey struct {
	DetailID string
	Barcode  string
}

// ScannedRecord registro escaneado visible en la vista. Se crea de forma optimista al escanear
// y luego lo corrige el refresco autoritativo.
type ScannedRecord struct {
	Barcode       string
	DetailID      string
	OrderID       string
	MaterialName  string
	Spec          string
	Location      string
	WarehouseCode string
	Quantity      int
	Confirmed     bool
	Selected      bool
}

// Key devuelve la identidad según el modo.
func (r ScannedRecord) Key(mode IdentityMode) ScanKey {
	if mode == IdentityDetailBarcode {
		return ScanKey{DetailID: r.DetailID, Barcode: r.Barcode}
	}
	return ScanKey{Barcode: r.Barcode}
}

// IsPlaceholder indica que el registro aún no fue reconocido por el servidor.
func (r ScannedRecord) IsPlaceholder() bool {
	return r.DetailID == ""
}

// ScanItem par (barcode, detailId) que viaja en los comandos de confirmación/anulación.
type ScanItem struct {
	Barcode  string
	DetailID string
}
