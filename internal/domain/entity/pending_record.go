package entity

// PendingRecord cantidad pendiente de escanear para una línea de la orden.
// Se reemplaza completo en cada refresco; el usuario no lo edita.
type PendingRecord struct {
	DetailID     string
	MaterialName string
	Spec         string
	Location     string
	PendingQty   int
	ScannedQty   int
}
