package entity

import "strings"

// Flujos de trabajo soportados por el servicio de inventario.
const (
	FlowInbound  = "inbound"
	FlowOutbound = "outbound"
)

// Estados de orden que no admiten más escaneos.
const (
	OrderStatusClosed   = "CLOSED"
	OrderStatusFinished = "FINISHED"
)

// OrderContext datos de la orden entregados por la capa CRUD. Solo lectura para el orquestador.
type OrderContext struct {
	OrderID string
	Flow    string
	Status  string
}

// IsClosed indica si el estado de la orden ya no admite escaneos.
func (o OrderContext) IsClosed() bool {
	s := strings.ToUpper(strings.TrimSpace(o.Status))
	return s == OrderStatusClosed || s == OrderStatusFinished
}

// ValidFlow indica si el flujo es inbound u outbound.
func ValidFlow(flow string) bool {
	return flow == FlowInbound || flow == FlowOutbound
}
