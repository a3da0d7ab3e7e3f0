package entity

import "time"

// Orígenes de escaneo conocidos.
const (
	SourceKeyboard  = "keyboard"  // lector en modo teclado (keyboard wedge), termina en salto de línea
	SourceBroadcast = "broadcast" // mensaje difundido por el lector de la plataforma
	SourceManual    = "manual"    // simulación programática o captura manual
)

// ScanEvent evento de escaneo canónico producido por un adaptador. Inmutable.
type ScanEvent struct {
	ID         string
	Code       string
	SourceType string
	Timestamp  time.Time
}
