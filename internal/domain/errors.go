package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound        = errors.New("recurso no encontrado")
	ErrInvalidInput    = errors.New("entrada inválida")
	ErrUnauthorized    = errors.New("no autorizado")
	ErrForbidden       = errors.New("acceso denegado")
	ErrEmptyScan       = errors.New("código escaneado vacío")
	ErrNothingSelected = errors.New("no hay registros seleccionados")
	ErrNotAllScanned   = errors.New("existen cantidades pendientes sin escanear")
	ErrOrderClosed     = errors.New("la orden ya está cerrada")
	ErrSessionNotFound = errors.New("no hay sesión de escaneo abierta para la orden")
	ErrSessionExists   = errors.New("ya existe una sesión de escaneo para la orden")

	// ErrStaleResult marca un resultado de refresco cuya versión ya no es la vigente.
	// Nunca se muestra al usuario.
	ErrStaleResult = errors.New("resultado obsoleto descartado")
)

// NetworkError fallo de conexión, timeout o E/S contra el servicio de inventario.
// Solo las operaciones idempotentes se reintentan antes de devolverlo.
type NetworkError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: error de red tras %d intento(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError respuesta con content-type inesperado o payload malformado (p. ej. una página HTML de error).
// Falla rápido, no se reintenta.
type ProtocolError struct {
	Op          string
	Status      int
	ContentType string
	Snippet     string
	Err         error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: respuesta inválida (status %d, content-type %q): %v", e.Op, e.Status, e.ContentType, e.Err)
	}
	return fmt.Sprintf("%s: respuesta inválida (status %d, content-type %q)", e.Op, e.Status, e.ContentType)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// BusinessError success=false en una respuesta bien formada. Message se muestra tal cual al usuario.
type BusinessError struct {
	Op      string
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return e.Op + ": operación rechazada por el servidor"
	}
	return e.Message
}

// UserMessage traduce cualquier error al texto que ve el operario.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var biz *BusinessError
	if errors.As(err, &biz) {
		return biz.Error()
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "sin conexión con el servidor de inventario, intente de nuevo"
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return "respuesta inesperada del servidor de inventario"
	}
	switch {
	case errors.Is(err, ErrNotAllScanned),
		errors.Is(err, ErrNothingSelected),
		errors.Is(err, ErrOrderClosed),
		errors.Is(err, ErrEmptyScan),
		errors.Is(err, ErrSessionNotFound):
		return unwrapSentinel(err).Error()
	}
	return err.Error()
}

func unwrapSentinel(err error) error {
	for _, s := range []error{ErrNotAllScanned, ErrNothingSelected, ErrOrderClosed, ErrEmptyScan, ErrSessionNotFound} {
		if errors.Is(err, s) {
			return s
		}
	}
	return err
}
