package scan

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/width"

	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// Normalize convierte una lectura cruda de cualquier origen en un ScanEvent canónico.
// Recorta espacios y caracteres de control en los extremos y pliega caracteres de ancho completo
// (lectores en modo teclado con IME asiático) a ASCII. Rechaza lecturas vacías.
func Normalize(raw, source string, now time.Time) (entity.ScanEvent, error) {
	code := strings.TrimFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	code = width.Narrow.String(code)
	code = strings.TrimSpace(code)
	if code == "" {
		return entity.ScanEvent{}, domain.ErrEmptyScan
	}
	if source == "" {
		source = entity.SourceManual
	}
	return entity.ScanEvent{
		ID:         uuid.NewString(),
		Code:       code,
		SourceType: source,
		Timestamp:  now,
	}, nil
}

// ManualSource adaptador de simulación: cada Simulate llega a la superficie como una lectura
// de origen manual. Sirve para la captura manual en pantalla y para pruebas.
type ManualSource struct {
	inputs chan string
}

// NewManualSource crea el adaptador con un buffer de lecturas pendientes.
func NewManualSource(buffer int) *ManualSource {
	if buffer <= 0 {
		buffer = 1
	}
	return &ManualSource{inputs: make(chan string, buffer)}
}

// Name implementa Source.
func (m *ManualSource) Name() string { return entity.SourceManual }

// Simulate encola una lectura manual. Devuelve ctx.Err() si no hay espacio antes de que ctx termine.
func (m *ManualSource) Simulate(ctx context.Context, code string) error {
	select {
	case m.inputs <- code:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run implementa Source.
func (m *ManualSource) Run(ctx context.Context, emit EmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case code := <-m.inputs:
			emit(code, entity.SourceManual)
		}
	}
}
