package scan

import (
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// DefaultDebounceWindow ventana por defecto para descartar lecturas repetidas.
const DefaultDebounceWindow = 250 * time.Millisecond

// DebounceConfig configuración del filtro.
type DebounceConfig struct {
	Window time.Duration
	Prefix string // se quita del código antes de comparar y reenviar
	Suffix string
}

// Debounce descarta un evento cuyo código coincide con el último entregado si llegó dentro de la ventana.
// Un filtro por superficie de escaneo; seguro para varios adaptadores concurrentes. Nunca bloquea.
type Debounce struct {
	cfg DebounceConfig

	mu            sync.Mutex
	lastCode      string
	lastTimestamp time.Time
}

// NewDebounce crea el filtro. Window 0 usa DefaultDebounceWindow.
func NewDebounce(cfg DebounceConfig) *Debounce {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDebounceWindow
	}
	return &Debounce{cfg: cfg}
}

// FilterAndForward devuelve el evento con prefijo/sufijo recortados y si debe reenviarse.
// El tiempo transcurrido se mide con los timestamps de los eventos, no con el reloj actual, y en valor absoluto.
func (d *Debounce) FilterAndForward(ev entity.ScanEvent) (entity.ScanEvent, bool) {
	code := ev.Code
	if d.cfg.Prefix != "" {
		code = strings.TrimPrefix(code, d.cfg.Prefix)
	}
	if d.cfg.Suffix != "" {
		code = strings.TrimSuffix(code, d.cfg.Suffix)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ev, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if code == d.lastCode && !d.lastTimestamp.IsZero() {
		// con varios adaptadores activos los timestamps pueden llegar fuera de orden
		elapsed := ev.Timestamp.Sub(d.lastTimestamp)
		if elapsed < 0 {
			elapsed = -elapsed
		}
		if elapsed < d.cfg.Window {
			return ev, false
		}
	}
	d.lastCode = code
	d.lastTimestamp = ev.Timestamp

	ev.Code = code
	return ev, true
}
