package scan

import (
	"context"
	"time"

	"github.com/jhoicas/inventario-scan/internal/domain/entity"
)

// State estado de la máquina por orden.
type State int

const (
	StateIdle State = iota
	StateScanAccepted
	StateRemoteConfirming
	StateReconciling
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanAccepted:
		return "scan_accepted"
	case StateRemoteConfirming:
		return "remote_confirming"
	case StateReconciling:
		return "reconciling"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Niveles de mensaje para la UI.
const (
	LevelInfo     = "info"
	LevelError    = "error"
	LevelBlocking = "blocking"
)

// OrderView instantánea inmutable de la vista de una orden. La UI re-renderiza desde aquí.
type OrderView struct {
	OrderID      string
	Flow         string
	Status       string
	State        State
	Version      uint64
	Pending      []entity.PendingRecord
	Scanned      []entity.ScannedRecord
	Message      string
	MessageLevel string
	Closed       bool
	UpdatedAt    time.Time
}

// Notifier recibe la vista cada vez que cambia (después de cada fusión o transición visible).
type Notifier interface {
	OnStateChanged(view OrderView)
}

// NotifierFunc adapta una función a Notifier.
type NotifierFunc func(view OrderView)

// OnStateChanged implementa Notifier.
func (f NotifierFunc) OnStateChanged(view OrderView) { f(view) }

// Notifiers reparte la vista a varios suscriptores en orden.
type Notifiers []Notifier

// OnStateChanged implementa Notifier.
func (ns Notifiers) OnStateChanged(view OrderView) {
	for _, n := range ns {
		if n != nil {
			n.OnStateChanged(view)
		}
	}
}

// ScanHandler consumidor de eventos ya filtrados (el orquestador).
type ScanHandler interface {
	HandleScan(ctx context.Context, ev entity.ScanEvent) error
}

// EmitFunc superficie de entrada única: onRawInput(text, source).
type EmitFunc func(raw, source string)

// Source adaptador de origen de escaneo. Run bloquea hasta que ctx se cancela y entrega
// cada lectura cruda a emit; al volver, el adaptador queda desregistrado.
type Source interface {
	Name() string
	Run(ctx context.Context, emit EmitFunc) error
}
