package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/internal/domain/reconcile"
	"github.com/jhoicas/inventario-scan/internal/domain/repository"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// Options comportamiento del orquestador.
type Options struct {
	Identity entity.IdentityMode
	// RollbackOnFailure quita el placeholder optimista si el servidor rechaza el escaneo.
	// Por defecto queda hasta la siguiente reconciliación.
	RollbackOnFailure bool
	Clock             func() time.Time
}

// Orchestrator máquina de estados por orden. Serializa las secuencias escaneo → confirmación remota →
// refresco → fusión con un lock FIFO de un solo cupo y descarta refrescos obsoletos con VersionGuard.
type Orchestrator struct {
	order  entity.OrderContext
	gw     repository.InventoryGateway
	notify Notifier
	log    *logger.Logger
	opts   Options

	// lock de secuencia: como máximo una secuencia en vuelo por orden.
	lock    *semaphore.Weighted
	version reconcile.VersionGuard

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu           sync.RWMutex // protege la vista
	state        State
	status       string
	pending      []entity.PendingRecord
	scanned      *reconcile.ScannedCollection
	message      string
	messageLevel string
	closed       bool
	updatedAt    time.Time
}

// NewOrchestrator crea el orquestador de una orden. parent acota la vida de la orden: al cancelarse
// se descartan las reconciliaciones pendientes.
func NewOrchestrator(parent context.Context, order entity.OrderContext, gw repository.InventoryGateway, notify Notifier, log *logger.Logger, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if notify == nil {
		notify = Notifiers(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(parent)
	o := &Orchestrator{
		order:   order,
		gw:      gw,
		notify:  notify,
		log:     log.Component("orchestrator").ForOrder(order.OrderID),
		opts:    opts,
		lock:    semaphore.NewWeighted(1),
		ctx:     ctx,
		cancel:  cancel,
		status:  order.Status,
		scanned: reconcile.NewScannedCollection(opts.Identity),
		closed:  order.IsClosed(),
	}
	if o.closed {
		o.state = StateClosed
	}
	return o
}

// Order contexto de la orden.
func (o *Orchestrator) Order() entity.OrderContext { return o.order }

// Identity modo de identidad de los registros escaneados.
func (o *Orchestrator) Identity() entity.IdentityMode { return o.opts.Identity }

// View instantánea actual.
func (o *Orchestrator) View() OrderView {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.viewLocked()
}

func (o *Orchestrator) viewLocked() OrderView {
	pending := make([]entity.PendingRecord, len(o.pending))
	copy(pending, o.pending)
	return OrderView{
		OrderID:      o.order.OrderID,
		Flow:         o.order.Flow,
		Status:       o.status,
		State:        o.state,
		Version:      o.version.Current(),
		Pending:      pending,
		Scanned:      o.scanned.Snapshot(),
		Message:      o.message,
		MessageLevel: o.messageLevel,
		Closed:       o.closed,
		UpdatedAt:    o.updatedAt,
	}
}

// publish aplica fn sobre la vista bajo el mutex y notifica la instantánea resultante fuera de él.
func (o *Orchestrator) publish(fn func()) {
	o.mu.Lock()
	fn()
	o.updatedAt = o.opts.Clock()
	view := o.viewLocked()
	o.mu.Unlock()
	o.notify.OnStateChanged(view)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.log.Debug().Str("state", s.String()).Msg("transición de estado")
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

// opContext combina el ctx del llamador con el token de cancelación de la orden.
func (o *Orchestrator) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// acquire toma el lock de secuencia en orden de llegada. El llamador libera con defer o.lock.Release(1).
func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.ctx.Err() != nil {
		return domain.ErrOrderClosed
	}
	if err := o.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	if o.isClosed() || o.ctx.Err() != nil {
		o.lock.Release(1)
		return domain.ErrOrderClosed
	}
	return nil
}

// HandleScan ejecuta la secuencia completa de un escaneo: placeholder optimista, confirmación remota,
// refresco de pendientes y escaneados en paralelo y fusión si la versión sigue vigente.
func (o *Orchestrator) HandleScan(ctx context.Context, ev entity.ScanEvent) error {
	code := strings.TrimSpace(ev.Code)
	if code == "" {
		return domain.ErrEmptyScan
	}
	ctx, done := o.opContext(ctx)
	defer done()

	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release(1)

	var key entity.ScanKey
	var inserted bool
	o.publish(func() {
		o.state = StateScanAccepted
		key, inserted = o.scanned.Touch(o.order.OrderID, code)
		o.message = ""
		o.messageLevel = ""
	})
	o.log.Debug().Str("event_id", ev.ID).Str("source", ev.SourceType).Bool("placeholder", inserted).Msg("escaneo aceptado")

	o.setState(StateRemoteConfirming)
	msg, err := o.gw.ScanByBarcode(ctx, o.order.OrderID, code)
	if err != nil {
		o.fail("scanByBarcode", err, func() {
			if inserted && o.opts.RollbackOnFailure {
				o.scanned.RemovePlaceholder(key)
			}
		})
		return err
	}

	o.setState(StateReconciling)
	if err := o.refreshLocked(ctx); err != nil {
		if errors.Is(err, domain.ErrStaleResult) {
			o.publish(func() { o.state = StateIdle })
			return nil
		}
		o.fail("refresh", err, nil)
		return err
	}
	o.succeed(msg)
	o.log.Info().Str("barcode", code).Msg("escaneo confirmado")
	return nil
}

// PassScans confirma los registros seleccionados y refresca.
func (o *Orchestrator) PassScans(ctx context.Context) (string, error) {
	return o.selectionCommand(ctx, "confirmScans", o.gw.ConfirmScans)
}

// CancelScans anula los registros seleccionados y refresca.
func (o *Orchestrator) CancelScans(ctx context.Context) (string, error) {
	return o.selectionCommand(ctx, "cancelScans", o.gw.CancelScans)
}

func (o *Orchestrator) selectionCommand(ctx context.Context, op string, call func(context.Context, string, []entity.ScanItem) (string, error)) (string, error) {
	ctx, done := o.opContext(ctx)
	defer done()

	if err := o.acquire(ctx); err != nil {
		return "", err
	}
	defer o.lock.Release(1)

	o.mu.RLock()
	items := o.scanned.SelectedItems()
	o.mu.RUnlock()
	if len(items) == 0 {
		o.publish(func() {
			o.message = domain.ErrNothingSelected.Error()
			o.messageLevel = LevelError
		})
		return "", domain.ErrNothingSelected
	}

	o.setState(StateRemoteConfirming)
	msg, err := call(ctx, o.order.OrderID, items)
	if err != nil {
		o.fail(op, err, nil)
		return "", err
	}
	o.log.Info().Str("op", op).Int("items", len(items)).Msg("comando aceptado")
	return o.refreshAfterCommand(ctx, msg)
}

// ConfirmOrder cierra la orden si el servidor confirma que no quedan cantidades pendientes.
// Si quedan, muestra un aviso bloqueante y no modifica nada.
func (o *Orchestrator) ConfirmOrder(ctx context.Context) (string, error) {
	ctx, done := o.opContext(ctx)
	defer done()

	if err := o.acquire(ctx); err != nil {
		return "", err
	}
	defer o.lock.Release(1)

	o.setState(StateRemoteConfirming)
	all, err := o.gw.JudgeAllScanned(ctx, o.order.OrderID)
	if err != nil {
		o.fail("judgeAllScanned", err, nil)
		return "", err
	}
	if !all {
		o.publish(func() {
			o.state = StateIdle
			o.message = domain.ErrNotAllScanned.Error()
			o.messageLevel = LevelBlocking
		})
		o.log.Info().Msg("confirmación bloqueada: hay pendientes")
		return "", domain.ErrNotAllScanned
	}

	msg, err := o.gw.ConfirmOrder(ctx, o.order.OrderID)
	if err != nil {
		o.fail("confirmOrder", err, nil)
		return "", err
	}
	o.version.Invalidate()
	o.publish(func() {
		o.state = StateClosed
		o.status = entity.OrderStatusClosed
		o.closed = true
		o.message = msg
		o.messageLevel = LevelInfo
	})
	o.log.Info().Msg("orden confirmada")
	return msg, nil
}

// UpdateLocation corrige almacén y ubicación de un detalle y refresca.
func (o *Orchestrator) UpdateLocation(ctx context.Context, in entity.LocationUpdate) (string, error) {
	if strings.TrimSpace(in.DetailID) == "" || strings.TrimSpace(in.Location) == "" {
		return "", fmt.Errorf("%w: detailId y location son obligatorios", domain.ErrInvalidInput)
	}
	in.OrderID = o.order.OrderID
	return o.detailCommand(ctx, "updateLocation", func(ctx context.Context) (string, error) {
		return o.gw.UpdateLocation(ctx, in)
	})
}

// UpdateQuantity corrige la cantidad escaneada de un detalle y refresca.
func (o *Orchestrator) UpdateQuantity(ctx context.Context, in entity.QuantityUpdate) (string, error) {
	if strings.TrimSpace(in.DetailID) == "" || in.Quantity < 0 {
		return "", fmt.Errorf("%w: detailId obligatorio y cantidad no negativa", domain.ErrInvalidInput)
	}
	in.OrderID = o.order.OrderID
	return o.detailCommand(ctx, "updateQuantity", func(ctx context.Context) (string, error) {
		return o.gw.UpdateQuantity(ctx, in)
	})
}

func (o *Orchestrator) detailCommand(ctx context.Context, op string, call func(context.Context) (string, error)) (string, error) {
	ctx, done := o.opContext(ctx)
	defer done()

	if err := o.acquire(ctx); err != nil {
		return "", err
	}
	defer o.lock.Release(1)

	o.setState(StateRemoteConfirming)
	msg, err := call(ctx)
	if err != nil {
		o.fail(op, err, nil)
		return "", err
	}
	return o.refreshAfterCommand(ctx, msg)
}

func (o *Orchestrator) refreshAfterCommand(ctx context.Context, msg string) (string, error) {
	o.setState(StateReconciling)
	if err := o.refreshLocked(ctx); err != nil {
		if errors.Is(err, domain.ErrStaleResult) {
			o.publish(func() { o.state = StateIdle })
			return msg, nil
		}
		o.fail("refresh", err, nil)
		return "", err
	}
	o.succeed(msg)
	return msg, nil
}

// Refresh refresco manual. Las lecturas se emiten fuera del lock y el resultado solo se aplica
// si ninguna otra operación emitió un refresco más nuevo mientras tanto.
// Una orden confirmada se puede seguir refrescando; una orden cancelada devuelve ErrOrderClosed.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if o.ctx.Err() != nil {
		return domain.ErrOrderClosed
	}
	ctx, done := o.opContext(ctx)
	defer done()

	v := o.version.Next()
	pending, scanned, err := o.fetch(ctx)
	if err != nil {
		if o.ctx.Err() != nil {
			return domain.ErrOrderClosed
		}
		if !o.version.IsCurrent(v) {
			o.log.Debug().Uint64("version", v).Msg("fallo de refresco obsoleto descartado")
			return nil
		}
		o.publish(func() {
			o.message = domain.UserMessage(err)
			o.messageLevel = LevelError
		})
		o.logFailure("refresh", err)
		return err
	}

	if err := o.lock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.lock.Release(1)
	if err := o.apply(v, pending, scanned); err != nil {
		if errors.Is(err, domain.ErrStaleResult) {
			return nil
		}
		return err
	}
	return nil
}

// refreshLocked refresca dentro de una secuencia; el llamador ya tiene el lock.
func (o *Orchestrator) refreshLocked(ctx context.Context) error {
	v := o.version.Next()
	pending, scanned, err := o.fetch(ctx)
	if err != nil {
		if !o.version.IsCurrent(v) {
			return domain.ErrStaleResult
		}
		return err
	}
	return o.apply(v, pending, scanned)
}

// fetch lee pendientes y escaneados en paralelo.
func (o *Orchestrator) fetch(ctx context.Context) ([]entity.PendingRecord, []entity.ScannedRecord, error) {
	var pending []entity.PendingRecord
	var scanned []entity.ScannedRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pending, err = o.gw.FetchPending(gctx, o.order.OrderID)
		return err
	})
	g.Go(func() error {
		var err error
		scanned, err = o.gw.FetchScanned(gctx, o.order.OrderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pending, scanned, nil
}

// apply fusiona el resultado de la versión v si sigue vigente y la orden no fue cancelada.
func (o *Orchestrator) apply(v uint64, pending []entity.PendingRecord, scanned []entity.ScannedRecord) error {
	o.mu.Lock()
	if !o.version.IsCurrent(v) || o.ctx.Err() != nil {
		o.mu.Unlock()
		o.log.Debug().Uint64("version", v).Uint64("current", o.version.Current()).Msg("refresco obsoleto descartado")
		return domain.ErrStaleResult
	}
	o.pending = pending
	res := o.scanned.Reconcile(scanned)
	o.updatedAt = o.opts.Clock()
	view := o.viewLocked()
	o.mu.Unlock()

	o.log.Debug().
		Uint64("version", v).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("removed", res.Removed).
		Msg("reconciliación aplicada")
	o.notify.OnStateChanged(view)
	return nil
}

func (o *Orchestrator) succeed(msg string) {
	o.publish(func() {
		o.state = StateIdle
		o.message = msg
		if msg != "" {
			o.messageLevel = LevelInfo
		}
	})
}

// fail muestra el error, aplica el rollback opcional y devuelve el estado a Idle.
// Si la orden fue cancelada no se muestra nada.
func (o *Orchestrator) fail(op string, err error, rollback func()) {
	if o.ctx.Err() != nil {
		o.setState(StateIdle)
		o.log.Debug().Str("op", op).Err(err).Msg("operación interrumpida por cierre de la orden")
		return
	}
	o.logFailure(op, err)
	o.publish(func() {
		if rollback != nil {
			rollback()
		}
		o.state = StateFailed
		o.message = domain.UserMessage(err)
		o.messageLevel = LevelError
	})
	o.publish(func() { o.state = StateIdle })
}

func (o *Orchestrator) logFailure(op string, err error) {
	var biz *domain.BusinessError
	if errors.As(err, &biz) {
		o.log.Info().Str("op", op).Str("message", biz.Message).Msg("operación rechazada por el servidor")
		return
	}
	o.log.Warn().Str("op", op).Err(err).Msg("operación fallida")
}

// SetSelected cambia la selección de un registro. Es local: no emite peticiones.
func (o *Orchestrator) SetSelected(key entity.ScanKey, selected bool) bool {
	var ok bool
	o.publish(func() { ok = o.scanned.SetSelected(key, selected) })
	return ok
}

// SelectAll marca o desmarca todos los registros escaneados.
func (o *Orchestrator) SelectAll(selected bool) {
	o.publish(func() { o.scanned.SelectAll(selected) })
}

// Close cancela la orden: los refrescos en vuelo quedan obsoletos y las secuencias en curso
// terminan con error de cancelación.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.version.Invalidate()
		o.cancel()
		o.log.Debug().Msg("orden cerrada")
	})
}

// Done se cierra cuando la orden se cancela.
func (o *Orchestrator) Done() <-chan struct{} { return o.ctx.Done() }
