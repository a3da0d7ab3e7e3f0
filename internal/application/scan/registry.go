package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/internal/domain/repository"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// SessionConfig parámetros comunes a todas las sesiones.
type SessionConfig struct {
	Orchestrator Options
	Debounce     DebounceConfig
	Surface      SurfaceConfig
}

// SourceFactory adaptadores adicionales para una orden (p. ej. la difusión del lector dedicado).
type SourceFactory func(order entity.OrderContext) []Source

// Session sesión de escaneo abierta sobre una orden.
type Session struct {
	Order        entity.OrderContext
	Orchestrator *Orchestrator
	Surface      *Surface
	Manual       *ManualSource

	cancel context.CancelFunc
	done   chan struct{}
}

// Simulate inyecta una lectura manual por la superficie de la sesión.
func (s *Session) Simulate(ctx context.Context, code string) error {
	return s.Manual.Simulate(ctx, code)
}

// Registry sesiones abiertas por orden. Una orden tiene como máximo una sesión.
type Registry struct {
	parent   context.Context
	gateways repository.GatewayFactory
	notifier Notifier
	sources  SourceFactory
	cfg      SessionConfig
	log      *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry crea el registro. parent acota la vida de todas las sesiones.
func NewRegistry(parent context.Context, gateways repository.GatewayFactory, notifier Notifier, sources SourceFactory, cfg SessionConfig, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		parent:   parent,
		gateways: gateways,
		notifier: notifier,
		sources:  sources,
		cfg:      cfg,
		log:      log.Component("session_registry"),
		sessions: make(map[string]*Session),
	}
}

// Open crea la sesión, arranca sus adaptadores y hace la carga inicial de la vista.
// Si la carga inicial falla la sesión queda abierta y el error se devuelve para mostrarlo.
func (r *Registry) Open(ctx context.Context, order entity.OrderContext) (*Session, error) {
	order.OrderID = strings.TrimSpace(order.OrderID)
	if order.OrderID == "" {
		return nil, fmt.Errorf("%w: orderId es obligatorio", domain.ErrInvalidInput)
	}
	if !entity.ValidFlow(order.Flow) {
		return nil, fmt.Errorf("%w: flujo %q no soportado", domain.ErrInvalidInput, order.Flow)
	}
	gw, err := r.gateways(order.Flow)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.sessions[order.OrderID]; ok {
		r.mu.Unlock()
		return nil, domain.ErrSessionExists
	}
	sessCtx, cancel := context.WithCancel(r.parent)
	log := r.log.ForOrder(order.OrderID)
	orch := NewOrchestrator(sessCtx, order, gw, r.notifier, log, r.cfg.Orchestrator)
	surface := NewSurface(orch, NewDebounce(r.cfg.Debounce), r.cfg.Surface, log)
	manual := NewManualSource(r.cfg.Surface.BufferSize)
	surface.Register(manual)
	if r.sources != nil {
		for _, src := range r.sources(order) {
			surface.Register(src)
		}
	}
	sess := &Session{
		Order:        order,
		Orchestrator: orch,
		Surface:      surface,
		Manual:       manual,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	r.sessions[order.OrderID] = sess
	r.mu.Unlock()

	go func() {
		defer close(sess.done)
		if err := surface.Run(sessCtx); err != nil {
			log.Error().Err(err).Msg("superficie detenida con error")
		}
	}()
	log.Info().Str("flow", order.Flow).Msg("sesión de escaneo abierta")

	if err := orch.Refresh(ctx); err != nil {
		return sess, err
	}
	return sess, nil
}

// Get sesión abierta de la orden.
func (r *Registry) Get(orderID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[orderID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Close cancela la sesión: descarta las reconciliaciones pendientes y desregistra los adaptadores.
func (r *Registry) Close(orderID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[orderID]
	if ok {
		delete(r.sessions, orderID)
	}
	r.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Orchestrator.Close()
	sess.cancel()
	<-sess.done
	r.log.Info().Str("order_id", orderID).Msg("sesión de escaneo cerrada")
	return nil
}

// CloseAll cierra todas las sesiones; se usa en el apagado.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Close(id)
	}
}
