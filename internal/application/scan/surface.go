package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// ErrSurfaceStopped la superficie ya no acepta lecturas.
var ErrSurfaceStopped = errors.New("la superficie de escaneo está detenida")

// DefaultBufferSize lecturas en cola antes de que OnRawInput bloquee.
const DefaultBufferSize = 64

// SurfaceConfig configuración de la superficie.
type SurfaceConfig struct {
	BufferSize int
	Clock      func() time.Time
}

// Surface punto de entrada único para todos los orígenes de escaneo de una orden.
// Normaliza, filtra duplicados y entrega los eventos al orquestador en orden de llegada.
type Surface struct {
	handler ScanHandler
	filter  *Debounce
	log     *logger.Logger
	clock   func() time.Time

	events  chan entity.ScanEvent
	stopped chan struct{}

	// lecturas encoladas y lecturas ya resueltas (entregadas o descartadas)
	queued  atomic.Uint64
	settled atomic.Uint64

	mu      sync.Mutex
	sources []Source
	running bool
}

// NewSurface crea la superficie para un orquestador.
func NewSurface(handler ScanHandler, filter *Debounce, cfg SurfaceConfig, log *logger.Logger) *Surface {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if filter == nil {
		filter = NewDebounce(DebounceConfig{})
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Surface{
		handler: handler,
		filter:  filter,
		log:     log.Component("scan_surface"),
		clock:   cfg.Clock,
		events:  make(chan entity.ScanEvent, cfg.BufferSize),
		stopped: make(chan struct{}),
	}
}

// Register agrega un adaptador. Debe llamarse antes de Run.
func (s *Surface) Register(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Warn().Str("source", src.Name()).Msg("adaptador registrado con la superficie en marcha; se ignora")
		return
	}
	s.sources = append(s.sources, src)
}

// OnRawInput entrega una lectura cruda. Las lecturas vacías se descartan con ErrEmptyScan.
func (s *Surface) OnRawInput(ctx context.Context, raw, source string) error {
	ev, err := Normalize(raw, source, s.clock())
	if err != nil {
		s.log.Debug().Str("source", source).Msg("lectura vacía descartada")
		return err
	}
	select {
	case <-s.stopped:
		return ErrSurfaceStopped
	default:
	}
	s.queued.Inc()
	select {
	case s.events <- ev:
		return nil
	case <-s.stopped:
		s.queued.Dec()
		return ErrSurfaceStopped
	case <-ctx.Done():
		s.queued.Dec()
		return ctx.Err()
	}
}

// Run arranca los adaptadores y el bucle de proceso; bloquea hasta que ctx termina.
// El fallo de un adaptador se registra en el log y no detiene a los demás.
func (s *Surface) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("la superficie ya está en marcha")
	}
	s.running = true
	sources := append([]Source(nil), s.sources...)
	s.mu.Unlock()
	defer close(s.stopped)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			s.log.Debug().Str("source", src.Name()).Msg("adaptador registrado")
			defer s.log.Debug().Str("source", src.Name()).Msg("adaptador desregistrado")
			emit := func(raw, source string) {
				if err := s.OnRawInput(gctx, raw, source); err != nil && !errors.Is(err, domain.ErrEmptyScan) {
					s.log.Debug().Err(err).Str("source", source).Msg("lectura no entregada")
				}
			}
			if err := src.Run(gctx, emit); err != nil && gctx.Err() == nil {
				s.log.Error().Err(err).Str("source", src.Name()).Msg("adaptador detenido con error")
			}
			return nil
		})
	}
	g.Go(func() error {
		s.process(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Surface) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ctx, ev)
			s.settled.Inc()
		}
	}
}

func (s *Surface) handle(ctx context.Context, ev entity.ScanEvent) {
	out, ok := s.filter.FilterAndForward(ev)
	if !ok {
		s.log.Debug().Str("code", ev.Code).Str("source", ev.SourceType).Msg("lectura duplicada descartada")
		return
	}
	if err := s.handler.HandleScan(ctx, out); err != nil && ctx.Err() == nil {
		s.log.Debug().Err(err).Str("code", out.Code).Msg("escaneo no completado")
	}
}

// Drained indica que toda lectura encolada ya fue entregada al orquestador y resuelta, o descartada.
func (s *Surface) Drained() bool {
	return s.settled.Load() == s.queued.Load()
}
