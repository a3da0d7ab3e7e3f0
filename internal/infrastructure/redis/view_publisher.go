package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/inventario-scan/internal/application/dto"
	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// DefaultLatestTTL vigencia de la última vista guardada por orden.
const DefaultLatestTTL = 12 * time.Hour

// viewWriter subconjunto de *redis.Client que usa el publicador.
type viewWriter interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// ViewPublisher difunde cada OrderView como JSON en <prefix>:<orderId> y guarda la última en <prefix>:<orderId>:latest.
// OnStateChanged nunca bloquea al orquestador: las vistas se encolan y Run las escribe.
type ViewPublisher struct {
	rdb    viewWriter
	prefix string
	ttl    time.Duration
	queue  chan scan.OrderView
	log    *logger.Logger
}

// NewViewPublisher crea el publicador. buffer es el número de vistas en cola antes de descartar.
func NewViewPublisher(rdb viewWriter, prefix string, buffer int, log *logger.Logger) *ViewPublisher {
	if buffer <= 0 {
		buffer = 128
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ViewPublisher{
		rdb:    rdb,
		prefix: prefix,
		ttl:    DefaultLatestTTL,
		queue:  make(chan scan.OrderView, buffer),
		log:    log.Component("view_publisher"),
	}
}

// Channel canal de la orden.
func (p *ViewPublisher) Channel(orderID string) string {
	return p.prefix + ":" + orderID
}

// OnStateChanged implementa scan.Notifier.
func (p *ViewPublisher) OnStateChanged(view scan.OrderView) {
	select {
	case p.queue <- view:
	default:
		p.log.Warn().Str("order_id", view.OrderID).Uint64("version", view.Version).Msg("cola de vistas llena; vista descartada")
	}
}

// Run escribe las vistas encoladas hasta que ctx termina.
func (p *ViewPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case view := <-p.queue:
			if err := p.Publish(ctx, view); err != nil {
				p.log.Warn().Err(err).Str("order_id", view.OrderID).Msg("publicar vista")
			}
		}
	}
}

// Publish serializa y escribe una vista.
func (p *ViewPublisher) Publish(ctx context.Context, view scan.OrderView) error {
	payload, err := json.Marshal(dto.FromView(view))
	if err != nil {
		return fmt.Errorf("serializar vista: %w", err)
	}
	channel := p.Channel(view.OrderID)
	if err := p.rdb.Set(ctx, channel+":latest", payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("guardar última vista: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publicar en %s: %w", channel, err)
	}
	return nil
}
