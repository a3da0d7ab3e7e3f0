package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

// CharsetLatin1 valor de configuración para payloads en ISO-8859-1.
const CharsetLatin1 = "iso-8859-1"

// MessageStream subconjunto de *redis.PubSub que usa el adaptador.
type MessageStream interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Subscriber abre la suscripción a un canal.
type Subscriber func(ctx context.Context, channel string) MessageStream

// RedisSubscriber suscriptor real sobre un cliente go-redis.
func RedisSubscriber(rdb *redis.Client) Subscriber {
	return func(ctx context.Context, channel string) MessageStream {
		return rdb.Subscribe(ctx, channel)
	}
}

// BroadcastConfig configuración del adaptador.
type BroadcastConfig struct {
	ChannelPrefix string
	Field         string // vacío = payload en texto plano
	Charset       string // vacío o utf-8; iso-8859-1 para lectores antiguos
}

// Channel canal de difusión de la orden.
func (c BroadcastConfig) Channel(orderID string) string {
	return c.ChannelPrefix + ":" + orderID
}

// BroadcastSource recibe las lecturas que el lector dedicado de la plataforma difunde por Redis.
type BroadcastSource struct {
	cfg       BroadcastConfig
	channel   string
	subscribe Subscriber
	log       *logger.Logger
}

// NewBroadcastSource crea el adaptador para una orden.
func NewBroadcastSource(subscribe Subscriber, cfg BroadcastConfig, orderID string, log *logger.Logger) *BroadcastSource {
	if log == nil {
		log = logger.Nop()
	}
	ch := cfg.Channel(orderID)
	return &BroadcastSource{
		cfg:       cfg,
		channel:   ch,
		subscribe: subscribe,
		log:       log.Component("broadcast_source").ForOrder(orderID),
	}
}

// Name implementa scan.Source.
func (b *BroadcastSource) Name() string { return entity.SourceBroadcast }

// Run implementa scan.Source. La suscripción se cierra al volver.
func (b *BroadcastSource) Run(ctx context.Context, emit scan.EmitFunc) error {
	sub := b.subscribe(ctx, b.channel)
	defer sub.Close()
	b.log.Debug().Str("channel", b.channel).Msg("suscrito al canal de difusión")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("canal de difusión cerrado")
			}
			code, err := DecodePayload(msg.Payload, b.cfg.Field, b.cfg.Charset)
			if err != nil {
				b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("mensaje de difusión ignorado")
				continue
			}
			emit(code, entity.SourceBroadcast)
		}
	}
}

// DecodePayload extrae el código de un mensaje difundido. Con field vacío el payload es el código;
// si no, el payload es un objeto JSON y el código va en field.
func DecodePayload(payload, field, charset string) (string, error) {
	if strings.EqualFold(charset, CharsetLatin1) || strings.EqualFold(charset, "latin1") {
		decoded, err := charmap.ISO8859_1.NewDecoder().String(payload)
		if err != nil {
			return "", fmt.Errorf("decodificar %s: %w", charset, err)
		}
		payload = decoded
	}
	if field == "" {
		return payload, nil
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return "", fmt.Errorf("payload JSON inválido: %w", err)
	}
	switch v := obj[field].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case nil:
		return "", fmt.Errorf("el payload no trae el campo %q", field)
	default:
		return "", fmt.Errorf("campo %q con tipo %T no soportado", field, v)
	}
}
