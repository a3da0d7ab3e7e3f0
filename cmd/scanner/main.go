// Command scanner abre una sesión de escaneo sobre una orden y lee el lector en modo teclado desde stdin.
// Termina con Ctrl+C o cuando stdin se agota.
//
//	scanner -order O-100 -flow inbound
//
// Con -token emite un token de operario para la API local firmado con JWT_SECRET y sale:
//
//	scanner -token -user op-1 -station ST-01 -role operador
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	"github.com/jhoicas/inventario-scan/internal/infrastructure/remote"
	"github.com/jhoicas/inventario-scan/internal/infrastructure/scanner"
	"github.com/jhoicas/inventario-scan/pkg/config"
	"github.com/jhoicas/inventario-scan/pkg/jwt"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

func main() {
	orderID := flag.String("order", "", "ID de la orden")
	flow := flag.String("flow", entity.FlowInbound, "inbound | outbound")
	mint := flag.Bool("token", false, "emitir un token de operario para la API local y salir")
	userID := flag.String("user", "", "operario del token")
	stationID := flag.String("station", "", "estación de escaneo del token")
	role := flag.String("role", jwt.RoleOperator, "operador | supervisor | admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	if *mint {
		if *userID == "" || *stationID == "" {
			fmt.Fprintln(os.Stderr, "uso: scanner -token -user <id> -station <id> [-role operador|supervisor|admin]")
			os.Exit(2)
		}
		tok, err := jwt.Generate(cfg.JWT.Secret, *userID, *stationID, *role, cfg.JWT.Issuer, cfg.JWT.Expiration)
		if err != nil {
			fmt.Fprintln(os.Stderr, "emitir token:", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}
	if *orderID == "" {
		fmt.Fprintln(os.Stderr, "uso: scanner -order <id> [-flow inbound|outbound]")
		os.Exit(2)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := remote.NewClient(remote.Config{
		BaseURL:     cfg.Remote.BaseURL,
		Timeout:     cfg.Remote.Timeout,
		MaxRetries:  cfg.Remote.MaxRetries,
		BackoffBase: cfg.Remote.BackoffBase,
	}, log, remote.WithTokenSource(remote.StaticToken(cfg.Remote.Token)))

	// al agotarse stdin el adaptador termina; el comando sale cuando la superficie procesó lo leído
	eof := make(chan struct{})
	keyboard := notifyOnReturn{Source: scanner.NewKeyboardSource(os.Stdin, log), done: eof}
	registry := scan.NewRegistry(ctx, remote.NewGatewayFactory(client), scan.NotifierFunc(printView),
		func(entity.OrderContext) []scan.Source { return []scan.Source{keyboard} },
		scan.SessionConfig{
			Orchestrator: scan.Options{
				Identity:          entity.ParseIdentityMode(cfg.Scan.Identity),
				RollbackOnFailure: cfg.Scan.RollbackOnFailure,
			},
			Debounce: scan.DebounceConfig{Window: cfg.Scan.DebounceWindow, Prefix: cfg.Scan.Prefix, Suffix: cfg.Scan.Suffix},
			Surface:  scan.SurfaceConfig{BufferSize: cfg.Scan.BufferSize},
		}, log)
	defer registry.CloseAll()

	sess, err := registry.Open(ctx, entity.OrderContext{OrderID: *orderID, Flow: *flow})
	if err != nil {
		log.Error().Err(err).Msg("abrir sesión")
		if sess == nil {
			os.Exit(1)
		}
	}
	log.Info().Str("order_id", *orderID).Msg("listo para escanear (Ctrl+C para salir)")

	select {
	case <-ctx.Done():
	case <-eof:
		waitDrained(ctx, sess.Surface)
		log.Info().Msg("fin de la entrada")
	}
}

func waitDrained(ctx context.Context, s *scan.Surface) {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !s.Drained() {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func printView(v scan.OrderView) {
	pending := 0
	for _, p := range v.Pending {
		pending += p.PendingQty
	}
	fmt.Printf("[%s] v%d escaneados=%d pendientes=%d", v.State, v.Version, len(v.Scanned), pending)
	if v.Message != "" {
		fmt.Printf(" | %s", v.Message)
	}
	fmt.Println()
}

// notifyOnReturn cierra done cuando el adaptador envuelto deja de leer.
type notifyOnReturn struct {
	scan.Source
	done chan struct{}
}

func (s notifyOnReturn) Run(ctx context.Context, emit scan.EmitFunc) error {
	defer close(s.done)
	return s.Source.Run(ctx, emit)
}
