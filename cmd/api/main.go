package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jhoicas/inventario-scan/internal/application/scan"
	"github.com/jhoicas/inventario-scan/internal/domain/entity"
	infraredis "github.com/jhoicas/inventario-scan/internal/infrastructure/redis"
	"github.com/jhoicas/inventario-scan/internal/infrastructure/remote"
	"github.com/jhoicas/inventario-scan/internal/infrastructure/scanner"
	httpRouter "github.com/jhoicas/inventario-scan/internal/interfaces/http"
	"github.com/jhoicas/inventario-scan/pkg/config"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("remote", cfg.Remote.BaseURL).
		Msg("iniciando aplicación")
	if cfg.JWT.Secret == "" {
		log.Warn().Msg("JWT_SECRET vacío: todas las rutas protegidas responderán 401")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	client := remote.NewClient(remote.Config{
		BaseURL:     cfg.Remote.BaseURL,
		Timeout:     cfg.Remote.Timeout,
		MaxRetries:  cfg.Remote.MaxRetries,
		BackoffBase: cfg.Remote.BackoffBase,
	}, log, remote.WithTokenSource(remote.StaticToken(cfg.Remote.Token)))
	gateways := remote.NewGatewayFactory(client)

	// Redis opcional: difusión de escaneos del lector dedicado y publicación de vistas
	var notifiers scan.Notifiers
	var sources scan.SourceFactory
	if cfg.Redis.Enabled() {
		rdb, err := infraredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer rdb.Close()

		publisher := infraredis.NewViewPublisher(rdb, cfg.Broadcast.ViewChannelPrefix, 0, log)
		go func() { _ = publisher.Run(ctx) }()
		notifiers = append(notifiers, publisher)
		sources = broadcastSources(rdb, cfg.Broadcast, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis habilitado")
	}

	registry := scan.NewRegistry(ctx, gateways, notifiers, sources, sessionConfig(cfg), log)
	defer registry.CloseAll()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 90,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Inventario Scan API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Sessions:  registry,
		JWTSecret: cfg.JWT.Secret,
		Log:       log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

func sessionConfig(cfg *config.Config) scan.SessionConfig {
	return scan.SessionConfig{
		Orchestrator: scan.Options{
			Identity:          entity.ParseIdentityMode(cfg.Scan.Identity),
			RollbackOnFailure: cfg.Scan.RollbackOnFailure,
		},
		Debounce: scan.DebounceConfig{
			Window: cfg.Scan.DebounceWindow,
			Prefix: cfg.Scan.Prefix,
			Suffix: cfg.Scan.Suffix,
		},
		Surface: scan.SurfaceConfig{BufferSize: cfg.Scan.BufferSize},
	}
}

func broadcastSources(rdb *goredis.Client, cfg config.BroadcastConfig, log *logger.Logger) scan.SourceFactory {
	sub := scanner.RedisSubscriber(rdb)
	bc := scanner.BroadcastConfig{
		ChannelPrefix: cfg.ChannelPrefix,
		Field:         cfg.Field,
		Charset:       cfg.Charset,
	}
	return func(order entity.OrderContext) []scan.Source {
		return []scan.Source{scanner.NewBroadcastSource(sub, bc, order.OrderID, log)}
	}
}
