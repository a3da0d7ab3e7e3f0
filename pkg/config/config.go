package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	JWT       JWTConfig
	Remote    RemoteConfig
	Scan      ScanConfig
	Redis     RedisConfig
	Broadcast BroadcastConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// HTTPConfig configuración del servidor HTTP local.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig configuración de JWT para los operarios de la API local.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// RemoteConfig servicio remoto de inventario/equipos.
type RemoteConfig struct {
	BaseURL     string
	Token       string // token Bearer estático; vacío = sin cabecera Authorization
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// ScanConfig superficie de escaneo.
type ScanConfig struct {
	DebounceWindow    time.Duration
	Prefix            string
	Suffix            string
	BufferSize        int
	Identity          string // barcode | detail_barcode
	RollbackOnFailure bool
}

// RedisConfig conexión Redis para la difusión de escaneos y vistas.
// Addr vacío desactiva ambas funciones.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled indica si hay Redis configurado.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// BroadcastConfig canales de difusión.
type BroadcastConfig struct {
	ChannelPrefix     string // lectores de la plataforma publican en <prefix>:<orderId>
	Field             string // campo JSON que trae el código
	Charset           string // utf-8 | iso-8859-1
	ViewChannelPrefix string // las vistas se publican en <prefix>:<orderId>
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, REMOTE_BASE_URL, SCAN_DEBOUNCE_MS, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "inventario-scan"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 480),
			Issuer:     getString(v, "JWT_ISSUER", "inventario-scan"),
		},
		Remote: RemoteConfig{
			BaseURL:     strings.TrimRight(getString(v, "REMOTE_BASE_URL", ""), "/"),
			Token:       getString(v, "REMOTE_TOKEN", ""),
			Timeout:     time.Duration(getInt(v, "REMOTE_TIMEOUT_SECONDS", 15)) * time.Second,
			MaxRetries:  getInt(v, "REMOTE_MAX_RETRIES", 3),
			BackoffBase: time.Duration(getInt(v, "REMOTE_BACKOFF_BASE_MS", 500)) * time.Millisecond,
		},
		Scan: ScanConfig{
			DebounceWindow:    time.Duration(getInt(v, "SCAN_DEBOUNCE_MS", 250)) * time.Millisecond,
			Prefix:            getString(v, "SCAN_PREFIX", ""),
			Suffix:            getString(v, "SCAN_SUFFIX", ""),
			BufferSize:        getInt(v, "SCAN_BUFFER_SIZE", 32),
			Identity:          getString(v, "SCAN_IDENTITY", "barcode"),
			RollbackOnFailure: getBool(v, "SCAN_ROLLBACK_ON_FAILURE", false),
		},
		Redis: RedisConfig{
			Addr:     getString(v, "REDIS_ADDR", ""),
			Password: getString(v, "REDIS_PASSWORD", ""),
			DB:       getInt(v, "REDIS_DB", 0),
		},
		Broadcast: BroadcastConfig{
			ChannelPrefix:     getString(v, "BROADCAST_CHANNEL_PREFIX", "scanner"),
			Field:             getString(v, "BROADCAST_FIELD", "barcode"),
			Charset:           getString(v, "BROADCAST_CHARSET", "utf-8"),
			ViewChannelPrefix: getString(v, "VIEW_CHANNEL_PREFIX", "scan-view"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica los valores mínimos para arrancar.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL es obligatorio")
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("REMOTE_MAX_RETRIES no puede ser negativo")
	}
	if c.Scan.BufferSize <= 0 {
		return fmt.Errorf("SCAN_BUFFER_SIZE debe ser mayor que cero")
	}
	if c.Scan.Identity != "barcode" && c.Scan.Identity != "detail_barcode" {
		return fmt.Errorf("SCAN_IDENTITY inválido %q (usar 'barcode' o 'detail_barcode')", c.Scan.Identity)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
