package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type DatabaseConfig struct {
	Type           string `mapstructure:"TYPE"`
	Host           string `mapstructure:"HOST"`
	Port           int    `mapstructure:"PORT"`
	DBNAME         string `mapstructure:"DBNAME"`
	User           string `mapstructure:"USER"`
	Password       string `mapstructure:"PASSWORD"`
	SSLMode        string `mapstructure:"SSLMODE"`
	Timezone       string `mapstructure:"TIMEZONE"`
	ConnectionPool struct {
		MaxIdleConns    int           `mapstructure:"MAX_IDLE_CONNS"`
		MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
		ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
		ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
	} `mapstructure:"CONNECTION_POOL"`
}

// TenantDatabaseConfig holds the limits applied to every per-tenant pool.
// Coordinates (host, port, name, user, password) come from the directory.
type TenantDatabaseConfig struct {
	Type            string        `mapstructure:"TYPE"`
	SSLMode         string        `mapstructure:"SSLMODE"`
	Timezone        string        `mapstructure:"TIMEZONE"`
	MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
	AcquireTimeout  time.Duration `mapstructure:"ACQUIRE_TIMEOUT"`
	ProbeTimeout    time.Duration `mapstructure:"PROBE_TIMEOUT"`
}

type Config struct {
	RootDomain string `mapstructure:"ROOT_DOMAIN"`
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr           string        `mapstructure:"ADDR"`
		ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout   time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout    time.Duration `mapstructure:"IDLE_TIMEOUT"`
		TrustedProxies []string      `mapstructure:"TRUSTED_PROXIES"`
	} `mapstructure:"HTTP_SERVER"`
	Database       DatabaseConfig       `mapstructure:"DATABASE"`
	TenantDatabase TenantDatabaseConfig `mapstructure:"TENANT_DATABASE"`
	Redis          struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Security struct {
		SecretKey string `mapstructure:"SECRET_KEY"`
		KDFSalt   string `mapstructure:"KDF_SALT"`
	} `mapstructure:"SECURITY"`
	Policy struct {
		WhitelistMatch string `mapstructure:"WHITELIST_MATCH"`
	} `mapstructure:"POLICY"`
	RateLimit struct {
		Requests int           `mapstructure:"REQUESTS"`
		Window   time.Duration `mapstructure:"WINDOW"`
	} `mapstructure:"RATE_LIMIT"`
	Otel struct {
		Enable   bool   `mapstructure:"ENABLE"`
		Exporter string `mapstructure:"EXPORTER"` // http or grpc
		Endpoint string `mapstructure:"ENDPOINT"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Consul struct {
		Addr        string `mapstructure:"ADDR"`
		ServiceHost string `mapstructure:"SERVICE_HOST"`
		ServicePort int    `mapstructure:"SERVICE_PORT"`
	} `mapstructure:"CONSUL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Flagsmith struct {
		ApiKey          string        `mapstructure:"API_KEY"`
		Addr            string        `mapstructure:"ADDR"`
		RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
	} `mapstructure:"FLAGSMITH"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "tenant-gateway")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("TENANT_DATABASE.TYPE", "postgres")
	v.SetDefault("TENANT_DATABASE.SSLMODE", "disable")
	v.SetDefault("TENANT_DATABASE.TIMEZONE", "UTC")
	v.SetDefault("TENANT_DATABASE.MAX_OPEN_CONNS", 5)
	v.SetDefault("TENANT_DATABASE.MAX_IDLE_CONNS", 2)
	v.SetDefault("TENANT_DATABASE.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("TENANT_DATABASE.CONN_MAX_IDLE_TIME", 10*time.Second)
	v.SetDefault("TENANT_DATABASE.ACQUIRE_TIMEOUT", 30*time.Second)
	v.SetDefault("TENANT_DATABASE.PROBE_TIMEOUT", 2*time.Second)
	v.SetDefault("POLICY.WHITELIST_MATCH", "strict")
	v.SetDefault("RATE_LIMIT.REQUESTS", 0)
	v.SetDefault("RATE_LIMIT.WINDOW", time.Minute)
	v.SetDefault("OTEL.ENABLE", false)
	v.SetDefault("OTEL.EXPORTER", "http")
	v.SetDefault("OTEL.INSECURE", true)
	v.SetDefault("FLAGSMITH.ADDR", "https://edge.api.flagsmith.com/api/v1/")
	v.SetDefault("FLAGSMITH.REFRESH_INTERVAL", 30*time.Second)

	// env-only keys are invisible to Unmarshal unless viper knows them
	for key, zero := range map[string]any{
		"ROOT_DOMAIN":         "",
		"APP_VERSION":         "",
		"TLS.ENABLE":          false,
		"TLS.CERT_PATH":       "",
		"TLS.KEY_PATH":        "",
		"DATABASE.HOST":       "",
		"DATABASE.PORT":       0,
		"DATABASE.DBNAME":     "",
		"DATABASE.USER":       "",
		"DATABASE.PASSWORD":   "",
		"REDIS.ADDR":          "",
		"REDIS.PASSWORD":      "",
		"REDIS.DB":            0,
		"REDIS.POOL_SIZE":     10,
		"REDIS.POOL_TIMEOUT":  4 * time.Second,
		"SECURITY.SECRET_KEY": "",
		"SECURITY.KDF_SALT":   "",
		"OTEL.ENDPOINT":       "",
		"CONSUL.ADDR":         "",
		"CONSUL.SERVICE_HOST": "",
		"CONSUL.SERVICE_PORT": 0,
		"PYROSCOPE.ADDR":      "",
		"FLAGSMITH.API_KEY":   "",
	} {
		v.SetDefault(key, zero)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Security.SecretKey == "" {
		return nil, fmt.Errorf("SECURITY.SECRET_KEY is required")
	}

	return &cfg, nil
}

func LoadConfig(p Params) (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType(configType)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		zap.L().Warn("config.yaml not found, using environment only")
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, v); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

// Read parses a YAML document on top of defaults and environment overrides.
func Read(r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return unmarshal(v)
}

// RemoteEnabled reports whether config should come from a remote provider.
func RemoteEnabled() bool {
	return os.Getenv("REMOTE_CONFIG_PROVIDER") != ""
}

type RemoteParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Vault     *vault.Client `optional:"true"`
}

func LoadRemote(p RemoteParams) (*Config, error) {
	if val, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = val
	}

	if val, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = val
	}

	if val, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = val
	}

	v := newViper()
	v.SetConfigType(configType)
	if err := v.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		return nil, fmt.Errorf("add remote provider: %w", err)
	}

	if err := v.ReadRemoteConfig(); err != nil {
		return nil, fmt.Errorf("read remote config: %w", err)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, v); err != nil {
			return nil, err
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	configHolder.Store(cfg)

	w := NewWatcher(watchInterval, func() (*Config, error) {
		if err := v.WatchRemoteConfig(); err != nil {
			return nil, fmt.Errorf("read remote config: %w", err)
		}
		return unmarshal(v)
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})

	return cfg, nil
}

const watchInterval = 5 * time.Second

// Watcher polls a reload function and publishes every config it returns
// through Current. A failed reload keeps the previous snapshot.
type Watcher struct {
	interval time.Duration
	reload   func() (*Config, error)
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	started  atomic.Bool
}

func NewWatcher(interval time.Duration, reload func() (*Config, error)) *Watcher {
	return &Watcher{
		interval: interval,
		reload:   reload,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	if w.started.CompareAndSwap(false, true) {
		go w.run()
	}
}

// Stop ends polling and waits for an in-flight reload to finish.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}

		cfg, err := w.reload()
		if err != nil {
			zap.L().Error("unable to apply remote config", zap.Error(err))
			continue
		}
		configHolder.Store(cfg)
	}
}

// Current returns the latest remote config snapshot, if LoadRemote was used.
func Current() (*Config, bool) {
	cfg, ok := configHolder.Load().(*Config)
	return cfg, ok
}

// applyVaultSecrets overrides secret values with the KV v2 entry at secret/<APP_ENV>.
func applyVaultSecrets(ctx context.Context, client *vault.Client, v *viper.Viper) error {
	path := v.GetString("APP_ENV")

	zap.L().Info("Starting Get Secrets", zap.String("path", path))
	secret, err := client.Secrets.KvV2Read(ctx, path, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("read vault secret: %w", err)
	}
	zap.L().Info("Success Get Secret")

	overrides := map[string]string{
		"postgres_user":     "DATABASE.USER",
		"postgres_password": "DATABASE.PASSWORD",
		"redis_password":    "REDIS.PASSWORD",
		"secret_key":        "SECURITY.SECRET_KEY",
		"kdf_salt":          "SECURITY.KDF_SALT",
	}

	for key, target := range overrides {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			v.Set(target, val)
		}
	}

	return nil
}
