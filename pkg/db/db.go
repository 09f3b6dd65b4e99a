package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"tenant-gateway/pkg/config"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool),
)

// Target describes one physical database. For SQLite, Name is the DSN.
type Target struct {
	Type     string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	Timezone string
}

func (t Target) Dialector() (gorm.Dialector, error) {
	switch t.Type {
	case Postgres, "":
		q := url.Values{}
		if t.SSLMode != "" {
			q.Set("sslmode", t.SSLMode)
		}
		if t.Timezone != "" {
			q.Set("TimeZone", t.Timezone)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(t.User, t.Password),
			Host:     net.JoinHostPort(t.Host, strconv.Itoa(t.Port)),
			Path:     "/" + t.Name,
			RawQuery: q.Encode(),
		}
		return postgres.Open(u.String()), nil
	case MySQL:
		mc := mysqldriver.NewConfig()
		mc.User = t.User
		mc.Passwd = t.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
		mc.DBName = t.Name
		mc.ParseTime = true
		mc.Params = map[string]string{"charset": "utf8mb4"}
		if t.Timezone != "" {
			if loc, err := time.LoadLocation(t.Timezone); err == nil {
				mc.Loc = loc
			}
		}
		return mysql.Open(mc.FormatDSN()), nil
	case SQLite:
		return sqlite.Open(t.Name), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", t.Type)
	}
}

// Pool bounds a database/sql pool.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func ApplyPool(db *gorm.DB, p Pool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(p.MaxOpenConns)
	sqlDB.SetMaxIdleConns(p.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(p.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	return nil
}

func gormLogger(cfg *config.Config) logger.Interface {
	if cfg != nil && cfg.IsProduction() {
		return NewZapGormLogger(zap.L(), logger.Warn, false)
	}
	return NewZapGormLogger(zap.L(), logger.Info, true)
}

// Open opens a gorm handle with the zap logger and tracing plugin attached.
// gorm pings the database once while opening.
func Open(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	return open(dialector, &gorm.Config{Logger: gormLogger(cfg)})
}

// OpenLazy is Open without the automatic ping, for callers that confirm
// liveness themselves under a deadline.
func OpenLazy(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	return open(dialector, &gorm.Config{Logger: gormLogger(cfg), DisableAutomaticPing: true})
}

func open(dialector gorm.Dialector, gc *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, gc)
	if err != nil {
		return nil, err
	}

	if err := Otel(db); err != nil {
		_ = Close(db)
		return nil, err
	}

	return db, nil
}

// Close releases the pool behind a gorm handle.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	return Target{
		Type:     d.Type,
		Host:     d.Host,
		Port:     d.Port,
		Name:     d.DBNAME,
		User:     d.User,
		Password: d.Password,
		SSLMode:  d.SSLMode,
		Timezone: d.Timezone,
	}.Dialector()
}

// New opens the central directory database.
func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < 5; i++ {
		db, err = Open(cfg, dialector)
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying in 3 seconds... ", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}

	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		return nil, err
	}

	if err := Metric(db, cfg.Database.DBNAME); err != nil {
		zap.L().Warn("[DB] metrics disabled", zap.Error(err))
	}

	zap.L().Info("[DB] ✅ Database connection successfully configured.")

	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	cp := p.Config.Database.ConnectionPool
	if err := ApplyPool(p.DB, Pool{
		MaxOpenConns:    cp.MaxOpenConns,
		MaxIdleConns:    cp.MaxIdleConns,
		ConnMaxLifetime: cp.ConnMaxLifetime,
		ConnMaxIdleTime: cp.ConnMaxIdleTime,
	}); err != nil {
		zap.L().Error("[DB] ❌ Failed to get sql.DB from gorm", zap.Error(err))
		return err
	}

	zap.L().Info("[DB] ✅ Database connection successfully configured with connection pooling.")
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return Close(p.DB)
		},
	})

	return nil
}

func Otel(db *gorm.DB) error {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("❌ Failed to register db telemetry", zap.Error(err))
		return err
	}

	return nil
}

// Metric exports pool stats to the default prometheus registry, served by /metrics.
func Metric(db *gorm.DB, name string) error {
	if err := db.Use(prometheus.New(prometheus.Config{
		DBName:          name,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		zap.L().Error("❌ Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}
