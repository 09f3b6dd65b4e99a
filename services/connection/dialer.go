package connection

import (
	"context"

	"gorm.io/gorm"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/db"
)

// Coordinates locate one tenant database. Password is plaintext and must
// never be logged.
type Coordinates struct {
	TenantID string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Dialer opens a physical connection. It need not ping; the registry
// authenticates every new connection before caching it.
type Dialer interface {
	Dial(ctx context.Context, c Coordinates) (*gorm.DB, error)
}

// GormDialer opens tenant databases with the configured dialect and the
// tenant pool limits.
type GormDialer struct {
	cfg  *config.Config
	pool db.Pool
}

func NewGormDialer(cfg *config.Config) *GormDialer {
	t := cfg.TenantDatabase
	return &GormDialer{
		cfg: cfg,
		pool: db.Pool{
			MaxOpenConns:    t.MaxOpenConns,
			MaxIdleConns:    t.MaxIdleConns,
			ConnMaxLifetime: t.ConnMaxLifetime,
			ConnMaxIdleTime: t.ConnMaxIdleTime,
		},
	}
}

func (d *GormDialer) Dial(_ context.Context, c Coordinates) (*gorm.DB, error) {
	t := d.cfg.TenantDatabase
	dialector, err := db.Target{
		Type:     t.Type,
		Host:     c.Host,
		Port:     c.Port,
		Name:     c.Name,
		User:     c.User,
		Password: c.Password,
		SSLMode:  t.SSLMode,
		Timezone: t.Timezone,
	}.Dialector()
	if err != nil {
		return nil, err
	}

	conn, err := db.OpenLazy(d.cfg, dialector)
	if err != nil {
		return nil, err
	}

	if err := db.ApplyPool(conn, d.pool); err != nil {
		_ = db.Close(conn)
		return nil, err
	}

	return conn, nil
}
