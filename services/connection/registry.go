package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/db"
	"tenant-gateway/pkg/errutil"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/schema"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("connection registry closed")

// Decrypter recovers a tenant database password from its stored blob.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// Binder binds the tenant model set to one connection.
type Binder interface {
	Bind(conn *gorm.DB) (schema.Bindings, error)
}

// Handle is a live, schema-bound connection to one tenant database. A handle
// is shared by every request for that tenant until it is evicted.
type Handle struct {
	TenantID  string
	DB        *gorm.DB
	Bindings  schema.Bindings
	CreatedAt time.Time
}

type Options struct {
	AcquireTimeout time.Duration
	ProbeTimeout   time.Duration
}

// Registry owns the per-tenant connection cache. Build one per process and
// Close it on shutdown.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool
	group   singleflight.Group

	vault  Decrypter
	dialer Dialer
	binder Binder
	opts   Options
	now    func() time.Time
}

func NewRegistry(vault Decrypter, dialer Dialer, binder Binder, opts Options) *Registry {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}
	return &Registry{
		handles: make(map[string]*Handle),
		vault:   vault,
		dialer:  dialer,
		binder:  binder,
		opts:    opts,
		now:     time.Now,
	}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AcquireTimeout: cfg.TenantDatabase.AcquireTimeout,
		ProbeTimeout:   cfg.TenantDatabase.ProbeTimeout,
	}
}

// Acquire returns the tenant's cached handle when it answers a liveness
// probe, otherwise it builds, binds and caches a new one. Concurrent callers
// for the same tenant share a single creation.
func (r *Registry) Acquire(ctx context.Context, tenant *directory.Tenant) (*Handle, error) {
	if tenant == nil || tenant.ID == "" {
		return nil, errors.New("acquire: tenant id required")
	}

	stale, ok, closed := r.lookup(tenant.ID)
	if closed {
		return nil, ErrClosed
	}
	if ok {
		err := r.probe(ctx, stale)
		if err == nil {
			registryHits.Inc()
			return stale, nil
		}
		registryRebuilds.Inc()
		zap.L().Warn("[Registry] cached tenant connection failed probe, rebuilding",
			zap.String("tenant_id", tenant.ID), zap.Error(err))
	} else {
		registryMiss.Inc()
	}

	v, err, _ := r.group.Do(tenant.ID, func() (interface{}, error) {
		return r.create(ctx, tenant, stale)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (r *Registry) lookup(tenantID string) (*Handle, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[tenantID]
	return h, ok, r.closed
}

func (r *Registry) get(tenantID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[tenantID]
	return h, ok
}

func (r *Registry) probe(ctx context.Context, h *Handle) error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	// A caller going away says nothing about the tenant database.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ProbeTimeout)
	defer cancel()
	return sqlDB.PingContext(pctx)
}

func (r *Registry) create(ctx context.Context, tenant *directory.Tenant, stale *Handle) (*Handle, error) {
	// Another flight may have replaced the entry since the caller looked.
	if cur, ok := r.get(tenant.ID); ok && cur != stale {
		return cur, nil
	}
	if stale != nil {
		r.evictIf(tenant.ID, stale)
	}

	password, err := r.vault.Decrypt(tenant.DBPassword)
	if err != nil {
		registryFailures.WithLabelValues("decrypt").Inc()
		var cryptoErr *errutil.CryptoError
		if !errors.As(err, &cryptoErr) {
			err = &errutil.CryptoError{Op: "decrypt tenant password", Err: err}
		}
		return nil, err
	}

	// The round trip finishes even if the first caller goes away.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.AcquireTimeout)
	defer cancel()

	conn, err := r.dialer.Dial(dctx, Coordinates{
		TenantID: tenant.ID,
		Host:     tenant.DBHost,
		Port:     tenant.DBPort,
		Name:     tenant.DBName,
		User:     tenant.DBUser,
		Password: password,
	})
	if err != nil {
		registryFailures.WithLabelValues("dial").Inc()
		return nil, &errutil.ConnectivityError{Op: "dial tenant database", Err: err}
	}

	if err := authenticate(dctx, conn); err != nil {
		registryFailures.WithLabelValues("authenticate").Inc()
		_ = db.Close(conn)
		return nil, &errutil.ConnectivityError{Op: "authenticate tenant database", Err: err}
	}

	bindings, err := r.binder.Bind(conn)
	if err != nil {
		registryFailures.WithLabelValues("bind").Inc()
		_ = db.Close(conn)
		return nil, fmt.Errorf("bind tenant schema: %w", err)
	}

	h := &Handle{
		TenantID:  tenant.ID,
		DB:        conn,
		Bindings:  bindings,
		CreatedAt: r.now(),
	}

	if err := r.store(h); err != nil {
		_ = db.Close(conn)
		return nil, err
	}

	zap.L().Info("[Registry] tenant connection ready",
		zap.String("tenant_id", tenant.ID), zap.String("db_name", tenant.DBName))
	return h, nil
}

func authenticate(ctx context.Context, conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Registry) store(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if old, ok := r.handles[h.TenantID]; ok && old != h {
		closeHandle(old)
	}
	r.handles[h.TenantID] = h
	return nil
}

func (r *Registry) evictIf(tenantID string, h *Handle) {
	r.mu.Lock()
	cur, ok := r.handles[tenantID]
	if ok && cur == h {
		delete(r.handles, tenantID)
	}
	r.mu.Unlock()
	if ok && cur == h {
		closeHandle(h)
	}
}

// Evict drops and closes the tenant's cached handle, if any.
func (r *Registry) Evict(tenantID string) {
	r.mu.Lock()
	h, ok := r.handles[tenantID]
	delete(r.handles, tenantID)
	r.mu.Unlock()
	if ok {
		closeHandle(h)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Close closes every cached handle. Acquire fails with ErrClosed afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for id, h := range handles {
		if err := db.Close(h.DB); err != nil {
			errs = append(errs, fmt.Errorf("close tenant %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func closeHandle(h *Handle) {
	if err := db.Close(h.DB); err != nil {
		zap.L().Warn("[Registry] failed to close tenant connection",
			zap.String("tenant_id", h.TenantID), zap.Error(err))
	}
}
