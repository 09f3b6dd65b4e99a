package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/db"
	"tenant-gateway/pkg/errutil"
	"tenant-gateway/pkg/security"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/schema"
	"tenant-gateway/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeDialer struct {
	t     *testing.T
	calls atomic.Int32
	delay time.Duration
	err   error

	mu   sync.Mutex
	last Coordinates
}

func (d *fakeDialer) Dial(ctx context.Context, c Coordinates) (*gorm.DB, error) {
	d.calls.Add(1)
	d.mu.Lock()
	d.last = c
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	return db.OpenLazy(nil, sqlite.Open(testutil.MemoryDSN(d.t, c.Name)))
}

type binderFunc func(*gorm.DB) (schema.Bindings, error)

func (f binderFunc) Bind(conn *gorm.DB) (schema.Bindings, error) { return f(conn) }

func newVault(t *testing.T) *security.Vault {
	t.Helper()
	v, err := security.NewVault("registry-test-secret", []byte(security.LegacySalt))
	require.NoError(t, err)
	return v
}

func newTenant(t *testing.T, v *security.Vault, id string) *directory.Tenant {
	t.Helper()
	blob, err := v.Encrypt("s3cret-" + id)
	require.NoError(t, err)
	return &directory.Tenant{
		ID:         id,
		Subdomain:  id,
		DBName:     "tenant_" + id,
		DBUser:     "app_" + id,
		DBPassword: blob,
		Status:     directory.Active,
	}
}

func newTestRegistry(t *testing.T, dialer Dialer) (*Registry, *security.Vault) {
	t.Helper()
	v := newVault(t)
	r := NewRegistry(v, dialer, schema.Default(), Options{
		AcquireTimeout: time.Second,
		ProbeTimeout:   time.Second,
	})
	t.Cleanup(func() { _ = r.Close() })
	return r, v
}

func TestAcquireReturnsBoundHandle(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)
	tenant := newTenant(t, v, "acme")

	h, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, "acme", h.TenantID)
	require.Len(t, h.Bindings, 5)
	require.Same(t, h.DB.Config, h.Bindings["customers"].Conn().Config)
	require.Equal(t, 1, r.Len())

	require.Equal(t, "s3cret-acme", dialer.last.Password)
	require.Equal(t, "app_acme", dialer.last.User)
	require.Equal(t, "tenant_acme", dialer.last.Name)
}

func TestAcquireCachedIdentity(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)
	tenant := newTenant(t, v, "acme")

	first, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	second, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, dialer.calls.Load())
}

func TestAcquireRebuildsAfterFailedProbe(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)
	tenant := newTenant(t, v, "acme")

	first, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	require.NoError(t, db.Close(first.DB))

	second, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.EqualValues(t, 2, dialer.calls.Load())
	require.Equal(t, 1, r.Len())

	third, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	require.Same(t, second, third)
}

func TestAcquireCanceledCallerKeepsHealthyHandle(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)
	tenant := newTenant(t, v, "acme")

	first, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	second, err := r.Acquire(ctx, tenant)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.EqualValues(t, 1, dialer.calls.Load())

	sqlDB, err := first.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
}

func TestAcquireSingleFlight(t *testing.T) {
	dialer := &fakeDialer{t: t, delay: 50 * time.Millisecond}
	r, v := newTestRegistry(t, dialer)
	tenant := newTenant(t, v, "acme")

	const workers = 16
	handles := make([]*Handle, workers)
	errs := make([]error, workers)

	var start, done sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			start.Wait()
			handles[i], errs[i] = r.Acquire(context.Background(), tenant)
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Same(t, handles[0], handles[i])
	}
	require.EqualValues(t, 1, dialer.calls.Load())
	require.Equal(t, 1, r.Len())
}

func TestAcquireTenantsAreIsolated(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)

	a, err := r.Acquire(context.Background(), newTenant(t, v, "acme"))
	require.NoError(t, err)
	b, err := r.Acquire(context.Background(), newTenant(t, v, "globex"))
	require.NoError(t, err)

	require.NotSame(t, a, b)
	require.NotSame(t, a.Bindings["customers"], b.Bindings["customers"])
	require.Equal(t, 2, r.Len())
}

func TestAcquireCryptoError(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)

	tenant := newTenant(t, v, "acme")
	tenant.DBPassword = "not-a-blob"

	_, err := r.Acquire(context.Background(), tenant)
	var cryptoErr *errutil.CryptoError
	require.ErrorAs(t, err, &cryptoErr)
	require.NotContains(t, err.Error(), "not-a-blob")
	require.Zero(t, dialer.calls.Load())
	require.Zero(t, r.Len())
}

func TestAcquireConnectivityError(t *testing.T) {
	dialer := &fakeDialer{t: t, err: errors.New("connection refused")}
	r, v := newTestRegistry(t, dialer)

	_, err := r.Acquire(context.Background(), newTenant(t, v, "acme"))
	var connErr *errutil.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	require.NotContains(t, err.Error(), "s3cret")
	require.Zero(t, r.Len())
}

func TestAcquireBindError(t *testing.T) {
	v := newVault(t)
	r := NewRegistry(v, &fakeDialer{t: t}, binderFunc(func(*gorm.DB) (schema.Bindings, error) {
		return nil, errors.New("relation mismatch")
	}), Options{})
	defer r.Close()

	_, err := r.Acquire(context.Background(), newTenant(t, v, "acme"))
	require.ErrorContains(t, err, "relation mismatch")
	require.Zero(t, r.Len())
}

func TestEvictAndClose(t *testing.T) {
	dialer := &fakeDialer{t: t}
	r, v := newTestRegistry(t, dialer)
	tenant := newTenant(t, v, "acme")

	first, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)

	r.Evict("acme")
	require.Zero(t, r.Len())
	r.Evict("acme")

	second, err := r.Acquire(context.Background(), tenant)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	require.NoError(t, r.Close())
	require.Zero(t, r.Len())

	sqlDB, err := second.DB.DB()
	require.NoError(t, err)
	require.Error(t, sqlDB.Ping())

	_, err = r.Acquire(context.Background(), tenant)
	require.ErrorIs(t, err, ErrClosed)
}

func TestAcquireRequiresTenant(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeDialer{t: t})

	_, err := r.Acquire(context.Background(), nil)
	require.Error(t, err)
	_, err = r.Acquire(context.Background(), &directory.Tenant{})
	require.Error(t, err)
}

func TestGormDialerAppliesTenantPool(t *testing.T) {
	cfg := &config.Config{}
	cfg.TenantDatabase.Type = db.SQLite
	cfg.TenantDatabase.MaxOpenConns = 5
	cfg.TenantDatabase.MaxIdleConns = 2

	conn, err := NewGormDialer(cfg).Dial(context.Background(), Coordinates{
		Name: testutil.MemoryDSN(t, "dialer"),
	})
	require.NoError(t, err)
	defer db.Close(conn)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	require.Equal(t, 5, sqlDB.Stats().MaxOpenConnections)

	cfg.TenantDatabase.Type = "oracle"
	_, err = NewGormDialer(cfg).Dial(context.Background(), Coordinates{})
	require.Error(t, err)
}
