package featureflags

import (
	"context"
	"sync"
	"time"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tenant-gateway/pkg/config"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// Switchboard holds platform-wide feature switches. A feature switched off
// here is refused to every tenant, whatever its license grants.
type Switchboard interface {
	Enabled(ctx context.Context, feature string) bool
}

// AllOn is the switchboard used when no flag service is configured.
type AllOn struct{}

func (AllOn) Enabled(context.Context, string) bool { return true }

type environmentFlags interface {
	GetEnvironmentFlags() (flagsmith.Flags, error)
}

// Board caches the Flagsmith environment flags and refreshes them at most
// once per interval. Features unknown to Flagsmith are on. A stale snapshot
// keeps answering while the refresh runs in the background.
type Board struct {
	client   environmentFlags
	interval time.Duration
	now      func() time.Time
	group    singleflight.Group

	mu      sync.RWMutex
	off     map[string]bool
	fetched time.Time
}

func NewBoard(client *flagsmith.Client, interval time.Duration) *Board {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Board{client: client, interval: interval, now: time.Now}
}

func ProvideFeatureFlag(cfg *config.Config) Switchboard {
	if cfg.Flagsmith.ApiKey == "" {
		return AllOn{}
	}

	client := flagsmith.NewClient(cfg.Flagsmith.ApiKey,
		flagsmith.WithBaseURL(cfg.Flagsmith.Addr),
	)
	return NewBoard(client, cfg.Flagsmith.RefreshInterval)
}

func (b *Board) Enabled(ctx context.Context, feature string) bool {
	b.mu.RLock()
	off, fetched := b.off, b.fetched
	b.mu.RUnlock()

	if off != nil && b.now().Sub(fetched) < b.interval {
		return !off[feature]
	}

	ch := b.group.DoChan("environment", func() (interface{}, error) {
		b.refresh()
		return nil, nil
	})
	if off != nil {
		return !off[feature]
	}

	// No snapshot yet: wait for the first fetch, failing open if the
	// caller gives up.
	select {
	case <-ch:
	case <-ctx.Done():
		return true
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.off[feature]
}

// refresh keeps the previous snapshot when Flagsmith is unreachable.
func (b *Board) refresh() {
	flags, err := b.client.GetEnvironmentFlags()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetched = b.now()

	if err != nil {
		zap.L().Warn("[FeatureFlags] failed to fetch environment flags", zap.Error(err))
		if b.off == nil {
			b.off = map[string]bool{}
		}
		return
	}

	off := map[string]bool{}
	for _, f := range flags.AllFlags() {
		if !f.Enabled {
			off[f.FeatureName] = true
		}
	}
	b.off = off
}
