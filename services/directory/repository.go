package directory

import (
	"context"
	"errors"

	"tenant-gateway/pkg/errutil"

	"gorm.io/gorm"
)

// Directory is the read-only view of the central tenant directory.
// Lookups that find nothing return nil, nil. Backend failures are
// *errutil.ConnectivityError.
type Directory interface {
	FindTenantByKey(ctx context.Context, key string) (*Tenant, error)
	ListWhitelist(ctx context.Context, tenantID string) ([]*IPWhitelist, error)
	LatestSubscription(ctx context.Context, tenantID string) (*Subscription, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindTenantByKey(ctx context.Context, key string) (*Tenant, error) {
	if key == "" {
		return nil, nil
	}

	var tenant Tenant
	err := r.db.WithContext(ctx).
		Preload("Licenses", func(tx *gorm.DB) *gorm.DB {
			// license selection is first-active in this order
			return tx.Order("created_at ASC").Order("id ASC")
		}).
		Where("subdomain = ? OR tenant_key = ?", key, key).
		Order("id ASC").
		First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &errutil.ConnectivityError{Op: "find tenant", Err: err}
	}

	return &tenant, nil
}

func (r *Repository) ListWhitelist(ctx context.Context, tenantID string) ([]*IPWhitelist, error) {
	entries := make([]*IPWhitelist, 0)
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, &errutil.ConnectivityError{Op: "list whitelist", Err: err}
	}
	return entries, nil
}

func (r *Repository) LatestSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &errutil.ConnectivityError{Op: "latest subscription", Err: err}
	}
	return &sub, nil
}
