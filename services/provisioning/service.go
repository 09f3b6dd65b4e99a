package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tenant-gateway/pkg/gen"
	"tenant-gateway/services/connection"
	"tenant-gateway/services/directory"
	"tenant-gateway/services/policy"
	"tenant-gateway/services/schema"
)

var Module = fx.Module("provisioning.module",
	fx.Provide(NewService),
)

const DefaultTrialDays = 14

// Encrypter seals a tenant database password for storage in the directory.
type Encrypter interface {
	Encrypt(plain string) (string, error)
}

type Service struct {
	db     *gorm.DB
	node   *gen.Node
	vault  Encrypter
	dialer connection.Dialer
	table  *schema.Table
	now    func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *gen.Node
	Vault  Encrypter
	Dialer connection.Dialer
	Table  *schema.Table
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		vault:  p.Vault,
		dialer: p.Dialer,
		table:  p.Table,
		now:    time.Now,
	}
}

// Request describes a new tenant and where its database lives.
type Request struct {
	CompanyName string
	Subdomain   string
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string
	Features    []string
	PlanName    string
	TrialDays   int
	Whitelist   []string
	// CheckDatabase dials the tenant database before anything is written
	// to the directory. Migrate also creates the back-office tables.
	CheckDatabase bool
	Migrate       bool
}

// CreateTrialTenant registers a tenant in trial status together with its
// first license and subscription, both ending when the trial does.
func (s *Service) CreateTrialTenant(ctx context.Context, req Request) (*directory.Tenant, error) {
	sub := strings.TrimSpace(req.Subdomain)
	if sub == "" {
		sub = slug.Make(req.CompanyName)
	}
	sub = strings.ToLower(sub)
	if sub == "" {
		return nil, errors.New("subdomain or company name required")
	}
	if req.DBName == "" {
		return nil, errors.New("tenant database name required")
	}
	if req.TrialDays <= 0 {
		req.TrialDays = DefaultTrialDays
	}
	if req.PlanName == "" {
		req.PlanName = "trial"
	}

	var whitelist []string
	for _, ip := range req.Whitelist {
		if ip = strings.TrimSpace(ip); ip == "" {
			continue
		}
		if err := policy.ValidateEntry(ip); err != nil {
			return nil, err
		}
		whitelist = append(whitelist, ip)
	}

	taken, err := s.subdomainTaken(s.db.WithContext(ctx), sub)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("subdomain %q already registered", sub)
	}

	sealed, err := s.vault.Encrypt(req.DBPassword)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	end := now.AddDate(0, 0, req.TrialDays)

	flags := directory.FeatureFlags{}
	for _, f := range req.Features {
		if f = strings.TrimSpace(f); f != "" {
			flags[f] = true
		}
	}

	tenant := &directory.Tenant{
		ID:          s.node.NextID(),
		TenantKey:   s.node.NextID(),
		Subdomain:   sub,
		CompanyName: req.CompanyName,
		DBHost:      req.DBHost,
		DBPort:      req.DBPort,
		DBName:      req.DBName,
		DBUser:      req.DBUser,
		DBPassword:  sealed,
		Status:      directory.Trial,
	}

	license := &directory.License{
		ID:         s.node.NextID(),
		TenantID:   tenant.ID,
		LicenseKey: "LIC-" + strings.ToUpper(sub) + "-" + s.node.NextID(),
		Features:   datatypes.NewJSONType(flags),
		IssuedAt:   now,
		ExpiresAt:  &end,
	}

	subscription := &directory.Subscription{
		ID:        s.node.NextID(),
		TenantID:  tenant.ID,
		PlanName:  req.PlanName,
		StartDate: now,
		EndDate:   end,
	}

	if req.CheckDatabase {
		if err := s.PrepareTenantDatabase(ctx, tenant, req.DBPassword, req.Migrate); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := s.subdomainTaken(tx, sub)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("subdomain %q already registered", sub)
		}

		if err := tx.Create(tenant).Error; err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		if err := tx.Create(license).Error; err != nil {
			return fmt.Errorf("create license: %w", err)
		}
		if err := tx.Create(subscription).Error; err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		for _, ip := range whitelist {
			entry := &directory.IPWhitelist{ID: s.node.NextID(), TenantID: tenant.ID, IPAddress: ip}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("create whitelist entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tenant.Licenses = []directory.License{*license}

	zap.L().Info("[Provisioning] trial tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("subdomain", sub),
		zap.Time("trial_ends", end))
	return tenant, nil
}

func (s *Service) subdomainTaken(tx *gorm.DB, sub string) (bool, error) {
	var count int64
	if err := tx.Model(&directory.Tenant{}).Where("subdomain = ?", sub).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// PrepareTenantDatabase connects to the tenant database with the plaintext
// password, optionally migrates the back-office tables and checks that every
// model binds.
func (s *Service) PrepareTenantDatabase(ctx context.Context, tenant *directory.Tenant, password string, migrate bool) error {
	conn, err := s.dialer.Dial(ctx, connection.Coordinates{
		TenantID: tenant.ID,
		Host:     tenant.DBHost,
		Port:     tenant.DBPort,
		Name:     tenant.DBName,
		User:     tenant.DBUser,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("dial tenant database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping tenant database: %w", err)
	}

	if migrate {
		if err := conn.WithContext(ctx).AutoMigrate(s.table.Models()...); err != nil {
			return fmt.Errorf("migrate tenant database: %w", err)
		}
	}

	if _, err := s.table.Bind(conn); err != nil {
		return err
	}

	zap.L().Info("[Provisioning] tenant database ready",
		zap.String("tenant_id", tenant.ID),
		zap.String("db_name", tenant.DBName),
		zap.Bool("migrated", migrate))
	return nil
}
