package directory

import (
	"time"

	"gorm.io/datatypes"
)

type TenantStatus string

const (
	Trial     TenantStatus = "trial"
	Active    TenantStatus = "active"
	Suspended TenantStatus = "suspended"
	Expired   TenantStatus = "expired"
	Inactive  TenantStatus = "inactive"
)

func (t TenantStatus) String() string {
	switch t {
	case Trial, Active, Suspended, Expired, Inactive:
		return string(t)
	default:
		return ""
	}
}

type Tenant struct {
	ID          string       `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time    `gorm:"column:created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at"`
	TenantKey   string       `gorm:"column:tenant_key;uniqueIndex;not null"`
	Subdomain   string       `gorm:"column:subdomain;uniqueIndex;not null"`
	CompanyName string       `gorm:"column:company_name"`
	DBHost      string       `gorm:"column:db_host"`
	DBPort      int          `gorm:"column:db_port"`
	DBName      string       `gorm:"column:db_name"`
	DBUser      string       `gorm:"column:db_user"`
	DBPassword  string       `gorm:"column:db_password"` // <ivHex>:<cipherHex>
	Status      TenantStatus `gorm:"column:status;type:varchar(20);not null;default:'trial'"`
	SuspendedAt *time.Time   `gorm:"column:suspended_at"`
	Notes       string       `gorm:"column:notes;type:text"`
	Licenses    []License    `gorm:"foreignKey:TenantID"`
}

// FeatureFlags maps a feature name to whether the license grants it.
type FeatureFlags map[string]bool

type License struct {
	ID         string                           `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time                        `gorm:"column:created_at"`
	UpdatedAt  time.Time                        `gorm:"column:updated_at"`
	TenantID   string                           `gorm:"column:tenant_id;index;not null"`
	LicenseKey string                           `gorm:"column:license_key;uniqueIndex;not null"`
	Features   datatypes.JSONType[FeatureFlags] `gorm:"column:features"`
	IssuedAt   time.Time                        `gorm:"column:issued_at"`
	ExpiresAt  *time.Time                       `gorm:"column:expires_at"`
	RevokedAt  *time.Time                       `gorm:"column:revoked_at"`
}

// IsActive reports whether the license is unrevoked and unexpired at now.
func (l *License) IsActive(now time.Time) bool {
	if l.RevokedAt != nil {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

func (l *License) FeatureFlags() FeatureFlags {
	flags := l.Features.Data()
	if flags == nil {
		return FeatureFlags{}
	}
	return flags
}

type Subscription struct {
	ID              string    `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
	TenantID        string    `gorm:"column:tenant_id;index;not null"`
	PlanName        string    `gorm:"column:plan_name"`
	MaxUsers        int       `gorm:"column:max_users"`
	MaxCustomers    int       `gorm:"column:max_customers"`
	MaxTransactions int       `gorm:"column:max_transactions"`
	StartDate       time.Time `gorm:"column:start_date"`
	EndDate         time.Time `gorm:"column:end_date"`
	AutoRenew       bool      `gorm:"column:auto_renew"`
}

func (s *Subscription) IsActive(now time.Time) bool {
	return s.EndDate.After(now)
}

type IPWhitelist struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	TenantID    string    `gorm:"column:tenant_id;index;not null"`
	IPAddress   string    `gorm:"column:ip_address;not null"`
	Description string    `gorm:"column:description"`
}

func (IPWhitelist) TableName() string {
	return "ip_whitelists"
}

// Models lists the central directory tables, for migrations and seeding.
func Models() []any {
	return []any{&Tenant{}, &License{}, &Subscription{}, &IPWhitelist{}}
}
