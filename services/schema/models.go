package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Back-office models stored in every tenant database. Amounts are minor units.

type Customer struct {
	ID              string           `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time        `gorm:"column:created_at"`
	UpdatedAt       time.Time        `gorm:"column:updated_at"`
	CustomerCode    string           `gorm:"column:customer_code;uniqueIndex;not null"`
	FullName        string           `gorm:"column:full_name;not null"`
	Email           string           `gorm:"column:email"`
	Phone           string           `gorm:"column:phone"`
	Status          string           `gorm:"column:status;type:varchar(20);default:'active'"`
	Accounts        []Account        `gorm:"foreignKey:CustomerID"`
	IPOApplications []IPOApplication `gorm:"foreignKey:CustomerID"`
	Portfolios      []Portfolio      `gorm:"foreignKey:CustomerID"`
}

type Account struct {
	ID            string    `gorm:"column:id;primaryKey"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
	CustomerID    string    `gorm:"column:customer_id;index;not null"`
	AccountNumber string    `gorm:"column:account_number;uniqueIndex;not null"`
	AccountType   string    `gorm:"column:account_type"`
	Balance       int64     `gorm:"column:balance"`
	Customer      *Customer `gorm:"foreignKey:CustomerID"`
	Fees          []Fee     `gorm:"foreignKey:AccountID"`
}

type IPOApplication struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	CustomerID  string    `gorm:"column:customer_id;index;not null"`
	CompanyName string    `gorm:"column:company_name;not null"`
	Units       int64     `gorm:"column:units"`
	Amount      int64     `gorm:"column:amount"`
	Status      string    `gorm:"column:status;type:varchar(20);default:'applied'"`
	AppliedAt   time.Time `gorm:"column:applied_at"`
	Customer    *Customer `gorm:"foreignKey:CustomerID"`
}

func (IPOApplication) TableName() string {
	return "ipo_applications"
}

type Portfolio struct {
	ID         string         `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at"`
	CustomerID string         `gorm:"column:customer_id;index;not null"`
	Symbol     string         `gorm:"column:symbol;not null"`
	Quantity   int64          `gorm:"column:quantity"`
	AvgPrice   int64          `gorm:"column:avg_price"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	Customer   *Customer      `gorm:"foreignKey:CustomerID"`
}

type Fee struct {
	ID        string    `gorm:"column:id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
	AccountID string    `gorm:"column:account_id;index;not null"`
	FeeType   string    `gorm:"column:fee_type;not null"`
	Amount    int64     `gorm:"column:amount"`
	ChargedAt time.Time `gorm:"column:charged_at"`
	Account   *Account  `gorm:"foreignKey:AccountID"`
}
