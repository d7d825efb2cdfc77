package gormstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WalletRecord mirrors the wallets table.
type WalletRecord struct {
	UserID        string    `gorm:"primaryKey"`
	Balance       int64     `gorm:"not null;default:0"`
	TotalEarnings int64     `gorm:"not null;default:0"`
	TotalSpent    int64     `gorm:"not null;default:0"`
	TotalCashouts int64     `gorm:"not null;default:0"`
	Version       int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (WalletRecord) TableName() string { return "wallets" }

// TransactionRecord mirrors the transactions table.
type TransactionRecord struct {
	ID            string         `gorm:"primaryKey"`
	UserID        string         `gorm:"not null;index:idx_transactions_user_created,priority:1"`
	Type          string         `gorm:"not null;index"`
	Amount        int64          `gorm:"not null;default:0"`
	Status        string         `gorm:"not null;index"`
	Description   string         `gorm:"not null;default:''"`
	RelatedPostID string         `gorm:"not null;default:''"`
	RelatedUserID string         `gorm:"not null;default:''"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime:false;index:idx_transactions_user_created,priority:2;index"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime:false"`
}

func (TransactionRecord) TableName() string { return "transactions" }

// Migrate creates or updates the wallets and transactions tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&WalletRecord{}, &TransactionRecord{})
}
