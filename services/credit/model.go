package credit

import "time"

// Balance is the prepaid action allowance of a company. Top-ups happen in the
// billing system and land here through Grant.
type Balance struct {
	CompanyID string    `gorm:"column:company_id;primaryKey;type:varchar(64)" json:"company_id"`
	Balance   int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string { return "credit_balances" }
