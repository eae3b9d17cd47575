package provider

import (
	"time"

	"outreach-controlplane/pkg/db"
)

type Status string

const (
	StatusCreationSuccess Status = "CREATION_SUCCESS"
	StatusReconnected     Status = "RECONNECTED"
	StatusDisconnected    Status = "DISCONNECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreationSuccess, StatusReconnected, StatusDisconnected:
		return true
	}
	return false
}

type Type string

const (
	TypeLinkedIn Type = "LINKEDIN"
)

// Provider is a connected external account that authorizes automation calls.
type Provider struct {
	ID                string       `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID            string       `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	CompanyID         string       `gorm:"column:company_id;type:varchar(64);not null;index" json:"company_id"`
	AccountID         string       `gorm:"column:account_id;type:varchar(128);not null;uniqueIndex:idx_providers_type_account,priority:2" json:"account_id"`
	Type              Type         `gorm:"column:type;type:varchar(32);not null;uniqueIndex:idx_providers_type_account,priority:1" json:"type"`
	PublicIdentifier  string       `gorm:"column:public_identifier;type:varchar(255)" json:"public_identifier,omitempty"`
	PrivateIdentifier string       `gorm:"column:private_identifier;type:varchar(128)" json:"private_identifier,omitempty"`
	Status            Status       `gorm:"column:status;type:varchar(32);not null" json:"status"`
	DeletedAt         db.Tombstone `gorm:"column:deleted_at;type:timestamptz;not null;default:'-infinity'" json:"-"`
	CreatedAt         time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Provider) TableName() string { return "providers" }

// Usable reports whether the provider may authorize external calls.
func (p *Provider) Usable() bool {
	return p != nil && !p.DeletedAt.IsDeleted() && p.Status != StatusDisconnected
}
