package token

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderToken marks a mapping whose remote account exists but whose
// access token has not been minted yet.
const PlaceholderToken = "not present"

// ProxyTokenMapping represents the proxy_token_mappings table: one remote
// account and access token per application user per tenant.
type ProxyTokenMapping struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     string    `gorm:"not null;uniqueIndex:idx_proxy_token_tenant_user"`
	AppUserID    string    `gorm:"not null;uniqueIndex:idx_proxy_token_tenant_user"`
	RemoteUserID string    `gorm:"not null"`
	ProxyToken   string    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ProxyTokenMapping) TableName() string {
	return "proxy_token_mappings"
}

func (m ProxyTokenMapping) HasToken() bool {
	return m.ProxyToken != "" && m.ProxyToken != PlaceholderToken
}
