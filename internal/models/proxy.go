package models

import (
	"time"
)

// ProxyProtocol is the scheme used to reach a proxy
type ProxyProtocol string

const (
	ProxyProtocolHTTP   ProxyProtocol = "http"
	ProxyProtocolHTTPS  ProxyProtocol = "https"
	ProxyProtocolSOCKS5 ProxyProtocol = "socks5"
)

// ProxyStatus represents the health of a proxy
type ProxyStatus string

const (
	ProxyStatusActive   ProxyStatus = "active"
	ProxyStatusInactive ProxyStatus = "inactive"
	ProxyStatusBanned   ProxyStatus = "banned"
)

// Proxy is an outbound proxy a user can assign to accounts
type Proxy struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	UserID          uint          `gorm:"index;not null" json:"user_id"`
	Host            string        `gorm:"size:255;not null" json:"host"`
	Port            int           `gorm:"not null" json:"port"`
	Username        string        `gorm:"size:255" json:"username"`
	Password        string        `gorm:"size:255" json:"-"`
	Protocol        ProxyProtocol `gorm:"size:10;default:'http'" json:"protocol"`
	Status          ProxyStatus   `gorm:"size:20;default:'active';index" json:"status"`
	Location        string        `gorm:"size:255" json:"location"`
	Notes           string        `gorm:"type:text" json:"notes"`
	LastChecked     *time.Time    `json:"last_checked"`
	ConnectionSpeed int64         `json:"connection_speed"` // milliseconds
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the proxy may be used
func (p *Proxy) IsActive() bool {
	return p.Status == ProxyStatusActive
}
