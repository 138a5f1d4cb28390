package directory

import (
	"time"

	"github.com/eventostec/eventostec/pkg/authz"
)

// UserRecord is a provisioned platform user.
type UserRecord struct {
	ID             string     `json:"id"`
	ProviderID     string     `json:"providerId"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"displayName"`
	PictureURL     string     `json:"pictureUrl,omitempty"`
	Role           authz.Role `json:"role"`
	ClientPlatform string     `json:"clientPlatform"`
	OrganizationID *string    `json:"organizationId,omitempty"`

	// IsActive gates whether the account may authenticate at all;
	// NotificationsEnabled is the account-wide push default. Both start
	// true at creation.
	IsActive             bool `json:"isActive"`
	NotificationsEnabled bool `json:"notificationsEnabled"`

	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// UpsertParams carries the identity attributes written on every login.
// Role and platform are only used on first insert; an existing user's
// role is never re-resolved.
type UpsertParams struct {
	ProviderID     string
	Email          string
	DisplayName    string
	PictureURL     string
	Role           authz.Role
	ClientPlatform string
}
