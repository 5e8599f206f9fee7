package server

import (
	"slices"
	"time"
)

// Consumer is a registered OAuth1 client application. The registry assigns
// id, key, and secret at creation; they never change afterwards.
type Consumer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Callback    string    `json:"callback"`
	Key         string    `json:"key"`
	Secret      string    `json:"secret"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConsumerParams carries validated form fields for a create or update.
type ConsumerParams struct {
	Name        string
	Description string
	Callback    string
}

// AdminUser is an authenticated administrator bound to the session cookie.
type AdminUser struct {
	Subject      string
	Email        string
	Name         string
	Capabilities []string
}

// Capabilities understood by the admin workflow. Page access requires
// apps.list; the edit form requires apps.edit; the Add New link is only
// offered with apps.create.
const (
	CapListApps   = "apps.list"
	CapCreateApps = "apps.create"
	CapEditApps   = "apps.edit"
)

// AllCapabilities is the full capability set, granted to dev-mode logins.
var AllCapabilities = []string{CapListApps, CapCreateApps, CapEditApps}

// Can reports whether the user holds the given capability.
func (u *AdminUser) Can(capability string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Capabilities, capability)
}

// ProviderUser consolidates identity data returned by an upstream IdP.
type ProviderUser struct {
	Subject string
	Email   string
	Name    string
	Claims  map[string]any
}
