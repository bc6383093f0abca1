package interfaces

import (
	"context"

	"sitekeeper/pkg/types"
)

// SiteStore handles all durable persistence for the session layer.
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent write serialization and connection management
type SiteStore interface {
	// Site record collection, keyed by the deterministic site ID.
	// FUNCTIONAL DISCOVERY: UpsertSite rather than Create/Update because the
	// deterministic ID makes re-registration of the same account a replace

	// UpsertSite inserts or fully replaces a site record
	UpsertSite(ctx context.Context, site *types.SiteRecord) error

	// GetSite retrieves a site record by ID
	GetSite(ctx context.Context, siteID string) (*types.SiteRecord, error)

	// RemoveSite deletes a site record by ID
	RemoveSite(ctx context.Context, siteID string) error

	// ListSites returns all stored site records
	ListSites(ctx context.Context) ([]*types.SiteRecord, error)

	// CountSites returns the number of stored site records
	CountSites(ctx context.Context) (int, error)

	// Current-site pointer: a single-row collection whose absence means
	// "logged out".

	// SetCurrentSiteID overwrites the current-site pointer
	SetCurrentSiteID(ctx context.Context, siteID string) error

	// GetCurrentSiteID reads the pointer; returns types.ErrNoCurrentSite
	// when no pointer row exists
	GetCurrentSiteID(ctx context.Context) (string, error)

	// ClearCurrentSiteID removes the pointer (logout)
	ClearCurrentSiteID(ctx context.Context) error

	// Named scalar settings - the configuration collaborator. Used for
	// per-site service names and the transient SSO launch state.

	// SetSetting stores a named scalar setting
	SetSetting(ctx context.Context, key, value string) error

	// GetSetting reads a named setting; returns ErrSettingNotFound when absent
	GetSetting(ctx context.Context, key string) (string, error)

	// DeleteSetting removes a named setting; deleting an absent key is a no-op
	DeleteSetting(ctx context.Context, key string) error

	// HealthCheck verifies store connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the store
	Close() error
}
