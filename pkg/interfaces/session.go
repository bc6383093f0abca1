package interfaces

import (
	"context"

	"sitekeeper/pkg/types"
)

// SessionManager orchestrates the site session and authentication lifecycle.
// ARCHITECTURAL DISCOVERY: Context-first design pattern ensures proper
// cancellation and timeout handling across all session operations
type SessionManager interface {
	// CheckSite normalizes and validates a candidate site URL, verifies the
	// host answers, and probes its authentication capabilities.
	// FUNCTIONAL DISCOVERY: One alternate-scheme retry happens inside the
	// check so callers see a single reachable URL or a single failure
	CheckSite(ctx context.Context, siteURL, preferredScheme string) (*types.SiteCheck, error)

	// GetUserToken exchanges credentials for a web service token.
	GetUserToken(ctx context.Context, siteURL, username, password string) (string, error)

	// NewSite establishes a candidate session, validates the server's
	// minimum capability, then persists and activates the site record.
	// No partially-initialized record is ever persisted.
	NewSite(ctx context.Context, siteURL, token string) (*types.SiteRecord, error)

	// LoadSite reactivates a stored site as the current session
	LoadSite(ctx context.Context, siteID string) (*types.SiteRecord, error)

	// RestoreSession reactivates the persisted current site on startup.
	// Idempotent per process: a second invocation is rejected.
	RestoreSession(ctx context.Context) (*types.SiteRecord, error)

	// StartSSOLogin records the pending launch state and returns the URL the
	// external authenticator should be opened at
	StartSSOLogin(ctx context.Context, siteURL string) (string, error)

	// ValidateSSOCallback verifies an externally delivered payload and, on
	// success, runs NewSite with the delivered token
	ValidateSSOCallback(ctx context.Context, payload string) (*types.SiteRecord, error)

	// Logout clears the current-site pointer; the record itself survives
	Logout(ctx context.Context) error

	// DeleteSite removes a record entirely and cascades cached-file cleanup
	DeleteSite(ctx context.Context, siteID string) error

	// CurrentSite returns the active record, or nil when logged out
	CurrentSite() *types.SiteRecord

	// ListSites returns all stored site records
	ListSites(ctx context.Context) ([]*types.SiteRecord, error)

	// Call runs an RPC against the active site's credentials
	Call(ctx context.Context, method string, args map[string]interface{}) (interface{}, error)
}
