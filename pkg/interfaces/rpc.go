package interfaces

import (
	"context"

	"sitekeeper/pkg/types"
)

// Caller executes a single remote procedure call against a site.
// ARCHITECTURAL DISCOVERY: Credentials travel with every call - the caller
// never reads or mutates stored session state
type Caller interface {
	// Call runs one web service function and returns the decoded payload
	// (JSON object or array). The returned value is a defensive copy the
	// caller may freely mutate.
	Call(ctx context.Context, method string, args map[string]interface{}, opts types.CallOptions) (interface{}, error)
}

// ConnectivityChecker reports best-effort network availability.
// FUNCTIONAL DISCOVERY: Probe failure must be treated as "assume online" -
// a broken connectivity check must never block real requests
type ConnectivityChecker interface {
	Online() bool
}

// CapabilityProber determines how a site expects the app to authenticate.
type CapabilityProber interface {
	// Probe queries the capability-check endpoint. Transport failures and
	// malformed responses degrade to types.AuthStandard rather than erroring;
	// probing is advisory, never blocking.
	Probe(ctx context.Context, siteURL string) (types.AuthCode, error)
}

// AuthInvalidator receives the cross-component signal that an RPC failed with
// an invalid token.
// ARCHITECTURAL DISCOVERY: Session invalidation on auth failure is wired as
// an explicit callback rather than inferred by callers inspecting errors
type AuthInvalidator interface {
	InvalidateSession(siteURL string)
}
