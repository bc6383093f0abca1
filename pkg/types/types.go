package types

// AuthCode describes how a site expects the app to authenticate, as reported
// by the capability-check endpoint.
// ARCHITECTURAL DISCOVERY: Numeric codes preserved exactly as the server
// reports them so probe responses map directly without translation tables
type AuthCode int

const (
	AuthStandard         AuthCode = 0 // standard token login
	AuthMaintenance      AuthCode = 1 // site in maintenance mode
	AuthServicesDisabled AuthCode = 2 // web services disabled
	AuthStandardOnly     AuthCode = 3 // extended plugin disabled, standard login works
	AuthAllDisabled      AuthCode = 4 // all login methods disabled
)

// SiteFunction is one entry of the function list a server advertises in its
// site info response.
type SiteFunction struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SiteInfo is the server-reported metadata blob attached to a SiteRecord.
// FUNCTIONAL DISCOVERY: Functions list retained verbatim because capability
// gating inspects function names rather than any version number field
type SiteInfo struct {
	SiteName  string         `json:"sitename"`
	Username  string         `json:"username"`
	FullName  string         `json:"fullname"`
	UserID    int64          `json:"userid"`
	SiteURL   string         `json:"siteurl"`
	AvatarURL string         `json:"userpictureurl"`
	Functions []SiteFunction `json:"functions"`
}

// SiteRecord is one authenticated site identity.
// FUNCTIONAL DISCOVERY: Records are immutable once stored except for full
// replacement - the deterministic ID makes re-registration an idempotent upsert
type SiteRecord struct {
	ID      string   `json:"id" db:"id"`
	SiteURL string   `json:"siteurl" db:"siteurl"`
	Token   string   `json:"token" db:"token"`
	Info    SiteInfo `json:"info" db:"info"`
}

// SiteCheck is the result of validating a candidate site URL: the normalized
// reachable URL plus the authentication method the site expects.
type SiteCheck struct {
	SiteURL  string   `json:"siteurl"`
	AuthCode AuthCode `json:"authcode"`
}

// CallOptions carries the per-call credentials handed to the RPC client.
// ARCHITECTURAL DISCOVERY: The client never reads stored state - the session
// manager passes the active site's URL and token explicitly on every call
type CallOptions struct {
	SiteURL string
	Token   string
	// ResponseExpected declares whether an empty reply body is an error.
	// Write-only web service functions legitimately return nothing.
	ResponseExpected bool
}

// SSOLogin is a verified SSO callback: the origin site (possibly
// scheme-adjusted during signature validation) and the delivered token.
type SSOLogin struct {
	SiteURL string
	Token   string
}
