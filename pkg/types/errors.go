package types

import "errors"

// Shared error taxonomy for the session layer.
// ARCHITECTURAL DISCOVERY: Sentinel errors wrapped with fmt.Errorf("%w: ...")
// keep classification (errors.Is) separate from human-readable detail, so
// callers branch on kind while logs keep the server's message
var (
	// RPC client
	ErrMissingConfig = errors.New("site URL and token are required")
	ErrOffline       = errors.New("no network connectivity")
	ErrTransport     = errors.New("request could not be completed")
	ErrEmptyResponse = errors.New("server returned an empty response")
	ErrAuthToken     = errors.New("invalid token or access")
	ErrServer        = errors.New("server reported an error")

	// Session manager
	ErrInvalidSite          = errors.New("invalid site URL")
	ErrCannotConnect        = errors.New("cannot connect to site")
	ErrInvalidAccount       = errors.New("account cannot access this site")
	ErrLogin                = errors.New("login rejected by server")
	ErrUnexpected           = errors.New("unexpected server response")
	ErrInvalidMoodleVersion = errors.New("site version too old for this app")
	ErrSiteNotFound         = errors.New("site not found")
	ErrNoCurrentSite        = errors.New("no active site session")
	ErrAlreadyRestored      = errors.New("session already restored this process")

	// SSO callback validation
	ErrDecode            = errors.New("malformed SSO callback payload")
	ErrSignatureMismatch = errors.New("SSO signature does not match")
)
