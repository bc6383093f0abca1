package sso

import "errors"

// SSO flow error types
var (
	ErrNoPendingLaunch = errors.New("no pending SSO launch state")
)
