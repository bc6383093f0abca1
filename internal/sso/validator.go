package sso

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"sitekeeper/pkg/types"
)

// payloadSeparator splits the callback payload into signature and token
const payloadSeparator = ":::"

// Validator verifies externally delivered authentication payloads before any
// token is trusted.
// ARCHITECTURAL DISCOVERY: The validator consumes the pending launch state
// exactly once per attempt - replay is impossible even after a failed check
type Validator struct {
	launches *LaunchStore
}

// NewValidator creates a callback validator over the launch-state store
func NewValidator(launches *LaunchStore) *Validator {
	return &Validator{launches: launches}
}

// Validate decodes and verifies a raw SSO callback payload.
// The launch state is consumed on every attempt - even an undecodable
// payload burns it, so a crafted retry never gets a second chance.
func (v *Validator) Validate(ctx context.Context, rawPayload string) (*types.SSOLogin, error) {
	decoded, err := base64.StdEncoding.DecodeString(rawPayload)
	if err != nil {
		_, _, _ = v.launches.Consume(ctx)
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	parts := strings.SplitN(string(decoded), payloadSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		_, _, _ = v.launches.Consume(ctx)
		return nil, fmt.Errorf("%w: expected signature%stoken", types.ErrDecode, payloadSeparator)
	}
	signature, token := parts[0], parts[1]

	siteURL, passport, err := v.launches.Consume(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	if signature == expectedSignature(siteURL, passport) {
		return &types.SSOLogin{SiteURL: siteURL, Token: token}, nil
	}

	// FUNCTIONAL DISCOVERY: Sites behind scheme-rewriting proxies sign with
	// the scheme they redirected to; one toggled recomputation covers that
	toggled := types.ToggleScheme(siteURL)
	if signature == expectedSignature(toggled, passport) {
		log.Printf("SSO signature matched after scheme toggle: site=%s", toggled)
		return &types.SSOLogin{SiteURL: toggled, Token: token}, nil
	}

	return nil, fmt.Errorf("%w: site %s", types.ErrSignatureMismatch, siteURL)
}

// expectedSignature computes the keyed hash the server is expected to send:
// the hash of the origin URL concatenated with the passport
func expectedSignature(siteURL, passport string) string {
	sum := md5.Sum([]byte(siteURL + passport))
	return hex.EncodeToString(sum[:])
}
