package sso

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Settings-store keys holding the transient launch state.
// FUNCTIONAL DISCOVERY: Two scalar settings instead of a table row - the
// state is transient and its single-consumption contract lives in code
const (
	launchSiteURLKey  = "sso.launch.siteurl"
	launchPassportKey = "sso.launch.passport"
)

// launchEndpoint is the extended plugin's browser hand-off path
const launchEndpoint = "/local/mobile/launch.php"

// SettingsStore is the slice of the configuration collaborator the SSO flow
// needs
type SettingsStore interface {
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)
	DeleteSetting(ctx context.Context, key string) error
}

// LaunchStore owns the pending launch state: the origin URL and random
// passport written just before redirecting to the external authenticator.
// ARCHITECTURAL DISCOVERY: Modeled as one entity with an enforced
// single-consumption contract instead of ad hoc key deletion scattered
// across call sites
type LaunchStore struct {
	settings SettingsStore
	mu       sync.Mutex // serializes the consume read-modify-write
}

// NewLaunchStore creates a launch-state store over the settings collaborator
func NewLaunchStore(settings SettingsStore) *LaunchStore {
	return &LaunchStore{settings: settings}
}

// Save records the pending launch state, replacing any previous one
func (l *LaunchStore) Save(ctx context.Context, siteURL, passport string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.settings.SetSetting(ctx, launchSiteURLKey, siteURL); err != nil {
		return fmt.Errorf("failed to save launch site URL: %w", err)
	}
	if err := l.settings.SetSetting(ctx, launchPassportKey, passport); err != nil {
		return fmt.Errorf("failed to save launch passport: %w", err)
	}
	return nil
}

// Consume reads and deletes the pending launch state in one step.
// FUNCTIONAL DISCOVERY: Both fields are deleted on every consumption attempt,
// success or failure - a payload can never be validated twice
func (l *LaunchStore) Consume(ctx context.Context) (siteURL, passport string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	siteURL, urlErr := l.settings.GetSetting(ctx, launchSiteURLKey)
	passport, passportErr := l.settings.GetSetting(ctx, launchPassportKey)

	// Delete unconditionally before reporting anything
	_ = l.settings.DeleteSetting(ctx, launchSiteURLKey)
	_ = l.settings.DeleteSetting(ctx, launchPassportKey)

	if urlErr != nil || passportErr != nil || siteURL == "" || passport == "" {
		return "", "", ErrNoPendingLaunch
	}
	return siteURL, passport, nil
}

// BuildLaunchURL constructs the URL the external authenticator is opened at
func BuildLaunchURL(siteURL, service, passport string) string {
	query := url.Values{}
	query.Set("service", service)
	query.Set("passport", passport)
	return strings.TrimRight(siteURL, "/") + launchEndpoint + "?" + query.Encode()
}
