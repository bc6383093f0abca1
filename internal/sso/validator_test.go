package sso

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"sitekeeper/pkg/types"
)

// mockSettings is an in-memory settings collaborator
type mockSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockSettings() *mockSettings {
	return &mockSettings{values: make(map[string]string)}
}

func (m *mockSettings) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockSettings) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return "", errors.New("setting not found")
	}
	return value, nil
}

func (m *mockSettings) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockSettings) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// signPayload builds a callback payload the way the server does
func signPayload(siteURL, passport, token string) string {
	sum := md5.Sum([]byte(siteURL + passport))
	payload := hex.EncodeToString(sum[:]) + ":::" + token
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestValidator_AcceptsMatchingSignature(t *testing.T) {
	settings := newMockSettings()
	launches := NewLaunchStore(settings)
	validator := NewValidator(launches)
	ctx := context.Background()

	if err := launches.Save(ctx, "https://moodle.example.org", "passport-1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	login, err := validator.Validate(ctx, signPayload("https://moodle.example.org", "passport-1", "tok-abc"))
	if err != nil {
		t.Fatalf("matching signature rejected: %v", err)
	}
	if login.SiteURL != "https://moodle.example.org" || login.Token != "tok-abc" {
		t.Errorf("unexpected login result: %+v", login)
	}
	if settings.len() != 0 {
		t.Error("launch state must be empty after validation")
	}
}

func TestValidator_AcceptsSchemeSwappedSignature(t *testing.T) {
	settings := newMockSettings()
	launches := NewLaunchStore(settings)
	validator := NewValidator(launches)
	ctx := context.Background()

	// App launched against https, server signed with http after a redirect
	_ = launches.Save(ctx, "https://moodle.example.org", "passport-2")

	login, err := validator.Validate(ctx, signPayload("http://moodle.example.org", "passport-2", "tok-xyz"))
	if err != nil {
		t.Fatalf("scheme-swapped signature rejected: %v", err)
	}
	if login.SiteURL != "http://moodle.example.org" {
		t.Errorf("expected the scheme-adjusted URL, got %s", login.SiteURL)
	}
}

func TestValidator_RejectsWrongSignature(t *testing.T) {
	settings := newMockSettings()
	launches := NewLaunchStore(settings)
	validator := NewValidator(launches)
	ctx := context.Background()

	_ = launches.Save(ctx, "https://moodle.example.org", "passport-3")

	_, err := validator.Validate(ctx, signPayload("https://moodle.example.org", "wrong-passport", "tok"))
	if !errors.Is(err, types.ErrSignatureMismatch) {
		t.Errorf("expected signature mismatch, got %v", err)
	}
	if settings.len() != 0 {
		t.Error("launch state must be cleared even on mismatch")
	}
}

func TestValidator_SingleConsumption(t *testing.T) {
	settings := newMockSettings()
	launches := NewLaunchStore(settings)
	validator := NewValidator(launches)
	ctx := context.Background()

	_ = launches.Save(ctx, "https://moodle.example.org", "passport-4")
	payload := signPayload("https://moodle.example.org", "passport-4", "tok")

	if _, err := validator.Validate(ctx, payload); err != nil {
		t.Fatalf("first validation failed: %v", err)
	}

	// Replaying the same valid payload must fail: state is consumed
	if _, err := validator.Validate(ctx, payload); !errors.Is(err, types.ErrDecode) {
		t.Errorf("replay should fail with decode error, got %v", err)
	}
}

func TestValidator_MalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"missing separator", base64.StdEncoding.EncodeToString([]byte("justonefield"))},
		{"empty token", base64.StdEncoding.EncodeToString([]byte("sig:::"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := newMockSettings()
			launches := NewLaunchStore(settings)
			validator := NewValidator(launches)
			ctx := context.Background()

			_ = launches.Save(ctx, "https://moodle.example.org", "passport-5")

			_, err := validator.Validate(ctx, tt.payload)
			if !errors.Is(err, types.ErrDecode) {
				t.Errorf("expected decode error, got %v", err)
			}
			// A failed decode still burns the pending state
			if settings.len() != 0 {
				t.Error("launch state must be empty after any validation attempt")
			}
		})
	}
}

func TestLaunchStore_ConsumeWithoutSave(t *testing.T) {
	launches := NewLaunchStore(newMockSettings())

	_, _, err := launches.Consume(context.Background())
	if !errors.Is(err, ErrNoPendingLaunch) {
		t.Errorf("expected no-pending-launch error, got %v", err)
	}
}

func TestBuildLaunchURL(t *testing.T) {
	launchURL := BuildLaunchURL("https://moodle.example.org/", "local_mobile", "pass-123")

	if !strings.HasPrefix(launchURL, "https://moodle.example.org/local/mobile/launch.php?") {
		t.Errorf("unexpected launch URL: %s", launchURL)
	}
	if !strings.Contains(launchURL, "service=local_mobile") || !strings.Contains(launchURL, "passport=pass-123") {
		t.Errorf("launch URL missing parameters: %s", launchURL)
	}
}
