package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitekeeper/internal/probe"
	"sitekeeper/internal/sso"
	"sitekeeper/pkg/interfaces"
	"sitekeeper/pkg/types"
)

// tokenEndpoint is the credential-exchange path every site exposes
const tokenEndpoint = "/login/token.php"

// minRequiredFunction gates the minimum server capability: presence of a
// component-strings function in the advertised list.
// FUNCTIONAL DISCOVERY: Deliberately independent of any version number field;
// the function's existence is what the app actually depends on
const minRequiredFunction = "component_strings"

// canonicalAccessCode is the server error demanding the www-prefixed host
const canonicalAccessCode = "requirecorrectaccess"

// Transport is the slice of the RPC client the manager needs for the fixed
// auxiliary endpoints
type Transport interface {
	PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error)
	Head(ctx context.Context, endpoint string, timeout time.Duration) error
}

// FileCascade removes a site's cached files when the site is deleted
type FileCascade interface {
	RemoveSiteFiles(siteID string) error
}

// Config carries the manager's tunables
type Config struct {
	// DefaultService is the standard web service requested when no cached
	// extended service matches the site
	DefaultService string
	// ExtendedService is the candidate service probed for and used in SSO
	// launch URLs
	ExtendedService string
	// ConnectTimeout bounds the reachability probe in CheckSite
	ConnectTimeout time.Duration
}

// DefaultManagerConfig returns the stock service names and timeouts
func DefaultManagerConfig() Config {
	return Config{
		DefaultService:  "moodle_mobile_app",
		ExtendedService: "local_mobile",
		ConnectTimeout:  15 * time.Second,
	}
}

// tokenResponse is the token endpoint's reply shape
type tokenResponse struct {
	Token     string `json:"token"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorcode"`
}

// Manager orchestrates URL validation, capability probing, token acquisition,
// site-record creation, login/logout, and session restoration.
// ARCHITECTURAL DISCOVERY: The manager exclusively owns the SiteRecord
// lifecycle and the current-site pointer; every other component only reads
// credentials handed to it per call
type Manager struct {
	store     interfaces.SiteStore
	caller    interfaces.Caller
	prober    interfaces.CapabilityProber
	transport Transport
	cache     *probe.Cache
	launches  *sso.LaunchStore
	validator *sso.Validator
	files     FileCascade
	config    Config

	mu       sync.Mutex
	state    State
	current  *types.SiteRecord
	restored bool // restore-once guard, process lifetime
}

// NewManager creates a session manager owning the capability cache
func NewManager(store interfaces.SiteStore, caller interfaces.Caller, prober interfaces.CapabilityProber, transport Transport, cache *probe.Cache, launches *sso.LaunchStore, files FileCascade, config Config) *Manager {
	if config.DefaultService == "" {
		config = DefaultManagerConfig()
	}
	return &Manager{
		store:     store,
		caller:    caller,
		prober:    prober,
		transport: transport,
		cache:     cache,
		launches:  launches,
		validator: sso.NewValidator(launches),
		files:     files,
		config:    config,
		state:     StateUnauthenticated,
	}
}

// setState records a lifecycle transition
func (m *Manager) setState(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()
	if prev != next {
		log.Printf("Session state: %s -> %s", prev, next)
	}
}

// CurrentState returns the lifecycle state for observation
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CheckSite normalizes and validates a candidate site URL, verifies the host
// answers on the token endpoint, and probes its authentication capabilities
func (m *Manager) CheckSite(ctx context.Context, siteURL, preferredScheme string) (*types.SiteCheck, error) {
	normalized := types.NormalizeSiteURL(siteURL, preferredScheme)
	if !types.IsValidSiteURL(normalized) {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidSite, siteURL)
	}

	m.setState(StateProbing)

	reachable, err := m.checkReachable(ctx, normalized)
	if err != nil {
		m.setState(StateUnauthenticated)
		return nil, err
	}

	authCode, err := m.prober.Probe(ctx, reachable)
	if err != nil {
		m.setState(StateUnauthenticated)
		return nil, err
	}

	return &types.SiteCheck{SiteURL: reachable, AuthCode: authCode}, nil
}

// checkReachable verifies the token endpoint answers, retrying once with the
// alternate scheme before giving up
func (m *Manager) checkReachable(ctx context.Context, siteURL string) (string, error) {
	if err := m.transport.Head(ctx, siteURL+tokenEndpoint, m.config.ConnectTimeout); err == nil {
		return siteURL, nil
	}

	// FUNCTIONAL DISCOVERY: Exactly one alternate-scheme attempt - bounded
	// retries guarantee termination
	toggled := types.ToggleScheme(siteURL)
	if err := m.transport.Head(ctx, toggled+tokenEndpoint, m.config.ConnectTimeout); err == nil {
		log.Printf("Site reachable after scheme fallback: %s", toggled)
		return toggled, nil
	}

	return "", fmt.Errorf("%w: %s", types.ErrCannotConnect, siteURL)
}

// GetUserToken exchanges credentials for a web service token
func (m *Manager) GetUserToken(ctx context.Context, siteURL, username, password string) (string, error) {
	m.setState(StateAuthenticating)
	token, err := m.getUserToken(ctx, siteURL, username, password, false)
	if err != nil {
		m.setState(StateUnauthenticated)
	}
	return token, err
}

// getUserToken posts credentials once; isRetry caps the canonical-access
// retry depth at exactly one
func (m *Manager) getUserToken(ctx context.Context, siteURL, username, password string, isRetry bool) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("service", m.determineService(siteURL))

	body, err := m.transport.PostForm(ctx, siteURL+tokenEndpoint, form)
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: undecodable token response", types.ErrUnexpected)
	}

	if resp.Token != "" {
		return resp.Token, nil
	}

	if resp.Error != "" {
		if resp.ErrorCode == canonicalAccessCode {
			// FUNCTIONAL DISCOVERY: Retry exactly once with the www-prefixed
			// host; a second occurrence of the same code is terminal
			if !isRetry {
				log.Printf("Token request requires canonical access, retrying with www host: %s", siteURL)
				return m.getUserToken(ctx, types.WithWWWHost(siteURL), username, password, true)
			}
			return "", fmt.Errorf("%w: %s", types.ErrInvalidAccount, resp.Error)
		}
		return "", fmt.Errorf("%w: %s", types.ErrLogin, resp.Error)
	}

	return "", fmt.Errorf("%w: token endpoint returned neither token nor error", types.ErrUnexpected)
}

// determineService resolves which service name to request.
// Open-question decision preserved from the source: precedence is http-cache,
// then https-cache, then the configured default - silently falling through.
func (m *Manager) determineService(siteURL string) string {
	stripped := strings.TrimPrefix(strings.TrimPrefix(siteURL, "https://"), "http://")
	if service, ok := m.cache.Get("http://" + stripped); ok {
		return service
	}
	if service, ok := m.cache.Get("https://" + stripped); ok {
		return service
	}
	return m.config.DefaultService
}

// NewSite establishes a candidate session, validates the server's minimum
// capability, then persists and activates the site record.
// FUNCTIONAL DISCOVERY: Metadata fetch and validation happen strictly before
// any store write - a failed candidate leaves nothing behind
func (m *Manager) NewSite(ctx context.Context, siteURL, token string) (*types.SiteRecord, error) {
	m.setState(StateAuthenticating)

	info, err := m.fetchSiteInfo(ctx, siteURL, token)
	if err != nil {
		m.setState(StateUnauthenticated)
		return nil, err
	}

	if !hasRequiredFunction(info.Functions) {
		m.setState(StateUnauthenticated)
		return nil, fmt.Errorf("%w: missing %s capability", types.ErrInvalidMoodleVersion, minRequiredFunction)
	}

	if info.Username == "" {
		m.setState(StateUnauthenticated)
		return nil, fmt.Errorf("%w: site info carries no username", types.ErrUnexpected)
	}

	record := &types.SiteRecord{
		ID:      types.SiteID(siteURL, info.Username),
		SiteURL: siteURL,
		Token:   token,
		Info:    *info,
	}

	if err := m.store.UpsertSite(ctx, record); err != nil {
		m.setState(StateUnauthenticated)
		return nil, fmt.Errorf("failed to persist site: %w", err)
	}
	if err := m.store.SetCurrentSiteID(ctx, record.ID); err != nil {
		m.setState(StateUnauthenticated)
		return nil, fmt.Errorf("failed to activate site: %w", err)
	}

	m.mu.Lock()
	m.current = record
	m.mu.Unlock()
	m.setState(StateActive)

	log.Printf("Registered site: id=%s url=%s user=%s", record.ID, record.SiteURL, info.Username)
	return record, nil
}

// fetchSiteInfo runs the candidate's first authenticated call
func (m *Manager) fetchSiteInfo(ctx context.Context, siteURL, token string) (*types.SiteInfo, error) {
	payload, err := m.caller.Call(ctx, "core_webservice_get_site_info", nil, types.CallOptions{
		SiteURL:          siteURL,
		Token:            token,
		ResponseExpected: true,
	})
	if err != nil {
		return nil, err
	}

	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: site info is not an object", types.ErrUnexpected)
	}

	// TECHNICAL DISCOVERY: JSON round-trip converts the generic payload into
	// the typed info blob without hand-written field mapping
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnexpected, err)
	}
	var info types.SiteInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnexpected, err)
	}
	return &info, nil
}

// hasRequiredFunction scans the advertised function list for the minimum
// capability gate
func hasRequiredFunction(functions []types.SiteFunction) bool {
	for _, fn := range functions {
		if strings.Contains(fn.Name, minRequiredFunction) {
			return true
		}
	}
	return false
}

// LoadSite reactivates a stored site as the current session
func (m *Manager) LoadSite(ctx context.Context, siteID string) (*types.SiteRecord, error) {
	record, err := m.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if err := m.store.SetCurrentSiteID(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("failed to activate site: %w", err)
	}

	m.mu.Lock()
	m.current = record
	m.mu.Unlock()
	m.setState(StateActive)

	log.Printf("Loaded site: id=%s url=%s", record.ID, record.SiteURL)
	return record, nil
}

// RestoreSession reactivates the persisted current site on startup.
// FUNCTIONAL DISCOVERY: Once per process - the guard trips on the attempt,
// not the outcome, so racing double-restorations cannot both proceed
func (m *Manager) RestoreSession(ctx context.Context) (*types.SiteRecord, error) {
	m.mu.Lock()
	if m.restored {
		m.mu.Unlock()
		return nil, types.ErrAlreadyRestored
	}
	m.restored = true
	m.mu.Unlock()

	siteID, err := m.store.GetCurrentSiteID(ctx)
	if err != nil {
		return nil, err
	}

	record, err := m.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = record
	m.mu.Unlock()
	m.setState(StateActive)

	log.Printf("Restored session: id=%s url=%s", record.ID, record.SiteURL)
	return record, nil
}

// StartSSOLogin records the pending launch state and returns the URL the
// external authenticator should be opened at
func (m *Manager) StartSSOLogin(ctx context.Context, siteURL string) (string, error) {
	passport := uuid.New().String()
	if err := m.launches.Save(ctx, siteURL, passport); err != nil {
		return "", err
	}

	m.setState(StateVerifying)
	return sso.BuildLaunchURL(siteURL, m.config.ExtendedService, passport), nil
}

// ValidateSSOCallback verifies an externally delivered payload and, on
// success, establishes the site session with the delivered token
func (m *Manager) ValidateSSOCallback(ctx context.Context, payload string) (*types.SiteRecord, error) {
	m.setState(StateVerifying)

	login, err := m.validator.Validate(ctx, payload)
	if err != nil {
		m.setState(StateUnauthenticated)
		return nil, err
	}

	return m.NewSite(ctx, login.SiteURL, login.Token)
}

// Logout clears the current-site pointer; the site record itself survives
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.ClearCurrentSiteID(ctx); err != nil {
		return fmt.Errorf("failed to clear current site: %w", err)
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.setState(StateUnauthenticated)

	log.Printf("Logged out")
	return nil
}

// DeleteSite removes a record entirely and cascades cached-file cleanup
func (m *Manager) DeleteSite(ctx context.Context, siteID string) error {
	m.mu.Lock()
	isCurrent := m.current != nil && m.current.ID == siteID
	m.mu.Unlock()

	if isCurrent {
		if err := m.Logout(ctx); err != nil {
			return err
		}
	}

	if err := m.store.RemoveSite(ctx, siteID); err != nil {
		return fmt.Errorf("failed to remove site: %w", err)
	}

	// Cached files belong to the external filesystem collaborator; its
	// failure must not resurrect the already-deleted record
	if m.files != nil {
		if err := m.files.RemoveSiteFiles(siteID); err != nil {
			log.Printf("Cached file cleanup failed: site=%s err=%v", siteID, err)
		}
	}

	log.Printf("Deleted site: id=%s", siteID)
	return nil
}

// CurrentSite returns the active record, or nil when logged out
func (m *Manager) CurrentSite() *types.SiteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	// Shallow copy keeps callers from mutating the active record
	record := *m.current
	return &record
}

// ListSites returns all stored site records
func (m *Manager) ListSites(ctx context.Context) ([]*types.SiteRecord, error) {
	return m.store.ListSites(ctx)
}

// Call runs an RPC against the active site's credentials
func (m *Manager) Call(ctx context.Context, method string, args map[string]interface{}) (interface{}, error) {
	current := m.CurrentSite()
	if current == nil {
		return nil, types.ErrNoCurrentSite
	}

	return m.caller.Call(ctx, method, args, types.CallOptions{
		SiteURL:          current.SiteURL,
		Token:            current.Token,
		ResponseExpected: true,
	})
}

// InvalidateSession is the explicit auth-failure callback from the RPC
// client: an invalid-token error against the active site forces logout
func (m *Manager) InvalidateSession(siteURL string) {
	current := m.CurrentSite()
	if current == nil || current.SiteURL != siteURL {
		return
	}

	log.Printf("Auth failure on active site, forcing logout: url=%s", siteURL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Logout(ctx); err != nil {
		log.Printf("Forced logout failed: %v", err)
	}
}
