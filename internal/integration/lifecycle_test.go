package integration

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitekeeper/internal/files"
	"sitekeeper/internal/probe"
	"sitekeeper/internal/rpc"
	"sitekeeper/internal/session"
	"sitekeeper/internal/sso"
	"sitekeeper/internal/store"
	"sitekeeper/pkg/database"
	"sitekeeper/pkg/types"
)

const (
	testUsername = "student1"
	testPassword = "correct-horse"
	testToken    = "integration-token"
	staleToken   = "stale-token"
)

// fakeServer simulates the fixed server surface the session layer talks to:
// the token endpoint, the capability check, and the web service envelope
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/login/token.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("username") == testUsername && r.PostForm.Get("password") == testPassword {
			_ = json.NewEncoder(w).Encode(map[string]string{"token": testToken})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":     "Invalid login, please try again",
			"errorcode": "invalidlogin",
		})
	})

	mux.HandleFunc("/local/mobile/check.php", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 0})
	})

	mux.HandleFunc("/webservice/rest/server.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("wstoken") != testToken {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"exception": "moodle_exception",
				"errorcode": "invalidtoken",
				"message":   "Invalid token",
			})
			return
		}
		switch r.PostForm.Get("wsfunction") {
		case "core_webservice_get_site_info":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"sitename": "Integration School",
				"username": testUsername,
				"fullname": "Student One",
				"userid":   42,
				"siteurl":  "http://" + r.Host,
				"functions": []map[string]string{
					{"name": "core_get_component_strings", "version": "1"},
				},
			})
		case "core_course_get_contents":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 1, "name": "Week 1"},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"exception": "moodle_exception",
				"errorcode": "invalidfunction",
				"message":   "Unknown function",
			})
		}
	})

	mux.HandleFunc("/files/notes.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pdf body"))
	})

	return httptest.NewServer(mux)
}

// rig wires the full component stack over a throwaway database, the way the
// application container does at startup
type rig struct {
	siteStore *store.Store
	client    *rpc.Client
	cache     *probe.Cache
	manager   *session.Manager
	downloads *files.Queue
	fileMgr   *files.Manager
	cacheRoot string
}

func newRig(t *testing.T) *rig {
	t.Helper()

	dbConfig := database.DefaultConfig()
	dbConfig.DatabasePath = filepath.Join(t.TempDir(), "integration.db")
	siteStore, err := store.New(dbConfig)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	// Nil connectivity checker: the test suite is always "online"
	client := rpc.NewClient(10*time.Second, nil)
	cache := probe.NewCache()
	prober := probe.NewProber(client, cache, "local_mobile")

	cacheRoot := t.TempDir()
	downloads := files.NewQueue(10 * time.Second)
	fileMgr := files.NewManager(cacheRoot, files.DiskStore{}, downloads, nil)

	launches := sso.NewLaunchStore(siteStore)
	managerConfig := session.DefaultManagerConfig()
	managerConfig.ConnectTimeout = 5 * time.Second
	manager := session.NewManager(siteStore, client, prober, client, cache, launches, fileMgr, managerConfig)
	client.SetInvalidator(manager)

	t.Cleanup(func() {
		downloads.Close()
		_ = siteStore.Close()
	})
	return &rig{
		siteStore: siteStore,
		client:    client,
		cache:     cache,
		manager:   manager,
		downloads: downloads,
		fileMgr:   fileMgr,
		cacheRoot: cacheRoot,
	}
}

func TestFullAuthenticationLifecycle(t *testing.T) {
	server := fakeServer(t)
	defer server.Close()
	r := newRig(t)
	ctx := context.Background()

	// Phase 1: site discovery
	check, err := r.manager.CheckSite(ctx, server.URL, "")
	if err != nil {
		t.Fatalf("check site failed: %v", err)
	}
	if check.AuthCode != types.AuthStandard {
		t.Fatalf("expected standard auth, got %d", check.AuthCode)
	}
	// The clean capability check cached the extended service
	if service, ok := r.cache.Get(server.URL); !ok || service != "local_mobile" {
		t.Errorf("extended service not cached: %q ok=%v", service, ok)
	}

	// Phase 2: credential exchange
	token, err := r.manager.GetUserToken(ctx, check.SiteURL, testUsername, testPassword)
	if err != nil {
		t.Fatalf("token exchange failed: %v", err)
	}
	if token != testToken {
		t.Fatalf("unexpected token %q", token)
	}

	if _, err := r.manager.GetUserToken(ctx, check.SiteURL, testUsername, "wrong"); !errors.Is(err, types.ErrLogin) {
		t.Errorf("bad password should fail with login error, got %v", err)
	}

	// Phase 3: site registration
	record, err := r.manager.NewSite(ctx, check.SiteURL, token)
	if err != nil {
		t.Fatalf("new site failed: %v", err)
	}
	if record.Info.SiteName != "Integration School" {
		t.Errorf("site info not captured: %+v", record.Info)
	}
	if record.ID != types.SiteID(check.SiteURL, testUsername) {
		t.Errorf("non-deterministic site ID: %q", record.ID)
	}

	// Phase 4: authenticated calls against the active site
	payload, err := r.manager.Call(ctx, "core_course_get_contents", map[string]interface{}{"courseid": 1})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	courses, ok := payload.([]interface{})
	if !ok || len(courses) != 1 {
		t.Errorf("unexpected payload: %#v", payload)
	}

	// Phase 5: logout keeps the record, blocks calls
	if err := r.manager.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := r.manager.Call(ctx, "core_course_get_contents", nil); !errors.Is(err, types.ErrNoCurrentSite) {
		t.Errorf("call after logout should fail, got %v", err)
	}
	if sites, _ := r.manager.ListSites(ctx); len(sites) != 1 {
		t.Errorf("record must survive logout, have %d", len(sites))
	}

	// Phase 6: reload and keep working
	if _, err := r.manager.LoadSite(ctx, record.ID); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, err := r.manager.Call(ctx, "core_course_get_contents", nil); err != nil {
		t.Errorf("call after reload failed: %v", err)
	}
}

func TestSessionRestorationAcrossProcesses(t *testing.T) {
	server := fakeServer(t)
	defer server.Close()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "restore.db")

	// First process: register a site
	first := newRigAt(t, dbPath)
	siteURL := types.NormalizeSiteURL(server.URL, "")
	record, err := first.manager.NewSite(ctx, siteURL, testToken)
	if err != nil {
		t.Fatalf("new site failed: %v", err)
	}
	if err := first.siteStore.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Second process: restore from the same database file
	second := newRigAt(t, dbPath)
	restored, err := second.manager.RestoreSession(ctx)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.ID != record.ID || restored.Token != testToken {
		t.Errorf("restored wrong record: %+v", restored)
	}

	// Restoration happens once per process
	if _, err := second.manager.RestoreSession(ctx); !errors.Is(err, types.ErrAlreadyRestored) {
		t.Errorf("second restore must be rejected, got %v", err)
	}
}

// newRigAt is newRig pinned to a specific database file so two rigs can act
// as two process lifetimes over the same persistent state
func newRigAt(t *testing.T, dbPath string) *rig {
	t.Helper()

	dbConfig := database.DefaultConfig()
	dbConfig.DatabasePath = dbPath
	siteStore, err := store.New(dbConfig)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	client := rpc.NewClient(10*time.Second, nil)
	cache := probe.NewCache()
	prober := probe.NewProber(client, cache, "local_mobile")
	launches := sso.NewLaunchStore(siteStore)
	manager := session.NewManager(siteStore, client, prober, client, cache, launches, nil, session.DefaultManagerConfig())
	client.SetInvalidator(manager)

	t.Cleanup(func() { _ = siteStore.Close() })
	return &rig{siteStore: siteStore, client: client, cache: cache, manager: manager}
}

func TestInvalidTokenForcesLogout(t *testing.T) {
	server := fakeServer(t)
	defer server.Close()
	r := newRig(t)
	ctx := context.Background()

	siteURL := types.NormalizeSiteURL(server.URL, "")
	record, err := r.manager.NewSite(ctx, siteURL, testToken)
	if err != nil {
		t.Fatalf("new site failed: %v", err)
	}

	// Simulate a server-side token revocation: the stored token goes stale
	record.Token = staleToken
	if err := r.siteStore.UpsertSite(ctx, record); err != nil {
		t.Fatal(err)
	}
	if _, err := r.manager.LoadSite(ctx, record.ID); err != nil {
		t.Fatal(err)
	}

	_, err = r.manager.Call(ctx, "core_course_get_contents", nil)
	if !errors.Is(err, types.ErrAuthToken) {
		t.Fatalf("expected auth-token error, got %v", err)
	}

	// The invalidation callback forced a logout of the active site
	if r.manager.CurrentSite() != nil {
		t.Error("auth failure must force logout")
	}
	if _, err := r.siteStore.GetSite(ctx, record.ID); err != nil {
		t.Errorf("forced logout must not delete the record: %v", err)
	}
}

func TestSSOLifecycle(t *testing.T) {
	server := fakeServer(t)
	defer server.Close()
	r := newRig(t)
	ctx := context.Background()

	siteURL := types.NormalizeSiteURL(server.URL, "")

	launchURL, err := r.manager.StartSSOLogin(ctx, siteURL)
	if err != nil {
		t.Fatalf("start SSO failed: %v", err)
	}

	parsed, err := url.Parse(launchURL)
	if err != nil {
		t.Fatalf("unparseable launch URL: %v", err)
	}
	passport := parsed.Query().Get("passport")
	if passport == "" {
		t.Fatal("launch URL carries no passport")
	}
	if parsed.Query().Get("service") != "local_mobile" {
		t.Errorf("launch URL requests wrong service: %q", launchURL)
	}

	// The external authenticator signs with hash(siteURL + passport)
	signature := fmt.Sprintf("%x", md5.Sum([]byte(siteURL+passport)))
	payload := base64.StdEncoding.EncodeToString([]byte(signature + ":::" + testToken))

	record, err := r.manager.ValidateSSOCallback(ctx, payload)
	if err != nil {
		t.Fatalf("callback validation failed: %v", err)
	}
	if record.Token != testToken || record.Info.Username != testUsername {
		t.Errorf("SSO registration incomplete: %+v", record)
	}

	// The launch state was consumed: a replay of the same payload fails
	if _, err := r.manager.ValidateSSOCallback(ctx, payload); err == nil {
		t.Error("replayed callback must be rejected")
	}
}

func TestFileCacheLifecycle(t *testing.T) {
	server := fakeServer(t)
	defer server.Close()
	r := newRig(t)
	ctx := context.Background()

	fileURL := server.URL + "/files/notes.pdf"
	siteID := "site-1"

	// First request: cache miss returns the remote URL and queues a download
	if got := r.fileMgr.GetFilePath(ctx, fileURL, "course-7", siteID); got != fileURL {
		t.Fatalf("cache miss should return the remote URL, got %q", got)
	}

	localPath := r.fileMgr.ResolvePath(fileURL, "course-7", siteID)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if body, err := os.ReadFile(localPath); err == nil {
			if string(body) != "pdf body" {
				t.Fatalf("wrong cached content: %q", body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background download did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Second request: cache hit resolves locally
	if got := r.fileMgr.GetFilePath(ctx, fileURL, "course-7", siteID); got != localPath {
		t.Errorf("cache hit should resolve locally, got %q", got)
	}

	// Site deletion cascades the cached files away
	if err := r.fileMgr.RemoveSiteFiles(siteID); err != nil {
		t.Fatalf("cascade failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.cacheRoot, siteID)); !os.IsNotExist(err) {
		t.Error("site cache directory should be gone")
	}
}

func TestCheckSiteAgainstDeadServer(t *testing.T) {
	r := newRig(t)

	// A port nothing listens on: both scheme attempts fail
	_, err := r.manager.CheckSite(context.Background(), "http://127.0.0.1:1", "")
	if !errors.Is(err, types.ErrCannotConnect) {
		t.Errorf("expected cannot-connect, got %v", err)
	}
	if !strings.Contains(err.Error(), "127.0.0.1:1") {
		t.Errorf("error should name the site: %v", err)
	}
}
