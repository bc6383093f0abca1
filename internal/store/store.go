package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"github.com/gowebpki/jcs"

	"sitekeeper/pkg/database"
	"sitekeeper/pkg/types"
)

// Store implements the SiteStore interface on SQLite.
// ARCHITECTURAL DISCOVERY: Single-writer pattern - every mutation funnels
// through one goroutine, making each upsert atomic without cross-key locking
type Store struct {
	db           *sql.DB
	config       *database.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// New opens the database, applies migrations, and starts the write loop
func New(config *database.Config) (*Store, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := database.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := database.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after a short backoff;
			// SQLite busy errors on mobile-class storage are usually transient
			err := op.operation(s.db)
			if err != nil {
				log.Printf("Store write failed, retrying in 1 second: %v", err)
				time.Sleep(time.Second)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("Store write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("site store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return fmt.Errorf("site store is shutting down")
	}
}

// UpsertSite inserts or fully replaces a site record
// FUNCTIONAL DISCOVERY: REPLACE semantics match the deterministic site ID -
// re-registering the same account overwrites its record in place
func (s *Store) UpsertSite(ctx context.Context, site *types.SiteRecord) error {
	if site == nil || site.ID == "" {
		return ErrInvalidRecord
	}

	infoJSON, err := canonicalInfo(&site.Info)
	if err != nil {
		return fmt.Errorf("failed to marshal site info: %w", err)
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT OR REPLACE INTO sites (id, siteurl, token, info)
			VALUES (?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, site.ID, site.SiteURL, site.Token, infoJSON)
		if err != nil {
			return fmt.Errorf("failed to upsert site: %w", err)
		}
		return nil
	})
}

// GetSite retrieves a site record by ID
func (s *Store) GetSite(ctx context.Context, siteID string) (*types.SiteRecord, error) {
	// ARCHITECTURAL DISCOVERY: Reads bypass the write channel - WAL mode
	// allows them to run concurrently with the single writer
	query := `SELECT id, siteurl, token, info FROM sites WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, siteID)

	var site types.SiteRecord
	var infoJSON string
	err := row.Scan(&site.ID, &site.SiteURL, &site.Token, &infoJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrSiteNotFound
		}
		return nil, fmt.Errorf("failed to query site: %w", err)
	}

	if err := json.Unmarshal([]byte(infoJSON), &site.Info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site info: %w", err)
	}

	return &site, nil
}

// RemoveSite deletes a site record by ID
func (s *Store) RemoveSite(ctx context.Context, siteID string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM sites WHERE id = ?", siteID)
		if err != nil {
			return fmt.Errorf("failed to remove site: %w", err)
		}
		return nil
	})
}

// ListSites returns all stored site records ordered by URL
func (s *Store) ListSites(ctx context.Context) ([]*types.SiteRecord, error) {
	query := `SELECT id, siteurl, token, info FROM sites ORDER BY siteurl`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sites []*types.SiteRecord
	for rows.Next() {
		var site types.SiteRecord
		var infoJSON string
		if err := rows.Scan(&site.ID, &site.SiteURL, &site.Token, &infoJSON); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		if err := json.Unmarshal([]byte(infoJSON), &site.Info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal site info: %w", err)
		}
		sites = append(sites, &site)
	}

	return sites, rows.Err()
}

// CountSites returns the number of stored site records
func (s *Store) CountSites(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sites: %w", err)
	}
	return count, nil
}

// SetCurrentSiteID overwrites the current-site pointer
// FUNCTIONAL DISCOVERY: Fixed singleton key enforces the at-most-one
// invariant at the schema level rather than in application code
func (s *Store) SetCurrentSiteID(ctx context.Context, siteID string) error {
	if siteID == "" {
		return ErrInvalidRecord
	}
	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `INSERT OR REPLACE INTO current_site (singleton, site_id) VALUES (1, ?)`
		_, err := db.ExecContext(ctx, query, siteID)
		if err != nil {
			return fmt.Errorf("failed to set current site: %w", err)
		}
		return nil
	})
}

// GetCurrentSiteID reads the current-site pointer
func (s *Store) GetCurrentSiteID(ctx context.Context) (string, error) {
	var siteID string
	err := s.db.QueryRowContext(ctx, "SELECT site_id FROM current_site WHERE singleton = 1").Scan(&siteID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Absence of the pointer means "logged out"
			return "", types.ErrNoCurrentSite
		}
		return "", fmt.Errorf("failed to query current site: %w", err)
	}
	return siteID, nil
}

// ClearCurrentSiteID removes the pointer (logout)
func (s *Store) ClearCurrentSiteID(ctx context.Context) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM current_site WHERE singleton = 1")
		if err != nil {
			return fmt.Errorf("failed to clear current site: %w", err)
		}
		return nil
	})
}

// SetSetting stores a named scalar setting
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidSettingKey
	}
	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`
		_, err := db.ExecContext(ctx, query, key, value)
		if err != nil {
			return fmt.Errorf("failed to set setting %s: %w", key, err)
		}
		return nil
	})
}

// GetSetting reads a named setting
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, nil
}

// DeleteSetting removes a named setting; deleting an absent key is a no-op
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
		if err != nil {
			return fmt.Errorf("failed to delete setting %s: %w", key, err)
		}
		return nil
	})
}

// HealthCheck verifies store connectivity and basic operations
func (s *Store) HealthCheck(ctx context.Context) error {
	var result int
	err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}

// GetDB exposes the underlying handle for schema validation tooling
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// canonicalInfo serializes the info blob as canonical JSON.
// TECHNICAL DISCOVERY: JCS canonicalization makes identical metadata produce
// identical stored bytes, so repeated upserts of the same account are
// byte-for-byte repeatable
func canonicalInfo(info *types.SiteInfo) (string, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}
