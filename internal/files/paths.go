package files

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"sitekeeper/pkg/interfaces"
)

// Manager resolves deterministic local cache paths for remote files and
// decides between a cached copy and the remote reference.
// ARCHITECTURAL DISCOVERY: The helper always returns a usable reference -
// offline state degrades to the remote URL, never to an error, so calling
// UI code stays resilient
type Manager struct {
	root       string
	fs         interfaces.FileStore
	downloader interfaces.Downloader
	checker    interfaces.ConnectivityChecker
}

// NewManager creates a file cache manager rooted at the given directory
func NewManager(root string, fs interfaces.FileStore, downloader interfaces.Downloader, checker interfaces.ConnectivityChecker) *Manager {
	return &Manager{root: root, fs: fs, downloader: downloader, checker: checker}
}

// ResolvePath computes the deterministic local cache path for a remote file:
// {root}/{siteID}/{courseID}/{hash(fileURL)}{ext}
// FUNCTIONAL DISCOVERY: Hash of the full URL rather than the filename -
// two files with the same name in different folders must not collide
func (m *Manager) ResolvePath(fileURL, courseID, siteID string) string {
	sum := md5.Sum([]byte(fileURL))
	name := hex.EncodeToString(sum[:]) + remoteExtension(fileURL)
	return filepath.Join(m.root, siteID, courseID, name)
}

// GetFilePath returns a local path when the file is cached, otherwise the
// remote URL - triggering a background download only when currently online.
// Never returns an error.
func (m *Manager) GetFilePath(ctx context.Context, fileURL, courseID, siteID string) string {
	localPath := m.ResolvePath(fileURL, courseID, siteID)

	if m.fs.Exists(localPath) {
		return localPath
	}

	// FUNCTIONAL DISCOVERY: Offline skips the download silently; the caller
	// still gets the remote reference both times and no transfer is queued
	if m.checker == nil || m.checker.Online() {
		m.downloader.Enqueue(ctx, fileURL, localPath)
	}

	return fileURL
}

// RemoveSiteFiles deletes every cached file belonging to a site.
// Called as the cascade of site deletion.
func (m *Manager) RemoveSiteFiles(siteID string) error {
	if siteID == "" {
		return nil
	}
	siteDir := filepath.Join(m.root, siteID)
	log.Printf("Removing cached files: site=%s dir=%s", siteID, siteDir)
	return m.fs.RemoveDir(siteDir)
}

// remoteExtension extracts the file extension from a remote URL, ignoring
// query parameters such as tokens
func remoteExtension(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}
	return path.Ext(parsed.Path)
}

// DiskStore implements the FileStore interface on the local filesystem
type DiskStore struct{}

// Exists reports whether a regular file is present at path
func (DiskStore) Exists(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a single file; removing an absent file is a no-op
func (DiskStore) Remove(filePath string) error {
	err := os.Remove(filePath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RemoveDir deletes a directory tree; absent directories are a no-op
func (DiskStore) RemoveDir(dirPath string) error {
	return os.RemoveAll(dirPath)
}
