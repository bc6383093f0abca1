package files

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// downloadJob is one queued transfer, keyed by (remote URL, local path)
type downloadJob struct {
	remoteURL string
	localPath string
}

// Queue runs background file downloads.
// ARCHITECTURAL DISCOVERY: Single worker draining a buffered channel - the
// same serialization pattern the store uses for writes, applied to transfers
// so cache files are never written concurrently
type Queue struct {
	httpClient *http.Client
	jobs       chan downloadJob
	shutdown   chan struct{}
	wg         sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool // TECHNICAL: dedupe key = remoteURL + "|" + localPath
	closed   bool
}

// NewQueue creates a download queue and starts its worker
func NewQueue(timeout time.Duration) *Queue {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	q := &Queue{
		httpClient: &http.Client{Timeout: timeout},
		jobs:       make(chan downloadJob, 100),
		shutdown:   make(chan struct{}),
		inFlight:   make(map[string]bool),
	}
	q.wg.Add(1)
	go q.workLoop()
	return q
}

// Enqueue schedules a download; duplicate in-flight keys are dropped.
// FUNCTIONAL DISCOVERY: Fire-and-forget contract - a full queue drops the
// job rather than blocking the caller, the next cache miss re-enqueues it
func (q *Queue) Enqueue(ctx context.Context, remoteURL, localPath string) {
	key := remoteURL + "|" + localPath

	q.mu.Lock()
	if q.closed || q.inFlight[key] {
		q.mu.Unlock()
		return
	}
	q.inFlight[key] = true
	q.mu.Unlock()

	select {
	case q.jobs <- downloadJob{remoteURL: remoteURL, localPath: localPath}:
	default:
		log.Printf("Download queue full, dropping: url=%s", remoteURL)
		q.release(key)
	}
}

// workLoop processes downloads one at a time
func (q *Queue) workLoop() {
	defer q.wg.Done()

	for {
		select {
		case job := <-q.jobs:
			if err := q.download(job); err != nil {
				log.Printf("Background download failed: url=%s err=%v", job.remoteURL, err)
			}
			q.release(job.remoteURL + "|" + job.localPath)

		case <-q.shutdown:
			return
		}
	}
}

// download fetches one file to its cache location
func (q *Queue) download(job downloadJob) error {
	if err := os.MkdirAll(filepath.Dir(job.localPath), 0o755); err != nil {
		return err
	}

	resp, err := q.httpClient.Get(job.remoteURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}

	// TECHNICAL DISCOVERY: Write to a temp file then rename so a cache hit
	// never observes a half-written file
	tmpPath := job.localPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, job.localPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	log.Printf("Background download complete: url=%s path=%s", job.remoteURL, job.localPath)
	return nil
}

// release clears the in-flight marker for a job key
func (q *Queue) release(key string) {
	q.mu.Lock()
	delete(q.inFlight, key)
	q.mu.Unlock()
}

// Close stops the worker after the current transfer finishes
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.shutdown)
	q.wg.Wait()
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}
