// Package fallback provides the durable queue of payloads that could not be
// delivered downstream.
package fallback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/onair/internal/domain/fault"
)

// Entry is one undelivered payload.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// FileQueue is a FIFO persisted as a JSON array in a single file.
// Every mutation rewrites the file atomically (temp file, fsync, rename),
// so a crash leaves either the old or the new contents.
type FileQueue struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	lastSeq uint64
	now     func() time.Time
}

// Open loads the queue at path, creating the parent directory if needed.
// A file that cannot be parsed is moved aside and the queue starts empty.
func Open(path string) (*FileQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Storage(err, "failed to create fallback directory")
	}

	q := &FileQueue{
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return q, nil
	case err != nil:
		return nil, fault.Storage(err, "failed to read fallback file")
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &q.entries); err != nil {
			aside := path + ".corrupt-" + time.Now().UTC().Format("20060102T150405")
			zlog.Warn().Msgf("fallback: unreadable queue file moved aside: path=%s to=%s err=%v", path, aside, err)
			if rerr := os.Rename(path, aside); rerr != nil {
				return nil, fault.Storage(rerr, "failed to move corrupt fallback file")
			}
			q.entries = nil
			return q, nil
		}
	}

	// Entries written without a sequence number are numbered in file order.
	for _, e := range q.entries {
		if e.Seq > q.lastSeq {
			q.lastSeq = e.Seq
		}
	}
	for i := range q.entries {
		if q.entries[i].Seq == 0 {
			q.lastSeq++
			q.entries[i].Seq = q.lastSeq
		}
	}

	zlog.Info().Msgf("fallback: queue loaded: path=%s entries=%d", path, len(q.entries))
	return q, nil
}

// Path returns the queue file path.
func (q *FileQueue) Path() string {
	return q.path
}

// Append adds payload at the tail and persists the queue before returning.
func (q *FileQueue) Append(_ context.Context, payload []byte) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := Entry{
		Seq:       q.lastSeq + 1,
		Timestamp: q.now(),
		Data:      append(json.RawMessage(nil), payload...),
	}
	next := append(q.entries[:len(q.entries):len(q.entries)], e)
	if err := q.persist(next); err != nil {
		return Entry{}, err
	}

	q.entries = next
	q.lastSeq = e.Seq
	return e, nil
}

// Snapshot returns a copy of the queue in FIFO order.
func (q *FileQueue) Snapshot(context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out, nil
}

// Replace rewrites the queue as keep followed by every entry with a sequence
// number greater than through. Entries appended after a snapshot was taken
// are therefore never lost.
func (q *FileQueue) Replace(_ context.Context, through uint64, keep []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]Entry, 0, len(keep)+len(q.entries))
	next = append(next, keep...)
	for _, e := range q.entries {
		if e.Seq > through {
			next = append(next, e)
		}
	}

	if err := q.persist(next); err != nil {
		return err
	}
	q.entries = next
	return nil
}

// Len returns the number of queued entries.
func (q *FileQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// persist writes entries to disk. An empty queue removes the file.
// Must be called with q.mu held.
func (q *FileQueue) persist(entries []Entry) error {
	if len(entries) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fault.Storage(err, "failed to remove fallback file")
		}
		return nil
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode fallback queue")
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".tmp-*")
	if err != nil {
		return fault.Storage(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fault.Storage(err, "failed to write fallback file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fault.Storage(err, "failed to sync fallback file")
	}
	if err := tmp.Close(); err != nil {
		return fault.Storage(err, "failed to close fallback file")
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		return fault.Storage(err, "failed to replace fallback file")
	}
	return nil
}
