// Package history persists chat transcripts and serves them over the
// chat-history REST surface.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/panoptic/traceview/internal/conversation"
)

// ErrSessionNotFound is returned when a session ID matches no stored transcript.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is a summary row for a stored session.
type SessionInfo struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store provides access to persisted chat transcripts.
type Store interface {
	// Get returns the transcript for a session, or ErrSessionNotFound.
	Get(ctx context.Context, id string) ([]conversation.Message, error)
	// Put replaces the transcript for a session.
	Put(ctx context.Context, id string, msgs []conversation.Message) error
	// Append adds messages to the end of a session's transcript, creating
	// the session if needed.
	Append(ctx context.Context, id string, msgs ...conversation.Message) error
	// List returns summaries for all stored sessions, newest first.
	List(ctx context.Context) ([]SessionInfo, error)
}

const fileExt = ".json.gz"

// FileStore keeps one gzip-compressed JSON file per session in a directory.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Get returns the transcript for a session, or ErrSessionNotFound.
func (fs *FileStore) Get(_ context.Context, id string) ([]conversation.Message, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.read(id)
}

func (fs *FileStore) read(id string) ([]conversation.Message, error) {
	f, err := os.Open(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	var msgs []conversation.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	return msgs, nil
}

// Put replaces the transcript for a session.
func (fs *FileStore) Put(_ context.Context, id string, msgs []conversation.Message) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.write(id, msgs)
}

func (fs *FileStore) write(id string, msgs []conversation.Message) error {
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("creating transcript dir: %w", err)
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	// Write whole files then rename so readers never see a torn gzip stream.
	tmp, err := os.CreateTemp(fs.dir, "."+sanitizeID(id)+"-*")
	if err != nil {
		return fmt.Errorf("creating transcript file: %w", err)
	}
	zw := gzip.NewWriter(tmp)
	if _, err := zw.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path(id)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}

// Append adds messages to the end of a session's transcript.
func (fs *FileStore) Append(_ context.Context, id string, msgs ...conversation.Message) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	existing, err := fs.read(id)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return fs.write(id, append(existing, msgs...))
}

// List returns summaries for all stored sessions, newest first.
func (fs *FileStore) List(_ context.Context) ([]SessionInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	var infos []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), fileExt)
		msgs, err := fs.read(id)
		if err != nil {
			continue
		}
		info := SessionInfo{ID: id, MessageCount: len(msgs)}
		if fi, err := e.Info(); err == nil {
			info.UpdatedAt = fi.ModTime()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, sanitizeID(id)+fileExt)
}

// sanitizeID maps a session ID to a safe file name component.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

// Ensure FileStore satisfies Store.
var _ Store = (*FileStore)(nil)
