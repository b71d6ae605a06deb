// Package carryover persists the unresolved issues of a meeting so a later
// meeting can pick them up as context.
package carryover

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"llm-meeting/internal/logging"
)

// TimestampLayout formats CreatedAt and file names.
const TimestampLayout = "20060102_150405"

const filePrefix = "context_"

var (
	ErrNotFound  = errors.New("carry-over not found")
	ErrCorrupted = errors.New("carry-over file is corrupted")
)

// Record is the on-disk form of one carry-over.
type Record struct {
	Topic            string `json:"topic"`
	UnresolvedIssues string `json:"unresolved_issues"`
	CreatedAt        string `json:"created_at"`
}

// Summary is a listing entry.
type Summary struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	CreatedAt   string `json:"created_at"`
	DisplayName string `json:"display_name"`
}

// Store keeps one JSON file per carry-over in a directory.
type Store struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewStore returns a store rooted at dir. The directory is created lazily.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, now: time.Now, logger: logging.OrNop(logger)}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a carry-over and returns its id.
// Blank issues are not saved; Save then returns an empty id and no error.
func (s *Store) Save(topic, issues string) (string, error) {
	if strings.TrimSpace(issues) == "" {
		s.logger.Info("no unresolved issues, carry-over skipped")
		return "", nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create carry-over directory: %w", err)
	}

	stamp := s.now().Format(TimestampLayout)
	data, err := json.MarshalIndent(Record{Topic: topic, UnresolvedIssues: issues, CreatedAt: stamp}, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal carry-over: %w", err)
	}

	id := filePrefix + stamp
	f, err := os.OpenFile(s.path(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		// Two saves within the same second.
		id = id + "_" + uuid.NewString()[:8]
		f, err = os.OpenFile(s.path(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create carry-over file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write carry-over file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write carry-over file: %w", err)
	}

	s.logger.Info("carry-over saved", zap.String("id", id), zap.String("path", s.path(id)))
	return id, nil
}

// List returns saved carry-overs, newest first. Corrupted files are
// skipped, or deleted when removeInvalid is set.
func (s *Store) List(removeInvalid bool) ([]Summary, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		rec, err := s.read(id)
		if err != nil {
			s.logger.Warn("skipping invalid carry-over", zap.String("id", id), zap.Error(err))
			if removeInvalid {
				s.remove(id)
			}
			continue
		}
		summaries = append(summaries, Summary{
			ID:          id,
			Topic:       rec.Topic,
			CreatedAt:   rec.CreatedAt,
			DisplayName: fmt.Sprintf("[%s] %s", rec.CreatedAt, rec.Topic),
		})
	}
	return summaries, nil
}

// Load returns the record for id. The ".json" suffix is optional.
// A corrupted file is deleted and reported as ErrCorrupted.
func (s *Store) Load(id string) (*Record, error) {
	id = strings.TrimSuffix(id, ".json")
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}

	rec, err := s.read(id)
	if errors.Is(err, ErrCorrupted) {
		s.remove(id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Cleanup deletes every corrupted file and returns their names.
func (s *Store) Cleanup() ([]string, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		if _, err := s.read(id); errors.Is(err, ErrCorrupted) {
			s.remove(id)
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		s.logger.Info("removed corrupted carry-overs", zap.Strings("files", removed))
	}
	return removed, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// names lists the JSON files in the directory, newest first.
func (s *Store) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read carry-over directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *Store) read(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read carry-over file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupted, id, err)
	}
	return &rec, nil
}

func (s *Store) remove(id string) {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove carry-over file", zap.String("id", id), zap.Error(err))
	}
}

// validID rejects ids that would escape the storage directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id && !strings.ContainsAny(id, `/\`)
}
