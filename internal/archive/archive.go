// Package archive stores finished meeting results as one JSON file per
// meeting, keyed by the meeting id.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"llm-meeting/internal/logging"
	"llm-meeting/internal/meeting"
)

// ErrNotFound is returned by Get for an unknown or malformed id.
var ErrNotFound = errors.New("meeting not found")

// Metadata is the listing form of an archived meeting.
type Metadata struct {
	ID                string        `json:"id"`
	Topic             string        `json:"topic"`
	StartedAt         time.Time     `json:"started_at"`
	Phase             meeting.Phase `json:"phase"`
	ParticipantsCount int           `json:"participants_count"`
	EntryCount        int           `json:"entry_count"`
	TotalTokens       int           `json:"total_tokens_used"`
}

// Store keeps meeting results in a directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore returns a store rooted at dir. The directory is created on first
// save.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logging.OrNop(logger)}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes result. A result without an id is given a fresh uuid.
func (s *Store) Save(result *meeting.Result) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if _, err := uuid.Parse(result.ID); err != nil {
		return fmt.Errorf("invalid meeting id %q: %w", result.ID, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal meeting result: %w", err)
	}
	if err := os.WriteFile(s.path(result.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write meeting result: %w", err)
	}

	s.logger.Info("meeting archived", zap.String("meeting_id", result.ID), zap.String("dir", s.dir))
	return nil
}

// Get loads one result. Ids must be uuids so they cannot escape the
// archive directory.
func (s *Store) Get(id string) (*meeting.Result, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meeting result: %w", err)
	}

	var result meeting.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse meeting result %s: %w", id, err)
	}
	return &result, nil
}

// List returns metadata for every archived meeting, newest first.
// Unreadable files are skipped.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	meetings := make([]Metadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable meeting file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var r meeting.Result
		if err := json.Unmarshal(data, &r); err != nil {
			s.logger.Warn("skipping invalid meeting file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		meetings = append(meetings, Metadata{
			ID:                r.ID,
			Topic:             r.Settings.Topic,
			StartedAt:         r.StartedAt,
			Phase:             r.Phase,
			ParticipantsCount: r.ParticipantsCount,
			EntryCount:        len(r.Transcript),
			TotalTokens:       r.TotalTokens,
		})
	}

	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].StartedAt.After(meetings[j].StartedAt)
	})
	return meetings, nil
}
