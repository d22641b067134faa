// Package archive keeps the text of the last completed news summary so it
// can be shown again without re-running the stream.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"
)

const lastSummaryFile = "last-summary.json"

// Record is a stored summary.
type Record struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// Store persists summaries to a state directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore constructs a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Save replaces the stored summary with text.
func (s *Store) Save(ctx context.Context, text string) (Record, error) {
	log := pslog.Ctx(ctx).With("state_dir", s.dir)
	record := Record{ID: uuid.NewString(), Text: text, SavedAt: s.now().UTC()}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		log.Warn("summary save failed", "err", err)
		return Record{}, err
	}
	if err := writeFileAtomic(s.path(), data); err != nil {
		log.Warn("summary save failed", "err", err)
		return Record{}, err
	}
	log.Debug("summary saved", "id", record.ID, "bytes", len(text))
	return record, nil
}

// Load returns the stored summary. ok is false when nothing has been saved.
func (s *Store) Load(ctx context.Context) (Record, bool, error) {
	log := pslog.Ctx(ctx).With("state_dir", s.dir)
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("summary load miss")
			return Record{}, false, nil
		}
		log.Warn("summary load failed", "err", err)
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		log.Warn("summary load failed", "err", err)
		return Record{}, false, err
	}
	log.Debug("summary load ok", "id", record.ID)
	return record, true, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, lastSummaryFile)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "summary-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
