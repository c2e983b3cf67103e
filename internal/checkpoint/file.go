package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/news-ingest/internal/domain"
)

// FileStore keeps one JSON checkpoint file per source under a state
// directory. Writes go through a temp file followed by a rename, so a crash
// mid-write never leaves a truncated checkpoint behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the state directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sourceID string) string {
	return filepath.Join(s.dir, sourceID+".checkpoint.json")
}

func (s *FileStore) Load(ctx context.Context, sourceID string) (domain.Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path(sourceID))
	if os.IsNotExist(err) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("reading checkpoint for %s: %w", sourceID, err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("decoding checkpoint for %s: %w", sourceID, err)
	}
	return cp, true, nil
}

func (s *FileStore) Advance(ctx context.Context, sourceID, key string) error {
	cur, ok, err := s.Load(ctx, sourceID)
	if err != nil {
		return err
	}
	if ok && !keyLess(cur.LastKey, key) {
		return nil
	}
	cp := domain.Checkpoint{SourceID: sourceID, LastKey: key, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint for %s: %w", sourceID, err)
	}
	tmp, err := os.CreateTemp(s.dir, sourceID+".checkpoint-*")
	if err != nil {
		return fmt.Errorf("writing checkpoint for %s: %w", sourceID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing checkpoint for %s: %w", sourceID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing checkpoint for %s: %w", sourceID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(sourceID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing checkpoint for %s: %w", sourceID, err)
	}
	return nil
}
