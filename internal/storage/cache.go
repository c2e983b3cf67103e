package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/user/news-ingest/internal/domain"
)

var cacheHeader = []string{
	"source_url", "media_name", "title", "author", "publish_date",
	"tags", "word_count", "language", "fetched_at", "body_text",
}

// CSVCache mirrors committed articles into one append-only CSV per source.
// It is a best-effort secondary sink: callers log append failures and move
// on, Postgres remains the system of record.
type CSVCache struct {
	dir string
}

func NewCSVCache(dir string) (*CSVCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &CSVCache{dir: dir}, nil
}

func (c *CSVCache) path(sourceID string) string {
	return filepath.Join(c.dir, sourceID+".articles.csv")
}

// Append writes the records to the source's cache file, emitting the header
// row the first time the file is created.
func (c *CSVCache) Append(sourceID string, records []domain.ArticleRecord) error {
	if len(records) == 0 {
		return nil
	}

	f, err := os.OpenFile(c.path(sourceID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening cache for %s: %w", sourceID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("opening cache for %s: %w", sourceID, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(cacheHeader); err != nil {
			return fmt.Errorf("appending cache for %s: %w", sourceID, err)
		}
	}
	for _, r := range records {
		row := []string{
			r.SourceURL,
			r.MediaName,
			r.Title,
			r.Author,
			r.PublishDate,
			strings.Join(r.Tags, "|"),
			strconv.Itoa(r.WordCount),
			r.Language,
			r.FetchedAt.Format(time.RFC3339),
			r.Body,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("appending cache for %s: %w", sourceID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("appending cache for %s: %w", sourceID, err)
	}
	return nil
}
