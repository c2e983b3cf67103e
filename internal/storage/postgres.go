// Package storage persists ingested articles. Postgres is the system of
// record; a per-source CSV cache under the state dir provides best-effort
// secondary durability.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/news-ingest/internal/domain"
)

const articlesSchema = `
CREATE TABLE IF NOT EXISTS articles (
	id          BIGSERIAL PRIMARY KEY,
	source_url  TEXT NOT NULL UNIQUE,
	media_name  TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT '',
	publish_date TEXT NOT NULL DEFAULT '',
	body_text   TEXT NOT NULL,
	tags        TEXT[] NOT NULL DEFAULT '{}',
	word_count  INT NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	fetched_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_articles_media_name ON articles (media_name);
`

// PostgresStore handles interactions with the PostgreSQL database.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// InitSchema creates the articles table when it does not exist yet.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, articlesSchema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// FilterNew checks a batch of URLs against the articles table in a single
// query and reports, per URL, whether it has not been ingested before.
func (s *PostgresStore) FilterNew(ctx context.Context, urls []string) (map[string]bool, error) {
	fresh := make(map[string]bool, len(urls))
	for _, u := range urls {
		fresh[u] = true
	}
	if len(urls) == 0 {
		return fresh, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT source_url FROM articles WHERE source_url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("checking for known urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("checking for known urls: %w", err)
		}
		fresh[u] = false
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checking for known urls: %w", err)
	}
	return fresh, nil
}

// UpsertBatch writes a unit's articles in one pipelined batch. Records with
// no body text are dropped, conflicts on source_url are ignored, and the
// count of rows actually written is returned.
func (s *PostgresStore) UpsertBatch(ctx context.Context, records []domain.ArticleRecord) (int, error) {
	batch := &pgx.Batch{}
	queued := 0
	for _, r := range records {
		if r.WordCount == 0 || r.Body == "" {
			continue
		}
		batch.Queue(
			`INSERT INTO articles
			 (source_url, media_name, title, author, publish_date, body_text,
			  tags, word_count, language, fetched_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (source_url) DO NOTHING`,
			r.SourceURL, r.MediaName, r.Title, r.Author, r.PublishDate, r.Body,
			r.Tags, r.WordCount, r.Language, r.FetchedAt,
		)
		queued++
	}
	if queued == 0 {
		return 0, nil
	}

	br := s.db.SendBatch(ctx, batch)
	written := 0
	for i := 0; i < queued; i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return written, fmt.Errorf("writing article batch: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return written, fmt.Errorf("writing article batch: %w", err)
	}
	return written, nil
}

// CountByMedia returns how many articles each outlet has in the store.
func (s *PostgresStore) CountByMedia(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT media_name, COUNT(*) FROM articles GROUP BY media_name`)
	if err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var media string
		var n int64
		if err := rows.Scan(&media, &n); err != nil {
			return nil, fmt.Errorf("counting articles: %w", err)
		}
		counts[media] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}
	return counts, nil
}
