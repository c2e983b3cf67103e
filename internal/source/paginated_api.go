package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

// paginatedAPI walks a JSON listing API page by page. Each page is an
// array of article objects; the article URL is assembled from the object's
// slug and id through the configured template. A run of empty pages marks
// the end of the archive.
type paginatedAPI struct {
	src config.SourceConfig
}

func newPaginatedAPI(src config.SourceConfig) (*paginatedAPI, error) {
	if !strings.Contains(src.ArticleURL, "{slug}") && !strings.Contains(src.ArticleURL, "{id}") {
		return nil, fmt.Errorf("article_url template %q names neither {slug} nor {id}", src.ArticleURL)
	}
	return &paginatedAPI{src: src}, nil
}

func (p *paginatedAPI) ArchiveURL(item domain.WorkItem) string {
	return expandPageTokens(p.src.ArchiveURL, item.Page, p.src.API.PageSize)
}

func (p *paginatedAPI) EmptyPageLimit() int {
	return p.src.API.EmptyPageLimit
}

func (p *paginatedAPI) ParseArchive(res domain.FetchResult, item domain.WorkItem) ([]domain.CandidateLink, error) {
	if !res.OK() {
		return nil, &ArchiveFetchError{SourceID: p.src.ID, UnitKey: item.Key, Err: res.Err}
	}

	dec := json.NewDecoder(bytes.NewReader(res.Body))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, &ParseError{SourceID: p.src.ID, UnitKey: item.Key, Err: err}
	}

	links := []domain.CandidateLink{}
	seen := make(map[string]bool)
	for _, entry := range items {
		id := stringField(entry, "id")
		slug := stringField(entry, "webTitleUrl")
		if id == "" || slug == "" {
			continue
		}
		articleURL := strings.NewReplacer("{slug}", slug, "{id}", id).Replace(p.src.ArticleURL)
		if seen[articleURL] {
			continue
		}
		seen[articleURL] = true
		links = append(links, domain.CandidateLink{
			SourceID:      p.src.ID,
			UnitKey:       item.Key,
			URL:           articleURL,
			Title:         stringField(entry, "headline"),
			Summary:       stringField(entry, "summary"),
			Section:       joinNonEmpty("/", stringField(entry, "category"), stringField(entry, "subcategory")),
			PublishedHint: stringField(entry, "modDate"),
		})
	}
	return links, nil
}

// stringField reads a field that the API may serve as a string or number.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
