package source

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

// Below this many words the inline body is considered broken and the
// JSON-LD articleBody is preferred.
const minInlineWordCount = 30

// lineFallbackWordCount triggers the line-based second pass when the
// paragraph scan came back too thin.
const lineFallbackWordCount = 80

// defaultBodySelectors are tried in order when a source configures no body
// selector. They cover the common article containers.
var defaultBodySelectors = []string{
	"div.articleBody",
	"div.article-content",
	"div.story-content",
	"article",
	"main",
}

// bylinePrefixes mark byline and timestamp lines that leak into bodies.
var bylinePrefixes = []string{"Updated:", "Published:", "Written by", "Edited by"}

// ArticleExtractor builds an ArticleRecord from a fetched article page
// using the source's selectors, with meta-tag and JSON-LD fallbacks.
type ArticleExtractor struct {
	src config.SourceConfig
}

func NewArticleExtractor(src config.SourceConfig) *ArticleExtractor {
	return &ArticleExtractor{src: src}
}

// Extract parses an article page. Structural failure returns a ParseError;
// thin or empty content is not an error here, the caller drops records
// with a zero word count.
func (e *ArticleExtractor) Extract(link domain.CandidateLink, body []byte, fetchedAt time.Time) (domain.ArticleRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ArticleRecord{}, &ParseError{SourceID: e.src.ID, UnitKey: link.UnitKey, Err: err}
	}

	rec := domain.ArticleRecord{
		SourceURL: link.URL,
		MediaName: e.src.MediaName,
		Language:  e.src.Language,
		FetchedAt: fetchedAt,
	}

	rec.Title = e.extractTitle(doc, link)
	rec.Author = e.extractAuthor(doc)
	rec.PublishDate = e.extractDate(doc, link)
	rec.Tags = e.extractTags(doc)
	rec.Body = e.extractBody(doc, rec.Title)

	if WordCount(rec.Body) < minInlineWordCount {
		e.applyJSONLD(doc, &rec)
	}

	rec.Body = CleanText(rec.Body, e.src.RemovePhrase)
	rec.WordCount = WordCount(rec.Body)
	return rec, nil
}

func (e *ArticleExtractor) extractTitle(doc *goquery.Document, link domain.CandidateLink) string {
	selector := e.src.Selectors.Title
	if selector == "" {
		selector = "h1"
	}
	if title := trimmedText(doc.Find(selector).First()); title != "" {
		return title
	}
	return strings.TrimSpace(link.Title)
}

func (e *ArticleExtractor) extractAuthor(doc *goquery.Document) string {
	selector := e.src.Selectors.Author
	if selector == "" {
		selector = `a[href*="/author/"]`
	}
	return trimmedText(doc.Find(selector).First())
}

func (e *ArticleExtractor) extractDate(doc *goquery.Document, link domain.CandidateLink) string {
	if selector := e.src.Selectors.PublishDate; selector != "" {
		sel := doc.Find(selector).First()
		if raw, ok := sel.Attr("datetime"); ok && raw != "" {
			return NormalizeDate(raw)
		}
		if raw := trimmedText(sel); raw != "" {
			return NormalizeDate(raw)
		}
	}
	if raw, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok && raw != "" {
		return NormalizeDate(raw)
	}
	timeTag := doc.Find("time").First()
	if raw, ok := timeTag.Attr("datetime"); ok && raw != "" {
		return NormalizeDate(raw)
	}
	if raw := trimmedText(timeTag); raw != "" {
		return NormalizeDate(raw)
	}
	if link.PublishedHint != "" {
		return NormalizeDate(link.PublishedHint)
	}
	return ""
}

func (e *ArticleExtractor) extractTags(doc *goquery.Document) []string {
	if selector := e.src.Selectors.Tags; selector != "" {
		var tags []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if tag := trimmedText(s); tag != "" {
				tags = append(tags, tag)
			}
		})
		if len(tags) > 0 {
			return tags
		}
	}

	raw, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content")
	if !ok || raw == "" {
		raw, _ = doc.Find(`meta[property="article:tag"]`).First().Attr("content")
	}
	if raw == "" {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (e *ArticleExtractor) extractBody(doc *goquery.Document, title string) string {
	sel := e.findBody(doc)
	if sel == nil {
		return ""
	}

	Sanitize(sel, e.src.Selectors.Exclude)
	parts := ParagraphText(sel)

	if WordCount(strings.Join(parts, " ")) < lineFallbackWordCount {
		parts = appendLines(parts, sel, title)
	}
	return strings.Join(parts, "\n\n")
}

func (e *ArticleExtractor) findBody(doc *goquery.Document) *goquery.Selection {
	if selector := e.src.Selectors.Body; selector != "" {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	for _, selector := range defaultBodySelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return nil
}

// appendLines is the second extraction pass: walk the container's raw text
// line by line, keeping prose lines the paragraph scan missed.
func appendLines(parts []string, sel *goquery.Selection, title string) []string {
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		seen[p] = true
	}
	for _, line := range strings.Split(sel.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || line == title || seen[line] {
			continue
		}
		if hasBylinePrefix(line) || isSkippable(line) {
			continue
		}
		if len(strings.Fields(line)) < 4 {
			continue
		}
		seen[line] = true
		parts = append(parts, line)
	}
	return parts
}

func hasBylinePrefix(line string) bool {
	for _, prefix := range bylinePrefixes {
		if strings.Contains(line, prefix) {
			return true
		}
	}
	return false
}

// applyJSONLD fills missing fields from the page's structured data.
func (e *ArticleExtractor) applyJSONLD(doc *goquery.Document, rec *domain.ArticleRecord) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if list, ok := payload.([]any); ok {
			if len(list) == 0 {
				return true
			}
			payload = list[0]
		}
		obj, ok := payload.(map[string]any)
		if !ok {
			return true
		}

		if body, ok := obj["articleBody"].(string); ok && body != "" {
			rec.Body = body
		}
		if rec.Title == "" {
			if headline, ok := obj["headline"].(string); ok {
				rec.Title = strings.TrimSpace(headline)
			}
		}
		if rec.Author == "" {
			rec.Author = jsonLDAuthor(obj["author"])
		}
		if rec.PublishDate == "" {
			if published, ok := obj["datePublished"].(string); ok && published != "" {
				rec.PublishDate = NormalizeDate(published)
			}
		}
		return rec.Body == ""
	})
}

func jsonLDAuthor(v any) string {
	switch author := v.(type) {
	case map[string]any:
		if name, ok := author["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	case []any:
		var names []string
		for _, entry := range author {
			if m, ok := entry.(map[string]any); ok {
				if name, ok := m["name"].(string); ok && name != "" {
					names = append(names, strings.TrimSpace(name))
				}
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

var textualDateLayouts = []string{
	"Mon, 2 Jan 2006 3:04 PM (MST)",
	"Mon, 2 Jan 2006 3:04 PM MST",
	"2 Jan 2006 3:04 PM (MST)",
	"2 Jan 2006 3:04 PM MST",
}

var bareDateLayouts = []string{
	"Mon, 2 Jan 2006 3:04 PM",
	"2 Jan 2006 3:04 PM",
}

// NormalizeDate maps the publish date formats seen across sources to
// YYYY-MM-DD. Inputs it cannot parse come back unchanged.
func NormalizeDate(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return text
	}

	if normalized, ok := normalizeISODate(text); ok {
		return normalized
	}

	for _, layout := range textualDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.Format("2006-01-02")
		}
	}

	cleaned := strings.ReplaceAll(text, "(IST)", "")
	cleaned = strings.ReplaceAll(cleaned, "IST", "")
	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ",")
	for _, layout := range bareDateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return text
}

func normalizeISODate(text string) (string, bool) {
	candidate := text
	if !strings.Contains(candidate, "T") && strings.Contains(candidate, " ") &&
		len(candidate) >= 10 && strings.Count(candidate[:10], "-") == 2 {
		candidate = strings.Replace(candidate, " ", "T", 1)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
