package source

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

// archiveHTML walks daily date-path archive pages. The URL template names
// the date with {yyyy}/{mm}/{dd} style tokens, or {starttime} for sites
// that index archive days from a fixed epoch.
type archiveHTML struct {
	src    config.SourceConfig
	base   *url.URL
	filter *linkFilter
}

func newArchiveHTML(src config.SourceConfig) (*archiveHTML, error) {
	base, err := url.Parse(src.ArchiveURL)
	if err != nil {
		return nil, fmt.Errorf("parse archive_url: %w", err)
	}
	filter, err := newLinkFilter(src.LinkAllow, src.LinkDeny)
	if err != nil {
		return nil, err
	}
	return &archiveHTML{src: src, base: base, filter: filter}, nil
}

func (a *archiveHTML) ArchiveURL(item domain.WorkItem) string {
	return expandDateTokens(a.src.ArchiveURL, item.Date)
}

func (a *archiveHTML) ParseArchive(res domain.FetchResult, item domain.WorkItem) ([]domain.CandidateLink, error) {
	if !res.OK() {
		return nil, &ArchiveFetchError{SourceID: a.src.ID, UnitKey: item.Key, Err: res.Err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &ParseError{SourceID: a.src.ID, UnitKey: item.Key, Err: err}
	}

	pageURL, err := url.Parse(res.URL)
	if err != nil {
		pageURL = a.base
	}

	links := []domain.CandidateLink{}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		full, ok := absoluteURL(pageURL, href)
		if !ok || !a.filter.Match(full) || seen[full] {
			return
		}
		seen[full] = true
		links = append(links, domain.CandidateLink{
			SourceID: a.src.ID,
			UnitKey:  item.Key,
			URL:      full,
			Title:    trimmedText(s),
		})
	})
	return links, nil
}
