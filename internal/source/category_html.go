package source

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

// categoryHTML walks a category's listing pages (/page/N/). The site
// serves 404 past the last page, which ends enumeration; that unit is not
// checkpointed. Navigation links (category, tag, author, pagination) are
// always skipped on top of the configured deny patterns.
type categoryHTML struct {
	src    config.SourceConfig
	base   *url.URL
	filter *linkFilter
}

var categoryPathDenies = []string{"/category/", "/tag/", "/author/", "/page/"}

func newCategoryHTML(src config.SourceConfig) (*categoryHTML, error) {
	base, err := url.Parse(src.ArchiveURL)
	if err != nil {
		return nil, fmt.Errorf("parse archive_url: %w", err)
	}
	filter, err := newLinkFilter(src.LinkAllow, src.LinkDeny)
	if err != nil {
		return nil, err
	}
	return &categoryHTML{src: src, base: base, filter: filter}, nil
}

// ArchiveURL expands {page}; the first page is the bare category URL.
func (c *categoryHTML) ArchiveURL(item domain.WorkItem) string {
	if item.Page == 1 {
		u := strings.Replace(c.src.ArchiveURL, "page/{page}/", "", 1)
		return strings.Replace(u, "page/{page}", "", 1)
	}
	return expandPageTokens(c.src.ArchiveURL, item.Page, 0)
}

func (c *categoryHTML) ParseArchive(res domain.FetchResult, item domain.WorkItem) ([]domain.CandidateLink, error) {
	if res.HTTPStatus == http.StatusNotFound {
		return nil, ErrEndOfArchive
	}
	if !res.OK() {
		return nil, &ArchiveFetchError{SourceID: c.src.ID, UnitKey: item.Key, Err: res.Err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &ParseError{SourceID: c.src.ID, UnitKey: item.Key, Err: err}
	}

	pageURL, err := url.Parse(res.URL)
	if err != nil {
		pageURL = c.base
	}
	siteRoot := pageURL.Scheme + "://" + pageURL.Host + "/"

	links := []domain.CandidateLink{}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		full, ok := absoluteURL(pageURL, href)
		if !ok || seen[full] {
			return
		}
		if !strings.HasPrefix(full, pageURL.Scheme+"://"+pageURL.Host) {
			return
		}
		if full == siteRoot || strings.TrimSuffix(full, "/") == strings.TrimSuffix(siteRoot, "/") {
			return
		}
		for _, segment := range categoryPathDenies {
			if strings.Contains(full, segment) {
				return
			}
		}
		if !c.filter.Match(full) {
			return
		}
		seen[full] = true
		links = append(links, domain.CandidateLink{
			SourceID: c.src.ID,
			UnitKey:  item.Key,
			URL:      full,
			Title:    trimmedText(s),
		})
	})
	return links, nil
}
