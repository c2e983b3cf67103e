package source

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateTags are removed from article bodies before text extraction.
const boilerplateTags = "script, style, nav, header, footer, aside, iframe, noscript"

// adClassKeywords flag promo chrome by class attribute substring.
var adClassKeywords = []string{"advertisement", "promo", "social", "share", "related"}

// skipPhrases drop the call-to-action lines every site injects into
// article markup, in English and Hindi.
var skipPhrases = []string{
	"advertisement",
	"also read",
	"read more",
	"subscribe",
	"follow us",
	"download app",
	"ये भी पढ़ें",
	"यह भी पढ़ें",
	"इसे भी पढ़ें",
	"खबरें और भी",
}

var (
	residualTagRe = regexp.MustCompile(`<[^>]+>`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// minParagraphChars filters out stray labels and picture captions.
const minParagraphChars = 15

// Sanitize strips boilerplate markup from a selection in place: script,
// style and layout chrome tags plus any node whose class looks like ad or
// share furniture. extraExcludes are per-source selectors removed as well.
// Never errors; malformed markup just yields less text.
func Sanitize(sel *goquery.Selection, extraExcludes []string) {
	sel.Find(boilerplateTags).Remove()
	for _, selector := range extraExcludes {
		sel.Find(selector).Remove()
	}
	sel.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		class = strings.ToLower(class)
		for _, keyword := range adClassKeywords {
			if strings.Contains(class, keyword) {
				s.Remove()
				return
			}
		}
		for _, token := range strings.Fields(class) {
			if token == "ad" || token == "ads" || strings.HasPrefix(token, "ad-") || strings.HasPrefix(token, "ads-") {
				s.Remove()
				return
			}
		}
	})
}

// ParagraphText collects paragraph and list-item text from a sanitized
// selection, skipping short fragments and known promo lines, de-duplicated
// in order.
func ParagraphText(sel *goquery.Selection) []string {
	var parts []string
	seen := make(map[string]bool)
	sel.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		text := trimmedText(s)
		if len(text) <= minParagraphChars {
			return
		}
		if isSkippable(text) || seen[text] {
			return
		}
		seen[text] = true
		parts = append(parts, text)
	})
	return parts
}

func isSkippable(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range skipPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// CleanText normalizes extracted article text: removes the per-source
// boilerplate phrases case-insensitively, strips residual tags and control
// characters, and collapses whitespace while keeping paragraph breaks.
// Deterministic and total.
func CleanText(text string, phrases []string) string {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(phrase))
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "")
	}

	text = residualTagRe.ReplaceAllString(text, "")
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	text = spaceRunRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func trimmedText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
