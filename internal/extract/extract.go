// Package extract turns fetched HTML into readable plain text.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultMaxChars is used when the caller does not ask for a limit.
	DefaultMaxChars = 50000
	// MaxCharsCeiling is the hard upper bound on returned text.
	MaxCharsCeiling = 200000
	// DefaultMinChars is the shortest text considered a usable article.
	DefaultMinChars = 200

	primaryMinChars    = 400
	fallbackGoodEnough = 500
	minParagraphChars  = 25
)

// ErrInsufficientText is returned when no strategy yields enough text.
var ErrInsufficientText = errors.New("insufficient extractable text")

// Options tunes a single extraction.
type Options struct {
	MaxChars int
	MinChars int
}

// Result is the extracted article.
type Result struct {
	Title     string
	Text      string
	CharCount int
	Truncated bool
}

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<!--.*?-->`),
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`),
	regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript\s*>`),
	regexp.MustCompile(`(?is)<svg\b[^>]*>.*?</svg\s*>`),
	regexp.MustCompile(`(?is)<video\b[^>]*>.*?</video\s*>`),
	regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`),
	regexp.MustCompile(`(?is)<(img|video|iframe|source|picture)\b[^>]*/?>`),
}

// StripNoise textually removes executable and binary-laden elements before
// the document is parsed.
func StripNoise(raw string) string {
	for _, re := range noisePatterns {
		raw = re.ReplaceAllString(raw, " ")
	}
	return raw
}

// ClampMaxChars applies the default and the hard ceiling to a caller limit.
func ClampMaxChars(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxChars
	case n > MaxCharsCeiling:
		return MaxCharsCeiling
	default:
		return n
	}
}

// Extract returns the main content of rawHTML. It tries a readability-style
// scorer first, then a fixed list of content containers, then the whole body.
func Extract(rawHTML, baseURL string, opts Options) (Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}

	minChars := opts.MinChars
	if minChars <= 0 {
		minChars = DefaultMinChars
	}

	res := Result{Title: documentTitle(doc)}
	if res.Title == "" {
		if u, err := url.Parse(baseURL); err == nil {
			res.Title = u.Hostname()
		}
	}

	text := primaryText(doc)
	if runeLen(text) < primaryMinChars {
		if fb := fallbackText(doc); runeLen(fb) > runeLen(text) {
			text = fb
		}
	}
	if runeLen(text) < minChars {
		if body := findFirst(doc, atom.Body); body != nil {
			if bt := nodeText(body); runeLen(bt) > runeLen(text) {
				text = bt
			}
		}
	}

	if runeLen(text) < minChars {
		return res, ErrInsufficientText
	}

	res.Text, res.Truncated = truncateRunes(text, ClampMaxChars(opts.MaxChars))
	res.CharCount = runeLen(res.Text)
	return res, nil
}

func documentTitle(doc *html.Node) string {
	var og, title, h1 string
	walk(doc, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Meta:
			if og == "" && (attr(n, "property") == "og:title" || attr(n, "name") == "og:title") {
				og = collapseSpaces(attr(n, "content"))
			}
		case atom.Title:
			if title == "" {
				title = collapseSpaces(rawText(n))
			}
		case atom.H1:
			if h1 == "" {
				h1 = collapseSpaces(rawText(n))
			}
		}
		return true
	})
	switch {
	case og != "":
		return og
	case title != "":
		return title
	default:
		return h1
	}
}

func truncateRunes(s string, limit int) (string, bool) {
	if runeLen(s) <= limit {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == limit {
			return s[:pos], true
		}
		i++
	}
	return s, false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
