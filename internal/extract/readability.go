package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	positiveHint = regexp.MustCompile(`(?i)article|body|content|entry|main|page|post|text|blog|story|fact`)
	negativeHint = regexp.MustCompile(`(?i)banner|breadcrumb|combx|comment|community|cookie|disqus|footer|header|menu|meta|modal|nav|promo|related|share|shoutbox|sidebar|social|sponsor|subscribe|widget|\bads?\b`)
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
	atom.Select:   true,
	atom.Template: true,
	atom.Head:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Header: true,
	atom.Table: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figcaption: true,
}

// primaryText scores candidate containers by paragraph density and picks the
// best one, discounted by how much of its text is link text.
func primaryText(doc *html.Node) string {
	scores := make(map[*html.Node]float64)
	var order []*html.Node

	credit := func(n *html.Node, amount float64) {
		if n == nil || n.Type != html.ElementNode {
			return
		}
		if _, ok := scores[n]; !ok {
			scores[n] = baseScore(n)
			order = append(order, n)
		}
		scores[n] += amount
	}

	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return false
		}
		if n.DataAtom != atom.P && n.DataAtom != atom.Pre && n.DataAtom != atom.Td {
			return true
		}
		text := nodeText(n)
		length := runeLen(text)
		if length < minParagraphChars {
			return false
		}
		score := 1 + float64(strings.Count(text, ",")) + min(float64(length)/100, 3)
		credit(n.Parent, score)
		if n.Parent != nil {
			credit(n.Parent.Parent, score/2)
		}
		return false
	})

	var best *html.Node
	bestScore := 0.0
	for _, n := range order {
		s := scores[n] * (1 - linkDensity(n))
		if best == nil || s > bestScore {
			best, bestScore = n, s
		}
	}
	if best == nil {
		return ""
	}
	return nodeText(best)
}

func baseScore(n *html.Node) float64 {
	var s float64
	switch n.DataAtom {
	case atom.Article, atom.Main:
		s = 10
	case atom.Div:
		s = 5
	case atom.Pre, atom.Td, atom.Blockquote, atom.Section:
		s = 3
	case atom.Address, atom.Ol, atom.Ul, atom.Dl, atom.Dd, atom.Dt, atom.Li:
		s = -3
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Th:
		s = -5
	}
	hints := attr(n, "class") + " " + attr(n, "id")
	if positiveHint.MatchString(hints) {
		s += 25
	}
	if negativeHint.MatchString(hints) {
		s -= 25
	}
	return s
}

func linkDensity(n *html.Node) float64 {
	total := runeLen(nodeText(n))
	if total == 0 {
		return 0
	}
	links := 0
	walk(n, func(c *html.Node) bool {
		if c.DataAtom == atom.A {
			links += runeLen(nodeText(c))
			return false
		}
		return true
	})
	return float64(links) / float64(total)
}

// fallbackSelectors is probed in order when the scorer finds too little.
var fallbackSelectors = []selector{
	{tag: atom.Article},
	{tag: atom.Main},
	{attrKey: "role", attrVal: "main"},
	{class: "content"},
	{class: "main-content"},
	{class: "article-body"},
	{class: "post-content"},
	{class: "entry-content"},
	{id: "content"},
	{id: "main"},
	{tag: atom.Section},
}

type selector struct {
	tag     atom.Atom
	id      string
	class   string
	attrKey string
	attrVal string
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != 0 && n.DataAtom != s.tag {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	if s.class != "" && !hasClass(n, s.class) {
		return false
	}
	if s.attrKey != "" && attr(n, s.attrKey) != s.attrVal {
		return false
	}
	return true
}

func fallbackText(doc *html.Node) string {
	longest := ""
	for _, sel := range fallbackSelectors {
		walk(doc, func(n *html.Node) bool {
			if n.Type == html.ElementNode && skipped[n.DataAtom] {
				return false
			}
			if sel.matches(n) {
				if t := nodeText(n); runeLen(t) > runeLen(longest) {
					longest = t
				}
			}
			return runeLen(longest) <= fallbackGoodEnough
		})
		if runeLen(longest) > fallbackGoodEnough {
			break
		}
	}
	return longest
}

// nodeText renders the visible text below n with one line per block.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	renderText(n, &sb)
	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapseSpaces(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func renderText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
	case html.CommentNode:
		return
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, sb)
	}
	if block {
		sb.WriteByte('\n')
	}
}

// rawText concatenates text nodes without skipping, for <title> and friends.
func rawText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return sb.String()
}

// walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(doc *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
