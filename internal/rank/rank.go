// Package rank orders search candidates by domain trust and topical fit.
//
// The scorer is a hand-tuned additive heuristic. It must stay deterministic:
// every term below is a fixed constant so a score can be explained line by
// line.
package rank

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/ashureev/carenav/internal/domain"
)

// authoritativeHosts are registrable domains that earn the trust boost.
var authoritativeHosts = []string{
	"who.int",
	"cdc.gov",
	"nih.gov",
	"medlineplus.gov",
	"nhs.uk",
	"unicef.org",
	"acog.org",
	"healthychildren.org",
	"mayoclinic.org",
	"kidshealth.org",
}

// lowValueSubhosts are prefixes that turn a trusted domain into fundraising
// or support pages.
var lowValueSubhosts = []string{"donate.", "help.", "shop.", "give.", "store.", "support."}

var (
	factPathRe      = regexp.MustCompile(`(?i)/(fact-?sheets?|health-topics|topics?|conditions|diseases?|factsheets?)(/|$)`)
	guidelinePathRe = regexp.MustCompile(`(?i)/(guidelines?|recommendations?)(/|$)`)
	publicationRe   = regexp.MustCompile(`(?i)/(publications?|resources?|reports?)(/|$)`)
	lowValuePathRe  = regexp.MustCompile(`(?i)/(press|press-releases?|news|news-room/detail|donate|campaigns?|appeals?|events?)(/|$)`)

	goodTitleRe = regexp.MustCompile(`(?i)\b(guidelines?|fact ?sheets?|recommendations)\b`)
	badTitleRe  = regexp.MustCompile(`(?i)\b(press release|appeal|donate|donation|urgent)\b`)
)

// vocabulary groups terms by topic category. A category scores when it shows
// up both in the question and in the candidate's title or URL.
var vocabulary = map[string][]string{
	"breastfeeding": {"breastfeed", "breast milk", "lactation", "latch", "nursing"},
	"newborn":       {"newborn", "infant", "baby", "jaundice", "umbilical"},
	"pregnancy":     {"pregnan", "prenatal", "antenatal", "trimester", "fetal"},
	"contraception": {"contracept", "birth control", "family planning", "iud", "condom"},
	"labour":        {"labour", "labor", "childbirth", "delivery", "caesarean", "cesarean"},
	"postpartum":    {"postpartum", "postnatal", "after birth"},
	"mental":        {"depression", "anxiety", "mental health", "baby blues"},
	"nutrition":     {"nutrition", "diet", "vitamin", "folic", "iron", "anaemia", "anemia"},
	"immunization":  {"vaccin", "immuniz", "immunis"},
	"medicines":     {"medicine", "medication", "paracetamol", "ibuprofen", "antibiotic"},
}

// categories is the fixed iteration order over vocabulary.
var categories = func() []string {
	keys := make([]string, 0, len(vocabulary))
	for k := range vocabulary {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}()

// Score returns the additive trust and relevance score of c for query.
func Score(c domain.SearchCandidate, query string) int {
	score := 0

	u, err := url.Parse(c.URL)
	host, path := "", ""
	if err == nil {
		host = strings.ToLower(u.Hostname())
		path = u.EscapedPath()
	}

	if domainOf(host) != "" {
		if hasLowValuePrefix(host) {
			score -= 3
		} else {
			score += 3
		}
	}

	factPath := factPathRe.MatchString(path)
	if factPath {
		score += 4
	}
	if guidelinePathRe.MatchString(path) {
		score += 3
	}
	if publicationRe.MatchString(path) {
		score += 2
	}
	if lowValuePathRe.MatchString(path) {
		score -= 4
	}
	if pathDepth(path) <= 1 {
		score--
	}

	q := strings.ToLower(query)
	target := strings.ToLower(c.Title + " " + c.URL)
	matched := false
	for _, cat := range categories {
		terms := vocabulary[cat]
		if containsAny(q, terms) && containsAny(target, terms) {
			score += 3
			matched = true
		}
	}
	if matched && factPath {
		score += 4
	}

	if goodTitleRe.MatchString(c.Title) {
		score += 2
	}
	if badTitleRe.MatchString(c.Title) {
		score -= 3
	}
	return score
}

// Rank scores every candidate and sorts descending. Ties keep upstream order.
func Rank(candidates []domain.SearchCandidate, query string) []domain.SearchCandidate {
	out := make([]domain.SearchCandidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = Score(out[i], query)
	}
	slices.SortStableFunc(out, func(a, b domain.SearchCandidate) int {
		return b.Score - a.Score
	})
	return out
}

func domainOf(host string) string {
	for _, d := range authoritativeHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d
		}
	}
	return ""
}

func hasLowValuePrefix(host string) bool {
	for _, p := range lowValueSubhosts {
		if strings.HasPrefix(host, p) {
			return true
		}
	}
	return false
}

func pathDepth(path string) int {
	n := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
