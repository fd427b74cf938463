package chat

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ashureev/carenav/internal/domain"
	"github.com/ashureev/carenav/internal/gateway"
)

// crisisRe is the router's own emergency lexicon. It overlaps with the
// classifier on purpose and is checked before anything else.
var crisisRe = regexp.MustCompile(`(?i)\b(` +
	`suicid\w*|kill myself|end my life|self[- ]?harm|overdos\w*|` +
	`bleeding (heavily|a lot|badly|won'?t stop)|heavy bleeding|haemorrhag\w*|hemorrhag\w*|` +
	`not breathing|stopped breathing|can'?t breathe|turning blue|` +
	`seizure|convulsing|(baby|she|he|they)('s|\s+is|\s+are)?\s+(fitting|having (a )?fits?)|unconscious|` +
	`(has|have|just) collapsed|collapsed and|` +
	`cord (is )?(prolapse|coming out)|eclampsia|` +
	`medical emergency|(this|it)('s| is) an emergency|call (911|999|112|an ambulance)` +
	`)\b`)

var socialCheckInRe = regexp.MustCompile(`(?i)^\s*((hi|hey|hello)[,!.\s]*)?(how are (you|u|ya)( doing| today)?|how'?s it going|how are things|how do you do|you ok|are you ok(ay)?)\s*[?!.]*\s*$`)

var (
	consentYesRe = regexp.MustCompile(`(?i)^\s*(y|yes|yeah|yea|yep|yup|sure|ok|okay|please|please do|go ahead|do it|sounds good|of course|absolutely|alright|fine)\b[\s,.!]*(please|thanks|thank you|go ahead|do it)?[\s.!]*$`)
	consentNoRe  = regexp.MustCompile(`(?i)^\s*(n|no|nope|nah|no thanks|no thank you|not now|don'?t|do not|never mind|nevermind|skip( it)?|cancel)\b[\s,.!]*(thanks|thank you)?[\s.!]*$`)
)

var pickRe = regexp.MustCompile(`(?i)^\s*(?:(?:#|no\.?|number|option|result|link|the)\s*)?(\d{1,2}|first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th)(?:\s+(?:one|result|link|option|please))?\s*[.!]?\s*$`)

var ordinals = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
	"fifth": 5, "5th": 5,
}

type consentAnswer int

const (
	consentAmbiguous consentAnswer = iota
	consentYes
	consentNo
)

func parseConsent(text string) consentAnswer {
	switch {
	case consentYesRe.MatchString(text):
		return consentYes
	case consentNoRe.MatchString(text):
		return consentNo
	default:
		return consentAmbiguous
	}
}

// parsePick returns the zero-based candidate index named by text.
func parsePick(text string, n int) (int, bool) {
	m := pickRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	word := strings.ToLower(m[1])
	idx, ok := ordinals[word]
	if !ok {
		var err error
		if idx, err = strconv.Atoi(word); err != nil {
			return 0, false
		}
	}
	if idx < 1 || idx > n {
		return 0, false
	}
	return idx - 1, true
}

const (
	crisisMessage = "I'm really concerned about what you've described. Please get help right now.\n" +
		"- If this is a medical emergency, call your local emergency number (911 in the US, 999 in the UK, 112 in the EU) or go to the nearest hospital.\n" +
		"- If you are thinking about harming yourself, call or text 988 (Suicide & Crisis Lifeline, US) or call Samaritans on 116 123 (UK).\n" +
		"You don't have to handle this alone. If someone is with you, let them know what is happening."

	socialCheckInReply = "I'm doing well, thank you for asking! How are you feeling today?"

	consentPrompt   = "I don't have a guide on that in my library. Would you like me to search trusted health sources (like the WHO or CDC) for you? (yes/no)"
	consentDeclined = "No problem, I won't search. Is there anything else I can help with?"

	noSolidSource   = "I couldn't find a solid source from the trusted health sites for that. You could try asking a different way, or check with your midwife, nurse or doctor."
	searchBusy      = "The search service is busy right now. Please ask again in a moment."
	searchDown      = "I can't reach the trusted-source search right now. Please try again later, or ask your midwife, nurse or doctor."
	fetchBusy       = "I'm reading other pages right now. Please send the number again in a moment."
	modelFailure    = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
	emptyMessage    = "I'm here. What would you like to talk about?"
	followupNoTopic = "Sure. What would you like to know more about?"
)

var greetings = []string{
	"Hello! I'm here to help with questions about pregnancy, birth and caring for your baby, or just to listen. What's on your mind?",
	"Hi there! You can ask me about pregnancy, feeding, newborn care or how you're feeling. How can I help?",
}

var repeatGreetings = []string{
	"Hi again! What would you like to talk about?",
	"Hello again. I'm still here. What's on your mind?",
}

var quickReplies = map[domain.Intent]string{
	domain.IntentGratitude: "You're very welcome. I'm here whenever you need me.",
	domain.IntentGoodbye:   "Take care of yourself. Come back any time you have a question or just want to talk.",
	domain.IntentClarify:   "Sorry, let me try to be clearer. Which part would you like me to explain?",
	domain.IntentCareNav:   "I can't book appointments, but your local clinic, midwife or doctor can help you. If it feels urgent, call your local emergency number or go to the nearest hospital.",
	domain.IntentSmalltalk: "😊 It's nice to chat. What's on your mind?",
}

// candidateList renders ranked candidates for the user to pick from.
func candidateList(cands []domain.SearchCandidate) string {
	var sb strings.Builder
	sb.WriteString("Here is what I found on trusted health sites. Reply with a number to read one:\n")
	for i, c := range cands {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, c.Title, hostOf(c.URL))
		if c.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", c.Snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// failureReason explains in plain words why a candidate was skipped.
func failureReason(n int, c domain.SearchCandidate, err error) string {
	gerr := gateway.AsError(err)
	var why string
	switch gerr.Kind {
	case gateway.KindUnsupportedContentType:
		if gerr.Detail == gateway.DetailPDF {
			why = "it's a PDF, which I can't read here"
		} else {
			why = "it isn't a web page I can read"
		}
	case gateway.KindTooLarge:
		why = "the page is too large to read safely"
	case gateway.KindExtractionFailed:
		why = "I couldn't find readable text on the page"
	case gateway.KindDomainNotAllowed:
		why = "it isn't on my list of trusted sites"
	case gateway.KindNotFound:
		why = "the page no longer exists"
	case gateway.KindForbiddenUpstream:
		why = "the site blocked my request"
	case gateway.KindRateLimitedUpstream:
		why = "the site is limiting requests right now"
	case gateway.KindServiceUnavailableUpstream:
		why = "the site didn't respond in time"
	default:
		why = "something went wrong loading it"
	}
	return fmt.Sprintf("I skipped result %d (%s) because %s.", n, c.Title, why)
}

func unansweredReason(n int, c domain.SearchCandidate) string {
	return fmt.Sprintf("I skipped result %d (%s) because it didn't clearly answer your question.", n, c.Title)
}

func summaryText(skipped []string, art *domain.ExtractedArticle, c domain.SearchCandidate, bullets []string) string {
	var sb strings.Builder
	for _, s := range skipped {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	title := art.Title
	if title == "" {
		title = c.Title
	}
	fmt.Fprintf(&sb, "From %s (%s):\n", title, hostOf(c.URL))
	for _, b := range bullets {
		sb.WriteString("- ")
		sb.WriteString(b)
		sb.WriteByte('\n')
	}
	sb.WriteString("Source: ")
	sb.WriteString(c.URL)
	return sb.String()
}

func exhaustedText(skipped []string) string {
	var sb strings.Builder
	sb.WriteString("I tried the results but couldn't get a clear answer from any of them.\n")
	for _, s := range skipped {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	sb.WriteString("You could try asking a different way, or check with your midwife, nurse or doctor.")
	return sb.String()
}

// documentText is the deterministic rendering of a knowledge-pack document,
// used as model input and as the fallback answer.
func documentText(doc domain.TopicDocument) string {
	var sb strings.Builder
	sb.WriteString(doc.Title)
	sb.WriteByte('\n')
	if doc.Definition != "" {
		sb.WriteString(doc.Definition)
		sb.WriteByte('\n')
	}
	if doc.Reassurance != "" {
		sb.WriteString(doc.Reassurance)
		sb.WriteByte('\n')
	}
	writeList(&sb, "What you can do:", doc.Steps)
	for _, sec := range doc.Sections {
		if sec.Heading != "" {
			sb.WriteString(sec.Heading)
			sb.WriteString(": ")
		}
		sb.WriteString(sec.Body)
		sb.WriteByte('\n')
	}
	writeList(&sb, "Warning signs:", doc.RedFlags)
	writeList(&sb, "Get care right away if:", doc.SeekCareNow)
	return strings.TrimSpace(sb.String())
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading)
	sb.WriteByte('\n')
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteByte('\n')
	}
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}
	return raw
}
