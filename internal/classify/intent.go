package classify

import (
	"regexp"
	"strings"

	"github.com/ashureev/carenav/internal/domain"
)

var (
	selfHarmRe = regexp.MustCompile(`(?i)\b(kill(ing)? my ?self|suicid\w*|end (my life|it all)|want(ed)? to die|wanna die|hurt(ing)? my ?self|self[- ]?harm\w*|cut(ting)? my ?self|no reason to live|better off dead|take my own life|` +
		`(don'?t|do not|no longer) want to (live|be alive|be here|exist)|want(ed)? to (disappear|vanish)|wish i (was|were) dead|wish i wasn'?t here|` +
		`(can'?t|cannot|can not) go on|no point (in )?(living|going on))\b`)

	acuteEmergencyRe = regexp.MustCompile(`(?i)\b(` +
		`(heavy|severe|lots of|soaking|uncontrollable|non[- ]?stop)\s+(vaginal\s+)?bleeding|` +
		`bleeding (heavily|a lot|won'?t stop)|` +
		`(can'?t|cannot|can not|trouble|difficulty|struggling to) breath(e|ing)?|not breathing|` +
		`seizures?|convuls\w*|fits?\s+and\s+shaking|` +
		`chest pain|` +
		`unconscious|unresponsive|passed out|fainted|` +
		`(baby|newborn|infant)\s+(is\s+)?(blue|limp|not moving)|` +
		`severe (headache|abdominal pain|belly pain|stomach pain)|` +
		`blurred vision and (headache|swelling)|` +
		`waters? broke.*(green|brown|bleeding)` +
		`)\b`)

	greetingRe  = regexp.MustCompile(`(?i)^\s*(hi+|hello+|hey+|hiya|howdy|yo|greetings|good (morning|afternoon|evening))\b`)
	gratitudeRe = regexp.MustCompile(`(?i)\b(thanks|thank you|thank u|thx|ty|cheers|appreciate (it|that|you|this))\b`)
	goodbyeRe   = regexp.MustCompile(`(?i)\b(bye|goodbye|good night|see (you|ya)|gotta go|talk (to you )?later|ttyl|that'?s all)\b`)
	clarifyRe   = regexp.MustCompile(`(?i)^\s*(what do you mean|what does that mean|i don'?t (understand|get it)|can you explain (that|again)|explain that|huh|come again|say that again|sorry\s*\?)`)
	followupRe  = regexp.MustCompile(`(?i)^\s*(tell me more|more please|more|go on|and then|what else|anything else|continue|keep going)\b`)
	careNavRe   = regexp.MustCompile(`(?i)\b((find|book|make|schedule|get)\b.{0,20}\b(appointment|clinic|doctor|midwife|nurse|hospital)|(nearest|closest) (clinic|hospital|pharmacy|health (centre|center)))\b`)
	careWhereRe = regexp.MustCompile(`(?i)\bwhere (can|do|should) i (go|get|find)\b`)

	questionRe = regexp.MustCompile(`(?i)\?\s*$|^\s*(what|why|how|when|where|which|who|is|are|can|could|should|do|does|will|would|may)\b`)
	sourcesRe  = regexp.MustCompile(`(?i)\b(sources?|references?|citations?|evidence|stud(y|ies)|research|guidelines?|official)\b`)
	medicalRe  = regexp.MustCompile(`(?i)\b(symptoms?|dose|dosage|treatments?|side effects?|infection|medication|medicine|vaccin\w*|diagnos\w*|pregnan\w*|contracepti\w*|birth control|fever|rash|pain)\b`)

	comfortRe   = regexp.MustCompile(`(?i)\b(sad|down|lonely|depressed|hopeless|overwhelmed|exhausted|crying|struggling|miserable|low|tired of everything|can'?t cope)\b`)
	smalltalkRe = regexp.MustCompile(`(?i)\b(lol|haha+|hehe+|lmao|rofl)\b|😂|🤣|😊|😄|😅|🙂|😍|❤️|♥`)
)

type intentRule struct {
	match  func(string) bool
	intent domain.Intent
}

// conversationRules run after the safety gate, in priority order.
var conversationRules = []intentRule{
	{isGreeting, domain.IntentGreeting},
	{isGratitude, domain.IntentGratitude},
	{goodbyeRe.MatchString, domain.IntentGoodbye},
	{clarifyRe.MatchString, domain.IntentClarify},
	{isFollowup, domain.IntentFollowup},
	{isCareNav, domain.IntentCareNav},
}

type topicRule struct {
	pattern *regexp.Regexp
	topic   string
}

// topicRules are only consulted for info-like text.
var topicRules = []topicRule{
	{regexp.MustCompile(`(?i)\b(breast ?fe\w*|nursing|latch\w*|breast ?milk|formula feed\w*|pumping|lactat\w*)\b`), "breastfeeding"},
	{regexp.MustCompile(`(?i)\b(newborns?|infants?|umbilical|jaundice|diapers?|nappy|nappies|swaddl\w*|colic)\b`), "newborn"},
	{regexp.MustCompile(`(?i)\b(postpartum depression|baby blues|anxiety|depress\w*|mental health|panic attacks?|intrusive thoughts)\b`), "psych"},
	{regexp.MustCompile(`(?i)\b(pregnan\w*|trimester|prenatal|antenatal|ultrasound|fetal|foetal|miscarriage|gestation\w*)\b`), "obstetric"},
	{regexp.MustCompile(`(?i)\b(medications?|medicines?|paracetamol|ibuprofen|acetaminophen|antibiotics?|dose|dosage|prescriptions?)\b`), "meds"},
	{regexp.MustCompile(`(?i)\b(contracepti\w*|birth control|condoms?|iud|the pill|implant|family planning)\b`), "contraception"},
	{regexp.MustCompile(`(?i)\b(labou?r|contractions?|c-section|caesarean|cesarean|epidural|induction|giving birth)\b`), "labour"},
	{regexp.MustCompile(`(?i)\b(postpartum|postnatal|post-natal|after (the )?birth|lochia|perineal|stitches)\b`), "postpartum"},
	{regexp.MustCompile(`(?i)\b(nutrition|diet|eat\w*|foods?|vitamins?|folic acid|iron|calcium|weaning|solids)\b`), "nutrition"},
	{regexp.MustCompile(`(?i)\b(warning signs?|danger signs?|red flags?|when to worry|is (it|this) normal)\b`), "warning_signs"},
	{regexp.MustCompile(`(?i)\b(check-?ups?|clinic visits?|antenatal visits?|appointments? schedule|how many visits)\b`), "clinic_visits"},
	{regexp.MustCompile(`(?i)\b(vaccin\w*|immuni[sz]\w*|jabs?|shots?)\b`), "immunization"},
}

// IsEmergency reports whether text matches the self-harm or acute-symptom
// lexicon.
func IsEmergency(text string) bool {
	return selfHarmRe.MatchString(text) || acuteEmergencyRe.MatchString(text)
}

// IsInfoLike reports whether text reads as a request for facts: a question,
// a request for sources, or medical vocabulary.
func IsInfoLike(text string) bool {
	return questionRe.MatchString(text) || sourcesRe.MatchString(text) || medicalRe.MatchString(text)
}

// DetectTopic returns the first topic whose detector matches, or "".
func DetectTopic(text string) string {
	for _, r := range topicRules {
		if r.pattern.MatchString(text) {
			return r.topic
		}
	}
	return ""
}

// DetectIntent classifies text. The safety gate runs first and unconditionally.
func DetectIntent(text string) domain.Intent {
	if IsEmergency(text) {
		return domain.IntentEmergency
	}

	for _, r := range conversationRules {
		if r.match(text) {
			return r.intent
		}
	}

	if IsInfoLike(text) {
		if topic := DetectTopic(text); topic != "" {
			return domain.InfoIntent(topic)
		}
		return domain.IntentInfo
	}

	switch {
	case comfortRe.MatchString(text):
		return domain.IntentComfort
	case smalltalkRe.MatchString(text):
		return domain.IntentSmalltalk
	default:
		return domain.IntentFeelings
	}
}

// isGreeting matches short salutations only, so "hi, what is jaundice?" is
// routed as a question.
func isGreeting(text string) bool {
	return greetingRe.MatchString(text) &&
		len(strings.Fields(text)) <= 4 &&
		!strings.Contains(text, "?")
}

func isGratitude(text string) bool {
	return gratitudeRe.MatchString(text) &&
		len(strings.Fields(text)) <= 8 &&
		!strings.Contains(text, "?")
}

func isFollowup(text string) bool {
	return followupRe.MatchString(text) && len(strings.Fields(text)) <= 5
}

// isCareNav matches booking and nearest-facility requests. "where can I get"
// only counts when no health topic is named, so topic questions stay info.
func isCareNav(text string) bool {
	if careNavRe.MatchString(text) {
		return true
	}
	return careWhereRe.MatchString(text) && DetectTopic(text) == ""
}
