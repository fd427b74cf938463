// Package classify maps raw user text to energy, tone and intent.
//
// Every function here is pure. The routing layer trusts the output without
// re-validating it, so the rule order below is pinned by tests.
package classify

import (
	"regexp"
	"strings"

	"github.com/ashureev/carenav/internal/domain"
)

// Energy buckets a message by word count. It bounds reply length only.
type Energy string

const (
	EnergyVeryShort Energy = "very_short"
	EnergyShort     Energy = "short"
	EnergyMedium    Energy = "medium"
	EnergyLong      Energy = "long"
)

// Tone is the emotional register detected in a message.
type Tone string

const (
	ToneGreeting Tone = "greeting"
	ToneAnxious  Tone = "anxious"
	ToneStressed Tone = "stressed"
	ToneSad      Tone = "sad"
	ToneAngry    Tone = "angry"
	ToneConfused Tone = "confused"
	ToneThankful Tone = "thankful"
	ToneHappy    Tone = "happy"
	ToneCurious  Tone = "curious"
	ToneNeutral  Tone = "neutral"
)

// Result is the full classification of one message.
type Result struct {
	Energy Energy        `json:"energy"`
	Tone   Tone          `json:"tone"`
	Intent domain.Intent `json:"intent"`
}

// Classify runs all three classifiers. It never panics and always returns the
// documented defaults when nothing matches.
func Classify(text string) Result {
	return Result{
		Energy: DetectEnergy(text),
		Tone:   DetectTone(text),
		Intent: DetectIntent(text),
	}
}

// DetectEnergy buckets text by word count.
func DetectEnergy(text string) Energy {
	n := len(strings.Fields(text))
	switch {
	case n <= 2:
		return EnergyVeryShort
	case n <= 8:
		return EnergyShort
	case n <= 25:
		return EnergyMedium
	default:
		return EnergyLong
	}
}

type toneRule struct {
	pattern *regexp.Regexp
	tone    Tone
}

// toneRules is evaluated first-match-wins. Emotional categories sit ahead of
// lexical ones so that a question mark never hides an explicit worry.
var toneRules = []toneRule{
	{regexp.MustCompile(`(?i)\b(anxious|anxiety|worried|worry|worrying|scared|afraid|nervous|panic\w*|terrified|freaking out)\b`), ToneAnxious},
	{regexp.MustCompile(`(?i)\b(stress\w*|overwhelm\w*|too much|can'?t cope|exhausted|burn(ed|t)? out|no sleep|so tired)\b`), ToneStressed},
	{regexp.MustCompile(`(?i)\b(sad|down|lonely|depressed|hopeless|crying|cried|heartbroken|miserable|empty)\b|😢|😭`), ToneSad},
	{regexp.MustCompile(`(?i)\b(angry|mad|furious|annoyed|frustrat\w*|pissed|hate)\b|😡|😠`), ToneAngry},
	{regexp.MustCompile(`(?i)\b(confus\w*|don'?t understand|not sure|unsure|lost|what do you mean)\b|🤔`), ToneConfused},
	{regexp.MustCompile(`(?i)^\s*(hi|hello|hey|hiya|howdy|good (morning|afternoon|evening))\b`), ToneGreeting},
	{regexp.MustCompile(`(?i)\b(thanks|thank you|thx|appreciate)\b|🙏`), ToneThankful},
	{regexp.MustCompile(`(?i)\b(happy|glad|great|excited|yay|awesome|wonderful|love)\b|😊|😄|🥰`), ToneHappy},
	{regexp.MustCompile(`(?i)\?|\b(wonder\w*|curious|how|why|what|when)\b`), ToneCurious},
}

// DetectTone returns the first matching tone, or ToneNeutral.
func DetectTone(text string) Tone {
	for _, r := range toneRules {
		if r.pattern.MatchString(text) {
			return r.tone
		}
	}
	return ToneNeutral
}
