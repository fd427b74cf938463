package classify

import (
	"testing"

	"github.com/ashureev/carenav/internal/domain"
)

func TestDetectEnergy(t *testing.T) {
	tests := []struct {
		text string
		want Energy
	}{
		{"", EnergyVeryShort},
		{"hi there", EnergyVeryShort},
		{"what is birth control", EnergyShort},
		{"one two three four five six seven eight", EnergyShort},
		{"one two three four five six seven eight nine", EnergyMedium},
		{"a b c d e f g h i j k l m n o p q r s t u v w x y z", EnergyLong},
	}
	for _, tt := range tests {
		if got := DetectEnergy(tt.text); got != tt.want {
			t.Errorf("DetectEnergy(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestDetectTonePriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Tone
	}{
		{"anxious beats curious", "I'm so worried, is this normal?", ToneAnxious},
		{"anxious beats greeting", "hi, I'm scared", ToneAnxious},
		{"stressed beats sad", "so overwhelmed and sad", ToneStressed},
		{"sad", "feeling lonely today", ToneSad},
		{"angry", "I'm so frustrated with the clinic", ToneAngry},
		{"confused beats curious", "I'm confused, what does that mean?", ToneConfused},
		{"greeting", "hello", ToneGreeting},
		{"thankful", "thank you so much", ToneThankful},
		{"happy", "the baby is great", ToneHappy},
		{"curious", "what is colostrum?", ToneCurious},
		{"neutral", "ok", ToneNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectTone(tt.text); got != tt.want {
				t.Errorf("DetectTone(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestEmergencyGateIsUnconditional(t *testing.T) {
	inputs := []string{
		"severe heavy bleeding",
		"I want to die",
		"hi I want to kill myself",
		"thanks, but I think I'm going to hurt myself",
		"my baby is not breathing",
		"she is having a seizure",
		"I can't breathe",
		"what should I do about heavy bleeding?",
		"Self-harm thoughts again lol",
		"sudden severe headache and swelling",
		"I don't want to live anymore",
		"sometimes I just want to disappear",
		"I can't go on like this",
		"honestly I wish I was dead",
	}
	for _, in := range inputs {
		res := Classify(in)
		if res.Intent != domain.IntentEmergency {
			t.Errorf("Classify(%q).Intent = %s, want emergency (tone=%s energy=%s)", in, res.Intent, res.Tone, res.Energy)
		}
	}
}

func TestDetectIntentCascade(t *testing.T) {
	tests := []struct {
		text string
		want domain.Intent
	}{
		{"hello", domain.IntentGreeting},
		{"good morning!", domain.IntentGreeting},
		{"thanks so much", domain.IntentGratitude},
		{"ok bye", domain.IntentGoodbye},
		{"what do you mean", domain.IntentClarify},
		{"tell me more", domain.IntentFollowup},
		{"where can I find a clinic", domain.IntentCareNav},
		{"where do I go for help?", domain.IntentCareNav},
		{"where can I get emergency contraception?", domain.InfoIntent("contraception")},
		{"what is birth control", domain.InfoIntent("contraception")},
		{"how do I get a good latch?", domain.InfoIntent("breastfeeding")},
		{"is jaundice in newborns dangerous?", domain.InfoIntent("newborn")},
		{"when is the next vaccine due?", domain.InfoIntent("immunization")},
		{"what causes the sky to look blue?", domain.IntentInfo},
		{"I need sources on sleep training", domain.IntentInfo},
		{"my breast feels full today", domain.IntentFeelings},
		{"feeling so low today", domain.IntentComfort},
		{"haha that's cute", domain.IntentSmalltalk},
		{"the weather turned nice", domain.IntentFeelings},
	}
	for _, tt := range tests {
		if got := DetectIntent(tt.text); got != tt.want {
			t.Errorf("DetectIntent(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestGreetingWithQuestionIsNotGreeting(t *testing.T) {
	if got := DetectIntent("hi, what is jaundice?"); got == domain.IntentGreeting {
		t.Fatalf("expected question after greeting to skip greeting intent, got %s", got)
	}
}

func TestTopicRequiresInfoLikeText(t *testing.T) {
	// A body-word in a casual statement must not trigger the medical path.
	if got := DetectIntent("we went eating pizza"); got.IsInfo() {
		t.Fatalf("expected casual mention to stay out of info, got %s", got)
	}
	if got := DetectIntent("what should I be eating?"); got != domain.InfoIntent("nutrition") {
		t.Fatalf("expected nutrition info, got %s", got)
	}
}

func TestClassifyNeverPanicsOnOddInput(t *testing.T) {
	for _, in := range []string{"", "   ", "???", "😂😂", "\x00\xff", "ñandú"} {
		res := Classify(in)
		if res.Intent == "" || res.Tone == "" || res.Energy == "" {
			t.Errorf("Classify(%q) returned empty field: %+v", in, res)
		}
	}
}
