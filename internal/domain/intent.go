package domain

import "strings"

// Intent is the per-message classification result.
type Intent string

const (
	IntentEmergency Intent = "emergency"
	IntentGreeting  Intent = "greeting"
	IntentGratitude Intent = "gratitude"
	IntentGoodbye   Intent = "goodbye"
	IntentClarify   Intent = "clarify"
	IntentFollowup  Intent = "followup"
	IntentCareNav   Intent = "care_nav"
	IntentInfo      Intent = "info"
	IntentComfort   Intent = "comfort"
	IntentSmalltalk Intent = "smalltalk"
	IntentFeelings  Intent = "feelings"
)

const infoTopicPrefix = "info:"

// InfoIntent returns the info:<topic> intent for a topic.
func InfoIntent(topic string) Intent {
	return Intent(infoTopicPrefix + topic)
}

// IsInfo reports whether the intent asks for factual information.
func (i Intent) IsInfo() bool {
	return i == IntentInfo || strings.HasPrefix(string(i), infoTopicPrefix)
}

// Topic returns the topic of an info:<topic> intent, or "".
func (i Intent) Topic() string {
	topic, ok := strings.CutPrefix(string(i), infoTopicPrefix)
	if !ok {
		return ""
	}
	return topic
}
