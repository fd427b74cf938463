package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/carenav/internal/classify"
	"github.com/ashureev/carenav/internal/domain"
	"github.com/ashureev/carenav/internal/llm"
)

const (
	routeInfo = "info"
	routeChat = "chat"
)

const paraphrasePrompt = `You are a warm maternal and newborn health companion.
Rewrite the reference document below as a short, kind answer to the user's message.
Use only facts from the document. Do not add advice, doses or diagnoses that are not in it.
Keep every warning sign and every "get care right away" item.
Use plain words and short sentences.`

const routerPrompt = `Decide how to handle the user's message.
Reply with JSON only: {"route": "info"} if they are asking for health information that needs a source,
or {"route": "chat"} if they mainly want to talk or be comforted.`

const supportivePrompt = `You are a warm, calm companion for parents and parents-to-be.
Listen first. Reflect what the user said and offer gentle encouragement.
Never diagnose or prescribe. If something sounds medically worrying, suggest contacting a midwife, nurse or doctor.
Do not invent facts. Keep the reply %s.
The user sounds %s.`

type routeDecision struct {
	Route string `json:"route"`
}

// paraphrase answers from a knowledge-pack document. A model failure falls
// back to the document itself, and urgent-care items are always present in
// the final text.
func (r *Router) paraphrase(ctx context.Context, s *Session, text string, doc domain.TopicDocument, res classify.Result) Reply {
	reference := documentText(doc)
	s.lastDoc = &doc

	out, err := r.model.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: paraphrasePrompt},
		{Role: llm.RoleUser, Content: "Reference document:\n" + reference + "\n\nUser message: " + text},
	}, llm.Options{Temperature: 0.3, MaxTokens: 400})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		if err != nil {
			r.logger.Warn("Paraphrase failed, using document text", "session_id", s.ID, "doc", doc.Path, "error", err)
		}
		return Reply{Text: reference, Intent: res.Intent, Route: RouteKnowledge}
	}

	if missing := missingItems(out, doc.SeekCareNow); len(missing) > 0 {
		var sb strings.Builder
		sb.WriteString(out)
		sb.WriteString("\n\n")
		writeList(&sb, "Get care right away if:", doc.SeekCareNow)
		out = strings.TrimSpace(sb.String())
	}
	return Reply{Text: out, Intent: res.Intent, Route: RouteKnowledge}
}

// modelRoute asks the model whether an ambiguous message is really an
// information request. Anything unparseable counts as chat.
func (r *Router) modelRoute(ctx context.Context, text string) routeDecision {
	def := routeDecision{Route: routeChat}
	out, err := r.model.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: routerPrompt},
		{Role: llm.RoleUser, Content: text},
	}, llm.Options{Temperature: 0, MaxTokens: 20})
	if err != nil {
		r.logger.Warn("Route decision failed", "error", err)
		return def
	}
	d := llm.ParseStructuredOrDefault(out, def)
	if d.Route != routeInfo {
		d.Route = routeChat
	}
	return d
}

func (r *Router) supportiveChat(ctx context.Context, s *Session, res classify.Result) Reply {
	msgs := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(supportivePrompt, lengthHint(res.Energy), toneHint(res.Tone)),
	}}
	for _, m := range s.history.Recent() {
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}

	out, err := r.model.Complete(ctx, msgs, llm.Options{
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   maxTokensFor(res.Energy),
	})
	if err != nil {
		r.logger.Error("Supportive reply failed", "session_id", s.ID, "error", err)
		return Reply{Text: modelFailure, Intent: res.Intent, Route: RouteChat}
	}
	return Reply{Text: strings.TrimSpace(out), Intent: res.Intent, Route: RouteChat}
}

func maxTokensFor(e classify.Energy) int {
	switch e {
	case classify.EnergyVeryShort:
		return 80
	case classify.EnergyShort:
		return 150
	case classify.EnergyMedium:
		return 250
	default:
		return 400
	}
}

func lengthHint(e classify.Energy) string {
	switch e {
	case classify.EnergyVeryShort:
		return "to one or two sentences"
	case classify.EnergyShort:
		return "short, about three sentences"
	case classify.EnergyMedium:
		return "to a short paragraph"
	default:
		return "to two short paragraphs at most"
	}
}

func toneHint(t classify.Tone) string {
	switch t {
	case classify.ToneAnxious:
		return "anxious; be reassuring and steady"
	case classify.ToneStressed:
		return "stressed; be calm and practical"
	case classify.ToneSad:
		return "sad; be gentle and validating"
	case classify.ToneAngry:
		return "frustrated; acknowledge it without arguing"
	case classify.ToneConfused:
		return "confused; be simple and clear"
	case classify.ToneThankful, classify.ToneHappy:
		return "positive; share the warmth"
	case classify.ToneCurious:
		return "curious; be encouraging"
	default:
		return "neutral"
	}
}

func missingItems(text string, items []string) []string {
	lower := strings.ToLower(text)
	var missing []string
	for _, it := range items {
		if !strings.Contains(lower, strings.ToLower(it)) {
			missing = append(missing, it)
		}
	}
	return missing
}
