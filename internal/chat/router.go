package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/carenav/internal/classify"
	"github.com/ashureev/carenav/internal/domain"
	"github.com/ashureev/carenav/internal/gateway"
	"github.com/ashureev/carenav/internal/knowledge"
	"github.com/ashureev/carenav/internal/llm"
	"github.com/ashureev/carenav/internal/rank"
	"github.com/ashureev/carenav/internal/summarize"
)

const (
	maxPresented  = 5
	searchResults = 10
)

// Router sequences classification, consent, knowledge lookup, retrieval and
// model calls into one reply per message.
type Router struct {
	resolver   *knowledge.Resolver
	retriever  gateway.Retriever
	model      llm.Completer
	summarizer *summarize.Summarizer
	logger     *slog.Logger
}

// NewRouter wires a router. retriever may be an in-process gateway.Service
// or a gateway.Client.
func NewRouter(resolver *knowledge.Resolver, retriever gateway.Retriever, model llm.Completer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver:   resolver,
		retriever:  retriever,
		model:      model,
		summarizer: summarize.New(model, logger),
		logger:     logger,
	}
}

// Handle processes one user message to completion. Turns on the same session
// are serialized.
func (r *Router) Handle(ctx context.Context, s *Session, text string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: emptyMessage, State: s.state, Route: RouteScripted}
	}

	s.turn++
	s.history.Append(domain.RoleUser, text)

	reply := r.route(ctx, s, text)
	reply.State = s.state

	s.history.Append(domain.RoleAssistant, reply.Text)
	r.logger.Info("Chat turn handled",
		"session_id", s.ID,
		"turn", s.turn,
		"intent", reply.Intent,
		"route", reply.Route,
		"state", reply.State,
	)
	return reply
}

func (r *Router) route(ctx context.Context, s *Session, text string) Reply {
	// Safety first, in every state and before any model call.
	if classify.IsEmergency(text) || crisisRe.MatchString(text) {
		s.consent.Clear()
		s.toIdle()
		return Reply{Text: crisisMessage, Intent: domain.IntentEmergency, Route: RouteCrisis}
	}

	switch s.state {
	case StateAwaitingConsent:
		if reply, ok := r.resolveConsent(ctx, s, text); ok {
			return reply
		}
	case StatePickingResult:
		if idx, ok := parsePick(text, len(s.candidates)); ok {
			return r.readCandidates(ctx, s, idx)
		}
		s.toIdle()
	}
	return r.routeIdle(ctx, s, text)
}

func (r *Router) routeIdle(ctx context.Context, s *Session, text string) Reply {
	if socialCheckInRe.MatchString(text) {
		return Reply{Text: socialCheckInReply, Intent: domain.IntentGreeting, Route: RouteScripted}
	}

	res := classify.Classify(text)

	if res.Intent == domain.IntentGreeting {
		return r.greet(s, res)
	}
	if res.Intent == domain.IntentFollowup {
		return r.followup(s, res)
	}
	if t, ok := quickReplies[res.Intent]; ok {
		return Reply{Text: t, Intent: res.Intent, Route: RouteScripted}
	}

	if doc, ok := r.resolver.Resolve(text); ok {
		return r.paraphrase(ctx, s, text, doc, res)
	}
	if topic := res.Intent.Topic(); topic != "" {
		if doc, ok := r.resolver.Catalog().ByTopic(topic); ok {
			return r.paraphrase(ctx, s, text, doc, res)
		}
	}
	if res.Intent.IsInfo() {
		return r.infoWithoutDocument(ctx, s, text, res.Intent)
	}

	if res.Intent == domain.IntentFeelings || res.Intent == domain.IntentComfort {
		if r.modelRoute(ctx, text).Route == routeInfo {
			return r.infoWithoutDocument(ctx, s, text, domain.IntentInfo)
		}
	}
	return r.supportiveChat(ctx, s, res)
}

func (r *Router) greet(s *Session, res classify.Result) Reply {
	variants := greetings
	if s.lastGreetTurn > 0 && s.turn-s.lastGreetTurn <= 2 {
		variants = repeatGreetings
	}
	s.lastGreetTurn = s.turn
	return Reply{Text: variants[s.turn%len(variants)], Intent: res.Intent, Route: RouteScripted}
}

func (r *Router) followup(s *Session, res classify.Result) Reply {
	if s.lastDoc == nil {
		return Reply{Text: followupNoTopic, Intent: res.Intent, Route: RouteScripted}
	}
	return Reply{
		Text:   "Here is everything my guide says about " + s.lastDoc.Title + ":\n" + documentText(*s.lastDoc),
		Intent: res.Intent,
		Route:  RouteKnowledge,
	}
}

// infoWithoutDocument searches when the session opted in and otherwise asks
// for consent, replacing any earlier pending request.
func (r *Router) infoWithoutDocument(ctx context.Context, s *Session, text string, intent domain.Intent) Reply {
	if s.consent.Granted {
		reply := r.search(ctx, s, text)
		reply.Intent = intent
		return reply
	}
	s.consent.Ask(text)
	s.state = StateAwaitingConsent
	return Reply{Text: consentPrompt, Intent: intent, Route: RouteConsent}
}

// resolveConsent interprets a reply to the consent prompt. An ambiguous
// answer forfeits the pending query and reports false so the message is
// routed on its own.
func (r *Router) resolveConsent(ctx context.Context, s *Session, text string) (Reply, bool) {
	pending := s.consent.Pending
	s.consent.Clear()
	s.state = StateIdle

	switch parseConsent(text) {
	case consentYes:
		s.consent.Granted = true
		if pending == nil {
			return Reply{Text: "Okay. What would you like me to look up?", Route: RouteConsent}, true
		}
		reply := r.search(ctx, s, pending.Content)
		reply.Intent = domain.IntentInfo
		return reply, true
	case consentNo:
		return Reply{Text: consentDeclined, Route: RouteConsent}, true
	default:
		return Reply{}, false
	}
}

func (r *Router) search(ctx context.Context, s *Session, query string) Reply {
	resp, err := r.retriever.Search(ctx, gateway.SearchRequest{Query: query, Count: searchResults})
	if err != nil {
		kind := gateway.KindOf(err)
		r.logger.Warn("Search failed", "session_id", s.ID, "kind", kind, "error", err)
		s.toIdle()
		if kind.Transient() {
			return Reply{Text: searchBusy, Route: RouteSearch}
		}
		return Reply{Text: searchDown, Route: RouteSearch}
	}
	if len(resp.Items) == 0 {
		s.toIdle()
		return Reply{Text: noSolidSource, Route: RouteSearch}
	}

	ranked := rank.Rank(resp.Items, query)
	top := ranked[:min(maxPresented, len(ranked))]
	s.candidates = top
	s.cursor = 0
	s.query = query
	s.state = StatePickingResult

	return Reply{Text: candidateList(top), Route: RouteSearch, Candidates: top}
}

// readCandidates fetches and summarizes candidates starting at idx. A failed
// candidate is explained and the next one is tried, in order, until one
// yields verified quotes or the list runs out. A busy gateway stops the loop
// and keeps the candidates so the user can pick again.
func (r *Router) readCandidates(ctx context.Context, s *Session, idx int) Reply {
	var skipped []string
	for s.cursor = idx; s.cursor < len(s.candidates); s.cursor++ {
		c := s.candidates[s.cursor]

		art, err := r.retriever.Fetch(ctx, gateway.FetchRequest{URL: c.URL})
		if err != nil {
			if gateway.KindOf(err) == gateway.KindBusy {
				text := fetchBusy
				if len(skipped) > 0 {
					text = strings.Join(skipped, "\n") + "\n" + fetchBusy
				}
				return Reply{Text: text, Route: RouteSummary, Candidates: s.candidates}
			}
			r.logger.Info("Candidate fetch failed, advancing",
				"session_id", s.ID,
				"position", s.cursor+1,
				"kind", gateway.KindOf(err),
			)
			skipped = append(skipped, failureReason(s.cursor+1, c, err))
			continue
		}

		bullets, err := r.summarizer.Summarize(ctx, s.query, art.Text)
		if errors.Is(err, summarize.ErrNoQuotableContent) {
			skipped = append(skipped, unansweredReason(s.cursor+1, c))
			continue
		}
		if err != nil {
			r.logger.Error("Summarizer failed", "session_id", s.ID, "error", err)
			s.toIdle()
			return Reply{
				Text:      "I opened the page but couldn't put together a summary right now. You can read it here: " + c.URL,
				Route:     RouteSummary,
				SourceURL: c.URL,
			}
		}

		s.toIdle()
		return Reply{
			Text:      summaryText(skipped, art, c, bullets),
			Route:     RouteSummary,
			Bullets:   bullets,
			SourceURL: c.URL,
		}
	}

	s.toIdle()
	return Reply{Text: exhaustedText(skipped), Route: RouteSummary}
}
