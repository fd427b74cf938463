package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/carenav/internal/domain"
	"github.com/ashureev/carenav/internal/gateway"
	"github.com/ashureev/carenav/internal/knowledge"
	"github.com/ashureev/carenav/internal/llm"
)

type fetchResult struct {
	article *domain.ExtractedArticle
	err     error
}

type fakeRetriever struct {
	mu        sync.Mutex
	items     []domain.SearchCandidate
	searchErr error
	pages     map[string]fetchResult
	searches  []string
	fetches   []string
}

func (f *fakeRetriever) Search(_ context.Context, req gateway.SearchRequest) (*gateway.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req.Query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &gateway.SearchResponse{Query: req.Query, Items: f.items}, nil
}

func (f *fakeRetriever) Fetch(_ context.Context, req gateway.FetchRequest) (*domain.ExtractedArticle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, req.URL)
	res, ok := f.pages[req.URL]
	if !ok {
		return nil, &gateway.Error{Kind: gateway.KindNotFound, Status: 404}
	}
	return res.article, res.err
}

func (f *fakeRetriever) setPage(url string, res fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = res
}

const (
	pdfURL  = "https://www.who.int/docs/a"
	pageURL = "https://www.who.int/docs/b"

	condomText = "Condoms protect against pregnancy. They are easy to use and widely available."
	condomLine = "Condoms protect against pregnancy."
)

func twoCandidates() []domain.SearchCandidate {
	return []domain.SearchCandidate{
		{Title: "Guide A", URL: pdfURL, Snippet: "A"},
		{Title: "Guide B", URL: pageURL, Snippet: "B"},
	}
}

func newTestRouter(docs []domain.TopicDocument, model llm.Completer) (*Router, *fakeRetriever) {
	ret := &fakeRetriever{pages: make(map[string]fetchResult)}
	resolver := knowledge.NewResolver(knowledge.NewCatalog(docs))
	return NewRouter(resolver, ret, model, nil), ret
}

func jaundiceDoc() domain.TopicDocument {
	return domain.TopicDocument{
		Title:       "Jaundice",
		Path:        "newborn/jaundice",
		Keywords:    []string{"yellow skin"},
		Definition:  "Jaundice is a yellow colour of the skin and eyes.",
		Steps:       []string{"Feed your baby often."},
		SeekCareNow: []string{"Your baby is very sleepy and will not feed."},
	}
}

func TestEmergencySkipsModel(t *testing.T) {
	model := llm.NewMockCompleter("should not be used")
	router, ret := newTestRouter(nil, model)
	s := NewSession("s1", 6)

	reply := router.Handle(context.Background(), s, "severe heavy bleeding")

	if reply.Intent != domain.IntentEmergency || reply.Route != RouteCrisis {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if !strings.Contains(reply.Text, "988") || !strings.Contains(reply.Text, "emergency number") {
		t.Errorf("expected hotline text, got %q", reply.Text)
	}
	if model.CallCount() != 0 {
		t.Errorf("expected no model calls, got %d", model.CallCount())
	}
	if len(ret.searches) != 0 {
		t.Errorf("expected no searches, got %v", ret.searches)
	}
}

func TestEmergencyWinsWhileAwaitingConsent(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter())
	s := NewSession("s1", 6)
	ctx := context.Background()

	router.Handle(ctx, s, "what is birth control")
	reply := router.Handle(ctx, s, "no, my baby is not breathing")

	if reply.Route != RouteCrisis {
		t.Fatalf("expected crisis reply, got %+v", reply)
	}
	if reply.State != StateIdle {
		t.Errorf("state = %s, want idle", reply.State)
	}
	if snap := s.Snapshot(); snap.PendingQuery != "" {
		t.Errorf("expected pending query cleared, got %q", snap.PendingQuery)
	}
	if len(ret.searches) != 0 {
		t.Errorf("expected no searches, got %v", ret.searches)
	}
}

func TestEmergencyWordsInHealthQuestions(t *testing.T) {
	questions := []string{
		"where can I get emergency contraception?",
		"how long after sex does the emergency pill work?",
		"my maternity clothes are not fitting anymore, is that normal?",
	}
	for _, q := range questions {
		t.Run(q, func(t *testing.T) {
			router, ret := newTestRouter(nil, llm.NewMockCompleter())
			reply := router.Handle(context.Background(), NewSession("s1", 6), q)

			if reply.Route == RouteCrisis || reply.Intent == domain.IntentEmergency {
				t.Fatalf("expected an info answer, got %+v", reply)
			}
			if reply.State != StateAwaitingConsent || reply.Text != consentPrompt {
				t.Errorf("expected consent prompt, got %+v", reply)
			}
			if len(ret.searches) != 0 {
				t.Errorf("expected no searches, got %v", ret.searches)
			}
		})
	}

	router, _ := newTestRouter(nil, llm.NewMockCompleter())
	reply := router.Handle(context.Background(), NewSession("s2", 6), "where can I get emergency contraception?")
	if reply.Intent != domain.InfoIntent("contraception") {
		t.Errorf("intent = %s, want info:contraception", reply.Intent)
	}

	for _, urgent := range []string{"my baby is fitting", "she's having a fit", "he has collapsed", "this is a medical emergency"} {
		router, _ := newTestRouter(nil, llm.NewMockCompleter())
		if reply := router.Handle(context.Background(), NewSession("s3", 6), urgent); reply.Route != RouteCrisis {
			t.Errorf("%q: expected crisis reply, got %+v", urgent, reply)
		}
	}
}

func TestTopicWithoutGeneralDocumentAsksConsent(t *testing.T) {
	model := llm.NewMockCompleter("should not be used")
	router, ret := newTestRouter([]domain.TopicDocument{jaundiceDoc()}, model)

	for _, q := range []string{"how do I soothe colic?", "how often should I change nappies?"} {
		s := NewSession("s1", 6)
		reply := router.Handle(context.Background(), s, q)

		if reply.Intent != domain.InfoIntent("newborn") {
			t.Fatalf("%q: intent = %s, want info:newborn", q, reply.Intent)
		}
		if reply.Route == RouteKnowledge || reply.State != StateAwaitingConsent {
			t.Errorf("%q: expected consent prompt, got %+v", q, reply)
		}
		if snap := s.Snapshot(); snap.PendingQuery != q {
			t.Errorf("%q: pending query = %q", q, snap.PendingQuery)
		}
	}
	if model.CallCount() != 0 || len(ret.searches) != 0 {
		t.Errorf("expected no model calls or searches, got %d and %v", model.CallCount(), ret.searches)
	}
}

func TestShippedPackOnlyAnswersCoveredQuestions(t *testing.T) {
	catalog, err := knowledge.LoadDir("../../knowledge")
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	model := llm.NewMockCompleter("paraphrased")
	router := NewRouter(knowledge.NewResolver(catalog), &fakeRetriever{}, model, nil)
	ctx := context.Background()

	for _, q := range []string{
		"how do I soothe colic?",
		"how should I care for my perineal stitches?",
		"how often should I change nappies?",
	} {
		if reply := router.Handle(ctx, NewSession("s1", 6), q); reply.State != StateAwaitingConsent {
			t.Errorf("%q: expected consent prompt, got %+v", q, reply)
		}
	}

	if reply := router.Handle(ctx, NewSession("s2", 6), "is yellow skin normal in newborns?"); reply.Route != RouteKnowledge {
		t.Errorf("expected knowledge answer for jaundice, got %+v", reply)
	}
}

func TestConsentThenSearch(t *testing.T) {
	model := llm.NewMockCompleter()
	router, ret := newTestRouter(nil, model)
	ret.items = twoCandidates()
	s := NewSession("s1", 6)
	ctx := context.Background()

	reply := router.Handle(ctx, s, "what is birth control")
	if reply.State != StateAwaitingConsent || reply.Text != consentPrompt {
		t.Fatalf("expected consent prompt, got %+v", reply)
	}
	if snap := s.Snapshot(); snap.PendingQuery != "what is birth control" || snap.ConsentGranted {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	reply = router.Handle(ctx, s, "yes")
	if len(ret.searches) != 1 || ret.searches[0] != "what is birth control" {
		t.Fatalf("expected stored query to be searched, got %v", ret.searches)
	}
	if reply.State != StatePickingResult || len(reply.Candidates) != 2 {
		t.Fatalf("expected candidate list, got %+v", reply)
	}
	if !strings.Contains(reply.Text, "1. Guide A (who.int)") {
		t.Errorf("unexpected list %q", reply.Text)
	}
	if !s.Snapshot().ConsentGranted {
		t.Error("expected consent to be granted")
	}

	// Later questions search without asking again.
	reply = router.Handle(ctx, s, "how effective is an iud?")
	if reply.Route != RouteSearch || len(ret.searches) != 2 {
		t.Fatalf("expected direct search, got %+v (searches %v)", reply, ret.searches)
	}
	if model.CallCount() != 0 {
		t.Errorf("expected no model calls, got %d", model.CallCount())
	}
}

func TestConsentDeclined(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter())
	s := NewSession("s1", 6)
	ctx := context.Background()

	router.Handle(ctx, s, "what is birth control")
	reply := router.Handle(ctx, s, "no thanks")

	if reply.Text != consentDeclined || reply.State != StateIdle {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if len(ret.searches) != 0 {
		t.Errorf("expected no searches, got %v", ret.searches)
	}
	if s.Snapshot().ConsentGranted {
		t.Error("consent must stay off")
	}
}

func TestAmbiguousConsentRoutesNewMessage(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter())
	s := NewSession("s1", 6)
	ctx := context.Background()

	router.Handle(ctx, s, "what is birth control")
	reply := router.Handle(ctx, s, "hello")

	if reply.Intent != domain.IntentGreeting || reply.State != StateIdle {
		t.Fatalf("expected greeting, got %+v", reply)
	}
	if s.Snapshot().PendingQuery != "" {
		t.Error("expected pending query to be discarded")
	}
	if len(ret.searches) != 0 {
		t.Errorf("expected no searches, got %v", ret.searches)
	}
}

func searchAndPick(t *testing.T, router *Router, s *Session, pick string) Reply {
	t.Helper()
	ctx := context.Background()
	router.Handle(ctx, s, "what is birth control")
	if r := router.Handle(ctx, s, "yes"); r.State != StatePickingResult {
		t.Fatalf("expected picking state, got %+v", r)
	}
	return router.Handle(ctx, s, pick)
}

func TestPDFCandidateIsExplainedAndSkipped(t *testing.T) {
	model := llm.NewMockCompleter(condomLine)
	router, ret := newTestRouter(nil, model)
	ret.items = twoCandidates()
	ret.setPage(pdfURL, fetchResult{err: &gateway.Error{Kind: gateway.KindUnsupportedContentType, Detail: gateway.DetailPDF, Status: 415}})
	ret.setPage(pageURL, fetchResult{article: &domain.ExtractedArticle{URL: pageURL, Title: "Contraception", Text: condomText}})
	s := NewSession("s1", 6)

	reply := searchAndPick(t, router, s, "1")

	if !strings.Contains(reply.Text, "I skipped result 1 (Guide A) because it's a PDF") {
		t.Errorf("expected PDF reason, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "- "+condomLine) {
		t.Errorf("expected summary bullet, got %q", reply.Text)
	}
	if reply.SourceURL != pageURL || reply.Route != RouteSummary || reply.State != StateIdle {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(reply.Bullets) != 1 {
		t.Errorf("bullets = %v", reply.Bullets)
	}
	if got := strings.Join(ret.fetches, ","); got != pdfURL+","+pageURL {
		t.Errorf("fetch order = %s", got)
	}
}

func TestUnquotableCandidateAdvances(t *testing.T) {
	model := llm.NewMockCompleter("An invented sentence.", condomLine)
	router, ret := newTestRouter(nil, model)
	ret.items = twoCandidates()
	ret.setPage(pdfURL, fetchResult{article: &domain.ExtractedArticle{URL: pdfURL, Text: "Unrelated text about something else entirely."}})
	ret.setPage(pageURL, fetchResult{article: &domain.ExtractedArticle{URL: pageURL, Text: condomText}})
	s := NewSession("s1", 6)

	reply := searchAndPick(t, router, s, "first")

	if !strings.Contains(reply.Text, "didn't clearly answer") {
		t.Errorf("expected skip reason, got %q", reply.Text)
	}
	if reply.SourceURL != pageURL {
		t.Errorf("SourceURL = %q", reply.SourceURL)
	}
}

func TestAllCandidatesFail(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter())
	ret.items = twoCandidates()
	ret.setPage(pdfURL, fetchResult{err: &gateway.Error{Kind: gateway.KindTooLarge}})
	// pageURL is unknown to the fake and yields not_found.
	s := NewSession("s1", 6)

	reply := searchAndPick(t, router, s, "1")

	if !strings.Contains(reply.Text, "couldn't get a clear answer") {
		t.Errorf("expected exhaustion text, got %q", reply.Text)
	}
	for _, want := range []string{"result 1 (Guide A) because the page is too large", "result 2 (Guide B) because the page no longer exists"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("expected %q in %q", want, reply.Text)
		}
	}
	if reply.State != StateIdle {
		t.Errorf("state = %s, want idle", reply.State)
	}
}

func TestPickStartsAtChosenCandidate(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter(condomLine))
	ret.items = twoCandidates()
	ret.setPage(pageURL, fetchResult{article: &domain.ExtractedArticle{URL: pageURL, Text: condomText}})
	s := NewSession("s1", 6)

	reply := searchAndPick(t, router, s, "2")

	if reply.SourceURL != pageURL || len(ret.fetches) != 1 {
		t.Fatalf("expected only candidate 2 to be fetched, got %v (%+v)", ret.fetches, reply)
	}
}

func TestBusyFetchKeepsCandidates(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter(condomLine))
	ret.items = twoCandidates()
	ret.setPage(pdfURL, fetchResult{err: &gateway.Error{Kind: gateway.KindBusy}})
	s := NewSession("s1", 6)

	reply := searchAndPick(t, router, s, "1")
	if reply.Text != fetchBusy || reply.State != StatePickingResult {
		t.Fatalf("expected busy reply, got %+v", reply)
	}
	if len(reply.Candidates) != 2 {
		t.Errorf("expected candidates to be kept, got %v", reply.Candidates)
	}

	ret.setPage(pdfURL, fetchResult{article: &domain.ExtractedArticle{URL: pdfURL, Text: condomText}})
	reply = router.Handle(context.Background(), s, "1")
	if reply.SourceURL != pdfURL || reply.State != StateIdle {
		t.Fatalf("expected retry to succeed, got %+v", reply)
	}
}

func TestNonPickLeavesPicking(t *testing.T) {
	router, ret := newTestRouter(nil, llm.NewMockCompleter())
	ret.items = twoCandidates()
	s := NewSession("s1", 6)
	ctx := context.Background()

	router.Handle(ctx, s, "what is birth control")
	router.Handle(ctx, s, "yes")
	reply := router.Handle(ctx, s, "thank you")

	if reply.Intent != domain.IntentGratitude || reply.State != StateIdle {
		t.Fatalf("expected gratitude in idle, got %+v", reply)
	}
	if len(ret.fetches) != 0 {
		t.Errorf("expected no fetches, got %v", ret.fetches)
	}
}

func TestSearchOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.SearchCandidate
		err   error
		want  string
	}{
		{"no results", nil, nil, noSolidSource},
		{"rate limited", nil, &gateway.Error{Kind: gateway.KindRateLimitedUpstream}, searchBusy},
		{"misconfigured", nil, &gateway.Error{Kind: gateway.KindMisconfigured}, searchDown},
		{"transport failure", nil, errors.New("connection refused"), searchDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, ret := newTestRouter(nil, llm.NewMockCompleter())
			ret.items, ret.searchErr = tt.items, tt.err
			s := NewSession("s1", 6)
			ctx := context.Background()

			router.Handle(ctx, s, "what is birth control")
			reply := router.Handle(ctx, s, "yes")

			if reply.Text != tt.want {
				t.Errorf("reply = %q, want %q", reply.Text, tt.want)
			}
			if reply.State != StateIdle {
				t.Errorf("state = %s, want idle", reply.State)
			}
		})
	}
}

func TestGreetingVariesWhenRepeated(t *testing.T) {
	router, _ := newTestRouter(nil, llm.NewMockCompleter())
	s := NewSession("s1", 6)
	ctx := context.Background()

	first := router.Handle(ctx, s, "hello")
	second := router.Handle(ctx, s, "hi")

	if first.Text != greetings[1] {
		t.Errorf("first greeting = %q", first.Text)
	}
	if second.Text != repeatGreetings[0] {
		t.Errorf("second greeting = %q", second.Text)
	}
	if checkIn := router.Handle(ctx, s, "how are you?"); checkIn.Text != socialCheckInReply {
		t.Errorf("check-in reply = %q", checkIn.Text)
	}
}

func TestKnowledgeParaphrase(t *testing.T) {
	model := llm.NewMockCompleter("Jaundice makes skin look yellow. Feed your baby often.")
	router, ret := newTestRouter([]domain.TopicDocument{jaundiceDoc()}, model)
	s := NewSession("s1", 6)
	ctx := context.Background()

	reply := router.Handle(ctx, s, "what is jaundice")

	if reply.Route != RouteKnowledge {
		t.Fatalf("expected knowledge route, got %+v", reply)
	}
	if !strings.HasPrefix(reply.Text, "Jaundice makes skin look yellow.") {
		t.Errorf("expected paraphrase, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Get care right away if:\n- Your baby is very sleepy and will not feed.") {
		t.Errorf("expected urgent-care items to be appended, got %q", reply.Text)
	}
	if len(ret.searches) != 0 {
		t.Errorf("knowledge answers must not search, got %v", ret.searches)
	}
	prompt := model.Calls[0]
	if !strings.Contains(prompt[1].Content, "Jaundice is a yellow colour") {
		t.Errorf("expected document in prompt, got %q", prompt[1].Content)
	}

	more := router.Handle(ctx, s, "tell me more")
	if !strings.Contains(more.Text, "Feed your baby often.") || more.Intent != domain.IntentFollowup {
		t.Errorf("unexpected follow-up %+v", more)
	}
}

func TestKnowledgeFallsBackWhenModelFails(t *testing.T) {
	model := llm.NewMockCompleter()
	model.Err = errors.New("model offline")
	router, _ := newTestRouter([]domain.TopicDocument{jaundiceDoc()}, model)
	s := NewSession("s1", 6)

	reply := router.Handle(context.Background(), s, "my baby has yellow skin")

	if reply.Text != documentText(jaundiceDoc()) {
		t.Errorf("expected document rendering, got %q", reply.Text)
	}
}

func TestFollowupWithoutTopic(t *testing.T) {
	router, _ := newTestRouter(nil, llm.NewMockCompleter())
	reply := router.Handle(context.Background(), NewSession("s1", 6), "tell me more")
	if reply.Text != followupNoTopic {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestSupportiveChat(t *testing.T) {
	model := llm.NewMockCompleter(`{"route": "chat"}`, "That sounds really hard. I'm here with you.")
	router, _ := newTestRouter(nil, model)
	s := NewSession("s1", 6)

	reply := router.Handle(context.Background(), s, "i feel a bit lonely today")

	if reply.Route != RouteChat || reply.Text != "That sounds really hard. I'm here with you." {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if model.CallCount() != 2 {
		t.Fatalf("expected route and reply calls, got %d", model.CallCount())
	}
	chat := model.Calls[1]
	if chat[0].Role != llm.RoleSystem || !strings.Contains(chat[0].Content, "sad") {
		t.Errorf("expected tone-conditioned system prompt, got %+v", chat[0])
	}
	if last := chat[len(chat)-1]; last.Role != llm.RoleUser || last.Content != "i feel a bit lonely today" {
		t.Errorf("expected user message last, got %+v", last)
	}
}

func TestModelRouteToInfoAsksConsent(t *testing.T) {
	model := llm.NewMockCompleter("Sure! {\"route\": \"info\"}")
	router, ret := newTestRouter(nil, model)
	s := NewSession("s1", 6)

	reply := router.Handle(context.Background(), s, "i keep wondering about my milk supply")

	if reply.State != StateAwaitingConsent || reply.Intent != domain.IntentInfo {
		t.Fatalf("expected consent prompt, got %+v", reply)
	}
	if len(ret.searches) != 0 {
		t.Errorf("expected no search before consent, got %v", ret.searches)
	}
}

func TestModelFailureGivesFixedMessage(t *testing.T) {
	model := llm.NewMockCompleter()
	model.Err = errors.New("model offline")
	router, _ := newTestRouter(nil, model)

	reply := router.Handle(context.Background(), NewSession("s1", 6), "i feel a bit lonely today")

	if reply.Text != modelFailure {
		t.Errorf("reply = %q, want %q", reply.Text, modelFailure)
	}
}

func TestEmptyMessage(t *testing.T) {
	router, _ := newTestRouter(nil, llm.NewMockCompleter())
	s := NewSession("s1", 6)
	reply := router.Handle(context.Background(), s, "   ")
	if reply.Text != emptyMessage {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Snapshot().Turn != 0 {
		t.Error("empty messages must not count as turns")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	router, _ := newTestRouter(nil, llm.NewMockCompleter())
	s := NewSession("s1", 4)
	for range 5 {
		router.Handle(context.Background(), s, "thank you")
	}
	if n := len(s.Snapshot().History); n != 4 {
		t.Errorf("history length = %d, want 4", n)
	}
}

func TestManagerSweep(t *testing.T) {
	m := NewManager(6, time.Minute)
	a := m.Get("a")
	if m.Get("a") != a {
		t.Fatal("expected the same session for the same key")
	}
	m.Get("b")

	if n := m.Sweep(time.Now()); n != 0 {
		t.Errorf("swept %d fresh sessions", n)
	}
	if n := m.Sweep(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Errorf("swept %d, want 2", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}
