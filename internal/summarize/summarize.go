// Package summarize selects verbatim sentences from a source that answer a
// question. Every returned bullet is a literal substring of the excerpt the
// model was shown; anything else the model writes is discarded.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/carenav/internal/llm"
)

const (
	// MaxBullets caps the number of quotes returned.
	MaxBullets = 5

	leadWindowEnd    = 8000
	retryWindowStart = 6000
	retryWindowEnd   = 14000
)

// ErrNoQuotableContent is returned when neither window produced a verified quote.
var ErrNoQuotableContent = errors.New("no quotable content")

const systemPrompt = `You select sentences from a source text. You never write your own words.
Copy 3 to 5 sentences from the EXCERPT that best answer the QUESTION.
Copy each sentence exactly as it appears, character for character.
Return one sentence per line, each starting with "- ".
If nothing in the excerpt answers the question, return nothing.`

// Summarizer runs the extractive selection protocol against a model.
type Summarizer struct {
	model  llm.Completer
	logger *slog.Logger
}

// New creates a Summarizer backed by model.
func New(model llm.Completer, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{model: model, logger: logger}
}

// Summarize returns up to MaxBullets verbatim sentences from text answering
// question. It tries the lead window first and one later window second.
func (s *Summarizer) Summarize(ctx context.Context, question, text string) ([]string, error) {
	runes := []rune(text)
	lead := window(runes, 0, leadWindowEnd)

	bullets, err := s.selectFrom(ctx, question, lead)
	if err != nil {
		return nil, err
	}
	if len(bullets) > 0 {
		return bullets, nil
	}

	if len(runes) <= retryWindowStart {
		return nil, ErrNoQuotableContent
	}
	s.logger.Debug("No verified quotes in lead window, retrying later window",
		"question_len", len(question),
		"text_runes", len(runes),
	)
	bullets, err = s.selectFrom(ctx, question, window(runes, retryWindowStart, retryWindowEnd))
	if err != nil {
		return nil, err
	}
	if len(bullets) == 0 {
		return nil, ErrNoQuotableContent
	}
	return bullets, nil
}

func (s *Summarizer) selectFrom(ctx context.Context, question, excerpt string) ([]string, error) {
	if strings.TrimSpace(excerpt) == "" {
		return nil, nil
	}
	out, err := s.model.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: "QUESTION: " + question + "\n\nEXCERPT:\n" + excerpt},
	}, llm.Options{Temperature: 0, TopP: 1, MaxTokens: 600})
	if err != nil {
		return nil, fmt.Errorf("select sentences: %w", err)
	}
	verified, dropped := Verify(out, excerpt)
	if dropped > 0 {
		s.logger.Info("Discarded unverifiable model lines", "dropped", dropped, "kept", len(verified))
	}
	return verified, nil
}

// Verify keeps the lines of modelOutput that appear verbatim in excerpt,
// drops duplicates by a case and whitespace insensitive key, and caps the
// result at MaxBullets. It also reports how many non-empty lines failed the
// substring check.
func Verify(modelOutput, excerpt string) ([]string, int) {
	var out []string
	seen := make(map[string]bool)
	dropped := 0
	for _, line := range strings.Split(modelOutput, "\n") {
		line = trimBullet(line)
		if line == "" {
			continue
		}
		if !strings.Contains(excerpt, line) {
			dropped++
			continue
		}
		key := dedupeKey(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
		if len(out) == MaxBullets {
			break
		}
	}
	return out, dropped
}

func trimBullet(line string) string {
	line = strings.TrimSpace(line)
	for _, marker := range []string{"- ", "* ", "• ", "– "} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			line = rest
			break
		}
	}
	// numbered lists: "1. " or "1) "
	if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 && isDigits(line[:i]) && len(line) > i+1 && line[i+1] == ' ' {
		line = line[i+2:]
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(line), `"“”`))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func dedupeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func window(runes []rune, start, end int) string {
	if start >= len(runes) {
		return ""
	}
	return string(runes[start:min(end, len(runes))])
}
