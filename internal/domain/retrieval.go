package domain

// TopicSection is one headed block of a knowledge-pack document.
type TopicSection struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// TopicDocument is a normalized knowledge-pack entry. It is immutable once
// loaded and keyed by Path.
type TopicDocument struct {
	Title       string         `json:"title"`
	Keywords    []string       `json:"keywords,omitempty"`
	Aliases     []string       `json:"aliases,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Path        string         `json:"path"`
	Definition  string         `json:"definition,omitempty"`
	Reassurance string         `json:"reassurance,omitempty"`
	Steps       []string       `json:"steps,omitempty"`
	RedFlags    []string       `json:"red_flags,omitempty"`
	SeekCareNow []string       `json:"seek_care_now,omitempty"`
	Sections    []TopicSection `json:"sections,omitempty"`
}

// SearchCandidate is one search result awaiting user selection.
type SearchCandidate struct {
	Title   string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Score   int    `json:"score,omitempty"`
}

// ExtractedArticle is the readable text of a fetched page.
type ExtractedArticle struct {
	URL       string `json:"url,omitempty"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	CharCount int    `json:"charCount"`
	Truncated bool   `json:"truncated"`
}
