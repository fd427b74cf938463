// Package knowledge loads the local knowledge pack and resolves user
// messages to topic documents.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/ashureev/carenav/internal/domain"
)

// Catalog is an immutable set of topic documents keyed by path.
type Catalog struct {
	docs   []domain.TopicDocument
	byPath map[string]int
}

// NewCatalog builds a catalog from already-normalized documents. Catalog
// order is the order given.
func NewCatalog(docs []domain.TopicDocument) *Catalog {
	c := &Catalog{
		docs:   make([]domain.TopicDocument, len(docs)),
		byPath: make(map[string]int, len(docs)),
	}
	copy(c.docs, docs)
	for i, d := range c.docs {
		c.byPath[d.Path] = i
	}
	return c
}

// LoadDir reads every *.json file below dir. An empty or missing dir yields
// an empty catalog.
func LoadDir(dir string) (*Catalog, error) {
	if dir == "" {
		return NewCatalog(nil), nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewCatalog(nil), nil
	}
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads every *.json file in fsys, ordered by path.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(path.Ext(p), ".json") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge pack: %w", err)
	}
	slices.Sort(paths)

	docs := make([]domain.TopicDocument, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		doc, err := ParseDocument(strings.TrimSuffix(p, path.Ext(p)), data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		docs = append(docs, doc)
	}
	return NewCatalog(docs), nil
}

// rawDocument accepts every historical schema variant of a pack file.
type rawDocument struct {
	Title         string            `json:"title"`
	Name          string            `json:"name"`
	Keywords      []string          `json:"keywords"`
	Aliases       []string          `json:"aliases"`
	Tags          []string          `json:"tags"`
	Definition    string            `json:"definition"`
	Summary       string            `json:"summary"`
	Reassurance   string            `json:"reassurance"`
	Reassure      string            `json:"reassure"`
	Steps         []string          `json:"steps"`
	RedFlags      []string          `json:"red_flags"`
	RedFlagsCamel []string          `json:"redFlags"`
	SeekCareNow   []string          `json:"seek_care_now"`
	SeekCareCamel []string          `json:"seekCareNow"`
	Sections      []json.RawMessage `json:"sections"`
}

type rawSection struct {
	Heading string `json:"heading"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

// ParseDocument normalizes one pack file into a TopicDocument.
func ParseDocument(docPath string, data []byte) (domain.TopicDocument, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.TopicDocument{}, fmt.Errorf("decode document: %w", err)
	}

	doc := domain.TopicDocument{
		Title:       firstNonEmpty(raw.Title, raw.Name, path.Base(docPath)),
		Keywords:    cleanList(raw.Keywords),
		Aliases:     cleanList(raw.Aliases),
		Tags:        cleanList(raw.Tags),
		Path:        docPath,
		Definition:  firstNonEmpty(raw.Definition, raw.Summary),
		Reassurance: firstNonEmpty(raw.Reassurance, raw.Reassure),
		Steps:       cleanList(raw.Steps),
		RedFlags:    cleanList(append(raw.RedFlags, raw.RedFlagsCamel...)),
		SeekCareNow: cleanList(append(raw.SeekCareNow, raw.SeekCareCamel...)),
	}

	for i, rs := range raw.Sections {
		var text string
		if err := json.Unmarshal(rs, &text); err == nil {
			if text = strings.TrimSpace(text); text != "" {
				doc.Sections = append(doc.Sections, domain.TopicSection{Body: text})
			}
			continue
		}
		var sec rawSection
		if err := json.Unmarshal(rs, &sec); err != nil {
			return domain.TopicDocument{}, fmt.Errorf("decode section %d: %w", i, err)
		}
		body := strings.TrimSpace(firstNonEmpty(sec.Body, sec.Text, sec.Content))
		if body == "" {
			continue
		}
		doc.Sections = append(doc.Sections, domain.TopicSection{
			Heading: strings.TrimSpace(firstNonEmpty(sec.Heading, sec.Title)),
			Body:    body,
		})
	}
	return doc, nil
}

// Len returns the number of documents.
func (c *Catalog) Len() int {
	return len(c.docs)
}

// Documents returns a copy of the documents in catalog order.
func (c *Catalog) Documents() []domain.TopicDocument {
	out := make([]domain.TopicDocument, len(c.docs))
	copy(out, c.docs)
	return out
}

// Get returns the document stored at docPath.
func (c *Catalog) Get(docPath string) (domain.TopicDocument, bool) {
	i, ok := c.byPath[docPath]
	if !ok {
		return domain.TopicDocument{}, false
	}
	return c.docs[i], true
}

// topicPaths maps intent topics to the pack document that covers the topic
// as a whole. Topics without an entry have no general document.
var topicPaths = map[string]string{
	"breastfeeding": "breastfeeding",
	"newborn":       "newborn/care",
	"psych":         "maternal/mental-health",
	"obstetric":     "maternal/pregnancy",
	"meds":          "medicines",
	"contraception": "contraception",
	"labour":        "maternal/labour",
	"postpartum":    "maternal/postpartum-recovery",
	"nutrition":     "nutrition",
	"warning_signs": "warning-signs",
	"clinic_visits": "clinic-visits",
	"immunization":  "immunization",
}

// ByTopic maps an intent topic (e.g. "contraception") to its general
// document. Documents that only mention a topic, such as a single newborn
// condition, are never returned.
func (c *Catalog) ByTopic(topic string) (domain.TopicDocument, bool) {
	docPath, ok := topicPaths[topic]
	if !ok {
		return domain.TopicDocument{}, false
	}
	return c.Get(docPath)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
