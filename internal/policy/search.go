// Package policy provides the policy knowledge-base search backend. It serves
// ranked policy snippets for free-text queries using keyword scoring over a
// document corpus: the built-in company policy set plus any documents found in
// a configured directory.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"cxrescue/internal/logging"
)

// Document is one policy document in the corpus.
type Document struct {
	ID      string
	Content string
}

// Searcher scores corpus documents against queries and formats the top
// matches as free-text policy context.
type Searcher struct {
	docs []Document
}

// NewSearcher creates a searcher over the built-in corpus. When docsDir is
// non-empty, .md and .txt files found there extend the corpus (file name
// without extension becomes the document id).
func NewSearcher(docsDir string) (*Searcher, error) {
	s := &Searcher{docs: builtinCorpus()}

	if docsDir != "" {
		entries, err := os.ReadDir(docsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy docs dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := filepath.Ext(entry.Name())
			if ext != ".md" && ext != ".txt" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(docsDir, entry.Name()))
			if err != nil {
				logging.Policy("Skipping unreadable policy doc %s: %v", entry.Name(), err)
				continue
			}
			s.docs = append(s.docs, Document{
				ID:      strings.TrimSuffix(entry.Name(), ext),
				Content: string(data),
			})
		}
	}

	logging.Policy("Policy searcher initialized with %d documents", len(s.docs))
	return s, nil
}

// AddDocument adds a document to the corpus.
func (s *Searcher) AddDocument(id, content string) {
	s.docs = append(s.docs, Document{ID: id, Content: content})
}

type scoredDoc struct {
	doc   Document
	score float64
}

// Search returns the top-k documents relevant to query, formatted as policy
// context text. Returns an empty string when nothing in the corpus matches.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if topK <= 0 {
		topK = 5
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return "", nil
	}

	var candidates []scoredDoc
	for _, doc := range s.docs {
		score := scoreDocument(doc.Content, terms)
		if score > 0 {
			candidates = append(candidates, scoredDoc{doc: doc, score: score})
		}
	}
	if len(candidates) == 0 {
		logging.Policy("No policy documents matched query %q", query)
		return "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	logging.Policy("Query %q matched %d documents", query, len(candidates))
	return formatResults(candidates), nil
}

// scoreDocument scores one document against the query terms: fraction of
// distinct terms present, boosted when several distinct terms hit.
func scoreDocument(content string, terms []string) float64 {
	lower := strings.ToLower(content)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	score := float64(matched) / float64(len(terms))
	if matched > 1 {
		score *= 1.0 + float64(matched-1)*0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func formatResults(results []scoredDoc) string {
	var b strings.Builder
	b.WriteString("RELEVANT COMPANY POLICIES:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "Policy %d (%s) - Relevance: %.2f\n", i+1, r.doc.ID, r.score)
		b.WriteString(r.doc.Content)
		b.WriteString("\n\n")
		b.WriteString(strings.Repeat("-", 50))
		b.WriteString("\n\n")
	}
	return b.String()
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "with": true,
}

// tokenize lowercases the query and splits it into distinct non-stopword
// terms of 3+ characters.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool)
	var terms []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
