// Package retrieval loads a directory of markdown policy/reference documents,
// chunks them by section, and serves nearest-neighbor text queries over a
// term-weighted (TF-IDF) vector index. The index is built once at
// construction and is read-only afterwards, so it may be shared across
// concurrent workflows.
package retrieval

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Chunk is a contiguous unit of source document text with a stable id, the
// atomic retrieval result.
type Chunk struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Index is an in-memory TF-IDF index over document chunks.
type Index struct {
	chunks  []Chunk
	vocab   map[string]int // term -> term index
	idf     []float64
	vectors []map[int]float64 // per chunk, L2-normalized
}

// maxSectionLen is the size above which a section is further split on
// paragraph boundaries.
const maxSectionLen = 2000

var tokenPattern = regexp.MustCompile(`\w\w+`)

// NewIndex loads every *.md file under docsDir and builds the index. File
// paths are sorted lexicographically so chunk ids are reproducible across
// platforms. A missing or empty directory yields an empty, queryable index.
func NewIndex(docsDir string) (*Index, error) {
	paths, err := filepath.Glob(filepath.Join(docsDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", docsDir, err)
	}
	sort.Strings(paths)

	idx := &Index{}
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".md")
		idx.chunks = append(idx.chunks, chunkDocument(name, string(content))...)
	}

	idx.build()
	return idx, nil
}

// newIndexFromChunks builds an index over pre-made chunks. Used by tests.
func newIndexFromChunks(chunks []Chunk) *Index {
	idx := &Index{chunks: chunks}
	idx.build()
	return idx
}

// chunkDocument splits a document on "## " section headers, and splits
// oversized sections again on blank-line paragraph boundaries. Blank chunks
// are dropped; ids number the emitted chunks per document.
func chunkDocument(name, content string) []Chunk {
	var chunks []Chunk
	ordinal := 0

	emit := func(text string) {
		lines := make([]string, 0)
		for _, line := range strings.Split(text, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
		if len(lines) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			ID:      fmt.Sprintf("%s::chunk%d", name, ordinal),
			Content: strings.Join(lines, "\n"),
			Source:  name,
		})
		ordinal++
	}

	sections := strings.Split(content, "\n## ")
	for i, section := range sections {
		if i > 0 {
			section = "## " + section
		}
		if len(section) <= maxSectionLen {
			emit(section)
			continue
		}
		for _, para := range splitParagraphs(section) {
			emit(para)
		}
	}
	return chunks
}

// splitParagraphs splits on runs of blank lines.
func splitParagraphs(text string) []string {
	var paras []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			paras = append(paras, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return paras
}

// tokenize lowercases and extracts word tokens of length >= 2, excluding
// stop words.
func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// build computes the vocabulary, smoothed IDF weights, and one L2-normalized
// TF-IDF vector per chunk.
func (idx *Index) build() {
	if len(idx.chunks) == 0 {
		return
	}

	idx.vocab = make(map[string]int)
	tokenized := make([][]string, len(idx.chunks))
	df := make(map[string]int)

	for i, chunk := range idx.chunks {
		tokenized[i] = tokenize(chunk.Content)
		seen := make(map[string]bool)
		for _, tok := range tokenized[i] {
			if _, ok := idx.vocab[tok]; !ok {
				idx.vocab[tok] = len(idx.vocab)
			}
			if !seen[tok] {
				df[tok]++
				seen[tok] = true
			}
		}
	}

	n := float64(len(idx.chunks))
	idx.idf = make([]float64, len(idx.vocab))
	for term, ti := range idx.vocab {
		idx.idf[ti] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	idx.vectors = make([]map[int]float64, len(idx.chunks))
	for i, tokens := range tokenized {
		idx.vectors[i] = idx.vectorize(tokens)
	}
}

// vectorize maps tokens to a normalized sparse TF-IDF vector. Tokens outside
// the vocabulary are dropped.
func (idx *Index) vectorize(tokens []string) map[int]float64 {
	vec := make(map[int]float64)
	for _, tok := range tokens {
		if ti, ok := idx.vocab[tok]; ok {
			vec[ti]++
		}
	}
	var norm float64
	for ti, tf := range vec {
		w := tf * idx.idf[ti]
		vec[ti] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for ti := range vec {
			vec[ti] /= norm
		}
	}
	return vec
}

// Len reports the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Search returns up to topK chunks ranked by descending cosine similarity to
// the query, excluding any chunk with similarity <= 0.
func (idx *Index) Search(query string, topK int) []Chunk {
	if len(idx.chunks) == 0 || topK <= 0 {
		return nil
	}

	qvec := idx.vectorize(tokenize(query))

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0)
	for i, vec := range idx.vectors {
		// Both vectors are L2-normalized, so cosine similarity is the dot
		// product over the smaller support.
		var sim float64
		a, b := qvec, vec
		if len(b) < len(a) {
			a, b = b, a
		}
		for ti, w := range a {
			sim += w * b[ti]
		}
		if sim > 0 {
			candidates = append(candidates, scored{idx: i, score: sim})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].idx < candidates[j].idx
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]Chunk, 0, len(candidates))
	for _, c := range candidates {
		chunk := idx.chunks[c.idx]
		chunk.Score = c.score
		results = append(results, chunk)
	}
	return results
}
