package memory

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

type field int

const (
	fieldTitle field = iota
	fieldContent
	fieldCategory
	numFields
)

// BM25Index is a field-weighted BM25 (BM25F) inverted index over records.
type BM25Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// term -> set of record ids
	invertedIndex map[string]map[string]struct{}

	// record id -> per-field term frequencies
	termFreqs map[string]*[numFields]map[string]int

	// record id -> per-field token counts
	docLengths map[string][numFields]int

	// record id -> memory type, for table-scoped searches
	types map[string]MemoryType

	totalDocs int
	totalLen  [numFields]int

	stopWords map[string]struct{}
}

// NewBM25Index creates an empty index with the given BM25 parameters.
func NewBM25Index(k1, b float64) *BM25Index {
	return &BM25Index{
		k1:            k1,
		b:             b,
		invertedIndex: make(map[string]map[string]struct{}),
		termFreqs:     make(map[string]*[numFields]map[string]int),
		docLengths:    make(map[string][numFields]int),
		types:         make(map[string]MemoryType),
		stopWords:     defaultStopWords(),
	}
}

// Index adds or replaces a record in the index.
func (idx *BM25Index) Index(r *Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.termFreqs[r.ID]; exists {
		idx.removeLocked(r.ID)
	}

	texts := [numFields]string{r.Summary, r.Content, strings.ReplaceAll(r.Category, "/", " ")}
	var freqs [numFields]map[string]int
	var lengths [numFields]int
	for f := field(0); f < numFields; f++ {
		tokens := idx.tokenize(texts[f])
		freqs[f] = make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[f][tok]++
		}
		lengths[f] = len(tokens)
		idx.totalLen[f] += len(tokens)

		for term := range freqs[f] {
			if idx.invertedIndex[term] == nil {
				idx.invertedIndex[term] = make(map[string]struct{})
			}
			idx.invertedIndex[term][r.ID] = struct{}{}
		}
	}

	idx.termFreqs[r.ID] = &freqs
	idx.docLengths[r.ID] = lengths
	idx.types[r.ID] = r.MemoryType
	idx.totalDocs++
}

// Remove drops a record from the index.
func (idx *BM25Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *BM25Index) removeLocked(id string) {
	freqs, exists := idx.termFreqs[id]
	if !exists {
		return
	}
	lengths := idx.docLengths[id]
	for f := field(0); f < numFields; f++ {
		for term := range freqs[f] {
			if docs, ok := idx.invertedIndex[term]; ok {
				delete(docs, id)
				if len(docs) == 0 {
					delete(idx.invertedIndex, term)
				}
			}
		}
		idx.totalLen[f] -= lengths[f]
	}
	idx.totalDocs--
	delete(idx.termFreqs, id)
	delete(idx.docLengths, id)
	delete(idx.types, id)
}

// Search ranks records against the query text and returns at most topK hits.
// A non-empty types slice restricts the search to those tables.
func (idx *BM25Index) Search(query string, weights FieldWeights, topK int, types []MemoryType) []TextHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 {
		return nil
	}
	queryTokens := idx.tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	w := [numFields]float64{weights.Title, weights.Content, weights.Category}
	var avgLen [numFields]float64
	for f := field(0); f < numFields; f++ {
		avgLen[f] = float64(idx.totalLen[f]) / float64(idx.totalDocs)
	}

	filter := RecordFilter{Types: types}
	candidates := make(map[string]struct{})
	for _, tok := range queryTokens {
		for id := range idx.invertedIndex[tok] {
			if !filter.HasType(idx.types[id]) {
				continue
			}
			candidates[id] = struct{}{}
		}
	}

	hits := make([]TextHit, 0, len(candidates))
	for id := range candidates {
		if score := idx.scoreLocked(id, queryTokens, w, avgLen); score > 0 {
			hits = append(hits, TextHit{ID: id, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

// Len returns the number of indexed records.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalDocs
}

// scoreLocked computes BM25F: per-field normalised term frequencies are
// weighted and summed before saturation. Caller holds the read lock.
func (idx *BM25Index) scoreLocked(id string, queryTokens []string, w [numFields]float64, avgLen [numFields]float64) float64 {
	freqs := idx.termFreqs[id]
	lengths := idx.docLengths[id]
	score := 0.0

	for _, term := range queryTokens {
		wtf := 0.0
		for f := field(0); f < numFields; f++ {
			tf := float64(freqs[f][term])
			if tf == 0 || w[f] == 0 {
				continue
			}
			norm := 1.0
			if avgLen[f] > 0 {
				norm = 1 - idx.b + idx.b*float64(lengths[f])/avgLen[f]
			}
			wtf += w[f] * tf / norm
		}
		if wtf == 0 {
			continue
		}

		// IDF: log((N - n + 0.5) / (n + 0.5) + 1)
		n := float64(len(idx.invertedIndex[term]))
		idf := math.Log((float64(idx.totalDocs)-n+0.5)/(n+0.5) + 1.0)

		score += idf * wtf * (idx.k1 + 1) / (wtf + idx.k1)
	}
	return score
}

// Tokenize exposes the index tokenizer so callers can inspect query terms.
func (idx *BM25Index) Tokenize(text string) []string {
	return idx.tokenize(text)
}

// tokenize splits text into folded tokens, dropping punctuation and stop words.
func (idx *BM25Index) tokenize(text string) []string {
	text = Fold(text)

	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		token := current.String()
		if _, isStop := idx.stopWords[token]; !isStop {
			tokens = append(tokens, token)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			flush()
			tokens = append(tokens, string(r))
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "shall", "can", "to", "of", "in", "for",
		"on", "with", "at", "by", "from", "as", "into", "through", "during",
		"and", "but", "or", "nor", "not", "so", "yet", "both", "each",
		"all", "any", "some", "such", "no", "only", "than", "too", "very",
		"just", "if", "when", "where", "how", "what", "which", "who", "this",
		"that", "these", "those", "i", "me", "my", "we", "our", "you", "your",
		"he", "him", "his", "she", "her", "it", "its", "they", "them", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
