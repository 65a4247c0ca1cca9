// Package search implements the in-memory inverted/tag/type index,
// its persistence to a key-value tier, and optional AEAD encryption at
// rest (base §4.F).
package search

import (
	"math"
	"sort"
	"sync"
)

// Metadata is the per-CID cache entry held alongside the indices.
type Metadata struct {
	Title       string
	Author      string
	Tags        []string
	ContentType string
	Size        int64
	Created     int64 // unix milliseconds
}

// Query carries the optional filters a Search call accepts.
type Query struct {
	TextTerms    []string
	Tags         []string
	ContentTypes []string
	Limit        int
	Offset       int
}

// Result is one scored match.
type Result struct {
	CID      string
	Score    float64
	Metadata Metadata
}

// Index holds the inverted/tag/type indices and metadata cache
// described in base §4.F, all protected by a single RWMutex: updates
// are synchronous with a successful store and idempotent.
type Index struct {
	mu       sync.RWMutex
	inverted map[string]map[string]bool // token -> cid set
	tags     map[string]map[string]bool // tag -> cid set
	types    map[string]map[string]bool // content_type -> cid set
	meta     map[string]Metadata        // cid -> metadata
}

// New returns an empty index.
func New() *Index {
	return &Index{
		inverted: make(map[string]map[string]bool),
		tags:     make(map[string]map[string]bool),
		types:    make(map[string]map[string]bool),
		meta:     make(map[string]Metadata),
	}
}

// Put indexes cid under the tokens derived from text, its declared
// tags, its content type, and caches meta. Re-indexing the same cid is
// idempotent: prior entries for cid are replaced, not accumulated.
func (idx *Index) Put(cid string, text string, meta Metadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(cid)

	for _, tok := range tokenize(text) {
		set, ok := idx.inverted[tok]
		if !ok {
			set = make(map[string]bool)
			idx.inverted[tok] = set
		}
		set[cid] = true
	}
	for _, tag := range meta.Tags {
		set, ok := idx.tags[tag]
		if !ok {
			set = make(map[string]bool)
			idx.tags[tag] = set
		}
		set[cid] = true
	}
	if meta.ContentType != "" {
		set, ok := idx.types[meta.ContentType]
		if !ok {
			set = make(map[string]bool)
			idx.types[meta.ContentType] = set
		}
		set[cid] = true
	}
	idx.meta[cid] = meta
}

// Remove drops cid from every index and the metadata cache.
func (idx *Index) Remove(cid string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(cid)
}

func (idx *Index) removeLocked(cid string) {
	for _, set := range idx.inverted {
		delete(set, cid)
	}
	for _, set := range idx.tags {
		delete(set, cid)
	}
	for _, set := range idx.types {
		delete(set, cid)
	}
	delete(idx.meta, cid)
}

// Search runs q against the index: text terms intersect, tags
// intersect (AND), and content types restrict the candidate set.
// Results are scored by matched-term count weighted by an idf-like
// per-term weight, ties broken by most recent Created, then sliced by
// offset/limit.
func (idx *Index) Search(q Query) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates, scores := idx.candidatesAndScores(q.TextTerms)

	if len(q.Tags) > 0 {
		candidates = intersectWithSets(candidates, idx.tags, q.Tags)
	}
	if len(q.ContentTypes) > 0 {
		var typeUnion map[string]bool
		for _, ct := range q.ContentTypes {
			set := idx.types[ct]
			if typeUnion == nil {
				typeUnion = make(map[string]bool, len(set))
			}
			for cid := range set {
				typeUnion[cid] = true
			}
		}
		candidates = intersectSet(candidates, typeUnion)
	}

	results := make([]Result, 0, len(candidates))
	for cid := range candidates {
		results = append(results, Result{CID: cid, Score: scores[cid], Metadata: idx.meta[cid]})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Metadata.Created > results[j].Metadata.Created
	})

	return paginate(results, q.Offset, q.Limit)
}

// candidatesAndScores intersects the postings for each text term and
// accumulates a per-cid score of matched-term count weighted by
// log(N / (1 + df)).
func (idx *Index) candidatesAndScores(terms []string) (map[string]bool, map[string]float64) {
	scores := make(map[string]float64)
	if len(terms) == 0 {
		all := make(map[string]bool, len(idx.meta))
		for cid := range idx.meta {
			all[cid] = true
			scores[cid] = 0
		}
		return all, scores
	}

	n := float64(len(idx.meta))
	var candidates map[string]bool
	for _, term := range terms {
		set := idx.inverted[tokenizeSingle(term)]
		df := float64(len(set))
		weight := math.Log(n / (1 + df))
		for cid := range set {
			scores[cid] += weight
		}
		if candidates == nil {
			candidates = make(map[string]bool, len(set))
			for cid := range set {
				candidates[cid] = true
			}
		} else {
			candidates = intersectSet(candidates, set)
		}
	}
	if candidates == nil {
		candidates = make(map[string]bool)
	}
	return candidates, scores
}

// tokenizeSingle normalizes a single query term the same way indexed
// text is tokenized, so "Café" and "café" match the same postings.
func tokenizeSingle(term string) string {
	toks := tokenize(term)
	if len(toks) == 0 {
		return term
	}
	return toks[0]
}

func intersectSet(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for cid := range a {
		if b[cid] {
			out[cid] = true
		}
	}
	return out
}

func intersectWithSets(candidates map[string]bool, sets map[string]map[string]bool, keys []string) map[string]bool {
	out := candidates
	for _, k := range keys {
		out = intersectSet(out, sets[k])
	}
	return out
}

func paginate(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
