// Package fuzzy re-ranks an already fetched page of records by approximate text
// match. It never changes totals or page boundaries; those stay with the server.
package fuzzy

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

const DefaultThreshold = 0.35

var initScheme sync.Once

// Field extracts one searchable string from a record.
type Field[T any] struct {
	Name   string
	Weight float64
	Value  func(T) string
}

// Refiner scores records against weighted fields. It holds no mutable state and
// is safe for concurrent use.
type Refiner[T any] struct {
	fields    []Field[T]
	threshold float64
	total     float64
}

func NewRefiner[T any](threshold float64, fields ...Field[T]) *Refiner[T] {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	r := &Refiner[T]{threshold: threshold}
	for _, field := range fields {
		if field.Value == nil || field.Weight <= 0 {
			continue
		}
		r.fields = append(r.fields, field)
		r.total += field.Weight
	}
	return r
}

type scored[T any] struct {
	item  T
	score float64
}

// Refine returns the records whose best field similarity reaches the threshold,
// best match first. An empty query returns items as given. items is never modified.
func (r *Refiner[T]) Refine(items []T, query string) []T {
	terms := splitTerms(query)
	if len(terms) == 0 {
		return items
	}
	if len(r.fields) == 0 {
		return []T{}
	}

	m := newMatcher(terms)
	kept := make([]scored[T], 0, len(items))
	for _, item := range items {
		rank, best := r.score(m, item)
		if best < r.threshold {
			continue
		}
		kept = append(kept, scored[T]{item: item, score: rank})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	out := make([]T, len(kept))
	for i, entry := range kept {
		out[i] = entry.item
	}
	return out
}

// Score returns the weighted similarity of item to query in [0, 1].
func (r *Refiner[T]) Score(item T, query string) float64 {
	terms := splitTerms(query)
	if len(terms) == 0 || len(r.fields) == 0 {
		return 0
	}
	rank, _ := r.score(newMatcher(terms), item)
	return rank
}

// score returns the weighted rank and the best single-field similarity.
func (r *Refiner[T]) score(m *matcher, item T) (float64, float64) {
	var rank, best float64
	for _, field := range r.fields {
		similarity := m.similarity(field.Value(item))
		rank += similarity * field.Weight / r.total
		if similarity > best {
			best = similarity
		}
	}
	return rank, best
}

type matcher struct {
	terms [][]rune
	ideal []int
	slab  *util.Slab
}

func newMatcher(terms []string) *matcher {
	initScheme.Do(func() { algo.Init("default") })
	m := &matcher{slab: util.MakeSlab(16*1024, 2048)}
	for _, term := range terms {
		pattern := []rune(term)
		m.terms = append(m.terms, pattern)
		m.ideal = append(m.ideal, m.raw(term, pattern))
	}
	return m
}

// similarity averages, over all terms, the match score against text divided by
// the score the term earns against itself.
func (m *matcher) similarity(text string) float64 {
	text = strings.ToLower(text)
	if text == "" {
		return 0
	}
	var sum float64
	for i, pattern := range m.terms {
		if m.ideal[i] <= 0 {
			continue
		}
		ratio := float64(m.raw(text, pattern)) / float64(m.ideal[i])
		if ratio > 1 {
			ratio = 1
		}
		sum += ratio
	}
	return sum / float64(len(m.terms))
}

func (m *matcher) raw(text string, pattern []rune) int {
	chars := util.ToChars([]byte(text))
	result, _ := algo.FuzzyMatchV2(false, false, true, &chars, pattern, false, m.slab)
	if result.Start < 0 {
		return 0
	}
	return result.Score
}

func splitTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), unicode.IsSpace)
}
