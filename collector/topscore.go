// Copyright 2023 The Kite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package collector gathers the per-segment matches a query evaluation
// produces into a single bounded, globally ordered result set.
package collector

import (
	"container/heap"
	"sort"

	"github.com/kitesearch/kite"
)

// ScoredDoc pairs a matched document with its score.
type ScoredDoc struct {
	Doc   kite.DocID
	Score float64
}

// less reports whether a is worse than b: lower score loses, and on a
// score tie the higher DocID loses (so the min-heap evicts it first,
// leaving ascending-DocID as the tie-break among survivors).
func less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return b.Doc.Less(a.Doc)
}

// TopScoreCollector is a bounded min-heap keyed by score: once it holds K
// documents, a new match only survives if it beats the current worst.
type TopScoreCollector struct {
	k    int
	docs scoredHeap
}

// NewTopScoreCollector returns a collector that keeps the best k matches.
func NewTopScoreCollector(k int) *TopScoreCollector {
	return &TopScoreCollector{k: k, docs: make(scoredHeap, 0, k)}
}

// Collect offers one match to the collector.
func (c *TopScoreCollector) Collect(doc kite.DocID, score float64) {
	if c.k <= 0 {
		return
	}
	entry := ScoredDoc{Doc: doc, Score: score}
	if len(c.docs) < c.k {
		heap.Push(&c.docs, entry)
		return
	}
	if less(c.docs[0], entry) {
		c.docs[0] = entry
		heap.Fix(&c.docs, 0)
	}
}

// Len reports how many matches are currently retained.
func (c *TopScoreCollector) Len() int { return len(c.docs) }

// IntoSortedVec returns a copy of the retained matches sorted by
// descending score with ties broken by ascending DocID. The collector
// itself is left unchanged.
func (c *TopScoreCollector) IntoSortedVec() []ScoredDoc {
	out := make([]ScoredDoc, len(c.docs))
	copy(out, c.docs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Doc.Less(out[j].Doc)
	})
	return out
}

// scoredHeap is a container/heap.Interface min-heap ordered by less.
type scoredHeap []ScoredDoc

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(ScoredDoc)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
