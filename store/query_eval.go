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

package store

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/collector"
	"github.com/kitesearch/kite/query"
)

// matchSet is the per-segment intermediate result of evaluating one query
// node: which ordinals matched, and each matched ordinal's contribution
// to the final score. Deletions are never consulted while building one of
// these; they are subtracted exactly once, after the whole tree for a
// segment has been evaluated (spec.md §4.9).
type matchSet struct {
	bitmap *roaring.Bitmap
	scores map[uint32]float64
}

func newMatchSet() *matchSet {
	return &matchSet{bitmap: roaring.New(), scores: make(map[uint32]float64)}
}

func (m *matchSet) add(ord uint32, score float64) {
	m.bitmap.Add(ord)
	m.scores[ord] += score
}

// Search evaluates q over every segment visible to the Reader, collecting
// the best limit matches by score.
func (r *Reader) Search(q query.Query, limit int) ([]collector.ScoredDoc, error) {
	coll := collector.NewTopScoreCollector(limit)

	for _, segID := range r.segments {
		view := r.view(segID)

		result, err := r.evalNode(view, q)
		if err != nil {
			return nil, fmt.Errorf("store: evaluate query on segment %d: %w", segID, err)
		}

		dels, err := view.LoadDeletions()
		if err != nil {
			return nil, err
		}
		live := roaring.AndNot(result.bitmap, dels)

		it := live.Iterator()
		for it.HasNext() {
			ord := it.Next()
			doc := kite.DocID{Segment: segID, Ord: kite.Ordinal(ord)}
			coll.Collect(doc, result.scores[ord])
		}
	}

	return coll.IntoSortedVec(), nil
}

func (r *Reader) evalNode(v *segmentView, q query.Query) (*matchSet, error) {
	switch node := q.(type) {
	case *query.All:
		return r.evalAll(v, node)
	case *query.None:
		return newMatchSet(), nil
	case *query.Term:
		return r.evalTerm(v, node)
	case *query.MultiTerm:
		return r.evalMultiTerm(v, node)
	case *query.Conjunction:
		return r.evalConjunction(v, node)
	case *query.Disjunction:
		return r.evalDisjunction(v, node)
	case *query.DisjunctionMax:
		return r.evalDisjunctionMax(v, node)
	case *query.Filter:
		return r.evalFilter(v, node)
	case *query.Exclude:
		return r.evalExclude(v, node)
	default:
		return nil, fmt.Errorf("store: unsupported query node %T", q)
	}
}

func (r *Reader) evalAll(v *segmentView, node *query.All) (*matchSet, error) {
	total, err := v.LoadTotalDocs()
	if err != nil {
		return nil, err
	}
	m := newMatchSet()
	for ord := uint32(0); ord < uint32(total); ord++ {
		m.add(ord, node.Score)
	}
	return m, nil
}

func (r *Reader) evalTerm(v *segmentView, node *query.Term) (*matchSet, error) {
	termID, ok, err := r.resolveTerm(node.Term)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newMatchSet(), nil
	}
	return r.scoreTermPostings(v, node.Field, termID, node.Scorer)
}

func (r *Reader) evalMultiTerm(v *segmentView, node *query.MultiTerm) (*matchSet, error) {
	m := newMatchSet()
	var scanErr error
	err := r.scanTermsByPrefix(node.Selector.ScanPrefix(), func(termBytes []byte, id kite.TermID) error {
		if !node.Selector.Matches(termBytes) {
			return nil
		}
		sub, err := r.scoreTermPostings(v, node.Field, id, node.Scorer)
		if err != nil {
			scanErr = err
			return err
		}
		it := sub.bitmap.Iterator()
		for it.HasNext() {
			ord := it.Next()
			m.add(ord, sub.scores[ord])
		}
		return nil
	})
	if err != nil && scanErr == nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return m, nil
}

func (r *Reader) scoreTermPostings(v *segmentView, field kite.FieldID, term kite.TermID, scorer query.TermScorer) (*matchSet, error) {
	postings, err := v.LoadPosting(field, term)
	if err != nil {
		return nil, err
	}

	totalDocs, err := v.LoadTotalDocs()
	if err != nil {
		return nil, err
	}
	fieldDocs, err := v.LoadFieldDocs(field)
	if err != nil {
		return nil, err
	}
	fieldTokens, err := v.LoadFieldTokens(field)
	if err != nil {
		return nil, err
	}
	docFreq, err := v.LoadTermDF(field, term)
	if err != nil {
		return nil, err
	}
	stats := query.FieldStats{TotalDocs: totalDocs, FieldDocCount: fieldDocs, FieldTokens: fieldTokens}

	m := newMatchSet()
	it := postings.Iterator()
	for it.HasNext() {
		ord := it.Next()
		tf, err := v.LoadTermFreq(kite.Ordinal(ord), field, term)
		if err != nil {
			return nil, err
		}
		length, err := v.LoadFieldLength(kite.Ordinal(ord), field)
		if err != nil {
			return nil, err
		}
		m.add(ord, scorer.Score(tf, docFreq, length, stats))
	}
	return m, nil
}

func (r *Reader) evalChildren(v *segmentView, children []query.Query) ([]*matchSet, error) {
	sets := make([]*matchSet, len(children))
	for i, c := range children {
		s, err := r.evalNode(v, c)
		if err != nil {
			return nil, err
		}
		sets[i] = s
	}
	return sets, nil
}

func (r *Reader) evalConjunction(v *segmentView, node *query.Conjunction) (*matchSet, error) {
	sets, err := r.evalChildren(v, node.Children)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return newMatchSet(), nil
	}

	intersection := sets[0].bitmap.Clone()
	for _, s := range sets[1:] {
		intersection.And(s.bitmap)
	}

	m := newMatchSet()
	it := intersection.Iterator()
	for it.HasNext() {
		ord := it.Next()
		var total float64
		for _, s := range sets {
			total += s.scores[ord]
		}
		m.add(ord, total)
	}
	return m, nil
}

func (r *Reader) evalDisjunction(v *segmentView, node *query.Disjunction) (*matchSet, error) {
	sets, err := r.evalChildren(v, node.Children)
	if err != nil {
		return nil, err
	}
	m := newMatchSet()
	for _, s := range sets {
		it := s.bitmap.Iterator()
		for it.HasNext() {
			ord := it.Next()
			m.add(ord, s.scores[ord])
		}
	}
	return m, nil
}

func (r *Reader) evalDisjunctionMax(v *segmentView, node *query.DisjunctionMax) (*matchSet, error) {
	sets, err := r.evalChildren(v, node.Children)
	if err != nil {
		return nil, err
	}
	m := newMatchSet()
	seen := make(map[uint32]bool)
	for _, s := range sets {
		it := s.bitmap.Iterator()
		for it.HasNext() {
			ord := it.Next()
			score := s.scores[ord]
			if !seen[ord] {
				seen[ord] = true
				m.bitmap.Add(ord)
				m.scores[ord] = score
				continue
			}
			if score > m.scores[ord] {
				m.scores[ord] = score
			}
		}
	}
	return m, nil
}

func (r *Reader) evalFilter(v *segmentView, node *query.Filter) (*matchSet, error) {
	inner, err := r.evalNode(v, node.Inner)
	if err != nil {
		return nil, err
	}
	by, err := r.evalNode(v, node.By)
	if err != nil {
		return nil, err
	}

	kept := inner.bitmap.Clone()
	kept.And(by.bitmap)

	m := newMatchSet()
	it := kept.Iterator()
	for it.HasNext() {
		ord := it.Next()
		m.add(ord, inner.scores[ord])
	}
	return m, nil
}

func (r *Reader) evalExclude(v *segmentView, node *query.Exclude) (*matchSet, error) {
	inner, err := r.evalNode(v, node.Inner)
	if err != nil {
		return nil, err
	}
	excluded, err := r.evalNode(v, node.Excluded)
	if err != nil {
		return nil, err
	}

	kept := roaring.AndNot(inner.bitmap, excluded.bitmap)

	m := newMatchSet()
	it := kept.Iterator()
	for it.HasNext() {
		ord := it.Next()
		m.add(ord, inner.scores[ord])
	}
	return m, nil
}
