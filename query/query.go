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

// Package query is the boolean/scoring query algebra evaluated by
// store.Reader.Search. It holds no reference to any index; it is a plain
// value tree, the same way bluge and bleve's query packages keep query
// construction independent of the segments they'll eventually run over.
package query

import "github.com/kitesearch/kite"

// Query is implemented by every node of the algebra. Boost recursively
// multiplies the scorer boost (or the constant, for All) of every leaf
// beneath the node and returns the same value for chaining; a factor of
// 1.0 is defined to be a no-op.
type Query interface {
	Boost(factor float64) Query
}

// All matches every live document in a segment with a constant score.
type All struct {
	Score float64
}

func NewAll() *All { return &All{Score: 1.0} }

func (q *All) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	q.Score *= factor
	return q
}

// None matches nothing. Boosting it is defined as a no-op regardless of
// factor, since there is no score to scale.
type None struct{}

func NewNone() *None { return &None{} }

func (q *None) Boost(float64) Query { return q }

// Term matches documents whose (Field) posting list for Term contains
// them, scored by Scorer.
type Term struct {
	Field  kite.FieldID
	Term   kite.Term
	Scorer TermScorer
}

func NewTerm(field kite.FieldID, term kite.Term) *Term {
	return &Term{Field: field, Term: term, Scorer: DefaultTermScorer()}
}

func (q *Term) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	q.Scorer.Boost *= factor
	return q
}

// MultiTerm matches the union of every term in Field selected by
// Selector, e.g. a prefix.
type MultiTerm struct {
	Field    kite.FieldID
	Selector Selector
	Scorer   TermScorer
}

func NewMultiTerm(field kite.FieldID, selector Selector) *MultiTerm {
	return &MultiTerm{Field: field, Selector: selector, Scorer: DefaultTermScorer()}
}

func (q *MultiTerm) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	q.Scorer.Boost *= factor
	return q
}

// Conjunction matches documents present in every child's result, scoring
// as the sum of each child's contribution.
type Conjunction struct {
	Children []Query
}

func NewConjunction(children ...Query) *Conjunction {
	return &Conjunction{Children: children}
}

func (q *Conjunction) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	for _, c := range q.Children {
		c.Boost(factor)
	}
	return q
}

// Disjunction matches the union of its children, scoring as the sum of
// whichever children matched.
type Disjunction struct {
	Children []Query
}

func NewDisjunction(children ...Query) *Disjunction {
	return &Disjunction{Children: children}
}

func (q *Disjunction) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	for _, c := range q.Children {
		c.Boost(factor)
	}
	return q
}

// DisjunctionMax matches the union of its children, scoring each matched
// document as the maximum of whichever children matched it.
type DisjunctionMax struct {
	Children []Query
}

func NewDisjunctionMax(children ...Query) *DisjunctionMax {
	return &DisjunctionMax{Children: children}
}

func (q *DisjunctionMax) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	for _, c := range q.Children {
		c.Boost(factor)
	}
	return q
}

// Filter matches documents matched by both Inner and By, scoring as
// Inner's score alone; By contributes no score.
type Filter struct {
	Inner Query
	By    Query
}

func NewFilter(inner, by Query) *Filter {
	return &Filter{Inner: inner, By: by}
}

func (q *Filter) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	q.Inner.Boost(factor)
	return q
}

// Exclude matches documents matched by Inner but not by Excluded, scoring
// as Inner's score alone.
type Exclude struct {
	Inner    Query
	Excluded Query
}

func NewExclude(inner, excluded Query) *Exclude {
	return &Exclude{Inner: inner, Excluded: excluded}
}

func (q *Exclude) Boost(factor float64) Query {
	if factor == 1.0 {
		return q
	}
	q.Inner.Boost(factor)
	return q
}
