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

package query

import (
	"testing"

	"github.com/kitesearch/kite"
	"github.com/stretchr/testify/assert"
)

func TestBoostIsANoOpAtOne(t *testing.T) {
	term := NewTerm(kite.FieldID(1), kite.Term("hello"))
	before := term.Scorer.Boost
	term.Boost(1.0)
	assert.Equal(t, before, term.Scorer.Boost)
}

func TestChainedBoostEqualsProductBoost(t *testing.T) {
	a := NewTerm(kite.FieldID(1), kite.Term("hello"))
	a.Boost(2.0).Boost(3.0)

	b := NewTerm(kite.FieldID(1), kite.Term("hello"))
	b.Boost(6.0)

	assert.InDelta(t, b.Scorer.Boost, a.Scorer.Boost, 1e-9)
}

func TestBoostRecursesIntoChildren(t *testing.T) {
	left := NewTerm(kite.FieldID(1), kite.Term("hello"))
	right := NewTerm(kite.FieldID(1), kite.Term("world"))
	disj := NewDisjunction(left, right)

	disj.Boost(2.0)

	assert.InDelta(t, 2.0, left.Scorer.Boost, 1e-9)
	assert.InDelta(t, 2.0, right.Scorer.Boost, 1e-9)
}

func TestNoneBoostIsAlwaysANoOp(t *testing.T) {
	n := NewNone()
	assert.NotPanics(t, func() { n.Boost(5.0) })
}

func TestScorerFavorsHigherTermFrequency(t *testing.T) {
	scorer := DefaultTermScorer()
	stats := FieldStats{TotalDocs: 100, FieldDocCount: 100, FieldTokens: 500}

	low := scorer.Score(1, 10, 5, stats)
	high := scorer.Score(5, 10, 5, stats)

	assert.Greater(t, high, low)
}

func TestScorerFavorsRarerTerms(t *testing.T) {
	scorer := DefaultTermScorer()
	stats := FieldStats{TotalDocs: 100, FieldDocCount: 100, FieldTokens: 500}

	common := scorer.Score(1, 50, 5, stats)
	rare := scorer.Score(1, 2, 5, stats)

	assert.Greater(t, rare, common)
}

func TestPrefixSelectorMatchesSharedPrefix(t *testing.T) {
	sel := NewPrefix([]byte("hel"))
	assert.True(t, sel.Matches([]byte("hello")))
	assert.True(t, sel.Matches([]byte("help")))
	assert.False(t, sel.Matches([]byte("world")))
}
