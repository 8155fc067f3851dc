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

import "math"

// TermScorer computes a document's relevance score for a single matched
// term. The default parameters are Okapi BM25's conventional k1 and b;
// callers can plug in their own by constructing TermScorer directly.
type TermScorer struct {
	K1    float64
	B     float64
	Boost float64
}

// DefaultTermScorer returns BM25 with k1=1.2, b=0.75, boost=1.0.
func DefaultTermScorer() TermScorer {
	return TermScorer{K1: 1.2, B: 0.75, Boost: 1.0}
}

// DefaultTermScorerWithBoost is DefaultTermScorer with an initial boost
// applied, for callers building a query tree that boosts leaves at
// construction time rather than via Query.Boost.
func DefaultTermScorerWithBoost(boost float64) TermScorer {
	s := DefaultTermScorer()
	s.Boost = boost
	return s
}

// FieldStats is the per-segment, per-field statistics BM25 needs:
// how many documents carry a value for the field, and how many tokens
// those documents' fields contain in total (their average length).
type FieldStats struct {
	TotalDocs     uint64
	FieldDocCount uint64
	FieldTokens   uint64
}

func (s FieldStats) avgFieldLength() float64 {
	if s.FieldDocCount == 0 {
		return 0
	}
	return float64(s.FieldTokens) / float64(s.FieldDocCount)
}

// Score computes the BM25 contribution of one matched term in one
// document: termFreq is how many times the term occurred in the
// document's field, docFreq is how many documents in the segment contain
// the term at all, and fieldLength is the document's decoded field
// length (token count).
func (s TermScorer) Score(termFreq uint64, docFreq uint64, fieldLength uint64, stats FieldStats) float64 {
	if termFreq == 0 || docFreq == 0 || stats.TotalDocs == 0 {
		return 0
	}

	idf := math.Log(1 + (float64(stats.TotalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))

	avgLen := stats.avgFieldLength()
	var lengthNorm float64 = 1
	if avgLen > 0 {
		lengthNorm = 1 - s.B + s.B*(float64(fieldLength)/avgLen)
	}

	tf := float64(termFreq)
	freqPart := (tf * (s.K1 + 1)) / (tf + s.K1*lengthNorm)

	return idf * freqPart * s.Boost
}
