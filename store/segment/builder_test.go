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

package segment

import (
	"testing"

	"github.com/kitesearch/kite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tv(terms ...string) kite.TermVector {
	var toks []kite.Token
	for i, term := range terms {
		toks = append(toks, kite.Token{Term: kite.Term(term), Position: uint32(i)})
	}
	return kite.NewTermVector(toks)
}

func TestAddDocumentBuildsPostingsAndDocFreq(t *testing.T) {
	b := NewBuilder()
	const title = kite.FieldID(1)

	_, err := b.AddDocument(map[kite.FieldID]kite.TermVector{title: tv("hello", "world")}, nil)
	require.NoError(t, err)
	_, err = b.AddDocument(map[kite.FieldID]kite.TermVector{title: tv("howdy", "world")}, nil)
	require.NoError(t, err)

	require.Len(t, b.LocalTerms(), 3)

	var worldID kite.TermID
	for i, term := range b.LocalTerms() {
		if term == kite.Term("world") {
			worldID = kite.TermID(i + 1)
		}
	}
	require.NotZero(t, worldID)

	postings := b.Postings(title, worldID)
	require.NotNil(t, postings)
	assert.Equal(t, uint64(2), postings.GetCardinality())
	assert.Equal(t, uint32(2), b.DocFreq(title, worldID))
}

func TestAddDocumentFailsOnceSegmentIsFull(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < MaxDocs; i++ {
		_, err := b.AddDocument(nil, nil)
		require.NoError(t, err)
	}

	_, err := b.AddDocument(nil, nil)
	assert.ErrorIs(t, err, ErrSegmentFull)
}

func TestSquashLengthOmitsZero(t *testing.T) {
	_, ok := squashLength(0)
	assert.False(t, ok)

	b, ok := squashLength(1)
	if ok {
		assert.NotZero(t, b)
	}
}

func TestSquashLengthRoundTripsApproximately(t *testing.T) {
	for _, tokens := range []int{2, 5, 10, 50, 200} {
		b, ok := squashLength(tokens)
		require.True(t, ok)
		decoded := DecodeLength(b, true)
		// The squash is lossy by design; require it stays within a
		// reasonable factor of the original rather than exact.
		assert.InDelta(t, float64(tokens), float64(decoded), float64(tokens)*0.6+2)
	}
}

func TestDecodeLengthDefaultsToOneWhenAbsent(t *testing.T) {
	assert.Equal(t, uint64(1), DecodeLength(0, false))
}

func TestStoredValueCarriesTermFrequencies(t *testing.T) {
	b := NewBuilder()
	const body = kite.FieldID(2)

	_, err := b.AddDocument(map[kite.FieldID]kite.TermVector{
		body: tv("lorem", "ipsum", "lorem"),
	}, nil)
	require.NoError(t, err)

	sv, ok := b.Stored(0, body)
	require.True(t, ok)
	require.True(t, sv.HasLength)

	var loremID kite.TermID
	for i, term := range b.LocalTerms() {
		if term == kite.Term("lorem") {
			loremID = kite.TermID(i + 1)
		}
	}
	assert.Equal(t, uint64(2), sv.TermFreqs[loremID])
}
