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
	"path/filepath"
	"testing"

	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/query"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Create(filepath.Join(dir, "kite"), WithSync(false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tokens(words ...string) kite.TermVector {
	var toks []kite.Token
	for i, w := range words {
		toks = append(toks, kite.Token{Term: kite.Term(w), Position: uint32(i)})
	}
	return kite.NewTermVector(toks)
}

func mustSearch(t *testing.T, s *Store, q query.Query, limit int) []kite.DocID {
	t.Helper()
	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.Search(q, limit)
	require.NoError(t, err)

	docs := make([]kite.DocID, len(hits))
	for i, h := range hits {
		docs[i] = h.Doc
	}
	return docs
}

func TestBasicIndexAndSearch(t *testing.T) {
	s := openTestStore(t)

	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)
	body, err := s.AddField("body", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)
	pk, err := s.AddField("pk", kite.FieldTypeInteger, kite.FieldStored)
	require.NoError(t, err)

	doc1 := kite.NewDocument([]byte("test_doc")).
		AddIndexedField(title, tokens("hello", "world")).
		AddIndexedField(body, tokens("lorem", "ipsum", "dolar")).
		AddStoredField(pk, kite.IntegerValue(1))
	require.NoError(t, s.InsertOrUpdateDocument(doc1))

	doc2 := kite.NewDocument([]byte("another_test_doc")).
		AddIndexedField(title, tokens("howdy", "partner")).
		AddIndexedField(body, tokens("lorem", "ipsum", "dolar")).
		AddStoredField(pk, kite.IntegerValue(2))
	require.NoError(t, s.InsertOrUpdateDocument(doc2))

	q := query.NewDisjunction(
		query.NewTerm(title, "howdy").Boost(2).(*query.Term),
		query.NewTerm(title, "partner").Boost(2).(*query.Term),
		query.NewTerm(title, "hello").Boost(2).(*query.Term),
	)

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// another_test_doc matches two boosted terms (howdy, partner);
	// test_doc matches only one (hello). It must score strictly higher.
	byPK := map[kite.DocID]int64{}
	for _, h := range hits {
		v, err := r.ReadStoredField(h.Doc, pk)
		require.NoError(t, err)
		byPK[h.Doc] = v.Integer()
	}
	require.Equal(t, int64(2), byPK[hits[0].Doc])
	require.Equal(t, int64(1), byPK[hits[1].Doc])
	require.Greater(t, hits[0].Score, hits[1].Score)
}

func TestUpdateSemantics(t *testing.T) {
	s := openTestStore(t)
	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)

	key := []byte("k")
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument(key).AddIndexedField(title, tokens("old"))))
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument(key).AddIndexedField(title, tokens("new"))))

	oldHits := mustSearch(t, s, query.NewTerm(title, "old"), 10)
	require.Empty(t, oldHits)

	newHits := mustSearch(t, s, query.NewTerm(title, "new"), 10)
	require.Len(t, newHits, 1)
}

func TestDeletion(t *testing.T) {
	s := openTestStore(t)
	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)

	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument([]byte("a")).AddIndexedField(title, tokens("alpha"))))
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument([]byte("b")).AddIndexedField(title, tokens("beta"))))

	found, err := s.RemoveDocumentByKey([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)

	require.False(t, s.ContainsDocumentKey([]byte("a")))
	require.True(t, s.ContainsDocumentKey([]byte("b")))

	hits := mustSearch(t, s, query.NewTerm(title, "alpha"), 10)
	require.Empty(t, hits)

	hits = mustSearch(t, s, query.NewTerm(title, "beta"), 10)
	require.Len(t, hits, 1)
}

func TestMergeAndPurgeCorrectness(t *testing.T) {
	s := openTestStore(t)
	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)
	pk, err := s.AddField("pk", kite.FieldTypeInteger, kite.FieldStored)
	require.NoError(t, err)

	add := func(key string, word string, id int64) {
		require.NoError(t, s.InsertOrUpdateDocument(
			kite.NewDocument([]byte(key)).
				AddIndexedField(title, tokens(word)).
				AddStoredField(pk, kite.IntegerValue(id))))
	}

	add("a", "alpha", 1)
	add("b", "beta", 2)
	add("c", "gamma", 3)

	_, err = s.RemoveDocumentByKey([]byte("b"))
	require.NoError(t, err)

	stats, err := s.GetSegmentStatistics()
	require.NoError(t, err)
	require.Len(t, stats, 3)

	var ids []kite.SegmentID
	for _, st := range stats {
		ids = append(ids, st.Segment)
	}

	newSeg, err := s.MergeSegments(ids)
	require.NoError(t, err)

	r, err := s.Reader()
	require.NoError(t, err)
	aliveHits := mustSearch(t, s, query.NewTerm(title, "alpha"), 10)
	require.Len(t, aliveHits, 1)
	require.Equal(t, newSeg, aliveHits[0].Segment)

	v, err := r.ReadStoredField(aliveHits[0], pk)
	require.NoError(t, err)
	require.Equal(t, int64(1), v.Integer())
	r.Close()

	betaHits := mustSearch(t, s, query.NewTerm(title, "beta"), 10)
	require.Empty(t, betaHits)

	require.NoError(t, s.PurgeSegments(ids))

	stats, err = s.GetSegmentStatistics()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, newSeg, stats[0].Segment)
}

func TestPrefixMultiTerm(t *testing.T) {
	s := openTestStore(t)
	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)

	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument([]byte("1")).AddIndexedField(title, tokens("hello"))))
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument([]byte("2")).AddIndexedField(title, tokens("help"))))
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument([]byte("3")).AddIndexedField(title, tokens("world"))))

	q := query.NewMultiTerm(title, query.NewPrefix([]byte("hel")))
	hits := mustSearch(t, s, q, 10)
	require.Len(t, hits, 2)
}

// TestInsertCommitsOneSegmentPerDocument exercises spec.md §8's default
// write policy directly: each InsertOrUpdateDocument call must be fully
// visible to a Reader opened immediately afterward, with no separate
// flush step, because it commits its own one-document segment.
func TestInsertCommitsOneSegmentPerDocument(t *testing.T) {
	s := openTestStore(t)
	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		doc := kite.NewDocument([]byte{byte(i)}).AddIndexedField(title, tokens("x"))
		require.NoError(t, s.InsertOrUpdateDocument(doc))

		hits := mustSearch(t, s, query.NewTerm(title, "x"), 10)
		require.Len(t, hits, i+1)
	}

	stats, err := s.GetSegmentStatistics()
	require.NoError(t, err)
	require.Len(t, stats, 3)
	for _, st := range stats {
		require.EqualValues(t, 1, st.TotalDocs)
	}
}

func TestRoundTripStoredFields(t *testing.T) {
	s := openTestStore(t)
	name, err := s.AddField("name", kite.FieldTypeText, kite.FieldStored)
	require.NoError(t, err)
	age, err := s.AddField("age", kite.FieldTypeInteger, kite.FieldStored)
	require.NoError(t, err)
	active, err := s.AddField("active", kite.FieldTypeBoolean, kite.FieldStored)
	require.NoError(t, err)

	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument([]byte("p")).
			AddStoredField(name, kite.StringValue("ada")).
			AddStoredField(age, kite.IntegerValue(42)).
			AddStoredField(active, kite.BooleanValue(true))))

	r, err := s.Reader()
	require.NoError(t, err)
	defer r.Close()

	doc := kite.DocID{Segment: r.Segments()[0], Ord: 0}

	v, err := r.ReadStoredField(doc, name)
	require.NoError(t, err)
	require.Equal(t, "ada", v.String())

	v, err = r.ReadStoredField(doc, age)
	require.NoError(t, err)
	require.Equal(t, int64(42), v.Integer())

	v, err = r.ReadStoredField(doc, active)
	require.NoError(t, err)
	require.True(t, v.Boolean())
}

func TestPrimaryKeyUniqueness(t *testing.T) {
	s := openTestStore(t)
	title, err := s.AddField("title", kite.FieldTypeText, kite.FieldIndexed)
	require.NoError(t, err)

	key := []byte("same")
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument(key).AddIndexedField(title, tokens("first"))))
	require.NoError(t, s.InsertOrUpdateDocument(
		kite.NewDocument(key).AddIndexedField(title, tokens("second"))))

	hits := mustSearch(t, s, query.NewTerm(title, "first"), 10)
	require.Empty(t, hits)
}
