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

// Package segment holds the in-memory segment builder: the container that
// accumulates everything a future segment needs (postings, stored values,
// statistics) before the store package reconciles it against the global
// term dictionary and writes it out as one atomic batch.
package segment

import (
	"errors"
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/kitesearch/kite"
)

// MaxDocs is the largest number of documents a single segment can hold;
// its ordinal space is u16.
const MaxDocs = 1 << 16

// ErrSegmentFull is returned by AddDocument once the builder already
// holds MaxDocs documents. The caller must flush (write) the builder and
// start a new one.
var ErrSegmentFull = errors.New("segment: full")

type postingKey struct {
	field kite.FieldID
	term  kite.TermID
}

type storedKey struct {
	ord   uint16
	field kite.FieldID
}

// StoredValue is one stored-field payload plus the per-document term
// frequency sidecar values the segment writer needs to persist alongside
// it, keyed by the local TermID the occurrences belong to.
type StoredValue struct {
	Value       kite.FieldValue
	HasValue    bool
	LengthByte  byte
	HasLength   bool
	TermFreqs   map[kite.TermID]uint64
}

// Builder accumulates one future segment's worth of documents in memory.
// It is not safe for concurrent use; the store serializes writers to a
// single builder at a time per spec.md's single-writer model.
type Builder struct {
	docCount int

	postings map[postingKey]*roaring.Bitmap
	docFreq  map[postingKey]uint32

	fieldTokens map[kite.FieldID]uint64
	fieldDocs   map[kite.FieldID]uint32

	stored map[storedKey]*StoredValue

	localTermIDs  map[kite.Term]kite.TermID
	localTermList []kite.Term
}

// NewBuilder returns an empty segment builder.
func NewBuilder() *Builder {
	return &Builder{
		postings:     make(map[postingKey]*roaring.Bitmap),
		docFreq:      make(map[postingKey]uint32),
		fieldTokens:  make(map[kite.FieldID]uint64),
		fieldDocs:    make(map[kite.FieldID]uint32),
		stored:       make(map[storedKey]*StoredValue),
		localTermIDs: make(map[kite.Term]kite.TermID),
	}
}

// DocCount is the number of documents added so far.
func (b *Builder) DocCount() int { return b.docCount }

// LocalTerms returns every term interned by this builder, indexed by its
// local TermID (1-based) minus one. Callers (the segment writer) use this
// to reconcile against the global term dictionary.
func (b *Builder) LocalTerms() []kite.Term { return b.localTermList }

// Postings returns the accumulated ordinal bitmap for one (field,
// localTerm) pair, or nil if no document had it.
func (b *Builder) Postings(field kite.FieldID, localTerm kite.TermID) *roaring.Bitmap {
	return b.postings[postingKey{field, localTerm}]
}

// DocFreq returns how many documents in this builder contain localTerm in
// field.
func (b *Builder) DocFreq(field kite.FieldID, localTerm kite.TermID) uint32 {
	return b.docFreq[postingKey{field, localTerm}]
}

// Fields returns every field that had at least one indexed or stored
// value added to this builder.
func (b *Builder) Fields() []kite.FieldID {
	seen := make(map[kite.FieldID]bool)
	for k := range b.postings {
		seen[k.field] = true
	}
	for k := range b.stored {
		seen[k.field] = true
	}
	fields := make([]kite.FieldID, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	return fields
}

// FieldTokens is the total token count ever indexed for a field across
// every document in this builder.
func (b *Builder) FieldTokens(field kite.FieldID) uint64 { return b.fieldTokens[field] }

// FieldDocs is the number of documents in this builder that carried a
// non-empty value for a field.
func (b *Builder) FieldDocs(field kite.FieldID) uint32 { return b.fieldDocs[field] }

// Stored returns the stored payload recorded for (ord, field), if any.
func (b *Builder) Stored(ord uint16, field kite.FieldID) (*StoredValue, bool) {
	v, ok := b.stored[storedKey{ord, field}]
	return v, ok
}

// internTerm returns the local TermID for term, allocating a new one if
// this is the first time the builder has seen it.
func (b *Builder) internTerm(term kite.Term) kite.TermID {
	if id, ok := b.localTermIDs[term]; ok {
		return id
	}
	id := kite.TermID(len(b.localTermList) + 1)
	b.localTermIDs[term] = id
	b.localTermList = append(b.localTermList, term)
	return id
}

// AddDocument assigns the next ordinal, interns every indexed term
// locally, updates postings/doc-frequency/length statistics, and records
// stored values. It returns ErrSegmentFull once MaxDocs documents have
// already been added.
func (b *Builder) AddDocument(indexed map[kite.FieldID]kite.TermVector, stored map[kite.FieldID]kite.FieldValue) (uint16, error) {
	if b.docCount >= MaxDocs {
		return 0, ErrSegmentFull
	}
	ord := uint16(b.docCount)
	b.docCount++

	for field, tv := range indexed {
		tokenCount := 0
		tf := make(map[kite.TermID]uint64, len(tv))
		for term, positions := range tv {
			localID := b.internTerm(term)
			key := postingKey{field, localID}

			bm, ok := b.postings[key]
			if !ok {
				bm = roaring.New()
				b.postings[key] = bm
			}
			bm.Add(uint32(ord))
			b.docFreq[key]++

			tf[localID] = uint64(len(positions))
			tokenCount += len(positions)
		}

		if tokenCount > 0 {
			b.fieldTokens[field] += uint64(tokenCount)
			b.fieldDocs[field]++
		}

		sv := b.storedFor(ord, field)
		sv.TermFreqs = tf
		if lenByte, ok := squashLength(tokenCount); ok {
			sv.LengthByte = lenByte
			sv.HasLength = true
		}
	}

	for field, value := range stored {
		sv := b.storedFor(ord, field)
		sv.Value = value
		sv.HasValue = true
	}

	return ord, nil
}

func (b *Builder) storedFor(ord uint16, field kite.FieldID) *StoredValue {
	key := storedKey{ord, field}
	sv, ok := b.stored[key]
	if !ok {
		sv = &StoredValue{}
		b.stored[key] = sv
	}
	return sv
}

// squashLength implements the field-length squashing formula:
// clamp(round((sqrt(tokens)-1)*3), 0, 255). It returns ok=false when the
// result is zero, since a zero length byte is never written (readers
// treat its absence as a field length of one token).
func squashLength(tokens int) (byte, bool) {
	if tokens <= 0 {
		return 0, false
	}
	v := math.Round((math.Sqrt(float64(tokens)) - 1) * 3)
	if v <= 0 {
		return 0, false
	}
	if v > 255 {
		v = 255
	}
	return byte(v), true
}

// DecodeLength inverts squashLength: present=false (no length byte was
// written) decodes to a token count of one, the implicit default for
// small fields per spec.md's open question on field length.
func DecodeLength(b byte, present bool) uint64 {
	if !present {
		return 1
	}
	v := float64(b)/3 + 1
	return uint64(math.Round(v * v))
}
