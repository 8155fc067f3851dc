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

// Package keys implements the bijection between the engine's logical key
// families and their ordered byte encodings. Every key starts with a
// single-byte family tag; everything after it is big-endian so that byte
// order matches numeric order, and so that prefix scans enumerate exactly
// the subset the family was designed for (see the scan-intent comment on
// each constructor).
package keys

import "encoding/binary"

// Family is the leading tag byte that disambiguates the eight (plus the
// term dictionary's own, see TermDict below) key families sharing one
// keyspace.
type Family byte

const (
	// Meta holds engine-wide counters and the serialized schema.
	Meta Family = 1
	// Field holds one FieldDef per schema field.
	Field Family = 2
	// Active holds an empty value per live segment; presence means the
	// segment is searched, absence means it is not.
	Active Family = 3
	// Post holds one posting list per (field, term, segment), ordered so
	// iterating a fixed (field, term) prefix walks every segment that has
	// ever held it.
	Post Family = 4
	// Stored holds stored-field payloads, ordered so that a (segment, ord)
	// prefix scan yields every stored value attached to one document.
	Stored Family = 5
	// Del holds one deletion bitmap per segment.
	Del Family = 6
	// Stat holds one precomputed statistic per (segment, name).
	Stat Family = 7
	// PKey holds the primary-key -> DocID mapping.
	PKey Family = 8
	// TermDict holds the forward term bytestring -> TermID mapping. It is
	// not named among spec.md's eight families, but §4.3 requires "a
	// dedicated family" for it; see DESIGN.md for the resolution.
	TermDict Family = 9
)

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// FamilyOf returns the family tag a key belongs to. Callers (principally
// the merge operator) must only call this on keys produced by this
// package; an empty key has no family.
func FamilyOf(key []byte) Family {
	if len(key) == 0 {
		return 0
	}
	return Family(key[0])
}

// MetaKey builds a META(name) key, e.g. ".next_segment_id" or ".schema".
func MetaKey(name string) []byte {
	return append([]byte{byte(Meta)}, []byte(name)...)
}

// FieldKey builds a FIELD(field_id) key.
func FieldKey(field uint32) []byte {
	return append([]byte{byte(Field)}, be32(field)...)
}

// FieldPrefix scans every FIELD key, for schema reconstruction on open.
func FieldPrefix() []byte {
	return []byte{byte(Field)}
}

// ActiveKey builds an ACTIVE(segment_id) key.
func ActiveKey(segment uint32) []byte {
	return append([]byte{byte(Active)}, be32(segment)...)
}

// ActivePrefix scans every ACTIVE key, to enumerate live segments.
func ActivePrefix() []byte {
	return []byte{byte(Active)}
}

// SegmentOfActive decodes the segment id out of an ACTIVE key, the
// inverse of ActiveKey.
func SegmentOfActive(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[1:5])
}

// PostKey builds a POST(field_id, term_id, segment_id) key.
func PostKey(field, term, segment uint32) []byte {
	k := make([]byte, 0, 13)
	k = append(k, byte(Post))
	k = append(k, be32(field)...)
	k = append(k, be32(term)...)
	k = append(k, be32(segment)...)
	return k
}

// PostPrefix scans every segment's posting list for one (field, term).
func PostPrefix(field, term uint32) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(Post))
	k = append(k, be32(field)...)
	k = append(k, be32(term)...)
	return k
}

// PostFamilyPrefix scans the entire POST family. Because segment_id is
// the last component of a POST key, there is no cheaper way to enumerate
// "every posting belonging to one segment" than this full-family scan;
// that asymmetry is the price of POST's (field, term, segment) layout
// giving cheap cross-segment term lookups, which is the access pattern
// queries actually need. The merge engine (store/compact.go) does not use
// this scan; it walks the term dictionary once per field instead.
func PostFamilyPrefix() []byte {
	return []byte{byte(Post)}
}

// SegmentOfPost decodes the segment id out of a POST key.
func SegmentOfPost(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[9:13])
}

// FieldOfPost decodes the field id out of a POST key.
func FieldOfPost(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[1:5])
}

// TermOfPost decodes the term id out of a POST key.
func TermOfPost(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[5:9])
}

// StoredKind is the short tag distinguishing the primary stored value
// from its auxiliary sidecars.
type StoredKind byte

const (
	KindVal StoredKind = 0
	KindLen StoredKind = 1
	KindTF  StoredKind = 2
)

// StoredValKey builds a STORED(segment, ord, field, "val") key.
func StoredValKey(segment uint32, ord uint16, field uint32) []byte {
	return storedKey(segment, ord, field, KindVal, 0)
}

// StoredLenKey builds a STORED(segment, ord, field, "len") key.
func StoredLenKey(segment uint32, ord uint16, field uint32) []byte {
	return storedKey(segment, ord, field, KindLen, 0)
}

// StoredTFKey builds a STORED(segment, ord, field, "tf<term_id>") key.
func StoredTFKey(segment uint32, ord uint16, field uint32, term uint32) []byte {
	return storedKey(segment, ord, field, KindTF, term)
}

func storedKey(segment uint32, ord uint16, field uint32, kind StoredKind, term uint32) []byte {
	k := make([]byte, 0, 16)
	k = append(k, byte(Stored))
	k = append(k, be32(segment)...)
	k = append(k, be16(ord)...)
	k = append(k, be32(field)...)
	k = append(k, byte(kind))
	if kind == KindTF {
		k = append(k, be32(term)...)
	}
	return k
}

// StoredDocPrefix scans every stored value attached to one document,
// across all of its fields and kinds.
func StoredDocPrefix(segment uint32, ord uint16) []byte {
	k := make([]byte, 0, 7)
	k = append(k, byte(Stored))
	k = append(k, be32(segment)...)
	k = append(k, be16(ord)...)
	return k
}

// StoredSegmentPrefix scans every stored value belonging to one segment,
// for purging.
func StoredSegmentPrefix(segment uint32) []byte {
	return append([]byte{byte(Stored)}, be32(segment)...)
}

// FieldOfStored decodes the field id out of a STORED key (any kind).
func FieldOfStored(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[7:11])
}

// KindOfStored decodes the kind tag out of a STORED key.
func KindOfStored(key []byte) StoredKind {
	return StoredKind(key[11])
}

// TermOfStoredTF decodes the term id out of a STORED "tf" key.
func TermOfStoredTF(key []byte) uint32 {
	return binary.BigEndian.Uint32(key[12:16])
}

// DelKey builds a DEL(segment_id) key.
func DelKey(segment uint32) []byte {
	return append([]byte{byte(Del)}, be32(segment)...)
}

// StatKey builds a STAT(segment_id, name) key.
func StatKey(segment uint32, name []byte) []byte {
	k := make([]byte, 0, 5+len(name))
	k = append(k, byte(Stat))
	k = append(k, be32(segment)...)
	k = append(k, name...)
	return k
}

// StatSegmentPrefix scans every statistic belonging to one segment, for
// purging.
func StatSegmentPrefix(segment uint32) []byte {
	return append([]byte{byte(Stat)}, be32(segment)...)
}

// Canonical statistic names. Per-field and per-term names are suffixed
// with their numeric id so distinct fields/terms never collide.
var (
	StatTotalDocs   = []byte("total_docs")
	StatDeletedDocs = []byte("deleted_docs")
)

// StatFieldTokens names the "total tokens ever indexed for this field"
// statistic.
func StatFieldTokens(field uint32) []byte {
	return append([]byte("field_tokens:"), be32(field)...)
}

// StatFieldDocs names the "documents that have a non-empty value for this
// field" statistic, used as BM25's document count for the field.
func StatFieldDocs(field uint32) []byte {
	return append([]byte("field_docs:"), be32(field)...)
}

// StatTermDF names the "documents containing this term in this field"
// statistic, i.e. BM25's document frequency.
func StatTermDF(field, term uint32) []byte {
	b := append([]byte("df:"), be32(field)...)
	return append(b, be32(term)...)
}

// PKeyKey builds a PKEY(key_bytes) key.
func PKeyKey(key []byte) []byte {
	return append([]byte{byte(PKey)}, key...)
}

// PKeyPrefix scans the entire PKEY family, to rebuild the in-memory
// primary-key index on open.
func PKeyPrefix() []byte {
	return []byte{byte(PKey)}
}

// PrimaryKeyOf strips the family tag off a PKEY key, returning the raw
// primary key bytes.
func PrimaryKeyOf(key []byte) []byte {
	return key[1:]
}

// TermDictKey builds the forward mapping key for one term.
func TermDictKey(term []byte) []byte {
	return append([]byte{byte(TermDict)}, term...)
}

// TermDictPrefix scans every term whose bytes start with prefix, which is
// exactly how MultiTerm's Prefix selector is evaluated: term bytes sort
// lexicographically right after the single family-tag byte.
func TermDictPrefix(prefix []byte) []byte {
	return append([]byte{byte(TermDict)}, prefix...)
}

// TermOf decodes the raw term bytes out of a TERM key.
func TermOf(key []byte) []byte {
	return key[1:]
}

// PrefixUpperBound returns the smallest key greater than every key sharing
// the given prefix, for use as a pebble iterator UpperBound. It returns
// nil if prefix is all 0xFF bytes (unbounded scan required).
func PrefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
