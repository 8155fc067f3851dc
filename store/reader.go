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
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"
	"github.com/cockroachdb/pebble"
	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/store/keys"
	"github.com/kitesearch/kite/store/segment"
)

// Reader is a point-in-time view of the index, backed by a pebble
// snapshot: every segment that was ACTIVE when the Reader was created
// stays visible to it for as long as it lives, regardless of concurrent
// writes, merges or purges (spec.md §5). Callers must Close it.
type Reader struct {
	store    *Store
	snapshot *pebble.Snapshot
	schema   *Schema
	segments []kite.SegmentID
}

// Reader opens a new point-in-time snapshot of the store.
func (s *Store) Reader() (*Reader, error) {
	snap := s.db.NewSnapshot()

	segments, err := activeSegments(snap)
	if err != nil {
		snap.Close()
		return nil, err
	}

	return &Reader{
		store:    s,
		snapshot: snap,
		schema:   s.currentSchema(),
		segments: segments,
	}, nil
}

// Close releases the underlying snapshot.
func (r *Reader) Close() error {
	return r.snapshot.Close()
}

// Segments returns the set of segment ids visible through this Reader.
func (r *Reader) Segments() []kite.SegmentID { return r.segments }

func activeSegments(snap *pebble.Snapshot) ([]kite.SegmentID, error) {
	lower := keys.ActivePrefix()
	upper := keys.PrefixUpperBound(lower)
	it, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("store: scan active segments: %w", err)
	}
	defer it.Close()

	var segments []kite.SegmentID
	for it.First(); it.Valid(); it.Next() {
		segments = append(segments, kite.SegmentID(keys.SegmentOfActive(it.Key())))
	}
	return segments, it.Error()
}

// segmentView is the read-side counterpart of segment.Builder: a set of
// lazily-loaded accessors over one segment's slice of the snapshot.
type segmentView struct {
	snap *pebble.Snapshot
	id   kite.SegmentID
}

func (r *Reader) view(id kite.SegmentID) *segmentView {
	return &segmentView{snap: r.snapshot, id: id}
}

// LoadPosting returns the posting bitmap for (field, term) in this
// segment, or an empty bitmap if the term never occurred in it.
func (v *segmentView) LoadPosting(field kite.FieldID, term kite.TermID) (*roaring.Bitmap, error) {
	key := keys.PostKey(uint32(field), uint32(term), uint32(v.id))
	raw, closer, err := v.snap.Get(key)
	if err == pebble.ErrNotFound {
		return roaring.New(), nil
	}
	if err != nil {
		return nil, wrapStoreErr(key, err)
	}
	defer closer.Close()
	return decodeRoaring(raw)
}

// LoadDeletions returns the set of ordinals tombstoned in this segment.
func (v *segmentView) LoadDeletions() (*roaring.Bitmap, error) {
	key := keys.DelKey(uint32(v.id))
	raw, closer, err := v.snap.Get(key)
	if err == pebble.ErrNotFound {
		return roaring.New(), nil
	}
	if err != nil {
		return nil, wrapStoreErr(key, err)
	}
	defer closer.Close()
	return decodeOrdinalList(raw), nil
}

func (v *segmentView) loadStat(name []byte) (uint64, error) {
	key := keys.StatKey(uint32(v.id), name)
	raw, closer, err := v.snap.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreErr(key, err)
	}
	defer closer.Close()
	return uint64(decodeStatInt(raw)), nil
}

func (v *segmentView) LoadTotalDocs() (uint64, error)   { return v.loadStat(keys.StatTotalDocs) }
func (v *segmentView) LoadDeletedDocs() (uint64, error) { return v.loadStat(keys.StatDeletedDocs) }
func (v *segmentView) LoadFieldTokens(field kite.FieldID) (uint64, error) {
	return v.loadStat(keys.StatFieldTokens(uint32(field)))
}
func (v *segmentView) LoadFieldDocs(field kite.FieldID) (uint64, error) {
	return v.loadStat(keys.StatFieldDocs(uint32(field)))
}
func (v *segmentView) LoadTermDF(field kite.FieldID, term kite.TermID) (uint64, error) {
	return v.loadStat(keys.StatTermDF(uint32(field), uint32(term)))
}

// LoadFieldLength returns the (possibly squashed) token count stored for
// (ord, field) in this segment, defaulting to one when no length byte was
// ever written (spec.md's small-field default).
func (v *segmentView) LoadFieldLength(ord kite.Ordinal, field kite.FieldID) (uint64, error) {
	key := keys.StoredLenKey(uint32(v.id), uint16(ord), uint32(field))
	raw, closer, err := v.snap.Get(key)
	if err == pebble.ErrNotFound {
		return segment.DecodeLength(0, false), nil
	}
	if err != nil {
		return 0, wrapStoreErr(key, err)
	}
	defer closer.Close()
	if len(raw) != 1 {
		return 0, fmt.Errorf("store: corrupt length byte for segment %d ord %d field %d", v.id, ord, field)
	}
	return segment.DecodeLength(raw[0], true), nil
}

// LoadTermFreq returns the per-document frequency of term in field at
// (ord), defaulting to one when no sidecar was written (the common case,
// see store/writer.go).
func (v *segmentView) LoadTermFreq(ord kite.Ordinal, field kite.FieldID, term kite.TermID) (uint64, error) {
	key := keys.StoredTFKey(uint32(v.id), uint16(ord), uint32(field), uint32(term))
	raw, closer, err := v.snap.Get(key)
	if err == pebble.ErrNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, wrapStoreErr(key, err)
	}
	defer closer.Close()
	return uint64(decodeStatInt(raw)), nil
}

// ReadStoredField returns the raw stored value for (doc, field), decoded
// according to the schema's declared FieldType for it.
func (r *Reader) ReadStoredField(doc kite.DocID, field kite.FieldID) (kite.FieldValue, error) {
	def, ok := r.schema.FieldDef(field)
	if !ok {
		return kite.FieldValue{}, fmt.Errorf("store: %w", ErrInvalidFieldRef)
	}

	key := keys.StoredValKey(uint32(doc.Segment), uint16(doc.Ord), uint32(field))
	raw, closer, err := r.snapshot.Get(key)
	if err == pebble.ErrNotFound {
		return kite.FieldValue{}, nil
	}
	if err != nil {
		return kite.FieldValue{}, wrapStoreErr(key, err)
	}
	defer closer.Close()

	switch def.Type {
	case kite.FieldTypeText, kite.FieldTypePlainString:
		if !utf8.Valid(raw) {
			return kite.FieldValue{}, &TextFieldUTF8DecodeError{Doc: doc, Field: field, Bytes: append([]byte(nil), raw...)}
		}
		return kite.StringValue(string(raw)), nil
	case kite.FieldTypeInteger:
		if len(raw) != 8 {
			return kite.FieldValue{}, &IntegerFieldValueSizeError{Doc: doc, Field: field, Size: len(raw)}
		}
		return kite.IntegerValue(int64(binary.LittleEndian.Uint64(raw))), nil
	case kite.FieldTypeBoolean:
		if len(raw) != 1 || (raw[0] != 't' && raw[0] != 'f') {
			return kite.FieldValue{}, &BooleanFieldDecodeError{Doc: doc, Field: field, Bytes: append([]byte(nil), raw...)}
		}
		return kite.BooleanValue(raw[0] == 't'), nil
	case kite.FieldTypeDateTime:
		if len(raw) != 8 {
			return kite.FieldValue{}, &IntegerFieldValueSizeError{Doc: doc, Field: field, Size: len(raw)}
		}
		micros := int64(binary.LittleEndian.Uint64(raw))
		return kite.DateTimeValue(timeFromMicros(micros)), nil
	default:
		return kite.FieldValue{}, fmt.Errorf("store: field %d has unknown type %v", field, def.Type)
	}
}

// Schema returns the schema snapshot this Reader was opened against.
func (r *Reader) Schema() *Schema { return r.schema }

// resolveTerm exposes the global term dictionary lookup to the query
// evaluator (store/query_eval.go), without letting query evaluation ever
// create new terms.
func (r *Reader) resolveTerm(t kite.Term) (kite.TermID, bool, error) {
	return r.store.termDict.resolve(t)
}

func (r *Reader) scanTermsByPrefix(prefix []byte, fn func(term []byte, id kite.TermID) error) error {
	return r.store.termDict.scanPrefix(r.snapshot, prefix, fn)
}
