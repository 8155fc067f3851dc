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

	"github.com/cockroachdb/pebble"
	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/store/keys"
	"github.com/kitesearch/kite/store/segment"
	"go.uber.org/zap"
)

// writeSegment stages builder as a new segment's worth of keys into batch,
// per spec.md §4.5:
//  1. allocate a SegmentID from the persisted counter
//  2. resolve the builder's local TermIDs against the global dictionary
//  3. write every posting list, roaring-serialized
//  4. merge-increment per-term document frequency
//  5. write stored-field values
//  6. merge-increment segment-level and per-field statistics
//  7. set ACTIVE(segment) last: this is the commit point
//
// It does not commit batch; the caller decides what else rides along in
// the same atomic write (e.g. a primary-key index update) and commits
// once. If the commit never happens, nothing above becomes visible and
// the SegmentID is simply never reused.
func (s *Store) writeSegment(batch *pebble.Batch, b *segment.Builder) (kite.SegmentID, error) {
	segID := kite.SegmentID(s.nextSegmentID.Add(1) - 1)

	if err := batch.Set(keys.MetaKey(metaNextSegmentID), encodeCounter(uint32(s.nextSegmentID.Load())), nil); err != nil {
		return 0, err
	}

	localToGlobal := make([]kite.TermID, len(b.LocalTerms())+1) // 1-based
	for i, term := range b.LocalTerms() {
		localID := kite.TermID(i + 1)
		globalID, err := s.termDict.getOrCreate(batch, term)
		if err != nil {
			return 0, fmt.Errorf("store: reconcile term dictionary: %w", err)
		}
		localToGlobal[localID] = globalID
	}

	for _, field := range b.Fields() {
		for localID := kite.TermID(1); int(localID) <= len(b.LocalTerms()); localID++ {
			bm := b.Postings(field, localID)
			if bm == nil {
				continue
			}
			globalID := localToGlobal[localID]

			raw, err := serializeRoaring(bm)
			if err != nil {
				return 0, err
			}
			postKey := keys.PostKey(uint32(field), uint32(globalID), uint32(segID))
			if err := batch.Set(postKey, raw, nil); err != nil {
				return 0, wrapStoreErr(postKey, err)
			}

			dfKey := keys.StatKey(uint32(segID), keys.StatTermDF(uint32(field), uint32(globalID)))
			if err := batch.Merge(dfKey, encodeStatInt(int64(b.DocFreq(field, localID))), nil); err != nil {
				return 0, wrapStoreErr(dfKey, err)
			}
		}

		if tokens := b.FieldTokens(field); tokens > 0 {
			tokKey := keys.StatKey(uint32(segID), keys.StatFieldTokens(uint32(field)))
			if err := batch.Merge(tokKey, encodeStatInt(int64(tokens)), nil); err != nil {
				return 0, wrapStoreErr(tokKey, err)
			}
		}
		if docs := b.FieldDocs(field); docs > 0 {
			docKey := keys.StatKey(uint32(segID), keys.StatFieldDocs(uint32(field)))
			if err := batch.Merge(docKey, encodeStatInt(int64(docs)), nil); err != nil {
				return 0, wrapStoreErr(docKey, err)
			}
		}

		for ord := 0; ord < b.DocCount(); ord++ {
			sv, ok := b.Stored(uint16(ord), field)
			if !ok {
				continue
			}
			if err := writeStoredValue(batch, segID, uint16(ord), field, sv, localToGlobal); err != nil {
				return 0, err
			}
		}
	}

	totalKey := keys.StatKey(uint32(segID), keys.StatTotalDocs)
	if err := batch.Merge(totalKey, encodeStatInt(int64(b.DocCount())), nil); err != nil {
		return 0, wrapStoreErr(totalKey, err)
	}

	activeKey := keys.ActiveKey(uint32(segID))
	if err := batch.Set(activeKey, nil, nil); err != nil {
		return 0, wrapStoreErr(activeKey, err)
	}

	s.logger.Debug("staged segment",
		zap.Uint32("segment_id", uint32(segID)),
		zap.Int("doc_count", b.DocCount()))

	return segID, nil
}

func writeStoredValue(batch *pebble.Batch, segID kite.SegmentID, ord uint16, field kite.FieldID, sv *segment.StoredValue, localToGlobal []kite.TermID) error {
	if sv.HasValue {
		key := keys.StoredValKey(uint32(segID), ord, uint32(field))
		if err := batch.Set(key, sv.Value.Bytes(), nil); err != nil {
			return wrapStoreErr(key, err)
		}
	}
	if sv.HasLength {
		key := keys.StoredLenKey(uint32(segID), ord, uint32(field))
		if err := batch.Set(key, []byte{sv.LengthByte}, nil); err != nil {
			return wrapStoreErr(key, err)
		}
	}
	for localID, freq := range sv.TermFreqs {
		// Frequency of 1 is the implicit default; omitting it keeps the
		// overwhelmingly common case free (spec.md §9 open question).
		if freq == 1 {
			continue
		}
		globalID := localToGlobal[localID]
		key := keys.StoredTFKey(uint32(segID), ord, uint32(field), uint32(globalID))
		if err := batch.Set(key, encodeStatInt(int64(freq)), nil); err != nil {
			return wrapStoreErr(key, err)
		}
	}
	return nil
}
