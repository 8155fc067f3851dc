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
	"github.com/cockroachdb/pebble"
	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/store/keys"
	"github.com/kitesearch/kite/store/segment"
	"go.uber.org/zap"
)

// MergeSegments folds every segment in ids into one new, deletion-free
// segment, remapping ordinals and updating the primary key index so no
// document moves without its pointer following it. The whole operation
// runs under writeMu, which the store already uses as its single
// serialization point for document identity (spec.md §4.6's requirement
// that a concurrent delete be entirely before or entirely after a merge
// falls out of that same lock, rather than from a narrower one scoped to
// just the primary key index).
//
// Input segments are left on disk, their ACTIVE flag cleared; their data
// is reclaimed later by PurgeSegments.
func (s *Store) MergeSegments(ids []kite.SegmentID) (kite.SegmentID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, id := range ids {
		active, err := s.segmentIsActive(id)
		if err != nil {
			return 0, err
		}
		if !active {
			return 0, fmt.Errorf("store: segment %d: %w", id, ErrSegmentNotActive)
		}
	}

	snap := s.db.NewSnapshot()
	defer snap.Close()

	remap, liveCount, err := s.computeRemap(snap, ids)
	if err != nil {
		return 0, err
	}

	newSegID := kite.SegmentID(s.nextSegmentID.Add(1) - 1)

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(keys.MetaKey(metaNextSegmentID), encodeCounter(uint32(s.nextSegmentID.Load())), nil); err != nil {
		return 0, err
	}

	schema := s.currentSchema()
	fieldTokens := make(map[kite.FieldID]uint64)
	fieldDocs := make(map[kite.FieldID]uint32)

	for _, field := range schema.Fields() {
		if err := s.mergePostings(batch, snap, ids, newSegID, field, remap); err != nil {
			return 0, err
		}
	}

	for _, old := range ids {
		view := &segmentView{snap: snap, id: old}
		dels, err := view.LoadDeletions()
		if err != nil {
			return 0, err
		}
		total, err := view.LoadTotalDocs()
		if err != nil {
			return 0, err
		}
		live := roaring.New()
		live.AddRange(0, total)
		live.AndNot(dels)

		it := live.Iterator()
		for it.HasNext() {
			oldOrd := it.Next()
			newDoc, ok := remap[kite.DocID{Segment: old, Ord: kite.Ordinal(oldOrd)}]
			if !ok {
				continue
			}
			for _, field := range schema.Fields() {
				length, tokens, err := s.copyStoredDoc(batch, view, kite.Ordinal(oldOrd), newDoc, field)
				if err != nil {
					return 0, err
				}
				if tokens > 0 {
					fieldTokens[field] += length
					fieldDocs[field]++
				}
			}
		}
	}

	for field, tokens := range fieldTokens {
		key := keys.StatKey(uint32(newSegID), keys.StatFieldTokens(uint32(field)))
		if err := batch.Set(key, encodeStatInt(int64(tokens)), nil); err != nil {
			return 0, wrapStoreErr(key, err)
		}
	}
	for field, docs := range fieldDocs {
		key := keys.StatKey(uint32(newSegID), keys.StatFieldDocs(uint32(field)))
		if err := batch.Set(key, encodeStatInt(int64(docs)), nil); err != nil {
			return 0, wrapStoreErr(key, err)
		}
	}

	totalKey := keys.StatKey(uint32(newSegID), keys.StatTotalDocs)
	if err := batch.Set(totalKey, encodeStatInt(int64(liveCount)), nil); err != nil {
		return 0, wrapStoreErr(totalKey, err)
	}

	if err := s.pkIndex.remapDocuments(batch, remap); err != nil {
		return 0, err
	}

	for _, old := range ids {
		key := keys.ActiveKey(uint32(old))
		if err := batch.Delete(key, nil); err != nil {
			return 0, wrapStoreErr(key, err)
		}
	}
	activeKey := keys.ActiveKey(uint32(newSegID))
	if err := batch.Set(activeKey, nil, nil); err != nil {
		return 0, wrapStoreErr(activeKey, err)
	}

	if err := batch.Commit(s.writeOpts); err != nil {
		return 0, fmt.Errorf("store: commit merge into segment %d: %w", newSegID, err)
	}

	s.logger.Info("merged segments",
		zap.Uint32("new_segment_id", uint32(newSegID)),
		zap.Int("input_segments", len(ids)),
		zap.Uint64("live_docs", liveCount))

	return newSegID, nil
}

func (s *Store) segmentIsActive(id kite.SegmentID) (bool, error) {
	key := keys.ActiveKey(uint32(id))
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr(key, err)
	}
	closer.Close()
	return true, nil
}

// computeRemap assigns every live document across ids a dense new
// ordinal, in (segment, ordinal) order, for the segment that will replace
// them.
func (s *Store) computeRemap(snap *pebble.Snapshot, ids []kite.SegmentID) (map[kite.DocID]kite.DocID, uint64, error) {
	newSegID := kite.SegmentID(s.nextSegmentID.Load())
	remap := make(map[kite.DocID]kite.DocID)
	var next uint32

	for _, old := range ids {
		view := &segmentView{snap: snap, id: old}
		dels, err := view.LoadDeletions()
		if err != nil {
			return nil, 0, err
		}
		total, err := view.LoadTotalDocs()
		if err != nil {
			return nil, 0, err
		}
		live := roaring.New()
		live.AddRange(0, total)
		live.AndNot(dels)

		it := live.Iterator()
		for it.HasNext() {
			oldOrd := it.Next()
			remap[kite.DocID{Segment: old, Ord: kite.Ordinal(oldOrd)}] = kite.DocID{
				Segment: newSegID,
				Ord:     kite.Ordinal(next),
			}
			next++
		}
	}
	return remap, uint64(next), nil
}

// mergePostings unions every input segment's posting lists for field,
// term by term, remapping ordinals into the new segment and writing the
// result (and its freshly counted document frequency) directly: POST
// keys are always a one-shot Set, never a merge (spec.md Invariant 3).
//
// There is no cheaper way to enumerate "every posting belonging to these
// segments" than scanning the whole term dictionary once per field,
// because POST keys order segment_id last (see keys.PostFamilyPrefix);
// this is the accepted cost of a layout that instead makes the much
// hotter per-term query lookup cheap.
func (s *Store) mergePostings(batch *pebble.Batch, snap *pebble.Snapshot, ids []kite.SegmentID, newSegID kite.SegmentID, field kite.FieldID, remap map[kite.DocID]kite.DocID) error {
	return s.termDict.scanPrefix(snap, nil, func(_ []byte, term kite.TermID) error {
		merged := roaring.New()
		for _, old := range ids {
			view := &segmentView{snap: snap, id: old}
			postings, err := view.LoadPosting(field, term)
			if err != nil {
				return err
			}
			it := postings.Iterator()
			for it.HasNext() {
				oldOrd := it.Next()
				if newDoc, ok := remap[kite.DocID{Segment: old, Ord: kite.Ordinal(oldOrd)}]; ok {
					merged.Add(uint32(newDoc.Ord))
				}
			}
		}
		if merged.IsEmpty() {
			return nil
		}

		raw, err := serializeRoaring(merged)
		if err != nil {
			return err
		}
		postKey := keys.PostKey(uint32(field), uint32(term), uint32(newSegID))
		if err := batch.Set(postKey, raw, nil); err != nil {
			return wrapStoreErr(postKey, err)
		}
		dfKey := keys.StatKey(uint32(newSegID), keys.StatTermDF(uint32(field), uint32(term)))
		if err := batch.Set(dfKey, encodeStatInt(int64(merged.GetCardinality())), nil); err != nil {
			return wrapStoreErr(dfKey, err)
		}
		return nil
	})
}

// copyStoredDoc rewrites one document's stored payload for field from its
// old location to its merged one, returning the field's decoded length
// (and whether it carried any tokens at all) so the caller can recompute
// segment-level field statistics from scratch.
func (s *Store) copyStoredDoc(batch *pebble.Batch, view *segmentView, oldOrd kite.Ordinal, newDoc kite.DocID, field kite.FieldID) (uint64, uint64, error) {
	valKey := keys.StoredValKey(uint32(view.id), uint16(oldOrd), uint32(field))
	if raw, closer, err := view.snap.Get(valKey); err == nil {
		newKey := keys.StoredValKey(uint32(newDoc.Segment), uint16(newDoc.Ord), uint32(field))
		cerr := batch.Set(newKey, raw, nil)
		closer.Close()
		if cerr != nil {
			return 0, 0, wrapStoreErr(newKey, cerr)
		}
	} else if err != pebble.ErrNotFound {
		return 0, 0, wrapStoreErr(valKey, err)
	}

	hasTokens := false
	length := uint64(1)
	lenKey := keys.StoredLenKey(uint32(view.id), uint16(oldOrd), uint32(field))
	if raw, closer, err := view.snap.Get(lenKey); err == nil {
		newKey := keys.StoredLenKey(uint32(newDoc.Segment), uint16(newDoc.Ord), uint32(field))
		cerr := batch.Set(newKey, raw, nil)
		closer.Close()
		if cerr != nil {
			return 0, 0, wrapStoreErr(newKey, cerr)
		}
		if len(raw) == 1 {
			length = segment.DecodeLength(raw[0], true)
			hasTokens = true
		}
	} else if err != pebble.ErrNotFound {
		return 0, 0, wrapStoreErr(lenKey, err)
	}

	lower := keys.StoredDocPrefix(uint32(view.id), uint16(oldOrd))
	upper := keys.PrefixUpperBound(lower)
	it, err := view.snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, 0, fmt.Errorf("store: scan stored doc: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if keys.KindOfStored(it.Key()) != keys.KindTF || keys.FieldOfStored(it.Key()) != uint32(field) {
			continue
		}
		term := keys.TermOfStoredTF(it.Key())
		newKey := keys.StoredTFKey(uint32(newDoc.Segment), uint16(newDoc.Ord), uint32(field), term)
		if err := batch.Set(newKey, it.Value(), nil); err != nil {
			return 0, 0, wrapStoreErr(newKey, err)
		}
		hasTokens = true
	}
	if err := it.Error(); err != nil {
		return 0, 0, err
	}

	if !hasTokens {
		return 0, 0, nil
	}
	return length, length, nil
}

// PurgeSegments permanently deletes every key belonging to segments whose
// ACTIVE flag is already cleared (i.e. ones a prior MergeSegments
// replaced). Purging a still-active segment would destroy live data, so
// it is refused.
func (s *Store) PurgeSegments(ids []kite.SegmentID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, id := range ids {
		active, err := s.segmentIsActive(id)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("store: segment %d: %w", id, ErrSegmentStillActive)
		}
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, id := range ids {
		if err := deleteRange(batch, keys.StoredSegmentPrefix(uint32(id)), keys.PrefixUpperBound(keys.StoredSegmentPrefix(uint32(id)))); err != nil {
			return err
		}
		if err := batch.Delete(keys.DelKey(uint32(id)), nil); err != nil {
			return wrapStoreErr(keys.DelKey(uint32(id)), err)
		}
		if err := deleteRange(batch, keys.StatSegmentPrefix(uint32(id)), keys.PrefixUpperBound(keys.StatSegmentPrefix(uint32(id)))); err != nil {
			return err
		}
	}

	if err := s.purgeSegmentPostings(batch, ids); err != nil {
		return err
	}

	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("store: commit purge: %w", err)
	}
	return nil
}

// purgeSegmentPostings removes every POST entry belonging to ids. Like
// mergePostings, this must walk the whole term dictionary once per field
// because POST orders segment_id last.
func (s *Store) purgeSegmentPostings(batch *pebble.Batch, ids []kite.SegmentID) error {
	toPurge := make(map[kite.SegmentID]bool, len(ids))
	for _, id := range ids {
		toPurge[id] = true
	}

	schema := s.currentSchema()
	snap := s.db.NewSnapshot()
	defer snap.Close()

	for _, field := range schema.Fields() {
		err := s.termDict.scanPrefix(snap, nil, func(_ []byte, term kite.TermID) error {
			for id := range toPurge {
				key := keys.PostKey(uint32(field), uint32(term), uint32(id))
				if err := batch.Delete(key, nil); err != nil {
					return wrapStoreErr(key, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func deleteRange(batch *pebble.Batch, lower, upper []byte) error {
	if upper == nil {
		return nil
	}
	return batch.DeleteRange(lower, upper, nil)
}
