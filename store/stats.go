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

	"github.com/kitesearch/kite"
)

// SegmentStatistics summarizes one segment's liveness and size, the way
// an operator would use to decide whether it is a merge candidate.
type SegmentStatistics struct {
	Segment      kite.SegmentID
	TotalDocs    uint64
	DeletedDocs  uint64
	LiveDocs     uint64
	FieldTokens  map[kite.FieldID]uint64
	FieldDocs    map[kite.FieldID]uint64
}

// GetSegmentStatistics reports SegmentStatistics for every currently
// active segment.
func (s *Store) GetSegmentStatistics() ([]SegmentStatistics, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	segments, err := activeSegments(snap)
	if err != nil {
		return nil, err
	}

	schema := s.currentSchema()
	out := make([]SegmentStatistics, 0, len(segments))
	for _, id := range segments {
		view := &segmentView{snap: snap, id: id}

		total, err := view.LoadTotalDocs()
		if err != nil {
			return nil, err
		}
		deleted, err := view.LoadDeletedDocs()
		if err != nil {
			return nil, err
		}
		if deleted > total {
			return nil, fmt.Errorf("store: segment %d has more deletions (%d) than documents (%d)", id, deleted, total)
		}

		stat := SegmentStatistics{
			Segment:     id,
			TotalDocs:   total,
			DeletedDocs: deleted,
			LiveDocs:    total - deleted,
			FieldTokens: make(map[kite.FieldID]uint64),
			FieldDocs:   make(map[kite.FieldID]uint64),
		}
		for _, field := range schema.Fields() {
			tokens, err := view.LoadFieldTokens(field)
			if err != nil {
				return nil, err
			}
			docs, err := view.LoadFieldDocs(field)
			if err != nil {
				return nil, err
			}
			if tokens > 0 {
				stat.FieldTokens[field] = tokens
			}
			if docs > 0 {
				stat.FieldDocs[field] = docs
			}
		}
		out = append(out, stat)
	}
	return out, nil
}
