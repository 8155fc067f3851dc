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

package kite

import "fmt"

// FieldID is a stable, process-wide identifier for a schema field.
// Once assigned it never changes, even after the field is soft-deleted.
type FieldID uint32

// TermID is a monotonically increasing, permanent identifier for a Term
// once it has been interned into the global term dictionary.
type TermID uint32

// SegmentID identifies an immutable, append-only unit of index storage.
// SegmentIDs are unique and allocated in increasing order; a failed
// segment write leaks its id (the counter never rewinds).
type SegmentID uint32

// Ordinal is a document's position within its segment, in [0, 1<<16).
type Ordinal uint16

// DocID is the pair that uniquely identifies a live document within the
// engine. It is stable within a segment's lifetime and is remapped when
// its segment is compacted away by a merge.
type DocID struct {
	Segment SegmentID
	Ord     Ordinal
}

func (d DocID) String() string {
	return fmt.Sprintf("DocID(%d, %d)", d.Segment, d.Ord)
}

// Less orders DocIDs by segment then ordinal. Used by the top-K collector
// to give matches a stable tie-break when scores are equal.
func (d DocID) Less(other DocID) bool {
	if d.Segment != other.Segment {
		return d.Segment < other.Segment
	}
	return d.Ord < other.Ord
}
