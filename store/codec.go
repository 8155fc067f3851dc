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
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/kitesearch/kite"
)

// timeFromMicros inverts kite.FieldValue.Bytes' microsecond-epoch
// encoding for FieldTypeDateTime.
func timeFromMicros(micros int64) time.Time {
	return time.UnixMicro(micros).UTC()
}

// encodeOrdinals serializes a sequence of ordinals as the raw 2-byte
// big-endian concatenation the DEL family's merge operands use.
func encodeOrdinals(ords []uint16) []byte {
	b := make([]byte, 0, len(ords)*2)
	for _, ord := range ords {
		var pair [2]byte
		binary.BigEndian.PutUint16(pair[:], ord)
		b = append(b, pair[:]...)
	}
	return b
}

func encodeOrdinalBitmap(bm *roaring.Bitmap) []byte {
	if bm == nil {
		return nil
	}
	ords := make([]uint16, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ords = append(ords, uint16(it.Next()))
	}
	return encodeOrdinals(ords)
}

// decodeOrdinalList deserializes the DEL family's raw 2-byte-ordinal
// stream into a roaring bitmap, tolerating duplicate entries.
func decodeOrdinalList(raw []byte) *roaring.Bitmap {
	bm := roaring.New()
	for i := 0; i+1 < len(raw); i += 2 {
		bm.Add(uint32(binary.BigEndian.Uint16(raw[i : i+2])))
	}
	return bm
}

// decodeRoaring deserializes the POST family's at-rest value, which is
// always written as a full roaring-serialized bitmap (see
// store/writer.go); postings are immutable once written (spec.md
// Invariant 3), so this never needs to tolerate the raw-ordinal merge
// encoding bitmapMerger produces for DEL.
func decodeRoaring(raw []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(raw) == 0 {
		return bm, nil
	}
	if _, err := bm.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("store: decode posting bitmap: %w", err)
	}
	return bm, nil
}

func serializeRoaring(bm *roaring.Bitmap) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("store: serialize posting bitmap: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeDocLocation serializes a DocID the way spec.md §6 specifies for
// PKEY values: segment_id:u32_le | ord:u16_le.
func encodeDocLocation(id kite.DocID) []byte {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint32(b[0:4], uint32(id.Segment))
	binary.LittleEndian.PutUint16(b[4:6], uint16(id.Ord))
	return b
}

func decodeDocLocation(b []byte) kite.DocID {
	return kite.DocID{
		Segment: kite.SegmentID(binary.LittleEndian.Uint32(b[0:4])),
		Ord:     kite.Ordinal(binary.LittleEndian.Uint16(b[4:6])),
	}
}

func encodeCounter(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func decodeCounter(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
