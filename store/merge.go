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
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/kitesearch/kite/store/keys"
)

// mergerName identifies kite's single merge operator to pebble. It is
// pinned: changing it would make an existing database unreadable by a
// build with a different name.
const mergerName = "kite.merge.v1"

// newMerger returns the one pebble.Merger the store registers at open.
// It dispatches on the key's leading family-tag byte, per spec.md §4.2:
// POST/DEL concatenate raw operand bytes, STAT sums 8-byte big-endian
// integers, and everything else is last-writer-wins.
func newMerger() *pebble.Merger {
	return &pebble.Merger{
		Name: mergerName,
		Merge: func(key, value []byte) (pebble.ValueMerger, error) {
			switch keys.FamilyOf(key) {
			case keys.Post, keys.Del:
				return newBitmapMerger(value), nil
			case keys.Stat:
				return newStatMerger(value), nil
			default:
				return newLWWMerger(value), nil
			}
		},
	}
}

// bitmapMerger implements spec.md §4.2's posting/deletion combinator: the
// at-rest value is the concatenation of every raw 2-byte-ordinal operand
// ever merged in (duplicates tolerated; the segment reader deserializes
// the concatenated stream through a roaring bitmap, see
// store/codec.go's decodeOrdinalList).
type bitmapMerger struct {
	acc []byte
}

func newBitmapMerger(value []byte) *bitmapMerger {
	m := &bitmapMerger{}
	m.acc = append(m.acc, value...)
	return m
}

func (m *bitmapMerger) MergeNewer(value []byte) error {
	m.acc = append(m.acc, value...)
	return nil
}

func (m *bitmapMerger) MergeOlder(value []byte) error {
	// Order doesn't matter: the final value is just every operand's
	// bytes concatenated, and readers treat the whole stream as an
	// unordered bag of 2-byte ordinals.
	m.acc = append(value, m.acc...)
	return nil
}

func (m *bitmapMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return m.acc, nil, nil
}

// statMerger implements spec.md §4.2's statistic combinator: sum of every
// operand (and the existing value, if any) as 8-byte big-endian signed
// integers.
type statMerger struct {
	sum int64
}

func newStatMerger(value []byte) *statMerger {
	return &statMerger{sum: decodeStatInt(value)}
}

func (m *statMerger) MergeNewer(value []byte) error {
	m.sum += decodeStatInt(value)
	return nil
}

func (m *statMerger) MergeOlder(value []byte) error {
	m.sum += decodeStatInt(value)
	return nil
}

func (m *statMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return encodeStatInt(m.sum), nil, nil
}

func decodeStatInt(value []byte) int64 {
	if len(value) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(value))
}

func encodeStatInt(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// lwwMerger implements spec.md §4.2's default combinator for every family
// besides POST/DEL/STAT: last writer wins. Pebble presents operands to
// MergeNewer in increasing recency order, so the most recent call always
// holds the value that should survive; MergeOlder only ever sees operands
// that predate whatever Merge was first seeded with, so they never win.
type lwwMerger struct {
	val []byte
}

func newLWWMerger(value []byte) *lwwMerger {
	return &lwwMerger{val: append([]byte(nil), value...)}
}

func (m *lwwMerger) MergeNewer(value []byte) error {
	m.val = append([]byte(nil), value...)
	return nil
}

func (m *lwwMerger) MergeOlder(value []byte) error {
	return nil
}

func (m *lwwMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return m.val, nil, nil
}
