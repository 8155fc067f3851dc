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
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/store/keys"
)

// primaryKeyIndex is the in-memory map from a caller's primary key bytes
// to that document's current DocID, durably mirrored under PKEY keys.
//
// Its own mutex only guards the map while a mutator stages its writes
// into a batch; it is released before that batch is committed. What
// keeps a live key's DocID equal to its most recent durable write is
// Store.writeMu, which every caller of these mutators (insert, remove,
// and the merge engine in store/compact.go) holds from before the map is
// touched until after the batch commits. That same lock is what lets a
// concurrent delete be serialized either entirely before or entirely
// after a compaction, never lost in between.
type primaryKeyIndex struct {
	mu  sync.Mutex
	idx map[string]kite.DocID
}

func newPrimaryKeyIndex() *primaryKeyIndex {
	return &primaryKeyIndex{idx: make(map[string]kite.DocID)}
}

// loadFromStore rebuilds the map by prefix-scanning PKEY, called once
// when the store is opened.
func (p *primaryKeyIndex) loadFromStore(db *pebble.DB) error {
	lower := keys.PKeyPrefix()
	upper := keys.PrefixUpperBound(lower)
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("store: scan primary key index: %w", err)
	}
	defer it.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	for it.First(); it.Valid(); it.Next() {
		key := append([]byte(nil), keys.PrimaryKeyOf(it.Key())...)
		p.idx[string(key)] = decodeDocLocation(it.Value())
	}
	return it.Error()
}

// insertOrReplace records key -> newDoc in batch and in memory and, if key
// already named a document, tombstones that previous location in the same
// batch. It returns the previous location (if any).
func (p *primaryKeyIndex) insertOrReplace(batch *pebble.Batch, key []byte, newDoc kite.DocID) (kite.DocID, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, hadOld := p.idx[string(key)]

	pkeyKey := keys.PKeyKey(key)
	if err := batch.Set(pkeyKey, encodeDocLocation(newDoc), nil); err != nil {
		return kite.DocID{}, false, wrapStoreErr(pkeyKey, err)
	}

	if hadOld {
		if err := tombstone(batch, old); err != nil {
			return kite.DocID{}, false, err
		}
	}

	p.idx[string(key)] = newDoc
	return old, hadOld, nil
}

// deleteKey removes key from the map and tombstones its current location
// in the same batch.
func (p *primaryKeyIndex) deleteKey(batch *pebble.Batch, key []byte) (kite.DocID, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, hadOld := p.idx[string(key)]
	if !hadOld {
		return kite.DocID{}, false, nil
	}

	pkeyKey := keys.PKeyKey(key)
	if err := batch.Delete(pkeyKey, nil); err != nil {
		return kite.DocID{}, false, wrapStoreErr(pkeyKey, err)
	}
	if err := tombstone(batch, old); err != nil {
		return kite.DocID{}, false, err
	}

	delete(p.idx, string(key))
	return old, true, nil
}

// remapDocuments rewrites every primary-key entry whose DocID appears in
// remap to its new location, both in memory and (via batch) on disk. It
// is how the merge engine (store/compact.go) keeps the primary key index
// pointed at documents after their segment is replaced by a merged one.
func (p *primaryKeyIndex) remapDocuments(batch *pebble.Batch, remap map[kite.DocID]kite.DocID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, old := range p.idx {
		next, ok := remap[old]
		if !ok {
			continue
		}
		pkeyKey := keys.PKeyKey([]byte(key))
		if err := batch.Set(pkeyKey, encodeDocLocation(next), nil); err != nil {
			return wrapStoreErr(pkeyKey, err)
		}
		p.idx[key] = next
	}
	return nil
}

// contains reports whether key currently names a live document.
func (p *primaryKeyIndex) contains(key []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.idx[string(key)]
	return ok
}

// tombstone appends the merge writes that mark doc's ordinal deleted in
// its segment's deletion bitmap and bump that segment's deleted_docs
// statistic. It never touches the segment's ACTIVE flag or posting
// lists: deletion is soft and additive (spec.md §4.7).
func tombstone(batch *pebble.Batch, doc kite.DocID) error {
	delKey := keys.DelKey(uint32(doc.Segment))
	if err := batch.Merge(delKey, encodeOrdinals([]uint16{uint16(doc.Ord)}), nil); err != nil {
		return wrapStoreErr(delKey, err)
	}

	statKey := keys.StatKey(uint32(doc.Segment), keys.StatDeletedDocs)
	if err := batch.Merge(statKey, encodeStatInt(1), nil); err != nil {
		return wrapStoreErr(statKey, err)
	}
	return nil
}
