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
	"go.uber.org/atomic"
)

// termDictionary maps term bytestrings to permanent, monotonically
// increasing TermIDs. Lookups are served from an in-memory cache guarded
// by a narrow RWMutex (spec.md §4.3 allows "finer-grained locking"); a
// miss falls through to the store and, failing that, allocates a new id
// from the persisted counter. Every creation happens inside the caller's
// write batch so it commits atomically with whatever segment write
// triggered it.
type termDictionary struct {
	db     *pebble.DB
	nextID *atomic.Uint32

	mu    sync.RWMutex
	cache map[kite.Term]kite.TermID
}

func newTermDictionary(db *pebble.DB, nextID *atomic.Uint32) *termDictionary {
	return &termDictionary{
		db:     db,
		nextID: nextID,
		cache:  make(map[kite.Term]kite.TermID),
	}
}

// getOrCreate returns the global TermID for term, adding a forward-map
// write (and a counter bump) to batch if this is the first time the term
// dictionary has ever seen it.
func (d *termDictionary) getOrCreate(batch *pebble.Batch, term kite.Term) (kite.TermID, error) {
	d.mu.RLock()
	if id, ok := d.cache[term]; ok {
		d.mu.RUnlock()
		return id, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check: another call may have interned it while we waited for
	// the write lock.
	if id, ok := d.cache[term]; ok {
		return id, nil
	}

	key := keys.TermDictKey(term.Bytes())
	if v, closer, err := d.db.Get(key); err == nil {
		id := kite.TermID(decodeCounter(v))
		closer.Close()
		d.cache[term] = id
		return id, nil
	} else if err != pebble.ErrNotFound {
		return 0, wrapStoreErr(key, err)
	}

	id := kite.TermID(d.nextID.Add(1) - 1)
	if err := batch.Set(key, encodeCounter(uint32(id)), nil); err != nil {
		return 0, wrapStoreErr(key, err)
	}
	if err := batch.Set(keys.MetaKey(metaNextTermID), encodeCounter(uint32(d.nextID.Load())), nil); err != nil {
		return 0, err
	}

	d.cache[term] = id
	return id, nil
}

// resolve returns the global TermID already assigned to term, failing if
// it has never been interned. Used by query evaluation, which must never
// create terms.
func (d *termDictionary) resolve(term kite.Term) (kite.TermID, bool, error) {
	d.mu.RLock()
	if id, ok := d.cache[term]; ok {
		d.mu.RUnlock()
		return id, true, nil
	}
	d.mu.RUnlock()

	key := keys.TermDictKey(term.Bytes())
	v, closer, err := d.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapStoreErr(key, err)
	}
	defer closer.Close()

	id := kite.TermID(decodeCounter(v))
	d.mu.Lock()
	d.cache[term] = id
	d.mu.Unlock()
	return id, true, nil
}

// scanPrefix walks every term in the dictionary whose bytes start with
// prefix, calling fn with each (term bytes, TermID). It is how
// MultiTerm's Prefix selector is evaluated.
func (d *termDictionary) scanPrefix(snap *pebble.Snapshot, prefix []byte, fn func(term []byte, id kite.TermID) error) error {
	lower := keys.TermDictPrefix(prefix)
	upper := keys.PrefixUpperBound(lower)
	it, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("store: scan term dictionary: %w", err)
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		id := kite.TermID(decodeCounter(it.Value()))
		if err := fn(keys.TermOf(it.Key()), id); err != nil {
			return err
		}
	}
	return it.Error()
}
