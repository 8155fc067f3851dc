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

// Package store implements kite's embedded segmented index: an ordered
// key-value store (cockroachdb/pebble) holding schema metadata, posting
// lists, stored field values, deletion bitmaps and statistics for every
// segment, plus the in-memory indices (primary key, term dictionary) that
// make writes and point lookups fast.
package store

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/kitesearch/kite"
	"github.com/kitesearch/kite/store/keys"
	"github.com/kitesearch/kite/store/segment"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Meta key names, per spec.md §6. They are leading-dot so they can never
// collide with a numeric field or segment id encoded as a name.
const (
	metaNextFieldID   = ".next_field_id"
	metaNextSegmentID = ".next_segment_id"
	metaNextTermID    = ".next_term_dictionary_id"
	metaSchema        = ".schema"
)

// Store is kite's top-level handle on one index: a single pebble database
// plus the in-memory state (schema, primary key index, term dictionary)
// needed to serve writes and reads against it.
//
// It follows the single-writer/many-reader model of spec.md §5: all
// mutating calls take writeMu, while Reader snapshots never block on it.
type Store struct {
	db        *pebble.DB
	logger    *zap.Logger
	writeOpts *pebble.WriteOptions

	writeMu sync.Mutex // serializes AddField/DeleteField/Insert/Remove/Merge/Purge

	schemaMu sync.RWMutex
	schema   *Schema

	pkIndex  *primaryKeyIndex
	termDict *termDictionary

	nextFieldID   *atomic.Uint32
	nextSegmentID *atomic.Uint32
}

// Option configures a Store at Create/Open time.
type Option func(*Store)

// WithLogger attaches a *zap.Logger for structured diagnostics; the
// default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l == nil {
			l = zap.NewNop()
		}
		s.logger = l
	}
}

// WithSync controls whether commits fsync before returning (default:
// true). Disabling it trades durability on crash for throughput.
func WithSync(sync bool) Option {
	return func(s *Store) {
		if sync {
			s.writeOpts = pebble.Sync
		} else {
			s.writeOpts = pebble.NoSync
		}
	}
}

// Create opens a brand-new store rooted at path, failing if one already
// exists there.
func Create(path string, opts ...Option) (*Store, error) {
	return open(path, &pebble.Options{ErrorIfExists: true}, opts...)
}

// Open opens an existing store rooted at path, failing if none exists.
func Open(path string, opts ...Option) (*Store, error) {
	return open(path, &pebble.Options{ErrorIfNotExists: true}, opts...)
}

func open(path string, pebbleOpts *pebble.Options, opts ...Option) (*Store, error) {
	pebbleOpts.Merger = newMerger()

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s := &Store{
		db:            db,
		logger:        zap.NewNop(),
		writeOpts:     pebble.Sync,
		pkIndex:       newPrimaryKeyIndex(),
		nextFieldID:   atomic.NewUint32(1),
		nextSegmentID: atomic.NewUint32(0),
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.pkIndex.loadFromStore(db); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) loadMeta() error {
	schemaBytes, closer, err := s.db.Get(keys.MetaKey(metaSchema))
	switch err {
	case nil:
		sc, uerr := unmarshalSchema(schemaBytes)
		closer.Close()
		if uerr != nil {
			return uerr
		}
		s.schema = sc
	case pebble.ErrNotFound:
		s.schema = newSchema()
	default:
		return wrapStoreErr(keys.MetaKey(metaSchema), err)
	}

	nextField, err := s.loadCounter(metaNextFieldID, 1)
	if err != nil {
		return err
	}
	s.nextFieldID.Store(nextField)

	nextSegment, err := s.loadCounter(metaNextSegmentID, 0)
	if err != nil {
		return err
	}
	s.nextSegmentID.Store(nextSegment)

	nextTerm, err := s.loadCounter(metaNextTermID, 0)
	if err != nil {
		return err
	}
	s.termDict = newTermDictionary(s.db, atomic.NewUint32(nextTerm))

	return nil
}

func (s *Store) loadCounter(name string, def uint32) (uint32, error) {
	key := keys.MetaKey(name)
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return def, nil
	}
	if err != nil {
		return 0, wrapStoreErr(key, err)
	}
	defer closer.Close()
	return decodeCounter(v), nil
}

// Close closes the underlying database. Every prior InsertOrUpdateDocument
// call has already committed its segment by the time it returned, so there
// is nothing left to flush.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Close()
}

func (s *Store) currentSchema() *Schema {
	s.schemaMu.RLock()
	defer s.schemaMu.RUnlock()
	return s.schema
}

func (s *Store) swapSchema(batch *pebble.Batch, next *Schema) error {
	raw, err := marshalSchema(next)
	if err != nil {
		return err
	}
	key := keys.MetaKey(metaSchema)
	if err := batch.Set(key, raw, nil); err != nil {
		return wrapStoreErr(key, err)
	}

	s.schemaMu.Lock()
	s.schema = next
	s.schemaMu.Unlock()
	return nil
}

// AddField registers a new schema field, failing with *ErrFieldAlreadyExists
// if name is already registered (soft-deleted names are never recycled).
func (s *Store) AddField(name string, typ kite.FieldType, flags kite.FieldFlags) (kite.FieldID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.currentSchema()
	next, id, err := cur.addField(name, typ, flags)
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.swapSchema(batch, next); err != nil {
		return 0, err
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return 0, fmt.Errorf("store: commit add field %q: %w", name, err)
	}
	return id, nil
}

// DeleteField soft-deletes a schema field by name; existing stored data
// under it remains readable, but new documents may no longer populate it.
func (s *Store) DeleteField(name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.currentSchema()
	next, err := cur.deleteField(name)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.swapSchema(batch, next); err != nil {
		return err
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("store: commit delete field %q: %w", name, err)
	}
	return nil
}

// InsertOrUpdateDocument indexes doc as a brand-new segment of its own —
// spec.md §8's default write policy is one document per segment, matching
// original_source/kite_rocksdb's insert_or_update_document. The segment
// commit and the primary key index update (which tombstones any document
// doc.Key previously pointed at) ride in the same atomic batch, so a
// reader can never observe the pkIndex entry before the segment it names
// is ACTIVE, and a crash before the single Commit leaves no trace of
// either.
func (s *Store) InsertOrUpdateDocument(doc *kite.Document) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	schema := s.currentSchema()
	for field := range doc.IndexedFields {
		def, ok := schema.FieldDef(field)
		if !ok {
			return fmt.Errorf("store: indexed field %d: %w", field, ErrFieldDoesntExist)
		}
		if def.Flags.Has(kite.FieldDeleted) {
			return fmt.Errorf("store: indexed field %d: %w", field, ErrFieldDoesntExist)
		}
	}
	for field := range doc.StoredFields {
		def, ok := schema.FieldDef(field)
		if !ok || def.Flags.Has(kite.FieldDeleted) {
			return fmt.Errorf("store: stored field %d: %w", field, ErrFieldDoesntExist)
		}
	}

	b := segment.NewBuilder()
	ord, err := b.AddDocument(doc.IndexedFields, doc.StoredFields)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	segID, err := s.writeSegment(batch, b)
	if err != nil {
		return err
	}

	newDoc := kite.DocID{Segment: segID, Ord: kite.Ordinal(ord)}
	if _, _, err := s.pkIndex.insertOrReplace(batch, doc.Key, newDoc); err != nil {
		return err
	}

	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("store: commit document %x: %w", doc.Key, err)
	}
	return nil
}

// RemoveDocumentByKey deletes the document registered under key, if any,
// returning whether one was found.
func (s *Store) RemoveDocumentByKey(key []byte) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	_, found, err := s.pkIndex.deleteKey(batch, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return false, fmt.Errorf("store: commit remove %x: %w", key, err)
	}
	return true, nil
}

// ContainsDocumentKey reports whether key currently names a live document.
func (s *Store) ContainsDocumentKey(key []byte) bool {
	return s.pkIndex.contains(key)
}
