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
	"errors"
	"fmt"

	"github.com/kitesearch/kite"
)

// ErrFieldDoesntExist is wrapped into a per-call error whenever a
// document references a field the schema has never registered or has
// soft-deleted, and by DeleteField for a name that was never registered.
var ErrFieldDoesntExist = errors.New("store: field doesn't exist")

// ErrInvalidFieldRef is returned by ReadStoredField when the FieldID
// passed in isn't registered in the schema at all.
var ErrInvalidFieldRef = errors.New("store: invalid field reference")

// ErrSegmentNotActive is returned by MergeSegments when an id it was
// given isn't currently an active segment.
var ErrSegmentNotActive = errors.New("store: segment is not active")

// ErrSegmentStillActive is returned by PurgeSegments for a segment id
// that is still live; purging it would violate liveness invariants.
var ErrSegmentStillActive = errors.New("store: refusing to purge an active segment")

// TextFieldUTF8DecodeError reports that a stored text value was not
// valid UTF-8.
type TextFieldUTF8DecodeError struct {
	Doc   kite.DocID
	Field kite.FieldID
	Bytes []byte
}

func (e *TextFieldUTF8DecodeError) Error() string {
	return fmt.Sprintf("store: stored text field %d of %s is not valid UTF-8", e.Field, e.Doc)
}

// BooleanFieldDecodeError reports that a stored boolean value wasn't the
// single byte 't' or 'f'.
type BooleanFieldDecodeError struct {
	Doc   kite.DocID
	Field kite.FieldID
	Bytes []byte
}

func (e *BooleanFieldDecodeError) Error() string {
	return fmt.Sprintf("store: stored boolean field %d of %s has invalid encoding %v", e.Field, e.Doc, e.Bytes)
}

// IntegerFieldValueSizeError reports that a stored integer or datetime
// value wasn't exactly 8 bytes.
type IntegerFieldValueSizeError struct {
	Doc   kite.DocID
	Field kite.FieldID
	Size  int
}

func (e *IntegerFieldValueSizeError) Error() string {
	return fmt.Sprintf("store: stored integer field %d of %s has size %d, want 8", e.Field, e.Doc, e.Size)
}

// StoreError wraps any failure surfaced by the underlying key-value
// store, carrying the key that was being operated on when it happened.
type StoreError struct {
	Key []byte
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: operation on key %x failed: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrapStoreErr(key []byte, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Key: key, Err: err}
}
