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

// Document is the ingest-side representation of one record: a primary key
// unique across the engine, the analyzed token streams for its indexed
// fields, and the raw values for its stored fields. It is consumed and
// discarded by the segment builder, which keeps every indexed field's
// postings and every stored field's value it carries; the schema's
// INDEXED and STORED flags are not consulted.
type Document struct {
	Key           []byte
	IndexedFields map[FieldID]TermVector
	StoredFields  map[FieldID]FieldValue
}

// NewDocument starts an empty document for the given primary key.
func NewDocument(key []byte) *Document {
	return &Document{
		Key:           key,
		IndexedFields: make(map[FieldID]TermVector),
		StoredFields:  make(map[FieldID]FieldValue),
	}
}

// AddIndexedField attaches an analyzed token stream for a field.
func (d *Document) AddIndexedField(field FieldID, tv TermVector) *Document {
	d.IndexedFields[field] = tv
	return d
}

// AddStoredField attaches a stored value for a field.
func (d *Document) AddStoredField(field FieldID, v FieldValue) *Document {
	d.StoredFields[field] = v
	return d
}
