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
	"gopkg.in/yaml.v3"
)

// FieldDef is a schema field's persisted definition.
type FieldDef struct {
	Name  string           `yaml:"name"`
	Type  kite.FieldType   `yaml:"type"`
	Flags kite.FieldFlags  `yaml:"flags"`
}

// schemaDoc is the YAML-serializable snapshot written under
// META(".schema"). It is a plain value, never mutated in place; Schema
// swaps a new one in under the writer lock (see store.go).
type schemaDoc struct {
	NextFieldID uint32              `yaml:"next_field_id"`
	Fields      map[uint32]FieldDef `yaml:"fields"`
}

// Schema maps field names to stable FieldIDs and keeps each field's type
// and flags. It is immutable once published: AddField/DeleteField build a
// new Schema value and the store swaps its shared pointer under a lock,
// so readers holding an older *Schema never observe a partial mutation.
type Schema struct {
	doc   schemaDoc
	names map[string]kite.FieldID
}

func newSchema() *Schema {
	return &Schema{
		doc:   schemaDoc{NextFieldID: 1, Fields: make(map[uint32]FieldDef)},
		names: make(map[string]kite.FieldID),
	}
}

func (s *Schema) clone() *Schema {
	cp := &Schema{
		doc:   schemaDoc{NextFieldID: s.doc.NextFieldID, Fields: make(map[uint32]FieldDef, len(s.doc.Fields))},
		names: make(map[string]kite.FieldID, len(s.names)),
	}
	for id, def := range s.doc.Fields {
		cp.doc.Fields[id] = def
	}
	for name, id := range s.names {
		cp.names[name] = id
	}
	return cp
}

// FieldByName returns the FieldID registered under name, if any.
func (s *Schema) FieldByName(name string) (kite.FieldID, bool) {
	id, ok := s.names[name]
	return id, ok
}

// FieldDef returns the definition for a FieldID, if it exists.
func (s *Schema) FieldDef(id kite.FieldID) (FieldDef, bool) {
	def, ok := s.doc.Fields[uint32(id)]
	return def, ok
}

// Fields returns every FieldID currently registered, including
// soft-deleted ones.
func (s *Schema) Fields() []kite.FieldID {
	ids := make([]kite.FieldID, 0, len(s.doc.Fields))
	for id := range s.doc.Fields {
		ids = append(ids, kite.FieldID(id))
	}
	return ids
}

// ErrFieldAlreadyExists is returned by addField when name is already
// registered (including soft-deleted fields: names are never recycled).
type ErrFieldAlreadyExists struct{ Name string }

func (e *ErrFieldAlreadyExists) Error() string {
	return fmt.Sprintf("store: field %q already exists", e.Name)
}

// addField returns a new Schema with one more field registered, leaving
// the receiver untouched.
func (s *Schema) addField(name string, typ kite.FieldType, flags kite.FieldFlags) (*Schema, kite.FieldID, error) {
	if _, exists := s.names[name]; exists {
		return nil, 0, &ErrFieldAlreadyExists{Name: name}
	}

	next := s.clone()
	id := kite.FieldID(next.doc.NextFieldID)
	next.doc.NextFieldID++
	next.doc.Fields[uint32(id)] = FieldDef{Name: name, Type: typ, Flags: flags}
	next.names[name] = id

	return next, id, nil
}

// deleteField returns a new Schema with name's FieldDeleted flag set,
// leaving the receiver untouched. The field id and any data already on
// disk under it are left exactly as-is (soft delete, per spec.md
// Invariant 5): deleted fields stop accepting new documents but keep
// their stored history readable.
func (s *Schema) deleteField(name string) (*Schema, error) {
	id, ok := s.names[name]
	if !ok {
		return nil, fmt.Errorf("store: field %q does not exist: %w", name, ErrFieldDoesntExist)
	}

	next := s.clone()
	def := next.doc.Fields[uint32(id)]
	def.Flags |= kite.FieldDeleted
	next.doc.Fields[uint32(id)] = def

	return next, nil
}

func marshalSchema(s *Schema) ([]byte, error) {
	return yaml.Marshal(s.doc)
}

func unmarshalSchema(b []byte) (*Schema, error) {
	var doc schemaDoc
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("store: decode schema: %w", err)
		}
	}
	if doc.Fields == nil {
		doc.Fields = make(map[uint32]FieldDef)
	}
	if doc.NextFieldID == 0 {
		doc.NextFieldID = 1
	}
	s := &Schema{doc: doc, names: make(map[string]kite.FieldID, len(doc.Fields))}
	for id, def := range doc.Fields {
		s.names[def.Name] = kite.FieldID(id)
	}
	return s, nil
}
