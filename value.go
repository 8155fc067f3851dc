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

import (
	"encoding/binary"
	"time"
)

// FieldType names the handful of stored-field value shapes the engine
// understands. Text is analyzed and indexed; PlainString is indexed as a
// single opaque token (no tokenization); Integer, Boolean and DateTime are
// never indexed, only stored.
type FieldType int

const (
	FieldTypeText FieldType = iota
	FieldTypePlainString
	FieldTypeInteger
	FieldTypeBoolean
	FieldTypeDateTime
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeText:
		return "text"
	case FieldTypePlainString:
		return "plain_string"
	case FieldTypeInteger:
		return "integer"
	case FieldTypeBoolean:
		return "boolean"
	case FieldTypeDateTime:
		return "date_time"
	default:
		return "unknown"
	}
}

// FieldFlags is a bitmask of the behaviors enabled for a field.
type FieldFlags uint8

const (
	// FieldIndexed means the field's token stream is added to posting
	// lists and is searchable.
	FieldIndexed FieldFlags = 1 << iota
	// FieldStored means the field's raw value is kept and retrievable
	// via Reader.ReadStoredField.
	FieldStored
	// FieldUnique marks the field as carrying a caller-enforced uniqueness
	// constraint. The core does not itself enforce it; it is metadata for
	// layers built on top.
	FieldUnique
	// FieldDeleted is set by Store.DeleteField instead of removing the
	// FieldDef outright, so that the id and any stored data already on
	// disk remain addressable.
	FieldDeleted
)

func (f FieldFlags) Has(flag FieldFlags) bool { return f&flag != 0 }

func (f FieldFlags) String() string {
	var s string
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if f.Has(FieldIndexed) {
		add("INDEXED")
	}
	if f.Has(FieldStored) {
		add("STORED")
	}
	if f.Has(FieldUnique) {
		add("UNIQUE")
	}
	if f.Has(FieldDeleted) {
		add("DELETED")
	}
	return s
}

// FieldValue is the immutable payload of a stored field. Exactly one of
// the typed accessors below is meaningful for a given value; which one is
// determined by the FieldDef's FieldType.
type FieldValue struct {
	typ  FieldType
	str  string
	i64  int64
	b    bool
	time time.Time
}

func StringValue(s string) FieldValue       { return FieldValue{typ: FieldTypeText, str: s} }
func IntegerValue(v int64) FieldValue       { return FieldValue{typ: FieldTypeInteger, i64: v} }
func BooleanValue(v bool) FieldValue        { return FieldValue{typ: FieldTypeBoolean, b: v} }
func DateTimeValue(v time.Time) FieldValue  { return FieldValue{typ: FieldTypeDateTime, time: v} }

func (v FieldValue) Type() FieldType  { return v.typ }
func (v FieldValue) String() string   { return v.str }
func (v FieldValue) Integer() int64   { return v.i64 }
func (v FieldValue) Boolean() bool    { return v.b }
func (v FieldValue) Time() time.Time  { return v.time }

// Bytes encodes the value the way the store persists it under the "val"
// stored-field kind: UTF-8 for text, 8-byte little-endian for integers,
// a single 't'/'f' byte for booleans, and microsecond-resolution
// little-endian epoch micros for timestamps.
func (v FieldValue) Bytes() []byte {
	switch v.typ {
	case FieldTypeText, FieldTypePlainString:
		return []byte(v.str)
	case FieldTypeInteger:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.i64))
		return b
	case FieldTypeBoolean:
		if v.b {
			return []byte{'t'}
		}
		return []byte{'f'}
	case FieldTypeDateTime:
		micros := v.time.Unix()*1_000_000 + int64(v.time.Nanosecond())/1000
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(micros))
		return b
	default:
		return nil
	}
}
