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

package query

import "bytes"

// Selector picks a subset of the term dictionary for MultiTerm to union
// over. Prefix is the only implementation the core ships; it is the
// interface boundary future selectors (wildcard, fuzzy, range) would
// extend without touching MultiTerm itself.
type Selector interface {
	// Matches reports whether a candidate term (already known to share
	// Selector's scan prefix) should be included.
	Matches(term []byte) bool
	// ScanPrefix is the term-dictionary prefix the evaluator scans to
	// find candidates cheaply, before calling Matches on each one.
	ScanPrefix() []byte
}

// Prefix selects every term starting with the given byte sequence.
type Prefix struct {
	Bytes []byte
}

func NewPrefix(b []byte) Prefix { return Prefix{Bytes: b} }

func (p Prefix) Matches(term []byte) bool  { return bytes.HasPrefix(term, p.Bytes) }
func (p Prefix) ScanPrefix() []byte        { return p.Bytes }
