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

import "sort"

// Term is a value-object byte sequence: UTF-8 text for text fields, raw
// bytes for anything else. It is defined as a string so that TermVector
// can use it as a map key without an extra conversion at every lookup.
type Term string

// NewTerm wraps a byte slice as a Term without copying beyond what the
// string conversion already requires.
func NewTerm(b []byte) Term {
	return Term(b)
}

// Bytes returns the raw byte sequence of the term.
func (t Term) Bytes() []byte {
	return []byte(t)
}

// Token is a single occurrence of a Term at a position within a field's
// analyzed token stream.
type Token struct {
	Term     Term
	Position uint32
}

// TermVector is the set of terms produced by the analysis pipeline for one
// field of one document, together with every position each term occurred
// at. The engine never persists positions, so phrase queries are not
// supported; they are retained here only long enough to compute
// per-term, per-document frequencies during segment construction.
type TermVector map[Term][]uint32

// NewTermVector builds a TermVector from an ordered token stream, grouping
// positions by term exactly as the analysis pipeline would hand them off.
func NewTermVector(tokens []Token) TermVector {
	tv := make(TermVector, len(tokens))
	for _, tok := range tokens {
		tv[tok.Term] = append(tv[tok.Term], tok.Position)
	}
	return tv
}

// Tokens reconstructs the token stream in position order. Mainly useful
// for round-tripping in tests.
func (tv TermVector) Tokens() []Token {
	toks := make([]Token, 0, len(tv))
	for term, positions := range tv {
		for _, pos := range positions {
			toks = append(toks, Token{Term: term, Position: pos})
		}
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i].Position < toks[j].Position })
	return toks
}
