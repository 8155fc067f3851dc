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

// Package kite defines the value types shared by an embedded full-text
// search engine: schema field definitions, terms, documents and their
// identity, and the immutable stored-field values attached to them.
//
// The engine itself lives in the store package, which builds segments
// out of these types and persists them to an embedded key-value store.
package kite
