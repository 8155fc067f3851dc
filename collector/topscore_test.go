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

package collector

import (
	"testing"

	"github.com/kitesearch/kite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(seg uint32, ord uint16) kite.DocID {
	return kite.DocID{Segment: kite.SegmentID(seg), Ord: kite.Ordinal(ord)}
}

func TestTopScoreCollectorKeepsOnlyTheBest(t *testing.T) {
	c := NewTopScoreCollector(2)
	c.Collect(doc(0, 0), 1.0)
	c.Collect(doc(0, 1), 3.0)
	c.Collect(doc(0, 2), 2.0)

	out := c.IntoSortedVec()
	require.Len(t, out, 2)
	assert.Equal(t, doc(0, 1), out[0].Doc)
	assert.Equal(t, doc(0, 2), out[1].Doc)
}

func TestTopScoreCollectorTieBreaksByAscendingDocID(t *testing.T) {
	c := NewTopScoreCollector(3)
	c.Collect(doc(0, 5), 1.0)
	c.Collect(doc(0, 2), 1.0)
	c.Collect(doc(0, 9), 1.0)

	out := c.IntoSortedVec()
	require.Len(t, out, 3)
	assert.Equal(t, doc(0, 2), out[0].Doc)
	assert.Equal(t, doc(0, 5), out[1].Doc)
	assert.Equal(t, doc(0, 9), out[2].Doc)
}

func TestTopScoreCollectorReturnsSubsetOfMatches(t *testing.T) {
	c := NewTopScoreCollector(1)
	for i := uint16(0); i < 10; i++ {
		c.Collect(doc(0, i), float64(i))
	}
	out := c.IntoSortedVec()
	require.Len(t, out, 1)
	assert.Equal(t, doc(0, 9), out[0].Doc)
}
