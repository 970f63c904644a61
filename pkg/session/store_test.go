// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDSymmetry(t *testing.T) {
	assert.Equal(t, PrivateConversationID(1, 2), PrivateConversationID(2, 1))
	assert.Equal(t, "private_1_2", PrivateConversationID(1, 2))
	assert.Equal(t, "group_10", GroupConversationID(10))
}

func TestNextSendSeqMonotonic(t *testing.T) {
	s := NewStore()
	s.Store("private_1_2", make([]byte, 32))

	for i := uint64(0); i < 5; i++ {
		seq, err := s.NextSendSeq("private_1_2")
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}
}

func TestNextSendSeqNoSession(t *testing.T) {
	s := NewStore()
	_, err := s.NextSendSeq("nope")
	require.Error(t, err)
}

func TestValidateRecvSeqRejectsReplay(t *testing.T) {
	s := NewStore()
	s.Store("c", make([]byte, 32))

	assert.True(t, s.ValidateRecvSeq("c", 0))
	assert.True(t, s.ValidateRecvSeq("c", 1))
	assert.False(t, s.ValidateRecvSeq("c", 1)) // replay
	assert.False(t, s.ValidateRecvSeq("c", 0)) // out of order / old
	assert.True(t, s.ValidateRecvSeq("c", 5))  // gap is fine, strict > only
}

func TestValidateRecvSeqNoSession(t *testing.T) {
	s := NewStore()
	assert.False(t, s.ValidateRecvSeq("nope", 0))
}

func TestStoreResetsCountersOnReplace(t *testing.T) {
	s := NewStore()
	s.Store("c", make([]byte, 32))
	_, _ = s.NextSendSeq("c")
	_, _ = s.NextSendSeq("c")
	s.ValidateRecvSeq("c", 3)

	s.Store("c", make([]byte, 32)) // rekey

	stats, ok := s.Stats("c")
	require.True(t, ok)
	assert.Zero(t, stats.SendSeq)
	assert.Zero(t, stats.RecvSeq)
}

func TestShouldRotate(t *testing.T) {
	s := NewStoreWithThreshold(3)
	s.Store("c", make([]byte, 32))
	assert.False(t, s.ShouldRotate("c"))
	_, _ = s.NextSendSeq("c")
	_, _ = s.NextSendSeq("c")
	_, _ = s.NextSendSeq("c")
	assert.True(t, s.ShouldRotate("c"))
}

func TestRemove(t *testing.T) {
	s := NewStore()
	s.Store("c", make([]byte, 32))
	s.Remove("c")
	_, ok := s.GetKey("c")
	assert.False(t, ok)
}

// TestConcurrentNextSendSeqIsGapFree races k goroutines on
// NextSendSeq: together they must observe exactly the set {0,...,k-1}
// with no gaps or duplicates.
func TestConcurrentNextSendSeqIsGapFree(t *testing.T) {
	s := NewStore()
	s.Store("c", make([]byte, 32))

	const n = 200
	seen := make([]int32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.NextSendSeq("c")
			require.NoError(t, err)
			seen[seq]++
		}()
	}
	wg.Wait()

	for _, count := range seen {
		assert.Equal(t, int32(1), count)
	}
}
