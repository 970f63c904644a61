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

package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncSubscriberRunsInline(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []Event
	bus.Subscribe(KindTextMessageReceived, ModeSync, func(ev Event) {
		got = append(got, ev)
	})

	bus.Publish(TextMessageReceived{MessageID: "m1", From: 1, To: 2, Body: "hi"})
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].(TextMessageReceived).Body)
}

func TestKindFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var textCount, errCount int
	bus.Subscribe(KindTextMessageReceived, ModeSync, func(Event) { textCount++ })
	bus.Subscribe(KindError, ModeSync, func(Event) { errCount++ })

	bus.Publish(TextMessageReceived{Body: "a"})
	bus.Publish(Error{Level: LevelWarning, Type: ErrTypeDecryption})
	bus.Publish(TextMessageReceived{Body: "b"})

	assert.Equal(t, 2, textCount)
	assert.Equal(t, 1, errCount)
}

func TestAsyncSubscriberPreservesOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.Subscribe(KindTextMessageReceived, ModeAsync, func(ev Event) {
		mu.Lock()
		got = append(got, ev.(TextMessageReceived).Body)
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		bus.Publish(TextMessageReceived{Body: string(rune('a' + i))})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async subscriber never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 10; i++ {
		assert.Equal(t, string(rune('a'+i)), got[i])
	}
}

func TestSingleLoopSerializesSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	done := make(chan struct{})
	var total int

	for s := 0; s < 3; s++ {
		bus.Subscribe(KindError, ModeSingleLoop, func(Event) {
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			total++
			if total == 9 {
				close(done)
			}
			mu.Unlock()
		})
	}

	for i := 0; i < 3; i++ {
		bus.Publish(Error{Level: LevelError, Type: ErrTypeProtocol})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("single loop never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRunning)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	count := 0
	sub := bus.Subscribe(KindTextMessageReceived, ModeSync, func(Event) { count++ })

	bus.Publish(TextMessageReceived{Body: "a"})
	bus.Unsubscribe(sub)
	bus.Publish(TextMessageReceived{Body: "b"})

	assert.Equal(t, 1, count)
}

func TestConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(KindTextMessageReceived, ModeSync, func(Event) {})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(TextMessageReceived{Body: "x"})
		}()
	}
	wg.Wait()
}
