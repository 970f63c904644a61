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
	"sync/atomic"
)

// Mode selects how a subscriber's callback runs relative to the
// publisher.
type Mode int

const (
	// ModeSync runs the callback inline on the publishing goroutine.
	ModeSync Mode = iota
	// ModeAsync runs the callback on a per-subscription worker, so a
	// slow subscriber delays only itself. Delivery order within the
	// subscription is preserved.
	ModeAsync
	// ModeSingleLoop runs every such callback on one shared event
	// loop goroutine, for front-ends that need all events serialized.
	ModeSingleLoop
)

// asyncQueueDepth bounds each async subscription's backlog; beyond it
// the publisher blocks rather than dropping events.
const asyncQueueDepth = 256

// Subscriber consumes events.
type Subscriber func(Event)

// Subscription identifies a registration for later cancellation.
type Subscription struct {
	id   uint64
	kind Kind
}

type subscriberEntry struct {
	id   uint64
	mode Mode
	fn   Subscriber
	ch   chan Event // ModeAsync only
	done chan struct{}
}

// Bus is the in-process broker. The zero value is not usable; call
// NewBus. All methods are safe for concurrent callers.
type Bus struct {
	mu     sync.Mutex
	subs   map[Kind][]*subscriberEntry
	// retired holds unsubscribed async entries whose workers drain
	// until Close; closing their channel at Unsubscribe time would
	// race with publishers still holding a snapshot of the old list.
	retired []*subscriberEntry
	nextID  atomic.Uint64

	loopOnce sync.Once
	loopCh   chan loopItem
	loopDone chan struct{}
	closed   atomic.Bool
}

type loopItem struct {
	fn Subscriber
	ev Event
}

// NewBus creates an empty broker.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]*subscriberEntry)}
}

// Subscribe registers fn for every event of kind, delivered per mode.
func (b *Bus) Subscribe(kind Kind, mode Mode, fn Subscriber) Subscription {
	entry := &subscriberEntry{
		id:   b.nextID.Add(1),
		mode: mode,
		fn:   fn,
	}
	switch mode {
	case ModeAsync:
		entry.ch = make(chan Event, asyncQueueDepth)
		entry.done = make(chan struct{})
		go func() {
			defer close(entry.done)
			for ev := range entry.ch {
				fn(ev)
			}
		}()
	case ModeSingleLoop:
		b.startLoop()
	}

	b.mu.Lock()
	// copy-on-write: publishers snapshot the slice outside the lock,
	// so an in-place append would race with them.
	existing := b.subs[kind]
	updated := make([]*subscriberEntry, len(existing), len(existing)+1)
	copy(updated, existing)
	b.subs[kind] = append(updated, entry)
	b.mu.Unlock()

	return Subscription{id: entry.id, kind: kind}
}

// Unsubscribe removes a registration. New events stop reaching the
// subscriber immediately; an async worker's already-queued events
// still drain.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	existing := b.subs[sub.kind]
	updated := make([]*subscriberEntry, 0, len(existing))
	for _, e := range existing {
		if e.id == sub.id {
			if e.ch != nil {
				b.retired = append(b.retired, e)
			}
			continue
		}
		updated = append(updated, e)
	}
	b.subs[sub.kind] = updated
	b.mu.Unlock()
}

// Publish delivers ev to every subscriber of its kind. Sync
// subscribers run before Publish returns; async and single-loop
// subscribers receive ev in publication order relative to other
// events from this publisher.
func (b *Bus) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	b.mu.Lock()
	snapshot := b.subs[ev.EventKind()]
	b.mu.Unlock()

	for _, e := range snapshot {
		switch e.mode {
		case ModeSync:
			e.fn(ev)
		case ModeAsync:
			e.ch <- ev
		case ModeSingleLoop:
			b.loopCh <- loopItem{fn: e.fn, ev: ev}
		}
	}
}

// Close stops delivery. Pending async/single-loop events are drained
// before their workers exit.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	asyncEntries := append([]*subscriberEntry(nil), b.retired...)
	b.retired = nil
	for kind, entries := range b.subs {
		for _, e := range entries {
			if e.ch != nil {
				asyncEntries = append(asyncEntries, e)
			}
		}
		delete(b.subs, kind)
	}
	b.mu.Unlock()

	for _, e := range asyncEntries {
		close(e.ch)
		<-e.done
	}
	if b.loopCh != nil {
		close(b.loopCh)
		<-b.loopDone
	}
}

func (b *Bus) startLoop() {
	b.loopOnce.Do(func() {
		b.loopCh = make(chan loopItem, asyncQueueDepth)
		b.loopDone = make(chan struct{})
		go func() {
			defer close(b.loopDone)
			for item := range b.loopCh {
				item.fn(item.ev)
			}
		}()
	})
}

// Publisher is the capability handed to message handlers. Handlers
// publish through it; nothing on the handler surface exposes
// subscription management.
type Publisher interface {
	Publish(Event)
}
