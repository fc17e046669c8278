// RTLMUX - A multichannel FM squelch scanner for rtl_tcp SDR servers.
// Copyright (C) 2026 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package event provides the fire-and-forget notification bus connecting
// receivers and channels to whatever wants to observe them.
package event

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Event names published by the core.
const (
	ChannelOpened        = "channel_opened"
	ChannelClosed        = "channel_closed"
	ChannelAdded         = "channel_added"
	ChannelRemoved       = "channel_removed"
	ReceiverConnected    = "receiver_connected"
	ReceiverDisconnected = "receiver_disconnected"
	SignalUpdate         = "signal_update"
	Spectrum             = "spectrum"
)

// Payload carries event data.
type Payload map[string]interface{}

// HandlerFunc receives published events. Handlers run on the publisher's
// goroutine and should return quickly.
type HandlerFunc func(event string, data Payload)

// Bus is a lightweight pub/sub fan-out. Publishing never returns an error
// and a failing subscriber never affects the publisher or its siblings.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]HandlerFunc
	all  []HandlerFunc
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]HandlerFunc)}
}

// Subscribe registers fn for one event name.
func (b *Bus) Subscribe(event string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[event] = append(b.subs[event], fn)
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Publish delivers the event to all subscribers, fire-and-forget. A nil
// data publishes an empty payload.
func (b *Bus) Publish(event string, data Payload) {
	if data == nil {
		data = Payload{}
	}

	b.mu.RLock()
	subs := b.subs[event]
	all := b.all
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(event, data, fn)
	}
	for _, fn := range all {
		b.deliver(event, data, fn)
	}
}

func (b *Bus) deliver(event string, data Payload, fn HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"event": event, "panic": r}).Error("event handler panicked")
		}
	}()
	fn(event, data)
}
