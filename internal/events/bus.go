// Package events provides an in-process pub/sub bus for engine events.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wifistate-go/internal/config"
)

// EventType identifies the kind of event.
type EventType string

const (
	// StateChanged is published for every accepted classifier transition.
	StateChanged EventType = "state_changed"
	// ReachabilityChanged is published when the probe result flips.
	ReachabilityChanged EventType = "reachability_changed"
	// RoundFailed is published when every attempt of a probe round failed.
	RoundFailed EventType = "round_failed"
	// CycleBlocked is published when a failed round would have cycled the
	// radio but the cycle guard is cooling down.
	CycleBlocked EventType = "cycle_blocked"
	// MonitorStarted and MonitorStopped track the probe loop lifecycle.
	MonitorStarted EventType = "monitor_started"
	MonitorStopped EventType = "monitor_stopped"
	// RadioCommand is published for every radio orchestrator command.
	RadioCommand EventType = "radio_command"
	// NotificationShown and NotificationCleared mirror the indicator.
	NotificationShown   EventType = "notification_shown"
	NotificationCleared EventType = "notification_cleared"
	// ConfigReloaded is published after a configuration change was applied.
	ConfigReloaded EventType = "config_reloaded"
	// ShellRequest asks the hosting shell to open a view the engine does not own.
	ShellRequest EventType = "shell_request"
)

// StateChangeData is the payload of StateChanged.
type StateChangeData struct {
	OldState    string `json:"old_state"`
	NewState    string `json:"new_state"`
	Detail      string `json:"detail"`
	NetworkName string `json:"network_name,omitempty"`
}

// ReachabilityData is the payload of ReachabilityChanged, RoundFailed and
// CycleBlocked.
type ReachabilityData struct {
	Target              string `json:"target"`
	Reachable           bool   `json:"reachable"`
	TotalPings          uint64 `json:"total_pings"`
	TotalOK             uint64 `json:"total_ok"`
	TotalNG             uint64 `json:"total_ng"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// RadioCommandData is the payload of RadioCommand.
type RadioCommandData struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
}

// NotificationData is the payload of NotificationShown.
type NotificationData struct {
	Icon    string `json:"icon"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Ongoing bool   `json:"ongoing"`
}

// ShellRequestData is the payload of ShellRequest.
type ShellRequestData struct {
	Action string `json:"action"`
}

// Event is a single message on the bus.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Bus is a thread-safe event bus. Publishing never blocks; events for a full
// subscriber channel are dropped.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	all         []chan Event
	closed      bool
	dropped     atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Subscribe returns a buffered channel receiving events of eventType.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, config.EventChannelBufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll returns a channel receiving every event, including event types
// first published after the subscription.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, config.EventChannelBufferSizeAll)
	b.all = append(b.all, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			subs[i] = subs[len(subs)-1]
			b.subscribers[eventType] = subs[:len(subs)-1]
			close(sub)
			break
		}
	}
	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
}

// UnsubscribeAll removes and closes a channel returned by SubscribeAll.
func (b *Bus) UnsubscribeAll(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.all {
		if sub == ch {
			b.all = append(b.all[:i], b.all[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish delivers event to all matching subscribers. ID and Timestamp are
// filled in when empty.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, ch := range b.subscribers[event.Type] {
		b.deliver(ch, event)
	}
	for _, ch := range b.all {
		b.deliver(ch, event)
	}
}

func (b *Bus) deliver(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// channel was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes the bus and every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
	b.subscribers = make(map[EventType][]chan Event)
	b.all = nil
}

// SubscriberCount returns the number of subscribers for eventType.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// TotalSubscribers returns the number of subscriber channels, wildcard
// subscribers included.
func (b *Bus) TotalSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := len(b.all)
	for _, subs := range b.subscribers {
		total += len(subs)
	}
	return total
}

// IsClosed reports whether Close was called.
func (b *Bus) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
