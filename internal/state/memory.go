package state

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process SharedState for tests and dev mode.
type Memory struct {
	mu          sync.Mutex
	values      map[string]string
	hashes      map[string]map[string]string
	subscribers map[string]map[*memorySubscription]struct{}
	record      bool
	writes      []Write
}

// Write is one Set call, kept by a recording Memory.
type Write struct {
	Key   string
	Value string
}

// NewMemory returns a store that keeps only current values.
func NewMemory() *Memory {
	return &Memory{
		values:      make(map[string]string),
		hashes:      make(map[string]map[string]string),
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

// NewRecordingMemory also keeps every Set in order, for tests that check
// what was written and when. The history is unbounded.
func NewRecordingMemory() *Memory {
	m := NewMemory()
	m.record = true
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	if m.record {
		m.writes = append(m.writes, Write{Key: key, Value: value})
	}
	return nil
}

func (m *Memory) HashSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.hashes[key] = h
	}
	maps.Copy(h, fields)
	return nil
}

func (m *Memory) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.hashes[key]), nil
}

// Writes returns the ordered history of Set calls for key. An empty key
// returns every write. It is always empty unless the store was built with
// NewRecordingMemory.
func (m *Memory) Writes(key string) []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Write
	for _, w := range m.writes {
		if key == "" || w.Key == key {
			out = append(out, w)
		}
	}
	return out
}

// Publish delivers message to every subscriber of topic. A subscriber whose
// buffer is full misses the message, as a slow Redis client would.
func (m *Memory) Publish(_ context.Context, topic, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subscribers[topic] {
		select {
		case sub.ch <- message:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, topic string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySubscription{
		ch:     make(chan string, subscriptionBuffer),
		parent: m,
		topic:  topic,
	}
	if m.subscribers[topic] == nil {
		m.subscribers[topic] = make(map[*memorySubscription]struct{})
	}
	m.subscribers[topic][sub] = struct{}{}
	return sub, nil
}

// Close closes all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, subs := range m.subscribers {
		for sub := range subs {
			close(sub.ch)
		}
		delete(m.subscribers, topic)
	}
	return nil
}

type memorySubscription struct {
	ch     chan string
	parent *Memory
	topic  string
}

func (s *memorySubscription) Messages() <-chan string { return s.ch }

func (s *memorySubscription) Close() error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	if _, ok := s.parent.subscribers[s.topic][s]; ok {
		delete(s.parent.subscribers[s.topic], s)
		close(s.ch)
	}
	return nil
}
