package broker

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Broker used by tests and single-process
// deployments. Publish fans out to subscribers over buffered channels;
// a slow subscriber drops messages rather than blocking the publisher.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Message
	next int

	kvMu sync.Mutex
	kv   map[string]memEntry

	closeOnce sync.Once
	stopSweep chan struct{}
}

type memEntry struct {
	value   []byte
	expires time.Time
}

const subBufferSize = 64

// NewMemory creates an in-memory Broker. Callers must call Close to stop the
// background TTL sweeper.
func NewMemory() *Memory {
	m := &Memory{
		subs:      make(map[string]map[int]chan Message),
		kv:        make(map[string]memEntry),
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subs[topic] {
		select {
		case ch <- Message{Topic: topic, Payload: payload}:
		default:
			// subscriber too slow; drop rather than block the publisher
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, subBufferSize)

	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[int]chan Message)
	}
	id := m.next
	m.next++
	m.subs[topic][id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[topic], id)
			if len(m.subs[topic]) == 0 {
				delete(m.subs, topic)
			}
			m.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	m.kvMu.Lock()
	m.kv[key] = memEntry{value: cp, expires: time.Now().Add(ttl)}
	m.kvMu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.kvMu.Lock()
	defer m.kvMu.Unlock()

	entry, ok := m.kv[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.kvMu.Lock()
	delete(m.kv, key)
	m.kvMu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stopSweep) })
	return nil
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	now := time.Now()
	m.kvMu.Lock()
	defer m.kvMu.Unlock()
	for k, e := range m.kv {
		if now.After(e.expires) {
			delete(m.kv, k)
		}
	}
}
