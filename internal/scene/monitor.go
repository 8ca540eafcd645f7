package scene

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sceneview/internal/kinematic"
	"github.com/banshee-data/sceneview/internal/monitoring"
)

var logf = monitoring.Component("Monitor")

// Source delivers scene updates published on a topic. The handler may be
// called from any goroutine.
type Source interface {
	Subscribe(topic string, handler func(Update)) (cancel func(), err error)
}

// Monitor owns a Scene and keeps it in sync with an update Source.
type Monitor struct {
	name string

	mu    sync.Mutex // guards scene contents
	scene *Scene

	cbMu      sync.Mutex
	callbacks []func(UpdateKind)

	subMu  sync.Mutex
	source Source
	topic  string
	cancel func()

	running  atomic.Bool
	applied  atomic.Uint64
	rejected atomic.Uint64
}

// MonitorStats is a point-in-time view of a monitor.
type MonitorStats struct {
	Topic    string
	Running  bool
	Applied  uint64
	Rejected uint64
}

// NewMonitor creates a monitor for the given model. A nil model produces a
// monitor whose scene is present but not configured.
func NewMonitor(name string, model *kinematic.Model, src Source) *Monitor {
	return &Monitor{
		name:   name,
		scene:  New(name, model),
		source: src,
	}
}

// Name returns the monitor name.
func (m *Monitor) Name() string { return m.name }

// Lock acquires exclusive access to the scene.
func (m *Monitor) Lock() { m.mu.Lock() }

// Unlock releases the scene.
func (m *Monitor) Unlock() { m.mu.Unlock() }

// Scene returns the monitored scene. Callers must hold the lock while
// reading or writing it.
func (m *Monitor) Scene() *Scene { return m.scene }

// Model returns the kinematic model, which is immutable and safe to read
// without the lock.
func (m *Monitor) Model() *kinematic.Model { return m.scene.model }

// AddUpdateCallback registers fn to run after every applied update. The
// callback runs after the scene lock is released, on the goroutine that
// delivered the update.
func (m *Monitor) AddUpdateCallback(fn func(UpdateKind)) {
	if fn == nil {
		return
	}
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// ClearUpdateCallbacks drops every registered callback.
func (m *Monitor) ClearUpdateCallbacks() {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = nil
}

// StartSceneMonitor subscribes to topic, replacing any previous
// subscription.
func (m *Monitor) StartSceneMonitor(topic string) error {
	if topic == "" {
		return fmt.Errorf("scene topic cannot be empty")
	}
	if m.source == nil {
		return fmt.Errorf("monitor %s has no update source", m.name)
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	cancel, err := m.source.Subscribe(topic, m.receive)
	if err != nil {
		m.running.Store(false)
		return fmt.Errorf("subscribe to %q: %w", topic, err)
	}
	m.cancel = cancel
	m.topic = topic
	m.running.Store(true)
	logf("%s listening for scene updates on %q", m.name, topic)
	return nil
}

// StopSceneMonitor cancels the subscription. Updates already in flight are
// discarded.
func (m *Monitor) StopSceneMonitor() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.running.Store(false)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		logf("%s stopped listening on %q", m.name, m.topic)
	}
}

// Topic returns the topic of the current or last subscription.
func (m *Monitor) Topic() string {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return m.topic
}

func (m *Monitor) receive(u Update) {
	if !m.running.Load() {
		return
	}
	if err := m.ApplyUpdate(u); err != nil {
		logf("%s rejected update: %v", m.name, err)
	}
}

// ApplyUpdate applies u under the scene lock and then notifies callbacks.
// The lock is held only for the duration of the mutation.
func (m *Monitor) ApplyUpdate(u Update) error {
	m.mu.Lock()
	kind, err := m.scene.Apply(u)
	m.mu.Unlock()

	if err != nil {
		m.rejected.Add(1)
		return err
	}
	m.applied.Add(1)

	m.cbMu.Lock()
	callbacks := append([]func(UpdateKind){}, m.callbacks...)
	m.cbMu.Unlock()
	for _, fn := range callbacks {
		fn(kind)
	}
	return nil
}

// Close stops the subscription and drops callbacks.
func (m *Monitor) Close() {
	m.StopSceneMonitor()
	m.ClearUpdateCallbacks()
}

// Stats returns monitor counters.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Topic:    m.Topic(),
		Running:  m.running.Load(),
		Applied:  m.applied.Load(),
		Rejected: m.rejected.Load(),
	}
}
