package calibration

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/deck.control/internal/broker"
	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/pose"
	"github.com/banshee-data/deck.control/internal/robot"
)

// ContainerKey names a container's calibration: the same container type in
// the same slot shares an offset across sessions.
func ContainerKey(slot, containerType string) string {
	return slot + "/" + containerType
}

// PipetteKey names a pipette's calibration.
func PipetteKey(mount, name string) string {
	return "pipette/" + mount + "/" + name
}

// Manager moves offsets between a Store and a pose tracker.
type Manager struct {
	tracker *pose.Tracker
	store   Store

	mu   sync.Mutex
	keys map[string]pose.Handle
}

// NewManager returns a manager with no bound keys.
func NewManager(tracker *pose.Tracker, store Store) *Manager {
	return &Manager{tracker: tracker, store: store, keys: make(map[string]pose.Handle)}
}

// Bind associates key with a tracked handle.
func (m *Manager) Bind(key string, h pose.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = h
}

// BindRobot binds every container and pipette currently on r.
func (m *Manager) BindRobot(r *robot.Robot) {
	for _, c := range r.Containers() {
		m.Bind(ContainerKey(c.Slot, c.Type), c.Handle)
	}
	for _, p := range r.Pipettes() {
		m.Bind(PipetteKey(p.Mount, p.Name), p.Handle)
	}
}

// Keys lists the bound keys, sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) handle(key string) (pose.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.keys[key]
	return h, ok
}

// Replay applies every stored delta whose key is bound, replacing the
// current offset. It returns how many were applied.
func (m *Manager) Replay() (int, error) {
	deltas, err := m.store.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load calibrations: %w", err)
	}
	keys := make([]string, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	applied := 0
	for _, k := range keys {
		h, ok := m.handle(k)
		if !ok {
			continue
		}
		d := deltas[k]
		if err := m.tracker.Calibrate(h, d.X, d.Y, d.Z, false); err != nil {
			return applied, fmt.Errorf("failed to replay calibration %q: %w", k, err)
		}
		applied++
	}
	logf("replayed %d of %d stored calibrations", applied, len(deltas))
	return applied, nil
}

// Persist saves the current offset of the object bound to key.
func (m *Manager) Persist(key string) error {
	h, ok := m.handle(key)
	if !ok {
		return fmt.Errorf("calibration key %q is not bound", key)
	}
	local, err := m.tracker.LocalTransform(h)
	if err != nil {
		return err
	}
	x, y, z := local.TranslationPart()
	return m.store.Save(key, Delta{X: x, Y: y, Z: z})
}

// PersistAll saves the offset of every bound object.
func (m *Manager) PersistAll() error {
	for _, k := range m.Keys() {
		if err := m.Persist(k); err != nil {
			return err
		}
	}
	return nil
}

// AutoPersist saves a container's offset after each successful
// robot.calibrate.* event. Containers loaded after the call are bound as
// they are added. The returned function stops it.
func (m *Manager) AutoPersist(b *broker.Broker) func() {
	_, stopAdd := b.Subscribe("robot.command.add-container", func(ev broker.Event) {
		c, ok := ev.Result.(*robot.Container)
		if ev.Stage != broker.StageAfter || ev.Err != nil || !ok {
			return
		}
		m.Bind(ContainerKey(c.Slot, c.Type), c.Handle)
	})
	_, stopCal := b.Subscribe("robot.calibrate.", func(ev broker.Event) {
		if ev.Stage != broker.StageAfter || ev.Err != nil {
			return
		}
		key, ok := eventKey(ev)
		if !ok {
			return
		}
		if err := m.Persist(key); err != nil {
			logf("failed to persist calibration %q: %v", key, err)
		}
	})
	return func() {
		stopAdd()
		stopCal()
	}
}

func eventKey(ev broker.Event) (string, bool) {
	slot, _ := ev.Payload["slot"].(string)
	typ, _ := ev.Payload["type"].(string)
	if slot == "" || typ == "" {
		return "", false
	}
	return ContainerKey(slot, typ), true
}

// AuditSubscriber returns a broker handler that appends every successful
// calibration to the database log.
func AuditSubscriber(d *db.DB) broker.Handler {
	return func(ev broker.Event) {
		if ev.Stage != broker.StageAfter || ev.Err != nil || !strings.HasPrefix(ev.Name, "robot.calibrate.") {
			return
		}
		key, ok := eventKey(ev)
		if !ok {
			return
		}
		e := db.CalibrationEvent{Key: key, RecordedAt: ev.Time.UTC()}
		switch res := ev.Result.(type) {
		case pose.Point:
			e.DX, e.DY, e.DZ, e.Relative = res.X, res.Y, res.Z, true
		default:
			e.DX, _ = ev.Payload["dx"].(float64)
			e.DY, _ = ev.Payload["dy"].(float64)
			e.DZ, _ = ev.Payload["dz"].(float64)
			e.Relative, _ = ev.Payload["relative"].(bool)
		}
		if err := d.RecordCalibrationEvent(e); err != nil {
			logf("calibration audit: %v", err)
		}
	}
}
