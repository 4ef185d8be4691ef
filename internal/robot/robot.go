// Package robot models the liquid-handling robot: a gantry head carrying
// pipettes, and a deck of slots holding containers. Every physical object is
// tracked in a pose.Tracker owned by the Robot, so positions stay consistent
// as containers are loaded, calibrated and the head moves.
package robot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/deck.control/internal/broker"
	"github.com/banshee-data/deck.control/internal/labware"
	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/pose"
)

var logf = monitoring.Prefixed("robot")

var (
	ErrUnknownSlot     = errors.New("unknown slot")
	ErrSlotOccupied    = errors.New("slot already holds a container")
	ErrSlotEmpty       = errors.New("slot holds no container")
	ErrUnknownMount    = errors.New("unknown pipette mount")
	ErrMountOccupied   = errors.New("mount already holds a pipette")
	ErrUnknownWell     = errors.New("unknown well")
	ErrUnknownStrategy = errors.New("unknown move strategy")
)

// DefaultArcClearance is how far above the tallest deck object an arc move
// travels, in mm.
const DefaultArcClearance = 20.0

// MotionDriver moves the physical gantry. Coordinates are absolute head
// positions in mm.
type MotionDriver interface {
	MoveHead(ctx context.Context, x, y, z float64) error
	Home(ctx context.Context) error
}

// Well is one tracked well of a loaded container.
type Well struct {
	Name   string
	Handle pose.Handle
}

// Container is a piece of labware loaded into a slot.
type Container struct {
	Handle pose.Handle
	Slot   string
	Type   string
	Label  string
	Def    labware.Definition
	Wells  []Well
}

// Well returns the well with the given name.
func (c *Container) Well(name string) (Well, error) {
	for _, w := range c.Wells {
		if w.Name == name {
			return w, nil
		}
	}
	return Well{}, fmt.Errorf("%w: %q in %s", ErrUnknownWell, name, c.Label)
}

// Pipette is an instrument attached to the head.
type Pipette struct {
	Handle    pose.Handle
	Mount     string
	Name      string
	MaxVolume float64
}

// Option configures a Robot.
type Option func(*Robot)

// WithDriver sets the motion driver. Without one, moves only update the
// model.
func WithDriver(d MotionDriver) Option {
	return func(r *Robot) { r.driver = d }
}

// WithBroker publishes robot.command.* and robot.calibrate.* events to b.
// Without it the robot creates its own broker.
func WithBroker(b *broker.Broker) Option {
	return func(r *Robot) { r.broker = b }
}

// WithRegistry sets the container definitions used by AddContainer.
func WithRegistry(reg *labware.Registry) Option {
	return func(r *Robot) { r.registry = reg }
}

// WithArcClearance overrides DefaultArcClearance.
func WithArcClearance(mm float64) Option {
	return func(r *Robot) { r.arcClearance = mm }
}

// Robot is one robot instance and its pose tree. Build a new Robot to reset.
type Robot struct {
	// mu serialises compound operations so callers never observe a move or
	// calibration half applied.
	mu sync.Mutex

	tracker  *pose.Tracker
	registry *labware.Registry
	broker   *broker.Broker
	driver   MotionDriver

	arcClearance float64

	root, head, deck pose.Handle
	slots            map[string]pose.Handle
	containers       map[string]*Container
	pipettes         map[string]*Pipette
}

// New builds a robot with an empty deck and the head at the origin.
func New(opts ...Option) (*Robot, error) {
	r := &Robot{
		tracker:      pose.NewTracker(),
		arcClearance: DefaultArcClearance,
		slots:        make(map[string]pose.Handle, len(slotNames)),
		containers:   make(map[string]*Container),
		pipettes:     make(map[string]*Pipette),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.broker == nil {
		r.broker = broker.New()
	}
	if r.registry == nil {
		reg, err := labware.NewRegistry()
		if err != nil {
			return nil, err
		}
		r.registry = reg
	}
	if err := r.buildFrame(); err != nil {
		return nil, fmt.Errorf("failed to build robot frame: %w", err)
	}
	monitoring.TrackedNodes.Set(float64(r.tracker.Len()))
	return r, nil
}

func (r *Robot) buildFrame() error {
	r.root, r.head, r.deck = pose.NewHandle(), pose.NewHandle(), pose.NewHandle()
	if err := r.tracker.Track(r.root, pose.NoHandle, pose.Identity(), pose.WithLabel("<Robot>")); err != nil {
		return err
	}
	if err := r.tracker.Track(r.head, r.root, pose.Identity(), pose.WithLabel("<Head>")); err != nil {
		return err
	}
	if err := r.tracker.Track(r.deck, r.root, pose.Identity(), pose.WithLabel("<Deck>")); err != nil {
		return err
	}
	for _, name := range slotNames {
		x, y, z := SlotOffset(name)
		h := pose.NewHandle()
		if err := r.tracker.Track(h, r.deck, pose.Translation(x, y, z), pose.WithLabel("<Slot "+name+">")); err != nil {
			return err
		}
		r.slots[name] = h
	}
	return nil
}

// Tracker exposes the robot's pose tree for queries.
func (r *Robot) Tracker() *pose.Tracker { return r.tracker }

// Registry returns the container definitions in use.
func (r *Robot) Registry() *labware.Registry { return r.registry }

// Broker returns the event broker, which may be nil.
func (r *Robot) Broker() *broker.Broker { return r.broker }

func (r *Robot) Head() pose.Handle { return r.head }
func (r *Robot) Deck() pose.Handle { return r.deck }

// Slot returns the handle of the named slot.
func (r *Robot) Slot(name string) (pose.Handle, error) {
	h, ok := r.slots[name]
	if !ok {
		return pose.NoHandle, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	return h, nil
}

// AddContainer loads a container of the given type into slot. An empty label
// defaults to the type name.
func (r *Robot) AddContainer(containerType, slot, label string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"type": containerType, "slot": slot, "label": label}
	res, err := r.broker.Instrument("robot.command.add-container", payload, func() (any, error) {
		return r.addContainerLocked(containerType, slot, label)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Container), nil
}

func (r *Robot) addContainerLocked(containerType, slot, label string) (*Container, error) {
	slotHandle, err := r.Slot(slot)
	if err != nil {
		return nil, err
	}
	if _, ok := r.containers[slot]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotOccupied, slot)
	}
	def, err := r.registry.Lookup(containerType)
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = containerType
	}

	c := &Container{
		Handle: pose.NewHandle(),
		Slot:   slot,
		Type:   containerType,
		Label:  label,
		Def:    def,
		Wells:  make([]Well, 0, len(def.Wells)),
	}
	o := def.OriginOffset
	if err := r.tracker.Track(c.Handle, slotHandle, pose.Translation(o[0], o[1], o[2]), pose.WithLabel("<Container "+label+">")); err != nil {
		return nil, err
	}
	for _, wd := range def.Wells {
		w := Well{Name: wd.Name, Handle: pose.NewHandle()}
		x, y, z := wd.Top()
		if err := r.tracker.Track(w.Handle, c.Handle, pose.Translation(x, y, z), pose.WithLabel("<Well "+wd.Name+">")); err != nil {
			// Leave no partial container behind.
			_ = r.tracker.Untrack(c.Handle)
			return nil, err
		}
		c.Wells = append(c.Wells, w)
	}
	r.containers[slot] = c
	r.noteMutation("track")
	logf("loaded %s %q into slot %s (%d wells)", containerType, label, slot, len(c.Wells))
	return c, nil
}

// RemoveContainer unloads the container in slot along with its wells.
func (r *Robot) RemoveContainer(slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.broker.Instrument("robot.command.remove-container", map[string]any{"slot": slot}, func() (any, error) {
		c, ok := r.containers[slot]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSlotEmpty, slot)
		}
		if err := r.tracker.Untrack(c.Handle); err != nil {
			return nil, err
		}
		delete(r.containers, slot)
		r.noteMutation("untrack")
		return nil, nil
	})
	return err
}

// Container returns the container loaded in slot.
func (r *Robot) Container(slot string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotEmpty, slot)
	}
	return c, nil
}

// Containers returns the loaded containers ordered by slot.
func (r *Robot) Containers() []*Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Container, 0, len(r.containers))
	for _, c := range r.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return slotIndex(out[i].Slot) < slotIndex(out[j].Slot) })
	return out
}

// AddPipette attaches a pipette to mount "a" or "b".
func (r *Robot) AddPipette(mount, name string, maxVolume float64) (*Pipette, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := map[string]any{"mount": mount, "name": name, "max_volume": maxVolume}
	res, err := r.broker.Instrument("robot.command.add-pipette", payload, func() (any, error) {
		offset, ok := mountOffsets[mount]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMount, mount)
		}
		if _, ok := r.pipettes[mount]; ok {
			return nil, fmt.Errorf("%w: %s", ErrMountOccupied, mount)
		}
		p := &Pipette{Handle: pose.NewHandle(), Mount: mount, Name: name, MaxVolume: maxVolume}
		label := fmt.Sprintf("<Pipette %s %s>", mount, name)
		if err := r.tracker.Track(p.Handle, r.head, pose.Translation(offset[0], offset[1], offset[2]), pose.WithLabel(label)); err != nil {
			return nil, err
		}
		r.pipettes[mount] = p
		r.noteMutation("track")
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Pipette), nil
}

// Pipette returns the pipette on mount.
func (r *Robot) Pipette(mount string) (*Pipette, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipettes[mount]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMount, mount)
	}
	return p, nil
}

// Pipettes returns the attached pipettes ordered by mount.
func (r *Robot) Pipettes() []*Pipette {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Pipette, 0, len(r.pipettes))
	for _, p := range r.pipettes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mount < out[j].Mount })
	return out
}

// Position returns h's absolute position in robot coordinates.
func (r *Robot) Position(h pose.Handle) (pose.Point, error) {
	return r.tracker.AbsolutePosition(h)
}

// HeadPosition returns the current absolute head position.
func (r *Robot) HeadPosition() (pose.Point, error) {
	return r.tracker.AbsolutePosition(r.head)
}

// MaxDeckHeight is the highest point of anything on the deck.
func (r *Robot) MaxDeckHeight() (float64, error) {
	return r.tracker.MaxZInSubtree(r.deck)
}

// Dump renders the pose tree.
func (r *Robot) Dump() string {
	return r.tracker.Dump()
}

func (r *Robot) noteMutation(op string) {
	monitoring.PoseMutations.WithLabelValues(op).Inc()
	monitoring.TrackedNodes.Set(float64(r.tracker.Len()))
}
