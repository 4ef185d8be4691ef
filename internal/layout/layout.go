// Package layout reads deck layout files: which containers sit in which
// slots, which pipettes are mounted, and where the head starts.
package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/deck.control/internal/robot"
)

// ErrInvalidLayout is returned by Validate.
var ErrInvalidLayout = errors.New("invalid layout")

// Container places one container type into a slot.
type Container struct {
	Slot  string `yaml:"slot" json:"slot"`
	Type  string `yaml:"type" json:"type"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Pipette mounts one pipette on the head.
type Pipette struct {
	Mount     string  `yaml:"mount" json:"mount"`
	Name      string  `yaml:"name" json:"name"`
	MaxVolume float64 `yaml:"max_volume" json:"max_volume"`
}

// Point is an absolute head position in mm.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Layout is the content of a layout file.
type Layout struct {
	Containers []Container `yaml:"containers" json:"containers"`
	Pipettes   []Pipette   `yaml:"pipettes,omitempty" json:"pipettes,omitempty"`
	Head       *Point      `yaml:"head,omitempty" json:"head,omitempty"`
}

// Load reads and validates a layout file.
func Load(path string) (*Layout, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("layout file must be YAML, got %q", ext)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML layout. Unknown fields are rejected
// and an empty document is an empty layout.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks slot and mount names and rejects duplicates. Container
// types are checked later against the robot's registry.
func (l *Layout) Validate() error {
	valid := make(map[string]bool)
	for _, s := range robot.SlotNames() {
		valid[s] = true
	}
	used := make(map[string]bool)
	for i, c := range l.Containers {
		if !valid[c.Slot] {
			return fmt.Errorf("%w: container %d: unknown slot %q", ErrInvalidLayout, i, c.Slot)
		}
		if used[c.Slot] {
			return fmt.Errorf("%w: slot %s listed twice", ErrInvalidLayout, c.Slot)
		}
		if c.Type == "" {
			return fmt.Errorf("%w: container in %s has no type", ErrInvalidLayout, c.Slot)
		}
		used[c.Slot] = true
	}
	mounts := make(map[string]bool)
	for _, p := range l.Pipettes {
		if p.Mount != "a" && p.Mount != "b" {
			return fmt.Errorf("%w: unknown mount %q", ErrInvalidLayout, p.Mount)
		}
		if mounts[p.Mount] {
			return fmt.Errorf("%w: mount %s listed twice", ErrInvalidLayout, p.Mount)
		}
		if p.Name == "" {
			return fmt.Errorf("%w: pipette on mount %s has no name", ErrInvalidLayout, p.Mount)
		}
		if p.MaxVolume < 0 {
			return fmt.Errorf("%w: pipette %s has negative max_volume", ErrInvalidLayout, p.Name)
		}
		mounts[p.Mount] = true
	}
	return nil
}

// Apply loads the layout onto r: containers, then pipettes, then the head
// move. It stops at the first error.
func (l *Layout) Apply(ctx context.Context, r *robot.Robot) error {
	for _, c := range l.Containers {
		if _, err := r.AddContainer(c.Type, c.Slot, c.Label); err != nil {
			return fmt.Errorf("failed to load %s into %s: %w", c.Type, c.Slot, err)
		}
	}
	for _, p := range l.Pipettes {
		if _, err := r.AddPipette(p.Mount, p.Name, p.MaxVolume); err != nil {
			return fmt.Errorf("failed to mount %s: %w", p.Name, err)
		}
	}
	if l.Head != nil {
		if err := r.MoveHead(ctx, l.Head.X, l.Head.Y, l.Head.Z); err != nil {
			return fmt.Errorf("failed to move head: %w", err)
		}
	}
	return nil
}

// FromRobot captures r's current containers, pipettes and head position.
func FromRobot(r *robot.Robot) (*Layout, error) {
	l := &Layout{}
	for _, c := range r.Containers() {
		l.Containers = append(l.Containers, Container{Slot: c.Slot, Type: c.Type, Label: c.Label})
	}
	for _, p := range r.Pipettes() {
		l.Pipettes = append(l.Pipettes, Pipette{Mount: p.Mount, Name: p.Name, MaxVolume: p.MaxVolume})
	}
	head, err := r.HeadPosition()
	if err != nil {
		return nil, err
	}
	l.Head = &Point{X: head.X, Y: head.Y, Z: head.Z}
	return l, nil
}

// Marshal encodes the layout as YAML.
func (l *Layout) Marshal() ([]byte, error) {
	return yaml.Marshal(l)
}
