// Package labware holds container geometry: where each well sits relative
// to its container's origin, and where the origin sits relative to a slot.
package labware

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

//go:embed definitions.json
var builtinDefinitions []byte

var (
	// ErrUnknownContainer is returned by Lookup for a name with no definition.
	ErrUnknownContainer = errors.New("unknown container type")
	// ErrInvalidDefinition is returned for definitions that can't be placed.
	ErrInvalidDefinition = errors.New("invalid container definition")
)

// WellDef is one well, positioned at its bottom-left corner relative to the
// container origin (mm).
type WellDef struct {
	Name              string  `json:"name"`
	X                 float64 `json:"x"`
	Y                 float64 `json:"y"`
	Z                 float64 `json:"z"`
	Depth             float64 `json:"depth"`
	Diameter          float64 `json:"diameter,omitempty"`
	Length            float64 `json:"length,omitempty"`
	Width             float64 `json:"width,omitempty"`
	TotalLiquidVolume float64 `json:"total_liquid_volume"`
}

// Top returns the position of the top of the well relative to the container
// origin. This is the point the tracker follows for each well.
func (w WellDef) Top() (x, y, z float64) {
	return w.X, w.Y, w.Z + w.Depth
}

// Definition describes a container type.
type Definition struct {
	Name         string     `json:"name"`
	OriginOffset [3]float64 `json:"origin_offset"`
	Wells        []WellDef  `json:"locations"`
}

// Height is the tallest well top in the container frame.
func (d Definition) Height() float64 {
	var h float64
	for _, w := range d.Wells {
		if _, _, z := w.Top(); z > h {
			h = z
		}
	}
	return h
}

// Validate checks that the definition has a name and uniquely named wells.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDefinition)
	}
	if len(d.Wells) == 0 {
		return fmt.Errorf("%w: %q has no wells", ErrInvalidDefinition, d.Name)
	}
	seen := make(map[string]bool, len(d.Wells))
	for _, w := range d.Wells {
		if w.Name == "" {
			return fmt.Errorf("%w: %q has an unnamed well", ErrInvalidDefinition, d.Name)
		}
		if seen[w.Name] {
			return fmt.Errorf("%w: %q has duplicate well %q", ErrInvalidDefinition, d.Name, w.Name)
		}
		if w.Depth < 0 {
			return fmt.Errorf("%w: %q well %q has negative depth", ErrInvalidDefinition, d.Name, w.Name)
		}
		seen[w.Name] = true
	}
	return nil
}

// gridSpec is the compact on-disk form: a regular grid of identical wells.
type gridSpec struct {
	Name         string     `json:"name"`
	OriginOffset [3]float64 `json:"origin_offset"`
	Grid         *struct {
		Columns       int     `json:"columns"`
		Rows          int     `json:"rows"`
		ColumnSpacing float64 `json:"column_spacing"`
		RowSpacing    float64 `json:"row_spacing"`
	} `json:"grid,omitempty"`
	Well      *WellDef  `json:"well,omitempty"`
	Locations []WellDef `json:"locations,omitempty"`
}

func (g gridSpec) definition() (Definition, error) {
	d := Definition{Name: g.Name, OriginOffset: g.OriginOffset}
	switch {
	case len(g.Locations) > 0:
		d.Wells = append(d.Wells, g.Locations...)
	case g.Grid != nil:
		var proto WellDef
		if g.Well != nil {
			proto = *g.Well
		}
		d.Wells = gridWells(g.Grid.Columns, g.Grid.Rows, g.Grid.ColumnSpacing, g.Grid.RowSpacing, proto)
	}
	return d, d.Validate()
}

// gridWells lays out columns×rows wells. Column letters run along X and row
// numbers along Y; wells are ordered A1, B1, ..., A2, B2, ...
func gridWells(columns, rows int, colSpacing, rowSpacing float64, proto WellDef) []WellDef {
	wells := make([]WellDef, 0, columns*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			w := proto
			w.Name = WellName(c, r)
			w.X = float64(c) * colSpacing
			w.Y = float64(r) * rowSpacing
			wells = append(wells, w)
		}
	}
	return wells
}

// WellName returns the name for the zero-based column and row, e.g. (2, 0) is "C1".
func WellName(column, row int) string {
	return fmt.Sprintf("%c%d", 'A'+column, row+1)
}

// Registry maps container type names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns a registry pre-loaded with the built-in definitions.
func NewRegistry() (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition)}
	if err := r.LoadJSON(builtinDefinitions); err != nil {
		return nil, fmt.Errorf("failed to load built-in definitions: %w", err)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for callers that treat a broken embedded
// file as a build error.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// LoadJSON merges definitions from a {"containers": [...]} document.
func (r *Registry) LoadJSON(data []byte) error {
	var doc struct {
		Containers []gridSpec `json:"containers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse container definitions: %w", err)
	}
	for _, g := range doc.Containers {
		d, err := g.definition()
		if err != nil {
			return err
		}
		r.Register(d)
	}
	return nil
}

// LoadFile merges definitions from a JSON file on disk.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read container file: %w", err)
	}
	return r.LoadJSON(data)
}

// Register adds or replaces a definition.
func (r *Registry) Register(d Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.Name] = d
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownContainer, name)
	}
	return d, nil
}

// Names lists registered container types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Create registers a custom grid container. grid is (columns, rows) and
// spacing is (column spacing, row spacing), both in mm.
func (r *Registry) Create(name string, grid [2]int, spacing [2]float64, diameter, depth, volume float64) (Definition, error) {
	if grid[0] <= 0 || grid[1] <= 0 {
		return Definition{}, fmt.Errorf("%w: grid %dx%d", ErrInvalidDefinition, grid[0], grid[1])
	}
	if grid[0] > 26 {
		return Definition{}, fmt.Errorf("%w: at most 26 columns, got %d", ErrInvalidDefinition, grid[0])
	}
	proto := WellDef{Depth: depth, Diameter: diameter, TotalLiquidVolume: volume}
	d := Definition{
		Name:  name,
		Wells: gridWells(grid[0], grid[1], spacing[0], spacing[1], proto),
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	r.Register(d)
	return d, nil
}

// WriteJSON writes the named definitions in the explicit-locations form
// accepted by LoadJSON.
func (r *Registry) WriteJSON(path string, names ...string) error {
	r.mu.RLock()
	specs := make([]gridSpec, 0, len(names))
	for _, n := range names {
		d, ok := r.defs[n]
		if !ok {
			r.mu.RUnlock()
			return fmt.Errorf("%w: %q", ErrUnknownContainer, n)
		}
		specs = append(specs, gridSpec{Name: d.Name, OriginOffset: d.OriginOffset, Locations: d.Wells})
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(map[string]any{"containers": specs}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode container definitions: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
