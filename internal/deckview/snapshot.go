// Package deckview renders debug pictures of the deck: a top-down scatter
// of every tracked object coloured by height.
package deckview

import (
	"strings"

	"github.com/banshee-data/deck.control/internal/robot"
)

// Kind groups nodes for plotting.
type Kind string

const (
	KindFrame     Kind = "frame"
	KindSlot      Kind = "slot"
	KindContainer Kind = "container"
	KindWell      Kind = "well"
	KindPipette   Kind = "pipette"
)

// Kinds lists every kind in draw order.
var Kinds = []Kind{KindFrame, KindSlot, KindContainer, KindWell, KindPipette}

// Node is one tracked object at its world position.
type Node struct {
	Label string  `json:"label"`
	Kind  Kind    `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Snapshot captures the world position of every node in r's tree, in
// pre-order.
func Snapshot(r *robot.Robot) ([]Node, error) {
	t := r.Tracker()
	handles, err := t.SubtreeOf(t.Root())
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(handles))
	for _, h := range handles {
		label, err := t.Label(h)
		if err != nil {
			return nil, err
		}
		p, err := t.AbsolutePosition(h)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{Label: label, Kind: kindOf(label), X: p.X, Y: p.Y, Z: p.Z})
	}
	return nodes, nil
}

func kindOf(label string) Kind {
	switch {
	case strings.HasPrefix(label, "<Slot "):
		return KindSlot
	case strings.HasPrefix(label, "<Container "):
		return KindContainer
	case strings.HasPrefix(label, "<Well "):
		return KindWell
	case strings.HasPrefix(label, "<Pipette "):
		return KindPipette
	default:
		return KindFrame
	}
}

func byKind(nodes []Node) map[Kind][]Node {
	out := make(map[Kind][]Node)
	for _, n := range nodes {
		out[n.Kind] = append(out[n.Kind], n)
	}
	return out
}

func zRange(nodes []Node) (lo, hi float64) {
	for i, n := range nodes {
		if i == 0 || n.Z < lo {
			lo = n.Z
		}
		if i == 0 || n.Z > hi {
			hi = n.Z
		}
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}
