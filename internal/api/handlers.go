package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/banshee-data/deck.control/internal/deckview"
	"github.com/banshee-data/deck.control/internal/httputil"
	"github.com/banshee-data/deck.control/internal/pose"
	"github.com/banshee-data/deck.control/internal/robot"
	"github.com/banshee-data/deck.control/internal/version"
)

func (s *Server) getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h(w, r)
	}
}

// Status is the /api/status body.
type Status struct {
	Version      string        `json:"version"`
	GitSHA       string        `json:"git_sha"`
	SessionID    string        `json:"session_id,omitempty"`
	StartedAt    string        `json:"started_at"`
	TrackedNodes int           `json:"tracked_nodes"`
	Containers   int           `json:"containers"`
	Pipettes     int           `json:"pipettes"`
	Schema       *SchemaStatus `json:"schema,omitempty"`
}

// SchemaStatus reports the calibration database's migration state.
type SchemaStatus struct {
	Current uint `json:"current"`
	Latest  uint `json:"latest"`
	Dirty   bool `json:"dirty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Version:      version.Version,
		GitSHA:       version.GitSHA,
		SessionID:    s.sessionID,
		StartedAt:    s.started.UTC().Format("2006-01-02T15:04:05Z"),
		TrackedNodes: s.robot.Tracker().Len(),
		Containers:   len(s.robot.Containers()),
		Pipettes:     len(s.robot.Pipettes()),
	}
	if s.db != nil {
		ms, err := s.db.Status()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to read schema status: %v", err))
			return
		}
		st.Schema = &SchemaStatus{Current: ms.Current, Latest: ms.Latest, Dirty: ms.Dirty}
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) showTree(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		nodes, err := deckview.Snapshot(s.robot)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, nodes)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.robot.Dump()))
}

// Position is the /api/pose/position body.
type Position struct {
	Ref   string  `json:"ref"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

func (s *Server) showPosition(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("label")
	if ref == "" {
		httputil.BadRequest(w, "missing 'label' parameter, e.g. head, container/A1 or well/A1/C1")
		return
	}
	h, err := s.robot.Resolve(ref)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	p, err := s.robot.Position(h)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	label, _ := s.robot.Tracker().Label(h)
	httputil.WriteJSONOK(w, Position{Ref: ref, Label: label, X: p.X, Y: p.Y, Z: p.Z})
}

func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, robot.ErrBadReference):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, robot.ErrUnknownSlot),
		errors.Is(err, robot.ErrSlotEmpty),
		errors.Is(err, robot.ErrUnknownMount),
		errors.Is(err, robot.ErrUnknownWell),
		errors.Is(err, pose.ErrNotTracked):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) showMaxZ(w http.ResponseWriter, r *http.Request) {
	z, err := s.robot.MaxDeckHeight()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]float64{"max_z": z})
}

// ContainerInfo is one entry of /api/containers.
type ContainerInfo struct {
	Slot  string `json:"slot"`
	Type  string `json:"type"`
	Label string `json:"label"`
	Wells int    `json:"wells"`
}

func (s *Server) listContainers(w http.ResponseWriter, r *http.Request) {
	out := []ContainerInfo{}
	for _, c := range s.robot.Containers() {
		out = append(out, ContainerInfo{Slot: c.Slot, Type: c.Type, Label: c.Label, Wells: len(c.Wells)})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listLabware(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.robot.Registry().Names())
}

// CalibrationInfo is one entry of /api/calibrations.
type CalibrationInfo struct {
	Key string  `json:"key"`
	DX  float64 `json:"dx"`
	DY  float64 `json:"dy"`
	DZ  float64 `json:"dz"`
}

func (s *Server) listCalibrations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.ServiceUnavailable(w, "no calibration store configured")
		return
	}
	deltas, err := s.store.Load()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load calibrations: %v", err))
		return
	}
	out := make([]CalibrationInfo, 0, len(deltas))
	for k, d := range deltas {
		out = append(out, CalibrationInfo{Key: k, DX: d.X, DY: d.Y, DZ: d.Z})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listCalibrationLog(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "no calibration database configured")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	events, err := s.db.CalibrationLog(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if events == nil {
		httputil.WriteJSONOK(w, []struct{}{})
		return
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) showDeckMap(w http.ResponseWriter, r *http.Request) {
	nodes, err := deckview.Snapshot(s.robot)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := deckview.RenderHTML(&buf, nodes, ""); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showDeckMapPNG(w http.ResponseWriter, r *http.Request) {
	nodes, err := deckview.Snapshot(s.robot)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := deckview.EncodePNG(&buf, nodes); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render png: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
