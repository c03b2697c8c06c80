package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wepp/internal/services"
)

// Location is a channel position on the scalp map.
type Location struct {
	Label  string  `json:"labels,omitempty"`
	Theta  float64 `json:"theta"`
	Radius float64 `json:"radius"`
}

// Segment is one trial-averaged epoch ("bin"). Data[c][i] is channel c at
// Recording.Times[i].
type Segment struct {
	Name      string
	Good      int
	Bad       int
	HasTrials bool
	Data      [][]float64
}

// Trials returns the total trial count behind the average.
func (s Segment) Trials() int {
	return s.Good + s.Bad
}

// Recording is one loaded ERP file. It is not modified after Decode returns.
type Recording struct {
	Name      string
	Times     []float64
	Channels  []string
	Locations []Location
	Segments  []Segment
}

type fileShape struct {
	Times    []float64       `json:"times"`
	Channels []string        `json:"chans"`
	Chanlocs []Location      `json:"chanlocs"`
	Bins     json.RawMessage `json:"bins"`
}

type binShape struct {
	Name string      `json:"name"`
	Good *int        `json:"good"`
	Bad  *int        `json:"bad"`
	Data [][]float64 `json:"data"`
}

// Load reads and validates a recording file.
func Load(path string) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "erp", "open", filepath.Base(path), err)
	}
	defer file.Close()
	return Decode(file, filepath.Base(path))
}

// Decode parses a recording. A single bin object is accepted in place of an
// array. Shape errors are reported as validation errors and nothing is
// returned alongside them.
func Decode(r io.Reader, name string) (*Recording, error) {
	var raw fileShape
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, invalid(name, "parse json", err)
	}

	bins, err := decodeBins(raw.Bins)
	if err != nil {
		return nil, invalid(name, "parse bins", err)
	}

	rec := &Recording{
		Name:      name,
		Times:     raw.Times,
		Channels:  raw.Channels,
		Locations: raw.Chanlocs,
		Segments:  make([]Segment, 0, len(bins)),
	}
	for _, bin := range bins {
		seg := Segment{Name: bin.Name, Data: bin.Data}
		if bin.Good != nil {
			seg.Good = *bin.Good
			seg.HasTrials = true
		}
		if bin.Bad != nil {
			seg.Bad = *bin.Bad
			seg.HasTrials = true
		}
		rec.Segments = append(rec.Segments, seg)
	}

	if err := rec.validate(); err != nil {
		return nil, invalid(name, "validate", err)
	}
	return rec, nil
}

func decodeBins(data json.RawMessage) ([]binShape, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("missing bins")
	}
	if trimmed[0] == '{' {
		var single binShape
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		return []binShape{single}, nil
	}
	var bins []binShape
	if err := json.Unmarshal(trimmed, &bins); err != nil {
		return nil, err
	}
	return bins, nil
}

func (r *Recording) validate() error {
	if len(r.Times) == 0 {
		return fmt.Errorf("missing times")
	}
	for i := 1; i < len(r.Times); i++ {
		if r.Times[i] <= r.Times[i-1] {
			return fmt.Errorf("times not ascending at index %d", i)
		}
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("missing chans")
	}
	if len(r.Segments) == 0 {
		return fmt.Errorf("bins is empty")
	}
	for s, seg := range r.Segments {
		if len(seg.Data) != len(r.Channels) {
			return fmt.Errorf("bin %d has %d channels, want %d", s, len(seg.Data), len(r.Channels))
		}
		for c, samples := range seg.Data {
			if len(samples) != len(r.Times) {
				return fmt.Errorf("bin %d channel %s has %d samples, want %d", s, r.Channels[c], len(samples), len(r.Times))
			}
		}
	}
	return nil
}

func invalid(name, op string, err error) error {
	return services.Wrap(services.ErrValidation, "erp", op, name, err)
}

// ChannelIndex returns the index of the named channel or -1.
func (r *Recording) ChannelIndex(name string) int {
	for i, ch := range r.Channels {
		if ch == name {
			return i
		}
	}
	return -1
}

// Samples returns one channel of one segment. The slice is shared with the
// recording and must not be modified.
func (r *Recording) Samples(segment, channel int) []float64 {
	if segment < 0 || segment >= len(r.Segments) {
		return nil
	}
	data := r.Segments[segment].Data
	if channel < 0 || channel >= len(data) {
		return nil
	}
	return data[channel]
}
