package testsupport

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"wepp/internal/erp"
)

// Token is a well-formed 32 character REDCap API token.
const Token = "0123456789ABCDEF0123456789ABCDEF"

// Times returns a 1 ms time axis from -100 to 400 ms.
func Times() []float64 {
	times := make([]float64, 0, 501)
	for t := -100; t <= 400; t++ {
		times = append(times, float64(t))
	}
	return times
}

// Wave returns a channel with a positive peak of 16.76 at 144 ms and a
// negative trough of 2.98 at 230 ms on a baseline of 10.
func Wave(times []float64) []float64 {
	samples := make([]float64, len(times))
	for i, t := range times {
		pos := (t - 144) / 12
		neg := (t - 230) / 10
		samples[i] = 10 + 6.76*math.Exp(-pos*pos) - 7.02*math.Exp(-neg*neg)
	}
	return samples
}

// DefaultChannels has two labelled channels followed by two dense-array
// electrodes, so the default selection is the first two.
var DefaultChannels = []string{"Fz", "Cz", "E1", "E2"}

// NewRecording builds an in-memory recording where every channel of every
// segment carries Wave.
func NewRecording(name string, segments int) *erp.Recording {
	times := Times()
	rec := &erp.Recording{
		Name:     name,
		Times:    times,
		Channels: append([]string(nil), DefaultChannels...),
	}
	for s := 0; s < segments; s++ {
		data := make([][]float64, len(rec.Channels))
		for c := range data {
			data[c] = Wave(times)
		}
		rec.Segments = append(rec.Segments, erp.Segment{
			Name:      "bin" + string(rune('1'+s)),
			Good:      40 - s,
			Bad:       s,
			HasTrials: true,
			Data:      data,
		})
	}
	return rec
}

// WriteRecording writes rec to dir in the on-disk JSON layout and returns the
// file path.
func WriteRecording(t testing.TB, dir string, rec *erp.Recording) string {
	t.Helper()

	type bin struct {
		Name string      `json:"name"`
		Good int         `json:"good"`
		Bad  int         `json:"bad"`
		Data [][]float64 `json:"data"`
	}
	shape := struct {
		Times []float64 `json:"times"`
		Chans []string  `json:"chans"`
		Bins  []bin     `json:"bins"`
	}{Times: rec.Times, Chans: rec.Channels}
	for _, seg := range rec.Segments {
		shape.Bins = append(shape.Bins, bin{Name: seg.Name, Good: seg.Good, Bad: seg.Bad, Data: seg.Data})
	}

	data, err := json.Marshal(shape)
	if err != nil {
		t.Fatalf("marshal recording: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, rec.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteDataset writes count recordings named p01.json, p02.json, ... with the
// given number of segments each and returns the directory.
func WriteDataset(t testing.TB, count, segments int) string {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < count; i++ {
		name := "p0" + string(rune('1'+i)) + ".json"
		WriteRecording(t, dir, NewRecording(name, segments))
	}
	return dir
}
