package peaks

import (
	"fmt"
	"math"
)

// Neighbors is the number of samples averaged on each side of a candidate.
const Neighbors = 3

// Window is a time range in milliseconds.
type Window struct {
	Start float64
	End   float64
}

func (w Window) String() string {
	return fmt.Sprintf("[%g, %g]", w.Start, w.End)
}

// Candidate is the sample chosen by Find.
type Candidate struct {
	Index     int
	Latency   float64
	Amplitude float64
}

// Find returns the most extreme sample in w that strictly dominates both
// immediate neighbours and the means of the Neighbors samples on either side.
//
// Window bounds are rounded to whole milliseconds and looked up exactly in
// times (also rounded). A start bound that is not on the axis scans from the
// beginning, a missing end bound scans to the end, and the scan range is then
// clamped so every candidate has a full neighbourhood. When several samples
// tie for the extremum the latency is the mean of the tied latencies snapped
// to the nearest timestamp on the axis, and the amplitude is the tied value.
//
// The second result is false when no sample qualifies.
func Find(pol Polarity, w Window, samples, times []float64) (Candidate, bool) {
	n := min(len(samples), len(times))
	times = times[:n]

	start := lookup(times, w.Start)
	if start < 0 {
		start = 0
	}
	end := lookup(times, w.End)
	if end < 0 {
		end = n
	}
	start = max(start, Neighbors)
	end = min(end, n-Neighbors)

	var extreme float64
	var tied []int
	for i := start; i < end; i++ {
		v := samples[i]
		if !pol.dominates(v, samples[i-1]) || !pol.dominates(v, samples[i+1]) {
			continue
		}
		if !pol.dominates(v, mean(samples[i-Neighbors:i])) || !pol.dominates(v, mean(samples[i+1:i+1+Neighbors])) {
			continue
		}
		switch {
		case len(tied) == 0 || pol.dominates(v, extreme):
			extreme = v
			tied = append(tied[:0], i)
		case v == extreme:
			tied = append(tied, i)
		}
	}

	if len(tied) == 0 {
		return Candidate{}, false
	}

	idx := tied[0]
	if len(tied) > 1 {
		var sum float64
		for _, t := range tied {
			sum += times[t]
		}
		idx = nearest(times, sum/float64(len(tied)))
	}
	return Candidate{Index: idx, Latency: times[idx], Amplitude: extreme}, true
}

// lookup returns the first index whose rounded timestamp equals the rounded
// target, or -1.
func lookup(times []float64, target float64) int {
	want := math.Round(target)
	for i, t := range times {
		if math.Round(t) == want {
			return i
		}
	}
	return -1
}

// nearest returns the index of the timestamp closest to target. The earlier
// index wins on equal distance.
func nearest(times []float64, target float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, t := range times {
		if d := math.Abs(t - target); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
