package peaks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Source identifies where a pick was made.
type Source struct {
	Recording string
	Segment   string
	Channel   string
}

// Record is one committed or staged peak annotation.
type Record struct {
	RecordID    int64
	Recording   string
	Segment     string
	Channel     string
	Polarity    Polarity
	Latency     float64
	Amplitude   float64
	WindowStart float64
	WindowEnd   float64
	Timestamp   time.Time
	Notes       string
}

// NewRecord builds the annotation for a candidate found in w.
func NewRecord(id int64, src Source, pol Polarity, w Window, c Candidate, now time.Time) Record {
	return Record{
		RecordID:    id,
		Recording:   src.Recording,
		Segment:     src.Segment,
		Channel:     src.Channel,
		Polarity:    pol,
		Latency:     c.Latency,
		Amplitude:   c.Amplitude,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Timestamp:   now.UTC().Truncate(time.Second),
	}
}

// SameSample reports whether two records mark the same sample of the same
// channel. Committing a staged record that matches a picked one is a no-op.
func (r Record) SameSample(other Record) bool {
	return r.Amplitude == other.Amplitude && r.Latency == other.Latency && r.Channel == other.Channel
}

// Field order of the upload and export encoding.
var Columns = []string{
	"record_id", "filename", "peakpolarity", "latency", "amplitude",
	"bin", "chan", "timestamp", "startTime", "endTime", "notes",
}

type wireRecord struct {
	RecordID  int64   `json:"record_id"`
	Filename  string  `json:"filename"`
	Polarity  int     `json:"peakpolarity"`
	Latency   float64 `json:"latency"`
	Amplitude float64 `json:"amplitude"`
	Bin       string  `json:"bin"`
	Channel   string  `json:"chan"`
	Timestamp string  `json:"timestamp"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Notes     string  `json:"notes"`
}

func (r Record) wire() wireRecord {
	var ts string
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format(http.TimeFormat)
	}
	return wireRecord{
		RecordID:  r.RecordID,
		Filename:  r.Recording,
		Polarity:  r.Polarity.Wire(),
		Latency:   r.Latency,
		Amplitude: r.Amplitude,
		Bin:       r.Segment,
		Channel:   r.Channel,
		Timestamp: ts,
		StartTime: r.WindowStart,
		EndTime:   r.WindowEnd,
		Notes:     r.Notes,
	}
}

// Values returns the record's fields in Columns order.
func (r Record) Values() []any {
	w := r.wire()
	return []any{
		w.RecordID, w.Filename, w.Polarity, w.Latency, w.Amplitude,
		w.Bin, w.Channel, w.Timestamp, w.StartTime, w.EndTime, w.Notes,
	}
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	pol, err := FromWire(w.Polarity)
	if err != nil {
		return err
	}
	var ts time.Time
	if w.Timestamp != "" {
		ts, err = http.ParseTime(w.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", w.Timestamp, err)
		}
	}
	*r = Record{
		RecordID:    w.RecordID,
		Recording:   w.Filename,
		Segment:     w.Bin,
		Channel:     w.Channel,
		Polarity:    pol,
		Latency:     w.Latency,
		Amplitude:   w.Amplitude,
		WindowStart: w.StartTime,
		WindowEnd:   w.EndTime,
		Timestamp:   ts.UTC(),
		Notes:       w.Notes,
	}
	return nil
}
