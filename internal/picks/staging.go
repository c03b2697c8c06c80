// Package picks holds the peaks found during an in-progress selection and the
// peaks committed for the segment on screen.
package picks

import (
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"wepp/internal/erp"
	"wepp/internal/logging"
	"wepp/internal/notifications"
	"wepp/internal/peaks"
)

// ArchiveReader is the part of the archive staging restores from.
type ArchiveReader interface {
	Cell(recording, segment int) ([]peaks.Record, bool)
}

// Staging owns the temp and picked sets plus the record id counter. It is not
// safe for concurrent use.
type Staging struct {
	temp     []peaks.Record
	picked   []peaks.Record
	next     int64
	reserved int64
	emitter  notifications.Emitter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Staging.
type Option func(*Staging)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Staging) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for pick diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Staging) {
		s.logger = logging.NewComponentLogger(logger, "picks")
	}
}

// New creates an empty staging area.
func New(emitter notifications.Emitter, opts ...Option) *Staging {
	s := &Staging{
		emitter: emitter,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs peak detection on every selected channel of one segment and
// appends the hits to the temp set. Every selected channel reserves an id,
// so ids skipped by channels without a peak are never handed out.
func (s *Staging) Scan(rec *erp.Recording, segment int, channels []int, pol peaks.Polarity, w peaks.Window) []peaks.Record {
	if rec == nil || segment < 0 || segment >= len(rec.Segments) {
		return nil
	}
	base := s.next + s.reserved
	s.reserved += int64(len(channels))

	now := s.now()
	found := make([]peaks.Record, 0, len(channels))
	for pos, ch := range channels {
		samples := rec.Samples(segment, ch)
		if samples == nil {
			continue
		}
		c, ok := peaks.Find(pol, w, samples, rec.Times)
		if !ok {
			continue
		}
		src := peaks.Source{
			Recording: rec.Name,
			Segment:   rec.Segments[segment].Name,
			Channel:   rec.Channels[ch],
		}
		found = append(found, peaks.NewRecord(base+int64(pos), src, pol, w, c, now))
	}
	s.temp = append(s.temp, found...)

	s.logger.Debug("window scanned",
		logging.String(logging.FieldPolarity, pol.String()),
		logging.String("window", w.String()),
		logging.Int("channels", len(channels)),
		logging.Int("peaks", len(found)),
	)
	return found
}

// Commit moves temp entries into picked, skipping any that mark the same
// sample as an existing pick, and consumes the reserved ids.
func (s *Staging) Commit() {
	added := 0
	for _, candidate := range s.temp {
		if s.isDuplicate(candidate) {
			continue
		}
		s.picked = append(s.picked, candidate)
		added++
	}
	s.next += s.reserved
	s.reserved = 0
	s.temp = nil

	s.logger.Debug("picks committed", logging.Int("added", added), logging.Int("peaks", len(s.picked)))

	kind := notifications.PeaksEmpty
	if len(s.picked) > 0 {
		kind = notifications.PeaksAvailable
	}
	notifications.Emit(s.emitter, notifications.Event{Kind: kind, Peaks: s.Picked(), Count: len(s.picked)})
}

func (s *Staging) isDuplicate(candidate peaks.Record) bool {
	for _, existing := range s.picked {
		if existing.SameSample(candidate) {
			return true
		}
	}
	return false
}

// Discard drops the temp set and releases its id reservation.
func (s *Staging) Discard() {
	s.temp = nil
	s.reserved = 0
}

// ResetSegment clears both sets.
func (s *Staging) ResetSegment() {
	s.Discard()
	s.picked = nil
}

// RestoreIfVisited loads a saved cell into picked. It reports whether the
// cell had been visited.
func (s *Staging) RestoreIfVisited(archive ArchiveReader, recording, segment int) bool {
	if archive == nil {
		return false
	}
	saved, ok := archive.Cell(recording, segment)
	if !ok {
		return false
	}
	s.picked = append([]peaks.Record(nil), saved...)
	return true
}

// SetNotes overwrites the notes of every picked entry.
func (s *Staging) SetNotes(text string) {
	text = norm.NFC.String(text)
	for i := range s.picked {
		s.picked[i].Notes = text
	}
}

// Delete removes one picked entry. Unknown ids are ignored.
func (s *Staging) Delete(recordID int64) bool {
	for i, rec := range s.picked {
		if rec.RecordID == recordID {
			s.picked = append(s.picked[:i], s.picked[i+1:]...)
			return true
		}
	}
	return false
}

// Picked returns a copy of the committed set.
func (s *Staging) Picked() []peaks.Record {
	return append([]peaks.Record(nil), s.picked...)
}

// Temp returns a copy of the staged set.
func (s *Staging) Temp() []peaks.Record {
	return append([]peaks.Record(nil), s.temp...)
}

// ByPolarity returns picked then temp entries of one polarity.
func (s *Staging) ByPolarity(pol peaks.Polarity) []peaks.Record {
	var out []peaks.Record
	for _, set := range [][]peaks.Record{s.picked, s.temp} {
		for _, rec := range set {
			if rec.Polarity == pol {
				out = append(out, rec)
			}
		}
	}
	return out
}

// NextID is the first id not yet consumed by a commit.
func (s *Staging) NextID() int64 {
	return s.next
}

// SetNextID restores the counter from persisted state. It never moves the
// counter backwards.
func (s *Staging) SetNextID(id int64) {
	if id > s.next {
		s.next = id
	}
}
