package picks_test

import (
	"reflect"
	"testing"
	"time"

	"wepp/internal/notifications"
	"wepp/internal/peaks"
	"wepp/internal/picks"
	"wepp/internal/testsupport"
)

var (
	positiveWindow = peaks.Window{Start: 130, End: 160}
	negativeWindow = peaks.Window{Start: 220, End: 240}
	fixedNow       = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fakeArchive map[[2]int][]peaks.Record

func (f fakeArchive) Cell(recording, segment int) ([]peaks.Record, bool) {
	cell, ok := f[[2]int{recording, segment}]
	return cell, ok
}

func newStaging(em notifications.Emitter) *picks.Staging {
	return picks.New(em, picks.WithClock(func() time.Time { return fixedNow }))
}

func ids(records []peaks.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.RecordID
	}
	return out
}

func TestScanReservesOneIDPerChannel(t *testing.T) {
	rec := testsupport.NewRecording("p01.json", 1)
	// make channel 1 flat so it yields nothing
	flat := make([]float64, len(rec.Times))
	rec.Segments[0].Data[1] = flat

	s := newStaging(nil)
	found := s.Scan(rec, 0, []int{0, 1, 2}, peaks.Positive, positiveWindow)
	if got := ids(found); !reflect.DeepEqual(got, []int64{0, 2}) {
		t.Fatalf("ids = %v, want [0 2]", got)
	}
	if found[0].Channel != "Fz" || found[1].Channel != "E1" || found[0].Segment != "bin1" || found[0].Recording != "p01.json" {
		t.Fatalf("unexpected sources %+v", found)
	}
	if found[0].WindowStart != 130 || found[0].WindowEnd != 160 || !found[0].Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected record %+v", found[0])
	}

	second := s.Scan(rec, 0, []int{0}, peaks.Negative, negativeWindow)
	if got := ids(second); !reflect.DeepEqual(got, []int64{3}) {
		t.Fatalf("second batch ids = %v, want [3]", got)
	}

	s.Commit()
	if s.NextID() != 4 {
		t.Fatalf("NextID = %d, want 4", s.NextID())
	}
	third := s.Scan(rec, 0, []int{0}, peaks.Negative, negativeWindow)
	if got := ids(third); !reflect.DeepEqual(got, []int64{4}) {
		t.Fatalf("ids after commit = %v, want [4]", got)
	}
}

func TestDiscardReleasesReservation(t *testing.T) {
	rec := testsupport.NewRecording("p01.json", 1)
	s := newStaging(nil)

	s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	s.Discard()
	if len(s.Temp()) != 0 {
		t.Fatal("expected temp cleared")
	}
	found := s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	if got := ids(found); !reflect.DeepEqual(got, []int64{0, 1}) {
		t.Fatalf("ids = %v, want [0 1]", got)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	rec := testsupport.NewRecording("p01.json", 1)
	var events notifications.Recorder
	s := newStaging(&events)

	s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	s.Commit()
	first := s.Picked()
	if len(first) != 2 {
		t.Fatalf("expected 2 picks, got %d", len(first))
	}

	s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	s.Commit()
	if got := s.Picked(); !reflect.DeepEqual(got, first) {
		t.Fatalf("picked changed after duplicate commit:\n got %+v\nwant %+v", got, first)
	}
	if s.NextID() != 4 {
		t.Fatalf("duplicate ids must still be consumed, NextID = %d", s.NextID())
	}
	if events.Count(notifications.PeaksAvailable) != 2 {
		t.Fatalf("expected PeaksAvailable twice, got %v", events.Kinds())
	}
}

func TestCommitEmptyEmitsPeaksEmpty(t *testing.T) {
	var events notifications.Recorder
	s := newStaging(&events)
	s.Commit()
	if got := events.Kinds(); !reflect.DeepEqual(got, []notifications.Kind{notifications.PeaksEmpty}) {
		t.Fatalf("kinds = %v", got)
	}
}

func TestResetAndRestore(t *testing.T) {
	rec := testsupport.NewRecording("p01.json", 2)
	s := newStaging(nil)
	s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	s.Commit()
	saved := s.Picked()

	archive := fakeArchive{{0, 0}: saved, {0, 1}: {}}

	s.ResetSegment()
	if len(s.Picked()) != 0 {
		t.Fatal("expected picked cleared")
	}
	if !s.RestoreIfVisited(archive, 0, 0) {
		t.Fatal("expected visited cell")
	}
	if got := s.Picked(); !reflect.DeepEqual(got, saved) {
		t.Fatalf("restored %+v, want %+v", got, saved)
	}

	s.ResetSegment()
	if !s.RestoreIfVisited(archive, 0, 1) {
		t.Fatal("empty saved cell is still visited")
	}
	if s.RestoreIfVisited(archive, 1, 0) {
		t.Fatal("unvisited cell reported visited")
	}

	// restored slices are copies
	s.ResetSegment()
	s.RestoreIfVisited(archive, 0, 0)
	s.SetNotes("changed")
	if archive[[2]int{0, 0}][0].Notes != "" {
		t.Fatal("SetNotes modified the archive cell")
	}
}

func TestSetNotesNormalizesToNFC(t *testing.T) {
	rec := testsupport.NewRecording("p01.json", 1)
	s := newStaging(nil)
	s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	s.Commit()

	s.SetNotes("late P3 on Cafe\u0301")
	for _, p := range s.Picked() {
		if p.Notes != "late P3 on Caf\u00e9" {
			t.Fatalf("notes = %q", p.Notes)
		}
	}
}

func TestDeleteAndByPolarity(t *testing.T) {
	rec := testsupport.NewRecording("p01.json", 1)
	s := newStaging(nil)
	s.Scan(rec, 0, []int{0, 1}, peaks.Positive, positiveWindow)
	s.Commit()
	s.Scan(rec, 0, []int{0}, peaks.Negative, negativeWindow)

	if got := ids(s.ByPolarity(peaks.Positive)); !reflect.DeepEqual(got, []int64{0, 1}) {
		t.Fatalf("positive = %v", got)
	}
	if got := ids(s.ByPolarity(peaks.Negative)); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("negative (temp) = %v", got)
	}

	if s.Delete(99) {
		t.Fatal("unknown id should be a no-op")
	}
	if !s.Delete(0) {
		t.Fatal("expected delete of id 0")
	}
	if got := ids(s.Picked()); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("picked after delete = %v", got)
	}
}

func TestNilRecorderEmitterIsSafe(t *testing.T) {
	var events *notifications.Recorder
	s := picks.New(events)
	s.Commit()
	if len(s.Picked()) != 0 {
		t.Fatal("expected no picks")
	}
}

func TestSetNextIDNeverRewinds(t *testing.T) {
	s := newStaging(nil)
	s.SetNextID(10)
	s.SetNextID(3)
	if s.NextID() != 10 {
		t.Fatalf("NextID = %d, want 10", s.NextID())
	}
}
