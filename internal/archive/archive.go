package archive

import (
	"math"
	"sort"

	"wepp/internal/notifications"
	"wepp/internal/peaks"
)

// completionEpsilon absorbs the rounding of summed 1/segments increments.
const completionEpsilon = 1e-4

// Cell addresses one (recording, segment) pair.
type Cell struct {
	Recording int
	Segment   int
}

func (c Cell) less(other Cell) bool {
	if c.Recording != other.Recording {
		return c.Recording < other.Recording
	}
	return c.Segment < other.Segment
}

// Watermark is the recording boundary confirmed synced and the boundary of
// the most recent upload attempt.
type Watermark struct {
	Uploaded int
	Pending  int
}

// Upload is a payload prepared for the remote store.
type Upload struct {
	// ID increases with every PrepareUpload so responses can be matched to
	// the upload they answer.
	ID        uint64
	Records   []peaks.Record
	Watermark int
	// Empty is set when nothing is left to sync.
	Empty bool
}

// Archive stores committed picks per cell and tracks progress and sync state.
// A cell present in the map has been visited, even if its list is empty.
// Archive is not safe for concurrent use.
type Archive struct {
	cells     map[Cell][]peaks.Record
	modified  map[Cell]uint64
	inflight  map[Cell]uint64
	saves     uint64
	prepared  uint64
	counter   float64
	total     int
	watermark Watermark
	completed bool
	emitter   notifications.Emitter
}

// New creates an archive for a session over totalRecordings recordings.
func New(totalRecordings int, emitter notifications.Emitter) *Archive {
	return &Archive{
		cells:    make(map[Cell][]peaks.Record),
		modified: make(map[Cell]uint64),
		total:    totalRecordings,
		emitter:  emitter,
	}
}

// Save stores the picks for one cell. The first save of a cell advances
// progress by 1/totalSegments; later saves overwrite it and mark it modified.
// A first save into a recording below the pending watermark is also marked
// modified, since the boundary upload that covered that recording has
// already been prepared.
func (a *Archive) Save(recording, segment int, picked []peaks.Record, totalSegments int) {
	cell := Cell{Recording: recording, Segment: segment}
	saved := append([]peaks.Record{}, picked...)
	a.saves++

	if _, visited := a.cells[cell]; visited {
		a.modified[cell] = a.saves
	} else {
		if totalSegments > 0 {
			a.counter += 1 / float64(totalSegments)
		}
		if recording < a.watermark.Pending {
			a.modified[cell] = a.saves
		}
	}
	a.cells[cell] = saved

	progress := a.Progress()
	notifications.Emit(a.emitter, notifications.Event{
		Kind:      notifications.PeaksSaved,
		Recording: recording,
		Segment:   segment,
		Peaks:     append([]peaks.Record(nil), saved...),
		Progress:  progress,
		Count:     len(saved),
	})

	if !a.completed && math.Abs(progress-1) < completionEpsilon {
		a.completed = true
		notifications.Emit(a.emitter, notifications.Event{Kind: notifications.SessionComplete, Progress: progress})
	}
}

// Visited reports whether the cell has been saved at least once.
func (a *Archive) Visited(recording, segment int) bool {
	_, ok := a.cells[Cell{Recording: recording, Segment: segment}]
	return ok
}

// Cell returns a copy of a saved cell.
func (a *Archive) Cell(recording, segment int) ([]peaks.Record, bool) {
	saved, ok := a.cells[Cell{Recording: recording, Segment: segment}]
	if !ok {
		return nil, false
	}
	return append([]peaks.Record{}, saved...), true
}

// Progress is the fraction of recordings fully annotated.
func (a *Archive) Progress() float64 {
	if a.total <= 0 {
		return 0
	}
	return a.counter / float64(a.total)
}

// Complete reports whether completion has been signalled.
func (a *Archive) Complete() bool {
	return a.completed
}

// TotalRecordings is the number of recordings in the session.
func (a *Archive) TotalRecordings() int {
	return a.total
}

// Length is one past the highest recording index with a saved cell.
func (a *Archive) Length() int {
	length := 0
	for cell := range a.cells {
		if cell.Recording+1 > length {
			length = cell.Recording + 1
		}
	}
	return length
}

// Watermark returns the sync boundaries.
func (a *Archive) Watermark() Watermark {
	return a.watermark
}

// Cells returns the visited cells in (recording, segment) order.
func (a *Archive) Cells() []Cell {
	return sortCells(a.cells)
}

// Modified returns the cells awaiting re-sync in (recording, segment) order.
func (a *Archive) Modified() []Cell {
	return sortCells(a.modified)
}

// Unsynced flattens every cell of recordings at or after from, followed by
// the modified cells of earlier recordings. The second result is false when
// from covers the whole archive and nothing is modified.
func (a *Archive) Unsynced(from int) ([]peaks.Record, bool) {
	if from >= a.Length() && len(a.modified) == 0 {
		return nil, false
	}
	out := []peaks.Record{}
	for _, cell := range sortCells(a.cells) {
		if cell.Recording >= from {
			out = append(out, a.cells[cell]...)
		}
	}
	for _, cell := range sortCells(a.modified) {
		if cell.Recording < from {
			out = append(out, a.cells[cell]...)
		}
	}
	return out, true
}

// PrepareUpload moves the pending watermark to the archive length and
// returns everything not yet confirmed.
func (a *Archive) PrepareUpload() Upload {
	a.watermark.Pending = a.Length()
	a.inflight = make(map[Cell]uint64, len(a.modified))
	for cell, seq := range a.modified {
		a.inflight[cell] = seq
	}
	a.prepared++
	records, ok := a.Unsynced(a.watermark.Uploaded)
	return Upload{ID: a.prepared, Records: records, Watermark: a.watermark.Pending, Empty: !ok}
}

// PendingID is the ID of the most recently prepared upload.
func (a *Archive) PendingID() uint64 {
	return a.prepared
}

// ConfirmUpload records that the last prepared upload was accepted. Modified
// cells included in it are cleared; a cell saved again after PrepareUpload
// stays modified.
func (a *Archive) ConfirmUpload() {
	a.watermark.Uploaded = a.watermark.Pending
	for cell, seq := range a.inflight {
		if a.modified[cell] == seq {
			delete(a.modified, cell)
		}
	}
	a.inflight = nil
}

func sortCells[V any](m map[Cell]V) []Cell {
	cells := make([]Cell, 0, len(m))
	for cell := range m {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].less(cells[j]) })
	return cells
}
