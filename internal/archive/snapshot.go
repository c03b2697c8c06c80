package archive

import "wepp/internal/peaks"

// SavedCell is one cell in a snapshot.
type SavedCell struct {
	Cell    Cell
	Records []peaks.Record
}

// Snapshot is the persistent form of an archive.
type Snapshot struct {
	Cells     []SavedCell
	Modified  []Cell
	Counter   float64
	Watermark Watermark
	Completed bool
}

// Snapshot copies the archive state.
func (a *Archive) Snapshot() Snapshot {
	snap := Snapshot{
		Modified:  a.Modified(),
		Counter:   a.counter,
		Watermark: a.watermark,
		Completed: a.completed,
	}
	for _, cell := range sortCells(a.cells) {
		snap.Cells = append(snap.Cells, SavedCell{Cell: cell, Records: append([]peaks.Record{}, a.cells[cell]...)})
	}
	return snap
}

// Restore replaces the archive state with snap. An upload that was prepared
// but never confirmed is forgotten; its cells remain unsynced.
func (a *Archive) Restore(snap Snapshot) {
	a.cells = make(map[Cell][]peaks.Record, len(snap.Cells))
	for _, saved := range snap.Cells {
		a.cells[saved.Cell] = append([]peaks.Record{}, saved.Records...)
	}
	a.modified = make(map[Cell]uint64, len(snap.Modified))
	a.saves = 0
	for _, cell := range snap.Modified {
		a.saves++
		a.modified[cell] = a.saves
	}
	a.inflight = nil
	a.counter = snap.Counter
	a.watermark = Watermark{Uploaded: snap.Watermark.Uploaded, Pending: snap.Watermark.Uploaded}
	a.completed = snap.Completed
}
