package archive

import "wepp/internal/peaks"

// Field is one named export value.
type Field struct {
	Key   string
	Value any
}

// Row is an ordered set of fields.
type Row []Field

// Keys returns the field names in order.
func (r Row) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the value stored under key.
func (r Row) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// RecordRow converts a record to its export row.
func RecordRow(rec peaks.Record) Row {
	values := rec.Values()
	row := make(Row, len(peaks.Columns))
	for i, key := range peaks.Columns {
		row[i] = Field{Key: key, Value: values[i]}
	}
	return row
}

// Rows flattens every saved cell in (recording, segment) order, then appends
// picked entries that are not already archived.
func (a *Archive) Rows(picked []peaks.Record) []Row {
	var rows []Row
	archived := make(map[int64]struct{})
	for _, cell := range sortCells(a.cells) {
		for _, rec := range a.cells[cell] {
			archived[rec.RecordID] = struct{}{}
			rows = append(rows, RecordRow(rec))
		}
	}
	for _, rec := range picked {
		if _, ok := archived[rec.RecordID]; ok {
			continue
		}
		rows = append(rows, RecordRow(rec))
	}
	return rows
}
