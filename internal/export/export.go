// Package export renders archive rows as CSV or JSON for download.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"wepp/internal/archive"
	"wepp/internal/fileutil"
)

// Format selects the output encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// FormatForPath picks the format from a file extension, defaulting to CSV.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return CSV
}

// WriteCSV writes rows as comma separated lines joined by CRLF. The header is
// the key set of the first row; every cell is the JSON encoding of its value,
// and keys missing from a row are left empty.
func WriteCSV(w io.Writer, rows []archive.Row) error {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0].Keys()
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(header, ","))
	for i, row := range rows {
		cells := make([]string, len(header))
		for j, key := range header {
			value, ok := row.Get(key)
			if !ok {
				continue
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode row %d %s: %w", i, key, err)
			}
			cells[j] = string(encoded)
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\r\n"))
	return err
}

// WriteJSON writes rows as a JSON array of objects, keeping each row's key
// order.
func WriteJSON(w io.Writer, rows []archive.Row) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, field := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(field.Key)
			if err != nil {
				return err
			}
			value, err := json.Marshal(field.Value)
			if err != nil {
				return fmt.Errorf("encode row %d %s: %w", i, field.Key, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteString("]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile writes rows to path in the given format.
func WriteFile(path string, format Format, rows []archive.Row) error {
	write := WriteCSV
	if format == JSON {
		write = WriteJSON
	}
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return write(w, rows)
	})
}
