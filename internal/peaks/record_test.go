package peaks_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"wepp/internal/peaks"
)

func TestRecordWireEncoding(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 890, time.FixedZone("EST", -5*3600))
	rec := peaks.NewRecord(7,
		peaks.Source{Recording: "p01.json", Segment: "bin1", Channel: "Fz"},
		peaks.Negative,
		peaks.Window{Start: 220, End: 240},
		peaks.Candidate{Index: 330, Latency: 230, Amplitude: 2.98},
		now,
	)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	want := `{"record_id":7,"filename":"p01.json","peakpolarity":2,"latency":230,"amplitude":2.98,` +
		`"bin":"bin1","chan":"Fz","timestamp":"Wed, 04 Mar 2026 10:06:07 GMT","startTime":220,"endTime":240,"notes":""}`
	if got != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", got, want)
	}

	var decoded peaks.Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", decoded.Timestamp, rec.Timestamp)
	}
	decoded.Timestamp = rec.Timestamp
	if decoded != rec {
		t.Fatalf("decoded record differs:\n got %+v\nwant %+v", decoded, rec)
	}
}

func TestRecordRejectsUnknownPolarityCode(t *testing.T) {
	var rec peaks.Record
	err := json.Unmarshal([]byte(`{"record_id":1,"peakpolarity":0}`), &rec)
	if err == nil || !strings.Contains(err.Error(), "polarity") {
		t.Fatalf("expected polarity error, got %v", err)
	}
}

func TestValuesFollowColumns(t *testing.T) {
	rec := peaks.Record{RecordID: 3, Recording: "a.json", Channel: "Cz", Polarity: peaks.Positive}
	values := rec.Values()
	if len(values) != len(peaks.Columns) {
		t.Fatalf("got %d values for %d columns", len(values), len(peaks.Columns))
	}
	if values[0] != int64(3) || values[1] != "a.json" || values[2] != 1 || values[6] != "Cz" {
		t.Fatalf("unexpected values %v", values)
	}
	if values[7] != "" {
		t.Fatalf("expected empty timestamp for zero time, got %v", values[7])
	}
}
