package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wepp/internal/archive"
	"wepp/internal/erp"
	"wepp/internal/notifications"
	"wepp/internal/peaks"
	"wepp/internal/project"
	"wepp/internal/redcap"
	"wepp/internal/services"
	"wepp/internal/session"
	"wepp/internal/testsupport"
	"wepp/internal/workspace"
)

var (
	positiveWindow = project.DefaultWindow{Polarity: peaks.Positive, Window: peaks.Window{Start: 130, End: 160}}
	negativeWindow = project.DefaultWindow{Polarity: peaks.Negative, Window: peaks.Window{Start: 220, End: 240}}
	fixedNow       = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type memoryStore struct {
	mu     sync.Mutex
	states []workspace.State
}

func (m *memoryStore) Save(_ context.Context, state workspace.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

func (m *memoryStore) Last(t *testing.T) workspace.State {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		t.Fatal("nothing persisted")
	}
	return m.states[len(m.states)-1]
}

type recordingSyncer struct {
	mu      sync.Mutex
	uploads []archive.Upload
}

func (r *recordingSyncer) Send(up archive.Upload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, up)
}

func (r *recordingSyncer) Uploads() []archive.Upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]archive.Upload(nil), r.uploads...)
}

type fixture struct {
	session *session.Session
	hub     *notifications.Hub
	events  *notifications.Recorder
	store   *memoryStore
	syncer  *recordingSyncer
	dir     string
}

func newFixture(t *testing.T, recordings, segments int, mutate func(*session.Options)) *fixture {
	t.Helper()
	dir := testsupport.WriteDataset(t, recordings, segments)
	listing, err := erp.List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	f := &fixture{
		hub:    notifications.NewHub(),
		events: &notifications.Recorder{},
		store:  &memoryStore{},
		syncer: &recordingSyncer{},
		dir:    dir,
	}
	f.hub.OnAll(f.events.Emit)
	opts := session.Options{
		Listing: listing,
		Sync:    f.syncer,
		Store:   f.store,
		Hub:     f.hub,
		Clock:   func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.session = session.New(opts)
	if err := f.session.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return f
}

func TestOpenWithoutRecordings(t *testing.T) {
	s := session.New(session.Options{Listing: erp.Listing{Dir: t.TempDir()}})
	if err := s.Open(context.Background()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected navigation to require Open, got %v", err)
	}
}

func TestNavigationCrossesRecordings(t *testing.T) {
	f := newFixture(t, 2, 3, nil)
	s := f.session

	view := s.Current()
	if view.Recording != "p01.json" || view.Segment != "bin1" {
		t.Fatalf("unexpected start: %+v", view.Position)
	}
	if names := view.SelectedNames(); len(names) != 2 || names[0] != "Fz" || names[1] != "Cz" {
		t.Fatalf("expected labelled channels selected, got %v", names)
	}

	for i := 0; i < 3; i++ {
		if moved, err := s.Next(); err != nil || !moved {
			t.Fatalf("Next %d: moved=%v err=%v", i, moved, err)
		}
	}
	if pos := s.Current().Position; pos != (workspace.Position{Recording: 1, Segment: 0}) {
		t.Fatalf("expected first segment of second recording, got %+v", pos)
	}

	if moved, _ := s.Prev(); !moved {
		t.Fatal("expected Prev to move")
	}
	if pos := s.Current().Position; pos != (workspace.Position{Recording: 0, Segment: 2}) {
		t.Fatalf("expected last segment of first recording, got %+v", pos)
	}

	if err := s.SelectRecording(1); err != nil {
		t.Fatalf("SelectRecording failed: %v", err)
	}
	if err := s.SelectSegment(2); err != nil {
		t.Fatalf("SelectSegment failed: %v", err)
	}
	if moved, err := s.Next(); err != nil || moved {
		t.Fatalf("expected end of dataset, moved=%v err=%v", moved, err)
	}
	if err := s.SelectSegment(3); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected out of range segment to fail, got %v", err)
	}
	if err := s.SelectRecording(-1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected out of range recording to fail, got %v", err)
	}

	if got := f.events.Count(notifications.NewRecording); got != 4 {
		t.Fatalf("expected 4 recording loads, got %d", got)
	}
	if got := f.events.Count(notifications.NewSegment); got != 7 {
		t.Fatalf("expected 7 segment changes, got %d", got)
	}
}

func TestDefaultWindowsPickUnvisitedSegments(t *testing.T) {
	f := newFixture(t, 1, 2, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow, negativeWindow}
	})

	picked := f.session.Current().Picked
	if len(picked) != 4 {
		t.Fatalf("expected a positive and negative peak per selected channel, got %d", len(picked))
	}
	for _, rec := range picked {
		switch rec.Polarity {
		case peaks.Positive:
			if rec.Latency != 144 {
				t.Fatalf("unexpected positive latency %v", rec.Latency)
			}
		case peaks.Negative:
			if rec.Latency != 230 {
				t.Fatalf("unexpected negative latency %v", rec.Latency)
			}
		}
	}
	if got := f.session.ByPolarity(peaks.Negative); len(got) != 2 {
		t.Fatalf("expected 2 negative picks, got %d", len(got))
	}
	if f.events.Count(notifications.PeaksAvailable) == 0 {
		t.Fatal("expected peaks available event")
	}
}

func TestProjectWindowsOverrideConfigWindows(t *testing.T) {
	settings := project.Default()
	settings.DefaultWindows = []project.DefaultWindow{negativeWindow}
	f := newFixture(t, 1, 1, func(o *session.Options) {
		o.Settings = &settings
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	picked := f.session.Current().Picked
	if len(picked) != 2 || picked[0].Polarity != peaks.Negative {
		t.Fatalf("expected project windows to apply, got %+v", picked)
	}
}

func TestAcceptAndRevisitRestoresPicks(t *testing.T) {
	f := newFixture(t, 1, 3, nil)
	s := f.session
	ctx := context.Background()

	staged, err := s.Highlight(peaks.Positive, peaks.Window{Start: 130, End: 160})
	if err != nil || len(staged) != 2 {
		t.Fatalf("Highlight: %v %v", staged, err)
	}
	if err := s.EndSelection(); err != nil {
		t.Fatalf("EndSelection failed: %v", err)
	}
	if err := s.EndSelection(); err != nil {
		t.Fatalf("EndSelection failed: %v", err)
	}
	before := s.Current().Picked
	if len(before) != 2 {
		t.Fatalf("expected 2 picks, got %d", len(before))
	}

	out, err := s.AcceptAndNext(ctx, "clean")
	if err != nil {
		t.Fatalf("AcceptAndNext failed: %v", err)
	}
	if !out.Moved || out.Count != 2 || out.Uploaded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(s.Current().Picked) != 0 {
		t.Fatal("expected an unvisited segment to start empty")
	}

	if _, err := s.Prev(); err != nil {
		t.Fatalf("Prev failed: %v", err)
	}
	view := s.Current()
	if !view.Visited || len(view.Picked) != 2 {
		t.Fatalf("expected restored picks, got %+v", view.Picked)
	}
	for i, rec := range view.Picked {
		if rec.RecordID != before[i].RecordID || rec.Notes != "clean" {
			t.Fatalf("restored pick %d = %+v", i, rec)
		}
	}
	if !view.Picked[0].Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected timestamp %v", view.Picked[0].Timestamp)
	}

	state := f.store.Last(t)
	if state.Position != (workspace.Position{Recording: 0, Segment: 1}) || state.NextID != 2 {
		t.Fatalf("unexpected persisted state: %+v", state)
	}
}

func TestDeleteAndCancelSelection(t *testing.T) {
	f := newFixture(t, 1, 1, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	s := f.session

	picked := s.Current().Picked
	if !s.DeletePick(picked[0].RecordID) {
		t.Fatal("expected delete to succeed")
	}
	if s.DeletePick(999) {
		t.Fatal("expected unknown id to be ignored")
	}
	if _, err := s.Highlight(peaks.Negative, peaks.Window{Start: 220, End: 240}); err != nil {
		t.Fatalf("Highlight failed: %v", err)
	}
	s.CancelSelection()
	view := s.Current()
	if len(view.Picked) != 1 || len(view.Temp) != 0 {
		t.Fatalf("unexpected sets: picked=%d temp=%d", len(view.Picked), len(view.Temp))
	}

	if _, err := s.Highlight(peaks.Positive, peaks.Window{Start: 200, End: 100}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected reversed window to fail, got %v", err)
	}
}

func TestToggleChannelUpdatesSelection(t *testing.T) {
	settings := project.Default()
	f := newFixture(t, 1, 1, func(o *session.Options) { o.Settings = &settings })
	s := f.session

	if err := s.ToggleChannel(2); err != nil {
		t.Fatalf("ToggleChannel failed: %v", err)
	}
	if err := s.ToggleChannel(0); err != nil {
		t.Fatalf("ToggleChannel failed: %v", err)
	}
	view := s.Current()
	if names := view.SelectedNames(); len(names) != 2 || names[0] != "Cz" || names[1] != "E1" {
		t.Fatalf("unexpected selection %v", names)
	}
	mask := s.Settings().SelectedChannels
	want := []bool{false, true, true, false}
	for i := range want {
		if mask[i] != want[i] {
			t.Fatalf("mask = %v, want %v", mask, want)
		}
	}
	if got := f.events.Count(notifications.ChannelSelectionChanged); got != 2 {
		t.Fatalf("expected 2 selection events, got %d", got)
	}
	if err := s.ToggleChannel(4); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected out of range channel to fail, got %v", err)
	}
}

func TestConfiguredChannelNamesWin(t *testing.T) {
	f := newFixture(t, 1, 1, func(o *session.Options) {
		o.Channels = []string{"E2", "missing"}
	})
	if names := f.session.Current().SelectedNames(); len(names) != 1 || names[0] != "E2" {
		t.Fatalf("expected configured channel, got %v", names)
	}
}

func TestUploadAtRecordingBoundaryAndConfirm(t *testing.T) {
	f := newFixture(t, 2, 3, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	s := f.session
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := s.AcceptAndNext(ctx, "")
		if err != nil {
			t.Fatalf("AcceptAndNext %d failed: %v", i, err)
		}
		if out.Uploaded != (i == 2) {
			t.Fatalf("segment %d: uploaded=%v", i, out.Uploaded)
		}
	}
	uploads := f.syncer.Uploads()
	if len(uploads) != 1 || len(uploads[0].Records) != 6 || uploads[0].Watermark != 1 {
		t.Fatalf("unexpected uploads: %+v", uploads)
	}
	if wm := s.Current().Watermark; wm.Uploaded != 0 || wm.Pending != 1 {
		t.Fatalf("unexpected watermark before confirm: %+v", wm)
	}

	f.hub.Emit(notifications.Event{Kind: notifications.SyncResponse, Count: 0, UploadID: uploads[0].ID,
		Err: services.Wrap(services.ErrRemote, "redcap", "import records", "no records accepted", nil)})
	if wm := s.Current().Watermark; wm.Uploaded != 0 {
		t.Fatalf("failed response must not confirm: %+v", wm)
	}

	f.hub.Emit(notifications.Event{Kind: notifications.SyncResponse, Count: 6, UploadID: uploads[0].ID})
	if wm := s.Current().Watermark; wm.Uploaded != 1 {
		t.Fatalf("expected confirmed watermark, got %+v", wm)
	}
	if state := f.store.Last(t); state.Archive.Watermark.Uploaded != 1 {
		t.Fatalf("expected confirmation persisted, got %+v", state.Archive.Watermark)
	}

	up, err := s.Sync(ctx)
	if err != nil || !up.Empty {
		t.Fatalf("expected nothing to sync, got %+v %v", up, err)
	}

	if _, err := s.AcceptAndNext(ctx, ""); err != nil {
		t.Fatalf("AcceptAndNext failed: %v", err)
	}
	first, _ := s.Sync(ctx)
	second, _ := s.Sync(ctx)
	if len(first.Records) != 2 || second.ID <= first.ID {
		t.Fatalf("unexpected uploads %+v %+v", first, second)
	}

	f.hub.Emit(notifications.Event{Kind: notifications.SyncResponse, Count: 2, UploadID: first.ID})
	if wm := s.Current().Watermark; wm.Uploaded != 1 {
		t.Fatalf("superseded response must not confirm: %+v", wm)
	}
	f.hub.Emit(notifications.Event{Kind: notifications.SyncResponse, Count: 2, UploadID: second.ID})
	if wm := s.Current().Watermark; wm.Uploaded != 2 {
		t.Fatalf("expected latest response to confirm: %+v", wm)
	}
}

func TestResaveAfterSyncIsUploadedAgain(t *testing.T) {
	f := newFixture(t, 2, 1, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	s := f.session
	ctx := context.Background()

	if _, err := s.AcceptAndNext(ctx, ""); err != nil {
		t.Fatal(err)
	}
	up := f.syncer.Uploads()[0]
	f.hub.Emit(notifications.Event{Kind: notifications.SyncResponse, Count: 2, UploadID: up.ID})

	if err := s.SelectRecording(0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Highlight(peaks.Negative, peaks.Window{Start: 220, End: 240}); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSelection(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AcceptAndNext(ctx, "second pass"); err != nil {
		t.Fatal(err)
	}

	uploads := f.syncer.Uploads()
	if len(uploads) != 2 {
		t.Fatalf("expected a second upload, got %d", len(uploads))
	}
	if got := len(uploads[1].Records); got != 4 {
		t.Fatalf("expected the re-saved cell's 4 picks, got %d", got)
	}
	if modified := s.Current().Modified; len(modified) != 1 {
		t.Fatalf("expected modified cell until confirmed, got %v", modified)
	}
}

func TestCompletionUploadsOnce(t *testing.T) {
	f := newFixture(t, 1, 2, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	s := f.session
	ctx := context.Background()

	if _, err := s.AcceptAndNext(ctx, ""); err != nil {
		t.Fatal(err)
	}
	out, err := s.AcceptAndNext(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Complete || out.Moved || !out.Uploaded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if got := len(f.syncer.Uploads()); got != 1 {
		t.Fatalf("expected one upload, got %d", got)
	}
	if got := f.events.Count(notifications.SessionComplete); got != 1 {
		t.Fatalf("expected one completion event, got %d", got)
	}
	if p := s.Current().Progress; p < 0.9999 {
		t.Fatalf("unexpected progress %v", p)
	}
}

func TestResumeRestoresState(t *testing.T) {
	f := newFixture(t, 2, 2, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	ctx := context.Background()
	if _, err := f.session.AcceptAndNext(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	state := f.store.Last(t)

	listing, err := erp.List(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	resumed := session.New(session.Options{Listing: listing, Resume: &state})
	if err := resumed.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	view := resumed.Current()
	if view.Position != (workspace.Position{Recording: 0, Segment: 1}) || view.NextID != state.NextID {
		t.Fatalf("unexpected resumed view: %+v", view.Position)
	}
	if len(view.VisitedCells) != 1 || view.Progress != 0.25 {
		t.Fatalf("unexpected archive: cells=%v progress=%v", view.VisitedCells, view.Progress)
	}
	if err := resumed.SelectSegment(0); err != nil {
		t.Fatal(err)
	}
	if picked := resumed.Current().Picked; len(picked) != 2 || picked[0].Notes != "first" {
		t.Fatalf("expected saved picks restored, got %+v", picked)
	}

	mismatched := state
	mismatched.Recordings = []string{"other.json"}
	other := session.New(session.Options{Listing: listing, Resume: &mismatched})
	if err := other.Open(ctx); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected mismatch to fail, got %v", err)
	}
}

func TestRowsIncludeUnsavedPicks(t *testing.T) {
	f := newFixture(t, 1, 2, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
	})
	if _, err := f.session.AcceptAndNext(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	rows := f.session.Rows()
	if len(rows) != 4 {
		t.Fatalf("expected saved and current picks, got %d rows", len(rows))
	}
	if keys := rows[0].Keys(); keys[0] != "record_id" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestSyncThroughREDCapClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count": 2}`))
	}))
	t.Cleanup(srv.Close)

	var client *redcap.Client
	f := newFixture(t, 1, 1, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
		client = redcap.New(redcap.Options{
			URL:        srv.URL + "/api/",
			Token:      testsupport.Token,
			HTTPClient: srv.Client(),
			Emitter:    o.Hub,
		})
		o.Sync = client
	})

	out, err := f.session.AcceptAndNext(context.Background(), "")
	if err != nil || !out.Uploaded {
		t.Fatalf("AcceptAndNext: %+v %v", out, err)
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if wm := f.session.Current().Watermark; wm.Uploaded != 1 {
		t.Fatalf("expected confirmed upload, got %+v", wm)
	}
	if !client.Working() {
		t.Fatal("expected client to report working")
	}
}

func TestSavePersistedWhenNextRecordingFails(t *testing.T) {
	errBroken := errors.New("truncated file")
	f := newFixture(t, 2, 1, func(o *session.Options) {
		o.Windows = []project.DefaultWindow{positiveWindow}
		o.Loader = func(path string) (*erp.Recording, error) {
			if filepath.Base(path) == "p02.json" {
				return nil, errBroken
			}
			return erp.Load(path)
		}
	})

	out, err := f.session.AcceptAndNext(context.Background(), "")
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected load error, got %v", err)
	}
	if out.Moved || out.Count != 2 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	state := f.store.Last(t)
	if state.Position != (workspace.Position{}) {
		t.Fatalf("expected position unchanged, got %+v", state.Position)
	}
	if len(state.Archive.Cells) != 1 || state.Archive.Cells[0].Cell != (archive.Cell{}) || len(state.Archive.Cells[0].Records) != 2 {
		t.Fatalf("expected saved cell persisted, got %+v", state.Archive.Cells)
	}
}
