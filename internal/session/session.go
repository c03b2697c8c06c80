package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"wepp/internal/archive"
	"wepp/internal/erp"
	"wepp/internal/logging"
	"wepp/internal/notifications"
	"wepp/internal/peaks"
	"wepp/internal/picks"
	"wepp/internal/project"
	"wepp/internal/services"
	"wepp/internal/workspace"
)

// Loader reads one recording file.
type Loader func(path string) (*erp.Recording, error)

// Syncer accepts prepared uploads.
type Syncer interface {
	Send(up archive.Upload)
}

// Persister stores session state between runs.
type Persister interface {
	Save(ctx context.Context, state workspace.State) error
}

// Options configures a Session.
type Options struct {
	Listing erp.Listing
	// Settings is the dataset's project file. The session updates its
	// channel mask as the selection changes.
	Settings *project.Settings
	// Windows are applied to unvisited segments when Settings has none.
	Windows []project.DefaultWindow
	// Channels, when set, selects channels by name instead of the project mask.
	Channels []string
	Sync     Syncer
	Store    Persister
	Hub      *notifications.Hub
	Logger   *slog.Logger
	Loader   Loader
	Clock    func() time.Time
	Resume   *workspace.State
}

// Session is the annotation cursor over every (recording, segment) pair of a
// dataset. All methods are safe for concurrent use. Events are delivered to
// the hub after the session lock is released, so handlers may call back into
// the session.
type Session struct {
	listing  erp.Listing
	names    []string
	settings *project.Settings
	windows  []project.DefaultWindow
	channels []string
	sync     Syncer
	store    Persister
	hub      *notifications.Hub
	logger   *slog.Logger
	loader   Loader
	resume   *workspace.State

	mu       sync.Mutex
	outbox   outbox
	archive  *archive.Archive
	staging  *picks.Staging
	rec      *erp.Recording
	position workspace.Position
	selected []int
	opened   bool
}

type outbox struct {
	events []notifications.Event
}

func (o *outbox) Emit(e notifications.Event) {
	o.events = append(o.events, e)
}

func (o *outbox) drain() []notifications.Event {
	events := o.events
	o.events = nil
	return events
}

// New builds a session over the recordings in opts.Listing. Call Open before
// navigating.
func New(opts Options) *Session {
	s := &Session{
		listing:  opts.Listing,
		names:    opts.Listing.Names(),
		settings: opts.Settings,
		windows:  opts.Windows,
		channels: opts.Channels,
		sync:     opts.Sync,
		store:    opts.Store,
		hub:      opts.Hub,
		logger:   logging.NewComponentLogger(opts.Logger, "session"),
		loader:   opts.Loader,
		resume:   opts.Resume,
	}
	if s.settings == nil {
		settings := project.Default()
		s.settings = &settings
	}
	if s.loader == nil {
		s.loader = erp.Load
	}
	stagingOpts := []picks.Option{picks.WithLogger(opts.Logger)}
	if opts.Clock != nil {
		stagingOpts = append(stagingOpts, picks.WithClock(opts.Clock))
	}
	s.archive = archive.New(len(s.names), &s.outbox)
	s.staging = picks.New(&s.outbox, stagingOpts...)
	if s.hub != nil {
		s.hub.On(notifications.SyncResponse, s.onSyncResponse)
	}
	return s
}

func (s *Session) lock() {
	s.mu.Lock()
}

// unlock releases the session and delivers the events queued while it was
// held.
func (s *Session) unlock() {
	events := s.outbox.drain()
	s.mu.Unlock()
	for _, e := range events {
		s.hub.Emit(e)
	}
}

// Open restores persisted state, if any, and shows the first segment or the
// segment the previous run stopped at.
func (s *Session) Open(ctx context.Context) error {
	s.lock()
	defer s.unlock()

	if len(s.names) == 0 {
		return services.Wrap(services.ErrNotFound, "session", "open",
			fmt.Sprintf("no recordings in %s", s.listing.Dir), nil)
	}
	start := workspace.Position{}
	if s.resume != nil {
		if !slices.Equal(s.resume.Recordings, s.names) {
			return services.Wrap(services.ErrConfiguration, "session", "resume",
				"workspace was saved for a different set of recordings; reset it to start over", nil)
		}
		s.archive.Restore(s.resume.Archive)
		s.staging.SetNextID(s.resume.NextID)
		start = s.resume.Position
		s.logger.Info("session resumed",
			logging.Float64("progress", s.archive.Progress()),
			logging.Int("uploaded", s.archive.Watermark().Uploaded),
			logging.Int("modified", len(s.archive.Modified())),
		)
	}
	if start.Recording < 0 || start.Recording >= len(s.names) {
		start = workspace.Position{}
	}
	if err := s.loadRecording(start.Recording); err != nil {
		return err
	}
	if start.Segment < 0 || start.Segment >= len(s.rec.Segments) {
		start.Segment = 0
	}
	s.enterSegment(start.Segment)
	s.opened = true
	return nil
}

func (s *Session) requireOpen() error {
	if !s.opened {
		return services.Wrap(services.ErrConfiguration, "session", "navigate", "session is not open", nil)
	}
	return nil
}

// View is a read-only snapshot of the session.
type View struct {
	Dataset      string
	Recordings   []string
	Position     workspace.Position
	Recording    string
	Segment      string
	Segments     []string
	Good         int
	Bad          int
	HasTrials    bool
	Channels     []string
	Selected     []int
	Picked       []peaks.Record
	Temp         []peaks.Record
	Visited      bool
	Progress     float64
	Complete     bool
	Watermark    archive.Watermark
	Modified     []archive.Cell
	VisitedCells []archive.Cell
	NextID       int64
}

// SelectedNames returns the names of the selected channels.
func (v View) SelectedNames() []string {
	names := make([]string, 0, len(v.Selected))
	for _, idx := range v.Selected {
		if idx >= 0 && idx < len(v.Channels) {
			names = append(names, v.Channels[idx])
		}
	}
	return names
}

// Current returns the session state.
func (s *Session) Current() View {
	s.lock()
	defer s.unlock()

	view := View{
		Dataset:      s.listing.Dir,
		Recordings:   append([]string(nil), s.names...),
		Position:     s.position,
		Selected:     append([]int(nil), s.selected...),
		Picked:       s.staging.Picked(),
		Temp:         s.staging.Temp(),
		Progress:     s.archive.Progress(),
		Complete:     s.archive.Complete(),
		Watermark:    s.archive.Watermark(),
		Modified:     s.archive.Modified(),
		VisitedCells: s.archive.Cells(),
		NextID:       s.staging.NextID(),
	}
	if s.rec != nil {
		seg := s.rec.Segments[s.position.Segment]
		view.Recording = s.rec.Name
		view.Segment = seg.Name
		view.Good, view.Bad, view.HasTrials = seg.Good, seg.Bad, seg.HasTrials
		view.Channels = append([]string(nil), s.rec.Channels...)
		for _, other := range s.rec.Segments {
			view.Segments = append(view.Segments, other.Name)
		}
		view.Visited = s.archive.Visited(s.position.Recording, s.position.Segment)
	}
	return view
}

// ByPolarity returns the picked and in-progress peaks of one polarity on the
// current segment.
func (s *Session) ByPolarity(pol peaks.Polarity) []peaks.Record {
	s.lock()
	defer s.unlock()
	return s.staging.ByPolarity(pol)
}

// Rows flattens the archive plus the current picks for export.
func (s *Session) Rows() []archive.Row {
	s.lock()
	defer s.unlock()
	return s.archive.Rows(s.staging.Picked())
}

// Settings returns a copy of the project settings including the current
// channel mask.
func (s *Session) Settings() project.Settings {
	s.lock()
	defer s.unlock()
	out := *s.settings
	out.SelectedChannels = append([]bool(nil), s.settings.SelectedChannels...)
	out.DefaultWindows = append([]project.DefaultWindow(nil), s.settings.DefaultWindows...)
	return out
}
